package attachments

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// SweeperConfig contains sweeper configuration.
type SweeperConfig struct {
	Interval time.Duration
	MinAge   time.Duration
}

// DefaultSweeperConfig returns default sweeper configuration.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: 1 * time.Hour,
		MinAge:   24 * time.Hour,
	}
}

// ReferenceLister reports attachment references that are still in use.
type ReferenceLister interface {
	ListAttachmentRefs(ctx context.Context) ([]string, error)
}

// Sweeper periodically removes stored files that no incident references
// anymore. Files younger than MinAge are kept so an upload is never
// deleted between being written and its incident row landing.
type Sweeper struct {
	config SweeperConfig
	store  *Store
	refs   ReferenceLister

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSweeper creates a new attachment sweeper.
func NewSweeper(config SweeperConfig, store *Store, refs ReferenceLister) *Sweeper {
	return &Sweeper{
		config: config,
		store:  store,
		refs:   refs,
		stopCh: make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("starting attachment sweeper",
		"interval", s.config.Interval,
		"min_age", s.config.MinAge,
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("attachment sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error("attachment sweep failed", "error", err)
			}
		}
	}
}

// Sweep deletes unreferenced files older than MinAge and returns how
// many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	refs, err := s.refs.ListAttachmentRefs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list attachment refs: %w", err)
	}

	inUse := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		inUse[ref] = struct{}{}
	}

	entries, err := os.ReadDir(s.store.dir)
	if err != nil {
		return 0, fmt.Errorf("read upload dir: %w", err)
	}

	cutoff := time.Now().Add(-s.config.MinAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := inUse[entry.Name()]; ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := s.store.Remove(ctx, entry.Name()); err != nil {
			slog.Warn("failed to remove orphaned attachment", "ref", entry.Name(), "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		slog.Info("swept orphaned attachments", "removed", removed)
		recordSwept(removed)
	}

	return removed, nil
}
