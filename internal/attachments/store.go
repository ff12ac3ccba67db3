// Package attachments stores uploaded incident files on local disk.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Store saves uploaded files under a single directory. References handed
// out to callers are bare file names and never contain path separators.
type Store struct {
	dir string
}

// NewStore creates the upload directory if needed and returns a store
// rooted at it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes r to disk under a collision-free name derived from the
// uploaded filename and returns the stored reference.
func (s *Store) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	ref := newRef(filename)
	path := filepath.Join(s.dir, ref)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create attachment file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write attachment: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close attachment file: %w", err)
	}

	recordStored()

	return ref, nil
}

// Open returns the stored file for ref. A missing file reports
// fs.ErrNotExist.
func (s *Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.refPath(ref)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("open attachment: %w", err)
	}

	return f, nil
}

// Remove deletes the stored file for ref. Removing a missing file is
// not an error.
func (s *Store) Remove(ctx context.Context, ref string) error {
	path, err := s.refPath(ref)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove attachment: %w", err)
	}

	return nil
}

// refPath rejects refs that could escape the upload directory.
func (s *Store) refPath(ref string) (string, error) {
	if ref == "" || ref == "." || ref == ".." || ref != filepath.Base(ref) {
		return "", fmt.Errorf("invalid attachment ref %q", ref)
	}
	return filepath.Join(s.dir, ref), nil
}

// newRef builds a stored name from the uploaded filename. The original
// base name is kept for operators browsing the directory; the uuid makes
// repeated uploads of the same file distinct.
func newRef(filename string) string {
	base := unsafeChars.ReplaceAllString(filepath.Base(filename), "_")
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if name == "" || name == "." {
		name = "attachment"
	}
	return name + "_" + uuid.New().String() + ext
}
