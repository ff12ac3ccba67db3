package incidents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/opsdesk/opsdesk/internal/domain"
)

// AttachmentStore abstracts attachment file persistence. Open reports a
// missing file with an error matching fs.ErrNotExist.
type AttachmentStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Remove(ctx context.Context, ref string) error
}

// Service implements incident business logic.
type Service struct {
	repo        Repository
	attachments AttachmentStore
}

// NewService creates a new incident service.
func NewService(repo Repository, attachments AttachmentStore) *Service {
	return &Service{
		repo:        repo,
		attachments: attachments,
	}
}

// CreateIncidentInput holds data for reporting an incident.
type CreateIncidentInput struct {
	ReportedBy  string
	AssignedTo  string
	DateTime    time.Time
	Description string

	// AttachmentName and AttachmentData carry an optional uploaded file.
	// A nil AttachmentData means no attachment.
	AttachmentName string
	AttachmentData io.Reader
}

// Create stores a new incident. New incidents always start Open with no
// closure fields set, regardless of input.
func (s *Service) Create(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error) {
	incident := &domain.Incident{
		ReportedBy:  input.ReportedBy,
		AssignedTo:  input.AssignedTo,
		DateTime:    input.DateTime,
		Description: input.Description,
		Status:      domain.StatusOpen,
	}

	if input.AttachmentData != nil {
		ref, err := s.attachments.Save(ctx, input.AttachmentName, input.AttachmentData)
		if err != nil {
			return nil, fmt.Errorf("save attachment: %w", err)
		}
		incident.Attachment = &ref
	}

	if err := s.repo.Create(ctx, incident); err != nil {
		if incident.Attachment != nil {
			if removeErr := s.attachments.Remove(ctx, *incident.Attachment); removeErr != nil {
				slog.Warn("failed to remove attachment after create failure",
					"ref", *incident.Attachment,
					"error", removeErr,
				)
			}
		}
		return nil, fmt.Errorf("create incident: %w", err)
	}

	return incident, nil
}

// Get retrieves an incident by ID.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Incident, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves all incidents, newest first.
func (s *Service) List(ctx context.Context) ([]domain.Incident, error) {
	return s.repo.List(ctx)
}

// Update applies a status update to an existing incident and persists the
// result.
func (s *Service) Update(ctx context.Context, id int64, update StatusUpdate) (*domain.Incident, error) {
	if update.Status != nil && !update.Status.IsValid() {
		return nil, ErrInvalidStatus
	}

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}

	Apply(incident, update)

	if err := s.repo.Update(ctx, incident); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}

	return incident, nil
}

// Delete removes an incident. The attachment file, if any, is removed best
// effort after the record is gone.
func (s *Service) Delete(ctx context.Context, id int64) error {
	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get incident: %w", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}

	if incident.Attachment != nil {
		if err := s.attachments.Remove(ctx, *incident.Attachment); err != nil {
			slog.Warn("failed to remove attachment file",
				"incident_id", id,
				"ref", *incident.Attachment,
				"error", err,
			)
		}
	}

	return nil
}

// ExportCSV writes all incidents to w in CSV form, newest first.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	incidents, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list incidents: %w", err)
	}

	if err := WriteCSV(w, incidents); err != nil {
		return err
	}

	recordExport()
	return nil
}

// OpenAttachment streams the attachment of an incident. The returned name is
// the stored reference, usable as a download filename.
func (s *Service) OpenAttachment(ctx context.Context, id int64) (io.ReadCloser, string, error) {
	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("get incident: %w", err)
	}

	if incident.Attachment == nil {
		return nil, "", ErrAttachmentNotFound
	}

	rc, err := s.attachments.Open(ctx, *incident.Attachment)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrAttachmentNotFound
		}
		return nil, "", fmt.Errorf("open attachment: %w", err)
	}

	return rc, *incident.Attachment, nil
}

// CountByStatus returns the number of incidents per status.
func (s *Service) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	return s.repo.CountByStatus(ctx)
}
