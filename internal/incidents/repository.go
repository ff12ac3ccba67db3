package incidents

import (
	"context"

	"github.com/opsdesk/opsdesk/internal/domain"
)

// Repository defines the interface for incident storage.
type Repository interface {
	Create(ctx context.Context, incident *domain.Incident) error
	GetByID(ctx context.Context, id int64) (*domain.Incident, error)
	List(ctx context.Context) ([]domain.Incident, error)
	Update(ctx context.Context, incident *domain.Incident) error
	Delete(ctx context.Context, id int64) error

	// CountByStatus returns the number of incidents per status.
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)

	// ListAttachmentRefs returns every attachment reference held by an
	// incident. Used by the orphan sweeper.
	ListAttachmentRefs(ctx context.Context) ([]string, error)
}
