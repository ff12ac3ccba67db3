// Package postgres provides the PostgreSQL implementation of the incidents
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/incidents"
)

// Repository implements the incidents.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new incident and fills its ID and CreatedAt.
func (r *Repository) Create(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (reported_by, assigned_to, date_time, description, attachment, status, closed_on, total_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		incident.ReportedBy,
		incident.AssignedTo,
		incident.DateTime,
		incident.Description,
		incident.Attachment,
		incident.Status,
		incident.ClosedOn,
		incident.TotalTime,
	).Scan(&incident.ID, &incident.CreatedAt)

	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// GetByID retrieves an incident by its ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Incident, error) {
	query := `
		SELECT id, reported_by, assigned_to, date_time, description, attachment, status, closed_on, total_time, created_at
		FROM incidents
		WHERE id = $1
	`
	var incident domain.Incident
	err := r.db.QueryRow(ctx, query, id).Scan(
		&incident.ID,
		&incident.ReportedBy,
		&incident.AssignedTo,
		&incident.DateTime,
		&incident.Description,
		&incident.Attachment,
		&incident.Status,
		&incident.ClosedOn,
		&incident.TotalTime,
		&incident.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident by id: %w", err)
	}

	return &incident, nil
}

// List retrieves all incidents, newest first.
func (r *Repository) List(ctx context.Context) ([]domain.Incident, error) {
	query := `
		SELECT id, reported_by, assigned_to, date_time, description, attachment, status, closed_on, total_time, created_at
		FROM incidents
		ORDER BY id DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Incident, 0)
	for rows.Next() {
		var incident domain.Incident
		err := rows.Scan(
			&incident.ID,
			&incident.ReportedBy,
			&incident.AssignedTo,
			&incident.DateTime,
			&incident.Description,
			&incident.Attachment,
			&incident.Status,
			&incident.ClosedOn,
			&incident.TotalTime,
			&incident.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, incident)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	return out, nil
}

// Update persists all mutable fields of an existing incident.
func (r *Repository) Update(ctx context.Context, incident *domain.Incident) error {
	query := `
		UPDATE incidents
		SET reported_by = $2, assigned_to = $3, date_time = $4, description = $5,
		    attachment = $6, status = $7, closed_on = $8, total_time = $9
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		incident.ID,
		incident.ReportedBy,
		incident.AssignedTo,
		incident.DateTime,
		incident.Description,
		incident.Attachment,
		incident.Status,
		incident.ClosedOn,
		incident.TotalTime,
	)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}

	if result.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// Delete removes an incident by its ID.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM incidents WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}

	if result.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// CountByStatus returns the number of incidents per status.
func (r *Repository) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	query := `SELECT status, COUNT(*) FROM incidents GROUP BY status`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count incidents by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status domain.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	return counts, nil
}

// ListAttachmentRefs returns every attachment reference held by an incident.
func (r *Repository) ListAttachmentRefs(ctx context.Context) ([]string, error) {
	query := `SELECT attachment FROM incidents WHERE attachment IS NOT NULL`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list attachment refs: %w", err)
	}
	defer rows.Close()

	refs := make([]string, 0)
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan attachment ref: %w", err)
		}
		refs = append(refs, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachment refs: %w", err)
	}

	return refs, nil
}
