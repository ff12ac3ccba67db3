// Package sqlite provides an incident repository backed by an embedded
// SQLite database. It is used for single-node deployments where running
// a PostgreSQL server is not worth the operational cost.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/incidents"
)

// migrations are applied in order on every startup. Statements must be
// idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS incidents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reported_by TEXT NOT NULL,
		assigned_to TEXT NOT NULL,
		date_time TIMESTAMP NOT NULL,
		description TEXT NOT NULL,
		attachment TEXT,
		status TEXT NOT NULL,
		closed_on TIMESTAMP,
		total_time TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents (status)`,
}

// Open opens the database file at path and applies schema migrations.
// The caller owns the returned handle and must close it.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer at a time.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migration #%d: %w", i+1, err)
		}
	}
	return db, nil
}

// Repository implements incidents.Repository on top of database/sql.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, incident *domain.Incident) error {
	incident.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO incidents (reported_by, assigned_to, date_time, description, attachment, status, closed_on, total_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		incident.ReportedBy,
		incident.AssignedTo,
		incident.DateTime,
		incident.Description,
		incident.Attachment,
		string(incident.Status),
		incident.ClosedOn,
		incident.TotalTime,
		incident.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read insert id: %w", err)
	}
	incident.ID = id

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Incident, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, reported_by, assigned_to, date_time, description, attachment, status, closed_on, total_time, created_at
		FROM incidents
		WHERE id = ?`, id)

	incident, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("select incident: %w", err)
	}

	return incident, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.Incident, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, reported_by, assigned_to, date_time, description, attachment, status, closed_on, total_time, created_at
		FROM incidents
		ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("select incidents: %w", err)
	}
	defer rows.Close()

	list := make([]domain.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		list = append(list, *incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	return list, nil
}

func (r *Repository) Update(ctx context.Context, incident *domain.Incident) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE incidents
		SET reported_by = ?, assigned_to = ?, date_time = ?, description = ?, attachment = ?, status = ?, closed_on = ?, total_time = ?
		WHERE id = ?`,
		incident.ReportedBy,
		incident.AssignedTo,
		incident.DateTime,
		incident.Description,
		incident.Attachment,
		string(incident.Status),
		incident.ClosedOn,
		incident.TotalTime,
		incident.ID,
	)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return incidents.ErrIncidentNotFound
	}

	return nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM incidents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return incidents.ErrIncidentNotFound
	}

	return nil
}

func (r *Repository) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM incidents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count incidents: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	return counts, nil
}

func (r *Repository) ListAttachmentRefs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT attachment FROM incidents WHERE attachment IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("select attachment refs: %w", err)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*domain.Incident, error) {
	var (
		incident   domain.Incident
		status     string
		attachment sql.NullString
		closedOn   sql.NullTime
		totalTime  sql.NullString
	)
	if err := row.Scan(
		&incident.ID,
		&incident.ReportedBy,
		&incident.AssignedTo,
		&incident.DateTime,
		&incident.Description,
		&attachment,
		&status,
		&closedOn,
		&totalTime,
		&incident.CreatedAt,
	); err != nil {
		return nil, err
	}

	incident.Status = domain.Status(status)
	if attachment.Valid {
		incident.Attachment = &attachment.String
	}
	if closedOn.Valid {
		t := closedOn.Time
		incident.ClosedOn = &t
	}
	if totalTime.Valid {
		incident.TotalTime = &totalTime.String
	}

	return &incident, nil
}
