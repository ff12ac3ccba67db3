package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/incidents"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "opsdesk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(db)
}

func seedIncident(t *testing.T, repo *Repository, mutate func(*domain.Incident)) *domain.Incident {
	t.Helper()

	incident := &domain.Incident{
		ReportedBy:  "Dana",
		AssignedTo:  "Lee",
		DateTime:    time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC),
		Description: "API latency spike",
		Status:      domain.StatusOpen,
	}
	if mutate != nil {
		mutate(incident)
	}
	require.NoError(t, repo.Create(context.Background(), incident))

	return incident
}

func TestOpen_AppliesMigrationsTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opsdesk.db")

	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// A second open against the same file must not fail.
	db, err = Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestCreate_AssignsIDAndCreatedAt(t *testing.T) {
	repo := newTestRepository(t)

	incident := seedIncident(t, repo, nil)

	assert.Positive(t, incident.ID)
	assert.WithinDuration(t, time.Now().UTC(), incident.CreatedAt, 5*time.Second)
}

func TestGetByID_RoundTripsAllFields(t *testing.T) {
	repo := newTestRepository(t)
	attachment := "screenshot_1.png"
	closedOn := time.Date(2026, 3, 6, 19, 30, 0, 0, time.UTC)
	totalTime := "1 days"
	seeded := seedIncident(t, repo, func(incident *domain.Incident) {
		incident.Attachment = &attachment
		incident.Status = domain.StatusClosed
		incident.ClosedOn = &closedOn
		incident.TotalTime = &totalTime
	})

	got, err := repo.GetByID(context.Background(), seeded.ID)

	require.NoError(t, err)
	assert.Equal(t, seeded.ID, got.ID)
	assert.Equal(t, "Dana", got.ReportedBy)
	assert.Equal(t, "Lee", got.AssignedTo)
	assert.WithinDuration(t, seeded.DateTime, got.DateTime, time.Second)
	assert.Equal(t, "API latency spike", got.Description)
	require.NotNil(t, got.Attachment)
	assert.Equal(t, attachment, *got.Attachment)
	assert.Equal(t, domain.StatusClosed, got.Status)
	require.NotNil(t, got.ClosedOn)
	assert.WithinDuration(t, closedOn, *got.ClosedOn, time.Second)
	require.NotNil(t, got.TotalTime)
	assert.Equal(t, totalTime, *got.TotalTime)
	assert.WithinDuration(t, seeded.CreatedAt, got.CreatedAt, time.Second)
}

func TestGetByID_NullableFieldsStayNil(t *testing.T) {
	repo := newTestRepository(t)
	seeded := seedIncident(t, repo, nil)

	got, err := repo.GetByID(context.Background(), seeded.ID)

	require.NoError(t, err)
	assert.Nil(t, got.Attachment)
	assert.Nil(t, got.ClosedOn)
	assert.Nil(t, got.TotalTime)
}

func TestGetByID_Unknown(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetByID(context.Background(), 999)

	require.ErrorIs(t, err, incidents.ErrIncidentNotFound)
}

func TestList_NewestFirst(t *testing.T) {
	repo := newTestRepository(t)
	first := seedIncident(t, repo, nil)
	second := seedIncident(t, repo, func(incident *domain.Incident) {
		incident.Description = "Disk pressure on db-2"
	})

	list, err := repo.List(context.Background())

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestList_EmptyDatabase(t *testing.T) {
	repo := newTestRepository(t)

	list, err := repo.List(context.Background())

	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdate_PersistsClosureFields(t *testing.T) {
	repo := newTestRepository(t)
	seeded := seedIncident(t, repo, nil)
	closedOn := time.Date(2026, 3, 6, 19, 30, 0, 0, time.UTC)
	totalTime := "1 days"
	seeded.Status = domain.StatusClosed
	seeded.ClosedOn = &closedOn
	seeded.TotalTime = &totalTime

	err := repo.Update(context.Background(), seeded)

	require.NoError(t, err)
	got, err := repo.GetByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, got.Status)
	require.NotNil(t, got.ClosedOn)
	assert.WithinDuration(t, closedOn, *got.ClosedOn, time.Second)
	require.NotNil(t, got.TotalTime)
	assert.Equal(t, totalTime, *got.TotalTime)
}

func TestUpdate_Unknown(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.Update(context.Background(), &domain.Incident{ID: 999, Status: domain.StatusOpen})

	require.ErrorIs(t, err, incidents.ErrIncidentNotFound)
}

func TestDelete_RemovesRow(t *testing.T) {
	repo := newTestRepository(t)
	seeded := seedIncident(t, repo, nil)

	err := repo.Delete(context.Background(), seeded.ID)

	require.NoError(t, err)
	_, err = repo.GetByID(context.Background(), seeded.ID)
	require.ErrorIs(t, err, incidents.ErrIncidentNotFound)
}

func TestDelete_Unknown(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.Delete(context.Background(), 999)

	require.ErrorIs(t, err, incidents.ErrIncidentNotFound)
}

func TestCountByStatus(t *testing.T) {
	repo := newTestRepository(t)
	seedIncident(t, repo, nil)
	seedIncident(t, repo, nil)
	seedIncident(t, repo, func(incident *domain.Incident) {
		incident.Status = domain.StatusClosed
	})

	counts, err := repo.CountByStatus(context.Background())

	require.NoError(t, err)
	assert.Equal(t, map[domain.Status]int{
		domain.StatusOpen:   2,
		domain.StatusClosed: 1,
	}, counts)
}

func TestListAttachmentRefs_OnlyStoredRefs(t *testing.T) {
	repo := newTestRepository(t)
	ref := "report_1.pdf"
	seedIncident(t, repo, func(incident *domain.Incident) {
		incident.Attachment = &ref
	})
	seedIncident(t, repo, nil)

	refs, err := repo.ListAttachmentRefs(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{ref}, refs)
}
