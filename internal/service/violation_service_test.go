package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/bonjohen/cedar-terrace-sub001/internal/dto"
	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
	"github.com/bonjohen/cedar-terrace-sub001/internal/repository"
	appErrors "github.com/bonjohen/cedar-terrace-sub001/pkg/errors"
)

type violationRepoStub struct {
	db        *sqlx.DB
	violation *models.Violation
	events    []models.ViolationEvent

	appended      []*models.ViolationEvent
	statusWrites  []models.ViolationStatus
	lastResolved  *time.Time
	lastDismissed *time.Time
}

func (s *violationRepoStub) Begin(ctx context.Context) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, nil)
}

func (s *violationRepoStub) GetByID(_ context.Context, id string) (*models.Violation, error) {
	if s.violation == nil || s.violation.ID != id {
		return nil, sql.ErrNoRows
	}
	v := *s.violation
	return &v, nil
}

func (s *violationRepoStub) GetByIDForUpdateTx(_ context.Context, _ *sqlx.Tx, id string) (*models.Violation, error) {
	return s.GetByID(context.Background(), id)
}

func (s *violationRepoStub) AppendEventTx(_ context.Context, _ *sqlx.Tx, event *models.ViolationEvent) error {
	s.appended = append(s.appended, event)
	return nil
}

func (s *violationRepoStub) UpdateStatusTx(_ context.Context, _ *sqlx.Tx, _ string, status models.ViolationStatus, resolvedAt, dismissedAt *time.Time) error {
	s.statusWrites = append(s.statusWrites, status)
	s.lastResolved = resolvedAt
	s.lastDismissed = dismissedAt
	s.violation.Status = status
	return nil
}

func (s *violationRepoStub) ListEvents(_ context.Context, _ string) ([]models.ViolationEvent, error) {
	return s.events, nil
}

func (s *violationRepoStub) List(_ context.Context, _ models.ViolationFilter) ([]models.Violation, error) {
	if s.violation == nil {
		return nil, nil
	}
	return []models.Violation{*s.violation}, nil
}

type cacheStub struct {
	store map[string][]byte
	sets  int
	hits  int
}

func newCacheStub() *cacheStub { return &cacheStub{store: map[string][]byte{}} }

func (c *cacheStub) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := c.store[key]
	if !ok {
		return repository.ErrCacheMiss
	}
	c.hits++
	return json.Unmarshal(raw, dest)
}

func (c *cacheStub) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.store[key] = raw
	c.sets++
	return nil
}

func (c *cacheStub) Delete(_ context.Context, key string) error {
	delete(c.store, key)
	return nil
}

func newViolationServiceTest(t *testing.T, violation *models.Violation) (*ViolationService, *violationRepoStub, *cacheStub, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	repo := &violationRepoStub{db: sqlx.NewDb(db, "sqlmock"), violation: violation}
	cache := newCacheStub()
	svc := NewViolationService(repo, cache, nil, time.Minute, nil)
	return svc, repo, cache, mock, func() { db.Close() }
}

func TestApplyEventForwardTransition(t *testing.T) {
	svc, repo, _, mock, cleanup := newViolationServiceTest(t, &models.Violation{ID: "vio-1", Status: models.StatusDetected})
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	event, err := svc.ApplyEvent(context.Background(), "vio-1", dto.ApplyEventRequest{EventType: models.EventNoticeEligible}, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.EventNoticeEligible, event.Type)
	require.Equal(t, "admin-1", event.PerformedBy)
	require.Len(t, repo.appended, 1)
	require.Equal(t, []models.ViolationStatus{models.StatusNoticeEligible}, repo.statusWrites)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEventRejectsTerminalViolation(t *testing.T) {
	svc, repo, _, mock, cleanup := newViolationServiceTest(t, &models.Violation{ID: "vio-1", Status: models.StatusResolved})
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.ApplyEvent(context.Background(), "vio-1", dto.ApplyEventRequest{EventType: models.EventEscalated}, "admin-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrTerminalState.Code, appErrors.FromError(err).Code)
	require.Empty(t, repo.appended)
}

func TestApplyEventRejectsBackwardTransition(t *testing.T) {
	svc, repo, _, mock, cleanup := newViolationServiceTest(t, &models.Violation{ID: "vio-1", Status: models.StatusEscalated})
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.ApplyEvent(context.Background(), "vio-1", dto.ApplyEventRequest{EventType: models.EventNoticeEligible}, "admin-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	require.Empty(t, repo.appended)
	require.Empty(t, repo.statusWrites)
}

func TestApplyEventSubsequentNoticeKeepsStatus(t *testing.T) {
	svc, repo, _, mock, cleanup := newViolationServiceTest(t, &models.Violation{ID: "vio-1", Status: models.StatusEscalated})
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	event, err := svc.ApplyEvent(context.Background(), "vio-1", dto.ApplyEventRequest{EventType: models.EventNoticeIssued}, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.EventNoticeIssued, event.Type)
	require.Len(t, repo.appended, 1)
	require.Empty(t, repo.statusWrites, "a reissue must not regress the projection")
	require.Equal(t, models.StatusEscalated, repo.violation.Status)
}

func TestApplyEventObservationAddedDoesNotTransition(t *testing.T) {
	svc, repo, _, mock, cleanup := newViolationServiceTest(t, &models.Violation{ID: "vio-1", Status: models.StatusNoticeIssued})
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := svc.ApplyEvent(context.Background(), "vio-1", dto.ApplyEventRequest{
		EventType:     models.EventObservationAdded,
		ObservationID: "obs-9",
	}, "")
	require.NoError(t, err)
	require.Len(t, repo.appended, 1)
	require.Equal(t, models.SystemActor, repo.appended[0].PerformedBy)
	require.Empty(t, repo.statusWrites)
}

func TestApplyEventResolvedStampsTimestamp(t *testing.T) {
	svc, repo, _, mock, cleanup := newViolationServiceTest(t, &models.Violation{ID: "vio-1", Status: models.StatusTowEligible})
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := svc.ApplyEvent(context.Background(), "vio-1", dto.ApplyEventRequest{EventType: models.EventResolved, Notes: "vehicle moved"}, "admin-1")
	require.NoError(t, err)
	require.Equal(t, []models.ViolationStatus{models.StatusResolved}, repo.statusWrites)
	require.NotNil(t, repo.lastResolved)
	require.Nil(t, repo.lastDismissed)
}

func TestApplyEventUnknownViolation(t *testing.T) {
	svc, _, _, mock, cleanup := newViolationServiceTest(t, nil)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.ApplyEvent(context.Background(), "missing", dto.ApplyEventRequest{EventType: models.EventResolved}, "admin-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGetWithEventsReadsThroughCache(t *testing.T) {
	violation := &models.Violation{ID: "vio-1", Status: models.StatusDetected}
	svc, repo, cache, _, cleanup := newViolationServiceTest(t, violation)
	defer cleanup()
	repo.events = []models.ViolationEvent{{ID: "evt-1", ViolationID: "vio-1", Type: models.EventDetected}}

	first, err := svc.GetWithEvents(context.Background(), "vio-1")
	require.NoError(t, err)
	require.Len(t, first.Events, 1)
	require.Equal(t, 1, cache.sets)

	// Second read comes from the cache even after the repo changes.
	repo.events = nil
	second, err := svc.GetWithEvents(context.Background(), "vio-1")
	require.NoError(t, err)
	require.Len(t, second.Events, 1)
	require.Equal(t, 1, cache.hits)
}

func TestInvalidateCacheDropsEntry(t *testing.T) {
	violation := &models.Violation{ID: "vio-1", Status: models.StatusDetected}
	svc, repo, cache, _, cleanup := newViolationServiceTest(t, violation)
	defer cleanup()

	_, err := svc.GetWithEvents(context.Background(), "vio-1")
	require.NoError(t, err)

	svc.InvalidateCache(context.Background(), "vio-1")
	require.Empty(t, cache.store)

	repo.events = []models.ViolationEvent{{ID: "evt-2"}}
	resp, err := svc.GetWithEvents(context.Background(), "vio-1")
	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
}
