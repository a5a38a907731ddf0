package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"searchjob-service/internal/entity"
	"searchjob-service/internal/repository/postgresql"
	"searchjob-service/internal/service"
)

// ---- fakes ----

type fakeRepo struct {
	created []*entity.Job
	queued  []uuid.UUID

	job  *entity.Job
	meta *entity.JobMeta
}

func (r *fakeRepo) Create(ctx context.Context, job *entity.Job) error {
	r.created = append(r.created, job)
	return nil
}

func (r *fakeRepo) MarkQueued(ctx context.Context, id uuid.UUID) error {
	r.queued = append(r.queued, id)
	return nil
}

func (r *fakeRepo) GetStatusWithMeta(ctx context.Context, id uuid.UUID) (*entity.Job, *entity.JobMeta, error) {
	if r.job == nil {
		return nil, nil, postgresql.ErrNotFound
	}
	return r.job, r.meta, nil
}

type fakeLogStore struct {
	appended  []entity.LogEntry
	lastLimit int
	entries   []entity.LogEntry
}

func (s *fakeLogStore) Append(ctx context.Context, jobID uuid.UUID, level entity.LogLevel, message string, data json.RawMessage) error {
	s.appended = append(s.appended, entity.LogEntry{JobID: jobID, Level: level, Message: message, Data: data})
	return nil
}

func (s *fakeLogStore) List(ctx context.Context, jobID uuid.UUID, limit int) ([]entity.LogEntry, error) {
	s.lastLimit = limit
	if limit < len(s.entries) {
		return s.entries[:limit], nil
	}
	return s.entries, nil
}

type fakeResultStore struct {
	rows []entity.ResultRow
}

func (s *fakeResultStore) Page(ctx context.Context, jobID uuid.UUID, entityName string, afterID int64, limit int) ([]entity.ResultRow, error) {
	var out []entity.ResultRow
	for _, row := range s.rows {
		if row.JobID != jobID || row.Entity != entityName || row.ID <= afterID {
			continue
		}
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeQueue struct {
	enqueuedIDs []string
	enqueueErr  error
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobID string) error {
	q.enqueuedIDs = append(q.enqueuedIDs, jobID)
	return q.enqueueErr
}

func newService(repo *fakeRepo, logs *fakeLogStore, results *fakeResultStore, queue *fakeQueue) *service.JobService {
	return service.NewJobService(repo, logs, results, queue)
}

// ---- tests ----

func TestJobService_CreateJob_CapturesEnvelope(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{}
	svc := newService(repo, &fakeLogStore{}, &fakeResultStore{}, &fakeQueue{})

	id, err := svc.CreateJob(ctx, service.CreateJobRequest{
		Kind:     entity.KindAPI,
		Method:   "POST",
		Path:     "/v1/search",
		Query:    "verbose=1",
		Headers:  map[string]string{"Content-Type": "application/json"},
		BodyText: `{"query":"123 Main St"}`,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	require.Len(t, repo.created, 1)
	job := repo.created[0]
	assert.Equal(t, id, job.ID)
	assert.Equal(t, entity.StatusReceived, job.Status)
	assert.Equal(t, "POST", job.Method)
	assert.Equal(t, "/v1/search", job.Path)
	assert.Equal(t, `{"query":"123 Main St"}`, job.BodyText)
}

func TestJobService_QueueJob_MarksQueuedLogsAndEnqueues(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{}
	logs := &fakeLogStore{}
	queue := &fakeQueue{}
	svc := newService(repo, logs, &fakeResultStore{}, queue)

	id := uuid.New()
	err := svc.QueueJob(ctx, id, "search request received", json.RawMessage(`{"query":"x"}`))
	require.NoError(t, err)

	require.Equal(t, []uuid.UUID{id}, repo.queued)
	require.Len(t, logs.appended, 1)
	assert.Equal(t, entity.LevelInfo, logs.appended[0].Level)
	assert.Equal(t, "search request received", logs.appended[0].Message)
	require.Equal(t, []string{id.String()}, queue.enqueuedIDs)
}

func TestJobService_Status_UnknownIDIsNotFoundNotError(t *testing.T) {
	ctx := context.Background()
	svc := newService(&fakeRepo{}, &fakeLogStore{}, &fakeResultStore{}, &fakeQueue{})

	view, err := svc.Status(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, view.Found)
	assert.Zero(t, view.Progress)
}

func TestJobService_Status_ReturnsProgressAndError(t *testing.T) {
	ctx := context.Background()
	errText := "upstream exploded"
	repo := &fakeRepo{
		job:  &entity.Job{Status: entity.StatusError, ErrorText: &errText},
		meta: &entity.JobMeta{Progress: 0.4, StatsJSON: json.RawMessage(`{"records":2}`)},
	}
	svc := newService(repo, &fakeLogStore{}, &fakeResultStore{}, &fakeQueue{})

	view, err := svc.Status(ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, view.Found)
	assert.Equal(t, entity.StatusError, view.Status)
	assert.InDelta(t, 0.4, view.Progress, 1e-9)
	assert.Equal(t, "upstream exploded", view.ErrorText)
	assert.JSONEq(t, `{"records":2}`, string(view.Stats))
}

func TestJobService_Logs_LimitClamped(t *testing.T) {
	ctx := context.Background()
	logs := &fakeLogStore{}
	svc := newService(&fakeRepo{}, logs, &fakeResultStore{}, &fakeQueue{})

	_, err := svc.Logs(ctx, uuid.New(), 0)
	require.NoError(t, err)
	assert.Equal(t, 200, logs.lastLimit)

	_, err = svc.Logs(ctx, uuid.New(), 5000)
	require.NoError(t, err)
	assert.Equal(t, 1000, logs.lastLimit)
}

func TestJobService_Results_PaginationCursorFlow(t *testing.T) {
	ctx := context.Background()
	jobID := uuid.New()
	results := &fakeResultStore{rows: []entity.ResultRow{
		{ID: 11, JobID: jobID, Entity: "permit_building", RowJSON: json.RawMessage(`{"n":1}`)},
		{ID: 12, JobID: jobID, Entity: "permit_building", RowJSON: json.RawMessage(`{"n":2}`)},
		{ID: 13, JobID: jobID, Entity: "permit_building", RowJSON: json.RawMessage(`{"n":3}`)},
	}}
	svc := newService(&fakeRepo{}, &fakeLogStore{}, results, &fakeQueue{})

	page, err := svc.Results(ctx, jobID, "permit_building", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, int64(11), page.Rows[0].ID)
	assert.Equal(t, int64(12), page.Rows[1].ID)
	require.Equal(t, service.EncodeCursor(12), page.NextCursor)

	page2, err := svc.Results(ctx, jobID, "permit_building", page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page2.Rows, 1)
	assert.Equal(t, int64(13), page2.Rows[0].ID)
	assert.Empty(t, page2.NextCursor, "short page means end of data")
}

func TestJobService_Results_BadCursorStartsOver(t *testing.T) {
	ctx := context.Background()
	jobID := uuid.New()
	results := &fakeResultStore{rows: []entity.ResultRow{
		{ID: 1, JobID: jobID, Entity: "permit_building", RowJSON: json.RawMessage(`{}`)},
	}}
	svc := newService(&fakeRepo{}, &fakeLogStore{}, results, &fakeQueue{})

	page, err := svc.Results(ctx, jobID, "permit_building", "!!!garbage!!!", 10)
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, int64(1), page.Rows[0].ID)
}

func TestJobService_Results_OtherEntityFiltered(t *testing.T) {
	ctx := context.Background()
	jobID := uuid.New()
	results := &fakeResultStore{rows: []entity.ResultRow{
		{ID: 1, JobID: jobID, Entity: "permit_building", RowJSON: json.RawMessage(`{}`)},
		{ID: 2, JobID: jobID, Entity: "insight", RowJSON: json.RawMessage(`{}`)},
	}}
	svc := newService(&fakeRepo{}, &fakeLogStore{}, results, &fakeQueue{})

	page, err := svc.Results(ctx, jobID, "insight", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, int64(2), page.Rows[0].ID)
}
