package httptransport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"searchjob-service/internal/actor"
	"searchjob-service/internal/entity"
	"searchjob-service/internal/health"
	"searchjob-service/internal/repository/postgresql"
	"searchjob-service/internal/service"
	httptransport "searchjob-service/internal/transport/http"
)

// ---- fakes ----

// backend is one in-memory stand-in behind all the service ports the router
// needs: job rows, logs, results, the queue and the actor stores.
type backend struct {
	mu sync.Mutex

	jobs    map[uuid.UUID]*entity.Job
	metas   map[uuid.UUID]*entity.JobMeta
	logs    map[uuid.UUID][]entity.LogEntry
	results map[uuid.UUID][]entity.ResultRow

	nextRowID int64
	enqueued  []string
}

func newBackend() *backend {
	return &backend{
		jobs:    map[uuid.UUID]*entity.Job{},
		metas:   map[uuid.UUID]*entity.JobMeta{},
		logs:    map[uuid.UUID][]entity.LogEntry{},
		results: map[uuid.UUID][]entity.ResultRow{},
	}
}

func (b *backend) Create(ctx context.Context, job *entity.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs[job.ID] = job
	b.metas[job.ID] = &entity.JobMeta{JobID: job.ID}
	return nil
}

func (b *backend) MarkQueued(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if job, ok := b.jobs[id]; ok {
		job.Status = entity.StatusQueued
	}
	return nil
}

func (b *backend) GetStatusWithMeta(ctx context.Context, id uuid.UUID) (*entity.Job, *entity.JobMeta, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[id]
	if !ok {
		return nil, nil, postgresql.ErrNotFound
	}
	return job, b.metas[id], nil
}

func (b *backend) MarkRunning(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[id]
	if !ok || job.Status.Terminal() || job.Status == entity.StatusRunning {
		return postgresql.ErrNotFound
	}
	job.Status = entity.StatusRunning
	return nil
}

func (b *backend) SetComplete(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if job, ok := b.jobs[id]; ok {
		job.Status = entity.StatusComplete
	}
	return nil
}

func (b *backend) SetError(ctx context.Context, id uuid.UUID, errText string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if job, ok := b.jobs[id]; ok {
		job.Status = entity.StatusError
		job.ErrorText = &errText
	}
	return nil
}

func (b *backend) UpsertMeta(ctx context.Context, id uuid.UUID, progress float64, stats json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metas[id] = &entity.JobMeta{JobID: id, Progress: progress, StatsJSON: stats}
	return nil
}

func (b *backend) Append(ctx context.Context, jobID uuid.UUID, level entity.LogLevel, message string, data json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs[jobID] = append(b.logs[jobID], entity.LogEntry{
		JobID: jobID, Level: level, Message: message, Data: data, CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (b *backend) List(ctx context.Context, jobID uuid.UUID, limit int) ([]entity.LogEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.logs[jobID]
	if limit < len(entries) {
		entries = entries[:limit]
	}
	return append([]entity.LogEntry(nil), entries...), nil
}

func (b *backend) Insert(ctx context.Context, jobID uuid.UUID, entityName string, row json.RawMessage, source, canonicalKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextRowID++
	b.results[jobID] = append(b.results[jobID], entity.ResultRow{
		ID: b.nextRowID, JobID: jobID, Entity: entityName, RowJSON: row, Source: source, CanonicalKey: canonicalKey,
	})
	return nil
}

func (b *backend) Page(ctx context.Context, jobID uuid.UUID, entityName string, afterID int64, limit int) ([]entity.ResultRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []entity.ResultRow
	for _, row := range b.results[jobID] {
		if row.Entity != entityName || row.ID <= afterID {
			continue
		}
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (b *backend) Enqueue(ctx context.Context, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enqueued = append(b.enqueued, jobID)
	return nil
}

type funcRunner struct {
	fn func(ctx context.Context, jobID uuid.UUID, payload json.RawMessage, em *actor.Emitter) (json.RawMessage, error)
}

func (r *funcRunner) Run(ctx context.Context, jobID uuid.UUID, payload json.RawMessage, em *actor.Emitter) (json.RawMessage, error) {
	return r.fn(ctx, jobID, payload, em)
}

type testRig struct {
	backend   *backend
	directory *actor.Directory
	router    http.Handler
}

func newRig(t *testing.T, runner actor.Runner) *testRig {
	t.Helper()
	if runner == nil {
		runner = &funcRunner{fn: func(ctx context.Context, jobID uuid.UUID, payload json.RawMessage, em *actor.Emitter) (json.RawMessage, error) {
			return nil, nil
		}}
	}

	b := newBackend()
	jobSvc := service.NewJobService(b, b, b, b)
	directory := actor.NewDirectory(actor.Stores{Jobs: b, Logs: b, Results: b}, runner)
	healthSvc := health.NewService(&kvStub{}, nil, time.Second)

	return &testRig{
		backend:   b,
		directory: directory,
		router: httptransport.Routes(
			httptransport.NewHandler(jobSvc, ""),
			httptransport.NewLiveHandler(jobSvc, directory),
			httptransport.NewHealthHandler(healthSvc),
		),
	}
}

func (rig *testRig) do(method, target, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body == "" {
		reader = &bytes.Buffer{}
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	rig.router.ServeHTTP(rr, req)
	return rr
}

// kvStub is a minimal health.Store for routing tests.
type kvStub struct {
	mu     sync.Mutex
	defs   []entity.ProbeDefinition
	active map[string]*entity.Incident
}

func (s *kvStub) GetActiveIncident(ctx context.Context, probeKey string) (*entity.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, nil
	}
	return s.active[probeKey], nil
}

func (s *kvStub) SaveActiveIncident(ctx context.Context, inc *entity.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		s.active = map[string]*entity.Incident{}
	}
	s.active[inc.ProbeKey] = inc
	return nil
}

func (s *kvStub) CloseIncident(ctx context.Context, inc *entity.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, inc.ProbeKey)
	return nil
}

func (s *kvStub) SaveDefinition(ctx context.Context, def entity.ProbeDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append(s.defs, def)
	return nil
}

func (s *kvStub) ListDefinitions(ctx context.Context) ([]entity.ProbeDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.ProbeDefinition(nil), s.defs...), nil
}

func (s *kvStub) RecordResult(ctx context.Context, res entity.ProbeResult) error { return nil }

func (s *kvStub) History(ctx context.Context, limit int) ([]entity.ProbeResult, error) {
	return nil, nil
}

func (s *kvStub) ListIncidents(ctx context.Context, activeOnly bool) ([]entity.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Incident
	for _, inc := range s.active {
		out = append(out, *inc)
	}
	return out, nil
}

// ---- tests ----

func TestHTTP_StartSearch_QueuesAndReturnsURLs(t *testing.T) {
	rig := newRig(t, nil)

	rr := rig.do(http.MethodPost, "/v1/search", `{"query":"240 Lombard St, San Francisco"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		RequestID  string `json:"request_id"`
		Status     string `json:"status"`
		StatusURL  string `json:"status_url"`
		LogsURL    string `json:"logs_url"`
		ResultsURL string `json:"results_url"`
		LiveURL    string `json:"live_url"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	id, err := uuid.Parse(resp.RequestID)
	require.NoError(t, err)
	assert.Equal(t, id.String(), rr.Header().Get("X-Request-Id"))
	assert.Equal(t, "queued", resp.Status)
	assert.Contains(t, resp.StatusURL, "/v1/requests/"+id.String())
	assert.Contains(t, resp.LiveURL, "/live")

	// The envelope row exists at queued and the id is on the queue.
	job := rig.backend.jobs[id]
	require.NotNil(t, job)
	assert.Equal(t, entity.StatusQueued, job.Status)
	assert.Equal(t, "/v1/search", job.Path)
	assert.Equal(t, `{"query":"240 Lombard St, San Francisco"}`, job.BodyText)
	assert.Equal(t, []string{id.String()}, rig.backend.enqueued)

	// Intake log line is already visible to pollers.
	require.Len(t, rig.backend.logs[id], 1)
	assert.Equal(t, "search request received", rig.backend.logs[id][0].Message)
}

func TestHTTP_StartJob_InvalidJSONRejectedBeforeCreate(t *testing.T) {
	rig := newRig(t, nil)

	rr := rig.do(http.MethodPost, "/v1/search", `{"query": oops`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, rig.backend.jobs)
	assert.Empty(t, rig.backend.enqueued)
}

func TestHTTP_StartAnalysis_EmptyBodyAccepted(t *testing.T) {
	rig := newRig(t, nil)

	rr := rig.do(http.MethodPost, "/v1/analyze", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, rig.backend.enqueued, 1)
}

func TestHTTP_GetStatus_UnknownIs200NotFound(t *testing.T) {
	rig := newRig(t, nil)

	rr := rig.do(http.MethodGet, "/v1/requests/"+uuid.NewString(), "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Status)
}

func TestHTTP_GetStatus_BadIDIs400(t *testing.T) {
	rig := newRig(t, nil)

	rr := rig.do(http.MethodGet, "/v1/requests/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHTTP_GetLogs_ReturnsEntriesOldestFirst(t *testing.T) {
	rig := newRig(t, nil)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, rig.backend.Append(ctx, id, entity.LevelInfo, "first", nil))
	require.NoError(t, rig.backend.Append(ctx, id, entity.LevelWarn, "second", nil))

	rr := rig.do(http.MethodGet, "/v1/requests/"+id.String()+"/logs", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Logs []struct {
			Level   string `json:"level"`
			Message string `json:"message"`
		} `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Logs, 2)
	assert.Equal(t, "first", resp.Logs[0].Message)
	assert.Equal(t, "warn", resp.Logs[1].Level)
}

func TestHTTP_GetResults_CursorFlow(t *testing.T) {
	rig := newRig(t, nil)
	ctx := context.Background()
	id := uuid.New()
	for _, n := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		require.NoError(t, rig.backend.Insert(ctx, id, "permit_building", json.RawMessage(n), "", ""))
	}

	rr := rig.do(http.MethodGet, "/v1/requests/"+id.String()+"/results?limit=2", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var page1 struct {
		Entity string `json:"entity"`
		Page   struct {
			Limit      int     `json:"limit"`
			NextCursor *string `json:"next_cursor"`
		} `json:"page"`
		Rows []json.RawMessage `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page1))
	assert.Equal(t, "permit_building", page1.Entity, "entity defaults when omitted")
	assert.Equal(t, 2, page1.Page.Limit)
	require.Len(t, page1.Rows, 2)
	require.NotNil(t, page1.Page.NextCursor)

	rr = rig.do(http.MethodGet, "/v1/requests/"+id.String()+"/results?limit=2&cursor="+*page1.Page.NextCursor, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var page2 struct {
		Page struct {
			NextCursor *string `json:"next_cursor"`
		} `json:"page"`
		Rows []json.RawMessage `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page2))
	require.Len(t, page2.Rows, 1)
	assert.JSONEq(t, `{"n":3}`, string(page2.Rows[0]))
	assert.Nil(t, page2.Page.NextCursor, "short page ends pagination")
}

func TestHTTP_Live_UnknownJobGetsSnapshotAndCloses(t *testing.T) {
	rig := newRig(t, nil)

	rr := rig.do(http.MethodGet, "/v1/requests/"+uuid.NewString()+"/live", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

	body := rr.Body.String()
	assert.Contains(t, body, "event: snapshot")
	assert.Contains(t, body, `"status":"not_found"`)
}

func TestHTTP_Live_StreamsUntilTerminal(t *testing.T) {
	gate := make(chan struct{})
	runner := &funcRunner{fn: func(ctx context.Context, jobID uuid.UUID, payload json.RawMessage, em *actor.Emitter) (json.RawMessage, error) {
		<-gate
		em.Log(entity.LevelInfo, "live hello", nil)
		em.Progress(0.5, nil)
		return json.RawMessage(`{"records":0}`), nil
	}}
	rig := newRig(t, runner)

	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, rig.backend.Create(ctx, &entity.Job{ID: id, Status: entity.StatusQueued}))

	a := rig.directory.GetOrCreate(id)
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(gate)
	}()
	go func() {
		_ = a.Start(ctx, nil)
	}()

	// ServeHTTP blocks until the stream ends at the terminal status event.
	rr := rig.do(http.MethodGet, "/v1/requests/"+id.String()+"/live", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, "event: log")
	assert.Contains(t, body, "live hello")
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, `"status":"complete"`)

	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	assert.Contains(t, frames[len(frames)-1], "event: status", "terminal status is the last frame")
}

func TestHTTP_HealthEndpoints(t *testing.T) {
	rig := newRig(t, nil)

	rr := rig.do(http.MethodPost, "/v1/health/tests", `{"name":"front page","target":"http://127.0.0.1:1/health"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created struct {
		Test entity.ProbeDefinition `json:"test"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Test.ID)
	assert.Equal(t, 200, created.Test.ExpectedStatus)

	rr = rig.do(http.MethodGet, "/v1/health/tests", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), created.Test.ID)

	rr = rig.do(http.MethodPost, "/v1/health/tests", `{"name":"no target"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = rig.do(http.MethodGet, "/v1/health/incidents", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"incidents":[]}`, rr.Body.String())

	rr = rig.do(http.MethodGet, "/v1/health/history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"history":[]}`, rr.Body.String())
}
