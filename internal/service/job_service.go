package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"searchjob-service/internal/entity"
	"searchjob-service/internal/repository/postgresql"
)

const (
	defaultLogLimit    = 200
	maxLogLimit        = 1000
	defaultResultLimit = 100
	maxResultLimit     = 500
)

// Repository port (implementation: postgresql.JobRepository).
type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	MarkQueued(ctx context.Context, id uuid.UUID) error
	GetStatusWithMeta(ctx context.Context, id uuid.UUID) (*entity.Job, *entity.JobMeta, error)
}

type LogStore interface {
	Append(ctx context.Context, jobID uuid.UUID, level entity.LogLevel, message string, data json.RawMessage) error
	List(ctx context.Context, jobID uuid.UUID, limit int) ([]entity.LogEntry, error)
}

type ResultStore interface {
	Page(ctx context.Context, jobID uuid.UUID, entityName string, afterID int64, limit int) ([]entity.ResultRow, error)
}

// Small queue port for the ingress side only (Claim/Ack live with the worker).
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
}

type JobService struct {
	repo    JobRepository
	logs    LogStore
	results ResultStore
	queue   JobQueue
}

func NewJobService(repo JobRepository, logs LogStore, results ResultStore, queue JobQueue) *JobService {
	return &JobService{repo: repo, logs: logs, results: results, queue: queue}
}

// CreateJobRequest is the request envelope captured at the ingress boundary.
type CreateJobRequest struct {
	Kind       entity.JobKind
	Method     string
	Path       string
	Query      string
	Headers    map[string]string
	BodyText   string
	ClientMeta json.RawMessage
}

// CreateJob assigns the job id and persists the envelope at status 'received'.
func (s *JobService) CreateJob(ctx context.Context, req CreateJobRequest) (uuid.UUID, error) {
	if req.Kind == "" {
		req.Kind = entity.KindAPI
	}

	job := &entity.Job{
		ID:         uuid.New(),
		Kind:       req.Kind,
		Method:     req.Method,
		Path:       req.Path,
		Query:      req.Query,
		Headers:    req.Headers,
		BodyText:   req.BodyText,
		ClientMeta: req.ClientMeta,
		Status:     entity.StatusReceived,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return uuid.Nil, err
	}
	return job.ID, nil
}

// QueueJob hands the job to the queue: received -> queued, intake log line,
// then the Redis push the worker pool claims from.
func (s *JobService) QueueJob(ctx context.Context, id uuid.UUID, intakeMessage string, payload json.RawMessage) error {
	if err := s.repo.MarkQueued(ctx, id); err != nil {
		return err
	}
	// Intake log is best effort; the job must still reach the queue.
	_ = s.logs.Append(ctx, id, entity.LevelInfo, intakeMessage, payload)
	return s.queue.Enqueue(ctx, id.String())
}

// StatusView is the polling status payload. Found=false means the job id is
// unknown; callers render a not_found status instead of failing.
type StatusView struct {
	JobID     uuid.UUID
	Found     bool
	Status    entity.JobStatus
	Progress  float64
	Stats     json.RawMessage
	ErrorText string
}

func (s *JobService) Status(ctx context.Context, id uuid.UUID) (StatusView, error) {
	job, meta, err := s.repo.GetStatusWithMeta(ctx, id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			return StatusView{JobID: id, Found: false}, nil
		}
		return StatusView{}, err
	}

	view := StatusView{
		JobID:    id,
		Found:    true,
		Status:   job.Status,
		Progress: meta.Progress,
		Stats:    meta.StatsJSON,
	}
	if job.ErrorText != nil {
		view.ErrorText = *job.ErrorText
	}
	return view, nil
}

// Logs returns up to limit entries, oldest first. Unknown ids come back empty.
func (s *JobService) Logs(ctx context.Context, id uuid.UUID, limit int) ([]entity.LogEntry, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	return s.logs.List(ctx, id, limit)
}

// ResultsPage is one keyset page plus the opaque cursor for the next one.
// NextCursor is empty when the page was short (end of data).
type ResultsPage struct {
	Rows       []entity.ResultRow
	Limit      int
	NextCursor string
}

func (s *JobService) Results(ctx context.Context, id uuid.UUID, entityName, cursor string, limit int) (ResultsPage, error) {
	if limit <= 0 {
		limit = defaultResultLimit
	}
	if limit > maxResultLimit {
		limit = maxResultLimit
	}

	afterID, ok := DecodeCursor(cursor)
	if !ok {
		afterID = 0
	}

	rows, err := s.results.Page(ctx, id, entityName, afterID, limit)
	if err != nil {
		return ResultsPage{}, err
	}

	page := ResultsPage{Rows: rows, Limit: limit}
	if len(rows) == limit && limit > 0 {
		page.NextCursor = EncodeCursor(rows[len(rows)-1].ID)
	}
	return page, nil
}
