package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"searchjob-service/internal/entity"
)

var ErrNotFound = errors.New("not found")

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// Create inserts the job envelope with status 'received' together with its
// meta row at progress 0. Both rows go in one transaction so a job id never
// exists without a meta row.
func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	headers, err := json.Marshal(job.Headers)
	if err != nil {
		headers = []byte(`{}`)
	}
	clientMeta := job.ClientMeta
	if len(clientMeta) == 0 {
		clientMeta = json.RawMessage(`null`)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insertJob = `
INSERT INTO jobs (id, kind, method, path, query, headers, body_text, client_meta, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'received');
`
	if _, err := tx.Exec(ctx, insertJob,
		job.ID, string(job.Kind), job.Method, job.Path, job.Query,
		headers, job.BodyText, clientMeta,
	); err != nil {
		return err
	}

	const insertMeta = `INSERT INTO job_meta (job_id, progress) VALUES ($1, 0);`
	if _, err := tx.Exec(ctx, insertMeta, job.ID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	const q = `
SELECT id, kind, method, path, query, headers, body_text, client_meta, status, error_text, created_at, updated_at
FROM jobs
WHERE id = $1;
`

	var (
		job         entity.Job
		kindText    string
		statusText  string
		headerBytes []byte
		metaBytes   []byte
		bodyText    *string
		errText     *string
		createdAt   time.Time
		updatedAt   time.Time
	)

	if err := r.pool.QueryRow(ctx, q, id).Scan(
		&job.ID,
		&kindText,
		&job.Method,
		&job.Path,
		&job.Query,
		&headerBytes,
		&bodyText,
		&metaBytes,
		&statusText,
		&errText,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	job.Kind = entity.JobKind(kindText)
	job.Status = entity.JobStatus(statusText)
	if headerBytes != nil {
		_ = json.Unmarshal(headerBytes, &job.Headers)
	}
	if bodyText != nil {
		job.BodyText = *bodyText
	}
	if metaBytes != nil && string(metaBytes) != "null" {
		job.ClientMeta = json.RawMessage(metaBytes)
	}
	job.ErrorText = errText
	job.CreatedAt = createdAt
	job.UpdatedAt = updatedAt

	return &job, nil
}

// MarkQueued moves received -> queued at the ingress/queue hand-off.
func (r *JobRepository) MarkQueued(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE jobs SET status='queued', updated_at=now() WHERE id=$1 AND status='received';`

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRunning is the actor's claim on the job. The status guard makes the
// transition first-caller-wins: a second claim affects zero rows and gets
// ErrNotFound, which callers treat as "already started elsewhere".
func (r *JobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE jobs SET status='running', updated_at=now() WHERE id=$1 AND status IN ('received','queued');`

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *JobRepository) SetComplete(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE jobs SET status='complete', updated_at=now() WHERE id=$1 AND status='running';`

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetError records the failure text and moves the job to its terminal error
// state. Logs and results written before the failure are left untouched.
func (r *JobRepository) SetError(ctx context.Context, id uuid.UUID, errText string) error {
	const q = `UPDATE jobs SET status='error', error_text=$2, updated_at=now() WHERE id=$1 AND status IN ('received','queued','running');`

	tag, err := r.pool.Exec(ctx, q, id, errText)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertMeta replaces progress and the stats blob wholesale. Monotonic
// progress is the caller's responsibility; the store does not enforce it.
func (r *JobRepository) UpsertMeta(ctx context.Context, id uuid.UUID, progress float64, stats json.RawMessage) error {
	var statsArg any
	if len(stats) > 0 {
		statsArg = []byte(stats)
	}

	const q = `
INSERT INTO job_meta (job_id, progress, stats_json, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (job_id)
DO UPDATE SET progress=EXCLUDED.progress, stats_json=EXCLUDED.stats_json, updated_at=now();
`
	_, err := r.pool.Exec(ctx, q, id, progress, statsArg)
	return err
}

// GetStatusWithMeta joins the job row with its meta sidecar for the status
// read path.
func (r *JobRepository) GetStatusWithMeta(ctx context.Context, id uuid.UUID) (*entity.Job, *entity.JobMeta, error) {
	const q = `
SELECT j.status, j.error_text, m.progress, m.stats_json, m.updated_at
FROM jobs j
LEFT JOIN job_meta m ON m.job_id = j.id
WHERE j.id = $1;
`

	var (
		statusText string
		errText    *string
		progress   *float64
		statsBytes []byte
		updatedAt  *time.Time
	)

	if err := r.pool.QueryRow(ctx, q, id).Scan(&statusText, &errText, &progress, &statsBytes, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	job := &entity.Job{ID: id, Status: entity.JobStatus(statusText), ErrorText: errText}
	meta := &entity.JobMeta{JobID: id}
	if progress != nil {
		meta.Progress = *progress
	}
	if statsBytes != nil {
		meta.StatsJSON = json.RawMessage(statsBytes)
	}
	if updatedAt != nil {
		meta.UpdatedAt = *updatedAt
	}
	return job, meta, nil
}
