package postgresql

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"searchjob-service/internal/entity"
)

// LogRepository is the append-only per-job log store. Entries are never
// updated or deleted; the bigserial id is the total order within a job.
type LogRepository struct {
	pool *pgxpool.Pool
}

func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

func (r *LogRepository) Append(ctx context.Context, jobID uuid.UUID, level entity.LogLevel, message string, data json.RawMessage) error {
	var dataArg any
	if len(data) > 0 {
		dataArg = []byte(data)
	}

	const q = `INSERT INTO job_logs (job_id, level, message, data) VALUES ($1, $2, $3, $4);`
	_, err := r.pool.Exec(ctx, q, jobID, string(level), message, dataArg)
	return err
}

// List returns up to limit entries for the job, oldest first.
func (r *LogRepository) List(ctx context.Context, jobID uuid.UUID, limit int) ([]entity.LogEntry, error) {
	const q = `
SELECT id, level, message, data, created_at
FROM job_logs
WHERE job_id = $1
ORDER BY id ASC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, q, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.LogEntry
	for rows.Next() {
		var (
			e         entity.LogEntry
			levelText string
			dataBytes []byte
		)
		if err := rows.Scan(&e.ID, &levelText, &e.Message, &dataBytes, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.JobID = jobID
		e.Level = entity.LogLevel(levelText)
		if dataBytes != nil {
			e.Data = json.RawMessage(dataBytes)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
