package postgresql

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"searchjob-service/internal/entity"
)

// ResultRepository is the append-only result store. The bigserial id doubles
// as the keyset pagination cursor; the sequence is global across jobs but
// pages are always filtered by job+entity, so gaps within a page are normal.
type ResultRepository struct {
	pool *pgxpool.Pool
}

func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

func (r *ResultRepository) Insert(ctx context.Context, jobID uuid.UUID, entityName string, row json.RawMessage, source, canonicalKey string) error {
	if len(row) == 0 {
		row = json.RawMessage(`{}`)
	}

	var sourceArg, keyArg any
	if source != "" {
		sourceArg = source
	}
	if canonicalKey != "" {
		keyArg = canonicalKey
	}

	const q = `
INSERT INTO job_results (job_id, entity, source, canonical_key, row_json)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := r.pool.Exec(ctx, q, jobID, entityName, sourceArg, keyArg, []byte(row))
	return err
}

// Page returns up to limit rows with id > afterID, ascending.
func (r *ResultRepository) Page(ctx context.Context, jobID uuid.UUID, entityName string, afterID int64, limit int) ([]entity.ResultRow, error) {
	const q = `
SELECT id, source, canonical_key, row_json, created_at
FROM job_results
WHERE job_id = $1 AND entity = $2 AND id > $3
ORDER BY id ASC
LIMIT $4;
`
	rows, err := r.pool.Query(ctx, q, jobID, entityName, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.ResultRow
	for rows.Next() {
		var (
			row      entity.ResultRow
			source   *string
			key      *string
			rowBytes []byte
		)
		if err := rows.Scan(&row.ID, &source, &key, &rowBytes, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.JobID = jobID
		row.Entity = entityName
		if source != nil {
			row.Source = *source
		}
		if key != nil {
			row.CanonicalKey = *key
		}
		row.RowJSON = json.RawMessage(rowBytes)
		out = append(out, row)
	}
	return out, rows.Err()
}
