package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"searchjob-service/internal/entity"
)

// SearchRunner is the built-in placeholder for the search/analysis pipeline.
// The real pipeline (source fetch, LLM classification, narrative generation)
// plugs in behind the Runner port; this stub exercises the same emitter
// contract: a log line per step, result rows per record, forward-only
// progress, final stats.
type SearchRunner struct {
	// StepDelay simulates the slow external sources. Zero disables waiting.
	StepDelay time.Duration
}

type searchPayload struct {
	Mode  string `json:"mode"`
	Query string `json:"query"`
}

const defaultEntity = "permit_building"

func (r *SearchRunner) Run(ctx context.Context, jobID uuid.UUID, payload json.RawMessage, em *Emitter) (json.RawMessage, error) {
	var p searchPayload
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &p)
	}
	if p.Mode == "" {
		p.Mode = "search"
	}

	em.Log(entity.LevelInfo, p.Mode+" started", payload)

	steps := []string{"fetching records", "classifying records", "generating narrative"}
	for i, step := range steps {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		em.Log(entity.LevelInfo, step, nil)

		if i == 0 {
			for n := 1; n <= 3; n++ {
				row, _ := json.Marshal(map[string]any{
					"query":  p.Query,
					"record": fmt.Sprintf("stub-record-%d", n),
				})
				em.Result(defaultEntity, row, "stub_source", fmt.Sprintf("%s:%d", jobID, n))
			}
		}

		em.Progress(float64(i+1)/float64(len(steps)+1), nil)
	}

	em.Log(entity.LevelInfo, p.Mode+" complete", nil)

	stats, _ := json.Marshal(map[string]any{
		"mode":    p.Mode,
		"query":   p.Query,
		"records": 3,
	})
	return stats, nil
}

func (r *SearchRunner) wait(ctx context.Context) error {
	if r.StepDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.StepDelay):
		return nil
	}
}
