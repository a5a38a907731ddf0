package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"searchjob-service/internal/actor"
	"searchjob-service/internal/entity"
)

type JobRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
}

// Processor turns a claimed queue entry into an actor execution: load the
// envelope, resolve the single actor owning the id, hand it the payload.
type Processor struct {
	repo      JobRepo
	directory *actor.Directory
}

func NewProcessor(repo JobRepo, directory *actor.Directory) *Processor {
	return &Processor{repo: repo, directory: directory}
}

func (p *Processor) Process(ctx context.Context, jobID string) error {
	start := time.Now()

	id, err := uuid.Parse(jobID)
	if err != nil {
		log.Printf("[worker] job_id=%s parse_error=%v", jobID, err)
		return err
	}

	job, err := p.repo.GetByID(ctx, id)
	if err != nil {
		log.Printf("[worker] job_id=%s get_job error=%v", id.String(), err)
		return err
	}
	if job.Status.Terminal() {
		// Stale redelivery of a finished job.
		return nil
	}

	payload := buildPayload(job)

	a := p.directory.GetOrCreate(id)
	if err := a.Start(ctx, payload); err != nil {
		if errors.Is(err, actor.ErrAlreadyStarted) {
			// Duplicate delivery; the owning execution is already driving
			// this job.
			log.Printf("[worker] job_id=%s already started, skipping", id.String())
			return nil
		}
		log.Printf("[worker] job_id=%s start error=%v", id.String(), err)
		return err
	}

	log.Printf("[worker] job_id=%s kind=%s duration_ms=%d",
		id.String(), job.Kind, time.Since(start).Milliseconds(),
	)
	return nil
}

// buildPayload reconstructs the runner payload from the stored envelope. The
// ingress route decides the mode; the body keeps whatever mode it already
// carries.
func buildPayload(job *entity.Job) json.RawMessage {
	var payload map[string]any
	if job.BodyText != "" {
		if err := json.Unmarshal([]byte(job.BodyText), &payload); err != nil {
			return json.RawMessage(job.BodyText)
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload["mode"]; !ok && strings.HasSuffix(job.Path, "/analyze") {
		payload["mode"] = "analyze"
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return json.RawMessage(job.BodyText)
	}
	return out
}
