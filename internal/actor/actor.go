// Package actor hosts the per-job orchestration: a Directory resolving each
// job id to exactly one Actor, and the Actor driving that job's state machine
// while relaying live events to subscribers.
package actor

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"searchjob-service/internal/entity"
	"searchjob-service/internal/repository/postgresql"
)

// ErrAlreadyStarted means another caller won the claim on this job. Duplicate
// queue deliveries land here and are a clean no-op for the caller.
var ErrAlreadyStarted = errors.New("job already started")

// JobStore is the slice of the job registry the actor writes.
type JobStore interface {
	MarkRunning(ctx context.Context, id uuid.UUID) error
	SetComplete(ctx context.Context, id uuid.UUID) error
	SetError(ctx context.Context, id uuid.UUID, errText string) error
	UpsertMeta(ctx context.Context, id uuid.UUID, progress float64, stats json.RawMessage) error
}

type LogStore interface {
	Append(ctx context.Context, jobID uuid.UUID, level entity.LogLevel, message string, data json.RawMessage) error
}

type ResultStore interface {
	Insert(ctx context.Context, jobID uuid.UUID, entityName string, row json.RawMessage, source, canonicalKey string) error
}

// Runner is the domain-logic port: fetching records, classification, narrative
// generation. It reports work through the Emitter and returns the final stats
// blob for the job.
type Runner interface {
	Run(ctx context.Context, jobID uuid.UUID, payload json.RawMessage, em *Emitter) (json.RawMessage, error)
}

// Stores bundles the durable dependencies shared by all actors.
type Stores struct {
	Jobs    JobStore
	Logs    LogStore
	Results ResultStore
}

const subscriberBuffer = 64

// Actor owns one job. All writes to the job's rows are issued sequentially
// from Start; there is never a second concurrent execution for the same id.
type Actor struct {
	id     uuid.UUID
	stores Stores
	runner Runner

	mu       sync.Mutex
	started  bool
	terminal *Event
	subs     map[chan Event]struct{}
}

func newActor(id uuid.UUID, stores Stores, runner Runner) *Actor {
	return &Actor{
		id:     id,
		stores: stores,
		runner: runner,
		subs:   map[chan Event]struct{}{},
	}
}

func (a *Actor) ID() uuid.UUID { return a.id }

// Start drives the job to a terminal state. The first caller wins; later
// calls return ErrAlreadyStarted. The in-memory flag covers races inside this
// process, the conditional status update covers duplicate deliveries after a
// restart.
func (a *Actor) Start(ctx context.Context, payload json.RawMessage) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	if err := a.stores.Jobs.MarkRunning(ctx, a.id); err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			return ErrAlreadyStarted
		}
		return err
	}
	a.publish(Event{Type: EventStatus, JobID: a.id.String(), Status: entity.StatusRunning})

	em := &Emitter{actor: a, ctx: ctx}
	stats, runErr := a.runner.Run(ctx, a.id, payload, em)

	if runErr != nil {
		// Partial-failure semantics: keep everything written so far, record
		// the failure, terminate.
		if err := a.stores.Jobs.SetError(ctx, a.id, runErr.Error()); err != nil {
			log.Printf("[actor] job_id=%s set_error failed: %v", a.id, err)
		}
		a.finish(Event{Type: EventStatus, JobID: a.id.String(), Status: entity.StatusError, ErrorText: runErr.Error()})
		return nil
	}

	if err := a.stores.Jobs.UpsertMeta(ctx, a.id, 1.0, stats); err != nil {
		log.Printf("[actor] job_id=%s final_meta failed: %v", a.id, err)
	}
	if err := a.stores.Jobs.SetComplete(ctx, a.id); err != nil {
		log.Printf("[actor] job_id=%s set_complete failed: %v", a.id, err)
	}
	a.finish(Event{Type: EventStatus, JobID: a.id.String(), Status: entity.StatusComplete, Progress: 1.0, Stats: stats})
	return nil
}

// Subscribe attaches a live viewer. ok=false means the actor already reached
// a terminal state (or never ran); the caller should fall back to a stores
// snapshot. The channel is closed when the job terminates.
func (a *Actor) Subscribe() (<-chan Event, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.terminal != nil {
		return nil, false
	}
	ch := make(chan Event, subscriberBuffer)
	a.subs[ch] = struct{}{}
	return ch, true
}

// Unsubscribe detaches a viewer channel. The job keeps running regardless.
func (a *Actor) Unsubscribe(ch <-chan Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for sub := range a.subs {
		if sub == ch {
			delete(a.subs, sub)
			close(sub)
			return
		}
	}
}

// Terminal returns the final status event once the job has finished.
func (a *Actor) Terminal() (Event, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.terminal == nil {
		return Event{}, false
	}
	return *a.terminal, true
}

// publish fans an event out to subscribers. Slow viewers lose events rather
// than stall the actor.
func (a *Actor) publish(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for sub := range a.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

// finish delivers the terminal event and closes every subscriber channel.
func (a *Actor) finish(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.terminal = &ev
	for sub := range a.subs {
		select {
		case sub <- ev:
		default:
		}
		close(sub)
		delete(a.subs, sub)
	}
}

// Emitter is handed to the Runner; every call persists first, then publishes
// to live subscribers, so the polling endpoints never trail the push channel.
// Store failures are logged and skipped: a flaky store write must not kill
// the job.
type Emitter struct {
	actor *Actor
	ctx   context.Context

	lastProgress float64
}

func (em *Emitter) Log(level entity.LogLevel, message string, data json.RawMessage) {
	a := em.actor
	if err := a.stores.Logs.Append(em.ctx, a.id, level, message, data); err != nil {
		log.Printf("[actor] job_id=%s log_append failed: %v", a.id, err)
	}
	a.publish(Event{Type: EventLog, JobID: a.id.String(), Level: level, Message: message, Data: data})
}

func (em *Emitter) Result(entityName string, row json.RawMessage, source, canonicalKey string) {
	a := em.actor
	if err := a.stores.Results.Insert(em.ctx, a.id, entityName, row, source, canonicalKey); err != nil {
		log.Printf("[actor] job_id=%s result_insert failed: %v", a.id, err)
	}
	a.publish(Event{Type: EventResult, JobID: a.id.String(), Entity: entityName, Data: row})
}

// Progress upserts the meta sidecar. Regressing values are clamped to the
// last reported progress; runners are expected to only move forward.
func (em *Emitter) Progress(progress float64, stats json.RawMessage) {
	if progress < em.lastProgress {
		progress = em.lastProgress
	}
	if progress > 1.0 {
		progress = 1.0
	}
	em.lastProgress = progress

	a := em.actor
	if err := a.stores.Jobs.UpsertMeta(em.ctx, a.id, progress, stats); err != nil {
		log.Printf("[actor] job_id=%s meta_upsert failed: %v", a.id, err)
	}
	a.publish(Event{Type: EventProgress, JobID: a.id.String(), Progress: progress, Stats: stats})
}
