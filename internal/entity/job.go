package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusReceived JobStatus = "received"
	StatusQueued   JobStatus = "queued"
	StatusRunning  JobStatus = "running"
	StatusComplete JobStatus = "complete"
	StatusError    JobStatus = "error"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// JobKind is the ingress channel a job arrived on.
type JobKind string

const (
	KindAPI JobKind = "api"
	KindRPC JobKind = "rpc"
	KindMCP JobKind = "mcp"
	KindWS  JobKind = "ws"
)

// Job is the immutable request envelope plus the actor-owned status fields.
// Rows are never deleted; status/errorText are only written by the owning actor
// (or by the ingress boundary for received->queued).
type Job struct {
	ID         uuid.UUID         `json:"id"`
	Kind       JobKind           `json:"kind"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Query      string            `json:"query"`
	Headers    map[string]string `json:"headers"`
	BodyText   string            `json:"body_text,omitempty"`
	ClientMeta json.RawMessage   `json:"client_meta,omitempty"`
	Status     JobStatus         `json:"status"`
	ErrorText  *string           `json:"error_text,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// JobMeta is the one-to-one progress/stats sidecar, upserted wholesale.
type JobMeta struct {
	JobID     uuid.UUID       `json:"job_id"`
	Progress  float64         `json:"progress"`
	StatsJSON json.RawMessage `json:"stats_json,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is one append-only log line for a job. The bigserial id defines the
// total order within the job.
type LogEntry struct {
	ID        int64           `json:"id"`
	JobID     uuid.UUID       `json:"job_id"`
	Level     LogLevel        `json:"level"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ResultRow is one append-only result row for a job+entity pair. The id is the
// keyset pagination key; it is global across jobs but pages are filtered by
// job+entity.
type ResultRow struct {
	ID           int64           `json:"id"`
	JobID        uuid.UUID       `json:"job_id"`
	Entity       string          `json:"entity"`
	Source       string          `json:"source,omitempty"`
	CanonicalKey string          `json:"canonical_key,omitempty"`
	RowJSON      json.RawMessage `json:"row"`
	CreatedAt    time.Time       `json:"created_at"`
}
