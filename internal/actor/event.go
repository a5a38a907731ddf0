package actor

import (
	"encoding/json"

	"searchjob-service/internal/entity"
)

type EventType string

const (
	EventLog      EventType = "log"
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventStatus   EventType = "status"
	EventSnapshot EventType = "snapshot"
)

// Event is one live-relay message. A superset struct instead of a type union:
// the zero fields are omitted on the wire.
type Event struct {
	Type  EventType `json:"type"`
	JobID string    `json:"request_id"`

	Level   entity.LogLevel `json:"level,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`

	Entity string `json:"entity,omitempty"`

	Progress float64         `json:"progress,omitempty"`
	Stats    json.RawMessage `json:"stats,omitempty"`

	Status    entity.JobStatus `json:"status,omitempty"`
	ErrorText string           `json:"error_text,omitempty"`
}
