package entity

import "time"

// ProbeDefinition describes one dynamic HTTP health check, created over the
// API and keyed by its generated id. Built-in probes live in code and use
// their fixed name as the key.
type ProbeDefinition struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Target           string    `json:"target"`
	Method           string    `json:"method"`
	ExpectedStatus   int       `json:"expected_status"`
	FrequencySeconds int       `json:"frequency_seconds"`
	Criticality      string    `json:"criticality"`
	Enabled          bool      `json:"enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

// ProbeResult is one probe execution outcome. Every execution is recorded,
// pass or fail, independent of incident transitions.
type ProbeResult struct {
	ProbeKey   string    `json:"probe_key"`
	Name       string    `json:"name"`
	OK         bool      `json:"ok"`
	LatencyMs  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Incident tracks a run of consecutive probe failures. At most one active
// incident exists per probe key; count is frozen once resolved.
type Incident struct {
	ID         string     `json:"id"`
	ProbeKey   string     `json:"probe_key"`
	Name       string     `json:"name"`
	Active     bool       `json:"active"`
	Count      int        `json:"count"`
	LastError  string     `json:"last_error,omitempty"`
	OpenedAt   time.Time  `json:"opened_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
