// Package health runs the periodic probe set and the incident automaton over
// its outcomes. Probes and incidents are fully independent of job actors.
package health

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"searchjob-service/internal/entity"
)

// Store is the KV port for probe definitions, probe history and incidents.
type Store interface {
	IncidentStore
	SaveDefinition(ctx context.Context, def entity.ProbeDefinition) error
	ListDefinitions(ctx context.Context) ([]entity.ProbeDefinition, error)
	RecordResult(ctx context.Context, res entity.ProbeResult) error
	History(ctx context.Context, limit int) ([]entity.ProbeResult, error)
	ListIncidents(ctx context.Context, activeOnly bool) ([]entity.Incident, error)
}

// BuiltinProbe is an in-code check (database ping, redis ping). Its key is its
// fixed name.
type BuiltinProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Outcome is the per-probe entry of a RunAll report.
type Outcome struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

type Service struct {
	store     Store
	automaton *Automaton
	builtins  []BuiltinProbe
	client    *http.Client
	timeout   time.Duration
}

func NewService(store Store, builtins []BuiltinProbe, probeTimeout time.Duration) *Service {
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}
	return &Service{
		store:     store,
		automaton: NewAutomaton(store),
		builtins:  builtins,
		client:    &http.Client{Timeout: probeTimeout},
		timeout:   probeTimeout,
	}
}

// RunAll executes one scheduling tick: every builtin plus every enabled
// dynamic definition, in parallel, each under its own timeout. A failing or
// timed-out probe is a FAIL outcome, never an error from RunAll; failures in
// one probe never block the rest of the tick.
func (s *Service) RunAll(ctx context.Context) map[string]Outcome {
	type task struct {
		key  string
		name string
		run  func(ctx context.Context) (int, error)
	}

	tasks := make([]task, 0, len(s.builtins))
	for _, b := range s.builtins {
		b := b
		tasks = append(tasks, task{
			key:  b.Name,
			name: b.Name,
			run: func(ctx context.Context) (int, error) {
				return 0, b.Check(ctx)
			},
		})
	}

	defs, err := s.store.ListDefinitions(ctx)
	if err != nil {
		// Builtins still run when the definition store is down.
		log.Printf("[health] list_definitions failed: %v", err)
	}
	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		def := def
		tasks = append(tasks, task{
			key:  def.ID,
			name: def.Name,
			run: func(ctx context.Context) (int, error) {
				return s.httpProbe(ctx, def)
			},
		})
	}

	var (
		mu      sync.Mutex
		results = make(map[string]Outcome, len(tasks))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			out := s.execute(gctx, t.key, t.name, t.run)
			mu.Lock()
			results[t.name] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// execute runs one probe, records the result row and feeds the automaton.
// Recording is best effort; a broken store never fails the tick.
func (s *Service) execute(ctx context.Context, key, name string, run func(ctx context.Context) (int, error)) Outcome {
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	statusCode, err := run(probeCtx)
	latency := time.Since(start).Milliseconds()

	out := Outcome{Status: StatusPass, LatencyMs: latency}
	if err != nil {
		out = Outcome{Status: StatusFail, LatencyMs: latency, Error: err.Error()}
	}

	res := entity.ProbeResult{
		ProbeKey:   key,
		Name:       name,
		OK:         err == nil,
		LatencyMs:  latency,
		Error:      out.Error,
		StatusCode: statusCode,
		CreatedAt:  time.Now().UTC(),
	}
	if recErr := s.store.RecordResult(ctx, res); recErr != nil {
		log.Printf("[health] probe=%s record_result failed: %v", name, recErr)
	}
	if incErr := s.automaton.Observe(ctx, key, name, res); incErr != nil {
		log.Printf("[health] probe=%s incident_update failed: %v", name, incErr)
	}

	return out
}

func (s *Service) httpProbe(ctx context.Context, def entity.ProbeDefinition) (int, error) {
	method := def.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, def.Target, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	expected := def.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}
	if resp.StatusCode != expected {
		return resp.StatusCode, fmt.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Incidents lists incidents newest-opened first.
func (s *Service) Incidents(ctx context.Context, activeOnly bool) ([]entity.Incident, error) {
	incidents, err := s.store.ListIncidents(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	sort.Slice(incidents, func(i, j int) bool {
		return incidents[i].OpenedAt.After(incidents[j].OpenedAt)
	})
	return incidents, nil
}

// History returns the most recent probe executions, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]entity.ProbeResult, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.History(ctx, limit)
}

// CreateDefinition registers a dynamic HTTP probe; its generated id is the
// stable incident key for the probe's whole lifetime.
func (s *Service) CreateDefinition(ctx context.Context, def entity.ProbeDefinition) (entity.ProbeDefinition, error) {
	if def.Name == "" {
		return entity.ProbeDefinition{}, fmt.Errorf("name is required")
	}
	if def.Target == "" {
		return entity.ProbeDefinition{}, fmt.Errorf("target is required")
	}
	if def.Method == "" {
		def.Method = http.MethodGet
	}
	if def.ExpectedStatus == 0 {
		def.ExpectedStatus = http.StatusOK
	}
	if def.FrequencySeconds == 0 {
		def.FrequencySeconds = 60
	}
	if def.Criticality == "" {
		def.Criticality = "medium"
	}
	def.ID = uuid.NewString()
	def.Enabled = true
	def.CreatedAt = time.Now().UTC()

	if err := s.store.SaveDefinition(ctx, def); err != nil {
		return entity.ProbeDefinition{}, err
	}
	return def, nil
}

func (s *Service) Definitions(ctx context.Context) ([]entity.ProbeDefinition, error) {
	return s.store.ListDefinitions(ctx)
}
