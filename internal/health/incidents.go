package health

import (
	"context"
	"time"

	"github.com/google/uuid"

	"searchjob-service/internal/entity"
)

// IncidentStore is the KV side of incident tracking (implementation:
// rediskv.HealthStore).
type IncidentStore interface {
	GetActiveIncident(ctx context.Context, probeKey string) (*entity.Incident, error)
	SaveActiveIncident(ctx context.Context, inc *entity.Incident) error
	CloseIncident(ctx context.Context, inc *entity.Incident) error
}

// Automaton derives incidents from a stream of probe outcomes. Incidents are
// keyed by a single stable probe key (definition id for dynamic probes, fixed
// name for built-ins); matching on id OR display name would conflate probes
// that happen to share a name.
type Automaton struct {
	store IncidentStore
	now   func() time.Time
}

func NewAutomaton(store IncidentStore) *Automaton {
	return &Automaton{store: store, now: time.Now}
}

// Observe applies one probe outcome:
//   - FAIL with an open incident: bump count, overwrite lastError.
//   - FAIL without one: open a new incident at count 1.
//   - PASS with an open incident: resolve it (count frozen).
//   - PASS without one: nothing.
//
// There is never more than one active incident per probe key.
func (a *Automaton) Observe(ctx context.Context, probeKey, name string, res entity.ProbeResult) error {
	active, err := a.store.GetActiveIncident(ctx, probeKey)
	if err != nil {
		return err
	}

	if !res.OK {
		if active != nil {
			active.Count++
			active.LastError = res.Error
			return a.store.SaveActiveIncident(ctx, active)
		}
		inc := &entity.Incident{
			ID:        uuid.NewString(),
			ProbeKey:  probeKey,
			Name:      name,
			Active:    true,
			Count:     1,
			LastError: res.Error,
			OpenedAt:  a.now().UTC(),
		}
		return a.store.SaveActiveIncident(ctx, inc)
	}

	if active == nil {
		return nil
	}
	resolvedAt := a.now().UTC()
	active.Active = false
	active.ResolvedAt = &resolvedAt
	return a.store.CloseIncident(ctx, active)
}
