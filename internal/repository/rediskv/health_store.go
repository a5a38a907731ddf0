// Package rediskv keeps the health side data (probe definitions, probe
// history, incidents) in Redis, mirroring the relational store's role for
// jobs.
package rediskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"searchjob-service/internal/entity"
)

const (
	definitionsKey    = "health:definitions"
	historyKey        = "health:history"
	activeIncidentKey = "health:incidents:active"
	closedIncidentKey = "health:incidents:closed"

	historyCap        = 500
	closedIncidentCap = 200
)

type HealthStore struct {
	rdb *redis.Client
}

func NewHealthStore(rdb *redis.Client) *HealthStore {
	return &HealthStore{rdb: rdb}
}

func (s *HealthStore) SaveDefinition(ctx context.Context, def entity.ProbeDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	return s.rdb.HSet(ctx, definitionsKey, def.ID, data).Err()
}

func (s *HealthStore) ListDefinitions(ctx context.Context) ([]entity.ProbeDefinition, error) {
	raw, err := s.rdb.HGetAll(ctx, definitionsKey).Result()
	if err != nil {
		return nil, err
	}

	defs := make([]entity.ProbeDefinition, 0, len(raw))
	for _, v := range raw {
		var def entity.ProbeDefinition
		if err := json.Unmarshal([]byte(v), &def); err != nil {
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// RecordResult appends to the capped history list, newest first.
func (s *HealthStore) RecordResult(ctx context.Context, res entity.ProbeResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, historyKey, data)
	pipe.LTrim(ctx, historyKey, 0, historyCap-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *HealthStore) History(ctx context.Context, limit int) ([]entity.ProbeResult, error) {
	raw, err := s.rdb.LRange(ctx, historyKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]entity.ProbeResult, 0, len(raw))
	for _, v := range raw {
		var res entity.ProbeResult
		if err := json.Unmarshal([]byte(v), &res); err != nil {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// GetActiveIncident returns nil without error when no incident is open for
// the probe key.
func (s *HealthStore) GetActiveIncident(ctx context.Context, probeKey string) (*entity.Incident, error) {
	data, err := s.rdb.HGet(ctx, activeIncidentKey, probeKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var inc entity.Incident
	if err := json.Unmarshal([]byte(data), &inc); err != nil {
		return nil, fmt.Errorf("unmarshal incident: %w", err)
	}
	return &inc, nil
}

// SaveActiveIncident writes the single active incident slot for the probe
// key. One hash field per key keeps the at-most-one-active invariant in the
// storage layout itself.
func (s *HealthStore) SaveActiveIncident(ctx context.Context, inc *entity.Incident) error {
	data, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}
	return s.rdb.HSet(ctx, activeIncidentKey, inc.ProbeKey, data).Err()
}

// CloseIncident removes the active slot and archives the resolved incident.
func (s *HealthStore) CloseIncident(ctx context.Context, inc *entity.Incident) error {
	data, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.HDel(ctx, activeIncidentKey, inc.ProbeKey)
	pipe.LPush(ctx, closedIncidentKey, data)
	pipe.LTrim(ctx, closedIncidentKey, 0, closedIncidentCap-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *HealthStore) ListIncidents(ctx context.Context, activeOnly bool) ([]entity.Incident, error) {
	raw, err := s.rdb.HGetAll(ctx, activeIncidentKey).Result()
	if err != nil {
		return nil, err
	}

	out := make([]entity.Incident, 0, len(raw))
	for _, v := range raw {
		var inc entity.Incident
		if err := json.Unmarshal([]byte(v), &inc); err != nil {
			continue
		}
		out = append(out, inc)
	}
	if activeOnly {
		return out, nil
	}

	closed, err := s.rdb.LRange(ctx, closedIncidentKey, 0, closedIncidentCap-1).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range closed {
		var inc entity.Incident
		if err := json.Unmarshal([]byte(v), &inc); err != nil {
			continue
		}
		out = append(out, inc)
	}
	return out, nil
}
