package actor_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"searchjob-service/internal/actor"
)

func TestDirectory_SameIDResolvesSameActor(t *testing.T) {
	mem := newMemStores()
	runner := &funcRunner{fn: func(ctx context.Context, jobID uuid.UUID, payload json.RawMessage, em *actor.Emitter) (json.RawMessage, error) {
		return nil, nil
	}}
	dir := actor.NewDirectory(mem.stores(), runner)
	id := uuid.New()

	const callers = 32
	actors := make([]*actor.Actor, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			actors[n] = dir.GetOrCreate(id)
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Same(t, actors[0], actors[i])
	}
}

func TestDirectory_DistinctIDsDistinctActors(t *testing.T) {
	mem := newMemStores()
	runner := &funcRunner{fn: func(ctx context.Context, jobID uuid.UUID, payload json.RawMessage, em *actor.Emitter) (json.RawMessage, error) {
		return nil, nil
	}}
	dir := actor.NewDirectory(mem.stores(), runner)

	a := dir.GetOrCreate(uuid.New())
	b := dir.GetOrCreate(uuid.New())
	assert.NotSame(t, a, b)
}

func TestDirectory_Peek(t *testing.T) {
	mem := newMemStores()
	runner := &funcRunner{fn: func(ctx context.Context, jobID uuid.UUID, payload json.RawMessage, em *actor.Emitter) (json.RawMessage, error) {
		return nil, nil
	}}
	dir := actor.NewDirectory(mem.stores(), runner)
	id := uuid.New()

	_, found := dir.Peek(id)
	require.False(t, found)

	created := dir.GetOrCreate(id)
	got, found := dir.Peek(id)
	require.True(t, found)
	assert.Same(t, created, got)
}
