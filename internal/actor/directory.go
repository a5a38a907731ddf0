package actor

import (
	"sync"

	"github.com/google/uuid"
)

// Directory maps each job id to its single long-lived actor. Actors are
// created lazily on first resolve and live until process exit; durable state
// stays in the stores, so nothing is lost when the process restarts and the
// map starts empty.
type Directory struct {
	stores Stores
	runner Runner

	mu     sync.Mutex
	actors map[uuid.UUID]*Actor
}

func NewDirectory(stores Stores, runner Runner) *Directory {
	return &Directory{
		stores: stores,
		runner: runner,
		actors: map[uuid.UUID]*Actor{},
	}
}

// GetOrCreate resolves the actor owning jobID. Concurrent callers with the
// same id always get the same instance; the first one creates it.
func (d *Directory) GetOrCreate(jobID uuid.UUID) *Actor {
	d.mu.Lock()
	defer d.mu.Unlock()

	if a, ok := d.actors[jobID]; ok {
		return a
	}
	a := newActor(jobID, d.stores, d.runner)
	d.actors[jobID] = a
	return a
}

// Peek returns the actor for jobID without creating one.
func (d *Directory) Peek(jobID uuid.UUID) (*Actor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.actors[jobID]
	return a, ok
}
