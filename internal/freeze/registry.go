// Package freeze tracks sessions that may not move until they register.
package freeze

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Position is a point in a named world.
type Position struct {
	World string
	X     float64
	Y     float64
	Z     float64
}

// String implements fmt.Stringer.
func (p Position) String() string {
	if p.World == "" {
		return fmt.Sprintf("%g,%g,%g", p.X, p.Y, p.Z)
	}
	return fmt.Sprintf("%s:%g,%g,%g", p.World, p.X, p.Y, p.Z)
}

// Registry maps frozen sessions to the position they are pinned at.
//
// It is constructed once per process and passed to every call site.
// Thread-safety: all methods are safe for concurrent use. Movement checks
// take the read lock only.
type Registry struct {
	mu     sync.RWMutex
	pinned map[uuid.UUID]Position
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pinned: make(map[uuid.UUID]Position)}
}

// Freeze pins a session at pos. An already frozen session keeps its first
// pin. Returns true if the session was not frozen before.
func (r *Registry) Freeze(id uuid.UUID, pos Position) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pinned[id]; ok {
		return false
	}
	r.pinned[id] = pos
	return true
}

// Unfreeze releases a session. Returns false if it was not frozen.
func (r *Registry) Unfreeze(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pinned[id]; !ok {
		return false
	}
	delete(r.pinned, id)
	return true
}

// IsFrozen reports whether a session is frozen.
func (r *Registry) IsFrozen(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.pinned[id]
	return ok
}

// Pinned returns the position a session is frozen at.
func (r *Registry) Pinned(id uuid.UUID) (Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, ok := r.pinned[id]
	return pos, ok
}

// InterceptMovement checks an attempted move. While the session is frozen it
// returns the pinned position, and true unless attempted is already that
// position: the caller must then cancel the move and put the session back
// there. An unfrozen session moves freely.
func (r *Registry) InterceptMovement(id uuid.UUID, attempted Position) (Position, bool) {
	pin, ok := r.Pinned(id)
	if !ok {
		return Position{}, false
	}
	return pin, attempted != pin
}

// Len returns the number of frozen sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pinned)
}

// Reset drops every entry. Called at shutdown.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.pinned)
}
