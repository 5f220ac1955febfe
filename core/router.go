package core

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// router is the runtime's table of live units.
type router struct {
	// Map of unit ID to Process
	units sync.Map // map[ActorID]*Process

	// Counter for generating unique IDs
	idCounter uint32
}

func newRouter() *router {
	return &router{}
}

// Register adds a unit to the routing table.
func (r *router) Register(p *Process) error {
	if p == nil {
		return fmt.Errorf("cannot register nil unit")
	}

	if _, exists := r.units.LoadOrStore(p.id, p); exists {
		return fmt.Errorf("unit with ID %d already registered", p.id)
	}

	return nil
}

// Unregister removes a unit from the routing table.
func (r *router) Unregister(id ActorID) error {
	if _, exists := r.units.LoadAndDelete(id); !exists {
		return fmt.Errorf("unit with ID %d not found", id)
	}

	return nil
}

// Lookup finds a unit by its ID.
func (r *router) Lookup(id ActorID) (*Process, bool) {
	if p, exists := r.units.Load(id); exists {
		return p.(*Process), true
	}
	return nil, false
}

// List returns all registered unit IDs.
func (r *router) List() []ActorID {
	var ids []ActorID

	r.units.Range(func(key, value interface{}) bool {
		ids = append(ids, key.(ActorID))
		return true
	})

	return ids
}

// NextID generates the next available ID.
func (r *router) NextID() ActorID {
	return ActorID(atomic.AddUint32(&r.idCounter, 1))
}
