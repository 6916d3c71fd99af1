package cache

import (
	"sync"

	"github.com/attachkit/linkcore/pkg/core"
)

// PartRegistry caches parts as the host announces them to avoid db reads on
// the hot path. Latency in these lookups is critical: the negotiation and
// restore paths hit them every frame.
type PartRegistry struct {
	m        sync.Mutex
	parts    map[core.PartID]*core.Part
	byVessel map[core.VesselID]map[core.PartID]struct{}
}

func NewPartRegistry() *PartRegistry {
	return &PartRegistry{
		parts:    make(map[core.PartID]*core.Part),
		byVessel: make(map[core.VesselID]map[core.PartID]struct{}),
	}
}

func (r *PartRegistry) Reset() {
	r.m.Lock()
	defer r.m.Unlock()
	r.parts = make(map[core.PartID]*core.Part)
	r.byVessel = make(map[core.VesselID]map[core.PartID]struct{})
}

func (r *PartRegistry) Add(p *core.Part) {
	r.m.Lock()
	defer r.m.Unlock()
	if old, ok := r.parts[p.ID]; ok && old.VesselID != p.VesselID {
		delete(r.byVessel[old.VesselID], p.ID)
	}
	r.parts[p.ID] = p
	if r.byVessel[p.VesselID] == nil {
		r.byVessel[p.VesselID] = make(map[core.PartID]struct{})
	}
	r.byVessel[p.VesselID][p.ID] = struct{}{}
}

func (r *PartRegistry) Get(id core.PartID) (*core.Part, bool) {
	r.m.Lock()
	defer r.m.Unlock()
	p, ok := r.parts[id]
	return p, ok
}

func (r *PartRegistry) Remove(id core.PartID) {
	r.m.Lock()
	defer r.m.Unlock()
	p, ok := r.parts[id]
	if !ok {
		return
	}
	delete(r.parts, id)
	delete(r.byVessel[p.VesselID], id)
}

// Reparent moves a part to another vessel, as after a dock or undock.
func (r *PartRegistry) Reparent(id core.PartID, vessel core.VesselID) {
	r.m.Lock()
	defer r.m.Unlock()
	p, ok := r.parts[id]
	if !ok || p.VesselID == vessel {
		return
	}
	delete(r.byVessel[p.VesselID], id)
	p.VesselID = vessel
	if r.byVessel[vessel] == nil {
		r.byVessel[vessel] = make(map[core.PartID]struct{})
	}
	r.byVessel[vessel][id] = struct{}{}
}

// VesselParts returns the ids of every cached part on a vessel.
func (r *PartRegistry) VesselParts(vessel core.VesselID) []core.PartID {
	r.m.Lock()
	defer r.m.Unlock()
	ids := make([]core.PartID, 0, len(r.byVessel[vessel]))
	for id := range r.byVessel[vessel] {
		ids = append(ids, id)
	}
	return ids
}

func (r *PartRegistry) Len() int {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.parts)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
