// internal/storage/memory/memory.go
package memory

import (
	"fmt"
	"sync"

	"github.com/attachkit/linkcore/pkg/core"
)

// PeerEntry groups a persisted peer snapshot with the node parameters it was
// saved with
type PeerEntry struct {
	Snapshot core.LinkSnapshot
	Part     *core.Part
}

// Backend stores link session data in memory. It is the default when no
// database is configured and the backend used by tests.
type Backend struct {
	sessionOpen bool
	saveName    string
	tag         string

	peers map[core.PartID]*PeerEntry

	linkEvents   []interface{}
	motorSamples []core.MotorSample

	mu sync.RWMutex
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{
		peers: make(map[core.PartID]*PeerEntry),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(saveName, tag string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sessionOpen = true
	b.saveName = saveName
	b.tag = tag

	// Reset all collections
	b.peers = make(map[core.PartID]*PeerEntry)
	b.linkEvents = nil
	b.motorSamples = nil

	return nil
}

// EndSession finalizes the session
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sessionOpen = false
	return nil
}

// SavePeerSnapshot stores or replaces the snapshot for a part
func (b *Backend) SavePeerSnapshot(snap core.LinkSnapshot, part *core.Part) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.sessionOpen {
		return fmt.Errorf("no session open")
	}
	b.peers[snap.PartID] = &PeerEntry{Snapshot: snap, Part: part}
	return nil
}

// LoadPeerSnapshots returns the snapshots of every peer on a vessel
func (b *Backend) LoadPeerSnapshots(vessel core.VesselID) ([]core.LinkSnapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var snaps []core.LinkSnapshot
	for _, e := range b.peers {
		if e.Snapshot.VesselID == vessel {
			snaps = append(snaps, e.Snapshot)
		}
	}
	return snaps, nil
}

// DeletePeerSnapshot removes the snapshot for a part
func (b *Backend) DeletePeerSnapshot(part core.PartID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.peers, part)
	return nil
}

// PurgeVessel removes every snapshot on a vessel
func (b *Backend) PurgeVessel(vessel core.VesselID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, e := range b.peers {
		if e.Snapshot.VesselID == vessel {
			delete(b.peers, id)
		}
	}
	return nil
}

// RecordLinkCreated records a created link
func (b *Backend) RecordLinkCreated(ev core.LinkCreated) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.linkEvents = append(b.linkEvents, ev)
	return nil
}

// RecordLinkBroken records a broken link
func (b *Backend) RecordLinkBroken(ev core.LinkBroken) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.linkEvents = append(b.linkEvents, ev)
	return nil
}

// RecordMotorSample records a winch telemetry sample
func (b *Backend) RecordMotorSample(s core.MotorSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.motorSamples = append(b.motorSamples, s)
	return nil
}

// LinkEventCount returns the number of recorded link events
func (b *Backend) LinkEventCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.linkEvents)
}

// MotorSampleCount returns the number of recorded motor samples
func (b *Backend) MotorSampleCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.motorSamples)
}
