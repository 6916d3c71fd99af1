// internal/storage/storage.go
package storage

import "github.com/attachkit/linkcore/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(saveName, tag string) error
	EndSession() error

	// Peer snapshots
	SavePeerSnapshot(snap core.LinkSnapshot, part *core.Part) error
	LoadPeerSnapshots(vessel core.VesselID) ([]core.LinkSnapshot, error)
	DeletePeerSnapshot(part core.PartID) error
	PurgeVessel(vessel core.VesselID) error

	// Event recording
	RecordLinkCreated(ev core.LinkCreated) error
	RecordLinkBroken(ev core.LinkBroken) error
	RecordMotorSample(s core.MotorSample) error
}
