// pkg/core/events.go
package core

import "time"

// Broadcast topics published on the link event bus.
const (
	TopicLinkingStarted = "linking.started"
	TopicLinkingStopped = "linking.stopped"
	TopicLinkCreated    = "link.created"
	TopicLinkBroken     = "link.broken"
)

// LinkingStarted announces that a source entered linking mode. Targets in
// Available react by accepting or rejecting based on type compatibility.
type LinkingStarted struct {
	Source       PartID
	SourceVessel VesselID
	LinkType     string
	Mode         LinkMode
}

// LinkingStopped announces that a source left linking mode, whether by
// cancellation or by a consummated link.
type LinkingStopped struct {
	Source   PartID
	LinkType string
}

// LinkCreated announces a committed link.
type LinkCreated struct {
	Source PartID
	Target PartID
	Mode   LinkMode
	Time   time.Time
}

// BreakReason classifies why a link came apart.
type BreakReason string

const (
	BreakReasonForce      BreakReason = "physical overload"
	BreakReasonAPI        BreakReason = "explicit unlink"
	BreakReasonPartDeath  BreakReason = "part destroyed"
	BreakReasonBadRestore BreakReason = "unresolvable restore"
)

// LinkBroken announces a destroyed link.
type LinkBroken struct {
	Source PartID
	Target PartID
	Mode   LinkMode
	Reason BreakReason
	Time   time.Time
}

// LinkSnapshot is the persisted identity of a peer: enough to reconstruct
// the joint deterministically at physics-unpack. There is no half-linked
// persisted state; the joint itself is never stored.
type LinkSnapshot struct {
	VesselID VesselID
	PartID   PartID
	Role     PeerRole
	State    LinkState
	Mode     LinkMode

	// TargetPart is zero when not linked.
	TargetPart PartID

	// Motor and CableLength carry the winch controller's persisted state;
	// Motor is MotorLocked and CableLength zero for non-winch peers.
	Motor       MotorState
	CableLength float64
}

// MotorSample is one telemetry observation of a winch motor.
type MotorSample struct {
	Part         PartID
	Time         time.Time
	State        MotorState
	CableLength  float64
	MotorSpeed   float64
	PowerDraw    float64
	PowerStarved bool
}
