// pkg/core/part.go
package core

import (
	"github.com/go-gl/mathgl/mgl64"
)

// AttachNode is a named, oriented point on a part where a link or structural
// connection may form.
type AttachNode struct {
	Name string
	// Position is the node position in the owning part's local frame.
	Position mgl64.Vec3
	// Orientation rotates the part's local forward axis onto the node's
	// outward direction.
	Orientation mgl64.Quat
	// Size is the host's attach node size class (0 = smallest). Larger nodes
	// scale up derived breaking strength.
	Size int
	// IsStack marks an axial (end-to-end) node; false means surface (radial)
	// attachment, which derives a weaker connection.
	IsStack bool
}

// Forward returns the node's outward direction in part-local space.
func (n AttachNode) Forward() mgl64.Vec3 {
	return n.Orientation.Rotate(mgl64.Vec3{0, 0, 1})
}

// Part is the static description of a vehicle part as the host reports it.
// Live pose and dynamics belong to the physics provider, keyed by PartID.
type Part struct {
	ID       PartID
	VesselID VesselID
	Title    string

	// Mass in tons, as configured. Zero means the body is not instantiated
	// yet and strength derivation must fail rather than guess.
	Mass float64

	// Native breaking strength of the part's stock attachment, used as the
	// derivation base when a link config does not override it.
	BreakingForce  float64
	BreakingTorque float64

	Nodes []AttachNode
}

// Node returns the named attach node, if present.
func (p *Part) Node(name string) (AttachNode, bool) {
	for _, n := range p.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return AttachNode{}, false
}

// ConstraintConfig is the immutable per-part link configuration, loaded once
// at part configuration time. A zero limit means unbounded on that side.
type ConstraintConfig struct {
	MinLinkLength    float64 `json:"minLinkLength" mapstructure:"minLinkLength"`
	MaxLinkLength    float64 `json:"maxLinkLength" mapstructure:"maxLinkLength"`
	SourceAngleLimit float64 `json:"sourceAngleLimit" mapstructure:"sourceAngleLimit"`
	TargetAngleLimit float64 `json:"targetAngleLimit" mapstructure:"targetAngleLimit"`

	// BreakForce and BreakTorque override derivation when non-zero.
	BreakForce  float64 `json:"breakForce" mapstructure:"breakForce"`
	BreakTorque float64 `json:"breakTorque" mapstructure:"breakTorque"`

	// LinkType gates which peers may link: both ends must carry the same tag.
	LinkType string `json:"linkType" mapstructure:"linkType"`
}

// WinchConfig is the immutable per-part winch configuration.
type WinchConfig struct {
	MaxCableLength    float64 `json:"maxCableLength" mapstructure:"maxCableLength"`
	MotorMaxSpeed     float64 `json:"motorMaxSpeed" mapstructure:"motorMaxSpeed"`
	MotorAcceleration float64 `json:"motorAcceleration" mapstructure:"motorAcceleration"`
	PowerDrainPerSec  float64 `json:"powerDrainPerSec" mapstructure:"powerDrainPerSec"`

	// Lock tolerance: both criteria must hold for the connector to lock.
	LockMaxErrorDist float64 `json:"lockMaxErrorDist" mapstructure:"lockMaxErrorDist"`
	// LockMaxErrorDir is in degrees.
	LockMaxErrorDir float64 `json:"lockMaxErrorDir" mapstructure:"lockMaxErrorDir"`

	// CableSpring and CableDamper parametrize the cable joint.
	CableSpring float64 `json:"cableSpring" mapstructure:"cableSpring"`
	CableDamper float64 `json:"cableDamper" mapstructure:"cableDamper"`
}
