// Package joint builds the concrete physical connection between two link
// peers and derives its force limits. The physics engine itself is behind
// the Provider seam; this package never touches engine internals.
package joint

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/attachkit/linkcore/pkg/core"
)

// Variant selects the joint topology.
type Variant int

const (
	// Rigid is a single 6-DOF constraint directly between the two parts.
	Rigid Variant = iota
	// DualSpherical is two spherical constraints connected through a
	// lightweight intermediate body, for poseable connections.
	DualSpherical
	// Cable is a spring/damper distance joint whose rest length tracks the
	// maximum allowed cable length, not the true distance.
	Cable
)

func (v Variant) String() string {
	switch v {
	case Rigid:
		return "rigid"
	case DualSpherical:
		return "dualSpherical"
	case Cable:
		return "cable"
	default:
		return "unknown"
	}
}

// Handle identifies a joint inside the physics provider.
type Handle uint64

// Spec is everything the provider needs to construct a joint.
type Spec struct {
	Variant Variant

	PartA core.PartID
	PartB core.PartID

	// Anchors in each part's local frame.
	AnchorA mgl64.Vec3
	AnchorB mgl64.Vec3

	BreakForce  float64
	BreakTorque float64

	// DualSpherical only.
	IntermediateMass float64
	AngleLimitA      float64
	AngleLimitB      float64
	// SuppressCollision disables collision response between the two
	// connected bodies; required for the dual-spherical topology.
	SuppressCollision bool

	// Cable only.
	Spring     float64
	Damper     float64
	RestLength float64
}

// Provider is the physics-primitive seam.
type Provider interface {
	CreateJoint(Spec) (Handle, error)
	DestroyJoint(Handle) error
	SetBreakCallback(Handle, func(core.BreakReason))

	// SetRestLength adjusts a cable joint's rest length; the winch motor
	// winds and pays out cable through this.
	SetRestLength(Handle, float64) error

	// HasBody reports whether the part's rigid body is instantiated. The
	// builder refuses to construct joints against missing bodies.
	HasBody(core.PartID) bool
}

// ConstructionError reports that a joint could not be built. The attempted
// operation aborts and rolls back; the process continues.
type ConstructionError struct {
	Part   core.PartID
	Reason string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("joint construction failed (part %d): %s", e.Part, e.Reason)
}

// Joint is a live physical connection, owned exclusively by the link that
// created it.
type Joint struct {
	handle      Handle
	variant     Variant
	breakForce  float64
	breakTorque float64

	provider  Provider
	destroyed bool
}

// Handle returns the provider handle.
func (j *Joint) Handle() Handle { return j.handle }

// Variant returns the joint topology.
func (j *Joint) Variant() Variant { return j.variant }

// BreakForce returns the derived breaking force.
func (j *Joint) BreakForce() float64 { return j.breakForce }

// BreakTorque returns the derived breaking torque.
func (j *Joint) BreakTorque() float64 { return j.breakTorque }

// OnBreak registers the callback the provider fires when the joint breaks
// under load or loses a body.
func (j *Joint) OnBreak(fn func(core.BreakReason)) {
	j.provider.SetBreakCallback(j.handle, fn)
}

// SetRestLength adjusts a cable joint's rest length.
func (j *Joint) SetRestLength(v float64) error {
	if j.variant != Cable {
		return fmt.Errorf("rest length on %s joint", j.variant)
	}
	return j.provider.SetRestLength(j.handle, v)
}

// Destroy tears the joint down. Safe to call more than once; only the first
// call reaches the provider.
func (j *Joint) Destroy() error {
	if j.destroyed {
		return nil
	}
	j.destroyed = true
	return j.provider.DestroyJoint(j.handle)
}
