// internal/joint/builder.go
package joint

import (
	"github.com/rs/zerolog"

	"github.com/attachkit/linkcore/pkg/core"
)

// Stack (axial) connections are stronger than surface (radial) ones by a
// fixed empirical ratio.
const (
	stackScale   = 2.0
	surfaceScale = 0.8
)

// Endpoint bundles one side of a joint under construction.
type Endpoint struct {
	Part   *core.Part
	Node   core.AttachNode
	Config core.ConstraintConfig
}

// Builder constructs joints through a Provider and derives their force
// limits from part properties.
type Builder struct {
	provider Provider
	log      zerolog.Logger
}

// NewBuilder creates a Builder on the given provider.
func NewBuilder(provider Provider, log zerolog.Logger) *Builder {
	return &Builder{
		provider: provider,
		log:      log.With().Str("component", "jointBuilder").Logger(),
	}
}

// nodeScale is the strength scale law: larger attach nodes imply reinforced
// connections.
func nodeScale(node core.AttachNode) float64 {
	s := 1.0 + float64(node.Size)
	if node.IsStack {
		return s * stackScale
	}
	return s * surfaceScale
}

// DeriveStrength computes a breaking limit from config overrides or, when
// either override is zero, from the weaker part's native strength scaled by
// the source attach node. A pure function of its inputs.
func DeriveStrength(overrideA, overrideB, nativeA, nativeB float64, node core.AttachNode) (float64, error) {
	if overrideA > 0 && overrideB > 0 {
		return min(overrideA, overrideB), nil
	}
	weaker := min(nativeA, nativeB)
	if weaker <= 0 {
		// A zero-strength joint never breaks in most engines, the opposite
		// of fail-safe.
		return 0, &ConstructionError{Reason: "native breaking strength unavailable"}
	}
	return weaker * nodeScale(node), nil
}

// checkBodies verifies both rigid bodies exist before any joint is created.
func (b *Builder) checkBodies(source, target *Endpoint) error {
	for _, ep := range []*Endpoint{source, target} {
		if ep.Part == nil {
			return &ConstructionError{Reason: "endpoint has no part"}
		}
		if !b.provider.HasBody(ep.Part.ID) {
			return &ConstructionError{Part: ep.Part.ID, Reason: "rigid body not instantiated"}
		}
	}
	return nil
}

// BuildRigid creates a single 6-DOF part-to-part joint.
func (b *Builder) BuildRigid(source, target *Endpoint) (*Joint, error) {
	if err := b.checkBodies(source, target); err != nil {
		return nil, err
	}

	force, err := DeriveStrength(
		source.Config.BreakForce, target.Config.BreakForce,
		source.Part.BreakingForce, target.Part.BreakingForce, source.Node)
	if err != nil {
		return nil, err
	}
	torque, err := DeriveStrength(
		source.Config.BreakTorque, target.Config.BreakTorque,
		source.Part.BreakingTorque, target.Part.BreakingTorque, source.Node)
	if err != nil {
		return nil, err
	}

	handle, err := b.provider.CreateJoint(Spec{
		Variant:     Rigid,
		PartA:       source.Part.ID,
		PartB:       target.Part.ID,
		AnchorA:     source.Node.Position,
		AnchorB:     target.Node.Position,
		BreakForce:  force,
		BreakTorque: torque,
	})
	if err != nil {
		return nil, &ConstructionError{Part: source.Part.ID, Reason: err.Error()}
	}

	b.log.Debug().
		Uint32("source", uint32(source.Part.ID)).
		Uint32("target", uint32(target.Part.ID)).
		Float64("breakForce", force).
		Msg("built rigid joint")

	return &Joint{
		handle:      handle,
		variant:     Rigid,
		breakForce:  force,
		breakTorque: torque,
		provider:    b.provider,
	}, nil
}

// BuildDualSpherical creates two spherical constraints carried by an
// intermediate body. The intermediate mass is the average of the endpoint
// body masses; large mass mismatches destabilize iterative solvers.
func (b *Builder) BuildDualSpherical(source, target *Endpoint) (*Joint, error) {
	if err := b.checkBodies(source, target); err != nil {
		return nil, err
	}
	if source.Part.Mass <= 0 || target.Part.Mass <= 0 {
		part := source.Part.ID
		if source.Part.Mass > 0 {
			part = target.Part.ID
		}
		return nil, &ConstructionError{Part: part, Reason: "body mass unavailable"}
	}

	force, err := DeriveStrength(
		source.Config.BreakForce, target.Config.BreakForce,
		source.Part.BreakingForce, target.Part.BreakingForce, source.Node)
	if err != nil {
		return nil, err
	}
	torque, err := DeriveStrength(
		source.Config.BreakTorque, target.Config.BreakTorque,
		source.Part.BreakingTorque, target.Part.BreakingTorque, source.Node)
	if err != nil {
		return nil, err
	}

	handle, err := b.provider.CreateJoint(Spec{
		Variant:          DualSpherical,
		PartA:            source.Part.ID,
		PartB:            target.Part.ID,
		AnchorA:          source.Node.Position,
		AnchorB:          target.Node.Position,
		BreakForce:       force,
		BreakTorque:      torque,
		IntermediateMass: (source.Part.Mass + target.Part.Mass) / 2,
		AngleLimitA:      source.Config.SourceAngleLimit,
		AngleLimitB:      target.Config.TargetAngleLimit,
		// The connected bodies must not collide with each other while the
		// elbow flexes.
		SuppressCollision: true,
	})
	if err != nil {
		return nil, &ConstructionError{Part: source.Part.ID, Reason: err.Error()}
	}

	b.log.Debug().
		Uint32("source", uint32(source.Part.ID)).
		Uint32("target", uint32(target.Part.ID)).
		Float64("breakForce", force).
		Msg("built dual spherical joint")

	return &Joint{
		handle:      handle,
		variant:     DualSpherical,
		breakForce:  force,
		breakTorque: torque,
		provider:    b.provider,
	}, nil
}

// BuildCable creates the winch cable joint between the housing and the
// connector. The rest length is the maximum allowed cable length: the
// spring pulls the connector toward a sphere of that radius and never
// shorter, which is what makes a taut-feeling, non-rigid cable.
func (b *Builder) BuildCable(source, connector *Endpoint, cfg core.WinchConfig, maxAllowedLength float64) (*Joint, error) {
	if err := b.checkBodies(source, connector); err != nil {
		return nil, err
	}

	force, err := DeriveStrength(
		source.Config.BreakForce, connector.Config.BreakForce,
		source.Part.BreakingForce, connector.Part.BreakingForce, source.Node)
	if err != nil {
		return nil, err
	}

	handle, err := b.provider.CreateJoint(Spec{
		Variant:    Cable,
		PartA:      source.Part.ID,
		PartB:      connector.Part.ID,
		AnchorA:    source.Node.Position,
		AnchorB:    connector.Node.Position,
		BreakForce: force,
		Spring:     cfg.CableSpring,
		Damper:     cfg.CableDamper,
		RestLength: maxAllowedLength,
	})
	if err != nil {
		return nil, &ConstructionError{Part: source.Part.ID, Reason: err.Error()}
	}

	b.log.Debug().
		Uint32("source", uint32(source.Part.ID)).
		Uint32("connector", uint32(connector.Part.ID)).
		Float64("restLength", maxAllowedLength).
		Msg("built cable joint")

	return &Joint{
		handle:     handle,
		variant:    Cable,
		breakForce: force,
		provider:   b.provider,
	}, nil
}
