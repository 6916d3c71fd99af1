// Package physics is the in-process physics provider. It implements the
// joint.Provider and constraint.Prober seams with a deliberately small
// rigid-body model: enough to drive the link lifecycle, the winch motor and
// the tests without a host engine behind it.
package physics

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/attachkit/linkcore/internal/joint"
	"github.com/attachkit/linkcore/pkg/core"
)

// Body is one rigid body in the world.
type Body struct {
	Part core.PartID
	// Root groups bodies in one part hierarchy; probes exclude whole roots.
	Root uint32
	Name string

	Mass     float64
	Position mgl64.Vec3
	Rotation mgl64.Quat
	Velocity mgl64.Vec3

	// Radius is the collision sphere used by probes.
	Radius float64

	// Dynamic bodies integrate under cable spring forces; static ones hold
	// their pose (the host owns them).
	Dynamic bool
}

// Forward returns the body's forward axis in world space.
func (b *Body) Forward() mgl64.Vec3 {
	return b.Rotation.Rotate(mgl64.Vec3{0, 0, 1})
}

type jointRecord struct {
	spec    joint.Spec
	breakFn func(core.BreakReason)
}

// World owns bodies and live joints.
type World struct {
	log        zerolog.Logger
	bodies     map[core.PartID]*Body
	joints     map[joint.Handle]*jointRecord
	nextHandle joint.Handle
}

// NewWorld creates an empty world.
func NewWorld(log zerolog.Logger) *World {
	return &World{
		log:    log.With().Str("component", "physics").Logger(),
		bodies: make(map[core.PartID]*Body),
		joints: make(map[joint.Handle]*jointRecord),
	}
}

// AddBody registers a body. Re-adding a part replaces its body.
func (w *World) AddBody(b *Body) {
	if b.Rotation.Len() == 0 {
		b.Rotation = mgl64.QuatIdent()
	}
	w.bodies[b.Part] = b
}

// Body returns the body for a part.
func (w *World) Body(id core.PartID) (*Body, bool) {
	b, ok := w.bodies[id]
	return b, ok
}

// BodyPose returns a body's world pose and root id for probe exclusion.
func (w *World) BodyPose(id core.PartID) (mgl64.Vec3, mgl64.Quat, uint32, bool) {
	b, ok := w.bodies[id]
	if !ok {
		return mgl64.Vec3{}, mgl64.Quat{}, 0, false
	}
	return b.Position, b.Rotation, b.Root, true
}

// RemoveBody drops a body and breaks every joint attached to it, firing the
// registered break callbacks with a part-death reason.
func (w *World) RemoveBody(id core.PartID) {
	if _, ok := w.bodies[id]; !ok {
		return
	}
	delete(w.bodies, id)
	for h, rec := range w.joints {
		if rec.spec.PartA == id || rec.spec.PartB == id {
			fn := rec.breakFn
			delete(w.joints, h)
			if fn != nil {
				fn(core.BreakReasonPartDeath)
			}
		}
	}
}

// HasBody implements joint.Provider.
func (w *World) HasBody(id core.PartID) bool {
	_, ok := w.bodies[id]
	return ok
}

// CreateJoint implements joint.Provider.
func (w *World) CreateJoint(s joint.Spec) (joint.Handle, error) {
	if !w.HasBody(s.PartA) {
		return 0, fmt.Errorf("no body for part %d", s.PartA)
	}
	if !w.HasBody(s.PartB) {
		return 0, fmt.Errorf("no body for part %d", s.PartB)
	}
	if s.BreakForce <= 0 {
		return 0, fmt.Errorf("refusing joint with break force %v", s.BreakForce)
	}
	w.nextHandle++
	w.joints[w.nextHandle] = &jointRecord{spec: s}
	w.log.Debug().
		Str("variant", s.Variant.String()).
		Uint32("partA", uint32(s.PartA)).
		Uint32("partB", uint32(s.PartB)).
		Msg("joint created")
	return w.nextHandle, nil
}

// DestroyJoint implements joint.Provider.
func (w *World) DestroyJoint(h joint.Handle) error {
	if _, ok := w.joints[h]; !ok {
		return fmt.Errorf("unknown joint handle %d", h)
	}
	delete(w.joints, h)
	return nil
}

// SetBreakCallback implements joint.Provider.
func (w *World) SetBreakCallback(h joint.Handle, fn func(core.BreakReason)) {
	if rec, ok := w.joints[h]; ok {
		rec.breakFn = fn
	}
}

// SetRestLength implements joint.Provider.
func (w *World) SetRestLength(h joint.Handle, v float64) error {
	rec, ok := w.joints[h]
	if !ok {
		return fmt.Errorf("unknown joint handle %d", h)
	}
	if rec.spec.Variant != joint.Cable {
		return fmt.Errorf("rest length on %s joint", rec.spec.Variant)
	}
	rec.spec.RestLength = v
	return nil
}

// JointCount returns the number of live joints.
func (w *World) JointCount() int {
	return len(w.joints)
}

// ApplyJointLoad simulates a force on a joint. Loads past the breaking
// threshold destroy the joint and fire its break callback.
func (w *World) ApplyJointLoad(h joint.Handle, force float64) {
	rec, ok := w.joints[h]
	if !ok {
		return
	}
	if force <= rec.spec.BreakForce {
		return
	}
	fn := rec.breakFn
	delete(w.joints, h)
	w.log.Debug().Uint64("handle", uint64(h)).Float64("force", force).Msg("joint broke under load")
	if fn != nil {
		fn(core.BreakReasonForce)
	}
}

// Step integrates dynamic bodies under cable spring forces. Static bodies
// never move; the cable spring only pulls when stretched past its rest
// length, which is what keeps a slack cable slack.
func (w *World) Step(dt float64) {
	for _, rec := range w.joints {
		if rec.spec.Variant != joint.Cable {
			continue
		}
		a, okA := w.bodies[rec.spec.PartA]
		b, okB := w.bodies[rec.spec.PartB]
		if !okA || !okB {
			continue
		}

		axis := b.Position.Sub(a.Position)
		dist := axis.Len()
		if dist == 0 {
			continue
		}
		dir := axis.Mul(1 / dist)

		stretch := dist - rec.spec.RestLength
		if stretch <= 0 {
			continue
		}
		relVel := b.Velocity.Sub(a.Velocity).Dot(dir)
		force := rec.spec.Spring*stretch + rec.spec.Damper*relVel

		if b.Dynamic && b.Mass > 0 {
			b.Velocity = b.Velocity.Sub(dir.Mul(force / b.Mass * dt))
		}
		if a.Dynamic && a.Mass > 0 {
			a.Velocity = a.Velocity.Add(dir.Mul(force / a.Mass * dt))
		}
	}

	for _, b := range w.bodies {
		if b.Dynamic {
			b.Position = b.Position.Add(b.Velocity.Mul(dt))
		}
	}
}

// SweepSphere implements constraint.Prober: a swept-sphere probe between
// two points against every body outside the excluded roots.
func (w *World) SweepSphere(from, to mgl64.Vec3, radius float64, exclude []uint32) (string, bool) {
	excluded := func(root uint32) bool {
		for _, r := range exclude {
			if r == root {
				return true
			}
		}
		return false
	}

	for _, b := range w.bodies {
		if excluded(b.Root) {
			continue
		}
		if segmentPointDistance(from, to, b.Position) <= radius+b.Radius {
			return b.Name, true
		}
	}
	return "", false
}

// segmentPointDistance returns the distance from p to segment [a, b].
func segmentPointDistance(a, b, p mgl64.Vec3) float64 {
	ab := b.Sub(a)
	lenSq := ab.Dot(ab)
	if lenSq == 0 {
		return p.Sub(a).Len()
	}
	t := p.Sub(a).Dot(ab) / lenSq
	t = math.Max(0, math.Min(1, t))
	return p.Sub(a.Add(ab.Mul(t))).Len()
}
