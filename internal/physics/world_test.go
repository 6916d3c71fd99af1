package physics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/attachkit/linkcore/internal/joint"
	"github.com/attachkit/linkcore/pkg/core"
)

func testWorld() *World {
	return NewWorld(zerolog.Nop())
}

func addBody(w *World, id core.PartID, root uint32, pos mgl64.Vec3) *Body {
	b := &Body{Part: id, Root: root, Name: "body", Mass: 1, Position: pos, Radius: 0.2}
	w.AddBody(b)
	return b
}

func cableSpec(a, b core.PartID, rest float64) joint.Spec {
	return joint.Spec{
		Variant:    joint.Cable,
		PartA:      a,
		PartB:      b,
		BreakForce: 100,
		Spring:     50,
		Damper:     5,
		RestLength: rest,
	}
}

func TestWorld_CreateJointRequiresBodies(t *testing.T) {
	w := testWorld()
	addBody(w, 1, 1, mgl64.Vec3{})

	if _, err := w.CreateJoint(joint.Spec{PartA: 1, PartB: 2, BreakForce: 10}); err == nil {
		t.Error("expected error for missing body")
	}

	addBody(w, 2, 2, mgl64.Vec3{0, 0, 1})
	if _, err := w.CreateJoint(joint.Spec{PartA: 1, PartB: 2, BreakForce: 10}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWorld_RefusesZeroBreakForce(t *testing.T) {
	w := testWorld()
	addBody(w, 1, 1, mgl64.Vec3{})
	addBody(w, 2, 2, mgl64.Vec3{0, 0, 1})

	if _, err := w.CreateJoint(joint.Spec{PartA: 1, PartB: 2}); err == nil {
		t.Error("expected refusal of zero break force")
	}
}

func TestWorld_BreakUnderLoad(t *testing.T) {
	w := testWorld()
	addBody(w, 1, 1, mgl64.Vec3{})
	addBody(w, 2, 2, mgl64.Vec3{0, 0, 1})

	h, err := w.CreateJoint(joint.Spec{PartA: 1, PartB: 2, BreakForce: 100})
	if err != nil {
		t.Fatalf("CreateJoint: %v", err)
	}

	var reason core.BreakReason
	w.SetBreakCallback(h, func(r core.BreakReason) { reason = r })

	w.ApplyJointLoad(h, 99)
	if w.JointCount() != 1 {
		t.Fatal("joint broke below threshold")
	}

	w.ApplyJointLoad(h, 101)
	if w.JointCount() != 0 {
		t.Fatal("joint survived overload")
	}
	if reason != core.BreakReasonForce {
		t.Errorf("expected force break reason, got %q", reason)
	}
}

func TestWorld_RemoveBodyBreaksJoints(t *testing.T) {
	w := testWorld()
	addBody(w, 1, 1, mgl64.Vec3{})
	addBody(w, 2, 2, mgl64.Vec3{0, 0, 1})

	h, err := w.CreateJoint(joint.Spec{PartA: 1, PartB: 2, BreakForce: 100})
	if err != nil {
		t.Fatalf("CreateJoint: %v", err)
	}

	var reason core.BreakReason
	w.SetBreakCallback(h, func(r core.BreakReason) { reason = r })

	w.RemoveBody(2)
	if w.JointCount() != 0 {
		t.Error("expected joint destroyed with body")
	}
	if reason != core.BreakReasonPartDeath {
		t.Errorf("expected part-death reason, got %q", reason)
	}
}

func TestWorld_SetRestLengthOnlyCable(t *testing.T) {
	w := testWorld()
	addBody(w, 1, 1, mgl64.Vec3{})
	addBody(w, 2, 2, mgl64.Vec3{0, 0, 1})

	rigid, err := w.CreateJoint(joint.Spec{PartA: 1, PartB: 2, BreakForce: 100})
	if err != nil {
		t.Fatalf("CreateJoint: %v", err)
	}
	if err := w.SetRestLength(rigid, 1); err == nil {
		t.Error("expected error on rigid joint")
	}

	cable, err := w.CreateJoint(cableSpec(1, 2, 2))
	if err != nil {
		t.Fatalf("CreateJoint: %v", err)
	}
	if err := w.SetRestLength(cable, 1.5); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// A stretched cable must pull the dynamic connector back toward the rest
// sphere; a slack cable must leave it alone.
func TestWorld_StepCableSpring(t *testing.T) {
	w := testWorld()
	addBody(w, 1, 1, mgl64.Vec3{})
	connector := addBody(w, 2, 2, mgl64.Vec3{0, 0, 3})
	connector.Dynamic = true

	if _, err := w.CreateJoint(cableSpec(1, 2, 2)); err != nil {
		t.Fatalf("CreateJoint: %v", err)
	}

	w.Step(0.02)
	if connector.Velocity.Z() >= 0 {
		t.Errorf("stretched cable should pull connector back, vz=%f", connector.Velocity.Z())
	}

	// Slack cable: move inside the rest sphere, reset velocity.
	connector.Position = mgl64.Vec3{0, 0, 1}
	connector.Velocity = mgl64.Vec3{}
	w.Step(0.02)
	if connector.Velocity.Len() != 0 {
		t.Errorf("slack cable must not apply force, v=%v", connector.Velocity)
	}
}

func TestWorld_SweepSphere(t *testing.T) {
	w := testWorld()
	a := addBody(w, 1, 10, mgl64.Vec3{})
	b := addBody(w, 2, 20, mgl64.Vec3{0, 0, 4})
	a.Name, b.Name = "winch", "socket"

	blocker := addBody(w, 3, 30, mgl64.Vec3{0, 0.1, 2})
	blocker.Name = "girder"

	name, hit := w.SweepSphere(a.Position, b.Position, 0.1, []uint32{10, 20})
	if !hit || name != "girder" {
		t.Errorf("expected girder hit, got %q hit=%v", name, hit)
	}

	// Excluding the blocker's root clears the path.
	_, hit = w.SweepSphere(a.Position, b.Position, 0.1, []uint32{10, 20, 30})
	if hit {
		t.Error("expected clear path with blocker excluded")
	}

	// Move the blocker out of the corridor.
	blocker.Position = mgl64.Vec3{0, 5, 2}
	_, hit = w.SweepSphere(a.Position, b.Position, 0.1, []uint32{10, 20})
	if hit {
		t.Error("expected clear path")
	}
}

func TestSegmentPointDistance(t *testing.T) {
	a, b := mgl64.Vec3{}, mgl64.Vec3{0, 0, 4}

	if d := segmentPointDistance(a, b, mgl64.Vec3{0, 1, 2}); math.Abs(d-1) > 1e-9 {
		t.Errorf("expected 1, got %f", d)
	}
	// Beyond the segment end, distance is to the endpoint.
	if d := segmentPointDistance(a, b, mgl64.Vec3{0, 0, 6}); math.Abs(d-2) > 1e-9 {
		t.Errorf("expected 2, got %f", d)
	}
	// Degenerate segment.
	if d := segmentPointDistance(a, a, mgl64.Vec3{0, 3, 0}); math.Abs(d-3) > 1e-9 {
		t.Errorf("expected 3, got %f", d)
	}
}
