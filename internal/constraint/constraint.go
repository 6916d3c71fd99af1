// Package constraint holds the stateless link feasibility checks. Every
// check returns nil on pass or a *Failure describing the single most
// relevant problem; the orchestrator short-circuits on the first failure.
package constraint

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Failure describes why a link cannot form. It is an ordinary value meant
// for the human operator, never an error to propagate.
type Failure struct {
	Reason string
}

func (f *Failure) String() string {
	if f == nil {
		return "ok"
	}
	return f.Reason
}

// Prober is the collision-probe seam into the physics provider.
type Prober interface {
	// SweepSphere casts a sphere of the given radius from one point to the
	// other and returns the name of the first obstruction hit, or ok=false
	// when the path is clear. Bodies rooted at the excluded parts are
	// ignored. An unowned hit reports an empty name.
	SweepSphere(from, to mgl64.Vec3, radius float64, exclude []uint32) (name string, ok bool)
}

// CheckLength validates a distance against optional bounds. A zero limit
// means unbounded on that side.
func CheckLength(distance, min, max float64) *Failure {
	if max > 0 && distance > max {
		return &Failure{Reason: fmt.Sprintf(
			"too long: distance %.2fm exceeds limit %.2fm", distance, max)}
	}
	if min > 0 && distance < min {
		return &Failure{Reason: fmt.Sprintf(
			"too short: distance %.2fm is below limit %.2fm", distance, min)}
	}
	return nil
}

// CheckAngle validates an angle in degrees against an optional limit.
func CheckAngle(angleDeg, limitDeg float64) *Failure {
	if limitDeg > 0 && angleDeg > limitDeg {
		return &Failure{Reason: fmt.Sprintf(
			"angle %.1f° exceeds limit %.1f°", angleDeg, limitDeg)}
	}
	return nil
}

// CheckObstruction probes the straight path between the two points. Hits
// with no identifiable owner are reported as "surface".
func CheckObstruction(prober Prober, from, to mgl64.Vec3, radius float64, exclude []uint32) *Failure {
	name, hit := prober.SweepSphere(from, to, radius, exclude)
	if !hit {
		return nil
	}
	if name == "" {
		name = "surface"
	}
	return &Failure{Reason: fmt.Sprintf("obstructed by %s", name)}
}

// AngleBetweenDeg returns the angle between two direction vectors in
// degrees. Zero-length inputs yield zero.
func AngleBetweenDeg(a, b mgl64.Vec3) float64 {
	la, lb := a.Len(), b.Len()
	if la == 0 || lb == 0 {
		return 0
	}
	cos := a.Dot(b) / (la * lb)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// Params bundles everything the orchestrated check needs.
type Params struct {
	// Positions and outward node directions, world space.
	SourcePos mgl64.Vec3
	TargetPos mgl64.Vec3
	SourceFwd mgl64.Vec3
	TargetFwd mgl64.Vec3

	MinLength        float64
	MaxLength        float64
	SourceAngleLimit float64
	TargetAngleLimit float64

	// Obstruction probe; skipped when Prober is nil.
	Prober       Prober
	ProbeRadius  float64
	ExcludeRoots []uint32
}

// Check runs length, source angle, target angle and obstruction in that
// order and returns the first failure. The ordering avoids redundant work
// and surfaces the single most relevant error.
func Check(p Params) *Failure {
	linkVec := p.TargetPos.Sub(p.SourcePos)
	distance := linkVec.Len()

	if f := CheckLength(distance, p.MinLength, p.MaxLength); f != nil {
		return f
	}
	if f := CheckAngle(AngleBetweenDeg(p.SourceFwd, linkVec), p.SourceAngleLimit); f != nil {
		return &Failure{Reason: "at source: " + f.Reason}
	}
	// The target node faces back along the link.
	if f := CheckAngle(AngleBetweenDeg(p.TargetFwd, linkVec.Mul(-1)), p.TargetAngleLimit); f != nil {
		return &Failure{Reason: "at target: " + f.Reason}
	}
	if p.Prober != nil {
		if f := CheckObstruction(p.Prober, p.SourcePos, p.TargetPos, p.ProbeRadius, p.ExcludeRoots); f != nil {
			return f
		}
	}
	return nil
}
