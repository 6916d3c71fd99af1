package constraint

import (
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestCheckLength_WithinBounds(t *testing.T) {
	if f := CheckLength(3.0, 0.5, 5.0); f != nil {
		t.Errorf("expected pass, got %q", f.Reason)
	}
}

func TestCheckLength_TooLong(t *testing.T) {
	f := CheckLength(6.0, 0.5, 5.0)
	if f == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(f.Reason, "too long") {
		t.Errorf("expected 'too long' failure, got %q", f.Reason)
	}
}

func TestCheckLength_TooShort(t *testing.T) {
	f := CheckLength(0.2, 0.5, 5.0)
	if f == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(f.Reason, "too short") {
		t.Errorf("expected 'too short' failure, got %q", f.Reason)
	}
}

// A zero limit is an explicit "unbounded" sentinel, not an error.
func TestCheckLength_ZeroLimitsUnbounded(t *testing.T) {
	if f := CheckLength(1e9, 0, 0); f != nil {
		t.Errorf("zero limits should pass any distance, got %q", f.Reason)
	}
	if f := CheckLength(0.001, 0, 5); f != nil {
		t.Errorf("zero min should pass tiny distance, got %q", f.Reason)
	}
}

func TestCheckAngle(t *testing.T) {
	tests := []struct {
		name     string
		angle    float64
		limit    float64
		wantFail bool
	}{
		{"within limit", 10, 30, false},
		{"at limit", 30, 30, false},
		{"over limit", 31, 30, true},
		{"zero limit unbounded", 179, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := CheckAngle(tt.angle, tt.limit)
			if (f != nil) != tt.wantFail {
				t.Errorf("CheckAngle(%v, %v) = %v, wantFail=%v", tt.angle, tt.limit, f, tt.wantFail)
			}
		})
	}
}

func TestAngleBetweenDeg(t *testing.T) {
	x := mgl64.Vec3{1, 0, 0}
	y := mgl64.Vec3{0, 1, 0}

	if a := AngleBetweenDeg(x, y); math.Abs(a-90) > 1e-9 {
		t.Errorf("expected 90, got %f", a)
	}
	if a := AngleBetweenDeg(x, x); math.Abs(a) > 1e-9 {
		t.Errorf("expected 0, got %f", a)
	}
	if a := AngleBetweenDeg(x, x.Mul(-1)); math.Abs(a-180) > 1e-9 {
		t.Errorf("expected 180, got %f", a)
	}
	if a := AngleBetweenDeg(x, mgl64.Vec3{}); a != 0 {
		t.Errorf("zero vector should yield 0, got %f", a)
	}
}

// fakeProber returns a fixed hit unless the excluded list covers it.
type fakeProber struct {
	hitName  string
	hit      bool
	gotFrom  mgl64.Vec3
	gotTo    mgl64.Vec3
	excluded []uint32
}

func (p *fakeProber) SweepSphere(from, to mgl64.Vec3, radius float64, exclude []uint32) (string, bool) {
	p.gotFrom, p.gotTo = from, to
	p.excluded = exclude
	return p.hitName, p.hit
}

func TestCheckObstruction_Clear(t *testing.T) {
	p := &fakeProber{}
	if f := CheckObstruction(p, mgl64.Vec3{}, mgl64.Vec3{0, 0, 3}, 0.1, nil); f != nil {
		t.Errorf("expected pass, got %q", f.Reason)
	}
}

func TestCheckObstruction_Hit(t *testing.T) {
	p := &fakeProber{hit: true, hitName: "solarPanel"}
	f := CheckObstruction(p, mgl64.Vec3{}, mgl64.Vec3{0, 0, 3}, 0.1, nil)
	if f == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(f.Reason, "solarPanel") {
		t.Errorf("expected obstruction name in reason, got %q", f.Reason)
	}
}

func TestCheckObstruction_UnownedHitIsSurface(t *testing.T) {
	p := &fakeProber{hit: true}
	f := CheckObstruction(p, mgl64.Vec3{}, mgl64.Vec3{0, 0, 3}, 0.1, nil)
	if f == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(f.Reason, "surface") {
		t.Errorf("expected 'surface', got %q", f.Reason)
	}
}

func passingParams() Params {
	return Params{
		SourcePos:        mgl64.Vec3{0, 0, 0},
		TargetPos:        mgl64.Vec3{0, 0, 3},
		SourceFwd:        mgl64.Vec3{0, 0, 1},
		TargetFwd:        mgl64.Vec3{0, 0, -1},
		MinLength:        0.5,
		MaxLength:        5,
		SourceAngleLimit: 30,
		TargetAngleLimit: 30,
	}
}

func TestCheck_Pass(t *testing.T) {
	if f := Check(passingParams()); f != nil {
		t.Errorf("expected pass, got %q", f.Reason)
	}
}

func TestCheck_LengthFailsFirst(t *testing.T) {
	p := passingParams()
	p.TargetPos = mgl64.Vec3{0, 0, 6}
	// Also break the source angle so short-circuit order is observable.
	p.SourceFwd = mgl64.Vec3{1, 0, 0}

	f := Check(p)
	if f == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(f.Reason, "too long") {
		t.Errorf("expected length failure first, got %q", f.Reason)
	}
}

func TestCheck_SourceAngle(t *testing.T) {
	p := passingParams()
	p.SourceFwd = mgl64.Vec3{1, 0, 0} // 90° off the link vector

	f := Check(p)
	if f == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(f.Reason, "at source") {
		t.Errorf("expected source angle failure, got %q", f.Reason)
	}
}

func TestCheck_TargetAngle(t *testing.T) {
	p := passingParams()
	p.TargetFwd = mgl64.Vec3{0, 0, 1} // facing away from the source

	f := Check(p)
	if f == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(f.Reason, "at target") {
		t.Errorf("expected target angle failure, got %q", f.Reason)
	}
}

func TestCheck_ObstructionLast(t *testing.T) {
	p := passingParams()
	p.Prober = &fakeProber{hit: true, hitName: "antenna"}
	p.ProbeRadius = 0.1

	f := Check(p)
	if f == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(f.Reason, "antenna") {
		t.Errorf("expected obstruction failure, got %q", f.Reason)
	}
}
