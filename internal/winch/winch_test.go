// internal/winch/winch_test.go
package winch

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/attachkit/linkcore/internal/joint"
	"github.com/attachkit/linkcore/internal/physics"
	"github.com/attachkit/linkcore/pkg/core"
)

// fakePower grants up to Available per request and records the total drawn.
type fakePower struct {
	Available float64
	Drawn     float64
}

func (p *fakePower) RequestPower(amount float64) float64 {
	granted := amount
	if granted > p.Available {
		granted = p.Available
	}
	p.Available -= granted
	p.Drawn += granted
	return granted
}

type WinchSuite struct {
	suite.Suite

	world     *physics.World
	power     *fakePower
	messages  []string
	housing   *core.Part
	connector *core.Part
	winch     *Winch
}

func (s *WinchSuite) SetupTest() {
	log := zerolog.Nop()
	s.world = physics.NewWorld(log)
	s.power = &fakePower{Available: 1000}
	s.messages = nil

	node := core.AttachNode{
		Name:    "winchConnector",
		Size:    1,
		IsStack: true,
	}
	s.housing = &core.Part{
		ID: 1, VesselID: 10, Title: "W-50 winch",
		Mass: 0.2, BreakingForce: 100, BreakingTorque: 100,
		Nodes: []core.AttachNode{node},
	}
	s.connector = &core.Part{
		ID: 2, VesselID: 10, Title: "cable connector",
		Mass: 0.05, BreakingForce: 100, BreakingTorque: 100,
		Nodes: []core.AttachNode{node},
	}

	s.world.AddBody(&physics.Body{
		Part: 1, Root: 10, Name: "winch",
		Mass: 0.2, Radius: 0.2,
	})
	// Parked in the winch mouth, facing back at it.
	s.world.AddBody(&physics.Body{
		Part: 2, Root: 10, Name: "connector",
		Mass:     0.05,
		Position: mgl64.Vec3{0, 0, 0.05},
		Rotation: mgl64.QuatRotate(mgl64.DegToRad(180), mgl64.Vec3{0, 1, 0}),
		Radius:   0.05,
		Dynamic:  true,
	})

	linkCfg := core.ConstraintConfig{LinkType: "cable20"}
	winchCfg := core.WinchConfig{
		MaxCableLength:    20,
		MotorMaxSpeed:     2,
		MotorAcceleration: 2,
		PowerDrainPerSec:  0.5,
		LockMaxErrorDist:  0.1,
		LockMaxErrorDir:   5,
		CableSpring:       1000,
		CableDamper:       10,
	}
	s.winch = New(s.housing, node, s.connector, node, linkCfg, winchCfg, Deps{
		Builder: joint.NewBuilder(s.world, log),
		Poses:   s.world,
		Power:   s.power,
		Notify:  func(msg string) { s.messages = append(s.messages, msg) },
		Log:     log,
	})
}

// tick runs the motor at a fixed 50Hz step for the given simulated time.
func (s *WinchSuite) tick(seconds float64) {
	const dt = 0.02
	for t := 0.0; t < seconds; t += dt {
		s.winch.Tick(dt)
	}
}

func (s *WinchSuite) TestInitialState() {
	s.Equal(core.MotorLocked, s.winch.State())
	s.Zero(s.winch.CableLength())
	s.Zero(s.world.JointCount())
}

func (s *WinchSuite) TestDeployCreatesCable() {
	s.Require().NoError(s.winch.Deploy())
	s.Equal(core.MotorDeployed, s.winch.State())
	s.Equal(1, s.world.JointCount())
	s.Zero(s.winch.CableLength())
}

func (s *WinchSuite) TestMotorUnavailableWhileLocked() {
	err := s.winch.SetMotorTarget(1)
	s.ErrorContains(err, "motor unavailable")
}

func (s *WinchSuite) TestExtendRampsAndMoves() {
	s.Require().NoError(s.winch.Deploy())
	s.Require().NoError(s.winch.SetMotorTarget(1))

	s.tick(0.5)
	// Ramp phase covers half the commanded speed on average.
	s.InDelta(1.0, s.winch.MotorSpeed(), 1e-9)
	s.InDelta(0.25, s.winch.CableLength(), 0.02)

	s.tick(1.0)
	s.InDelta(1.25, s.winch.CableLength(), 0.03)
	s.Positive(s.power.Drawn)
}

func (s *WinchSuite) TestSpeedClampedToMax() {
	s.Require().NoError(s.winch.Deploy())
	s.Require().NoError(s.winch.SetMotorTarget(50))
	s.tick(3)
	s.LessOrEqual(s.winch.MotorSpeed(), 2.0)
}

func (s *WinchSuite) TestReversalZeroesSpeedFirst() {
	s.Require().NoError(s.winch.Deploy())
	s.Require().NoError(s.winch.SetMotorTarget(2))
	s.tick(2)
	s.InDelta(2.0, s.winch.MotorSpeed(), 1e-9)

	s.Require().NoError(s.winch.SetMotorTarget(-1))
	// The very next tick starts the ramp from zero, not from +2.
	s.winch.Tick(0.02)
	s.InDelta(-0.04, s.winch.MotorSpeed(), 1e-9)
}

func (s *WinchSuite) TestStopsAtMaxLength() {
	s.Require().NoError(s.winch.Deploy())
	s.Require().NoError(s.winch.SetMotorTarget(2))
	s.tick(15)

	s.InDelta(20.0, s.winch.CableLength(), 1e-9)
	s.Zero(s.winch.MotorSpeed())
	s.Contains(s.messages, "cable is at maximum length")

	// A further extend command is refused without repeating the message.
	n := len(s.messages)
	s.Require().NoError(s.winch.SetMotorTarget(1))
	s.Equal(n, len(s.messages))
	s.tick(0.5)
	s.InDelta(20.0, s.winch.CableLength(), 1e-9)
}

func (s *WinchSuite) TestRetractBlockedAtZero() {
	s.Require().NoError(s.winch.Deploy())
	s.Require().NoError(s.winch.SetMotorTarget(-1))
	s.Contains(s.messages, "cable is fully retracted")
	s.Zero(s.winch.MotorSpeed())
}

func (s *WinchSuite) TestPowerFailureKillsMotor() {
	s.Require().NoError(s.winch.Deploy())
	s.power.Available = 0.5 // one second worth of draw
	s.Require().NoError(s.winch.SetMotorTarget(2))
	s.tick(3)

	s.Zero(s.winch.MotorSpeed())
	s.Less(s.winch.CableLength(), 3.0)
	s.Contains(s.messages, "winch motor lost power")

	// The failure is reported once, then the motor stays idle.
	n := len(s.messages)
	s.tick(1)
	s.Equal(n, len(s.messages))
}

func (s *WinchSuite) TestWindDownAutoLocks() {
	s.Require().NoError(s.winch.Deploy())
	s.Require().NoError(s.winch.SetMotorTarget(2))
	s.tick(1.5)
	s.InDelta(2.0, s.winch.CableLength(), 0.1)

	s.Require().NoError(s.winch.SetMotorTarget(-1))
	s.tick(3)

	s.Zero(s.winch.CableLength())
	s.Equal(core.MotorLocked, s.winch.State())
	s.Zero(s.world.JointCount())
}

func (s *WinchSuite) TestMisalignedConnectorRefusesLock() {
	// Drift the connector out of the distance tolerance.
	body, ok := s.world.Body(2)
	s.Require().True(ok)
	body.Position = mgl64.Vec3{0.5, 0, 0}

	s.Require().NoError(s.winch.Deploy())
	s.Require().NoError(s.winch.SetMotorTarget(1))
	s.tick(0.5)
	s.Require().NoError(s.winch.SetMotorTarget(-2))
	s.tick(2)

	s.Equal(core.MotorDeployed, s.winch.State())
	s.Zero(s.winch.CableLength())
	found := false
	for _, m := range s.messages {
		if len(m) >= 11 && m[:11] == "cannot lock" {
			found = true
		}
	}
	s.True(found, "expected a lock rejection message, got %v", s.messages)
}

func (s *WinchSuite) TestAlignmentAngleCriterion() {
	s.Require().Nil(s.winch.CheckAlignment())

	// Within distance but 30° off axis.
	body, ok := s.world.Body(2)
	s.Require().True(ok)
	body.Rotation = mgl64.QuatRotate(mgl64.DegToRad(150), mgl64.Vec3{0, 1, 0})

	fail := s.winch.CheckAlignment()
	s.Require().NotNil(fail)
	s.Contains(fail.Reason, "off-axis")
}

func (s *WinchSuite) TestExplicitLock() {
	s.Require().NoError(s.winch.Deploy())
	s.Require().NoError(s.winch.Lock())
	s.Equal(core.MotorLocked, s.winch.State())
}

func (s *WinchSuite) TestExplicitLockRefusedWithCableOut() {
	s.Require().NoError(s.winch.Deploy())
	s.Require().NoError(s.winch.SetMotorTarget(2))
	s.tick(1)
	err := s.winch.Lock()
	s.ErrorContains(err, "not fully retracted")
}

func (s *WinchSuite) TestPlugAndUnplug() {
	s.Require().NoError(s.winch.Deploy())
	s.Require().NoError(s.winch.PlugTo(7))
	s.Equal(core.MotorPlugged, s.winch.State())

	s.Require().NoError(s.winch.Unplug())
	s.Equal(core.MotorDeployed, s.winch.State())
	s.Equal(1, s.world.JointCount())
}

func (s *WinchSuite) TestDockPredicateSelectsDocked() {
	s.winch.deps.Docked = func(connector, target core.PartID) bool { return true }

	s.Require().NoError(s.winch.Deploy())
	s.Require().NoError(s.winch.PlugTo(7))

	s.Equal(core.MotorDocked, s.winch.State())
	s.Zero(s.winch.CableLength())
	s.Zero(s.world.JointCount())
}

func (s *WinchSuite) TestReconcileExternalDock() {
	s.Require().NoError(s.winch.Deploy())
	s.Require().NoError(s.winch.SetMotorTarget(2))
	s.tick(2)

	s.winch.ReconcileExternalState(core.MotorDocked)
	s.Equal(core.MotorDocked, s.winch.State())
	s.Zero(s.winch.CableLength())
	s.Zero(s.winch.MotorSpeed())
	s.Zero(s.world.JointCount())
}

func (s *WinchSuite) TestSnapshotRestore() {
	s.Require().NoError(s.winch.Deploy())
	s.Require().NoError(s.winch.SetMotorTarget(1))
	s.tick(3)
	state, length := s.winch.Snapshot()
	s.Equal(core.MotorDeployed, state)
	s.Positive(length)

	// Fresh winch on the same world, as after a scene reload.
	restored := New(s.housing, s.housing.Nodes[0], s.connector, s.connector.Nodes[0],
		core.ConstraintConfig{LinkType: "cable20"}, s.winch.cfg, s.winch.deps)
	s.Require().NoError(restored.Restore(state, length))

	s.Equal(core.MotorDeployed, restored.State())
	s.InDelta(length, restored.CableLength(), 1e-9)
}

func (s *WinchSuite) TestRestoreClampsLength() {
	restored := New(s.housing, s.housing.Nodes[0], s.connector, s.connector.Nodes[0],
		core.ConstraintConfig{LinkType: "cable20"}, s.winch.cfg, s.winch.deps)
	s.Require().NoError(restored.Restore(core.MotorDeployed, 500))
	s.InDelta(20.0, restored.CableLength(), 1e-9)
}

func (s *WinchSuite) TestSampleReflectsState() {
	s.Require().NoError(s.winch.Deploy())
	s.Require().NoError(s.winch.SetMotorTarget(1))
	s.tick(1)

	sample := s.winch.Sample()
	s.Equal(core.PartID(1), sample.Part)
	s.Equal(core.MotorDeployed, sample.State)
	s.InDelta(s.winch.CableLength(), sample.CableLength, 1e-9)
	s.False(sample.PowerStarved)
}

func TestWinchSuite(t *testing.T) {
	suite.Run(t, new(WinchSuite))
}
