// Package winch layers the cable motor controller on top of a deployed
// link: a second state machine governing connector state, cable length,
// power consumption and the lock alignment check.
package winch

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/attachkit/linkcore/internal/constraint"
	"github.com/attachkit/linkcore/internal/fsm"
	"github.com/attachkit/linkcore/internal/joint"
	"github.com/attachkit/linkcore/pkg/core"
)

// Pose exposes live world poses from the physics provider.
type Pose interface {
	BodyPose(id core.PartID) (pos mgl64.Vec3, rot mgl64.Quat, root uint32, ok bool)
}

// PowerProvider is the resource seam. RequestPower returns the amount
// actually granted.
type PowerProvider interface {
	RequestPower(amount float64) float64
}

// DockPredicate decides whether a plugged connector occupies the target's
// reciprocal attach node and therefore counts as docked. The heuristic is
// host-specific, so it stays pluggable.
type DockPredicate func(connector, target core.PartID) bool

// Deps are the winch's collaborators.
type Deps struct {
	Builder *joint.Builder
	Poses   Pose
	Power   PowerProvider
	Docked  DockPredicate

	// Notify surfaces one-shot user-facing messages; may be nil.
	Notify func(msg string)

	Log zerolog.Logger
}

func motorTable() map[core.MotorState][]core.MotorState {
	return map[core.MotorState][]core.MotorState{
		core.MotorLocked:   {core.MotorDeployed, core.MotorPlugged, core.MotorDocked},
		core.MotorDeployed: {core.MotorLocked, core.MotorPlugged},
		core.MotorPlugged:  {core.MotorDeployed, core.MotorDocked},
		core.MotorDocked:   {core.MotorPlugged, core.MotorLocked},
	}
}

// Winch owns the cable joint between its housing and its connector and
// drives the maximum allowed cable length with a speed-ramped motor.
type Winch struct {
	housing       *core.Part
	housingNode   core.AttachNode
	connector     *core.Part
	connectorNode core.AttachNode

	linkCfg core.ConstraintConfig
	cfg     core.WinchConfig

	machine *fsm.Machine[core.MotorState]
	cable   *joint.Joint
	deps    Deps
	log     zerolog.Logger

	// maxAllowedLength is the live cable bound, always within
	// [0, cfg.MaxCableLength]. The cable joint's rest length tracks it.
	maxAllowedLength float64

	motorSpeed  float64
	motorTarget float64

	// plugTarget is set while Plugged/Docked.
	plugTarget core.PartID

	// One-shot message latches; cleared when the condition is re-armed.
	boundNotified bool
	alignNotified bool
	powerFailed   bool
}

// New creates a winch with the connector locked and no cable joint.
func New(housing *core.Part, housingNode core.AttachNode, connector *core.Part, connectorNode core.AttachNode,
	linkCfg core.ConstraintConfig, cfg core.WinchConfig, deps Deps) *Winch {
	return &Winch{
		housing:       housing,
		housingNode:   housingNode,
		connector:     connector,
		connectorNode: connectorNode,
		linkCfg:       linkCfg,
		cfg:           cfg,
		machine:       fsm.New(core.MotorLocked, motorTable()),
		deps:          deps,
		log: deps.Log.With().
			Str("component", "winch").
			Uint32("part", uint32(housing.ID)).
			Logger(),
	}
}

// State returns the motor state.
func (w *Winch) State() core.MotorState { return w.machine.State() }

// CableLength returns the maximum allowed cable length.
func (w *Winch) CableLength() float64 { return w.maxAllowedLength }

// MotorSpeed returns the current (ramped) motor speed.
func (w *Winch) MotorSpeed() float64 { return w.motorSpeed }

// Connector returns the connector part.
func (w *Winch) Connector() *core.Part { return w.connector }

// notify surfaces a one-shot user message.
func (w *Winch) notify(msg string) {
	if w.deps.Notify != nil {
		w.deps.Notify(msg)
	}
	w.log.Info().Msg(msg)
}

// buildCable constructs the housing-connector cable joint at the current
// allowed length.
func (w *Winch) buildCable() error {
	src := &joint.Endpoint{Part: w.housing, Node: w.housingNode, Config: w.linkCfg}
	con := &joint.Endpoint{Part: w.connector, Node: w.connectorNode, Config: w.linkCfg}
	j, err := w.deps.Builder.BuildCable(src, con, w.cfg, w.maxAllowedLength)
	if err != nil {
		return err
	}
	w.cable = j
	return nil
}

func (w *Winch) dropCable() {
	if w.cable != nil {
		if err := w.cable.Destroy(); err != nil {
			w.log.Error().Err(err).Msg("cable teardown failed")
		}
		w.cable = nil
	}
}

// Deploy releases the connector as an independent physical object on the
// cable. Length starts at zero; the motor pays cable out from there.
func (w *Winch) Deploy() error {
	if err := w.machine.RequestTransition(core.MotorDeployed); err != nil {
		return err
	}
	if w.cable == nil {
		if err := w.buildCable(); err != nil {
			w.machine.ForceTransition(core.MotorLocked)
			return err
		}
	}
	w.log.Info().Msg("connector deployed")
	return nil
}

// PlugTo attaches the connector to a target socket. Whether that counts as
// plugged or docked depends on the host's coupling heuristic.
func (w *Winch) PlugTo(target core.PartID) error {
	next := core.MotorPlugged
	if w.deps.Docked != nil && w.deps.Docked(w.connector.ID, target) {
		next = core.MotorDocked
	}
	if err := w.machine.RequestTransition(next); err != nil {
		return err
	}
	w.plugTarget = target

	if next == core.MotorDocked {
		// Docked means fully coupled: zero cable, no spring.
		w.killMotor()
		w.maxAllowedLength = 0
		w.dropCable()
	} else if w.cable == nil {
		if err := w.buildCable(); err != nil {
			w.machine.ForceTransition(core.MotorLocked)
			w.plugTarget = 0
			return err
		}
	}
	w.log.Info().Str("state", next.String()).Uint32("target", uint32(target)).Msg("connector plugged")
	return nil
}

// Unplug returns a plugged connector to plain deployed.
func (w *Winch) Unplug() error {
	if err := w.machine.RequestTransition(core.MotorDeployed); err != nil {
		return err
	}
	w.plugTarget = 0
	if w.cable == nil {
		return w.buildCable()
	}
	return nil
}

// ReconcileExternalState applies a state change that originated in the
// host's coupling mechanism (a docking event, an undock after load). It
// bypasses the motor's own table but keeps the invariants: docked and
// locked force the cable to zero and drop the joint.
func (w *Winch) ReconcileExternalState(s core.MotorState) {
	if s == w.State() {
		return
	}
	w.log.Info().Str("from", w.State().String()).Str("to", s.String()).Msg("reconciling external state")
	w.machine.ForceTransition(s)
	switch s {
	case core.MotorDocked, core.MotorLocked:
		w.killMotor()
		w.maxAllowedLength = 0
		w.dropCable()
		if s == core.MotorLocked {
			w.plugTarget = 0
		}
	case core.MotorDeployed, core.MotorPlugged:
		if w.cable == nil {
			if err := w.buildCable(); err != nil {
				w.log.Error().Err(err).Msg("could not rebuild cable on reconcile")
			}
		}
	}
}

// killMotor stops the motor immediately.
func (w *Winch) killMotor() {
	w.motorSpeed = 0
	w.motorTarget = 0
}

// motorAllowed reports whether the motor may run in the current state.
func (w *Winch) motorAllowed() bool {
	s := w.State()
	return s == core.MotorDeployed || s == core.MotorPlugged
}

// SetMotorTarget commands the motor. Speed is clamped to the configured
// maximum; a direction reversal resets the current speed to zero before
// ramping, preventing an instantaneous force reversal. Commands that would
// push past a cable bound already reached are refused with a single
// user-facing message.
func (w *Winch) SetMotorTarget(speed float64) error {
	if !w.motorAllowed() {
		return fmt.Errorf("motor unavailable in state %s", w.State())
	}

	speed = math.Max(-w.cfg.MotorMaxSpeed, math.Min(w.cfg.MotorMaxSpeed, speed))

	if speed > 0 && w.maxAllowedLength >= w.cfg.MaxCableLength {
		if !w.boundNotified {
			w.boundNotified = true
			w.notify("cable is at maximum length")
		}
		return nil
	}
	if speed < 0 && w.maxAllowedLength <= 0 {
		if !w.boundNotified {
			w.boundNotified = true
			w.notify("cable is fully retracted")
		}
		return nil
	}
	w.boundNotified = false
	w.alignNotified = false
	w.powerFailed = false

	if speed != 0 && w.motorSpeed != 0 && math.Signbit(speed) != math.Signbit(w.motorSpeed) {
		w.motorSpeed = 0
	}
	w.motorTarget = speed
	return nil
}

// Tick advances the motor by one fixed step: ramps speed toward the
// target, draws power, moves the cable bound, and handles bound arrival.
func (w *Winch) Tick(dt float64) {
	if !w.motorAllowed() || (w.motorSpeed == 0 && w.motorTarget == 0) {
		return
	}

	// Partial power kills the motor outright; partial speed would drift
	// the length non-deterministically across save/reload.
	drain := w.cfg.PowerDrainPerSec * dt
	if w.deps.Power != nil && drain > 0 {
		granted := w.deps.Power.RequestPower(drain)
		if granted < drain {
			w.killMotor()
			if !w.powerFailed {
				w.powerFailed = true
				w.notify("winch motor lost power")
			}
			return
		}
	}

	// Ramp toward the target.
	if w.motorSpeed < w.motorTarget {
		w.motorSpeed = math.Min(w.motorSpeed+w.cfg.MotorAcceleration*dt, w.motorTarget)
	} else if w.motorSpeed > w.motorTarget {
		w.motorSpeed = math.Max(w.motorSpeed-w.cfg.MotorAcceleration*dt, w.motorTarget)
	}

	retracting := w.motorSpeed < 0
	w.maxAllowedLength += w.motorSpeed * dt

	if w.maxAllowedLength >= w.cfg.MaxCableLength {
		w.maxAllowedLength = w.cfg.MaxCableLength
		w.killMotor()
		w.notify("cable is at maximum length")
		w.boundNotified = true
	} else if w.maxAllowedLength <= 0 {
		w.maxAllowedLength = 0
		w.killMotor()
		if retracting {
			w.tryAutoLock()
		}
	}

	if w.cable != nil {
		if err := w.cable.SetRestLength(w.maxAllowedLength); err != nil {
			w.log.Error().Err(err).Msg("could not update cable rest length")
		}
	}
}

// tryAutoLock attempts the deterministic lock at zero length.
func (w *Winch) tryAutoLock() {
	if fail := w.CheckAlignment(); fail != nil {
		if !w.alignNotified {
			w.alignNotified = true
			w.notify("cannot lock: " + fail.Reason)
		}
		return
	}
	w.lock()
}

// lock commits the terminal lock action.
func (w *Winch) lock() {
	w.machine.ForceTransition(core.MotorLocked)
	w.killMotor()
	w.maxAllowedLength = 0
	w.plugTarget = 0
	w.dropCable()
	w.log.Info().Msg("connector locked")
}

// CheckAlignment verifies both lock criteria: the connector sits within the
// distance tolerance of the housing node, and its forward axis opposes the
// housing's within the angular tolerance. Both must hold; cable slack at a
// large angular offset would otherwise permit implausible snap locks.
func (w *Winch) CheckAlignment() *constraint.Failure {
	housePos, houseRot, _, ok := w.deps.Poses.BodyPose(w.housing.ID)
	if !ok {
		return &constraint.Failure{Reason: "winch body not instantiated"}
	}
	conPos, conRot, _, ok := w.deps.Poses.BodyPose(w.connector.ID)
	if !ok {
		return &constraint.Failure{Reason: "connector body not instantiated"}
	}

	nodeWorld := housePos.Add(houseRot.Rotate(w.housingNode.Position))
	dist := conPos.Add(conRot.Rotate(w.connectorNode.Position)).Sub(nodeWorld).Len()
	if dist > w.cfg.LockMaxErrorDist {
		return &constraint.Failure{Reason: fmt.Sprintf(
			"connector is %.3fm from the winch mouth (max %.3fm)", dist, w.cfg.LockMaxErrorDist)}
	}

	// The connector faces the housing, so aligned forward vectors point in
	// opposite directions.
	houseFwd := houseRot.Rotate(w.housingNode.Forward())
	conFwd := conRot.Rotate(w.connectorNode.Forward())
	deviation := 180 - constraint.AngleBetweenDeg(conFwd, houseFwd)
	if deviation > w.cfg.LockMaxErrorDir {
		return &constraint.Failure{Reason: fmt.Sprintf(
			"connector is off-axis by %.1f° (max %.1f°)", deviation, w.cfg.LockMaxErrorDir)}
	}
	return nil
}

// Lock attempts an explicit lock from deployed at zero length.
func (w *Winch) Lock() error {
	if w.State() != core.MotorDeployed && w.State() != core.MotorPlugged {
		return fmt.Errorf("cannot lock from state %s", w.State())
	}
	if w.maxAllowedLength > 0 {
		return fmt.Errorf("cable not fully retracted (%.2fm)", w.maxAllowedLength)
	}
	if fail := w.CheckAlignment(); fail != nil {
		return fmt.Errorf("cannot lock: %s", fail.Reason)
	}
	w.lock()
	return nil
}

// Snapshot returns the persistable motor state and cable length.
func (w *Winch) Snapshot() (core.MotorState, float64) {
	return w.State(), w.maxAllowedLength
}

// Restore re-establishes a persisted motor state at physics-unpack time.
func (w *Winch) Restore(state core.MotorState, length float64) error {
	length = math.Max(0, math.Min(w.cfg.MaxCableLength, length))
	w.maxAllowedLength = length
	w.ReconcileExternalState(state)
	if w.State() != state {
		return fmt.Errorf("could not restore motor state %s", state)
	}
	return nil
}

// Sample captures a telemetry observation.
func (w *Winch) Sample() core.MotorSample {
	return core.MotorSample{
		Part:         w.housing.ID,
		State:        w.State(),
		CableLength:  w.maxAllowedLength,
		MotorSpeed:   w.motorSpeed,
		PowerDraw:    w.cfg.PowerDrainPerSec,
		PowerStarved: w.powerFailed,
	}
}
