// Package link implements the link lifecycle: per-peer state machines,
// bus-mediated negotiation, joint construction on commit, and restore across
// save/load boundaries.
package link

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/attachkit/linkcore/internal/constraint"
	"github.com/attachkit/linkcore/internal/events"
	"github.com/attachkit/linkcore/internal/frame"
	"github.com/attachkit/linkcore/internal/fsm"
	"github.com/attachkit/linkcore/internal/joint"
	"github.com/attachkit/linkcore/pkg/core"
)

// probeRadius is the swept-sphere radius used for obstruction checks.
const probeRadius = 0.1

// BodyPose exposes live world-space poses from the physics provider.
type BodyPose interface {
	BodyPose(id core.PartID) (pos mgl64.Vec3, rot mgl64.Quat, root uint32, ok bool)
}

// Renderer visualizes a link. Purely cosmetic: consulted, never depended on
// for correctness.
type Renderer interface {
	StartVisual(source, target core.PartID)
	UpdateVisual(source core.PartID, from, to mgl64.Vec3)
	StopVisual(source core.PartID)
}

// Decoupler is the host seam that undoes vessel coupling when a restored
// docked link cannot be resolved.
type Decoupler interface {
	IsCoupled(a, b core.PartID) bool
	Decouple(a, b core.PartID)
}

// Deps are the collaborators a peer receives at construction. There are no
// package-level globals; every peer owns its references.
type Deps struct {
	Bus       *events.Bus
	Builder   *joint.Builder
	Poses     BodyPose
	Prober    constraint.Prober
	Scheduler *frame.Scheduler
	Renderer  Renderer
	Decoupler Decoupler
	Log       zerolog.Logger
}

// Peer is one endpoint of a potential or actual link. It owns at most one
// joint (source side) and never shares it.
type Peer struct {
	part *core.Part
	node core.AttachNode
	role core.PeerRole
	cfg  core.ConstraintConfig

	machine *fsm.Machine[core.LinkState]
	deps    Deps
	log     zerolog.Logger

	// mode and other are set while linked; other is a back-reference for
	// lookup only, the target never owns the joint.
	mode  core.LinkMode
	other *Peer
	joint *joint.Joint

	// courting is the source a target reacted to, so it can stand down when
	// that source stops linking.
	courting core.PartID

	// startedSub/stoppedSub are scoped bus subscriptions, held only while
	// the owning state is active.
	startedSub *events.Subscription
	stoppedSub *events.Subscription

	// blockedCheck reports whether the attach node is still physically
	// occupied; polled every frame while in NodeIsBlocked.
	blockedCheck func() bool
}

func sourceTable() map[core.LinkState][]core.LinkState {
	return map[core.LinkState][]core.LinkState{
		core.StateAvailable:      {core.StateLinking, core.StateRejectingLinks, core.StateNodeIsBlocked},
		core.StateLinking:        {core.StateAvailable, core.StateLinked},
		core.StateLinked:         {core.StateAvailable, core.StateLocked},
		core.StateLocked:         {core.StateLinked},
		core.StateRejectingLinks: {core.StateAvailable, core.StateNodeIsBlocked},
		core.StateNodeIsBlocked:  {core.StateAvailable, core.StateRejectingLinks},
	}
}

func targetTable() map[core.LinkState][]core.LinkState {
	return map[core.LinkState][]core.LinkState{
		core.StateAvailable:      {core.StateAcceptingLinks, core.StateRejectingLinks, core.StateNodeIsBlocked},
		core.StateAcceptingLinks: {core.StateAvailable, core.StateLinked},
		core.StateLinked:         {core.StateAvailable},
		core.StateRejectingLinks: {core.StateAvailable, core.StateNodeIsBlocked},
		core.StateNodeIsBlocked:  {core.StateAvailable, core.StateRejectingLinks},
	}
}

// NewSource creates a source peer in Available.
func NewSource(part *core.Part, node core.AttachNode, cfg core.ConstraintConfig, deps Deps) *Peer {
	return newPeer(part, node, cfg, core.RoleSource, deps)
}

// NewTarget creates a target peer in Available, already listening for
// linking broadcasts.
func NewTarget(part *core.Part, node core.AttachNode, cfg core.ConstraintConfig, deps Deps) *Peer {
	return newPeer(part, node, cfg, core.RoleTarget, deps)
}

func newPeer(part *core.Part, node core.AttachNode, cfg core.ConstraintConfig, role core.PeerRole, deps Deps) *Peer {
	p := &Peer{
		part: part,
		node: node,
		role: role,
		cfg:  cfg,
		deps: deps,
		log: deps.Log.With().
			Str("component", "link").
			Str("role", role.String()).
			Uint32("part", uint32(part.ID)).
			Logger(),
	}

	if role == core.RoleSource {
		p.machine = fsm.New(core.StateAvailable, sourceTable())
		p.machine.OnEnter(core.StateLinking, p.announceLinkingStarted)
		p.machine.OnLeave(core.StateLinking, p.announceLinkingStopped)
	} else {
		p.machine = fsm.New(core.StateAvailable, targetTable())
		p.machine.OnEnter(core.StateAvailable, p.acquireStartedSub)
		p.machine.OnLeave(core.StateAvailable, p.releaseStartedSub)
		p.machine.OnEnter(core.StateAcceptingLinks, p.acquireStoppedSub)
		p.machine.OnLeave(core.StateAcceptingLinks, p.releaseStoppedSub)
		// A target is born Available, so the constructor enters the state
		// without a transition and acquires the subscription directly.
		p.acquireStartedSub(core.StateAvailable, core.StateAvailable)
	}

	return p
}

// Part returns the owning part.
func (p *Peer) Part() *core.Part { return p.part }

// Node returns the link attach node.
func (p *Peer) Node() core.AttachNode { return p.node }

// Role returns the peer role.
func (p *Peer) Role() core.PeerRole { return p.role }

// State returns the current logical state.
func (p *Peer) State() core.LinkState { return p.machine.State() }

// Mode returns the link mode; meaningful only while linked or linking.
func (p *Peer) Mode() core.LinkMode { return p.mode }

// Other returns the opposite peer while linked.
func (p *Peer) Other() *Peer { return p.other }

// Joint returns the live joint; non-nil only on a linked source.
func (p *Peer) Joint() *joint.Joint { return p.joint }

// Config returns the peer's immutable constraint configuration.
func (p *Peer) Config() core.ConstraintConfig { return p.cfg }

// SetBlockedCheck installs the occupancy predicate polled while the peer is
// in NodeIsBlocked.
func (p *Peer) SetBlockedCheck(fn func() bool) {
	p.blockedCheck = fn
}

// SetNodeBlocked moves the peer into or out of NodeIsBlocked.
func (p *Peer) SetNodeBlocked(blocked bool) error {
	if blocked {
		return p.machine.RequestTransition(core.StateNodeIsBlocked)
	}
	if p.State() == core.StateNodeIsBlocked {
		return p.machine.RequestTransition(core.StateAvailable)
	}
	return nil
}

// PollBlockedNode re-checks the occupancy predicate. The exit from
// NodeIsBlocked is polled every frame rather than event-driven; the host
// gives no notification when a blocking part goes away.
func (p *Peer) PollBlockedNode() {
	if p.State() != core.StateNodeIsBlocked || p.blockedCheck == nil {
		return
	}
	if !p.blockedCheck() {
		if err := p.machine.RequestTransition(core.StateAvailable); err == nil {
			p.log.Debug().Msg("attach node no longer blocked")
		}
	}
}

// Lock moves a linked source into Locked (cable fully wound, connector
// rigidly seated).
func (p *Peer) Lock() error {
	return p.machine.RequestTransition(core.StateLocked)
}

// Unlock returns a locked source to plain Linked.
func (p *Peer) Unlock() error {
	return p.machine.RequestTransition(core.StateLinked)
}

// RefreshVisual pushes the current endpoint positions to the renderer.
// Called once per frame for linked sources; a no-op everywhere else.
func (p *Peer) RefreshVisual() {
	if p.deps.Renderer == nil || p.role != core.RoleSource || p.other == nil {
		return
	}
	from, _, _, ok := p.nodeWorldPose()
	if !ok {
		return
	}
	to, _, _, ok := p.other.nodeWorldPose()
	if !ok {
		return
	}
	p.deps.Renderer.UpdateVisual(p.part.ID, from, to)
}

// Teardown releases bus subscriptions and breaks any live link. Called at
// part destruction and vessel death.
func (p *Peer) Teardown() {
	if p.joint != nil || p.other != nil {
		p.breakLink(core.BreakReasonPartDeath, true)
	}
	p.releaseStartedSub(p.State(), p.State())
	p.releaseStoppedSub(p.State(), p.State())
}

// nodeWorldPose returns the attach node's world position and outward
// direction, plus the body's root for probe exclusion.
func (p *Peer) nodeWorldPose() (pos, fwd mgl64.Vec3, root uint32, ok bool) {
	bodyPos, bodyRot, root, ok := p.deps.Poses.BodyPose(p.part.ID)
	if !ok {
		return mgl64.Vec3{}, mgl64.Vec3{}, 0, false
	}
	pos = bodyPos.Add(bodyRot.Rotate(p.node.Position))
	fwd = bodyRot.Rotate(p.node.Forward())
	return pos, fwd, root, true
}
