// internal/link/restore.go
//
// Persistence stores only logical peer identity; there is no half-linked
// state on disk. Physics-unpack rebuilds joints deterministically from that
// identity, and anything unresolvable collapses to Available with a
// corrective decouple where the mode implied coupling.
package link

import (
	"time"

	"github.com/attachkit/linkcore/pkg/core"
)

// Resolver finds live peers at restore time.
type Resolver interface {
	PeerByPart(id core.PartID) (*Peer, bool)
}

// SaveIdentity captures the peer's persistable identity.
func (p *Peer) SaveIdentity() core.LinkSnapshot {
	snap := core.LinkSnapshot{
		VesselID: p.part.VesselID,
		PartID:   p.part.ID,
		Role:     p.role,
		State:    p.State(),
		Mode:     p.mode,
	}
	if p.other != nil {
		snap.TargetPart = p.other.part.ID
	}
	return snap
}

// RestoreIdentity re-establishes a persisted state at physics-unpack time.
// Restore runs then, not at load, because alignment geometry is only valid
// once physics has begun. Returns false when the snapshot could not be
// honored and the peer was forced back to Available.
func (p *Peer) RestoreIdentity(snap core.LinkSnapshot, resolve Resolver) bool {
	p.mode = snap.Mode

	switch snap.State {
	case core.StateLinked, core.StateLocked:
		return p.restoreLink(snap, resolve)
	case core.StateLinking, core.StateAcceptingLinks:
		// Linking mode does not survive a save boundary; the UI layer owns
		// any player-facing timeout, we just come back Available.
		p.machine.ForceTransition(core.StateAvailable)
		return true
	default:
		p.machine.ForceTransition(snap.State)
		return true
	}
}

func (p *Peer) restoreLink(snap core.LinkSnapshot, resolve Resolver) bool {
	if p.role == core.RoleTarget {
		// The source side rebuilds the joint; the target just remembers it
		// is linked. The back-reference is wired by the source's restore.
		p.machine.ForceTransition(core.StateLinked)
		return true
	}

	target, ok := resolve.PeerByPart(snap.TargetPart)
	if !ok {
		p.log.Error().
			Uint32("target", uint32(snap.TargetPart)).
			Msg("restored link target does not exist, unlinking")
		p.abortRestore(snap)
		return false
	}

	j, err := p.buildJoint(target)
	if err != nil {
		p.log.Error().Err(err).Msg("could not rebuild restored joint, unlinking")
		p.abortRestore(snap)
		return false
	}

	p.joint = j
	p.other = target
	target.other = p
	target.mode = snap.Mode
	j.OnBreak(p.handleJointBreak)

	p.machine.ForceTransition(snap.State)
	target.machine.ForceTransition(core.StateLinked)

	if p.deps.Renderer != nil {
		p.deps.Renderer.StartVisual(p.part.ID, target.part.ID)
	}
	p.log.Info().
		Uint32("target", uint32(target.part.ID)).
		Str("state", snap.State.String()).
		Msg("link restored")
	return true
}

// abortRestore reverts the peer to Available and, when the persisted mode
// implied rigid coupling, schedules exactly one corrective decouple so the
// stored and live geometry cannot silently diverge. The deferred task
// re-validates the coupling before acting; another module may already have
// resolved it.
func (p *Peer) abortRestore(snap core.LinkSnapshot) {
	p.joint = nil
	p.other = nil
	p.machine.ForceTransition(core.StateAvailable)

	p.deps.Bus.Publish(core.TopicLinkBroken, core.LinkBroken{
		Source: p.part.ID,
		Target: snap.TargetPart,
		Mode:   snap.Mode,
		Reason: core.BreakReasonBadRestore,
		Time:   time.Now(),
	})

	if !snap.Mode.CouplesVessels() || p.deps.Decoupler == nil || p.deps.Scheduler == nil {
		return
	}
	src, tgt := p.part.ID, snap.TargetPart
	p.deps.Scheduler.Schedule("correctiveDecouple", func() {
		if !p.deps.Decoupler.IsCoupled(src, tgt) {
			return
		}
		p.log.Info().Uint32("target", uint32(tgt)).Msg("issuing corrective decouple")
		p.deps.Decoupler.Decouple(src, tgt)
	})
}
