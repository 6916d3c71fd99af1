// internal/link/connect.go
package link

import (
	"fmt"
	"time"

	"github.com/attachkit/linkcore/internal/constraint"
	"github.com/attachkit/linkcore/internal/joint"
	"github.com/attachkit/linkcore/pkg/core"
)

// LinkTo consummates a link between a linking source and an accepting
// target. The returned *constraint.Failure is a recoverable geometric
// rejection with no state change; the error covers transition and joint
// construction problems, after which both peers are rolled back to their
// pre-attempt states.
func (p *Peer) LinkTo(target *Peer) (*constraint.Failure, error) {
	if p.role != core.RoleSource {
		return nil, fmt.Errorf("part %d: only sources link", p.part.ID)
	}
	if p.State() != core.StateLinking {
		return nil, fmt.Errorf("part %d: not in linking mode (state %s)", p.part.ID, p.State())
	}
	if target == nil || target.State() != core.StateAcceptingLinks {
		return nil, fmt.Errorf("target not accepting links")
	}

	if fail := p.checkFeasibility(target); fail != nil {
		p.log.Info().Str("reason", fail.Reason).Msg("link rejected by constraints")
		return fail, nil
	}

	j, err := p.buildJoint(target)
	if err != nil {
		p.log.Error().Err(err).Msg("joint construction failed, aborting link")
		return nil, err
	}

	// Commit both peers. Source leaves Linking (publishing the stop
	// broadcast) before the target reacts to it, so the target's stand-down
	// handler sees itself already Linked and stays put.
	if err := target.machine.RequestTransition(core.StateLinked); err != nil {
		j.Destroy()
		return nil, err
	}
	if err := p.machine.RequestTransition(core.StateLinked); err != nil {
		target.machine.ForceTransition(core.StateAvailable)
		j.Destroy()
		return nil, err
	}

	p.joint = j
	p.other = target
	target.other = p
	target.mode = p.mode
	j.OnBreak(p.handleJointBreak)

	if p.deps.Renderer != nil {
		p.deps.Renderer.StartVisual(p.part.ID, target.part.ID)
	}
	p.deps.Bus.Publish(core.TopicLinkCreated, core.LinkCreated{
		Source: p.part.ID,
		Target: target.part.ID,
		Mode:   p.mode,
		Time:   time.Now(),
	})

	p.log.Info().
		Uint32("target", uint32(target.part.ID)).
		Str("mode", p.mode.String()).
		Float64("breakForce", j.BreakForce()).
		Msg("linked")
	return nil, nil
}

// checkFeasibility runs the composed constraint check against live poses.
func (p *Peer) checkFeasibility(target *Peer) *constraint.Failure {
	srcPos, srcFwd, srcRoot, ok := p.nodeWorldPose()
	if !ok {
		return &constraint.Failure{Reason: "source body not instantiated"}
	}
	tgtPos, tgtFwd, tgtRoot, ok := target.nodeWorldPose()
	if !ok {
		return &constraint.Failure{Reason: "target body not instantiated"}
	}

	return constraint.Check(constraint.Params{
		SourcePos:        srcPos,
		TargetPos:        tgtPos,
		SourceFwd:        srcFwd,
		TargetFwd:        tgtFwd,
		MinLength:        p.cfg.MinLinkLength,
		MaxLength:        p.cfg.MaxLinkLength,
		SourceAngleLimit: p.cfg.SourceAngleLimit,
		TargetAngleLimit: target.cfg.TargetAngleLimit,
		Prober:           p.deps.Prober,
		ProbeRadius:      probeRadius,
		ExcludeRoots:     []uint32{srcRoot, tgtRoot},
	})
}

// buildJoint selects the topology for the committed mode: docking couples
// parts rigidly, ties get the poseable dual-spherical elbow.
func (p *Peer) buildJoint(target *Peer) (*joint.Joint, error) {
	src := &joint.Endpoint{Part: p.part, Node: p.node, Config: p.cfg}
	tgt := &joint.Endpoint{Part: target.part, Node: target.node, Config: target.cfg}

	if p.mode.CouplesVessels() {
		return p.deps.Builder.BuildRigid(src, tgt)
	}
	return p.deps.Builder.BuildDualSpherical(src, tgt)
}

// BreakLink tears the link down by explicit request.
func (p *Peer) BreakLink(reason core.BreakReason) error {
	if p.other == nil {
		return fmt.Errorf("part %d: not linked", p.part.ID)
	}
	// The target side delegates to the owning source.
	if p.role == core.RoleTarget {
		return p.other.BreakLink(reason)
	}
	p.breakLink(reason, true)
	return nil
}

// handleJointBreak is the physics-engine break callback; the joint itself
// is already gone when it fires.
func (p *Peer) handleJointBreak(reason core.BreakReason) {
	p.log.Info().Str("reason", string(reason)).Msg("joint broke")
	p.breakLink(reason, false)
}

// breakLink is the single teardown path. Logical state and physical joint
// existence must never disagree past this call.
func (p *Peer) breakLink(reason core.BreakReason, destroyJoint bool) {
	target := p.other
	if destroyJoint && p.joint != nil {
		if err := p.joint.Destroy(); err != nil {
			p.log.Error().Err(err).Msg("joint teardown failed")
		}
	}
	p.joint = nil
	p.other = nil

	p.machine.ForceTransition(core.StateAvailable)

	var targetID core.PartID
	if target != nil {
		targetID = target.part.ID
		target.other = nil
		target.machine.ForceTransition(core.StateAvailable)
	}

	if p.deps.Renderer != nil {
		p.deps.Renderer.StopVisual(p.part.ID)
	}
	p.deps.Bus.Publish(core.TopicLinkBroken, core.LinkBroken{
		Source: p.part.ID,
		Target: targetID,
		Mode:   p.mode,
		Reason: reason,
		Time:   time.Now(),
	})
	p.log.Info().Str("reason", string(reason)).Msg("link broken")
}
