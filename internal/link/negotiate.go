// internal/link/negotiate.go
//
// Multi-peer negotiation runs over the bus: a source entering Linking
// broadcasts, every Available target independently reacts. No shared
// mutable globals; each subscription is scoped to the state that needs it.
package link

import (
	"fmt"

	"github.com/attachkit/linkcore/internal/events"
	"github.com/attachkit/linkcore/pkg/core"
)

// StartLinking puts a source into linking mode. Targets hear the broadcast
// and move to AcceptingLinks or RejectingLinks on their own.
func (p *Peer) StartLinking(mode core.LinkMode) error {
	if p.role != core.RoleSource {
		return fmt.Errorf("part %d: only sources start linking", p.part.ID)
	}
	p.mode = mode
	return p.machine.RequestTransition(core.StateLinking)
}

// CancelLinking withdraws a source from linking mode before a joint exists.
// Either party may cancel; targets stand down via the stopped broadcast.
func (p *Peer) CancelLinking() error {
	if p.State() != core.StateLinking {
		return fmt.Errorf("part %d: not in linking mode", p.part.ID)
	}
	return p.machine.RequestTransition(core.StateAvailable)
}

// announceLinkingStarted fires on the source entering Linking.
func (p *Peer) announceLinkingStarted(_, _ core.LinkState) {
	p.log.Info().Str("mode", p.mode.String()).Msg("linking started")
	p.deps.Bus.Publish(core.TopicLinkingStarted, core.LinkingStarted{
		Source:       p.part.ID,
		SourceVessel: p.part.VesselID,
		LinkType:     p.cfg.LinkType,
		Mode:         p.mode,
	})
}

// announceLinkingStopped fires on the source leaving Linking, whether by
// cancellation or a consummated link.
func (p *Peer) announceLinkingStopped(_, _ core.LinkState) {
	p.deps.Bus.Publish(core.TopicLinkingStopped, core.LinkingStopped{
		Source:   p.part.ID,
		LinkType: p.cfg.LinkType,
	})
}

// acquireStartedSub subscribes an Available target to linking broadcasts.
func (p *Peer) acquireStartedSub(_, _ core.LinkState) {
	if p.startedSub != nil {
		return
	}
	p.startedSub = p.deps.Bus.Subscribe(core.TopicLinkingStarted, p.onLinkingStarted)
}

func (p *Peer) releaseStartedSub(_, _ core.LinkState) {
	p.startedSub.Close()
	p.startedSub = nil
}

// acquireStoppedSub subscribes an accepting target to the matching stop
// broadcast so it can stand down.
func (p *Peer) acquireStoppedSub(_, _ core.LinkState) {
	if p.stoppedSub != nil {
		return
	}
	p.stoppedSub = p.deps.Bus.Subscribe(core.TopicLinkingStopped, p.onLinkingStopped)
}

func (p *Peer) releaseStoppedSub(_, _ core.LinkState) {
	p.stoppedSub.Close()
	p.stoppedSub = nil
	p.courting = 0
}

func (p *Peer) onLinkingStarted(e events.Event) {
	ann, ok := e.Payload.(core.LinkingStarted)
	if !ok {
		return
	}
	if !p.compatibleWith(ann) {
		// Stay put; rejecting only matters for peers that want to forbid
		// re-announcement, and silence keeps racing sources cheap.
		return
	}
	if err := p.machine.RequestTransition(core.StateAcceptingLinks); err != nil {
		// Expected when, say, two sources race for the same target.
		p.log.Debug().Err(err).Msg("ignoring linking broadcast")
		return
	}
	p.courting = ann.Source
	p.log.Debug().Uint32("source", uint32(ann.Source)).Msg("accepting links")
}

func (p *Peer) onLinkingStopped(e events.Event) {
	ann, ok := e.Payload.(core.LinkingStopped)
	if !ok {
		return
	}
	if ann.Source != p.courting {
		return
	}
	// Only stand down if still waiting; a consummated link already moved
	// the machine to Linked.
	if p.State() == core.StateAcceptingLinks {
		if err := p.machine.RequestTransition(core.StateAvailable); err != nil {
			p.log.Debug().Err(err).Msg("could not stand down")
		}
	}
}

// compatibleWith decides whether a target reacts to a linking broadcast:
// same link type tag, not its own part, and a vessel relation matching the
// announced mode.
func (p *Peer) compatibleWith(ann core.LinkingStarted) bool {
	if ann.LinkType != p.cfg.LinkType {
		return false
	}
	if ann.Source == p.part.ID {
		return false
	}
	switch ann.Mode {
	case core.ModeTiePartsOnSameVessel:
		return ann.SourceVessel == p.part.VesselID
	case core.ModeDockVessels, core.ModeTiePartsOnDifferentVessels:
		return ann.SourceVessel != p.part.VesselID
	default:
		return true
	}
}
