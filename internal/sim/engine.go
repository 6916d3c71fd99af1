// Package sim drives the link engine at a fixed step: it owns the part
// registry, the live peers and winches, per-frame polling, periodic motor
// sampling, and the pack/unpack persistence flow.
package sim

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/attachkit/linkcore/internal/cache"
	"github.com/attachkit/linkcore/internal/constraint"
	"github.com/attachkit/linkcore/internal/events"
	"github.com/attachkit/linkcore/internal/frame"
	"github.com/attachkit/linkcore/internal/joint"
	"github.com/attachkit/linkcore/internal/link"
	"github.com/attachkit/linkcore/internal/physics"
	"github.com/attachkit/linkcore/internal/storage"
	"github.com/attachkit/linkcore/internal/winch"
	"github.com/attachkit/linkcore/pkg/core"
)

// EventRecorder receives link lifecycle events and motor samples. The
// storage backend satisfies it directly; telemetry and streaming sinks are
// wrapped by thin adapters at wiring time.
type EventRecorder interface {
	RecordLinkCreated(ev core.LinkCreated) error
	RecordLinkBroken(ev core.LinkBroken) error
	RecordMotorSample(s core.MotorSample) error
}

// Deps are the engine's collaborators. Backend holds peer snapshots and may
// be nil when persistence is disabled; Recorders receive lifecycle events
// and motor samples (the backend itself, telemetry, the streaming feed, or
// an async write pump in front of any of them).
type Deps struct {
	Bus       *events.Bus
	World     *physics.World
	Builder   *joint.Builder
	Scheduler *frame.Scheduler
	Backend   storage.Backend
	Renderer  link.Renderer
	Decoupler link.Decoupler
	Recorders []EventRecorder

	// SampleInterval is how often motor samples are recorded. Zero disables
	// sampling.
	SampleInterval time.Duration

	Log zerolog.Logger
}

// Engine is the per-scene coordinator. It is driven from the host's main
// thread; methods are not safe for concurrent use except where the
// underlying caches already are.
type Engine struct {
	deps Deps
	log  zerolog.Logger

	registry *cache.PartRegistry
	types    *cache.LinkTypeCache
	peers    map[core.PartID]*link.Peer
	winches  map[core.PartID]*winch.Winch

	ticks       cache.SafeCounter
	sinceSample float64

	createdSub *events.Subscription
	brokenSub  *events.Subscription
}

// NewEngine creates an engine and subscribes it to the link lifecycle
// topics so every created and broken link reaches storage and the extra
// recorders.
func NewEngine(deps Deps) *Engine {
	e := &Engine{
		deps:     deps,
		log:      deps.Log.With().Str("component", "sim").Logger(),
		registry: cache.NewPartRegistry(),
		types:    cache.NewLinkTypeCache(),
		peers:    make(map[core.PartID]*link.Peer),
		winches:  make(map[core.PartID]*winch.Winch),
	}

	e.createdSub = deps.Bus.Subscribe(core.TopicLinkCreated, func(ev events.Event) {
		created, ok := ev.Payload.(core.LinkCreated)
		if !ok {
			return
		}
		e.record(func(r EventRecorder) error { return r.RecordLinkCreated(created) })
	})
	e.brokenSub = deps.Bus.Subscribe(core.TopicLinkBroken, func(ev events.Event) {
		broken, ok := ev.Payload.(core.LinkBroken)
		if !ok {
			return
		}
		e.record(func(r EventRecorder) error { return r.RecordLinkBroken(broken) })
	})

	return e
}

// record runs fn against every recorder, logging failures instead of
// propagating them. Sinks must never stall the frame.
func (e *Engine) record(fn func(EventRecorder) error) {
	for _, r := range e.deps.Recorders {
		if err := fn(r); err != nil {
			e.log.Error().Err(err).Msg("event recorder failed")
		}
	}
}

// Registry exposes the part registry for host bookkeeping.
func (e *Engine) Registry() *cache.PartRegistry { return e.registry }

// LinkTypes exposes the link type cache.
func (e *Engine) LinkTypes() *cache.LinkTypeCache { return e.types }

// Ticks returns the number of completed fixed-step frames.
func (e *Engine) Ticks() int { return e.ticks.Value() }

// linkDeps assembles the per-peer dependency set from the engine's own.
func (e *Engine) linkDeps() link.Deps {
	return link.Deps{
		Bus:       e.deps.Bus,
		Builder:   e.deps.Builder,
		Poses:     e.deps.World,
		Prober:    e.deps.World,
		Scheduler: e.deps.Scheduler,
		Renderer:  e.deps.Renderer,
		Decoupler: e.deps.Decoupler,
		Log:       e.deps.Log,
	}
}

// AddSourcePeer registers a part (if new) and attaches a source peer to the
// named node. At most one peer per part.
func (e *Engine) AddSourcePeer(part *core.Part, nodeName string, cfg core.ConstraintConfig) (*link.Peer, error) {
	node, err := e.admitPeer(part, nodeName)
	if err != nil {
		return nil, err
	}
	p := link.NewSource(part, node, cfg, e.linkDeps())
	e.peers[part.ID] = p
	return p, nil
}

// AddTargetPeer registers a part (if new) and attaches a target peer to the
// named node.
func (e *Engine) AddTargetPeer(part *core.Part, nodeName string, cfg core.ConstraintConfig) (*link.Peer, error) {
	node, err := e.admitPeer(part, nodeName)
	if err != nil {
		return nil, err
	}
	p := link.NewTarget(part, node, cfg, e.linkDeps())
	e.peers[part.ID] = p
	return p, nil
}

func (e *Engine) admitPeer(part *core.Part, nodeName string) (core.AttachNode, error) {
	if _, exists := e.peers[part.ID]; exists {
		return core.AttachNode{}, fmt.Errorf("part %d already has a peer", part.ID)
	}
	node, ok := part.Node(nodeName)
	if !ok {
		return core.AttachNode{}, fmt.Errorf("part %d has no node %q", part.ID, nodeName)
	}
	e.registry.Add(part)
	return node, nil
}

// AddWinch registers a winch on the housing part. Power, docked and notify
// are the host seams for this particular winch; docked and notify may be
// nil.
func (e *Engine) AddWinch(housing *core.Part, housingNode string, connector *core.Part, connectorNode string,
	linkCfg core.ConstraintConfig, cfg core.WinchConfig,
	power winch.PowerProvider, docked winch.DockPredicate, notify func(string)) (*winch.Winch, error) {
	if _, exists := e.winches[housing.ID]; exists {
		return nil, fmt.Errorf("part %d already has a winch", housing.ID)
	}
	hNode, ok := housing.Node(housingNode)
	if !ok {
		return nil, fmt.Errorf("part %d has no node %q", housing.ID, housingNode)
	}
	cNode, ok := connector.Node(connectorNode)
	if !ok {
		return nil, fmt.Errorf("part %d has no node %q", connector.ID, connectorNode)
	}

	e.registry.Add(housing)
	e.registry.Add(connector)

	w := winch.New(housing, hNode, connector, cNode, linkCfg, cfg, winch.Deps{
		Builder: e.deps.Builder,
		Poses:   e.deps.World,
		Power:   power,
		Docked:  docked,
		Notify:  notify,
		Log:     e.deps.Log,
	})
	e.winches[housing.ID] = w
	return w, nil
}

// PeerByPart returns the live peer for a part. Satisfies the restore
// resolver.
func (e *Engine) PeerByPart(id core.PartID) (*link.Peer, bool) {
	p, ok := e.peers[id]
	return p, ok
}

// WinchByPart returns the winch housed on a part.
func (e *Engine) WinchByPart(id core.PartID) (*winch.Winch, bool) {
	w, ok := e.winches[id]
	return w, ok
}

// LinkPeers runs the commit path between a linking source and an accepting
// target, by part ID.
func (e *Engine) LinkPeers(source, target core.PartID) (*constraint.Failure, error) {
	src, ok := e.peers[source]
	if !ok {
		return nil, fmt.Errorf("no peer on part %d", source)
	}
	tgt, ok := e.peers[target]
	if !ok {
		return nil, fmt.Errorf("no peer on part %d", target)
	}
	return src.LinkTo(tgt)
}

// RemovePart tears down everything attached to a destroyed part: its peer,
// its winch, its registry entry and its persisted snapshot.
func (e *Engine) RemovePart(id core.PartID) {
	if p, ok := e.peers[id]; ok {
		p.Teardown()
		delete(e.peers, id)
	}
	if w, ok := e.winches[id]; ok {
		w.ReconcileExternalState(core.MotorLocked)
		delete(e.winches, id)
	}
	e.registry.Remove(id)
	if e.deps.Backend != nil {
		if err := e.deps.Backend.DeletePeerSnapshot(id); err != nil {
			e.log.Error().Err(err).Uint32("part", uint32(id)).Msg("snapshot delete failed")
		}
	}
}

// Tick advances one fixed-step frame: physics step, blocked-node polling,
// visual refresh, winch motors, periodic motor sampling, then the deferred
// end-of-frame tasks.
func (e *Engine) Tick(dt float64) {
	e.deps.World.Step(dt)

	for _, p := range e.peers {
		p.PollBlockedNode()
		p.RefreshVisual()
	}

	for _, w := range e.winches {
		w.Tick(dt)
	}

	if e.deps.SampleInterval > 0 {
		e.sinceSample += dt
		if e.sinceSample >= e.deps.SampleInterval.Seconds() {
			e.sinceSample = 0
			e.sampleMotors()
		}
	}

	e.deps.Scheduler.Drain()
	e.ticks.Inc()
}

func (e *Engine) sampleMotors() {
	for _, w := range e.winches {
		s := w.Sample()
		e.record(func(r EventRecorder) error { return r.RecordMotorSample(s) })
	}
}

// PackVessel persists the logical identity of every peer on the vessel.
// Winch housings carry their motor state and cable length in the same
// snapshot.
func (e *Engine) PackVessel(vessel core.VesselID) error {
	if e.deps.Backend == nil {
		return fmt.Errorf("no storage backend")
	}
	for _, id := range e.registry.VesselParts(vessel) {
		p, ok := e.peers[id]
		if !ok {
			continue
		}
		snap := p.SaveIdentity()
		if w, ok := e.winches[id]; ok {
			snap.Motor, snap.CableLength = w.Snapshot()
		}
		if err := e.deps.Backend.SavePeerSnapshot(snap, p.Part()); err != nil {
			return fmt.Errorf("pack vessel %d: %w", vessel, err)
		}
	}
	e.log.Info().Uint32("vessel", uint32(vessel)).Msg("vessel packed")
	return nil
}

// UnpackVessel restores persisted peer identity at physics-unpack time.
// Unresolvable snapshots collapse to Available inside the restore path;
// the vessel as a whole still unpacks.
func (e *Engine) UnpackVessel(vessel core.VesselID) error {
	if e.deps.Backend == nil {
		return fmt.Errorf("no storage backend")
	}
	snaps, err := e.deps.Backend.LoadPeerSnapshots(vessel)
	if err != nil {
		return fmt.Errorf("unpack vessel %d: %w", vessel, err)
	}
	for _, snap := range snaps {
		p, ok := e.peers[snap.PartID]
		if !ok {
			e.log.Error().Uint32("part", uint32(snap.PartID)).Msg("snapshot for unknown part, skipping")
			continue
		}
		if !p.RestoreIdentity(snap, e) {
			continue
		}
		if w, ok := e.winches[snap.PartID]; ok {
			if err := w.Restore(snap.Motor, snap.CableLength); err != nil {
				e.log.Error().Err(err).Uint32("part", uint32(snap.PartID)).Msg("winch restore failed")
			}
		}
	}
	e.log.Info().Uint32("vessel", uint32(vessel)).Int("peers", len(snaps)).Msg("vessel unpacked")
	return nil
}

// PurgeVessel tears down every peer on a dead vessel and drops its
// persisted rows.
func (e *Engine) PurgeVessel(vessel core.VesselID) {
	for _, id := range e.registry.VesselParts(vessel) {
		if p, ok := e.peers[id]; ok {
			p.Teardown()
			delete(e.peers, id)
		}
		delete(e.winches, id)
		e.registry.Remove(id)
	}
	if e.deps.Backend != nil {
		if err := e.deps.Backend.PurgeVessel(vessel); err != nil {
			e.log.Error().Err(err).Uint32("vessel", uint32(vessel)).Msg("vessel purge failed")
		}
	}
}

// Close releases the engine's bus subscriptions and tears down all live
// peers.
func (e *Engine) Close() {
	for _, p := range e.peers {
		p.Teardown()
	}
	e.peers = make(map[core.PartID]*link.Peer)
	e.winches = make(map[core.PartID]*winch.Winch)
	e.registry.Reset()
	if e.createdSub != nil {
		e.createdSub.Close()
	}
	if e.brokenSub != nil {
		e.brokenSub.Close()
	}
}
