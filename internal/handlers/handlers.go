// Package handlers is the host-facing command boundary. The host calls in
// with a command name and string arguments; handlers decode them, run the
// matching engine operation and answer with a JSON response. Everything the
// host can do to the link engine goes through this surface.
package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/attachkit/linkcore/internal/sim"
	"github.com/attachkit/linkcore/internal/util"
	"github.com/attachkit/linkcore/internal/winch"
	"github.com/attachkit/linkcore/pkg/core"
)

// Command names as the host sends them.
const (
	CmdNewLinkType  = ":NEW:LINKTYPE:"
	CmdNewPart      = ":NEW:PART:"
	CmdNewWinch     = ":NEW:WINCH:"
	CmdRemovePart   = ":REMOVE:PART:"
	CmdLinkStart    = ":LINK:START:"
	CmdLinkCancel   = ":LINK:CANCEL:"
	CmdLinkCommit   = ":LINK:COMMIT:"
	CmdLinkBreak    = ":LINK:BREAK:"
	CmdLinkLock     = ":LINK:LOCK:"
	CmdLinkUnlock   = ":LINK:UNLOCK:"
	CmdNodeBlocked  = ":NODE:BLOCKED:"
	CmdWinchDeploy  = ":WINCH:DEPLOY:"
	CmdWinchMotor   = ":WINCH:MOTOR:"
	CmdWinchPlug    = ":WINCH:PLUG:"
	CmdWinchUnplug  = ":WINCH:UNPLUG:"
	CmdWinchLock    = ":WINCH:LOCK:"
	CmdVesselPack   = ":VESSEL:PACK:"
	CmdVesselUnpack = ":VESSEL:UNPACK:"
	CmdVesselPurge  = ":VESSEL:PURGE:"
	CmdQueryPeer    = ":QUERY:PEER:"
)

// PartDef is the JSON body of :NEW:PART:.
type PartDef struct {
	ID             uint32            `json:"id"`
	VesselID       uint32            `json:"vesselId"`
	Title          string            `json:"title"`
	Mass           float64           `json:"mass"`
	BreakingForce  float64           `json:"breakingForce"`
	BreakingTorque float64           `json:"breakingTorque"`
	Nodes          []core.AttachNode `json:"nodes"`

	// Role is "source" or "target"; Node names the attach node the peer
	// binds to; LinkType must already be registered.
	Role     string `json:"role"`
	Node     string `json:"node"`
	LinkType string `json:"linkType"`
}

// WinchDef is the JSON body of :NEW:WINCH:. Housing and connector must have
// been announced as parts first; the housing part carries the source peer.
type WinchDef struct {
	Housing       uint32          `json:"housing"`
	HousingNode   string          `json:"housingNode"`
	Connector     uint32          `json:"connector"`
	ConnectorNode string          `json:"connectorNode"`
	LinkType      string          `json:"linkType"`
	Config        core.WinchConfig `json:"config"`
}

// PeerStatus is the JSON response of :QUERY:PEER:.
type PeerStatus struct {
	Part        uint32  `json:"part"`
	Role        string  `json:"role"`
	State       string  `json:"state"`
	Mode        string  `json:"mode"`
	Target      uint32  `json:"target,omitempty"`
	MotorState  string  `json:"motorState,omitempty"`
	CableLength float64 `json:"cableLength,omitempty"`
}

// Dependencies holds the service's collaborators. Power and Docked are the
// host seams handed to every winch the host announces; Notify surfaces
// winch user messages back to the host.
type Dependencies struct {
	Engine *sim.Engine
	Power  winch.PowerProvider
	Docked winch.DockPredicate
	Notify func(msg string)
	Log    zerolog.Logger
}

// Service routes host commands to engine operations.
type Service struct {
	deps  Dependencies
	log   zerolog.Logger
	table map[string]func(args []string) (string, error)
}

// NewService creates the command service with its full dispatch table.
func NewService(deps Dependencies) *Service {
	s := &Service{
		deps: deps,
		log:  deps.Log.With().Str("component", "handlers").Logger(),
	}
	s.table = map[string]func(args []string) (string, error){
		CmdNewLinkType:  s.handleNewLinkType,
		CmdNewPart:      s.handleNewPart,
		CmdNewWinch:     s.handleNewWinch,
		CmdRemovePart:   s.handleRemovePart,
		CmdLinkStart:    s.handleLinkStart,
		CmdLinkCancel:   s.handleLinkCancel,
		CmdLinkCommit:   s.handleLinkCommit,
		CmdLinkBreak:    s.handleLinkBreak,
		CmdLinkLock:     s.handleLinkLock,
		CmdLinkUnlock:   s.handleLinkUnlock,
		CmdNodeBlocked:  s.handleNodeBlocked,
		CmdWinchDeploy:  s.handleWinchDeploy,
		CmdWinchMotor:   s.handleWinchMotor,
		CmdWinchPlug:    s.handleWinchPlug,
		CmdWinchUnplug:  s.handleWinchUnplug,
		CmdWinchLock:    s.handleWinchLock,
		CmdVesselPack:   s.handleVesselPack,
		CmdVesselUnpack: s.handleVesselUnpack,
		CmdVesselPurge:  s.handleVesselPurge,
		CmdQueryPeer:    s.handleQueryPeer,
	}
	return s
}

// Dispatch runs the named command. Unknown commands are an error, not a
// panic; the host's addon version may be newer than this library.
func (s *Service) Dispatch(command string, args []string) (string, error) {
	h, ok := s.table[command]
	if !ok {
		return "", fmt.Errorf("unknown command %q", command)
	}
	resp, err := h(util.CleanArgs(args))
	if err != nil {
		s.log.Error().Err(err).Str("command", command).Msg("command failed")
	}
	return resp, err
}

func wantArgs(args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("expected %d args, got %d", n, len(args))
	}
	return nil
}

func parsePart(arg string) (core.PartID, error) {
	v, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad part id %q: %w", arg, err)
	}
	return core.PartID(v), nil
}

func parseVessel(arg string) (core.VesselID, error) {
	v, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad vessel id %q: %w", arg, err)
	}
	return core.VesselID(v), nil
}

// handleNewLinkType registers a constraint configuration under a name.
// Args: name, config JSON.
func (s *Service) handleNewLinkType(args []string) (string, error) {
	if err := wantArgs(args, 2); err != nil {
		return "", err
	}
	var cfg core.ConstraintConfig
	if err := json.Unmarshal([]byte(args[1]), &cfg); err != nil {
		return "", fmt.Errorf("bad link type config: %w", err)
	}
	if cfg.LinkType == "" {
		cfg.LinkType = args[0]
	}
	s.deps.Engine.LinkTypes().Set(args[0], cfg)
	return "ok", nil
}

// handleNewPart announces a part and binds its link peer. Args: part JSON.
func (s *Service) handleNewPart(args []string) (string, error) {
	if err := wantArgs(args, 1); err != nil {
		return "", err
	}
	var def PartDef
	if err := json.Unmarshal([]byte(args[0]), &def); err != nil {
		return "", fmt.Errorf("bad part definition: %w", err)
	}
	cfg, ok := s.deps.Engine.LinkTypes().Get(def.LinkType)
	if !ok {
		return "", fmt.Errorf("unknown link type %q", def.LinkType)
	}

	part := &core.Part{
		ID:             core.PartID(def.ID),
		VesselID:       core.VesselID(def.VesselID),
		Title:          def.Title,
		Mass:           def.Mass,
		BreakingForce:  def.BreakingForce,
		BreakingTorque: def.BreakingTorque,
		Nodes:          def.Nodes,
	}

	role, err := core.ParsePeerRole(def.Role)
	if err != nil {
		return "", err
	}
	if role == core.RoleSource {
		_, err = s.deps.Engine.AddSourcePeer(part, def.Node, cfg)
	} else {
		_, err = s.deps.Engine.AddTargetPeer(part, def.Node, cfg)
	}
	if err != nil {
		return "", err
	}
	return "ok", nil
}

// handleNewWinch attaches a winch to an announced housing part. Args: winch
// JSON.
func (s *Service) handleNewWinch(args []string) (string, error) {
	if err := wantArgs(args, 1); err != nil {
		return "", err
	}
	var def WinchDef
	if err := json.Unmarshal([]byte(args[0]), &def); err != nil {
		return "", fmt.Errorf("bad winch definition: %w", err)
	}
	cfg, ok := s.deps.Engine.LinkTypes().Get(def.LinkType)
	if !ok {
		return "", fmt.Errorf("unknown link type %q", def.LinkType)
	}
	housing, ok := s.deps.Engine.Registry().Get(core.PartID(def.Housing))
	if !ok {
		return "", fmt.Errorf("unknown housing part %d", def.Housing)
	}
	connector, ok := s.deps.Engine.Registry().Get(core.PartID(def.Connector))
	if !ok {
		return "", fmt.Errorf("unknown connector part %d", def.Connector)
	}

	_, err := s.deps.Engine.AddWinch(housing, def.HousingNode, connector, def.ConnectorNode,
		cfg, def.Config, s.deps.Power, s.deps.Docked, s.deps.Notify)
	if err != nil {
		return "", err
	}
	return "ok", nil
}

// handleRemovePart tears everything down for a destroyed part. Args: part.
func (s *Service) handleRemovePart(args []string) (string, error) {
	if err := wantArgs(args, 1); err != nil {
		return "", err
	}
	id, err := parsePart(args[0])
	if err != nil {
		return "", err
	}
	s.deps.Engine.RemovePart(id)
	return "ok", nil
}

// handleLinkStart puts a source into linking mode. Args: part, mode.
func (s *Service) handleLinkStart(args []string) (string, error) {
	if err := wantArgs(args, 2); err != nil {
		return "", err
	}
	id, err := parsePart(args[0])
	if err != nil {
		return "", err
	}
	mode, err := core.ParseLinkMode(args[1])
	if err != nil {
		return "", err
	}
	p, ok := s.deps.Engine.PeerByPart(id)
	if !ok {
		return "", fmt.Errorf("no peer on part %d", id)
	}
	return "ok", p.StartLinking(mode)
}

// handleLinkCancel abandons linking mode. Args: part.
func (s *Service) handleLinkCancel(args []string) (string, error) {
	if err := wantArgs(args, 1); err != nil {
		return "", err
	}
	id, err := parsePart(args[0])
	if err != nil {
		return "", err
	}
	p, ok := s.deps.Engine.PeerByPart(id)
	if !ok {
		return "", fmt.Errorf("no peer on part %d", id)
	}
	return "ok", p.CancelLinking()
}

// handleLinkCommit consummates a link. Args: source part, target part.
// A geometric rejection is an answer for the host, not an error.
func (s *Service) handleLinkCommit(args []string) (string, error) {
	if err := wantArgs(args, 2); err != nil {
		return "", err
	}
	src, err := parsePart(args[0])
	if err != nil {
		return "", err
	}
	tgt, err := parsePart(args[1])
	if err != nil {
		return "", err
	}
	fail, err := s.deps.Engine.LinkPeers(src, tgt)
	if err != nil {
		return "", err
	}
	if fail != nil {
		return "rejected: " + fail.Reason, nil
	}
	return "ok", nil
}

// handleLinkBreak breaks a live link on host request. Args: part.
func (s *Service) handleLinkBreak(args []string) (string, error) {
	if err := wantArgs(args, 1); err != nil {
		return "", err
	}
	id, err := parsePart(args[0])
	if err != nil {
		return "", err
	}
	p, ok := s.deps.Engine.PeerByPart(id)
	if !ok {
		return "", fmt.Errorf("no peer on part %d", id)
	}
	return "ok", p.BreakLink(core.BreakReasonAPI)
}

// handleLinkLock moves a linked source to Locked. Args: part.
func (s *Service) handleLinkLock(args []string) (string, error) {
	if err := wantArgs(args, 1); err != nil {
		return "", err
	}
	id, err := parsePart(args[0])
	if err != nil {
		return "", err
	}
	p, ok := s.deps.Engine.PeerByPart(id)
	if !ok {
		return "", fmt.Errorf("no peer on part %d", id)
	}
	return "ok", p.Lock()
}

// handleLinkUnlock returns a locked source to Linked. Args: part.
func (s *Service) handleLinkUnlock(args []string) (string, error) {
	if err := wantArgs(args, 1); err != nil {
		return "", err
	}
	id, err := parsePart(args[0])
	if err != nil {
		return "", err
	}
	p, ok := s.deps.Engine.PeerByPart(id)
	if !ok {
		return "", fmt.Errorf("no peer on part %d", id)
	}
	return "ok", p.Unlock()
}

// handleNodeBlocked flags a peer's attach node occupied or free. Args:
// part, "true"/"false".
func (s *Service) handleNodeBlocked(args []string) (string, error) {
	if err := wantArgs(args, 2); err != nil {
		return "", err
	}
	id, err := parsePart(args[0])
	if err != nil {
		return "", err
	}
	blocked, err := strconv.ParseBool(args[1])
	if err != nil {
		return "", fmt.Errorf("bad blocked flag %q: %w", args[1], err)
	}
	p, ok := s.deps.Engine.PeerByPart(id)
	if !ok {
		return "", fmt.Errorf("no peer on part %d", id)
	}
	return "ok", p.SetNodeBlocked(blocked)
}

func (s *Service) winchFor(arg string) (*winch.Winch, error) {
	id, err := parsePart(arg)
	if err != nil {
		return nil, err
	}
	w, ok := s.deps.Engine.WinchByPart(id)
	if !ok {
		return nil, fmt.Errorf("no winch on part %d", id)
	}
	return w, nil
}

// handleWinchDeploy releases the connector. Args: housing part.
func (s *Service) handleWinchDeploy(args []string) (string, error) {
	if err := wantArgs(args, 1); err != nil {
		return "", err
	}
	w, err := s.winchFor(args[0])
	if err != nil {
		return "", err
	}
	return "ok", w.Deploy()
}

// handleWinchMotor commands the motor. Args: housing part, speed.
func (s *Service) handleWinchMotor(args []string) (string, error) {
	if err := wantArgs(args, 2); err != nil {
		return "", err
	}
	w, err := s.winchFor(args[0])
	if err != nil {
		return "", err
	}
	speed, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return "", fmt.Errorf("bad motor speed %q: %w", args[1], err)
	}
	return "ok", w.SetMotorTarget(speed)
}

// handleWinchPlug plugs the connector into a target part. Args: housing
// part, target part.
func (s *Service) handleWinchPlug(args []string) (string, error) {
	if err := wantArgs(args, 2); err != nil {
		return "", err
	}
	w, err := s.winchFor(args[0])
	if err != nil {
		return "", err
	}
	target, err := parsePart(args[1])
	if err != nil {
		return "", err
	}
	return "ok", w.PlugTo(target)
}

// handleWinchUnplug releases a plugged connector. Args: housing part.
func (s *Service) handleWinchUnplug(args []string) (string, error) {
	if err := wantArgs(args, 1); err != nil {
		return "", err
	}
	w, err := s.winchFor(args[0])
	if err != nil {
		return "", err
	}
	return "ok", w.Unplug()
}

// handleWinchLock seats the connector when fully wound and aligned. Args:
// housing part.
func (s *Service) handleWinchLock(args []string) (string, error) {
	if err := wantArgs(args, 1); err != nil {
		return "", err
	}
	w, err := s.winchFor(args[0])
	if err != nil {
		return "", err
	}
	return "ok", w.Lock()
}

// handleVesselPack persists the vessel's peers. Args: vessel.
func (s *Service) handleVesselPack(args []string) (string, error) {
	if err := wantArgs(args, 1); err != nil {
		return "", err
	}
	v, err := parseVessel(args[0])
	if err != nil {
		return "", err
	}
	return "ok", s.deps.Engine.PackVessel(v)
}

// handleVesselUnpack restores the vessel's peers. Args: vessel.
func (s *Service) handleVesselUnpack(args []string) (string, error) {
	if err := wantArgs(args, 1); err != nil {
		return "", err
	}
	v, err := parseVessel(args[0])
	if err != nil {
		return "", err
	}
	return "ok", s.deps.Engine.UnpackVessel(v)
}

// handleVesselPurge drops a dead vessel. Args: vessel.
func (s *Service) handleVesselPurge(args []string) (string, error) {
	if err := wantArgs(args, 1); err != nil {
		return "", err
	}
	v, err := parseVessel(args[0])
	if err != nil {
		return "", err
	}
	s.deps.Engine.PurgeVessel(v)
	return "ok", nil
}

// handleQueryPeer answers with the peer's live status. Args: part.
func (s *Service) handleQueryPeer(args []string) (string, error) {
	if err := wantArgs(args, 1); err != nil {
		return "", err
	}
	id, err := parsePart(args[0])
	if err != nil {
		return "", err
	}
	p, ok := s.deps.Engine.PeerByPart(id)
	if !ok {
		return "", fmt.Errorf("no peer on part %d", id)
	}

	status := PeerStatus{
		Part:  uint32(p.Part().ID),
		Role:  p.Role().String(),
		State: p.State().String(),
		Mode:  p.Mode().String(),
	}
	if other := p.Other(); other != nil {
		status.Target = uint32(other.Part().ID)
	}
	if w, ok := s.deps.Engine.WinchByPart(id); ok {
		status.MotorState = w.State().String()
		status.CableLength = w.CableLength()
	}

	out, err := json.Marshal(status)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
