// pkg/core/types.go
package core

import "fmt"

// PartID identifies a part within a loaded scene. IDs are assigned by the
// host and stay stable across save/load, which is what makes persisted link
// identity resolvable.
type PartID uint32

// VesselID identifies a vessel (a connected assembly of parts).
type VesselID uint32

// LinkMode describes what a established link does to vessel topology.
type LinkMode int

const (
	// ModeDockVessels couples the two vessels into one when the link forms.
	ModeDockVessels LinkMode = iota
	// ModeTiePartsOnSameVessel keeps both parts on one vessel; the link is a
	// purely structural tie and must not change vessel topology.
	ModeTiePartsOnSameVessel
	// ModeTiePartsOnDifferentVessels ties parts across two vessels without
	// coupling them.
	ModeTiePartsOnDifferentVessels
	// ModeTieAnyParts ties parts regardless of vessel membership.
	ModeTieAnyParts
)

// String returns the mode name used in logs and persisted rows.
func (m LinkMode) String() string {
	switch m {
	case ModeDockVessels:
		return "DockVessels"
	case ModeTiePartsOnSameVessel:
		return "TiePartsOnSameVessel"
	case ModeTiePartsOnDifferentVessels:
		return "TiePartsOnDifferentVessels"
	case ModeTieAnyParts:
		return "TieAnyParts"
	default:
		return "Unknown"
	}
}

// CouplesVessels reports whether the mode changes vessel topology. Restore
// of a link in a coupling mode that cannot be resolved must issue a
// corrective decouple.
func (m LinkMode) CouplesVessels() bool {
	return m == ModeDockVessels
}

// LinkState is the logical lifecycle state of one link peer. Sources and
// targets share the value set but have different legal transition graphs.
type LinkState int

const (
	StateAvailable LinkState = iota
	StateLinking
	StateRejectingLinks
	StateAcceptingLinks
	StateLinked
	StateLocked
	StateNodeIsBlocked
)

func (s LinkState) String() string {
	switch s {
	case StateAvailable:
		return "Available"
	case StateLinking:
		return "Linking"
	case StateRejectingLinks:
		return "RejectingLinks"
	case StateAcceptingLinks:
		return "AcceptingLinks"
	case StateLinked:
		return "Linked"
	case StateLocked:
		return "Locked"
	case StateNodeIsBlocked:
		return "NodeIsBlocked"
	default:
		return "Unknown"
	}
}

// MotorState is the cable connector state of a winch. The cable length is
// exactly zero in Locked and Docked; only Deployed and Plugged permit length
// changes.
type MotorState int

const (
	MotorLocked MotorState = iota
	MotorDeployed
	MotorPlugged
	MotorDocked
)

func (s MotorState) String() string {
	switch s {
	case MotorLocked:
		return "Locked"
	case MotorDeployed:
		return "Deployed"
	case MotorPlugged:
		return "Plugged"
	case MotorDocked:
		return "Docked"
	default:
		return "Unknown"
	}
}

// ParseLinkMode inverts LinkMode.String for persisted rows.
func ParseLinkMode(s string) (LinkMode, error) {
	for _, m := range []LinkMode{ModeDockVessels, ModeTiePartsOnSameVessel, ModeTiePartsOnDifferentVessels, ModeTieAnyParts} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown link mode %q", s)
}

// ParseLinkState inverts LinkState.String for persisted rows.
func ParseLinkState(s string) (LinkState, error) {
	for st := StateAvailable; st <= StateNodeIsBlocked; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown link state %q", s)
}

// ParseMotorState inverts MotorState.String for persisted rows.
func ParseMotorState(s string) (MotorState, error) {
	for st := MotorLocked; st <= MotorDocked; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown motor state %q", s)
}

// ParsePeerRole inverts PeerRole.String for persisted rows.
func ParsePeerRole(s string) (PeerRole, error) {
	switch s {
	case "source":
		return RoleSource, nil
	case "target":
		return RoleTarget, nil
	}
	return 0, fmt.Errorf("unknown peer role %q", s)
}

// PeerRole distinguishes the two ends of a link.
type PeerRole int

const (
	RoleSource PeerRole = iota
	RoleTarget
)

func (r PeerRole) String() string {
	if r == RoleTarget {
		return "target"
	}
	return "source"
}
