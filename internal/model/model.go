package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/attachkit/linkcore/internal/geo"
	"github.com/attachkit/linkcore/pkg/core"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&PeerRecord{},
	&LinkEventRecord{},
	&MotorSampleRecord{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// Session groups everything recorded during one host game session
type Session struct {
	gorm.Model
	GameVersion   string    `json:"gameVersion" gorm:"size:64"`
	EngineVersion string    `json:"engineVersion" gorm:"size:64;default:1.0.0"`
	SaveName      string    `json:"saveName" gorm:"size:200"`
	StartTime     time.Time `json:"startTime" gorm:"type:timestamptz;index:idx_session_start"`
	Tag           string    `json:"tag" gorm:"size:127"`

	Peers        []PeerRecord
	LinkEvents   []LinkEventRecord
	MotorSamples []MotorSampleRecord
}

func (*Session) TableName() string {
	return "sessions"
}

// GetOrInsert looks up a session by save name and start time, inserting it
// when absent
func (s *Session) GetOrInsert(db *gorm.DB) (
	created bool,
	err error,
) {
	var existing Session
	err = db.Where("save_name = ? AND start_time = ?", s.SaveName, s.StartTime).First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			err = db.Create(s).Error
			return true, err
		}
		return false, err
	}
	// overwrite with db record if found
	*s = existing
	return false, nil
}

////////////////////////
// PERSISTENCE MODELS
////////////////////////

// PeerRecord is the persisted identity of one link peer.
// Uses composite primary key (SessionID, PartID) - a part carries at most one peer per session
type PeerRecord struct {
	SessionID uint           `json:"sessionId" gorm:"primaryKey;autoIncrement:false"`
	PartID    uint32         `json:"partId" gorm:"primaryKey;autoIncrement:false"`
	Session   Session        `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"deletedAt" gorm:"index"`

	VesselID    uint32         `json:"vesselId" gorm:"index:idx_peer_vessel"`
	Role        string         `json:"role" gorm:"size:16"`
	State       string         `json:"state" gorm:"size:32"`
	Mode        string         `json:"mode" gorm:"size:32"`
	TargetPart  uint32         `json:"targetPart"`
	MotorState  string         `json:"motorState" gorm:"size:16;default:Locked"`
	CableLength float64        `json:"cableLength"`
	NodeAnchor  []byte         `json:"-" gorm:"type:blob"` // WKB point
	NodeParams  datatypes.JSON `json:"nodeParams" gorm:"type:jsonb;default:'{}'"`
}

func (*PeerRecord) TableName() string {
	return "peer_records"
}

// LinkEventRecord is one created or broken link
type LinkEventRecord struct {
	gorm.Model
	SessionID uint      `json:"sessionId" gorm:"index:idx_linkevent_session"`
	Session   Session   `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Time      time.Time `json:"time" gorm:"type:timestamptz;index:idx_linkevent_time"`
	Kind      string    `json:"kind" gorm:"size:16"` // created | broken
	Source    uint32    `json:"source"`
	Target    uint32    `json:"target"`
	Mode      string    `json:"mode" gorm:"size:32"`
	Reason    string    `json:"reason" gorm:"size:64;default:NULL"`
}

func (*LinkEventRecord) TableName() string {
	return "link_event_records"
}

// MotorSampleRecord is one winch telemetry observation
type MotorSampleRecord struct {
	gorm.Model
	SessionID    uint      `json:"sessionId" gorm:"index:idx_motorsample_session"`
	Session      Session   `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Time         time.Time `json:"time" gorm:"type:timestamptz;index:idx_motorsample_time"`
	Part         uint32    `json:"part"`
	State        string    `json:"state" gorm:"size:16"`
	CableLength  float64   `json:"cableLength"`
	MotorSpeed   float64   `json:"motorSpeed"`
	PowerDraw    float64   `json:"powerDraw"`
	PowerStarved bool      `json:"powerStarved" gorm:"default:false"`
}

func (*MotorSampleRecord) TableName() string {
	return "motor_sample_records"
}

////////////////////////
// CONVERSION
////////////////////////

// PeerRecordFromSnapshot converts a runtime snapshot into its row form. The
// node anchor travels as WKB so it survives string migrations in SQLite.
func PeerRecordFromSnapshot(sessionID uint, snap core.LinkSnapshot, part *core.Part) (PeerRecord, error) {
	rec := PeerRecord{
		SessionID:   sessionID,
		PartID:      uint32(snap.PartID),
		VesselID:    uint32(snap.VesselID),
		Role:        snap.Role.String(),
		State:       snap.State.String(),
		Mode:        snap.Mode.String(),
		TargetPart:  uint32(snap.TargetPart),
		MotorState:  snap.Motor.String(),
		CableLength: snap.CableLength,
	}
	if part != nil && len(part.Nodes) > 0 {
		rec.NodeAnchor = geo.WKBFromVec3(part.Nodes[0].Position)
		params, err := json.Marshal(part.Nodes[0])
		if err != nil {
			return rec, err
		}
		rec.NodeParams = datatypes.JSON(params)
	}
	return rec, nil
}

// Snapshot converts a row back into its runtime form.
func (r PeerRecord) Snapshot() (core.LinkSnapshot, error) {
	role, err := core.ParsePeerRole(r.Role)
	if err != nil {
		return core.LinkSnapshot{}, err
	}
	state, err := core.ParseLinkState(r.State)
	if err != nil {
		return core.LinkSnapshot{}, err
	}
	mode, err := core.ParseLinkMode(r.Mode)
	if err != nil {
		return core.LinkSnapshot{}, err
	}
	motor, err := core.ParseMotorState(r.MotorState)
	if err != nil {
		return core.LinkSnapshot{}, err
	}
	return core.LinkSnapshot{
		VesselID:    core.VesselID(r.VesselID),
		PartID:      core.PartID(r.PartID),
		Role:        role,
		State:       state,
		Mode:        mode,
		TargetPart:  core.PartID(r.TargetPart),
		Motor:       motor,
		CableLength: r.CableLength,
	}, nil
}

// LinkEventFromCreated converts a bus event into its row form.
func LinkEventFromCreated(sessionID uint, ev core.LinkCreated) LinkEventRecord {
	return LinkEventRecord{
		SessionID: sessionID,
		Time:      ev.Time,
		Kind:      "created",
		Source:    uint32(ev.Source),
		Target:    uint32(ev.Target),
		Mode:      ev.Mode.String(),
	}
}

// LinkEventFromBroken converts a bus event into its row form.
func LinkEventFromBroken(sessionID uint, ev core.LinkBroken) LinkEventRecord {
	return LinkEventRecord{
		SessionID: sessionID,
		Time:      ev.Time,
		Kind:      "broken",
		Source:    uint32(ev.Source),
		Target:    uint32(ev.Target),
		Mode:      ev.Mode.String(),
		Reason:    string(ev.Reason),
	}
}

// MotorSampleRecordFrom converts a telemetry sample into its row form.
func MotorSampleRecordFrom(sessionID uint, s core.MotorSample) MotorSampleRecord {
	return MotorSampleRecord{
		SessionID:    sessionID,
		Time:         s.Time,
		Part:         uint32(s.Part),
		State:        s.State.String(),
		CableLength:  s.CableLength,
		MotorSpeed:   s.MotorSpeed,
		PowerDraw:    s.PowerDraw,
		PowerStarved: s.PowerStarved,
	}
}
