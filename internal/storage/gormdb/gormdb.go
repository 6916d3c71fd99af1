// Package gormdb persists link session data through a gorm connection,
// Postgres when reachable and embedded SQLite otherwise.
package gormdb

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm/clause"

	"github.com/attachkit/linkcore/internal/database"
	"github.com/attachkit/linkcore/internal/model"
	"github.com/attachkit/linkcore/internal/session"
	"github.com/attachkit/linkcore/pkg/core"
)

// Backend stores link session data through gorm
type Backend struct {
	manager  *database.Manager
	log      zerolog.Logger
	sessions *session.Context
}

// New creates a gorm backend on the given database manager
func New(manager *database.Manager, log zerolog.Logger) *Backend {
	return &Backend{
		manager:  manager,
		log:      log.With().Str("component", "storage").Logger(),
		sessions: session.NewContext(),
	}
}

// Session exposes the session context so exporters can annotate their
// output with the active save.
func (b *Backend) Session() *session.Context { return b.sessions }

// DumpTo vacuums an in-memory session database to path so it can be
// uploaded. Sessions recorded straight to Postgres have nothing to dump.
func (b *Backend) DumpTo(path string) error {
	if !b.manager.ShouldSaveLocal {
		return fmt.Errorf("session database is not local")
	}
	b.manager.SqliteFilePath = path
	return b.manager.DumpMemoryToDisk()
}

// Init connects and migrates the schema
func (b *Backend) Init() error {
	if err := b.manager.Connect(); err != nil {
		return err
	}
	return b.manager.Setup()
}

// Close ends any open session and closes the connection
func (b *Backend) Close() error {
	if b.sessions.Active() {
		if err := b.EndSession(); err != nil {
			b.log.Error().Err(err).Msg("could not end session on close")
		}
	}
	if b.manager.SqlDB != nil {
		return b.manager.SqlDB.Close()
	}
	return nil
}

// StartSession opens (or resumes) the session row for this save
func (b *Backend) StartSession(saveName, tag string) error {
	s := &model.Session{
		SaveName:  saveName,
		Tag:       tag,
		StartTime: time.Now().Truncate(time.Second),
	}
	created, err := s.GetOrInsert(b.manager.DB)
	if err != nil {
		return fmt.Errorf("could not start session: %w", err)
	}
	b.sessions.Set(s)
	b.log.Info().Uint("session", s.ID).Bool("created", created).Str("save", saveName).Msg("session started")
	return nil
}

// EndSession closes the current session
func (b *Backend) EndSession() error {
	b.sessions.Set(&model.Session{})
	return nil
}

func (b *Backend) sessionID() (uint, error) {
	if !b.sessions.Active() {
		return 0, fmt.Errorf("no session open")
	}
	return b.sessions.Get().ID, nil
}

// SavePeerSnapshot upserts the snapshot row for a part
func (b *Backend) SavePeerSnapshot(snap core.LinkSnapshot, part *core.Part) error {
	id, err := b.sessionID()
	if err != nil {
		return err
	}
	rec, err := model.PeerRecordFromSnapshot(id, snap, part)
	if err != nil {
		return err
	}
	return b.manager.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "part_id"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

// LoadPeerSnapshots returns the snapshots of every peer on a vessel
func (b *Backend) LoadPeerSnapshots(vessel core.VesselID) ([]core.LinkSnapshot, error) {
	id, err := b.sessionID()
	if err != nil {
		return nil, err
	}
	var rows []model.PeerRecord
	err = b.manager.DB.
		Where("session_id = ? AND vessel_id = ?", id, uint32(vessel)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	snaps := make([]core.LinkSnapshot, 0, len(rows))
	for _, row := range rows {
		snap, err := row.Snapshot()
		if err != nil {
			// A malformed row must not poison the rest of the vessel.
			b.log.Error().Err(err).Uint32("part", row.PartID).Msg("skipping unreadable peer record")
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// DeletePeerSnapshot removes the snapshot row for a part
func (b *Backend) DeletePeerSnapshot(part core.PartID) error {
	id, err := b.sessionID()
	if err != nil {
		return err
	}
	return b.manager.DB.
		Where("session_id = ? AND part_id = ?", id, uint32(part)).
		Delete(&model.PeerRecord{}).Error
}

// PurgeVessel removes every snapshot row on a vessel
func (b *Backend) PurgeVessel(vessel core.VesselID) error {
	id, err := b.sessionID()
	if err != nil {
		return err
	}
	return b.manager.DB.
		Where("session_id = ? AND vessel_id = ?", id, uint32(vessel)).
		Delete(&model.PeerRecord{}).Error
}

// RecordLinkCreated records a created link
func (b *Backend) RecordLinkCreated(ev core.LinkCreated) error {
	id, err := b.sessionID()
	if err != nil {
		return err
	}
	rec := model.LinkEventFromCreated(id, ev)
	return b.manager.DB.Create(&rec).Error
}

// RecordLinkBroken records a broken link
func (b *Backend) RecordLinkBroken(ev core.LinkBroken) error {
	id, err := b.sessionID()
	if err != nil {
		return err
	}
	rec := model.LinkEventFromBroken(id, ev)
	return b.manager.DB.Create(&rec).Error
}

// RecordMotorSample records a winch telemetry sample
func (b *Backend) RecordMotorSample(s core.MotorSample) error {
	id, err := b.sessionID()
	if err != nil {
		return err
	}
	rec := model.MotorSampleRecordFrom(id, s)
	return b.manager.DB.Create(&rec).Error
}
