package model

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attachkit/linkcore/internal/geo"
	"github.com/attachkit/linkcore/pkg/core"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"Session", &Session{}, "sessions"},
		{"PeerRecord", &PeerRecord{}, "peer_records"},
		{"LinkEventRecord", &LinkEventRecord{}, "link_event_records"},
		{"MotorSampleRecord", &MotorSampleRecord{}, "motor_sample_records"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestPeerRecord_SnapshotRoundTrip(t *testing.T) {
	snap := core.LinkSnapshot{
		VesselID:    10,
		PartID:      42,
		Role:        core.RoleSource,
		State:       core.StateLinked,
		Mode:        core.ModeDockVessels,
		TargetPart:  43,
		Motor:       core.MotorDeployed,
		CableLength: 2.5,
	}
	part := &core.Part{
		ID: 42,
		Nodes: []core.AttachNode{{
			Name:     "portNode",
			Position: mgl64.Vec3{0, 0.5, 1.25},
			Size:     1,
			IsStack:  true,
		}},
	}

	rec, err := PeerRecordFromSnapshot(3, snap, part)
	require.NoError(t, err)
	assert.Equal(t, uint(3), rec.SessionID)
	assert.Equal(t, "Linked", rec.State)
	assert.Equal(t, "DockVessels", rec.Mode)
	assert.NotEmpty(t, rec.NodeAnchor)
	assert.NotEmpty(t, rec.NodeParams)

	anchor, err := geo.Vec3FromWKB(rec.NodeAnchor)
	require.NoError(t, err)
	assert.Equal(t, part.Nodes[0].Position, anchor)

	back, err := rec.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snap, back)
}

func TestPeerRecord_Snapshot_BadState(t *testing.T) {
	rec := PeerRecord{Role: "source", State: "Wobbly", Mode: "DockVessels", MotorState: "Locked"}
	_, err := rec.Snapshot()
	assert.ErrorContains(t, err, "unknown link state")
}

func TestLinkEventConversions(t *testing.T) {
	now := time.Now()

	created := LinkEventFromCreated(1, core.LinkCreated{
		Source: 5, Target: 6, Mode: core.ModeTieAnyParts, Time: now,
	})
	assert.Equal(t, "created", created.Kind)
	assert.Equal(t, uint32(5), created.Source)
	assert.Empty(t, created.Reason)

	broken := LinkEventFromBroken(1, core.LinkBroken{
		Source: 5, Target: 6, Mode: core.ModeTieAnyParts,
		Reason: core.BreakReasonForce, Time: now,
	})
	assert.Equal(t, "broken", broken.Kind)
	assert.Equal(t, string(core.BreakReasonForce), broken.Reason)
}

func TestMotorSampleRecordFrom(t *testing.T) {
	rec := MotorSampleRecordFrom(2, core.MotorSample{
		Part:         9,
		Time:         time.Now(),
		State:        core.MotorPlugged,
		CableLength:  4.5,
		MotorSpeed:   -1,
		PowerDraw:    0.5,
		PowerStarved: true,
	})
	assert.Equal(t, uint(2), rec.SessionID)
	assert.Equal(t, "Plugged", rec.State)
	assert.Equal(t, 4.5, rec.CableLength)
	assert.True(t, rec.PowerStarved)
}
