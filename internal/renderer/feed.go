package renderer

import (
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/attachkit/linkcore/pkg/core"
	"github.com/attachkit/linkcore/pkg/streaming"
)

// Config holds WebSocket feed configuration.
type Config struct {
	URL    string
	Secret string
}

// Feed streams link visuals and events over WebSocket to an external
// viewer. Fire-and-forget for per-frame updates; session boundaries wait
// for a server ack.
type Feed struct {
	conn *connection
	cfg  Config
}

// NewFeed creates a new WebSocket feed.
func NewFeed(cfg Config, log zerolog.Logger) *Feed {
	return &Feed{
		conn: newConnection(log.With().Str("component", "feed").Logger()),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (f *Feed) Init() error {
	return f.conn.dial(f.cfg.URL, f.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (f *Feed) Close() error {
	return f.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (f *Feed) sendEnvelope(msgType string, payload any) {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		f.conn.logger.Error().Err(err).Str("type", msgType).Msg("could not marshal feed message")
		return
	}
	f.conn.send(data)
}

// StartSession announces the save being streamed and waits for server ack.
func (f *Feed) StartSession(saveName, tag string) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{
		SaveName: saveName,
		Tag:      tag,
	})
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	f.conn.mu.Lock()
	f.conn.cachedStartMsg = data
	f.conn.mu.Unlock()

	return f.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for server ack.
func (f *Feed) EndSession() error {
	data, err := marshalEnvelope(streaming.TypeEndSession, nil)
	if err != nil {
		return err
	}
	err = f.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)

	// Clear cached state regardless of error.
	f.conn.mu.Lock()
	f.conn.cachedStartMsg = nil
	f.conn.mu.Unlock()

	return err
}

// StartVisual announces a new link visual.
func (f *Feed) StartVisual(source, target core.PartID) {
	f.sendEnvelope(streaming.TypeStartVisual, streaming.StartVisualPayload{
		Source: uint32(source),
		Target: uint32(target),
	})
}

// UpdateVisual streams the cable endpoints for one frame.
func (f *Feed) UpdateVisual(source core.PartID, from, to mgl64.Vec3) {
	f.sendEnvelope(streaming.TypeUpdateVisual, streaming.UpdateVisualPayload{
		Source: uint32(source),
		From:   [3]float64{from.X(), from.Y(), from.Z()},
		To:     [3]float64{to.X(), to.Y(), to.Z()},
	})
}

// StopVisual removes a link visual.
func (f *Feed) StopVisual(source core.PartID) {
	f.sendEnvelope(streaming.TypeStopVisual, streaming.StopVisualPayload{
		Source: uint32(source),
	})
}

// PublishLinkCreated streams a created link.
func (f *Feed) PublishLinkCreated(ev core.LinkCreated) {
	f.sendEnvelope(streaming.TypeLinkCreated, streaming.LinkEventPayload{
		Source: uint32(ev.Source),
		Target: uint32(ev.Target),
		Mode:   ev.Mode.String(),
		Time:   ev.Time.UnixMilli(),
	})
}

// PublishLinkBroken streams a broken link.
func (f *Feed) PublishLinkBroken(ev core.LinkBroken) {
	f.sendEnvelope(streaming.TypeLinkBroken, streaming.LinkEventPayload{
		Source: uint32(ev.Source),
		Target: uint32(ev.Target),
		Mode:   ev.Mode.String(),
		Reason: string(ev.Reason),
		Time:   ev.Time.UnixMilli(),
	})
}

// PublishMotorSample streams one winch observation.
func (f *Feed) PublishMotorSample(s core.MotorSample) {
	f.sendEnvelope(streaming.TypeMotorSample, streaming.MotorSamplePayload{
		Part:         uint32(s.Part),
		State:        s.State.String(),
		CableLength:  s.CableLength,
		MotorSpeed:   s.MotorSpeed,
		PowerStarved: s.PowerStarved,
	})
}
