package renderer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attachkit/linkcore/pkg/core"
	"github.com/attachkit/linkcore/pkg/streaming"
)

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages, and sends acks for session boundaries.
func testServer(t *testing.T) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			// Ack start_session and end_session.
			if env.Type == streaming.TypeStartSession || env.Type == streaming.TypeEndSession {
				ack := streaming.AckMessage{Type: "ack", For: env.Type}
				data, _ := json.Marshal(ack)
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	messages []streaming.Envelope
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStartAndEndSession(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	f := NewFeed(Config{URL: wsURL(srv), Secret: "test"}, zerolog.Nop())
	require.NoError(t, f.Init())
	defer f.Close()

	require.NoError(t, f.StartSession("quicksave #3", "career"))
	require.NoError(t, f.EndSession())

	msgs := ml.all()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, streaming.TypeStartSession, msgs[0].Type)
	assert.Equal(t, streaming.TypeEndSession, msgs[len(msgs)-1].Type)
}

func TestFireAndForgetMessages(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	f := NewFeed(Config{URL: wsURL(srv), Secret: "s"}, zerolog.Nop())
	require.NoError(t, f.Init())
	defer f.Close()

	require.NoError(t, f.StartSession("save", ""))

	f.StartVisual(1, 2)
	f.UpdateVisual(1, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0, 0, 3})
	f.StopVisual(1)
	f.PublishLinkCreated(core.LinkCreated{Source: 1, Target: 2, Mode: core.ModeDockVessels, Time: time.Now()})
	f.PublishLinkBroken(core.LinkBroken{Source: 1, Target: 2, Reason: core.BreakReasonAPI, Time: time.Now()})
	f.PublishMotorSample(core.MotorSample{Part: 1, State: core.MotorDeployed, CableLength: 2})

	require.NoError(t, f.EndSession())

	// Give a moment for all messages to arrive at server.
	time.Sleep(50 * time.Millisecond)

	types := make(map[string]int)
	for _, m := range ml.all() {
		types[m.Type]++
	}

	assert.Equal(t, 1, types[streaming.TypeStartSession])
	assert.Equal(t, 1, types[streaming.TypeEndSession])
	assert.Equal(t, 1, types[streaming.TypeStartVisual])
	assert.Equal(t, 1, types[streaming.TypeUpdateVisual])
	assert.Equal(t, 1, types[streaming.TypeStopVisual])
	assert.Equal(t, 1, types[streaming.TypeLinkCreated])
	assert.Equal(t, 1, types[streaming.TypeLinkBroken])
	assert.Equal(t, 1, types[streaming.TypeMotorSample])
}

func TestUpdateVisualPayload(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	f := NewFeed(Config{URL: wsURL(srv), Secret: "s"}, zerolog.Nop())
	require.NoError(t, f.Init())
	defer f.Close()
	require.NoError(t, f.StartSession("save", ""))

	f.UpdateVisual(7, mgl64.Vec3{1, 2, 3}, mgl64.Vec3{4, 5, 6})
	require.NoError(t, f.EndSession())
	time.Sleep(50 * time.Millisecond)

	for _, m := range ml.all() {
		if m.Type != streaming.TypeUpdateVisual {
			continue
		}
		var p streaming.UpdateVisualPayload
		require.NoError(t, json.Unmarshal(m.Payload, &p))
		assert.Equal(t, uint32(7), p.Source)
		assert.Equal(t, [3]float64{1, 2, 3}, p.From)
		assert.Equal(t, [3]float64{4, 5, 6}, p.To)
		return
	}
	t.Fatal("update_visual message not received")
}

func TestEnvelopeSerialization(t *testing.T) {
	payload := streaming.StopVisualPayload{Source: 42}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	env := streaming.Envelope{Type: streaming.TypeStopVisual, Payload: raw}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded streaming.Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, streaming.TypeStopVisual, decoded.Type)

	var sp streaming.StopVisualPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &sp))
	assert.Equal(t, uint32(42), sp.Source)
}
