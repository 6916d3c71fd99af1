package streaming

import "encoding/json"

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeStartVisual  = "start_visual"
	TypeUpdateVisual = "update_visual"
	TypeStopVisual   = "stop_visual"
	TypeLinkCreated  = "link_created"
	TypeLinkBroken   = "link_broken"
	TypeMotorSample  = "motor_sample"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload identifies the save being streamed.
type StartSessionPayload struct {
	SaveName string `json:"saveName"`
	Tag      string `json:"tag"`
}

// StartVisualPayload announces a new link visual.
type StartVisualPayload struct {
	Source uint32 `json:"source"`
	Target uint32 `json:"target"`
}

// UpdateVisualPayload carries the world-space cable endpoints for one frame.
type UpdateVisualPayload struct {
	Source uint32     `json:"source"`
	From   [3]float64 `json:"from"`
	To     [3]float64 `json:"to"`
}

// StopVisualPayload removes a link visual.
type StopVisualPayload struct {
	Source uint32 `json:"source"`
}

// LinkEventPayload carries a created or broken link.
type LinkEventPayload struct {
	Source uint32 `json:"source"`
	Target uint32 `json:"target"`
	Mode   string `json:"mode"`
	Reason string `json:"reason,omitempty"`
	Time   int64  `json:"time"` // unix milliseconds
}

// MotorSamplePayload carries one winch telemetry observation.
type MotorSamplePayload struct {
	Part         uint32  `json:"part"`
	State        string  `json:"state"`
	CableLength  float64 `json:"cableLength"`
	MotorSpeed   float64 `json:"motorSpeed"`
	PowerStarved bool    `json:"powerStarved"`
}
