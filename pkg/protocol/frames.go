package protocol

import "encoding/json"

// ProtocolVersion is bumped on breaking changes to the dashboard wire protocol.
const ProtocolVersion = 1

// Frame type tags.
const (
	FrameTypeEvent  = "event"
	FrameTypeClient = "client"
)

// EventFrame is a server → client push.
type EventFrame struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// NewEvent builds an EventFrame for broadcast.
func NewEvent(event string, payload any) *EventFrame {
	return &EventFrame{Type: FrameTypeEvent, Event: event, Payload: payload}
}

// ClientFrame is a client → server message (interaction, chat and
// session selection).
type ClientFrame struct {
	Type      string          `json:"type"`
	ChatID    string          `json:"chat_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
