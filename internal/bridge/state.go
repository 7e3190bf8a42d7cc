// Package bridge maintains the live sync channel to the WhatsApp bridge:
// a push WebSocket as the primary channel with a status-poll fallback,
// a QR-login connection state machine, and an id-deduplicated chat
// surface for the dashboard.
package bridge

// Phase is the bridge connection lifecycle phase.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseQR           Phase = "qr"
	PhaseReady        Phase = "ready"
	PhaseError        Phase = "error"
)

// Channel identifies which transport currently feeds phase updates.
type Channel string

const (
	ChannelSocket Channel = "socket"
	ChannelPoll   Channel = "poll"
	ChannelNone   Channel = "none"
)

// ConnectionState is the process-local view of the bridge connection.
type ConnectionState struct {
	Phase     Phase   `json:"phase"`
	Channel   Channel `json:"channel"`
	LastError string  `json:"lastError,omitempty"`
}

// canEnter enforces the legal phase transitions:
// initializing → qr|ready|error, qr → ready|error, ready holds until an
// explicit logout resets to initializing, error only leaves via re-init.
func canEnter(from, to Phase) bool {
	if from == to {
		return true
	}
	switch from {
	case PhaseInitializing:
		return to == PhaseQR || to == PhaseReady || to == PhaseError
	case PhaseQR:
		return to == PhaseReady || to == PhaseError
	case PhaseReady, PhaseError:
		return false // only a logout or re-init resets to initializing
	default:
		return false
	}
}
