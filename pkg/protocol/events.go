package protocol

// WebSocket event names pushed from engine to dashboard clients.
const (
	EventConversations = "conversations.updated"
	EventSessions      = "sessions.updated"
	EventBanner        = "banner"
	EventShutdown      = "shutdown"

	// Operator alerting (handoff notifications).
	EventAlertToast = "alert.toast"
	EventAlertTone  = "alert.tone"

	// Bridge connection lifecycle.
	EventBridgeStatus = "bridge.status"
	EventBridgeQR     = "bridge.qr"

	// Bridge chat surface (live sync).
	EventChatList    = "chats.updated"
	EventChatMessage = "chat.message"
)

// Bridge push-channel envelope types (server → engine).
const (
	BridgeTypeStatusUpdate = "status_update"
	BridgeTypeQRCode       = "qr_code"
	BridgeTypeChatList     = "chat_list_update"
	BridgeTypeNewMessage   = "new_message"
	BridgeTypeSubscribe    = "subscribe"
)

// Client → engine frame types over the dashboard WebSocket.
const (
	ClientInteract      = "interact"
	ClientSelectChat    = "select_chat"
	ClientSelectSession = "select_session"
	ClientSubscribe     = "subscribe"
)
