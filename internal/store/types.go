package store

import "time"

// Sender roles on a raw message.
const (
	SenderUser  = "user"
	SenderAgent = "agent"
	SenderBot   = "bot"
)

// Message is an immutable fact owned by the message store collaborator.
// The engine only reads it. Many fields are optional — the identity layer
// resolves the ad-hoc fallbacks once, at aggregation time.
type Message struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId,omitempty"`
	Contact   string     `json:"contact,omitempty"`
	Sender    string     `json:"sender"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`

	Phone       string `json:"phone,omitempty"`
	ExactPhone  string `json:"exactPhone,omitempty"`
	Email       string `json:"email,omitempty"`
	Name        string `json:"name,omitempty"`
	ContactType string `json:"contactType,omitempty"`
	IsGuest     bool   `json:"isGuest,omitempty"`

	IPAddress string `json:"ipAddress,omitempty"`
	Location  string `json:"location,omitempty"`

	ConversationCreatedAt *time.Time `json:"conversationCreatedAt,omitempty"`
}

// Handoff session statuses as stored by the backend collaborator.
// "inactive" is never stored — it is derived client-side (see handoff.DisplayStatus).
const (
	StatusPending  = "pending"
	StatusActive   = "active"
	StatusResolved = "resolved"
	StatusClosed   = "closed"
	StatusInactive = "inactive"
)

// HandoffSession is the backend-owned view of a human-assist session.
// The engine holds a read-through cache of these, decorated with a
// derived display status.
type HandoffSession struct {
	SessionID      string     `json:"sessionId"`
	Status         string     `json:"status"`
	UserName       string     `json:"userName,omitempty"`
	UserPhone      string     `json:"userPhone,omitempty"`
	UserEmail      string     `json:"userEmail,omitempty"`
	UserIP         string     `json:"userIp,omitempty"`
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	MessageCount   int        `json:"messageCount,omitempty"`
}

// MessageFilter narrows a message listing.
type MessageFilter struct {
	SessionID string
	Since     *time.Time
	Limit     int
}

// SessionFilter narrows a handoff session listing.
type SessionFilter struct {
	Status string
	Limit  int
}
