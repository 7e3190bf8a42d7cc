package rest

import (
	"context"
	"net/url"
	"strconv"

	"github.com/nextlevelbuilder/opsdesk/internal/store"
)

// MessageStore implements store.MessageStore against the message store service.
type MessageStore struct {
	*Client
}

// NewMessageStore creates a message store client.
func NewMessageStore(baseURL, token string, timeoutSec int) *MessageStore {
	return &MessageStore{Client: NewClient(baseURL, token, timeoutSec)}
}

func (m *MessageStore) ListMessages(ctx context.Context, f store.MessageFilter) ([]store.Message, error) {
	q := url.Values{}
	if f.SessionID != "" {
		q.Set("session_id", f.SessionID)
	}
	if f.Since != nil {
		q.Set("since", f.Since.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	var out struct {
		Messages []store.Message `json:"messages"`
	}
	if err := m.get(ctx, "/api/messages", q, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (m *MessageStore) ListHandoffSessions(ctx context.Context, f store.SessionFilter) ([]store.HandoffSession, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	var out struct {
		Sessions []store.HandoffSession `json:"sessions"`
	}
	if err := m.get(ctx, "/api/handoff/sessions", q, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}
