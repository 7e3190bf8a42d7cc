package rest

import (
	"context"
)

// HandoffAPI implements store.HandoffAPI against the handoff control backend.
type HandoffAPI struct {
	*Client
}

// NewHandoffAPI creates a handoff control client.
func NewHandoffAPI(baseURL, token string, timeoutSec int) *HandoffAPI {
	return &HandoffAPI{Client: NewClient(baseURL, token, timeoutSec)}
}

func (h *HandoffAPI) Approve(ctx context.Context, sessionID string) error {
	return h.post(ctx, "/api/handoff/sessions/"+sessionID+"/approve", nil, nil)
}

func (h *HandoffAPI) Resolve(ctx context.Context, sessionID string) error {
	return h.post(ctx, "/api/handoff/sessions/"+sessionID+"/resolve", nil, nil)
}

func (h *HandoffAPI) SendMessage(ctx context.Context, sessionID, text string) error {
	body := map[string]string{"text": text}
	return h.post(ctx, "/api/handoff/sessions/"+sessionID+"/messages", body, nil)
}
