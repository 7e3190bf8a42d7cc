package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/opsdesk/internal/store"
)

// Chat is one conversation on the bridge side.
type Chat struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	LastMessage   string     `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	Unread        int        `json:"unread"`
}

// ChatMessage is one message in a bridge chat thread.
type ChatMessage struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chatId"`
	Sender    string     `json:"sender"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Status is the bridge session phase plus the QR payload while pairing.
type Status struct {
	Phase     Phase  `json:"phase"`
	QRPayload string `json:"qr,omitempty"`
}

// API is the bridge session control surface.
type API interface {
	InitSession(ctx context.Context) (Status, error)
	GetStatus(ctx context.Context) (Status, error)
	ListChats(ctx context.Context) ([]Chat, error)
	ListMessages(ctx context.Context, chatID string) ([]ChatMessage, error)
	SendChatMessage(ctx context.Context, chatID, text string) error
	Logout(ctx context.Context) error
}

// HTTPAPI implements API against the bridge's HTTP surface.
type HTTPAPI struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPAPI creates the bridge REST client.
func NewHTTPAPI(baseURL, token string) *HTTPAPI {
	return &HTTPAPI{baseURL: baseURL, token: token, http: &http.Client{Timeout: 15 * time.Second}}
}

func (a *HTTPAPI) InitSession(ctx context.Context) (Status, error) {
	var s Status
	err := a.call(ctx, http.MethodPost, "/session/init", nil, &s)
	return s, err
}

func (a *HTTPAPI) GetStatus(ctx context.Context) (Status, error) {
	var s Status
	err := a.call(ctx, http.MethodGet, "/session/status", nil, &s)
	return s, err
}

func (a *HTTPAPI) ListChats(ctx context.Context) ([]Chat, error) {
	var out struct {
		Chats []Chat `json:"chats"`
	}
	if err := a.call(ctx, http.MethodGet, "/chats", nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

func (a *HTTPAPI) ListMessages(ctx context.Context, chatID string) ([]ChatMessage, error) {
	var out struct {
		Messages []ChatMessage `json:"messages"`
	}
	if err := a.call(ctx, http.MethodGet, "/chats/"+chatID+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (a *HTTPAPI) SendChatMessage(ctx context.Context, chatID, text string) error {
	body := map[string]string{"text": text}
	return a.call(ctx, http.MethodPost, "/chats/"+chatID+"/messages", body, nil)
}

func (a *HTTPAPI) Logout(ctx context.Context) error {
	return a.call(ctx, http.MethodPost, "/session/logout", nil, nil)
}

func (a *HTTPAPI) call(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: bridge %s %s: %v", store.ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: bridge %s %s: status %d", store.ErrTransient, method, path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: bridge %s %s: status %d", store.ErrRejected, method, path, resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode bridge response: %w", err)
	}
	return nil
}
