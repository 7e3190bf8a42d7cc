package bridge

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Socket wraps coder/websocket with a thread-safe write method. Only one
// socket may be open at a time; LiveSync closes any existing socket
// before dialing a new one.
type Socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// DialSocket connects to the bridge push endpoint.
func DialSocket(ctx context.Context, wsURL, token string) (*Socket, error) {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: h})
	if err != nil {
		return nil, fmt.Errorf("bridge: ws dial: %w", err)
	}
	conn.SetReadLimit(1 << 20) // 1MB
	return &Socket{conn: conn}, nil
}

// Read blocks until the next message, context cancellation, or close.
func (s *Socket) Read(ctx context.Context) ([]byte, error) {
	_, data, err := s.conn.Read(ctx)
	return data, err
}

// Write sends a text frame. Thread-safe.
func (s *Socket) Write(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// Close sends a close frame and shuts down the connection.
func (s *Socket) Close(code int, reason string) {
	s.conn.Close(websocket.StatusCode(code), reason)
}

// closeCode extracts the peer's close status from a read error. Falls
// back to 1006 (abnormal closure) when the connection dropped without a
// close frame.
func closeCode(err error) int {
	if code := websocket.CloseStatus(err); code != -1 {
		return int(code)
	}
	return 1006
}
