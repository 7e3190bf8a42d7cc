package bridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/coder/websocket"
)

func TestCloseCode(t *testing.T) {
	err := fmt.Errorf("read: %w", websocket.CloseError{Code: websocket.StatusNormalClosure})
	if got := closeCode(err); got != 1000 {
		t.Fatalf("code = %d, want 1000", got)
	}
	if got := closeCode(errors.New("connection reset by peer")); got != 1006 {
		t.Fatalf("code = %d, want 1006", got)
	}
}
