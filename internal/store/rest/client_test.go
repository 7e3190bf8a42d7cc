package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nextlevelbuilder/opsdesk/internal/store"
)

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error is transient", http.StatusInternalServerError, "", store.ErrTransient},
		{"bad gateway is transient", http.StatusBadGateway, "", store.ErrTransient},
		{"conflict is rejected", http.StatusConflict, `{"error":"already resolved"}`, store.ErrRejected},
		{"not found is rejected", http.StatusNotFound, `{"message":"no such session"}`, store.ErrRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			api := NewHandoffAPI(srv.URL, "", 0)
			err := api.Approve(context.Background(), "s1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestUnreachableHostIsTransient(t *testing.T) {
	api := NewHandoffAPI("http://127.0.0.1:1", "", 1)
	err := api.Approve(context.Background(), "s1")
	if !errors.Is(err, store.ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestListMessagesQueryAndAuth(t *testing.T) {
	var gotAuth, gotSession string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotSession = r.URL.Query().Get("session_id")
		w.Write([]byte(`{"messages":[{"id":"m1","sessionId":"s1"}]}`))
	}))
	defer srv.Close()

	m := NewMessageStore(srv.URL, "tok", 0)
	msgs, err := m.ListMessages(context.Background(), store.MessageFilter{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotSession != "s1" {
		t.Fatalf("session query = %q", gotSession)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("msgs = %+v", msgs)
	}
}

func TestSendMessageBody(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	api := NewHandoffAPI(srv.URL, "", 0)
	if err := api.SendMessage(context.Background(), "s1", "hello"); err != nil {
		t.Fatal(err)
	}
	if path != "/api/handoff/sessions/s1/messages" {
		t.Fatalf("path = %q", path)
	}
}
