package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/opsdesk/internal/conversation"
	"github.com/nextlevelbuilder/opsdesk/internal/handoff"
	"github.com/nextlevelbuilder/opsdesk/internal/store"
)

// authorized checks the bearer token when one is configured.
func (s *Server) authorized(r *http.Request) bool {
	token := s.cfg.Gateway.Token
	if token == "" {
		return true
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") && strings.TrimPrefix(h, "Bearer ") == token {
		return true
	}
	// Browser WebSocket clients cannot set headers.
	return r.URL.Query().Get("token") == token
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeActionError maps domain errors onto HTTP statuses.
func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, handoff.ErrUnknownSession):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, handoff.ErrStaleAction),
		errors.Is(err, handoff.ErrNotActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, handoff.ErrConfirmationRequired):
		writeError(w, http.StatusPreconditionRequired, err.Error())
	case errors.Is(err, store.ErrRejected):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrTransient):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	f := conversation.Filter{
		ContactType: q.Get("type"),
		Query:       q.Get("q"),
	}
	writeJSON(w, http.StatusOK, s.core.ConversationPage(page, limit, f))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.core.Sessions()
	if sessions == nil {
		sessions = []handoff.DecoratedSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.core.Approve(r.Context(), id); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Confirmed bool `json:"confirmed"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}
	if err := s.core.Resolve(r.Context(), id, body.Confirmed); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) handleSendReply(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}
	if max := s.cfg.Gateway.MaxMessageChars; max > 0 && len(body.Content) > max {
		writeError(w, http.StatusRequestEntityTooLarge, "message too long")
		return
	}
	if err := s.core.SendReply(r.Context(), id, body.Content); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleBridgeStatus(w http.ResponseWriter, r *http.Request) {
	state := s.core.BridgeState()
	resp := map[string]any{
		"phase":   state.Phase,
		"channel": state.Channel,
	}
	if state.LastError != "" {
		resp["lastError"] = state.LastError
	}
	if qr := s.core.BridgeQR(); qr != "" {
		resp["qr"] = qr
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBridgeChats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.BridgeChats())
}

func (s *Server) handleBridgeThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.core.OpenBridgeChat(r.Context(), id); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.core.BridgeThread())
}

func (s *Server) handleBridgeSend(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}
	if err := s.core.OpenBridgeChat(r.Context(), id); err != nil {
		writeActionError(w, err)
		return
	}
	if err := s.core.SendBridgeChat(r.Context(), body.Content); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleBridgeLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.core.BridgeLogout(r.Context()); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleBridgeReInit(w http.ResponseWriter, r *http.Request) {
	s.core.BridgeReInit()
	writeJSON(w, http.StatusOK, map[string]string{"status": "initializing"})
}
