package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nmathey/finahack/internal/platform/session"
)

// TokenSink receives tokens captured by the browser extension
type TokenSink interface {
	Put(token string) error
	Status() session.Status
}

// SessionHandler exchanges the Finary session token with the extension
type SessionHandler struct {
	sink TokenSink
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sink TokenSink) *SessionHandler {
	return &SessionHandler{sink: sink}
}

// PutTokenRequest is the body of POST /session/token
type PutTokenRequest struct {
	Token string `json:"token"`
}

// SessionResponse reports the session state to the extension
type SessionResponse struct {
	HasToken         bool    `json:"has_token"`
	RefreshRequested bool    `json:"refresh_requested"`
	UpdatedAt        *string `json:"updated_at,omitempty"`
}

// GetSession handles GET /session. The extension polls it and pushes a new
// token when refresh_requested is set.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, toSessionResponse(h.sink.Status()), http.StatusOK)
}

// PutToken handles POST /session/token. The token is taken from the JSON body
// or, when absent, from the Authorization header.
func (h *SessionHandler) PutToken(w http.ResponseWriter, r *http.Request) {
	var req PutTokenRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	if strings.TrimSpace(req.Token) == "" {
		req.Token = r.Header.Get("Authorization")
	}

	if err := h.sink.Put(req.Token); err != nil {
		if errors.Is(err, session.ErrEmptyToken) {
			respondError(w, "token is required", http.StatusBadRequest)
			return
		}
		respondError(w, "failed to store token", http.StatusInternalServerError)
		return
	}

	respondJSON(w, toSessionResponse(h.sink.Status()), http.StatusAccepted)
}

func toSessionResponse(s session.Status) SessionResponse {
	resp := SessionResponse{HasToken: s.HasToken, RefreshRequested: s.RefreshRequested}
	if !s.UpdatedAt.IsZero() {
		at := s.UpdatedAt.UTC().Format(time.RFC3339)
		resp.UpdatedAt = &at
	}
	return resp
}
