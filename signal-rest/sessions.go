package signalrest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Michael-R-Dickinson/table-poker/signal-ws/connectiondao"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type SessionQuerier interface {
	QueryBySession(ctx context.Context, sessionID string) ([]connectiondao.Connection, error)
}

// Session is the public view of a game's live connections.
type Session struct {
	SessionID    string   `json:"sessionId"`
	HostPresent  bool     `json:"hostPresent"`
	Participants []string `json:"participants"`
}

// Sessions answers lookups a join screen makes before opening a socket.
type Sessions struct {
	Connections SessionQuerier
	Now         func() time.Time
}

func (s *Sessions) Routes(router chi.Router) {
	router.Get("/healthz", s.healthz)
	router.Get("/sessions/{sessionId}", CacheControl(s.lookup, 1))
}

func (s *Sessions) Lookup(ctx context.Context, sessionID string) (Session, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	conns, err := s.Connections.QueryBySession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}

	session := Session{SessionID: sessionID, Participants: []string{}}
	seen := map[string]bool{}
	for _, conn := range conns {
		if conn.Expired(now) || seen[conn.ParticipantID] {
			continue
		}
		seen[conn.ParticipantID] = true
		if conn.IsHost() {
			session.HostPresent = true
			continue
		}
		session.Participants = append(session.Participants, conn.ParticipantID)
	}
	return session, nil
}

func (s *Sessions) lookup(w http.ResponseWriter, req *http.Request) {
	sessionID := chi.URLParam(req, "sessionId")
	if sessionID == "" || sessionID == connectiondao.Unknown {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "game code is required"})
		return
	}

	session, err := s.Lookup(req.Context(), sessionID)
	if err != nil {
		zerolog.Ctx(req.Context()).Error().Err(err).Str("session_id", sessionID).Msg("failed to look up game")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Sessions) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
