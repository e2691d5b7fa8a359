package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/darkscore/darkscore-server/internal/auth"
	"github.com/darkscore/darkscore-server/internal/http/response"
	"github.com/darkscore/darkscore-server/internal/service"
)

// Authenticator resolves an access token to its client session.
type Authenticator interface {
	Authenticate(token string) (*service.ClientSession, *auth.AccessClaims, error)
}

// Handler handles SSE connections at GET /api/v1/sync/stream.
//
// The access token is read from the Authorization header or, for browser
// EventSource clients that cannot set headers, from the token query parameter.
type Handler struct {
	manager  *Manager
	sessions Authenticator
	logger   *slog.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(manager *Manager, sessions Authenticator, logger *slog.Logger) *Handler {
	return &Handler{
		manager:  manager,
		sessions: sessions,
		logger:   logger,
	}
}

// ServeHTTP handles the SSE connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Context().Err() != nil {
		return
	}

	sess, _, err := h.sessions.Authenticate(accessToken(r))
	if err != nil {
		response.Error(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)

	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush headers", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, err := h.manager.Connect(sess.ID)
	if err != nil {
		h.logger.Error("failed to register SSE client", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	clientLogger := h.logger.With(slog.String("client_id", client.ID), slog.String("session_id", sess.ID))

	connected := Event{Type: EventConnected, Data: ConnectedEventData{ClientID: client.ID, SessionID: sess.ID}, Timestamp: time.Now()}
	if err := h.sendEvent(w, rc, connected); err != nil {
		clientLogger.Warn("failed to send connected event", slog.String("error", err.Error()))
		return
	}

	// The first state events come from Attach and travel the same queue as later changes.
	detach := Attach(h.manager, sess, client.ID)
	defer detach()

	ctx := r.Context()
	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				return
			}
			if err := h.sendEvent(w, rc, event); err != nil {
				clientLogger.Info("client disconnected during send")
				return
			}

		case <-client.Done:
			clientLogger.Info("client closed by manager")
			return

		case <-ctx.Done():
			clientLogger.Info("client context canceled")
			return
		}
	}
}

// Attach forwards the current state of sess and every later change to one
// client until the returned function is called.
func Attach(m *Manager, sess *service.ClientSession, clientID string) (detach func()) {
	unwatchSocial := sess.Social.Watch(func(state service.SocialState) {
		event := NewSocialStateEvent(sess.ID, state)
		event.ClientID = clientID
		m.Emit(event)
	})
	unwatchMatches := sess.Matches.Watch(func(state service.MatchState) {
		event := NewMatchStateEvent(sess.ID, state)
		event.ClientID = clientID
		m.Emit(event)
	})
	return func() {
		unwatchSocial()
		unwatchMatches()
	}
}

func accessToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// sendEvent writes one event in SSE wire format and flushes it.
func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, jsonData); err != nil {
		return err
	}

	if err := rc.Flush(); err != nil {
		return err
	}

	// Reset after each successful write so hung connections time out.
	if err := rc.SetWriteDeadline(time.Now().Add(60 * time.Second)); err != nil {
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}

	return nil
}
