package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/louisbranch/metas/internal/platform/httpx"
	"github.com/louisbranch/metas/internal/platform/timeouts"
	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/events"
)

// eventStream pushes broker events to websocket clients as JSON frames.
// The optional team_id query parameter narrows the stream to one team.
func (s *Server) eventStream() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.authenticate(r)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		teamID := strings.TrimSpace(r.URL.Query().Get("team_id"))

		server := websocket.Server{
			Handshake: func(_ *websocket.Config, r *http.Request) error {
				return s.checkOrigin(r)
			},
			Handler: func(conn *websocket.Conn) {
				s.streamEvents(conn, actor, teamID)
			},
		}
		server.ServeHTTP(w, r)
	})
}

func (s *Server) streamEvents(conn *websocket.Conn, actor access.Actor, teamID string) {
	defer func() { _ = conn.Close() }()

	sub := s.broker.Subscribe()
	defer sub.Close()
	s.metrics.WebsocketClients(1)
	defer s.metrics.WebsocketClients(-1)

	s.logger.Debug("event stream opened",
		zap.String("actor_id", actor.UserID),
		zap.String("team_id", teamID),
	)

	// The client never sends frames; a read returning means it went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_, _ = io.Copy(io.Discard, conn)
	}()

	encoder := json.NewEncoder(conn)
	for {
		select {
		case <-gone:
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if !streamable(event, teamID) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(timeouts.WebsocketWrite))
			if err := encoder.Encode(event); err != nil {
				s.logger.Debug("event stream write failed", zap.Error(err))
				return
			}
		}
	}
}

// checkOrigin rejects browser handshakes from origins outside the
// configured list. Requests without an Origin header come from non-browser
// clients and rely on the bearer token alone.
func (s *Server) checkOrigin(r *http.Request) error {
	if len(s.origins) == 0 {
		return nil
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	if !s.origins[normalizeOrigin(origin)] {
		s.logger.Debug("event stream origin rejected", zap.String("origin", origin))
		return fmt.Errorf("origin %q is not allowed", origin)
	}
	return nil
}

func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}

func streamable(event events.Event, teamID string) bool {
	return teamID == "" || event.TeamID == teamID
}
