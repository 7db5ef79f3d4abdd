package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/casefolio/casefolio/internal/registry"
)

// templateEvent is the wire form of a registry event pushed to clients.
type templateEvent struct {
	Type      string    `json:"type"`
	Template  string    `json:"template"`
	Timestamp time.Time `json:"timestamp"`
}

// handleWebSocket streams template registry events to an editing client so
// open editors can refresh when a template changes on disk.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.config.Server.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	events := s.templates.Watch()
	defer s.templates.Unwatch(events)

	ctx := r.Context()
	s.logger.Debug(ctx, "websocket client connected")

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeEvent(conn, event); err != nil {
				s.logger.Debug(ctx, "websocket client gone", "reason", err.Error())
				return
			}
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, event registry.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return wsjson.Write(ctx, conn, templateEvent{
		Type:      event.Type.String(),
		Template:  event.Template.Name,
		Timestamp: event.Timestamp,
	})
}
