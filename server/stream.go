package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stagehand-dev/stagehand/db"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Events streams journaled deployment transitions over a websocket:
// full backfill first, then live rows as the notifier signals them.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	l := s.l.With("handler", "Events")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, unsubscribe := s.n.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	var cursor int64
	if err := s.streamTransitions(conn, &cursor); err != nil {
		l.Error("failed to backfill", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			l.Debug("client closed connection")
			return
		case <-ch:
			if err := s.streamTransitions(conn, &cursor); err != nil {
				l.Error("failed to stream", "error", err)
				return
			}
		case <-time.After(30 * time.Second):
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second)); err != nil {
				l.Error("failed to write keepalive", "error", err)
				return
			}
		}
	}
}

func (s *Server) streamTransitions(conn *websocket.Conn, cursor *int64) error {
	for {
		rows, err := s.db.Transitions(*cursor)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for _, row := range rows {
			if err := writeTransition(conn, row); err != nil {
				return err
			}
			*cursor = row.ID
		}
	}
}

func writeTransition(conn *websocket.Conn, row db.TransitionRow) error {
	return conn.WriteJSON(row)
}
