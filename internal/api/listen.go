package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// listenFrame is one websocket message: either a full snapshot of the
// owner's todos or the error that ends the stream.
type listenFrame struct {
	todoListResponse
	Error *APIError `json:"error,omitempty"`
}

// handleListen handles GET /v1/todos/listen. The first frame is the current
// list; every change to the owner's todos produces another full list.
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	log := logFor(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	s.metrics.ListenerOpened()
	defer s.metrics.ListenerClosed()

	l := s.hub.Listen(user.UserID)
	defer l.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// The client never sends data frames; reading only services control
	// frames and notices the peer going away.
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func() bool {
		todos, err := s.store.ListTodos(user.UserID)
		frame := listenFrame{todoListResponse: todoListResponse{Todos: todos}}
		if err != nil {
			log.Error("listen: list todos", "err", err)
			frame = listenFrame{Error: &APIError{Code: ErrCodeInternal, Message: "failed to list todos"}}
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if werr := conn.WriteJSON(frame); werr != nil {
			log.Debug("listen: write", "err", werr)
			return false
		}
		if err != nil {
			return false
		}
		s.metrics.RecordSnapshot()
		return true
	}

	log.Info("listener attached")
	defer log.Info("listener detached")

	if !send() {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		case <-l.C():
			if !send() {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
