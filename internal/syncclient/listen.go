package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/marcus/todos/internal/models"
)

const (
	listenPath    = "/v1/todos/listen"
	handshakeWait = 10 * time.Second
	controlWait   = 10 * time.Second
	// The server pings every 54s; a silent connection past this is dead.
	readWait = 75 * time.Second
)

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("stream closed")

// Stream is an open listen connection delivering full-list snapshots.
type Stream struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closed    chan struct{}
}

type listenFrame struct {
	Todos []models.Todo `json:"todos"`
	Error *APIError     `json:"error,omitempty"`
}

// Listen opens a websocket to the listen endpoint. The first call to Next
// returns the current list.
func (c *Client) Listen(ctx context.Context) (*Stream, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return c.dial(ctx)
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	return res.(*Stream), nil
}

func (c *Client) dial(ctx context.Context) (*Stream, error) {
	u := c.BaseURL + listenPath
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	header := http.Header{}
	if c.Token != "" {
		header.Set("Authorization", "Bearer "+c.Token)
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeWait,
	}

	conn, resp, err := dialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			var body []byte
			if resp.Body != nil {
				body, _ = io.ReadAll(io.LimitReader(resp.Body, 4096))
				resp.Body.Close()
			}
			return nil, statusError(resp.StatusCode, body)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	return &Stream{conn: conn, closed: make(chan struct{})}, nil
}

// Next blocks until the server sends the next full list. It returns
// ErrUnavailable when the connection drops, ErrMalformed for a frame that
// cannot be decoded and an *APIError for a server-side failure.
func (s *Stream) Next() ([]models.Todo, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		select {
		case <-s.closed:
			return nil, ErrStreamClosed
		default:
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.conn.SetReadDeadline(time.Now().Add(readWait))

	var frame listenFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if frame.Error != nil {
		return nil, frame.Error
	}
	if frame.Todos == nil {
		return nil, fmt.Errorf("%w: frame without todos", ErrMalformed)
	}
	return frame.Todos, nil
}

// Close ends the stream. It is safe to call more than once and from a
// goroutine other than the one blocked in Next.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(controlWait))
		err = s.conn.Close()
	})
	return err
}
