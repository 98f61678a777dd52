// Package transport wraps the duplex WebSocket connection used to stream
// ticker frames. It deliberately implements a single connect attempt and
// no reconnection state machine: a dropped transport terminates the
// session and the orchestrator observes it as a fatal error, per the
// pipeline's explicit at-most-once delivery contract.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tickerpipe/internal/infra"
)

// FrameHandler is invoked with every inbound text frame. It must never
// block, matching the ingress stage's contract.
type FrameHandler func(frame []byte)

// Session owns one WebSocket connection for the life of the pipeline.
type Session struct {
	url          string
	productID    string
	readTimeout  time.Duration
	dialTimeout  time.Duration
	onFrame      FrameHandler

	conn *websocket.Conn
}

// New constructs a Session that will dial url and deliver frames to
// onFrame once Connect and Run are called.
func New(url, productID string, onFrame FrameHandler) *Session {
	return &Session{
		url:         url,
		productID:   productID,
		readTimeout: 60 * time.Second,
		dialTimeout: 10 * time.Second,
		onFrame:     onFrame,
	}
}

// Connect dials the endpoint once and sends the subscribe frame. It does
// not retry: a dial failure is returned to the caller, who decides
// whether startup should abort.
func (s *Session) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.dialTimeout}
	header := make(http.Header)
	header.Set("User-Agent", infra.GetUserAgent())

	conn, _, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", s.url, err)
	}
	s.conn = conn

	subscribe := fmt.Sprintf(`{"type":"subscribe","product_ids":["%s"],"channels":["ticker"]}`, s.productID)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(subscribe)); err != nil {
		conn.Close()
		s.conn = nil
		return fmt.Errorf("transport: subscribe: %w", err)
	}

	return nil
}

// Run reads frames until the connection errs, is closed, or ctx is done.
// It returns the terminal error (nil on a clean ctx cancellation). There
// is no reconnect: the caller treats a returned error as session end.
func (s *Session) Run(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("transport: Run called before a successful Connect")
	}

	infra.PinCurrentThread(1)
	infra.ElevateCurrentThreadPriority()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("transport: read: %w", err)
			}
		}

		s.onFrame(msg)
	}
}

// Close terminates the underlying connection, if any.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
