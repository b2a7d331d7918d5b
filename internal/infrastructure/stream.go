package infrastructure

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// EventStream is one long-lived websocket connection to the upstream
// webhook relay. It pushes WhatsApp webhook envelopes as they arrive;
// there is no client-side keepalive or reconnect.
type EventStream struct {
	conn *websocket.Conn
}

// DialStream opens the websocket connection. The caller owns the stream
// and must Close it.
func DialStream(ctx context.Context, wsURL string, header http.Header) (*EventStream, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("dial %s: status %d: %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return &EventStream{conn: conn}, nil
}

// Read blocks until the next payload arrives or the connection dies.
func (s *EventStream) Read() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

// Close shuts the connection down; any blocked Read returns an error.
func (s *EventStream) Close() error {
	return s.conn.Close()
}
