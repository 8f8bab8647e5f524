package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/syncrelay/syncrelay/internal/domain"
)

// StreamEvent is one frame from the relay's websocket feed: a set of
// activities that became visible in the session.
type StreamEvent struct {
	Activities []*domain.Activity `json:"activities"`
	Watermark  string             `json:"watermark,omitempty"`
}

// Stream reads session events from the relay's websocket feed.
type Stream struct {
	conn *websocket.Conn
}

// DialStream opens the websocket feed for a session. The streamURL comes from
// the session credential; http(s) schemes are rewritten to ws(s).
func DialStream(ctx context.Context, streamURL, token string) (*Stream, error) {
	streamURL = toWebsocketURL(streamURL)

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, header)
	if err != nil {
		return nil, fmt.Errorf("%w: dial stream: %v", domain.ErrRelayUnavailable, err)
	}
	return &Stream{conn: conn}, nil
}

// Next blocks until the next non-empty frame arrives. The relay sends empty
// frames as keepalives; those are skipped.
func (s *Stream) Next() (*StreamEvent, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%w: read stream: %v", domain.ErrRelayUnavailable, err)
		}
		if len(data) == 0 {
			continue
		}
		var ev StreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode stream event: %w", err)
		}
		return &ev, nil
	}
}

// Close closes the websocket connection.
func (s *Stream) Close() error {
	return s.conn.Close()
}

func toWebsocketURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	default:
		return raw
	}
}
