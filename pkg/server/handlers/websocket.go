package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relcore/relcore/pkg/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventConnection is one live /_events WebSocket client.
type EventConnection struct {
	id         string
	conn       *websocket.Conn
	cancelFunc context.CancelFunc
}

// EventStreamResponse is one JSON line written to an /_events client.
type EventStreamResponse struct {
	Type    string         `json:"type"`
	Event   *metrics.Event `json:"event,omitempty"`
	Message string         `json:"message,omitempty"`
}

// HandleEvents upgrades the connection and relays broadcaster events to it
// until the client disconnects, sending a heartbeat on the same cadence
// this codebase's change-stream connections use to detect a dead peer.
func (h *Handlers) HandleEvents(broadcaster *metrics.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		events, unsubscribe := broadcaster.Subscribe()
		defer unsubscribe()

		ack := EventStreamResponse{Type: "connected", Message: "event feed connected"}
		if err := conn.WriteJSON(ack); err != nil {
			log.Printf("Failed to send acknowledgment: %v", err)
			return
		}

		// Drain client reads just to notice a close frame; /_events is
		// one-directional otherwise.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		heartbeat := time.NewTicker(30 * time.Second)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				if err := conn.WriteJSON(EventStreamResponse{Type: "heartbeat"}); err != nil {
					return
				}
			case evt, ok := <-events:
				if !ok {
					return
				}
				e := evt
				if err := conn.WriteJSON(EventStreamResponse{Type: "event", Event: &e}); err != nil {
					return
				}
			}
		}
	}
}
