package session

import (
	"context"
	"log"
	"time"

	"github.com/coder/websocket"

	"github.com/kiva-corp/localrun/internal/protocol"
)

// keepaliveLoop sends a ping every protocol.KeepaliveInterval and force-closes the
// connection if nothing has been heard from the broker for protocol.KeepaliveMissedLimit
// (two missed intervals). A single missed ping never triggers reconnection directly, but a
// connection that stops acking anything eventually does, via the same WebSocket-close path
// every other disconnect takes.
func (s *Session) keepaliveLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(protocol.KeepaliveInterval)
	defer ticker.Stop()

	s.markAlive()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(time.Unix(0, s.lastPongUnixNano.Load())) > protocol.KeepaliveMissedLimit {
				log.Printf("session: no activity for %s, closing connection", protocol.KeepaliveMissedLimit)
				_ = conn.Close(websocket.StatusPolicyViolation, "keepalive timeout")
				return
			}
			if err := s.sendFrame(&protocol.PingFrame{Type: protocol.TypePing, Timestamp: time.Now().UnixMilli()}); err != nil {
				log.Printf("session: ping write failed: %v", err)
				return
			}
		}
	}
}

// markAlive records that the connection produced some observable activity (a pong, or any
// other inbound frame). Safe to call from multiple goroutines.
func (s *Session) markAlive() {
	s.lastPongUnixNano.Store(time.Now().UnixNano())
}

// onPong handles a received pong frame. This is diagnostic only — no reconnect logic hangs
// off it directly — beyond refreshing the liveness clock.
func (s *Session) onPong() {
	s.markAlive()
}
