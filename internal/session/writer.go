package session

import (
	"fmt"
	"time"

	"github.com/coder/websocket"

	"github.com/kiva-corp/localrun/internal/protocol"
)

// sendFrame encodes frame (chunking it if it exceeds the message-size ceiling) and writes
// every resulting WebSocket message under the single write-side mutex, so a chunked
// frame's pieces are never interleaved with another goroutine's write.
func (s *Session) sendFrame(frame protocol.Frame) error {
	s.mu.Lock()
	conn := s.conn
	connCtx := s.connCtx
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("session: no active connection")
	}

	pieces, err := protocol.EncodeOutbound(frame, time.Now().UnixMilli())
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	for _, piece := range pieces {
		if err := conn.Write(connCtx, websocket.MessageText, piece); err != nil {
			return err
		}
	}
	return nil
}
