package session

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/coder/websocket"

	"github.com/kiva-corp/localrun/internal/protocol"
)

// connectLoop dials the broker WebSocket, runs the reader until it closes, and either
// schedules a reconnect or (on intentional close) returns quietly.
func (s *Session) connectLoop() {
	s.mu.Lock()
	if s.intentionalClose {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	connCtx, cancel := context.WithCancel(s.rootCtx)
	s.mu.Lock()
	s.cancelConn = cancel
	s.mu.Unlock()

	dialCtx, dialCancel := context.WithTimeout(connCtx, protocol.WSHandshakeTimeout)
	conn, _, err := websocket.Dial(dialCtx, s.wsURL(), nil)
	dialCancel()

	if err != nil {
		cancel()
		s.mu.Lock()
		intentional := s.intentionalClose
		s.mu.Unlock()
		if !intentional {
			s.emit(Event{Type: "error", Err: fmt.Errorf("session: websocket dial failed: %w", err)})
			s.scheduleReconnect()
		}
		return
	}

	conn.SetReadLimit(int64(protocol.MaxMessageBytes) + 4096)

	s.mu.Lock()
	s.conn = conn
	s.connCtx = connCtx
	s.reconnectAttempts = 0
	s.st = stateConnected
	s.mu.Unlock()

	s.emit(Event{Type: "url", URL: s.publicURL})

	go s.keepaliveLoop(connCtx, conn)
	s.readLoop(connCtx, conn)
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			intentional := s.intentionalClose
			s.mu.Unlock()
			if !intentional {
				s.scheduleReconnect()
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}
		s.handleInbound(ctx, data)
	}
}

func (s *Session) handleInbound(ctx context.Context, data []byte) {
	frame, err := protocol.ParseFrame(data)
	if err != nil {
		log.Printf("session: malformed frame: %v", err)
		return
	}
	if frame == nil {
		return
	}
	s.markAlive()

	if chunk, ok := frame.(*protocol.ChunkFrame); ok {
		complete, err := s.assembler.Add(chunk, time.Now())
		if err != nil {
			log.Printf("session: %v", err)
			return
		}
		if complete == nil {
			return
		}
		s.dispatchFrame(ctx, complete)
		return
	}

	s.dispatchFrame(ctx, frame)
}

func (s *Session) dispatchFrame(ctx context.Context, frame protocol.Frame) {
	switch f := frame.(type) {
	case *protocol.RequestFrame:
		s.emit(Event{Type: "request", Traffic: &TrafficEntry{ID: f.ID, Method: f.Method, Path: f.Path}})
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			start := time.Now()
			status := s.fwd.HandleRequest(ctx, f, s.sendFrame)
			s.emit(Event{Type: "traffic", Traffic: &TrafficEntry{
				ID: f.ID, Method: f.Method, Path: f.Path, Status: status,
				Duration: time.Since(start), Timestamp: time.Now(),
			}})
		}()

	case *protocol.PingFrame:
		_ = s.sendFrame(&protocol.PongFrame{Type: protocol.TypePong, Timestamp: f.Timestamp})

	case *protocol.PongFrame:
		s.onPong()

	default:
		// response/sse-*/chunk frames are never sent by the broker to us; ignore.
	}
}

// scheduleReconnect arms the reconnect timer: random(1000..2000)*1.5^(n-1) milliseconds,
// capped at 30s, up to 10 attempts before giving up.
func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	if s.intentionalClose {
		s.mu.Unlock()
		return
	}
	attempt := s.reconnectAttempts
	s.reconnectAttempts++
	s.st = stateReconnecting
	s.mu.Unlock()

	if attempt >= protocol.ReconnectMaxAttempts {
		s.emit(Event{Type: "error", Err: fmt.Errorf("session: exhausted %d reconnect attempts", protocol.ReconnectMaxAttempts)})
		s.mu.Lock()
		s.st = stateClosed
		s.mu.Unlock()
		s.emit(Event{Type: "close"})
		return
	}

	delay := reconnectDelay(attempt)
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		intentional := s.intentionalClose
		s.mu.Unlock()
		if !intentional {
			s.connectLoop()
		}
	})
}

func reconnectDelay(attempt int) time.Duration {
	base := float64(protocol.ReconnectBaseMinMs + rand.Intn(protocol.ReconnectBaseMaxMs-protocol.ReconnectBaseMinMs+1))
	ms := base
	for i := 0; i < attempt; i++ {
		ms *= protocol.ReconnectMultiplier
	}
	if ms > protocol.ReconnectCapMs {
		ms = protocol.ReconnectCapMs
	}
	return time.Duration(ms) * time.Millisecond
}
