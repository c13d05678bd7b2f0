// Package session implements the Session controller (C1): registration with the broker,
// the WebSocket connect/reconnect loop, inbound frame demultiplexing and chunk reassembly,
// and the event surface the embedding program observes.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/kiva-corp/localrun/internal/breaker"
	"github.com/kiva-corp/localrun/internal/config"
	"github.com/kiva-corp/localrun/internal/forwarder"
	"github.com/kiva-corp/localrun/internal/protocol"
)

// state is the controller's internal state machine.
type state string

const (
	stateInit         state = "init"
	stateRegistering  state = "registering"
	statePending      state = "connected-pending"
	stateConnected    state = "connected"
	stateReconnecting state = "reconnecting"
	stateClosed       state = "closed"
)

// TrafficEntry records one proxied request for observers (e.g. the TUI).
type TrafficEntry struct {
	ID        string
	Method    string
	Path      string
	Status    int
	Duration  time.Duration
	Timestamp time.Time
}

// Event is emitted on the Session's Events channel.
type Event struct {
	Type              string // url, request, traffic, error, close, circuit-breaker-open, circuit-breaker-closed
	URL               string
	Traffic           *TrafficEntry
	Err               error
	ConsecutiveErrors int
	CooldownMs        int
}

// Session is the long-lived controller for one tunnel. Construct with Open.
type Session struct {
	cfg *config.TunnelConfig

	breaker *breaker.CircuitBreaker
	health  *breaker.HealthChecker
	fwd     *forwarder.Forwarder

	Events chan Event

	mu                sync.Mutex
	st                state
	conn              *websocket.Conn
	connCtx           context.Context
	tunnelID          string
	publicURL         string
	reconnectAttempts int
	intentionalClose  bool
	cancelConn        context.CancelFunc

	sendMu sync.Mutex

	lastPongUnixNano atomic.Int64

	assembler *protocol.Assembler

	rootCtx    context.Context
	rootCancel context.CancelFunc

	inflight sync.WaitGroup
}

// registrationResponse is the broker's JSON reply to POST/GET /api/tunnels.
type registrationResponse struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	CachedURL string `json:"cached_url,omitempty"`
	Port      int    `json:"port"`
	Message   string `json:"message,omitempty"`
}

// Open registers cfg with the broker and, on success, starts the background connect loop.
// It is the sole entry point; there is no separate Connect() step to forget to call.
func Open(ctx context.Context, cfg *config.TunnelConfig) (*Session, error) {
	s := &Session{
		cfg:       cfg,
		Events:    make(chan Event, 100),
		st:        stateInit,
		assembler: protocol.NewAssembler(),
	}

	client, err := forwarderHTTPClientFor(cfg)
	if err != nil {
		return nil, err
	}
	s.health = breaker.NewHealthChecker(fmt.Sprintf("%s://%s:%d", cfg.OriginScheme(), cfg.OriginHost, cfg.OriginPort), client)
	s.breaker = breaker.NewCircuitBreaker(
		func(n int, cooldown time.Duration) {
			s.emit(Event{Type: "circuit-breaker-open", ConsecutiveErrors: n, CooldownMs: int(cooldown.Milliseconds())})
		},
		func() { s.emit(Event{Type: "circuit-breaker-closed"}) },
	)
	fwd, err := forwarder.New(cfg, s.breaker, s.health)
	if err != nil {
		return nil, err
	}
	s.fwd = fwd

	s.rootCtx, s.rootCancel = context.WithCancel(context.Background())

	s.mu.Lock()
	s.st = stateRegistering
	s.mu.Unlock()

	reg, err := s.register(ctx)
	if err != nil {
		s.mu.Lock()
		s.st = stateClosed
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	s.tunnelID = reg.ID
	s.publicURL = reg.URL
	s.st = statePending
	s.mu.Unlock()

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.connectLoop()
	}()

	return s, nil
}

func (s *Session) register(ctx context.Context) (*registrationResponse, error) {
	regCtx, cancel := context.WithTimeout(ctx, protocol.RegistrationTimeout)
	defer cancel()

	var req *http.Request
	var err error
	if s.cfg.Subdomain != "" {
		body, _ := json.Marshal(map[string]string{"subdomain": s.cfg.Subdomain})
		req, err = http.NewRequestWithContext(regCtx, http.MethodPost, s.cfg.BrokerBaseURL+"/api/tunnels", strings.NewReader(string(body)))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(regCtx, http.MethodGet, s.cfg.BrokerBaseURL+"/?new", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("session: build registration request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session: registration request failed: %w", err)
	}
	defer resp.Body.Close()

	var reg registrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("session: registration failed with status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("session: malformed registration response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if reg.Message != "" {
			return nil, fmt.Errorf("session: registration rejected: %s", reg.Message)
		}
		return nil, fmt.Errorf("session: registration failed with status %d", resp.StatusCode)
	}

	return &reg, nil
}

func (s *Session) wsURL() string {
	u := s.cfg.BrokerBaseURL
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return fmt.Sprintf("%s/api/tunnels/%s/ws", u, s.tunnelID)
}

func (s *Session) emit(ev Event) {
	select {
	case s.Events <- ev:
	default:
	}
}

// Close tears down the session immediately: stops the keepalive loop, closes the WebSocket,
// clears chunk assemblies, and emits `close`. Idempotent. A reconnect timer that is already
// pending is not stopped; when it fires it sees the closed session and does nothing.
func (s *Session) Close() {
	s.mu.Lock()
	if s.st == stateClosed {
		s.mu.Unlock()
		return
	}
	s.intentionalClose = true
	s.st = stateClosed
	conn := s.conn
	cancelConn := s.cancelConn
	s.mu.Unlock()

	if cancelConn != nil {
		cancelConn()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	s.rootCancel()
	s.assembler.Purge()

	s.emit(Event{Type: "close"})
}

// GracefulClose waits up to 5s (or ctx's deadline, whichever is shorter) for in-flight
// requests to drain before calling Close.
func (s *Session) GracefulClose(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
	}
	s.Close()
}

func forwarderHTTPClientFor(cfg *config.TunnelConfig) (*http.Client, error) {
	// Reuses the same construction rules the forwarder applies to its own client so the
	// health prober dials with identical TLS options.
	return forwarder.BuildHTTPClient(cfg)
}
