package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/kiva-corp/localrun/internal/config"
	"github.com/kiva-corp/localrun/internal/protocol"
)

// mockBroker serves both the registration HTTP endpoint and the tunnel WebSocket.
func mockBroker(t *testing.T, wsHandler func(ctx context.Context, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	register := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   "tun-123",
			"url":  "https://tun-123.localrun.test",
			"port": 8080,
		})
	}
	// POST /api/tunnels (with a subdomain) and GET /?new (without one).
	mux.HandleFunc("/api/tunnels", register)
	mux.HandleFunc("/", register)
	mux.HandleFunc("/api/tunnels/tun-123/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer func() { _ = conn.CloseNow() }()
		wsHandler(r.Context(), conn)
	})
	return httptest.NewServer(mux)
}

func testConfig(t *testing.T, brokerURL string) *config.TunnelConfig {
	t.Helper()
	cfg, err := config.New(config.TunnelConfig{OriginPort: 9999, BrokerBaseURL: brokerURL})
	require.NoError(t, err)
	return cfg
}

func TestOpen_EmitsURLOnConnect(t *testing.T) {
	server := mockBroker(t, func(ctx context.Context, conn *websocket.Conn) {
		time.Sleep(300 * time.Millisecond)
	})
	defer server.Close()

	s, err := Open(context.Background(), testConfig(t, server.URL))
	require.NoError(t, err)
	defer s.Close()

	select {
	case ev := <-s.Events:
		require.Equal(t, "url", ev.Type)
		require.Equal(t, "https://tun-123.localrun.test", ev.URL)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for url event")
	}
}

func TestOpen_RegistrationFailureReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "broker overloaded"})
	}))
	defer server.Close()

	_, err := Open(context.Background(), testConfig(t, server.URL))
	require.Error(t, err)
	require.Contains(t, err.Error(), "broker overloaded")
}

func TestSession_PingReceivesPong(t *testing.T) {
	pongReceived := make(chan struct{}, 1)
	server := mockBroker(t, func(ctx context.Context, conn *websocket.Conn) {
		data, _ := json.Marshal(protocol.PingFrame{Type: protocol.TypePing, Timestamp: 1})
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
		_, reply, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var env protocol.Envelope
		_ = json.Unmarshal(reply, &env)
		if env.Type == protocol.TypePong {
			pongReceived <- struct{}{}
		}
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	s, err := Open(context.Background(), testConfig(t, server.URL))
	require.NoError(t, err)
	defer s.Close()

	select {
	case <-pongReceived:
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive pong reply")
	}
}

func TestSession_RequestFrameDispatchesToForwarder(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer origin.Close()

	responseReceived := make(chan *protocol.ResponseFrame, 1)
	server := mockBroker(t, func(ctx context.Context, conn *websocket.Conn) {
		reqFrame := protocol.RequestFrame{Type: protocol.TypeRequest, ID: "r1", Method: "GET", Path: "/widgets"}
		data, _ := json.Marshal(reqFrame)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
		_, reply, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var resp protocol.ResponseFrame
		if json.Unmarshal(reply, &resp) == nil {
			responseReceived <- &resp
		}
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	s, err := Open(context.Background(), testConfig(t, server.URL))
	require.NoError(t, err)
	defer s.Close()

	select {
	case resp := <-responseReceived:
		require.Equal(t, "r1", resp.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive response frame")
	}
}

func TestWsURL_SchemeSwap(t *testing.T) {
	s := &Session{cfg: testConfig(t, "https://broker.example.com"), tunnelID: "abc"}
	require.Equal(t, "wss://broker.example.com/api/tunnels/abc/ws", s.wsURL())

	s2 := &Session{cfg: testConfig(t, "http://broker.example.com"), tunnelID: "abc"}
	require.Equal(t, "ws://broker.example.com/api/tunnels/abc/ws", s2.wsURL())
}

func TestReconnectDelay_BoundedByCap(t *testing.T) {
	for attempt := 0; attempt < 20; attempt++ {
		d := reconnectDelay(attempt)
		require.LessOrEqual(t, d, time.Duration(protocol.ReconnectCapMs)*time.Millisecond)
		require.GreaterOrEqual(t, d, time.Duration(protocol.ReconnectBaseMinMs)*time.Millisecond)
	}
}

func TestClose_Idempotent(t *testing.T) {
	server := mockBroker(t, func(ctx context.Context, conn *websocket.Conn) {
		time.Sleep(200 * time.Millisecond)
	})
	defer server.Close()

	s, err := Open(context.Background(), testConfig(t, server.URL))
	require.NoError(t, err)

	s.Close()
	s.Close() // must not panic or double-emit in a way that blocks
}
