// Package forwarder implements the per-request HTTP forwarder (C3) and its SSE streaming
// variant (C4): dialing the local origin, classifying/decompressing response bodies,
// retrying transport errors with backoff, and gating dials behind a circuit breaker and
// cached health probe.
package forwarder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kiva-corp/localrun/internal/breaker"
	"github.com/kiva-corp/localrun/internal/config"
	"github.com/kiva-corp/localrun/internal/protocol"
)

// Sender delivers an outbound frame to the broker. The session implements it, serializing
// writes so a chunked frame's pieces stay contiguous.
type Sender func(frame protocol.Frame) error

// Forwarder forwards `request` frames to the local origin and produces `response` frames
// (or hands SSE requests to the streaming path).
type Forwarder struct {
	cfg     *config.TunnelConfig
	client  *http.Client
	breaker *breaker.CircuitBreaker
	health  *breaker.HealthChecker
}

// New builds a Forwarder for cfg, sharing the given breaker and health checker with the
// rest of the session (they are mutated by every concurrent forwarder goroutine).
func New(cfg *config.TunnelConfig, cb *breaker.CircuitBreaker, hc *breaker.HealthChecker) (*Forwarder, error) {
	client, err := buildHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Forwarder{cfg: cfg, client: client, breaker: cb, health: hc}, nil
}

// HandleRequest processes one inbound `request` frame end to end, sending the resulting
// response (or SSE frame sequence) through send. It never returns an error: every failure
// mode is mapped to an outbound frame so the broker always gets a reply. The returned
// status is the final HTTP status observed (or a synthesized error status), for traffic
// logging by the caller.
func (f *Forwarder) HandleRequest(ctx context.Context, req *protocol.RequestFrame, send Sender) int {
	if f.breaker.IsOpen() {
		_ = send(circuitBreakerResponse(req.ID))
		return 503
	}

	if isSSERequest(req) {
		status, err := f.streamSSE(ctx, req, send)
		if err != nil {
			f.breaker.RecordError()
			errStatus, _ := statusForError(err)
			_ = send(errorResponseFrame(req.ID, err, localServerAddr(f.cfg.OriginHost, f.cfg.OriginPort)))
			if status != 0 {
				return status
			}
			return errStatus
		}
		f.breaker.RecordSuccess()
		return status
	}

	resp, err := f.forwardWithRetry(ctx, req)
	if err != nil {
		f.breaker.RecordError()
		status, _ := statusForError(err)
		_ = send(errorResponseFrame(req.ID, err, localServerAddr(f.cfg.OriginHost, f.cfg.OriginPort)))
		return status
	}
	f.breaker.RecordSuccess()
	_ = send(resp)
	return resp.Status
}

// isSSERequest classifies a request as a server-sent-events stream by Accept header, path,
// or a no-cache Cache-Control hint.
func isSSERequest(req *protocol.RequestFrame) bool {
	if accept, ok := headerGet(req.Headers, "accept"); ok && strings.Contains(accept, "text/event-stream") {
		return true
	}
	if strings.Contains(req.Path, "/sse") {
		return true
	}
	if cc, ok := headerGet(req.Headers, "cache-control"); ok && cc == "no-cache" {
		return true
	}
	return false
}

// forwardWithRetry implements the attempt loop: health gate, adaptive timeout, dial, and
// retry-on-transport-error with a per-kind backoff curve.
func (f *Forwarder) forwardWithRetry(ctx context.Context, req *protocol.RequestFrame) (*protocol.ResponseFrame, error) {
	bodySize := len(req.Body)

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt == 0 || attempt >= 3 {
			if !f.health.IsHealthy(ctx) {
				lastErr = fmt.Errorf("ECONNREFUSED: origin health check failed for %s", localServerAddr(f.cfg.OriginHost, f.cfg.OriginPort))
				if attempt == f.cfg.MaxRetries || !isRetryable(lastErr) {
					return nil, lastErr
				}
				if !f.wait(ctx, retryDelay(classifyError(lastErr), attempt+1)) {
					return nil, ctx.Err()
				}
				continue
			}
		}

		timeout := computeTimeout(f.cfg.RequestTimeout, false, req.Method, req.Path, attempt, bodySize)
		resp, err := f.dialOnce(ctx, timeout, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if attempt == f.cfg.MaxRetries || !isRetryable(err) {
			return nil, err
		}
		if !f.wait(ctx, retryDelay(classifyError(err), attempt+1)) {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (f *Forwarder) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (f *Forwarder) dialOnce(ctx context.Context, timeout time.Duration, req *protocol.RequestFrame) (*protocol.ResponseFrame, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("%s://%s:%d%s", f.cfg.OriginScheme(), f.cfg.OriginHost, f.cfg.OriginPort, req.Path)

	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = bytes.NewReader([]byte(req.Body))
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("forwarder: build request: %w", err)
	}
	for k, v := range req.Headers {
		if skipRequestHeaders[strings.ToLower(k)] {
			continue
		}
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	headers := flattenHeaders(resp.Header)
	ct := strings.ToLower(headerValueOrEmpty(headers, "content-type"))
	ce := strings.ToLower(headerValueOrEmpty(headers, "content-encoding"))

	enc := encodeResponseBody(ct, ce, raw)
	if enc.StripEncodingHdr {
		deleteHeaderCaseInsensitive(headers, "content-encoding")
		deleteHeaderCaseInsensitive(headers, "content-length")
	}

	return &protocol.ResponseFrame{
		Type:     protocol.TypeResponse,
		ID:       req.ID,
		Status:   resp.StatusCode,
		Headers:  headers,
		Body:     enc.Body,
		IsBase64: enc.IsBase64,
	}, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = strings.Join(h.Values(k), ", ")
	}
	return out
}

func headerValueOrEmpty(headers map[string]string, name string) string {
	v, _ := headerGet(headers, name)
	return v
}

func deleteHeaderCaseInsensitive(headers map[string]string, name string) {
	for k := range headers {
		if strings.EqualFold(k, name) {
			delete(headers, k)
		}
	}
}
