package breaker

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/kiva-corp/localrun/internal/protocol"
)

// HealthChecker performs a cached reachability check of the origin, sticky on whichever
// probe path ("/health" or "/") first returned a usable result.
type HealthChecker struct {
	client  *http.Client
	baseURL string // e.g. "https://localhost:8080"

	mu        sync.Mutex
	isHealthy bool
	lastCheck time.Time
	probePath string // "", "/health", or "/"
}

// NewHealthChecker returns a checker against baseURL (scheme+host+port, no trailing slash)
// using the given HTTP client (so TLS dial options configured by the caller are honored).
func NewHealthChecker(baseURL string, client *http.Client) *HealthChecker {
	return &HealthChecker{baseURL: baseURL, client: client}
}

// IsHealthy returns the cached reachability verdict, probing the origin only when the
// cache has expired.
func (h *HealthChecker) IsHealthy(ctx context.Context) bool {
	h.mu.Lock()
	if time.Since(h.lastCheck) < protocol.HealthCacheTTL {
		healthy := h.isHealthy
		h.mu.Unlock()
		return healthy
	}
	sticky := h.probePath
	h.mu.Unlock()

	healthy, path := h.probe(ctx, sticky)

	h.mu.Lock()
	h.isHealthy = healthy
	h.lastCheck = time.Now()
	if path != "" {
		h.probePath = path
	}
	h.mu.Unlock()

	return healthy
}

func (h *HealthChecker) probe(ctx context.Context, stickyPath string) (healthy bool, path string) {
	if stickyPath == "/health" {
		status, err := h.head(ctx, "/health")
		return err == nil && is2xx(status), "/health"
	}
	if stickyPath == "/" {
		status, err := h.head(ctx, "/")
		return err == nil && is2xxTo4xx(status), "/"
	}

	// No sticky path yet: try /health first.
	status, err := h.head(ctx, "/health")
	if err == nil && is2xx(status) {
		return true, "/health"
	}

	// Either /health errored/timed out, or returned >= 300: fall back to "/".
	status, err = h.head(ctx, "/")
	if err == nil && is2xxTo4xx(status) {
		return true, "/"
	}
	return false, ""
}

func (h *HealthChecker) head(ctx context.Context, path string) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, protocol.HealthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, h.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}

func is2xxTo4xx(status int) bool {
	return status >= 200 && status < 500
}
