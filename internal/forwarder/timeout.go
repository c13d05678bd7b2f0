package forwarder

import (
	"math"
	"strings"
	"time"
)

// computeTimeout picks a per-request timeout based on its shape: SSE streams get a long
// ceiling, uploads and writes get more room than plain reads, and each retry of any other
// request relaxes the budget further.
func computeTimeout(base time.Duration, isSSE bool, method, path string, retryCount int, bodySize int) time.Duration {
	baseMs := float64(base.Milliseconds())
	var ms float64

	switch {
	case isSSE:
		ms = 3_600_000
	case strings.Contains(path, "/api/") && method == "GET":
		ms = math.Min(baseMs, 60_000)
	case method == "POST" || method == "PUT" || strings.Contains(path, "/upload"):
		ms = math.Min(baseMs*2, 180_000)
	case retryCount > 0:
		ms = math.Min(baseMs*math.Pow(1.5, float64(retryCount)), 60_000)
	default:
		ms = baseMs
	}

	if bodySize > 50_000 {
		multiplier := math.Min(1+float64(bodySize)/500_000, 2)
		ms = math.Min(ms*multiplier, 180_000)
	}

	return time.Duration(ms) * time.Millisecond
}
