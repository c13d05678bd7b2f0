package forwarder

import (
	"math"
	"time"
)

// retryDelay computes the delay before retry attempt n (1-indexed): a gentler curve for
// timeouts, a faster-growing one for transport errors. Shape mirrors the session package's
// reconnect backoff but with its own base/multiplier/cap.
func retryDelay(kind errorKind, attempt int) time.Duration {
	if kind == kindTimeout {
		ms := math.Min(2000*math.Pow(1.5, float64(attempt-1)), 8000)
		return time.Duration(ms) * time.Millisecond
	}
	ms := math.Min(1000*math.Pow(2, float64(attempt-1)), 5000)
	return time.Duration(ms) * time.Millisecond
}
