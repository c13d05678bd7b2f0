package forwarder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kiva-corp/localrun/internal/protocol"
)

type errorBody struct {
	Error             string `json:"error"`
	ErrorType         string `json:"errorType"`
	RequestID         string `json:"requestId"`
	LocalServer       string `json:"localServer,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
	Timestamp         int64  `json:"timestamp"`
	Details           string `json:"details,omitempty"`
}

// circuitBreakerResponse synthesizes a 503 for an open breaker without ever dialing the origin.
func circuitBreakerResponse(requestID string) *protocol.ResponseFrame {
	body := errorBody{
		Error:             "circuit breaker is open",
		ErrorType:         "circuit-breaker-open",
		RequestID:         requestID,
		RetryAfterSeconds: 30,
		Timestamp:         time.Now().UnixMilli(),
	}
	data, _ := json.Marshal(body)
	return &protocol.ResponseFrame{
		Type:   protocol.TypeResponse,
		ID:     requestID,
		Status: 503,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"X-Error-Type": "circuit-breaker-open",
			"Retry-After":  "30",
		},
		Body: string(data),
	}
}

// errorResponseFrame synthesizes a response frame for a forwarder failure, mapping the error
// to a status and error type so the broker still receives something for every request.
func errorResponseFrame(requestID string, err error, localServer string) *protocol.ResponseFrame {
	status, errorType := statusForError(err)
	body := errorBody{
		Error:       err.Error(),
		ErrorType:   errorType,
		RequestID:   requestID,
		LocalServer: localServer,
		Timestamp:   time.Now().UnixMilli(),
		Details:     err.Error(),
	}
	data, _ := json.Marshal(body)
	return &protocol.ResponseFrame{
		Type:   protocol.TypeResponse,
		ID:     requestID,
		Status: status,
		Headers: map[string]string{
			"Content-Type":   "application/json",
			"X-Error-Type":   errorType,
			"X-Local-Server": localServer,
		},
		Body: string(data),
	}
}

func localServerAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
