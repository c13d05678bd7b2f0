package forwarder

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kiva-corp/localrun/internal/protocol"
)

const (
	sseDialTimeout = 300 * time.Second
	sseReadChunk   = 32 * 1024
)

// streamSSE implements the C4 streaming path: it never retries, applies a long fixed dial
// timeout instead of the adaptive one, and forwards the origin's body as a sequence of
// sse-chunk frames bounded only by the caller's context. Returns the origin's response
// status (for traffic logging) alongside any error.
func (f *Forwarder) streamSSE(ctx context.Context, req *protocol.RequestFrame, send Sender) (int, error) {
	// The dial timeout only covers the wait for the origin's response headers; once they
	// arrive the stream is bounded by ctx alone.
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	dialTimer := time.AfterFunc(sseDialTimeout, cancel)

	url := fmt.Sprintf("%s://%s:%d%s", f.cfg.OriginScheme(), f.cfg.OriginHost, f.cfg.OriginPort, req.Path)

	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = bytes.NewReader([]byte(req.Body))
	}

	httpReq, err := http.NewRequestWithContext(dialCtx, req.Method, url, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("forwarder: build sse request: %w", err)
	}
	for k, v := range req.Headers {
		if skipRequestHeaders[strings.ToLower(k)] {
			continue
		}
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if !dialTimer.Stop() && err != nil {
		return 0, fmt.Errorf("forwarder: sse dial timed out after %s: %w", sseDialTimeout, context.DeadlineExceeded)
	}
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := send(&protocol.SSEStartFrame{
		Type:      protocol.TypeSSEStart,
		RequestID: req.ID,
		Status:    resp.StatusCode,
		Headers:   flattenHeaders(resp.Header),
	}); err != nil {
		return resp.StatusCode, err
	}

	reader := bufio.NewReaderSize(resp.Body, sseReadChunk)
	buf := make([]byte, sseReadChunk)
	reason := "stream_ended"
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if sendErr := send(&protocol.SSEChunkFrame{
				Type:      protocol.TypeSSEChunk,
				RequestID: req.ID,
				Chunk:     string(buf[:n]),
			}); sendErr != nil {
				return resp.StatusCode, sendErr
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				reason = "stream_error"
			}
			break
		}
		select {
		case <-ctx.Done():
			reason = "stream_cancelled"
			return resp.StatusCode, send(&protocol.SSEEndFrame{Type: protocol.TypeSSEEnd, RequestID: req.ID, Reason: reason})
		default:
		}
	}

	return resp.StatusCode, send(&protocol.SSEEndFrame{Type: protocol.TypeSSEEnd, RequestID: req.ID, Reason: reason})
}
