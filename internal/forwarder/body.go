package forwarder

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/base64"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

var binaryContentTypePrefixes = []string{"image/", "video/", "audio/"}
var binaryContentTypesExact = map[string]bool{
	"application/octet-stream": true,
	"application/pdf":          true,
}

var textContentTypeMarkers = []string{
	"text/",
	"application/json",
	"application/javascript",
	"application/x-javascript",
	"text/javascript",
	"application/xml",
	"application/xhtml+xml",
}

func isBinaryContentType(ct string) bool {
	for _, prefix := range binaryContentTypePrefixes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return binaryContentTypesExact[ct]
}

func isTextKind(ct string) bool {
	for _, marker := range textContentTypeMarkers {
		if strings.Contains(ct, marker) {
			return true
		}
	}
	return false
}

// compressionToken returns the recognized encoding token for a Content-Encoding value and
// whether the header was present at all. An empty, recognized token ("") with present=true
// never happens; present=true with known=false means an encoding token we don't decode.
func compressionToken(ce string) (token string, known bool, present bool) {
	ce = strings.TrimSpace(ce)
	if ce == "" {
		return "", false, false
	}
	switch {
	case strings.Contains(ce, "gzip"):
		return "gzip", true, true
	case strings.Contains(ce, "br"):
		return "br", true, true
	case strings.Contains(ce, "deflate"):
		return "deflate", true, true
	default:
		return ce, false, true
	}
}

func decompress(token string, raw []byte) ([]byte, error) {
	var r io.Reader
	switch token {
	case "gzip":
		gr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		r = gr
	case "deflate":
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		r = fr
	case "br":
		r = brotli.NewReader(bytes.NewReader(raw))
	default:
		return nil, io.ErrUnexpectedEOF
	}
	return io.ReadAll(r)
}

// encodedBody is the result of deciding how a response body should travel over the wire.
type encodedBody struct {
	Body             string
	IsBase64         bool
	StripEncodingHdr bool
}

// encodeResponseBody decides how a response body should travel over the JSON wire frame,
// given the (already lowercased) Content-Type and Content-Encoding header values.
func encodeResponseBody(contentType, contentEncoding string, raw []byte) encodedBody {
	if isBinaryContentType(contentType) {
		return encodedBody{Body: base64.StdEncoding.EncodeToString(raw), IsBase64: true}
	}

	token, known, present := compressionToken(contentEncoding)
	if present {
		if known {
			if isTextKind(contentType) {
				decoded, err := decompress(token, raw)
				if err == nil {
					return encodedBody{Body: string(decoded), IsBase64: false, StripEncodingHdr: true}
				}
				// Decompression failed: fall back to base64 of the original bytes and
				// leave the encoding headers untouched.
				return encodedBody{Body: base64.StdEncoding.EncodeToString(raw), IsBase64: true}
			}
			return encodedBody{Body: base64.StdEncoding.EncodeToString(raw), IsBase64: true}
		}
		// Unknown compression token.
		return encodedBody{Body: base64.StdEncoding.EncodeToString(raw), IsBase64: true}
	}

	return encodedBody{Body: string(raw), IsBase64: false}
}
