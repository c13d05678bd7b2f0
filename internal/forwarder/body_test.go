package forwarder

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/base64"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func deflateBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func brotliBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestEncodeResponseBody_GzipTextDecompressedAndHeaderStripped(t *testing.T) {
	html := "<html><body>hello</body></html>"
	enc := encodeResponseBody("text/html", "gzip", gzipBytes(t, html))

	require.False(t, enc.IsBase64)
	require.True(t, enc.StripEncodingHdr)
	require.Equal(t, html, enc.Body)
}

func TestEncodeResponseBody_Brotli(t *testing.T) {
	body := `{"ok":true}`
	enc := encodeResponseBody("application/json", "br", brotliBytes(t, body))

	require.False(t, enc.IsBase64)
	require.True(t, enc.StripEncodingHdr)
	require.Equal(t, body, enc.Body)
}

func TestEncodeResponseBody_Deflate(t *testing.T) {
	body := "deflated payload"
	enc := encodeResponseBody("text/plain", "deflate", deflateBytes(t, body))

	require.False(t, enc.IsBase64)
	require.True(t, enc.StripEncodingHdr)
	require.Equal(t, body, enc.Body)
}

func TestEncodeResponseBody_DecompressionFailureFallsBackToBase64HeadersIntact(t *testing.T) {
	garbage := []byte("this is not actually gzip data")
	enc := encodeResponseBody("text/plain", "gzip", garbage)

	require.True(t, enc.IsBase64)
	require.False(t, enc.StripEncodingHdr)
	require.Equal(t, base64.StdEncoding.EncodeToString(garbage), enc.Body)
}

func TestEncodeResponseBody_UnknownEncodingTokenBase64(t *testing.T) {
	raw := []byte("some payload")
	enc := encodeResponseBody("text/plain", "identity-weird-thing", raw)

	require.True(t, enc.IsBase64)
	require.False(t, enc.StripEncodingHdr)
	require.Equal(t, base64.StdEncoding.EncodeToString(raw), enc.Body)
}

func TestEncodeResponseBody_BinaryContentTypeWinsOverEncoding(t *testing.T) {
	raw := gzipBytes(t, "irrelevant, never inspected")
	enc := encodeResponseBody("image/png", "gzip", raw)

	require.True(t, enc.IsBase64)
	require.False(t, enc.StripEncodingHdr)
	require.Equal(t, base64.StdEncoding.EncodeToString(raw), enc.Body)
}

func TestEncodeResponseBody_PlainPassthrough(t *testing.T) {
	body := "plain text, no encoding"
	enc := encodeResponseBody("text/plain", "", []byte(body))

	require.False(t, enc.IsBase64)
	require.False(t, enc.StripEncodingHdr)
	require.Equal(t, body, enc.Body)
}
