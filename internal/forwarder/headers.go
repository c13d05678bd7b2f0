package forwarder

import "strings"

// headerGet performs a case-insensitive lookup on a flat header map, matching the
// case-insensitivity HTTP headers require even though the wire representation is a plain
// map[string]string.
func headerGet(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// skipRequestHeaders are not forwarded to the origin; they describe the tunnel hop itself.
var skipRequestHeaders = map[string]bool{
	"host":              true,
	"connection":        true,
	"transfer-encoding": true,
}
