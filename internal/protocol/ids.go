package protocol

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

var subdomainRe = regexp.MustCompile(`^[A-Za-z0-9]{10}$`)

// ValidateSubdomain checks whether a requested subdomain matches the client-side rule:
// exactly 10 alphanumeric characters.
func ValidateSubdomain(subdomain string) (bool, string) {
	if subdomain == "" {
		return false, "subdomain must not be empty"
	}
	if !subdomainRe.MatchString(subdomain) {
		return false, "subdomain must be exactly 10 alphanumeric characters"
	}
	return true, ""
}

// generateRandomString returns a cryptographically random string of the given length
// drawn from RequestIDAlphabet.
func generateRandomString(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	alphabetLen := len(RequestIDAlphabet)
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = RequestIDAlphabet[int(b)%alphabetLen]
	}
	return string(out)
}

// GenerateRequestID returns a random identifier for correlating request/response frames.
func GenerateRequestID() string {
	return generateRandomString(16)
}

// GenerateMessageID returns an identifier for a chunked message: an epoch-millisecond
// prefix followed by 9 random base36 characters, so assemblies sort roughly by creation
// order and collisions across concurrent sends stay vanishingly unlikely.
func GenerateMessageID(nowUnixMs int64) string {
	return fmt.Sprintf("%d-%s", nowUnixMs, generateRandomString(9))
}
