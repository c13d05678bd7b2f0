package protocol

import "time"

// Frame type discriminators.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeChunk    = "chunk"
	TypeSSEStart = "sse-start"
	TypeSSEChunk = "sse-chunk"
	TypeSSEEnd   = "sse-end"
	TypePing     = "ping"
	TypePong     = "pong"
)

const (
	// MaxMessageBytes is the hard ceiling the broker enforces per WebSocket message.
	MaxMessageBytes = 1 << 20 // 1 MiB

	// ChunkPayloadBudget is the per-chunk payload budget, left under MaxMessageBytes so
	// the enclosing JSON envelope (messageId, indices, type) still fits.
	ChunkPayloadBudget = 768 * 1024

	// ChunkMaxAge is how long an incomplete assembly is kept before GC evicts it.
	ChunkMaxAge = 30 * time.Second

	// ChunkMaxEntries bounds the assembly table; oldest-by-creation are evicted first.
	ChunkMaxEntries = 100

	// ChunkGCSampleRate: GC runs on roughly 1 in N chunk arrivals.
	ChunkGCSampleRate = 10
)

const (
	SubdomainLength  = 10
	RequestIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

const (
	DefaultOriginHost     = "localhost"
	DefaultBrokerBaseURL  = "https://broker.localrun.dev"
	DefaultRequestTimeout = 15 * time.Second
	DefaultMaxRetries     = 2

	RegistrationTimeout = 10 * time.Second
	WSHandshakeTimeout  = 10 * time.Second
)

const (
	HealthCacheTTL     = 10 * time.Second
	HealthProbeTimeout = 3 * time.Second

	BreakerThreshold    = 5
	BreakerResetWindow  = 30 * time.Second
)

const (
	KeepaliveInterval     = 30 * time.Second
	KeepaliveMissedLimit  = 2 * KeepaliveInterval
)

const (
	ReconnectMaxAttempts  = 10
	ReconnectBaseMinMs    = 1000
	ReconnectBaseMaxMs    = 2000
	ReconnectMultiplier   = 1.5
	ReconnectCapMs        = 30000
)
