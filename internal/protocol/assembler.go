package protocol

import (
	"fmt"
	"time"
)

// assembly is the transient reassembly record for one chunked message.
type assembly struct {
	totalChunks  int
	receivedCnt  int
	chunks       [][]byte
	filled       []bool
	originalType string
	createdAt    time.Time
}

// ErrChunkParseFailed wraps a parse failure of a fully-reassembled message. Per spec this
// is not a fatal error: the assembly is discarded and the caller should log it.
type ErrChunkParseFailed struct {
	MessageID string
	Err       error
}

func (e *ErrChunkParseFailed) Error() string {
	return fmt.Sprintf("protocol: failed to parse reassembled message %s: %v", e.MessageID, e.Err)
}

func (e *ErrChunkParseFailed) Unwrap() error { return e.Err }

// Assembler reassembles inbound ChunkFrame messages into complete frames. It is owned by
// a single Session instance (not a package-level global) and is mutated only by the
// Session's reader goroutine, so it carries no internal locking of its own.
type Assembler struct {
	table       map[string]*assembly
	arrivals    int
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{table: make(map[string]*assembly)}
}

// Add stores one chunk. When the owning message is complete it concatenates the chunks in
// index order, parses the result as a Frame, deletes the assembly, and returns the frame.
// It returns (nil, nil) while the message is still incomplete, and a non-nil error only
// when the now-complete message fails to parse as JSON (the assembly is discarded either
// way). GC runs opportunistically on roughly 1 in ChunkGCSampleRate calls.
func (a *Assembler) Add(chunk *ChunkFrame, now time.Time) (Frame, error) {
	a.arrivals++
	if a.arrivals%ChunkGCSampleRate == 0 {
		a.GC(now)
	}

	if chunk.TotalChunks <= 0 || chunk.ChunkIndex < 0 || chunk.ChunkIndex >= chunk.TotalChunks {
		return nil, nil
	}

	asm, ok := a.table[chunk.MessageID]
	if !ok {
		asm = &assembly{
			totalChunks:  chunk.TotalChunks,
			chunks:       make([][]byte, chunk.TotalChunks),
			filled:       make([]bool, chunk.TotalChunks),
			originalType: chunk.OriginalType,
			createdAt:    now,
		}
		a.table[chunk.MessageID] = asm
	}

	// Duplicate indexes overwrite, but receivedCnt is only incremented the first time a
	// slot is filled, guarding against double-counting a retransmitted chunk.
	if !asm.filled[chunk.ChunkIndex] {
		asm.filled[chunk.ChunkIndex] = true
		asm.receivedCnt++
	}
	asm.chunks[chunk.ChunkIndex] = []byte(chunk.Chunk)

	if asm.receivedCnt < asm.totalChunks {
		return nil, nil
	}

	delete(a.table, chunk.MessageID)

	total := 0
	for _, c := range asm.chunks {
		total += len(c)
	}
	full := make([]byte, 0, total)
	for _, c := range asm.chunks {
		full = append(full, c...)
	}

	frame, err := ParseFrame(full)
	if err != nil {
		return nil, &ErrChunkParseFailed{MessageID: chunk.MessageID, Err: err}
	}
	return frame, nil
}

// GC evicts assemblies older than maxAge and, if the table still exceeds maxEntries,
// removes the oldest-by-creation entries until the cap is met.
func (a *Assembler) GC(now time.Time) {
	a.gc(now, ChunkMaxAge, ChunkMaxEntries)
}

// Cleanup runs garbage collection with explicit parameters instead of the package defaults,
// for callers (tests, mainly) that want deterministic control over timing.
func (a *Assembler) Cleanup(maxAge time.Duration, maxEntries int) {
	a.gc(time.Now(), maxAge, maxEntries)
}

func (a *Assembler) gc(now time.Time, maxAge time.Duration, maxEntries int) {
	for id, asm := range a.table {
		if now.Sub(asm.createdAt) > maxAge {
			delete(a.table, id)
		}
	}

	for len(a.table) > maxEntries {
		var oldestID string
		var oldestAt time.Time
		first := true
		for id, asm := range a.table {
			if first || asm.createdAt.Before(oldestAt) {
				oldestID = id
				oldestAt = asm.createdAt
				first = false
			}
		}
		delete(a.table, oldestID)
	}
}

// Len reports the number of in-flight assemblies. Test/diagnostic use.
func (a *Assembler) Len() int {
	return len(a.table)
}

// Purge discards all in-flight assemblies, e.g. on session close.
func (a *Assembler) Purge() {
	a.table = make(map[string]*assembly)
}
