package protocol

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// ErrCodePointTooLarge is returned when a single UTF-8 code point cannot fit within the
// chunk payload budget. This cannot happen with the current 768 KiB budget (the largest
// UTF-8 code point is 4 bytes) but the check is required by spec.
var ErrCodePointTooLarge = fmt.Errorf("protocol: a single code point exceeds the chunk payload budget")

// splitUTF8Safe splits s into substrings each at most maxBytes UTF-8-encoded bytes,
// never bisecting a code point. For each piece it binary-searches the largest prefix
// (counted in code points) that still fits the byte budget.
func splitUTF8Safe(s string, maxBytes int) ([]string, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("protocol: maxBytes must be positive")
	}

	runes := []rune(s)
	var pieces []string

	for lo := 0; lo < len(runes); {
		if utf8.RuneLen(runes[lo]) > maxBytes {
			return nil, ErrCodePointTooLarge
		}

		// Binary search over rune-count boundaries for the largest end index whose
		// UTF-8 byte length from lo is <= maxBytes.
		left, right := lo+1, len(runes)
		best := lo + 1
		for left <= right {
			mid := (left + right) / 2
			if byteLenOfRunes(runes[lo:mid]) <= maxBytes {
				best = mid
				left = mid + 1
			} else {
				right = mid - 1
			}
		}

		pieces = append(pieces, string(runes[lo:best]))
		lo = best
	}

	return pieces, nil
}

func byteLenOfRunes(rs []rune) int {
	total := 0
	for _, r := range rs {
		total += utf8.RuneLen(r)
	}
	return total
}

// EncodeOutbound serializes frame to JSON and, if it fits within MaxMessageBytes, returns
// it as the sole element of the result. Otherwise it splits the serialized JSON into
// ChunkFrame messages sharing one messageId, with ascending chunkIndex and a shared
// totalChunks/originalType, each individually marshaled and ready to send as a WebSocket
// text message.
func EncodeOutbound(frame Frame, nowUnixMs int64) ([][]byte, error) {
	serialized, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal frame: %w", err)
	}

	if len(serialized) <= MaxMessageBytes {
		return [][]byte{serialized}, nil
	}

	pieces, err := splitUTF8Safe(string(serialized), ChunkPayloadBudget)
	if err != nil {
		return nil, err
	}

	messageID := GenerateMessageID(nowUnixMs)
	originalType := frame.FrameType()
	out := make([][]byte, 0, len(pieces))
	for i, piece := range pieces {
		chunk := ChunkFrame{
			Type:         TypeChunk,
			MessageID:    messageID,
			ChunkIndex:   i,
			TotalChunks:  len(pieces),
			Chunk:        piece,
			OriginalType: originalType,
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal chunk %d/%d: %w", i, len(pieces), err)
		}
		out = append(out, data)
	}
	return out, nil
}
