package protocol

import "testing"

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string
		wantNil  bool
		wantErr  bool
	}{
		{
			name:     "request",
			input:    `{"type":"request","id":"r1","method":"GET","path":"/ping","headers":{}}`,
			wantType: TypeRequest,
		},
		{
			name:     "response",
			input:    `{"type":"response","id":"r1","status":200,"headers":{},"body":"pong","isBase64":false}`,
			wantType: TypeResponse,
		},
		{
			name:     "chunk",
			input:    `{"type":"chunk","messageId":"m1","chunkIndex":0,"totalChunks":2,"chunk":"abc","originalType":"response"}`,
			wantType: TypeChunk,
		},
		{
			name:     "sse-start",
			input:    `{"type":"sse-start","requestId":"r1","status":200,"headers":{}}`,
			wantType: TypeSSEStart,
		},
		{
			name:     "sse-chunk",
			input:    `{"type":"sse-chunk","requestId":"r1","chunk":"data: a\n\n"}`,
			wantType: TypeSSEChunk,
		},
		{
			name:     "sse-end",
			input:    `{"type":"sse-end","requestId":"r1","reason":"stream_ended"}`,
			wantType: TypeSSEEnd,
		},
		{
			name:     "ping",
			input:    `{"type":"ping","timestamp":123}`,
			wantType: TypePing,
		},
		{
			name:     "pong",
			input:    `{"type":"pong","timestamp":123}`,
			wantType: TypePong,
		},
		{
			name:    "unknown type returns nil, nil",
			input:   `{"type":"unknown-type"}`,
			wantNil: true,
		},
		{
			name:    "malformed JSON returns error",
			input:   `{not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ParseFrame([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if frame != nil {
					t.Fatalf("expected nil frame, got %#v", frame)
				}
				return
			}
			if frame.FrameType() != tt.wantType {
				t.Errorf("expected type %q, got %q", tt.wantType, frame.FrameType())
			}
		})
	}
}
