package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sous-voice-service/internal/models"
)

func wavHeader(format uint16, channels uint16, rate uint32, bits uint16) []byte {
	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint16(h[20:22], format)
	binary.LittleEndian.PutUint16(h[22:24], channels)
	binary.LittleEndian.PutUint32(h[24:28], rate)
	binary.LittleEndian.PutUint16(h[34:36], bits)
	copy(h[36:40], "data")
	return h
}

func TestReadWAVHeader(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{"pcm 16k mono", wavHeader(1, 1, 16000, 16), nil},
		{"not riff", append([]byte("JUNK"), make([]byte, 40)...), errNotWAV},
		{"not pcm", wavHeader(3, 1, 16000, 32), errNotPCM},
		{"stereo", wavHeader(1, 2, 16000, 16), errNot16BitMono},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := readWAVHeader(bytes.NewReader(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if err == nil && f.bytesPer(100) != 3200 {
				t.Errorf("expected 3200 bytes per 100ms, got %d", f.bytesPer(100))
			}
		})
	}

	if _, err := readWAVHeader(bytes.NewReader([]byte("RIFF"))); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("short header: expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestListenURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8000", "ws://localhost:8000/listen/7/42"},
		{"https://sous.example.com/", "wss://sous.example.com/listen/7/42"},
		{"http://gateway/sous", "ws://gateway/sous/listen/7/42"},
	}

	for _, tt := range tests {
		got, err := listenURL(tt.base, "7", "42")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("listenURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/chroma-upload-recipe/" {
			_, _ = w.Write([]byte(`{"message": "Chroma upload successful - 2 chunks uploaded"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "store unavailable"}`))
	}))
	defer srv.Close()

	serverURL = srv.URL
	httpTimeout = 5 * time.Second

	msg, err := call(context.Background(), http.MethodPost, "/chroma-upload-recipe/", map[string]any{"recipe_id": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "Chroma upload successful - 2 chunks uploaded" {
		t.Errorf("unexpected message %q", msg)
	}

	_, err = call(context.Background(), http.MethodPost, "/chroma-delete-recipe/", map[string]any{"recipe_id": 1})
	if err == nil || !strings.Contains(err.Error(), "store unavailable") {
		t.Errorf("expected server error, got %v", err)
	}
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		value     string
		want      string
	}{
		{
			"conversation text",
			models.EventConversationText,
			`{"eventType":"conversation.text","sessionId":"ab12-sess-1","payload":{"type":"ConversationText","role":"assistant","content":"Add a pinch of salt."}}`,
			"[ab12-sess-1] assistant: Add a pinch of salt.",
		},
		{
			"conversation payload without content",
			models.EventConversationText,
			`{"sessionId":"ab12-sess-1","payload":{"type":"Welcome"}}`,
			`[ab12-sess-1] {"type":"Welcome"}`,
		},
		{
			"session closed",
			models.EventSessionClosed,
			`{"sessionId":"ab12-sess-2","durationMs":1500,"reason":"agent_closed"}`,
			"[ab12-sess-2] session closed after 1.5s (agent_closed)",
		},
		{
			"recipe indexed",
			models.EventRecipeIndexed,
			`{"eventType":"recipe.indexed","recipeId":"42","userId":"7","chunks":3}`,
			"recipe.indexed recipe=42 user=7 chunks=3",
		},
		{"malformed", models.EventRecipeDeleted, `not json`, "recipe.deleted not json"},
		{"no header", "", `{"x":1}`, `{"x":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatEvent(tt.eventType, []byte(tt.value)); got != tt.want {
				t.Errorf("formatEvent() = %q, want %q", got, tt.want)
			}
		})
	}
}
