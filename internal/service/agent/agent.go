// Package agent defines the contract with the external conversational voice
// agent that listens to the user, reasons and speaks back.
package agent

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMissingAPIKey = errors.New("agent: API key not set")
	ErrNotStarted    = errors.New("agent: connection not started")
	ErrClosed        = errors.New("agent: connection closed")
)

// Callback receives events from the agent connection. Methods are invoked
// from the connection's goroutines, not the goroutine that called Start.
type Callback interface {
	// OnWelcome is called once the agent accepted the connection.
	OnWelcome(requestID string)

	// OnToolCallRequest is called when the agent wants a function run.
	OnToolCallRequest(call ToolCall)

	// OnConversationText receives a conversation event as sent by the agent.
	OnConversationText(raw []byte)

	// OnAudio receives synthesized speech.
	OnAudio(audio []byte)

	// OnError is called for errors reported by the agent or the transport.
	OnError(err error)

	// OnClose is called once when the connection is gone.
	OnClose()
}

// Connection is a live session with the voice agent. Send methods are safe
// for concurrent use.
type Connection interface {
	// Start opens the connection, applies settings and begins event delivery.
	Start(ctx context.Context, settings Settings, cb Callback) error

	// SendAudio forwards raw input audio.
	SendAudio(audio []byte) error

	// SendFrame sends a JSON control frame.
	SendFrame(frame any) error

	// KeepAlive tells the agent the session is still in use.
	KeepAlive() error

	// Finish releases the connection. It is idempotent.
	Finish() error
}

// Factory opens a new, unstarted Connection per session.
type Factory func() Connection

// Error is an error event reported by the agent.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("agent error: %s", e.Description)
	}
	return fmt.Sprintf("agent error %s: %s", e.Code, e.Description)
}
