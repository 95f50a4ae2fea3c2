// Package mock provides an in-process voice agent for local runs and tests.
// It greets on start, answers every few audio frames with a canned
// conversation message and records everything sent to it.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"sous-voice-service/internal/service/agent"
)

// DefaultReplies are cycled through as assistant conversation text.
var DefaultReplies = []string{
	"Ask me anything about your recipe.",
	"Let me check the recipe for you.",
	"You'll want to keep the heat at medium.",
	"That step takes about ten minutes.",
}

// Op is one operation the session performed on the connection.
type Op struct {
	Kind  string // audio, frame, keepalive
	Frame any
	Bytes int
}

// Connection implements agent.Connection in memory.
type Connection struct {
	// EchoEvery emits a reply after this many audio frames; zero disables it.
	EchoEvery int
	// StartErr, when set, is returned by Start.
	StartErr error

	mu          sync.Mutex
	cb          agent.Callback
	started     bool
	finished    bool
	audioFrames int
	replyIndex  int
	ops         []Op
	finishCount int
	finishCh    chan struct{}
}

// New returns an unstarted mock connection.
func New() *Connection {
	return &Connection{finishCh: make(chan struct{})}
}

// NewFactory returns a factory of mock connections replying every echoEvery frames.
func NewFactory(echoEvery int) agent.Factory {
	return func() agent.Connection {
		c := New()
		c.EchoEvery = echoEvery
		return c
	}
}

func (c *Connection) Start(_ context.Context, _ agent.Settings, cb agent.Callback) error {
	if c.StartErr != nil {
		return c.StartErr
	}
	c.mu.Lock()
	c.cb = cb
	c.started = true
	c.mu.Unlock()

	go cb.OnWelcome("mock-request")
	return nil
}

func (c *Connection) SendAudio(audio []byte) error {
	c.mu.Lock()
	if err := c.writable(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.audioFrames++
	c.ops = append(c.ops, Op{Kind: "audio", Bytes: len(audio)})

	var reply []byte
	if c.EchoEvery > 0 && c.audioFrames%c.EchoEvery == 0 {
		reply = conversationText("assistant", DefaultReplies[c.replyIndex%len(DefaultReplies)])
		c.replyIndex++
	}
	cb := c.cb
	c.mu.Unlock()

	if reply != nil {
		go cb.OnConversationText(reply)
	}
	return nil
}

func (c *Connection) SendFrame(frame any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writable(); err != nil {
		return err
	}
	c.ops = append(c.ops, Op{Kind: "frame", Frame: frame})
	return nil
}

func (c *Connection) KeepAlive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writable(); err != nil {
		return err
	}
	c.ops = append(c.ops, Op{Kind: "keepalive"})
	return nil
}

// Finish marks the connection finished and counts every call.
func (c *Connection) Finish() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishCount++
	if !c.finished {
		c.finished = true
		close(c.finishCh)
	}
	return nil
}

func (c *Connection) writable() error {
	if !c.started {
		return agent.ErrNotStarted
	}
	if c.finished {
		return agent.ErrClosed
	}
	return nil
}

// InjectToolCall delivers a tool call request as the agent would.
func (c *Connection) InjectToolCall(call agent.ToolCall) {
	if cb := c.callback(); cb != nil {
		cb.OnToolCallRequest(call)
	}
}

// InjectConversationText delivers a conversation event.
func (c *Connection) InjectConversationText(role, content string) {
	if cb := c.callback(); cb != nil {
		cb.OnConversationText(conversationText(role, content))
	}
}

// InjectAudio delivers synthesized audio.
func (c *Connection) InjectAudio(audio []byte) {
	if cb := c.callback(); cb != nil {
		cb.OnAudio(audio)
	}
}

// InjectError delivers an agent error event.
func (c *Connection) InjectError(err error) {
	if cb := c.callback(); cb != nil {
		cb.OnError(err)
	}
}

// Disconnect simulates the agent closing the connection.
func (c *Connection) Disconnect() {
	if cb := c.callback(); cb != nil {
		cb.OnClose()
	}
}

func (c *Connection) callback() agent.Callback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cb
}

// Ops returns a copy of the recorded operations in order.
func (c *Connection) Ops() []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Op(nil), c.ops...)
}

// AudioFrames returns how many audio frames were received.
func (c *Connection) AudioFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioFrames
}

// Frames returns the JSON frames received, in order.
func (c *Connection) Frames() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, op := range c.ops {
		if op.Kind == "frame" {
			out = append(out, op.Frame)
		}
	}
	return out
}

// KeepAlives returns how many keep-alives were received.
func (c *Connection) KeepAlives() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, op := range c.ops {
		if op.Kind == "keepalive" {
			n++
		}
	}
	return n
}

// FinishCount returns how many times Finish was called.
func (c *Connection) FinishCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finishCount
}

// Finished is closed on the first Finish.
func (c *Connection) Finished() <-chan struct{} {
	return c.finishCh
}

func conversationText(role, content string) []byte {
	b, _ := json.Marshal(map[string]string{
		"type":    "ConversationText",
		"role":    role,
		"content": content,
	})
	return b
}
