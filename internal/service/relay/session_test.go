package relay

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"sous-voice-service/internal/models"
	"sous-voice-service/internal/service/agent"
	"sous-voice-service/internal/service/agent/mock"
	"sous-voice-service/internal/service/session"
)

// fakeClient is an in-memory ClientConn. Closing in ends the session as a
// normal disconnect.
type fakeClient struct {
	in     chan []byte
	closed chan struct{}

	mu        sync.Mutex
	texts     [][]byte
	audio     [][]byte
	closeOnce sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		in:     make(chan []byte),
		closed: make(chan struct{}),
	}
}

func (c *fakeClient) ReadAudio(ctx context.Context) ([]byte, error) {
	select {
	case b, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeClient) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, data)
	return nil
}

func (c *fakeClient) WriteAudio(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = append(c.audio, data)
	return nil
}

func (c *fakeClient) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeClient) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.texts))
	for i, t := range c.texts {
		out[i] = string(t)
	}
	return out
}

func (c *fakeClient) AudioCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.audio)
}

func (c *fakeClient) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeRetriever struct {
	mu        sync.Mutex
	questions []string
}

func (r *fakeRetriever) ContextFor(_ context.Context, question, recipeID, userID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questions = append(r.questions, question)
	return "context for " + question + " (" + recipeID + "/" + userID + ")"
}

func (r *fakeRetriever) Questions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.questions...)
}

type published struct {
	key       string
	eventType string
	event     any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) PublishConversation(_ context.Context, key, eventType string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{key: key, eventType: eventType, event: event})
	return nil
}

func (p *fakePublisher) Events() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

func testConfig() Config {
	return Config{
		SessionID:          "sess-1",
		UserID:             "7",
		RecipeID:           "42",
		Settings:           agent.Settings{Functions: []agent.Function{agent.RecipeContextTool()}},
		ToolResponseSchema: agent.SchemaFunctionCallResponse,
	}
}

type harness struct {
	conn      *mock.Connection
	client    *fakeClient
	retriever *fakeRetriever
	publisher *fakePublisher
	session   *Session
	cancel    context.CancelFunc
	result    chan error
}

func startSession(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		conn:      mock.New(),
		client:    newFakeClient(),
		retriever: &fakeRetriever{},
		publisher: &fakePublisher{},
		result:    make(chan error, 1),
	}
	h.session = NewSession(cfg, h.conn, h.client, h.retriever, h.publisher)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)

	go func() { h.result <- h.session.Run(ctx) }()

	waitFor(t, "session active", func() bool { return h.session.State() == session.StateActive })
	return h
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.result:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSession_ForwardsClientAudio(t *testing.T) {
	h := startSession(t, testConfig())

	h.client.in <- []byte("frame-1")
	h.client.in <- []byte("frame-2")

	waitFor(t, "two frames", func() bool { return h.conn.AudioFrames() == 2 })

	close(h.client.in)
	if err := h.wait(t); err != nil {
		t.Errorf("expected clean disconnect, got %v", err)
	}
}

func TestSession_ToolCallAnsweredBeforeLaterAudio(t *testing.T) {
	h := startSession(t, testConfig())

	h.client.in <- []byte("frame-1")
	waitFor(t, "first frame", func() bool { return h.conn.AudioFrames() == 1 })

	// Returns once the run loop took the call.
	h.conn.InjectToolCall(agent.ToolCall{
		ID:        "call-1",
		Name:      agent.RecipeContextToolName,
		Arguments: `{"question":"how much salt?"}`,
	})
	h.client.in <- []byte("frame-2")
	waitFor(t, "second frame", func() bool { return h.conn.AudioFrames() == 2 })

	ops := h.conn.Ops()
	kinds := make([]string, len(ops))
	for i, op := range ops {
		kinds[i] = op.Kind
	}
	if strings.Join(kinds, ",") != "audio,frame,audio" {
		t.Fatalf("expected audio,frame,audio, got %v", kinds)
	}

	resp, ok := ops[1].Frame.(agent.FunctionCallResponse)
	if !ok {
		t.Fatalf("expected FunctionCallResponse, got %T", ops[1].Frame)
	}
	if resp.ID != "call-1" || resp.Name != agent.RecipeContextToolName {
		t.Errorf("response not correlated with call: %+v", resp)
	}
	if resp.Content != "context for how much salt? (42/7)" {
		t.Errorf("unexpected content %q", resp.Content)
	}

	close(h.client.in)
	h.wait(t)
}

func TestSession_ToolResponseLegacySchema(t *testing.T) {
	cfg := testConfig()
	cfg.ToolResponseSchema = agent.SchemaFunctionResponse
	h := startSession(t, cfg)

	h.conn.InjectToolCall(agent.ToolCall{
		ID:        "tool-9",
		RequestID: "req-3",
		Name:      agent.RecipeContextToolName,
		Arguments: `{"question":"oven temperature"}`,
	})
	waitFor(t, "response frame", func() bool { return len(h.conn.Frames()) == 1 })

	resp, ok := h.conn.Frames()[0].(agent.FunctionResponse)
	if !ok {
		t.Fatalf("expected FunctionResponse, got %T", h.conn.Frames()[0])
	}
	if resp.RequestID != "req-3" || resp.ToolCallID != "tool-9" {
		t.Errorf("response not correlated with call: %+v", resp)
	}

	close(h.client.in)
	h.wait(t)
}

func TestSession_MalformedArgumentsAnsweredWithError(t *testing.T) {
	h := startSession(t, testConfig())

	h.conn.InjectToolCall(agent.ToolCall{
		ID:        "call-2",
		Name:      agent.RecipeContextToolName,
		Arguments: `{}`,
	})
	waitFor(t, "response frame", func() bool { return len(h.conn.Frames()) == 1 })

	resp := h.conn.Frames()[0].(agent.FunctionCallResponse)
	if !strings.HasPrefix(resp.Content, "RAG error: ") {
		t.Errorf("expected RAG error content, got %q", resp.Content)
	}
	if len(h.retriever.Questions()) != 0 {
		t.Error("retriever should not be called for malformed arguments")
	}

	close(h.client.in)
	h.wait(t)
}

func TestSession_UnknownToolIgnored(t *testing.T) {
	h := startSession(t, testConfig())

	h.conn.InjectToolCall(agent.ToolCall{ID: "call-3", Name: "set_timer", Arguments: `{"minutes":5}`})
	h.conn.InjectConversationText("assistant", "ok")
	waitFor(t, "text relayed", func() bool { return len(h.client.Texts()) == 1 })

	if n := len(h.conn.Frames()); n != 0 {
		t.Errorf("expected no response frames, got %d", n)
	}
	if h.session.State() != session.StateActive {
		t.Errorf("expected session to stay active, got %v", h.session.State())
	}

	close(h.client.in)
	h.wait(t)
}

func TestSession_RelaysConversationTextVerbatim(t *testing.T) {
	h := startSession(t, testConfig())

	h.conn.InjectConversationText("user", "is the oven hot yet?")
	waitFor(t, "published", func() bool { return len(h.publisher.Events()) == 1 })

	texts := h.client.Texts()
	if len(texts) != 1 {
		t.Fatalf("expected one text frame, got %d", len(texts))
	}
	want := `{"content":"is the oven hot yet?","role":"user","type":"ConversationText"}`
	if texts[0] != want {
		t.Errorf("expected %s, got %s", want, texts[0])
	}

	ev := h.publisher.Events()[0]
	if ev.key != "sess-1" || ev.eventType != models.EventConversationText {
		t.Errorf("unexpected publish key/type: %s/%s", ev.key, ev.eventType)
	}
	payload, ok := ev.event.(models.ConversationTextEvent)
	if !ok {
		t.Fatalf("expected ConversationTextEvent, got %T", ev.event)
	}
	if string(payload.Payload) != want || payload.RecipeID != "42" {
		t.Errorf("unexpected event %+v", payload)
	}

	close(h.client.in)
	h.wait(t)
}

func TestSession_AgentAudio(t *testing.T) {
	tests := []struct {
		name    string
		forward bool
		want    int
	}{
		{"dropped by default", false, 0},
		{"forwarded when enabled", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ForwardAudio = tt.forward
			h := startSession(t, cfg)

			h.conn.InjectAudio([]byte{1, 2, 3, 4})
			// Events are handled in order, so once the text is out the audio was too.
			h.conn.InjectConversationText("assistant", "done")
			waitFor(t, "text relayed", func() bool { return len(h.client.Texts()) == 1 })

			if got := h.client.AudioCount(); got != tt.want {
				t.Errorf("expected %d audio frames at client, got %d", tt.want, got)
			}

			close(h.client.in)
			h.wait(t)
		})
	}
}

func TestSession_KeepAlive(t *testing.T) {
	cfg := testConfig()
	cfg.KeepAliveInterval = 10 * time.Millisecond
	h := startSession(t, cfg)

	waitFor(t, "keep-alives", func() bool { return h.conn.KeepAlives() >= 2 })

	close(h.client.in)
	h.wait(t)

	after := h.conn.KeepAlives()
	time.Sleep(50 * time.Millisecond)
	if h.conn.KeepAlives() != after {
		t.Error("keep-alive continued after teardown")
	}
}

func TestSession_ClientDisconnect_FinishesAgentOnce(t *testing.T) {
	h := startSession(t, testConfig())

	h.client.in <- []byte("frame-1")
	waitFor(t, "frame", func() bool { return h.conn.AudioFrames() == 1 })

	close(h.client.in)
	if err := h.wait(t); err != nil {
		t.Fatalf("expected nil error on disconnect, got %v", err)
	}

	if n := h.conn.FinishCount(); n != 1 {
		t.Errorf("expected Finish once, got %d", n)
	}
	if h.session.State() != session.StateClosed {
		t.Errorf("expected StateClosed, got %v", h.session.State())
	}
	if !h.client.IsClosed() {
		t.Error("expected client to be closed")
	}

	// Late agent events are dropped without blocking.
	h.conn.InjectConversationText("assistant", "too late")
	if n := len(h.client.Texts()); n != 0 {
		t.Errorf("expected no text after teardown, got %d", n)
	}
	if n := h.conn.AudioFrames(); n != 1 {
		t.Errorf("expected audio count unchanged, got %d", n)
	}

	events := h.publisher.Events()
	if len(events) != 1 || events[0].eventType != models.EventSessionClosed {
		t.Fatalf("expected one session.closed event, got %+v", events)
	}
	if ev := events[0].event.(models.SessionEvent); ev.Reason != "" {
		t.Errorf("expected clean close reason, got %q", ev.Reason)
	}
}

func TestSession_AgentClose(t *testing.T) {
	h := startSession(t, testConfig())

	h.conn.Disconnect()

	if err := h.wait(t); !errors.Is(err, ErrAgentClosed) {
		t.Fatalf("expected ErrAgentClosed, got %v", err)
	}
	if n := h.conn.FinishCount(); n != 1 {
		t.Errorf("expected Finish once, got %d", n)
	}
	if !h.client.IsClosed() {
		t.Error("expected client to be closed")
	}
}

func TestSession_AgentErrorKeepsSession(t *testing.T) {
	h := startSession(t, testConfig())

	h.conn.InjectError(&agent.Error{Code: "X", Description: "transient"})
	h.conn.InjectConversationText("assistant", "still here")
	waitFor(t, "text relayed", func() bool { return len(h.client.Texts()) == 1 })

	if h.session.State() != session.StateActive {
		t.Errorf("expected session to stay active, got %v", h.session.State())
	}

	close(h.client.in)
	h.wait(t)
}

func TestSession_ContextCancel(t *testing.T) {
	h := startSession(t, testConfig())

	h.cancel()

	if err := h.wait(t); err != nil {
		t.Errorf("expected nil error on cancel, got %v", err)
	}
	if n := h.conn.FinishCount(); n != 1 {
		t.Errorf("expected Finish once, got %d", n)
	}
}

func TestSession_StartFailure(t *testing.T) {
	conn := mock.New()
	conn.StartErr = agent.ErrMissingAPIKey
	client := newFakeClient()
	s := NewSession(testConfig(), conn, client, &fakeRetriever{}, nil)

	err := s.Run(context.Background())

	if !errors.Is(err, ErrAgentStart) {
		t.Fatalf("expected ErrAgentStart, got %v", err)
	}
	if n := conn.FinishCount(); n != 1 {
		t.Errorf("expected Finish once, got %d", n)
	}
	if !client.IsClosed() {
		t.Error("expected client to be closed")
	}
	if s.State() != session.StateClosed {
		t.Errorf("expected StateClosed, got %v", s.State())
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"", ""},
		{reasonCancelled, ""},
		{"agent_closed", "agent_closed"},
		{"agent_start", "agent_start"},
		{"client_error", "client_error"},
	}

	for _, tt := range tests {
		if got := failureReason(tt.reason); got != tt.want {
			t.Errorf("failureReason(%q) = %q, want %q", tt.reason, got, tt.want)
		}
	}
}
