// Package relay runs one voice session: it pumps client audio to the voice
// agent, answers the agent's recipe tool calls from the retrieval gateway and
// relays conversation text back to the client.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sous-voice-service/internal/events"
	"sous-voice-service/internal/models"
	"sous-voice-service/internal/observability/logging"
	"sous-voice-service/internal/observability/metrics"
	"sous-voice-service/internal/service/agent"
	"sous-voice-service/internal/service/retrieval"
	"sous-voice-service/internal/service/session"
)

var (
	ErrAgentStart  = errors.New("relay: agent connection failed to start")
	ErrAgentClosed = errors.New("relay: agent closed the connection")
)

const publishTimeout = 5 * time.Second

// reasonCancelled ends a session whose context was cancelled, typically by
// process shutdown. It is not counted as a failure.
const reasonCancelled = "cancelled"

// ClientConn is the client side of a session. ReadAudio returns io.EOF once
// the client disconnects normally.
type ClientConn interface {
	ReadAudio(ctx context.Context) ([]byte, error)
	WriteText(data []byte) error
	WriteAudio(data []byte) error
	Close() error
}

// ContextRetriever answers recipe questions for the tool call.
type ContextRetriever interface {
	ContextFor(ctx context.Context, question, recipeID, userID string) string
}

// ConversationPublisher receives conversation and session events.
type ConversationPublisher interface {
	PublishConversation(ctx context.Context, key, eventType string, event any) error
}

// Config holds per-session settings.
type Config struct {
	SessionID          string
	UserID             string
	RecipeID           string
	Settings           agent.Settings
	KeepAliveInterval  time.Duration
	ForwardAudio       bool
	ToolResponseSchema string
}

type eventKind int

const (
	eventWelcome eventKind = iota
	eventToolCall
	eventText
	eventAudio
	eventError
	eventClose
)

type agentEvent struct {
	kind      eventKind
	requestID string
	call      agent.ToolCall
	data      []byte
	err       error
}

// Session relays one client connection to one agent connection.
// It implements agent.Callback.
type Session struct {
	cfg       Config
	conn      agent.Connection
	client    ClientConn
	retriever ContextRetriever
	publisher ConversationPublisher
	lifecycle *session.Lifecycle
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	// Agent callbacks hand events to the run loop through events; done
	// releases them once teardown started.
	events chan agentEvent
	done   chan struct{}

	wg         sync.WaitGroup
	finishOnce sync.Once
	started    time.Time
}

// NewSession creates a session. publisher may be nil.
func NewSession(
	cfg Config,
	conn agent.Connection,
	client ClientConn,
	retriever ContextRetriever,
	publisher ConversationPublisher,
) *Session {
	return &Session{
		cfg:       cfg,
		conn:      conn,
		client:    client,
		retriever: retriever,
		publisher: publisher,
		lifecycle: session.NewLifecycle(cfg.SessionID),
		logger:    logging.WithSession(cfg.SessionID, cfg.UserID, cfg.RecipeID),
		metrics:   metrics.DefaultMetrics,
		events:    make(chan agentEvent),
		done:      make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.cfg.SessionID
}

// State returns the current lifecycle state.
func (s *Session) State() session.State {
	return s.lifecycle.State()
}

// Run drives the session until the client disconnects, the agent closes,
// or ctx is cancelled. The agent connection is finished exactly once on
// every path. A normal client disconnect returns nil.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.started = time.Now()
	s.metrics.RecordSessionStart()
	s.logger.Info().Msg("Session connecting")

	if err := s.conn.Start(ctx, s.cfg.Settings, s); err != nil {
		s.logger.Error().Err(err).Msg("Failed to start agent connection")
		s.teardown(ctx, cancel, "agent_start")
		return fmt.Errorf("%w: %v", ErrAgentStart, err)
	}
	if err := s.lifecycle.Activate(); err != nil {
		s.teardown(ctx, cancel, "activate")
		return err
	}
	s.logger.Info().Msg("Session active")

	audio := make(chan []byte)
	readErr := make(chan error, 1)

	s.wg.Add(2)
	go s.readClient(ctx, audio, readErr)
	go s.keepAlive(ctx)

	reason, err := s.loop(ctx, audio, readErr)
	s.teardown(ctx, cancel, reason)
	return err
}

// loop is the only writer to the client. It handles one item at a time so a
// tool call is answered before any later audio is forwarded.
func (s *Session) loop(ctx context.Context, audio <-chan []byte, readErr <-chan error) (string, error) {
	for {
		select {
		case ev := <-s.events:
			if s.handle(ctx, ev) {
				return "agent_closed", ErrAgentClosed
			}
			continue
		default:
		}

		select {
		case ev := <-s.events:
			if s.handle(ctx, ev) {
				return "agent_closed", ErrAgentClosed
			}
		case data := <-audio:
			if err := s.conn.SendAudio(data); err != nil {
				s.logger.Error().Err(err).Msg("Failed to forward audio to agent")
				return "agent_send", err
			}
			s.metrics.RecordAudioForwarded(len(data))
		case err := <-readErr:
			if ctx.Err() != nil {
				s.logger.Info().Msg("Session cancelled")
				return reasonCancelled, nil
			}
			if errors.Is(err, io.EOF) {
				s.logger.Info().Msg("Client disconnected")
				return "", nil
			}
			s.logger.Warn().Err(err).Msg("Client read failed")
			return "client_error", err
		case <-ctx.Done():
			s.logger.Info().Msg("Session cancelled")
			return reasonCancelled, nil
		}
	}
}

func (s *Session) readClient(ctx context.Context, audio chan<- []byte, readErr chan<- error) {
	defer s.wg.Done()
	for {
		data, err := s.client.ReadAudio(ctx)
		if err != nil {
			readErr <- err
			return
		}
		select {
		case audio <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) keepAlive(ctx context.Context) {
	defer s.wg.Done()
	if s.cfg.KeepAliveInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.conn.KeepAlive()
			s.metrics.RecordKeepAlive(err)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Keep-alive failed")
			}
		}
	}
}

// handle processes one agent event. It returns true when the session must end.
func (s *Session) handle(ctx context.Context, ev agentEvent) bool {
	switch ev.kind {
	case eventWelcome:
		s.logger.Info().Str("requestId", ev.requestID).Msg("Agent welcomed session")
	case eventToolCall:
		s.answerToolCall(ctx, ev.call)
	case eventText:
		s.relayText(ctx, ev.data)
	case eventAudio:
		if !s.cfg.ForwardAudio {
			s.metrics.RecordAgentAudio(false)
			return false
		}
		if err := s.client.WriteAudio(ev.data); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to relay agent audio")
			return false
		}
		s.metrics.RecordAgentAudio(true)
	case eventError:
		s.logger.Error().Err(ev.err).Msg("Agent error")
	case eventClose:
		s.logger.Info().Msg("Agent connection closed")
		return true
	}
	return false
}

func (s *Session) answerToolCall(ctx context.Context, call agent.ToolCall) {
	log := s.logger.With().
		Str("function", call.Name).
		Str("callId", call.ID).
		Logger()

	if call.Name != agent.RecipeContextToolName {
		log.Warn().Msg("Ignoring unknown tool call")
		s.metrics.RecordToolCall(call.Name, "unknown")
		return
	}

	outcome := "ok"
	var output string
	question, err := agent.ParseQuestion(call.Arguments)
	if err != nil {
		log.Warn().Err(err).Str("arguments", call.Arguments).Msg("Malformed tool call arguments")
		output = retrieval.ErrorMessage(err)
		outcome = "invalid_arguments"
	} else {
		output = s.retriever.ContextFor(ctx, question, s.cfg.RecipeID, s.cfg.UserID)
	}

	if err := s.conn.SendFrame(agent.ToolResponse(s.cfg.ToolResponseSchema, call, output)); err != nil {
		log.Error().Err(err).Msg("Failed to send tool response")
		outcome = "send_failed"
	}
	s.metrics.RecordToolCall(call.Name, outcome)

	log.Debug().
		Str("question", question).
		Int("contextChars", len(output)).
		Str("outcome", outcome).
		Msg("Answered tool call")
}

func (s *Session) relayText(ctx context.Context, raw []byte) {
	if err := s.client.WriteText(raw); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to relay conversation text")
	}

	if s.publisher == nil || !json.Valid(raw) {
		return
	}
	ev := models.ConversationTextEvent{
		EventID:   events.NewEventID(),
		EventType: models.EventConversationText,
		SessionID: s.cfg.SessionID,
		UserID:    s.cfg.UserID,
		RecipeID:  s.cfg.RecipeID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   json.RawMessage(raw),
	}
	if err := s.publisher.PublishConversation(ctx, s.cfg.SessionID, ev.EventType, ev); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish conversation text")
	}
}

// teardown releases everything once. The keep-alive and reader goroutines
// are joined before the agent connection is finished.
func (s *Session) teardown(ctx context.Context, cancel context.CancelFunc, reason string) {
	if !s.lifecycle.BeginClose() {
		return
	}

	cancel()
	close(s.done)
	if err := s.client.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Client close")
	}
	s.wg.Wait()
	s.finish()
	s.lifecycle.Close()

	duration := time.Since(s.started)
	s.metrics.RecordSessionEnd(failureReason(reason), duration.Seconds())

	if s.publisher != nil {
		pubCtx, pubCancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		ev := models.SessionEvent{
			EventID:    events.NewEventID(),
			EventType:  models.EventSessionClosed,
			SessionID:  s.cfg.SessionID,
			UserID:     s.cfg.UserID,
			RecipeID:   s.cfg.RecipeID,
			Timestamp:  time.Now().UnixMilli(),
			DurationMs: duration.Milliseconds(),
			Reason:     reason,
		}
		if err := s.publisher.PublishConversation(pubCtx, s.cfg.SessionID, ev.EventType, ev); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish session close")
		}
		pubCancel()
	}

	s.logger.Info().
		Str("reason", reason).
		Dur("duration", duration).
		Msg("Session closed")
}

// failureReason returns the failure label for a teardown reason, empty when
// the session ended normally.
func failureReason(reason string) string {
	if reason == reasonCancelled {
		return ""
	}
	return reason
}

func (s *Session) finish() {
	s.finishOnce.Do(func() {
		if err := s.conn.Finish(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to finish agent connection")
		}
	})
}

// deliver hands an event to the run loop, or drops it after teardown.
func (s *Session) deliver(ev agentEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// --- agent.Callback implementation ---

func (s *Session) OnWelcome(requestID string) {
	s.deliver(agentEvent{kind: eventWelcome, requestID: requestID})
}

func (s *Session) OnToolCallRequest(call agent.ToolCall) {
	s.deliver(agentEvent{kind: eventToolCall, call: call})
}

func (s *Session) OnConversationText(raw []byte) {
	s.deliver(agentEvent{kind: eventText, data: raw})
}

func (s *Session) OnAudio(audio []byte) {
	s.deliver(agentEvent{kind: eventAudio, data: audio})
}

func (s *Session) OnError(err error) {
	s.deliver(agentEvent{kind: eventError, err: err})
}

func (s *Session) OnClose() {
	s.deliver(agentEvent{kind: eventClose})
}
