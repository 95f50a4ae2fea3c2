package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"sous-voice-service/internal/models"
)

var (
	watchBrokers string
	watchTopics  []string
	watchSince   time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow conversation and recipe events on Kafka",
	Long: `watch tails the service's Kafka topics and prints one line per event:
conversation text as it is spoken, session ends and recipe ingestion.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchBrokers, "brokers", envOr("KAFKA_BROKERS", "localhost:9092"), "Kafka brokers (comma-separated)")
	watchCmd.Flags().StringSliceVar(&watchTopics, "topic", []string{"sous.conversation.text", "sous.recipe.events"}, "Topics to follow")
	watchCmd.Flags().DurationVar(&watchSince, "since", time.Hour, "Replay events newer than this")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	brokers := strings.Split(watchBrokers, ",")
	out := &lockedWriter{w: cmd.OutOrStdout()}

	var wg sync.WaitGroup
	for _, topic := range watchTopics {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			follow(ctx, brokers, topic, out, cmd.ErrOrStderr())
		}(topic)
	}
	wg.Wait()
	return nil
}

// follow reads partition 0 without a consumer group so that several
// watchers never steal messages from each other.
func follow(ctx context.Context, brokers []string, topic string, out, errOut io.Writer) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-watchSince)); err != nil {
		fmt.Fprintf(errOut, "%s: seek failed: %v\n", topic, err)
	}

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(errOut, "%s: read failed: %v\n", topic, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		fmt.Fprintln(out, formatEvent(headerValue(msg.Headers, "eventType"), msg.Value))
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// formatEvent renders one published event as a single line. Unknown or
// malformed values are printed raw.
func formatEvent(eventType string, value []byte) string {
	switch eventType {
	case models.EventConversationText:
		var ev models.ConversationTextEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			break
		}
		var text struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(ev.Payload, &text); err != nil || text.Content == "" {
			return fmt.Sprintf("[%s] %s", ev.SessionID, ev.Payload)
		}
		return fmt.Sprintf("[%s] %s: %s", ev.SessionID, text.Role, text.Content)

	case models.EventSessionClosed:
		var ev models.SessionEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			break
		}
		line := fmt.Sprintf("[%s] session closed after %s", ev.SessionID, time.Duration(ev.DurationMs)*time.Millisecond)
		if ev.Reason != "" {
			line += " (" + ev.Reason + ")"
		}
		return line

	case models.EventRecipeIndexed, models.EventRecipeDeleted:
		var ev models.RecipeEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			break
		}
		return fmt.Sprintf("%s recipe=%s user=%s chunks=%d", ev.EventType, ev.RecipeID, ev.UserID, ev.Chunks)
	}

	if eventType == "" {
		return string(value)
	}
	return eventType + " " + string(value)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
