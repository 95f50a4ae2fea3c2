// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"sous-voice-service/internal/observability/metrics"
)

// Publisher publishes session and recipe events to separate Kafka topics.
type Publisher struct {
	writerConversation *kafka.Writer
	writerRecipe       *kafka.Writer
	principal          string
	topicConversation  string
	topicRecipe        string
	enabled            bool
	metrics            *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers           []string
	TopicConversation string
	TopicRecipe       string
	Principal         string
	Enabled           bool
}

// NewEventID returns a fresh event identifier.
func NewEventID() string {
	return uuid.NewString()
}

// New creates a Kafka event publisher with one writer per topic.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:         cfg.Principal,
			topicConversation: cfg.TopicConversation,
			topicRecipe:       cfg.TopicRecipe,
			enabled:           false,
			metrics:           m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	transport := &kafka.Transport{
		Dial:        (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		DialTimeout: 10 * time.Second,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicConversation", cfg.TopicConversation).
		Str("topicRecipe", cfg.TopicRecipe).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerConversation: newWriter(cfg.TopicConversation),
		writerRecipe:       newWriter(cfg.TopicRecipe),
		principal:          cfg.Principal,
		topicConversation:  cfg.TopicConversation,
		topicRecipe:        cfg.TopicRecipe,
		enabled:            true,
		metrics:            m,
	}
}

// PublishConversation publishes a session-scoped event, keyed by session id.
func (p *Publisher) PublishConversation(ctx context.Context, key, eventType string, event any) error {
	return p.publish(ctx, p.writerConversation, p.topicConversation, eventType, key, event)
}

// PublishRecipe publishes a recipe ingestion event, keyed by recipe and user.
func (p *Publisher) PublishRecipe(ctx context.Context, key, eventType string, event any) error {
	return p.publish(ctx, p.writerRecipe, p.topicRecipe, eventType, key, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("eventType", eventType).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerConversation != nil {
		if e := p.writerConversation.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing conversation writer")
			err = e
		}
	}
	if p.writerRecipe != nil {
		if e := p.writerRecipe.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing recipe writer")
			err = e
		}
	}
	return err
}
