package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"sous-voice-service/internal/config"
	"sous-voice-service/internal/events"
	"sous-voice-service/internal/observability/logging"
	"sous-voice-service/internal/schema"
	"sous-voice-service/internal/service/agent"
	"sous-voice-service/internal/service/agent/deepgram"
	"sous-voice-service/internal/service/agent/mock"
	"sous-voice-service/internal/service/embedding"
	"sous-voice-service/internal/service/relay"
	"sous-voice-service/internal/service/retrieval"
	"sous-voice-service/internal/service/scrape"
	"sous-voice-service/internal/service/session"
	"sous-voice-service/internal/store/milvus"
)

var ErrUnknownProvider = errors.New("app: unknown provider")

// mockReplyEvery is how many audio frames the mock agent waits before replying.
const mockReplyEvery = 25

// Application holds process-wide state for the service. The store, LLM
// client and publisher are shared by every session.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Store     retrieval.Store
	Gateway   *retrieval.Gateway
	Indexer   *retrieval.Indexer
	Scraper   *scrape.Scraper
	Condenser *scrape.Condenser // nil without an LLM key
	Publisher *events.Publisher
	Validator *schema.Validator
	Sessions  *session.Generator
	Agents    agent.Factory
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Sous voice service application created")
	return a
}

// setupLogger configures the global zerolog logger for the service.
func (a *Application) setupLogger() {
	format := a.Cfg.Observability.LogFormat
	if os.Getenv("ENV") == "dev" {
		format = "console"
	}

	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     format,
		TimeFormat: time.RFC3339,
	})
	a.Logger = logging.WithComponent("application")

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Build creates the shared clients and services from configuration.
func (a *Application) Build(ctx context.Context) error {
	cfg := a.Cfg

	a.Publisher = events.New(&events.Config{
		Brokers:           cfg.Kafka.Brokers,
		TopicConversation: cfg.Kafka.TopicConversation,
		TopicRecipe:       cfg.Kafka.TopicRecipe,
		Principal:         cfg.Kafka.Principal,
		Enabled:           cfg.Kafka.Enabled,
	})

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.Store = store

	a.Gateway = retrieval.NewGateway(store, retrieval.GatewayConfig{
		TopK:            cfg.Retrieval.TopK,
		MaxChunks:       cfg.Retrieval.MaxChunks,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
	})
	a.Indexer = retrieval.NewIndexer(store, a.Publisher, cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)

	a.Scraper = scrape.New(scrape.Config{
		Timeout:          cfg.Scraper.Timeout,
		UserAgent:        cfg.Scraper.UserAgent,
		MinContentLength: cfg.Scraper.MinContentLength,
	})
	if cfg.LLM.APIKey != "" {
		a.Condenser, err = scrape.NewCondenser(scrape.CondenserConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
		})
		if err != nil {
			return err
		}
	} else {
		a.Logger.Warn().Msg("GROQ_API_KEY not set, recipe condensing disabled")
	}

	agents, err := a.agentFactory()
	if err != nil {
		return err
	}
	a.Agents = agents
	a.Validator = schema.New()
	a.Sessions = session.New()

	a.Logger.Info().
		Str("store", cfg.Store.Provider).
		Str("agent", cfg.Agent.Provider).
		Bool("kafka", cfg.Kafka.Enabled).
		Bool("condenser", a.Condenser != nil).
		Msg("Services built")
	return nil
}

func (a *Application) openStore(ctx context.Context) (retrieval.Store, error) {
	cfg := a.Cfg
	switch cfg.Store.Provider {
	case "memory":
		return retrieval.NewMemoryStore(), nil
	case "milvus":
		embedder, err := embedding.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimension)
		if err != nil {
			return nil, err
		}
		return milvus.New(ctx, milvus.Config{
			Address:        cfg.Milvus.Address,
			CollectionName: cfg.Milvus.CollectionName,
			Dimension:      cfg.Milvus.Dimension,
			M:              cfg.Milvus.M,
			EfConstruction: cfg.Milvus.EfConstruction,
			SearchEf:       cfg.Milvus.SearchEf,
		}, embedder)
	default:
		return nil, fmt.Errorf("%w: store %q", ErrUnknownProvider, cfg.Store.Provider)
	}
}

func (a *Application) agentFactory() (agent.Factory, error) {
	cfg := a.Cfg.Agent
	switch cfg.Provider {
	case "mock":
		return mock.NewFactory(mockReplyEvery), nil
	case "deepgram":
		if cfg.APIKey == "" {
			// Sessions fail individually; the rest of the service still works.
			a.Logger.Warn().Msg("DEEPGRAM_API_KEY not set, voice sessions will fail")
		}
		return deepgram.NewFactory(deepgram.Config{URL: cfg.URL, APIKey: cfg.APIKey}), nil
	default:
		return nil, fmt.Errorf("%w: agent %q", ErrUnknownProvider, cfg.Provider)
	}
}

// NewSession builds a relay session for one client connection.
func (a *Application) NewSession(userID, recipeID string, client relay.ClientConn) *relay.Session {
	cfg := a.Cfg.Agent
	var publisher relay.ConversationPublisher
	if a.Publisher != nil {
		publisher = a.Publisher
	}

	return relay.NewSession(relay.Config{
		SessionID:          a.Sessions.Next(),
		UserID:             userID,
		RecipeID:           recipeID,
		Settings:           agent.SettingsFromConfig(cfg, agent.RecipeContextTool()),
		KeepAliveInterval:  cfg.KeepAliveInterval,
		ForwardAudio:       cfg.ForwardAudio,
		ToolResponseSchema: cfg.ToolResponseSchema,
	}, a.Agents(), client, a.Gateway, publisher)
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Sous voice service starting")

	return nil
}

// Shutdown releases the shared clients.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Failed to close event publisher")
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Failed to close recipe store")
		}
	}

	shutdownLogger.Info().Msg("Sous voice service shutting down")
}
