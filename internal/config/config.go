// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the full process configuration, read once at startup.
type Configuration struct {
	Service       ServiceConfig
	Agent         AgentConfig
	Retrieval     RetrievalConfig
	Store         StoreConfig
	Milvus        MilvusConfig
	Embedding     EmbeddingConfig
	LLM           LLMConfig
	Scraper       ScraperConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener and identity settings.
type ServiceConfig struct {
	Principal   string
	HTTPPort    string
	GRPCPort    string
	CORSOrigins []string
}

// AgentConfig configures the external conversational voice agent.
type AgentConfig struct {
	Provider           string // deepgram, mock
	APIKey             string
	URL                string
	InputEncoding      string
	InputSampleRate    int
	OutputEncoding     string
	OutputSampleRate   int
	OutputContainer    string
	Language           string
	ListenProvider     string
	ListenModel        string
	ThinkProvider      string
	ThinkModel         string
	ThinkPrompt        string
	SpeakProvider      string
	SpeakModel         string
	Greeting           string
	KeepAliveInterval  time.Duration
	ForwardAudio       bool
	ToolResponseSchema string // function_call_response, function_response
}

// RetrievalConfig bounds chunking and context assembly.
type RetrievalConfig struct {
	TopK            int
	MaxContextChars int
	MaxChunks       int
	ChunkSize       int
	ChunkOverlap    int
}

// StoreConfig selects the recipe chunk store backend.
type StoreConfig struct {
	Provider string // milvus, memory
}

// MilvusConfig holds Milvus connection and collection settings.
type MilvusConfig struct {
	Address        string
	CollectionName string
	Dimension      int
	M              int
	EfConstruction int
	SearchEf       int
}

// EmbeddingConfig configures the embedding model used by the Milvus store.
type EmbeddingConfig struct {
	APIKey    string
	Model     string
	Dimension int
}

// LLMConfig configures the OpenAI-compatible model used to condense scraped recipes.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// ScraperConfig configures recipe page fetching.
type ScraperConfig struct {
	Timeout          time.Duration
	UserAgent        string
	MinContentLength int
}

// KafkaConfig holds event publishing settings.
type KafkaConfig struct {
	Enabled           bool
	Brokers           []string
	TopicConversation string
	TopicRecipe       string
	Principal         string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Load reads the configuration from environment variables, applying defaults
// for anything unset or unparsable.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-sous-voice")

	return &Configuration{
		Service: ServiceConfig{
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8000"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			CORSOrigins: envOrDefaultList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Agent: AgentConfig{
			Provider:           envOrDefault("AGENT_PROVIDER", "deepgram"),
			APIKey:             os.Getenv("DEEPGRAM_API_KEY"),
			URL:                envOrDefault("AGENT_URL", "wss://agent.deepgram.com/v1/agent/converse"),
			InputEncoding:      envOrDefault("AGENT_INPUT_ENCODING", "linear16"),
			InputSampleRate:    envOrDefaultInt("AGENT_INPUT_SAMPLE_RATE", 16000),
			OutputEncoding:     envOrDefault("AGENT_OUTPUT_ENCODING", "linear16"),
			OutputSampleRate:   envOrDefaultInt("AGENT_OUTPUT_SAMPLE_RATE", 16000),
			OutputContainer:    envOrDefault("AGENT_OUTPUT_CONTAINER", "wav"),
			Language:           envOrDefault("AGENT_LANGUAGE", "en"),
			ListenProvider:     envOrDefault("AGENT_LISTEN_PROVIDER", "deepgram"),
			ListenModel:        envOrDefault("AGENT_LISTEN_MODEL", "nova-3"),
			ThinkProvider:      envOrDefault("AGENT_THINK_PROVIDER", "open_ai"),
			ThinkModel:         envOrDefault("AGENT_THINK_MODEL", "gpt-4o-mini"),
			ThinkPrompt:        envOrDefault("AGENT_THINK_PROMPT", "You are an expert cooking assistant who is concise and practical."),
			SpeakProvider:      envOrDefault("AGENT_SPEAK_PROVIDER", "deepgram"),
			SpeakModel:         envOrDefault("AGENT_SPEAK_MODEL", "aura-2-thalia-en"),
			Greeting:           envOrDefault("AGENT_GREETING", "Ask me anything about your recipe."),
			KeepAliveInterval:  envOrDefaultDuration("AGENT_KEEPALIVE_INTERVAL", 5*time.Second),
			ForwardAudio:       envOrDefaultBool("AGENT_FORWARD_AUDIO", false),
			ToolResponseSchema: envOrDefault("AGENT_TOOL_RESPONSE_SCHEMA", "function_call_response"),
		},
		Retrieval: RetrievalConfig{
			TopK:            envOrDefaultInt("RETRIEVAL_TOP_K", 6),
			MaxContextChars: envOrDefaultInt("RETRIEVAL_MAX_CONTEXT_CHARS", 6000),
			MaxChunks:       envOrDefaultInt("RETRIEVAL_MAX_CHUNKS", 6),
			ChunkSize:       envOrDefaultInt("CHUNK_MAX_SIZE", 1000),
			ChunkOverlap:    envOrDefaultInt("CHUNK_OVERLAP", 200),
		},
		Store: StoreConfig{
			Provider: envOrDefault("STORE_PROVIDER", "milvus"),
		},
		Milvus: MilvusConfig{
			Address:        envOrDefault("MILVUS_ADDRESS", "localhost:19530"),
			CollectionName: envOrDefault("MILVUS_COLLECTION", "recipes"),
			Dimension:      envOrDefaultInt("MILVUS_DIMENSION", 1536),
			M:              envOrDefaultInt("MILVUS_HNSW_M", 16),
			EfConstruction: envOrDefaultInt("MILVUS_HNSW_EF_CONSTRUCTION", 256),
			SearchEf:       envOrDefaultInt("MILVUS_SEARCH_EF", 64),
		},
		Embedding: EmbeddingConfig{
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			Model:     envOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: envOrDefaultInt("MILVUS_DIMENSION", 1536),
		},
		LLM: LLMConfig{
			APIKey:      os.Getenv("GROQ_API_KEY"),
			BaseURL:     envOrDefault("LLM_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:       envOrDefault("LLM_MODEL", "llama-3.1-8b-instant"),
			Temperature: envOrDefaultFloat("LLM_TEMPERATURE", 0.4),
		},
		Scraper: ScraperConfig{
			Timeout:          envOrDefaultDuration("SCRAPER_TIMEOUT", 10*time.Second),
			UserAgent:        envOrDefault("SCRAPER_USER_AGENT", defaultUserAgent),
			MinContentLength: envOrDefaultInt("SCRAPER_MIN_CONTENT_LENGTH", 50),
		},
		Kafka: KafkaConfig{
			Enabled:           envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:           envOrDefaultList("KAFKA_BROKERS", nil),
			TopicConversation: envOrDefault("KAFKA_TOPIC_CONVERSATION", "sous.conversation.text"),
			TopicRecipe:       envOrDefault("KAFKA_TOPIC_RECIPE", "sous.recipe.events"),
			Principal:         envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// envOrDefaultList splits a comma-separated value, dropping empty entries.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
