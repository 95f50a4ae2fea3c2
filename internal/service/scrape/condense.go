package scrape

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	DefaultLLMBaseURL = "https://api.groq.com/openai/v1"
	DefaultLLMModel   = "llama-3.1-8b-instant"

	condensePrompt = "You are an AI cooking assistant trained by an expert chef. Turn " +
		"the following recipe into a concise version that removes any fluff but keeps every detail " +
		"related to the cooking process and ingredients. It should not be longer than the original recipe. " +
		"Here is the recipe: \n "
)

var (
	ErrMissingLLMKey  = errors.New("scrape: LLM API key not set")
	ErrCondenseFailed = errors.New("scrape: LLM inference failed")
)

// CondenserConfig configures the OpenAI-compatible chat model.
type CondenserConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// Condenser rewrites scraped page text into a concise recipe.
type Condenser struct {
	client      openai.Client
	model       string
	temperature float64
}

func NewCondenser(cfg CondenserConfig, opts ...option.RequestOption) (*Condenser, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingLLMKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLLMBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}

	client := openai.NewClient(append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
	}, opts...)...)

	return &Condenser{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Condense asks the model for a shorter version of text. The completion is
// capped at roughly one token per four input characters.
func (c *Condenser) Condense(ctx context.Context, text string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(condensePrompt + text),
		},
		Temperature: openai.Float(c.temperature),
		TopP:        openai.Float(0.8),
	}
	if maxTokens := len(text) / 4; maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCondenseFailed, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no response generated", ErrCondenseFailed)
	}
	return completion.Choices[0].Message.Content, nil
}
