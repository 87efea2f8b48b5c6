package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/joegemini/internal/retry"
)

// Generator is the slice of the Gemini client the event pipeline depends on.
type Generator interface {
	GenerateReply(ctx context.Context, prompt string) (string, error)
	GenerateCode(ctx context.Context, prompt string) (string, error)
}

// Config carries generation settings for a Client.
type Config struct {
	APIKey        string  `json:"api_key"`
	Model         string  `json:"model"`
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"max_tokens"`
	CodeMaxTokens int     `json:"code_max_tokens"`
}

// Client talks to Gemini through the langchain googleai bindings.
//
// Conversational replies and plans run with the normal token budget;
// code generation gets a much larger one because responses carry whole
// file bodies.
type Client struct {
	llm            llms.Model
	model          string
	temperature    float64
	maxTokens      int
	codeMaxTokens  int
	attemptTimeout time.Duration
	retryConfig    retry.Config
}

const (
	defaultModel          = "gemini-2.5-flash"
	defaultTemperature    = 0.4
	defaultMaxTokens      = 2048
	defaultCodeMaxTokens  = 16384
	defaultAttemptTimeout = 30 * time.Second
)

// New creates a Gemini-backed client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.CodeMaxTokens <= 0 {
		cfg.CodeMaxTokens = defaultCodeMaxTokens
	}

	log.Debug().
		Str("model", cfg.Model).
		Float64("temperature", cfg.Temperature).
		Int("max_tokens", cfg.MaxTokens).
		Int("code_max_tokens", cfg.CodeMaxTokens).
		Msg("Creating Gemini client")

	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(cfg.Model),
	)
	if err != nil {
		log.Error().Err(err).Str("model", cfg.Model).Msg("Failed to create Gemini model")
		return nil, fmt.Errorf("gemini: failed to create model: %w", err)
	}

	return &Client{
		llm:            llm,
		model:          cfg.Model,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		codeMaxTokens:  cfg.CodeMaxTokens,
		attemptTimeout: defaultAttemptTimeout,
		retryConfig:    retry.GenerationConfig(),
	}, nil
}

// GenerateReply produces a conversational response with the standard
// token budget. Plans use this path too.
func (c *Client) GenerateReply(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, c.maxTokens)
}

// GenerateCode produces a structured change set with the large token
// budget.
func (c *Client) GenerateCode(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, c.codeMaxTokens)
}

func (c *Client) generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	log.Debug().
		Str("model", c.model).
		Float64("temperature", c.temperature).
		Int("max_tokens", maxTokens).
		Int("prompt_chars", len(prompt)).
		Msg("Calling Gemini")

	var response string
	result := retry.DoWithReason(ctx, c.retryConfig, func() (error, string) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()

		out, err := llms.GenerateFromSinglePrompt(attemptCtx, c.llm, prompt,
			llms.WithModel(c.model),
			llms.WithTemperature(c.temperature),
			llms.WithMaxTokens(maxTokens),
		)
		if err != nil {
			if retry.IsRetryable(err) {
				return err, "transient: " + err.Error()
			}
			return err, "permanent: " + err.Error()
		}
		response = out
		return nil, ""
	})

	if !result.Success {
		log.Error().
			Err(result.LastError).
			Int("attempts", result.Attempts).
			Dur("total_duration", result.TotalDuration).
			Msg("Gemini call failed")
		return "", fmt.Errorf("gemini: generation failed after %d attempts: %w", result.Attempts, result.LastError)
	}

	if strings.TrimSpace(response) == "" {
		return "", fmt.Errorf("gemini: model returned an empty response")
	}

	log.Debug().
		Int("attempts", result.Attempts).
		Int("response_chars", len(response)).
		Msg("Gemini call succeeded")

	return response, nil
}
