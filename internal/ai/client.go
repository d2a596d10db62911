// Package ai generates meal plans, workouts, and progress insights through
// chat-completion providers. Two providers are wired: a primary
// OpenAI-compatible endpoint (a local llama server in the default
// deployment) and stock OpenAI as fallback. The provider preference flag
// flips which is tried first; whichever answers first wins.
package ai

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/fittrackpro/go-fitness-edge/internal/config"
)

// ErrNoProvider is returned when neither provider is configured.
var ErrNoProvider = errors.New("ai: no provider configured")

// TextGenerator is the capability the HTTP layer consumes. Implementations
// must honor ctx for cancellation and apply their own call budget.
type TextGenerator interface {
	// Generate returns the completion text for a system/user prompt pair.
	Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error)
}

// provider pairs a configured client with its model name.
type provider struct {
	name   string
	client *openai.Client
	model  string
}

// Client tries its providers in preference order and returns the first
// non-empty completion.
type Client struct {
	providers []provider
	log       zerolog.Logger
}

// NewClient builds a Client from configuration. Providers with no usable
// endpoint are skipped; a Client with zero providers is valid and reports
// Enabled() == false.
func NewClient(cfg config.AIConfig, log zerolog.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	var primary, fallback *provider
	if cfg.PrimaryBaseURL != "" {
		cc := openai.DefaultConfig(cfg.PrimaryAPIKey)
		cc.BaseURL = cfg.PrimaryBaseURL
		cc.HTTPClient = httpClient
		primary = &provider{name: "primary", client: openai.NewClientWithConfig(cc), model: cfg.PrimaryModel}
	}
	if cfg.OpenAIAPIKey != "" {
		cc := openai.DefaultConfig(cfg.OpenAIAPIKey)
		cc.HTTPClient = httpClient
		fallback = &provider{name: "openai", client: openai.NewClientWithConfig(cc), model: cfg.OpenAIModel}
	}

	c := &Client{log: log}
	// Preference "openai" forces the stock provider first; the default order
	// is primary then fallback.
	if cfg.Provider == "openai" {
		for _, p := range []*provider{fallback, primary} {
			if p != nil {
				c.providers = append(c.providers, *p)
			}
		}
	} else {
		for _, p := range []*provider{primary, fallback} {
			if p != nil {
				c.providers = append(c.providers, *p)
			}
		}
	}
	return c
}

// Enabled reports whether at least one provider is configured.
func (c *Client) Enabled() bool { return len(c.providers) > 0 }

// Generate asks each provider in order until one returns text.
func (c *Client) Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	if !c.Enabled() {
		return "", ErrNoProvider
	}
	if maxTokens < 64 {
		maxTokens = 64
	}
	if maxTokens > 512 {
		maxTokens = 512
	}

	var lastErr error
	for _, p := range c.providers {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: p.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			MaxTokens: maxTokens,
		})
		if err != nil {
			c.log.Warn().Err(err).Str("provider", p.name).Msg("ai: completion failed, trying next provider")
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			lastErr = errors.New("ai: empty completion")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", lastErr
}
