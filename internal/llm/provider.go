// Package llm answers out-of-domain questions through an OpenAI-compatible
// chat completion endpoint.
package llm

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"bankbot/internal/common/errors"
	"bankbot/internal/common/logger"
)

const systemPreamble = "You are a helpful assistant for a retail bank's customers. " +
	"Answer the question briefly and factually. If the question requires access to " +
	"the customer's accounts, say that you can only answer general questions."

// Config selects the provider endpoint and model.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Provider wraps one chat-completion backed answerer.
type Provider struct {
	model   llms.Model
	timeout time.Duration
	log     logger.Logger
}

// New builds a provider against any OpenAI-compatible endpoint (Groq,
// OpenAI, a local gateway).
func New(cfg Config, log logger.Logger) (*Provider, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, errors.NewLLMFailedError(err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Provider{model: model, timeout: timeout, log: log}, nil
}

// Answer returns a short response to a general question.
func (p *Provider) Answer(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	completion, err := llms.GenerateFromSinglePrompt(ctx, p.model,
		systemPreamble+"\n\nQuestion: "+text)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return "", errors.NewLLMTimeoutError(p.timeout.String())
		}
		return "", errors.NewLLMFailedError(err)
	}

	p.log.Debug("llm answer generated", map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
	})

	answer := strings.TrimSpace(completion)
	if answer == "" {
		return "I'm not able to answer that right now.", nil
	}
	return answer, nil
}
