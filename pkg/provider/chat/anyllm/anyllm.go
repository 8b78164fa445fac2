// Package anyllm provides a chat.Provider backed by
// github.com/mozilla-ai/any-llm-go with the Groq backend, which hosts the
// fast open-weight models the tutor uses for translation and dialogue.
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/groq"

	"github.com/wenjiez/shuoba/pkg/provider/chat"
)

// Compile-time interface assertion.
var _ chat.Provider = (*Provider)(nil)

const defaultModel = "llama-3.3-70b-versatile"

// Provider implements chat.Provider by wrapping any-llm-go.
type Provider struct {
	backend     anyllmlib.Provider
	model       string
	temperature *float64
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithTemperature sets the sampling temperature on every request.
func WithTemperature(t float64) Option {
	return func(p *Provider) {
		p.temperature = &t
	}
}

// New creates a Groq-backed chat Provider. With an empty apiKey the backend
// falls back to the GROQ_API_KEY environment variable.
func New(apiKey string, opts ...Option) (*Provider, error) {
	var libOpts []anyllmlib.Option
	if apiKey != "" {
		libOpts = append(libOpts, anyllmlib.WithAPIKey(apiKey))
	}

	backend, err := groq.New(libOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create groq backend: %w", err)
	}

	p := &Provider{backend: backend, model: defaultModel}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Complete implements chat.Provider.
func (p *Provider) Complete(ctx context.Context, req chat.Request) (string, error) {
	var messages []anyllmlib.Message
	if req.System != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	params := anyllmlib.CompletionParams{
		Model:       p.model,
		Messages:    messages,
		Temperature: p.temperature,
	}

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.ContentString()), nil
}
