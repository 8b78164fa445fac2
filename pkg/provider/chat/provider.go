// Package chat defines the Provider interface for text generation backends.
//
// The tutoring pipeline uses the same abstraction for both of its text
// stages: translating the learner's Mandarin and generating the tutor's
// bilingual reply. Providers are stateless; conversation context travels in
// the request.
//
// Implementations must be safe for concurrent use.
package chat

import "context"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior conversation turn.
type Message struct {
	Role    string
	Content string
}

// Request describes a single completion call.
type Request struct {
	// System is the system prompt; empty means none.
	System string

	// Messages is the conversation so far, oldest first. The last message is
	// the one the model should respond to.
	Messages []Message
}

// Provider is the abstraction over any chat completion backend.
type Provider interface {
	// Complete returns the model's reply text for the given request.
	Complete(ctx context.Context, req Request) (string, error)
}
