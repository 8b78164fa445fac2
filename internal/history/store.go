// Package history persists the tutoring conversation.
//
// The log is append-only: each successful pipeline turn appends the learner's
// turn followed by the tutor's turn, and readers always see turns in
// insertion order. Two backends exist — a single-file JSON store for local
// runs and a PostgreSQL store for deployments — and the application selects
// exactly one at startup.
package history

import (
	"context"
	"time"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one side of a conversation exchange.
type Turn struct {
	Role      string    `json:"role"`
	Hanzi     string    `json:"hanzi"`
	Pinyin    string    `json:"pinyin"`
	English   string    `json:"english"`
	AudioURL  *string   `json:"audio_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence abstraction for the conversation log.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Append adds one turn to the end of the log.
	Append(ctx context.Context, turn Turn) error

	// ReadAll returns every stored turn in insertion order.
	ReadAll(ctx context.Context) ([]Turn, error)

	// Clear removes all stored turns.
	Clear(ctx context.Context) error
}
