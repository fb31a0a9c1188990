// Package session stores per-conversation history and token usage.
// Sessions expire after a period of inactivity; the memory backend
// sweeps lazily on access, the Redis backend relies on native key
// expiry.
package session

import (
	"context"
	"time"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
)

// DefaultTTL is how long an idle session survives.
const DefaultTTL = 30 * time.Minute

// DefaultMaxTurns caps how many turns of history a session retains.
const DefaultMaxTurns = 20

// Turn is one completed question/answer exchange.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// Usage aggregates token consumption over a session's lifetime.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	Turns            int `json:"turns"`
}

// Info is a point-in-time snapshot of a session's metadata.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
	TurnCount int       `json:"turn_count"`
}

// Store keeps conversation state between requests. A turn is committed
// whole or not at all: AppendTurn is the single write that makes a
// question/answer pair visible to History.
type Store interface {
	// GetOrCreate returns the session's metadata, creating the
	// session and refreshing its expiry.
	GetOrCreate(ctx context.Context, id string) (Info, error)

	// AppendTurn commits one completed exchange. Oldest turns are
	// dropped once the retention cap is reached.
	AppendTurn(ctx context.Context, id string, turn Turn) error

	// RecordTokens adds one model call's token usage to the session
	// total.
	RecordTokens(ctx context.Context, id string, usage chat.Usage) error

	// History returns the retained turns in order. An unknown or
	// expired session yields an empty history, not an error.
	History(ctx context.Context, id string) ([]Turn, error)

	// Usage returns the session's accumulated token usage.
	Usage(ctx context.Context, id string) (Usage, error)

	// Acquire serializes turns on one session. The returned release
	// must be called when the turn is committed or abandoned.
	Acquire(id string) (release func())

	// Sweep evicts expired sessions and reports how many were
	// removed.
	Sweep(ctx context.Context) (int, error)
}
