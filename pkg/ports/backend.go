package ports

import (
	"context"

	"github.com/aretw0/orderflow/pkg/domain"
)

// Request is everything the backend receives for one turn.
type Request struct {
	SessionID string           `json:"session_id"`
	Messages  []domain.Message `json:"messages"`
	// Prompt is the rendered system instructions for the current stage.
	Prompt string `json:"prompt"`
	Stage  string `json:"stage"`

	Hints domain.DirectiveHints `json:"hints"`
	Rules []domain.Rule         `json:"rules,omitempty"`
	Items []Item                `json:"items,omitempty"`
}

// Backend is the generative text backend.
// Implementations must honor ctx cancellation; the orchestrator bounds every call with a deadline.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f BackendFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
