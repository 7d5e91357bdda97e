package ports

import (
	"context"

	"github.com/aretw0/orderflow/pkg/domain"
)

// SessionStore keeps session records between turns.
// Implementations must hand out copies so callers never share a record.
type SessionStore interface {
	// Save stores the session under its ID.
	Save(ctx context.Context, session *domain.SessionContext) error

	// Load retrieves a session.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.SessionContext, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all sessions.
	List(ctx context.Context) ([]string, error)
}
