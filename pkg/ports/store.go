package ports

import (
	"context"

	"github.com/Veolinan/triage/pkg/domain"
)

// SessionStore defines the interface for persisting traversal sessions.
// This allows a questionnaire to be resumed across HTTP requests or replicas.
type SessionStore interface {
	// Save persists the session under its ID.
	Save(ctx context.Context, session *domain.Session) error

	// Load retrieves a session.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Session, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of stored sessions.
	List(ctx context.Context) ([]string, error)
}

// ResponseStore persists submitted responses.
type ResponseStore interface {
	// InsertResponse stores a new record and returns its ID. If record.ID is
	// empty the store assigns one.
	InsertResponse(ctx context.Context, record domain.ResponseRecord) (string, error)

	// GetResponse returns domain.ErrResponseNotFound if the ID is unknown.
	GetResponse(ctx context.Context, id string) (domain.ResponseRecord, error)

	// ListResponses returns matching records, newest first.
	ListResponses(ctx context.Context, filter domain.ResponseFilter) ([]domain.ResponseRecord, error)

	// UpdateResponse overwrites an existing record (used for review changes).
	// Returns domain.ErrResponseNotFound if the ID is unknown.
	UpdateResponse(ctx context.Context, record domain.ResponseRecord) error
}

// IdentityProvider resolves who is acting. An empty ID means anonymous.
type IdentityProvider interface {
	CurrentOperatorID(ctx context.Context) (string, error)
}
