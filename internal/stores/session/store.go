package session

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps failures of the backing store. Callers decide
// whether to retry; this layer never does.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Message represents one completed chat turn in a live session.
// Messages are immutable once created and belong to exactly one session.
type Message struct {
	ID          string `json:"id"`
	UserQuery   string `json:"userQuery"`
	BotResponse string `json:"botResponse"`
	Timestamp   int64  `json:"timestamp"` // epoch milliseconds
}

// Store interface defines methods for ephemeral session history storage.
// A session exists only while its message list does; the expiry window is
// reset by Append and Refresh, never by Read.
type Store interface {
	// Append creates a Message from the given turn, appends it to the
	// session's history and resets the expiry window
	Append(ctx context.Context, sessionID, userQuery, botResponse string, at time.Time) (Message, error)

	// Read returns the session's history in chronological order.
	// A missing or expired session yields an empty slice, not an error.
	Read(ctx context.Context, sessionID string) ([]Message, error)

	// Clear removes all history for the session. Clearing a session that
	// does not exist is not an error.
	Clear(ctx context.Context, sessionID string) error

	// Refresh resets the expiry window without reading or appending
	Refresh(ctx context.Context, sessionID string) error

	// ListActive returns a best-effort snapshot of live session ids
	ListActive(ctx context.Context) ([]string, error)
}
