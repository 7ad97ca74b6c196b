package transcript

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"newschat-backend/internal/stores/session"
)

// MaxListLimit caps ListRecent page sizes. Routing enforces this too; the
// store rejects larger limits as defense in depth.
const MaxListLimit = 100

var (
	// ErrNotFound indicates no transcript exists for the requested session
	ErrNotFound = errors.New("transcript not found")

	// ErrInvalidArgument indicates a caller-side mistake (empty history,
	// limit over cap)
	ErrInvalidArgument = errors.New("invalid argument")
)

// Store interface defines methods for durable transcript storage
type Store interface {
	// Archive computes derived statistics for the given history and writes
	// exactly one new transcript row. The caller must not pass an empty
	// history; the store rejects it with ErrInvalidArgument.
	Archive(ctx context.Context, sessionID string, msgs []session.Message, startedAt, endedAt time.Time) (Summary, error)

	// FetchLatest returns the most recent transcript for the session id,
	// by ended-at descending. Returns ErrNotFound when none exists.
	FetchLatest(ctx context.Context, sessionID string) (Transcript, error)

	// ListRecent returns transcript summaries newest-first. Limit must not
	// exceed MaxListLimit.
	ListRecent(ctx context.Context, limit, offset int) ([]Summary, error)

	// AggregateStats computes totals and averages over all stored
	// transcripts. Zero rows yields zeros, not an error.
	AggregateStats(ctx context.Context) (Stats, error)

	// PurgeOlderThan deletes transcripts whose session ended more than the
	// given number of days ago and returns how many were removed.
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
}

// build assembles a Transcript row from a terminated session's history,
// computing the derived statistics
func build(sessionID string, msgs []session.Message, startedAt, endedAt time.Time) Transcript {
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}
	// A missing start collapses the duration to zero rather than going negative
	if startedAt.IsZero() {
		startedAt = endedAt
	}

	duration := int(endedAt.Sub(startedAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	userMessages := make(StringList, 0, len(msgs))
	botResponses := make(StringList, 0, len(msgs))
	totalCharacters := 0
	for _, msg := range msgs {
		userMessages = append(userMessages, msg.UserQuery)
		botResponses = append(botResponses, msg.BotResponse)
		totalCharacters += len(msg.UserQuery) + len(msg.BotResponse)
	}

	return Transcript{
		TranscriptID:    uuid.NewString(),
		SessionID:       sessionID,
		UserMessages:    userMessages,
		BotResponses:    botResponses,
		MessageCount:    len(msgs),
		StartedAt:       startedAt,
		EndedAt:         endedAt,
		DurationSeconds: duration,
		TotalCharacters: totalCharacters,
		CreatedAt:       time.Now().UTC(),
	}
}
