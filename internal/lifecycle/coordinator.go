// Package lifecycle coordinates the termination of chat sessions: reading the
// ephemeral history, archiving it durably, then clearing the ephemeral store.
// The archive-before-clear ordering is load-bearing: if the durable write
// fails the history stays live for a later retry, so a termination can
// duplicate data in degraded cases but never lose it.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"newschat-backend/internal/stores/session"
	"newschat-backend/internal/stores/transcript"
)

// Outcome reports the result of one termination attempt
type Outcome struct {
	SessionID       string `json:"sessionId"`
	TranscriptSaved bool   `json:"transcriptSaved"`
	TranscriptID    string `json:"transcriptId,omitempty"`
	MessageCount    int    `json:"messageCount"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`

	// ClearErr is set when the transcript was archived but the ephemeral
	// history could not be cleared. The session data is then duplicated
	// (archived and still live) rather than lost.
	ClearErr error `json:"-"`
}

// ErrorSink receives failures from best-effort terminations, where no caller
// remains to report to. The default sink logs.
type ErrorSink func(sessionID string, err error)

// Coordinator runs the termination protocol. Stores are injected so tests can
// substitute them; there is no ambient global state.
type Coordinator struct {
	sessions    session.Store
	transcripts transcript.Store
	timeout     time.Duration
	sink        ErrorSink
	locks       keyedMutex
	now         func() time.Time
}

// New creates a Coordinator over the given stores. timeout bounds each store
// call; zero means no bound.
func New(sessions session.Store, transcripts transcript.Store, timeout time.Duration) *Coordinator {
	return &Coordinator{
		sessions:    sessions,
		transcripts: transcripts,
		timeout:     timeout,
		sink: func(sessionID string, err error) {
			log.Printf("[LIFECYCLE]: best-effort termination of session %s failed: %v", sessionID, err)
		},
		now: time.Now,
	}
}

// SetErrorSink replaces the destination for best-effort failures (for tests)
func (c *Coordinator) SetErrorSink(sink ErrorSink) {
	if sink != nil {
		c.sink = sink
	}
}

// SetClock overrides the coordinator's time source (for tests)
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Terminate runs the single-session termination protocol:
//
//	read history -> archive if non-empty -> clear -> report
//
// A per-session lock serializes concurrent terminations of the same id, so at
// most one durable archive is written per logical termination. On archive
// failure the ephemeral history is left untouched and the error is returned.
// On clear failure after a successful archive, the Outcome still reports the
// archive and carries the clear error separately.
func (c *Coordinator) Terminate(ctx context.Context, sessionID string) (Outcome, error) {
	unlock := c.locks.lock(sessionID)
	defer unlock()

	out := Outcome{SessionID: sessionID}

	history, err := c.readHistory(ctx, sessionID)
	if err != nil {
		return out, fmt.Errorf("failed to read history for session %s: %w", sessionID, err)
	}

	if len(history) == 0 {
		if err := c.clear(ctx, sessionID); err != nil {
			return out, fmt.Errorf("failed to clear empty session %s: %w", sessionID, err)
		}
		return out, nil
	}

	startedAt := time.UnixMilli(history[0].Timestamp).UTC()
	endedAt := c.now().UTC()

	summary, err := c.archive(ctx, sessionID, history, startedAt, endedAt)
	if err != nil {
		// History stays in the ephemeral store for a future retry
		return out, fmt.Errorf("failed to archive session %s: %w", sessionID, err)
	}

	out.TranscriptSaved = true
	out.TranscriptID = summary.TranscriptID
	out.MessageCount = summary.MessageCount
	out.DurationSeconds = summary.DurationSeconds

	if err := c.clear(ctx, sessionID); err != nil {
		log.Printf("[LIFECYCLE]: session %s archived as %s but clear failed: %v", sessionID, summary.TranscriptID, err)
		out.ClearErr = err
	}
	return out, nil
}

// TerminateBestEffort runs the termination protocol for triggers with no
// caller left to notify (connection loss). Failures go to the error sink.
func (c *Coordinator) TerminateBestEffort(ctx context.Context, sessionID string) Outcome {
	out, err := c.Terminate(ctx, sessionID)
	if err != nil {
		c.sink(sessionID, err)
	}
	if out.ClearErr != nil {
		c.sink(sessionID, out.ClearErr)
	}
	return out
}

// Cleanup terminates each session independently. A failure on one id never
// aborts the remaining ids; failed ids are logged and skipped in the result.
func (c *Coordinator) Cleanup(ctx context.Context, sessionIDs []string, reason string) []Outcome {
	outcomes := make([]Outcome, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		out, err := c.Terminate(ctx, sessionID)
		if err != nil {
			log.Printf("[LIFECYCLE]: cleanup (%s) of session %s failed: %v", reason, sessionID, err)
			continue
		}
		outcomes = append(outcomes, out)
	}
	log.Printf("[LIFECYCLE]: cleanup (%s) processed %d/%d sessions", reason, len(outcomes), len(sessionIDs))
	return outcomes
}

func (c *Coordinator) readHistory(ctx context.Context, sessionID string) ([]session.Message, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return c.sessions.Read(ctx, sessionID)
}

func (c *Coordinator) archive(ctx context.Context, sessionID string, history []session.Message, startedAt, endedAt time.Time) (transcript.Summary, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return c.transcripts.Archive(ctx, sessionID, history, startedAt, endedAt)
}

func (c *Coordinator) clear(ctx context.Context, sessionID string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return c.sessions.Clear(ctx, sessionID)
}

// callContext bounds one store call with the configured timeout
func (c *Coordinator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// keyedMutex serializes work per session id. Entries are reference-counted
// and removed once the last holder releases them.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*lockEntry)
	}
	entry, exists := k.entries[key]
	if !exists {
		entry = &lockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
