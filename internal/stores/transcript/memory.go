package transcript

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"newschat-backend/internal/stores/session"
)

// MemoryStore is an in-memory transcript store for tests and for running
// without a configured MySQL database
type MemoryStore struct {
	mu   sync.RWMutex
	rows []Transcript

	// archiveErr, when set, makes Archive fail. Used to simulate durable
	// write failures in coordinator tests.
	archiveErr error
}

// NewMemoryStore creates a new in-memory transcript store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailArchiveWith makes subsequent Archive calls return err (nil to reset)
func (s *MemoryStore) FailArchiveWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archiveErr = err
}

// Archive appends one transcript row with derived statistics
func (s *MemoryStore) Archive(ctx context.Context, sessionID string, msgs []session.Message, startedAt, endedAt time.Time) (Summary, error) {
	if len(msgs) == 0 {
		return Summary{}, fmt.Errorf("%w: refusing to archive empty history for session %s", ErrInvalidArgument, sessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.archiveErr != nil {
		return Summary{}, s.archiveErr
	}

	row := build(sessionID, msgs, startedAt, endedAt)
	s.rows = append(s.rows, row)
	return row.summary(), nil
}

// FetchLatest returns the most recent transcript for a session id
func (s *MemoryStore) FetchLatest(ctx context.Context, sessionID string) (Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Transcript
	for i := range s.rows {
		row := &s.rows[i]
		if row.SessionID != sessionID {
			continue
		}
		if latest == nil || row.EndedAt.After(latest.EndedAt) {
			latest = row
		}
	}
	if latest == nil {
		return Transcript{}, ErrNotFound
	}
	return *latest, nil
}

// ListRecent returns transcript summaries newest-first
func (s *MemoryStore) ListRecent(ctx context.Context, limit, offset int) ([]Summary, error) {
	if limit <= 0 || limit > MaxListLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidArgument, MaxListLimit)
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	rows := make([]Transcript, len(s.rows))
	copy(rows, s.rows)
	s.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].EndedAt.Equal(rows[j].EndedAt) {
			return rows[i].EndedAt.After(rows[j].EndedAt)
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})

	if offset >= len(rows) {
		return []Summary{}, nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}

	summaries := make([]Summary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, row.summary())
	}
	return summaries, nil
}

// AggregateStats computes totals over all stored transcripts
func (s *MemoryStore) AggregateStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{TotalSessions: int64(len(s.rows))}
	if len(s.rows) == 0 {
		return stats, nil
	}

	var durationSum int64
	var lastEnded time.Time
	for _, row := range s.rows {
		stats.TotalMessages += int64(row.MessageCount)
		stats.TotalCharacters += int64(row.TotalCharacters)
		durationSum += int64(row.DurationSeconds)
		if row.EndedAt.After(lastEnded) {
			lastEnded = row.EndedAt
		}
	}

	stats.AvgDurationSeconds = float64(durationSum) / float64(len(s.rows))
	stats.AvgMessagesPerSession = float64(stats.TotalMessages) / float64(len(s.rows))
	stats.LastSessionDate = lastEnded.UTC().Format(time.RFC3339)
	return stats, nil
}

// PurgeOlderThan removes transcripts whose session ended before the cutoff
func (s *MemoryStore) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("%w: days must not be negative", ErrInvalidArgument)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.rows[:0]
	var removed int64
	for _, row := range s.rows {
		if row.EndedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return removed, nil
}

// Count returns the number of stored transcripts (test helper)
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
