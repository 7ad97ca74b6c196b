package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"newschat-backend/internal/stores/session"
)

// MySqlStore handles transcript persistence using GORM
type MySqlStore struct {
	db *gorm.DB
}

// NewMySqlStore creates a new transcript store with GORM connection
func NewMySqlStore(databaseURL string) (*MySqlStore, error) {
	db, err := gorm.Open(mysql.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &MySqlStore{db: db}

	// Auto-migrate tables
	if err := db.AutoMigrate(&Transcript{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}

	return store, nil
}

// Archive writes one new transcript row with derived statistics.
// The insert is a single statement; there is no partially-written state.
func (s *MySqlStore) Archive(ctx context.Context, sessionID string, msgs []session.Message, startedAt, endedAt time.Time) (Summary, error) {
	if len(msgs) == 0 {
		return Summary{}, fmt.Errorf("%w: refusing to archive empty history for session %s", ErrInvalidArgument, sessionID)
	}

	row := build(sessionID, msgs, startedAt, endedAt)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Summary{}, fmt.Errorf("failed to archive transcript: %w", err)
	}

	return row.summary(), nil
}

// FetchLatest retrieves the most recent transcript for a session id
func (s *MySqlStore) FetchLatest(ctx context.Context, sessionID string) (Transcript, error) {
	var row Transcript
	result := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("ended_at DESC").Order("created_at DESC").
		First(&row)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return Transcript{}, ErrNotFound
		}
		return Transcript{}, fmt.Errorf("failed to fetch transcript: %w", result.Error)
	}

	return row, nil
}

// ListRecent retrieves transcript summaries newest-first
func (s *MySqlStore) ListRecent(ctx context.Context, limit, offset int) ([]Summary, error) {
	if limit <= 0 || limit > MaxListLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidArgument, MaxListLimit)
	}
	if offset < 0 {
		offset = 0
	}

	var rows []Transcript
	result := s.db.WithContext(ctx).
		Order("ended_at DESC").Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", result.Error)
	}

	summaries := make([]Summary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, row.summary())
	}
	return summaries, nil
}

// AggregateStats computes totals over all stored transcripts in one query
func (s *MySqlStore) AggregateStats(ctx context.Context) (Stats, error) {
	var agg struct {
		TotalSessions   int64
		TotalMessages   int64
		TotalCharacters int64
		AvgDuration     float64
		LastEndedAt     *time.Time
	}

	err := s.db.WithContext(ctx).Model(&Transcript{}).
		Select("COUNT(*) AS total_sessions, " +
			"COALESCE(SUM(message_count), 0) AS total_messages, " +
			"COALESCE(SUM(total_characters), 0) AS total_characters, " +
			"COALESCE(AVG(duration_seconds), 0) AS avg_duration, " +
			"MAX(ended_at) AS last_ended_at").
		Scan(&agg).Error
	if err != nil {
		return Stats{}, fmt.Errorf("failed to aggregate stats: %w", err)
	}

	stats := Stats{
		TotalSessions:      agg.TotalSessions,
		TotalMessages:      agg.TotalMessages,
		TotalCharacters:    agg.TotalCharacters,
		AvgDurationSeconds: agg.AvgDuration,
	}
	if agg.TotalSessions > 0 {
		stats.AvgMessagesPerSession = float64(agg.TotalMessages) / float64(agg.TotalSessions)
	}
	if agg.LastEndedAt != nil {
		stats.LastSessionDate = agg.LastEndedAt.UTC().Format(time.RFC3339)
	}
	return stats, nil
}

// PurgeOlderThan deletes transcripts whose session ended before the cutoff
func (s *MySqlStore) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("%w: days must not be negative", ErrInvalidArgument)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	result := s.db.WithContext(ctx).Where("ended_at < ?", cutoff).Delete(&Transcript{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge transcripts: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Close closes the database connection
func (s *MySqlStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from gorm.DB: %w", err)
	}
	return sqlDB.Close()
}
