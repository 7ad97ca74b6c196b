package transcript

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList stores an ordered list of message texts as a JSON column
type StringList []string

// Value implements driver.Valuer for GORM serialization
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for GORM deserialization
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = StringList{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for string list: %T", value)
	}

	return json.Unmarshal(data, l)
}

// Transcript is the durable, immutable archival record of a terminated
// session's full history plus derived statistics. A session id may accumulate
// multiple transcripts across its lifetime; rows are never updated in place.
type Transcript struct {
	TranscriptID    string     `json:"transcriptId" gorm:"type:char(36);primaryKey;not null"`
	SessionID       string     `json:"sessionId" gorm:"size:255;index"`
	UserMessages    StringList `json:"userMessages" gorm:"type:json"`
	BotResponses    StringList `json:"botResponses" gorm:"type:json"`
	MessageCount    int        `json:"messageCount"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         time.Time  `json:"endedAt" gorm:"index"`
	DurationSeconds int        `json:"durationSeconds"`
	TotalCharacters int        `json:"totalCharacters"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// TableName specifies the database table name for GORM
func (*Transcript) TableName() string {
	return "transcripts"
}

// Summary is the caller-facing digest of an archived transcript
type Summary struct {
	TranscriptID    string    `json:"transcriptId"`
	SessionID       string    `json:"sessionId"`
	MessageCount    int       `json:"messageCount"`
	TotalCharacters int       `json:"totalCharacters"`
	DurationSeconds int       `json:"durationSeconds"`
	SavedAt         time.Time `json:"savedAt"`
}

// Stats aggregates all stored transcripts
type Stats struct {
	TotalSessions         int64   `json:"totalSessions"`
	TotalMessages         int64   `json:"totalMessages"`
	TotalCharacters       int64   `json:"totalCharacters"`
	AvgDurationSeconds    float64 `json:"avgDurationSeconds"`
	AvgMessagesPerSession float64 `json:"avgMessagesPerSession"`
	LastSessionDate       string  `json:"lastSessionDate,omitempty"`
}

func (t Transcript) summary() Summary {
	return Summary{
		TranscriptID:    t.TranscriptID,
		SessionID:       t.SessionID,
		MessageCount:    t.MessageCount,
		TotalCharacters: t.TotalCharacters,
		DurationSeconds: t.DurationSeconds,
		SavedAt:         t.CreatedAt,
	}
}
