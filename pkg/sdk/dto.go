// Package sdk provides the shared request/response types of the news chat
// backend and a typed HTTP client for it.
package sdk

import (
	"encoding/json"
	"time"
)

// StatusType labels the outcome of an API call
type StatusType string

const (
	StatusSuccess StatusType = "success"
	StatusError   StatusType = "error"
)

// ApiResponse represents a standard API response structure
type ApiResponse[T any] struct {
	Status  StatusType `json:"status"`          // Status message
	Code    int        `json:"code"`            // Status code
	Message string     `json:"message"`         // Human-readable message
	Data    T          `json:"data,omitempty"`  // Optional data field for successful responses
	Error   any        `json:"error,omitempty"` // Optional errors field for error responses
}

// AsGinResponse converts the ApiResponse to a format suitable for Gin framework
func (r ApiResponse[T]) AsGinResponse() (int, any) {
	return r.Code, r
}

// AsJSON converts the ApiResponse to a format suitable for JSON responses
func (r ApiResponse[T]) AsJSON() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func NewSuccessResponse[T any](message string, data T) ApiResponse[T] {
	return ApiResponse[T]{
		Status:  StatusSuccess,
		Code:    200,
		Message: message,
		Data:    data,
	}
}

func NewCreatedResponse[T any](message string, data T) ApiResponse[T] {
	return ApiResponse[T]{
		Status:  StatusSuccess,
		Code:    201,
		Message: message,
		Data:    data,
	}
}

func NewErrorResponse(code int, message string, err error) ApiResponse[any] {
	resp := ApiResponse[any]{
		Status:  StatusError,
		Code:    code,
		Message: message,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

/** Requests */

// PostMessageRequest represents the request body for sending a chat message
type PostMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

/** Responses */

// Session represents an active chat session
type Session struct {
	SessionID string `json:"sessionId"`
}

// SessionList represents the set of currently active sessions
type SessionList struct {
	SessionIDs []string `json:"sessionIds"`
	Count      int      `json:"count"`
}

// Message represents one exchange in a session's history
type Message struct {
	ID          string `json:"id"`
	UserQuery   string `json:"userQuery"`
	BotResponse string `json:"botResponse"`
	Timestamp   int64  `json:"timestamp"` // epoch milliseconds
}

// History represents a session's current message history
type History struct {
	SessionID string    `json:"sessionId"`
	Messages  []Message `json:"messages"`
	Count     int       `json:"count"`
}

// Source identifies a news article an answer drew on
type Source struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

// PostMessageResponse represents the response body after sending a message
type PostMessageResponse struct {
	SessionID string   `json:"sessionId"`
	Text      string   `json:"text"`
	Sources   []Source `json:"sources,omitempty"`
}

// TerminationOutcome reports the result of ending a session
type TerminationOutcome struct {
	SessionID       string `json:"sessionId"`
	TranscriptSaved bool   `json:"transcriptSaved"`
	TranscriptID    string `json:"transcriptId,omitempty"`
	MessageCount    int    `json:"messageCount"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

// Transcript represents an archived conversation
type Transcript struct {
	TranscriptID    string    `json:"transcriptId"`
	SessionID       string    `json:"sessionId"`
	UserMessages    []string  `json:"userMessages"`
	BotResponses    []string  `json:"botResponses"`
	MessageCount    int       `json:"messageCount"`
	StartedAt       time.Time `json:"startedAt"`
	EndedAt         time.Time `json:"endedAt"`
	DurationSeconds int       `json:"durationSeconds"`
	TotalCharacters int       `json:"totalCharacters"`
	CreatedAt       time.Time `json:"createdAt"`
}

// TranscriptSummary represents a transcript without its message bodies
type TranscriptSummary struct {
	TranscriptID    string    `json:"transcriptId"`
	SessionID       string    `json:"sessionId"`
	MessageCount    int       `json:"messageCount"`
	TotalCharacters int       `json:"totalCharacters"`
	DurationSeconds int       `json:"durationSeconds"`
	SavedAt         time.Time `json:"savedAt"`
}

// TranscriptList represents one page of archived transcripts
type TranscriptList struct {
	Transcripts []TranscriptSummary `json:"transcripts"`
	Count       int                 `json:"count"`
}

// Stats represents aggregate statistics over all archived transcripts
type Stats struct {
	TotalSessions         int64   `json:"totalSessions"`
	TotalMessages         int64   `json:"totalMessages"`
	TotalCharacters       int64   `json:"totalCharacters"`
	AvgDurationSeconds    float64 `json:"avgDurationSeconds"`
	AvgMessagesPerSession float64 `json:"avgMessagesPerSession"`
	LastSessionDate       string  `json:"lastSessionDate,omitempty"`
}

// CleanupResult reports a bulk termination of active sessions
type CleanupResult struct {
	Outcomes []TerminationOutcome `json:"outcomes"`
	Count    int                  `json:"count"`
}

// PurgeResult reports a retention purge of old transcripts
type PurgeResult struct {
	Deleted int64 `json:"deleted"`
}
