package gateway

import "newschat-backend/internal/chat"

// ClientMessage is a message sent by a connected client
type ClientMessage struct {
	Type      string   `json:"type"`                // "join-session", "chat-message", "get-history", "clear-session" or "cleanup-sessions"
	SessionID string   `json:"sessionId,omitempty"` // Target session (for "join-session")
	Content   string   `json:"content,omitempty"`   // User input (for "chat-message")
	Streaming bool     `json:"streaming,omitempty"` // Deliver the answer incrementally (for "chat-message")
	Sessions  []string `json:"sessions,omitempty"`  // Explicit targets (for "cleanup-sessions"); empty means all active
	Reason    string   `json:"reason,omitempty"`    // Audit label (for "cleanup-sessions")
}

// ServerMessage is a message sent to a connected client
type ServerMessage struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId,omitempty"`
	Content   string        `json:"content,omitempty"` // Text fragment or full answer
	History   []HistoryTurn `json:"history,omitempty"` // For "session-history"
	Sources   []chat.Source `json:"sources,omitempty"` // For "chat-response-complete" and "chat-response"
	Cleaned   int           `json:"cleaned,omitempty"` // For "cleanup-done"
	Error     string        `json:"error,omitempty"`

	// Termination outcome, set on "session-cleared". TranscriptSaved and
	// MessageCount are pointers so an empty-session clear still puts
	// false/0 on the wire; other event types omit them entirely.
	TranscriptSaved *bool  `json:"transcriptSaved,omitempty"`
	TranscriptID    string `json:"transcriptId,omitempty"`
	MessageCount    *int   `json:"messageCount,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

// HistoryTurn is one prior exchange replayed to a rejoining client
type HistoryTurn struct {
	UserQuery   string `json:"userQuery"`
	BotResponse string `json:"botResponse"`
	Timestamp   int64  `json:"timestamp"`
}
