package sdk

import (
	"context"
	"fmt"
	"net/http"
)

// CreateSession creates a new chat session and returns its id
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	path := "/api/chat/sessions"

	var out ApiResponse[Session]
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}

	if out.Data.SessionID == "" {
		return nil, fmt.Errorf("no session id returned")
	}

	return &out.Data, nil
}

// ListSessions returns the ids of all currently active sessions
func (c *Client) ListSessions(ctx context.Context) (*SessionList, error) {
	path := "/api/chat/sessions"

	var out ApiResponse[SessionList]
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	return &out.Data, nil
}

// GetHistory returns a session's current message history
func (c *Client) GetHistory(ctx context.Context, sessionID string) (*History, error) {
	path := fmt.Sprintf("/api/chat/sessions/%s/history", sessionID)

	var out ApiResponse[History]
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	if out.Status == StatusError {
		return nil, fmt.Errorf("failed to get history: %s", out.Message)
	}

	return &out.Data, nil
}

// SendMessage sends a chat message to a session and returns the answer
func (c *Client) SendMessage(ctx context.Context, sessionID string, req *PostMessageRequest) (*PostMessageResponse, error) {
	path := fmt.Sprintf("/api/chat/sessions/%s/message", sessionID)

	var out ApiResponse[PostMessageResponse]
	if err := c.doJSON(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}

	return &out.Data, nil
}

// DeleteSession ends a session, archiving its history when non-empty
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (*TerminationOutcome, error) {
	path := fmt.Sprintf("/api/chat/sessions/%s", sessionID)

	var out ApiResponse[TerminationOutcome]
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}

	return &out.Data, nil
}

// GetLatestTranscript returns the newest archived transcript for a session
func (c *Client) GetLatestTranscript(ctx context.Context, sessionID string) (*Transcript, error) {
	path := fmt.Sprintf("/api/chat/sessions/%s/transcript", sessionID)

	var out ApiResponse[Transcript]
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	return &out.Data, nil
}

// ListTranscripts returns one page of archived transcripts, newest first.
// limit must be between 1 and 100.
func (c *Client) ListTranscripts(ctx context.Context, limit, offset int) (*TranscriptList, error) {
	path := fmt.Sprintf("/api/chat/transcripts?limit=%d&offset=%d", limit, offset)

	var out ApiResponse[TranscriptList]
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	return &out.Data, nil
}

// GetStats returns aggregate statistics over all archived transcripts
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	path := "/api/chat/transcripts/stats"

	var out ApiResponse[Stats]
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	return &out.Data, nil
}

// CleanupSessions terminates every active session
func (c *Client) CleanupSessions(ctx context.Context) (*CleanupResult, error) {
	path := "/api/chat/admin/cleanup"

	var out ApiResponse[CleanupResult]
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}

	return &out.Data, nil
}

// PurgeTranscripts deletes transcripts older than the given number of days
func (c *Client) PurgeTranscripts(ctx context.Context, days int) (*PurgeResult, error) {
	path := fmt.Sprintf("/api/chat/admin/transcripts?days=%d", days)

	var out ApiResponse[PurgeResult]
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}

	return &out.Data, nil
}
