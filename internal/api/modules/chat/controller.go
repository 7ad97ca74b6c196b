package chat

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	chatservice "newschat-backend/internal/chat"
	"newschat-backend/internal/lifecycle"
	"newschat-backend/internal/stores/session"
	"newschat-backend/internal/stores/transcript"
	"newschat-backend/pkg/sdk"
)

// Controller handles the chat module's HTTP requests. All collaborators are
// injected so tests can substitute in-memory stores.
type Controller struct {
	sessions    session.Store
	transcripts transcript.Store
	lifecycle   *lifecycle.Coordinator
	chat        *chatservice.Service
}

// NewController creates a chat controller over the given collaborators
func NewController(sessions session.Store, transcripts transcript.Store, coordinator *lifecycle.Coordinator, chat *chatservice.Service) *Controller {
	return &Controller{
		sessions:    sessions,
		transcripts: transcripts,
		lifecycle:   coordinator,
		chat:        chat,
	}
}

// CreateSession handles POST requests to create a new session
func (ctl *Controller) CreateSession(c *gin.Context) {
	sessionID := uuid.NewString()
	c.JSON(sdk.NewCreatedResponse("Session created successfully", sdk.Session{SessionID: sessionID}).AsGinResponse())
}

// ListSessions handles GET requests for the ids of all active sessions
func (ctl *Controller) ListSessions(c *gin.Context) {
	ids, err := ctl.sessions.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to list sessions", err).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("Sessions retrieved successfully", sdk.SessionList{
		SessionIDs: ids,
		Count:      len(ids),
	}).AsGinResponse())
}

// GetHistory handles GET requests for a session's message history. An unknown
// or expired session yields an empty history, not an error.
func (ctl *Controller) GetHistory(c *gin.Context) {
	sessionID := c.Param("uuid")

	messages, err := ctl.sessions.Read(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to read history", err).AsGinResponse())
		return
	}

	history := sdk.History{SessionID: sessionID, Messages: make([]sdk.Message, len(messages)), Count: len(messages)}
	for i, m := range messages {
		history.Messages[i] = sdk.Message{
			ID:          m.ID,
			UserQuery:   m.UserQuery,
			BotResponse: m.BotResponse,
			Timestamp:   m.Timestamp,
		}
	}

	c.JSON(sdk.NewSuccessResponse("History retrieved successfully", history).AsGinResponse())
}

// PostMessage handles POST requests to send a chat message to a session
func (ctl *Controller) PostMessage(c *gin.Context) {
	sessionID := c.Param("uuid")

	var req sdk.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Could not parse request body", err).AsGinResponse())
		return
	}

	answer, err := ctl.chat.Ask(c.Request.Context(), sessionID, req.Content)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to generate answer", err).AsGinResponse())
		return
	}

	sources := make([]sdk.Source, len(answer.Sources))
	for i, s := range answer.Sources {
		sources[i] = sdk.Source{Title: s.Title, URL: s.URL, Source: s.Source}
	}

	c.JSON(sdk.NewSuccessResponse("Message sent successfully", sdk.PostMessageResponse{
		SessionID: sessionID,
		Text:      answer.Text,
		Sources:   sources,
	}).AsGinResponse())
}

// DeleteSession handles DELETE requests to end a session. A non-empty history
// is archived before the session is cleared.
func (ctl *Controller) DeleteSession(c *gin.Context) {
	sessionID := c.Param("uuid")

	outcome, err := ctl.lifecycle.Terminate(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to end session", err).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("Session ended successfully", toSDKOutcome(outcome)).AsGinResponse())
}

// GetTranscript handles GET requests for a session's newest archived transcript
func (ctl *Controller) GetTranscript(c *gin.Context) {
	sessionID := c.Param("uuid")

	t, err := ctl.transcripts.FetchLatest(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, transcript.ErrNotFound) {
			c.JSON(sdk.NewErrorResponse(http.StatusNotFound, "No transcript found for session", err).AsGinResponse())
			return
		}
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to fetch transcript", err).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("Transcript retrieved successfully", toSDKTranscript(t)).AsGinResponse())
}

// ListTranscripts handles GET requests for one page of archived transcripts,
// newest first. limit must be between 1 and 100.
func (ctl *Controller) ListTranscripts(c *gin.Context) {
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Invalid limit parameter", err).AsGinResponse())
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Invalid offset parameter", err).AsGinResponse())
		return
	}

	summaries, err := ctl.transcripts.ListRecent(c.Request.Context(), limit, offset)
	if err != nil {
		if errors.Is(err, transcript.ErrInvalidArgument) {
			c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Invalid pagination parameters", err).AsGinResponse())
			return
		}
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to list transcripts", err).AsGinResponse())
		return
	}

	list := sdk.TranscriptList{Transcripts: make([]sdk.TranscriptSummary, len(summaries)), Count: len(summaries)}
	for i, s := range summaries {
		list.Transcripts[i] = sdk.TranscriptSummary{
			TranscriptID:    s.TranscriptID,
			SessionID:       s.SessionID,
			MessageCount:    s.MessageCount,
			TotalCharacters: s.TotalCharacters,
			DurationSeconds: s.DurationSeconds,
			SavedAt:         s.SavedAt,
		}
	}

	c.JSON(sdk.NewSuccessResponse("Transcripts retrieved successfully", list).AsGinResponse())
}

// GetStats handles GET requests for aggregate transcript statistics
func (ctl *Controller) GetStats(c *gin.Context) {
	stats, err := ctl.transcripts.AggregateStats(c.Request.Context())
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to compute stats", err).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("Stats computed successfully", sdk.Stats{
		TotalSessions:         stats.TotalSessions,
		TotalMessages:         stats.TotalMessages,
		TotalCharacters:       stats.TotalCharacters,
		AvgDurationSeconds:    stats.AvgDurationSeconds,
		AvgMessagesPerSession: stats.AvgMessagesPerSession,
		LastSessionDate:       stats.LastSessionDate,
	}).AsGinResponse())
}

// CleanupSessions handles POST requests to terminate every active session
func (ctl *Controller) CleanupSessions(c *gin.Context) {
	ids, err := ctl.sessions.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to list sessions", err).AsGinResponse())
		return
	}

	outcomes := ctl.lifecycle.Cleanup(c.Request.Context(), ids, "admin request")

	result := sdk.CleanupResult{Outcomes: make([]sdk.TerminationOutcome, len(outcomes)), Count: len(outcomes)}
	for i, out := range outcomes {
		result.Outcomes[i] = toSDKOutcome(out)
	}

	c.JSON(sdk.NewSuccessResponse("Cleanup completed successfully", result).AsGinResponse())
}

// PurgeTranscripts handles DELETE requests to remove transcripts older than
// the given number of days
func (ctl *Controller) PurgeTranscripts(c *gin.Context) {
	days, err := queryInt(c, "days", 90)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Invalid days parameter", err).AsGinResponse())
		return
	}

	deleted, err := ctl.transcripts.PurgeOlderThan(c.Request.Context(), days)
	if err != nil {
		if errors.Is(err, transcript.ErrInvalidArgument) {
			c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Invalid days parameter", err).AsGinResponse())
			return
		}
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to purge transcripts", err).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("Transcripts purged successfully", sdk.PurgeResult{Deleted: deleted}).AsGinResponse())
}

// queryInt parses an optional integer query parameter
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// Helper method to convert a lifecycle outcome to its sdk form
func toSDKOutcome(out lifecycle.Outcome) sdk.TerminationOutcome {
	return sdk.TerminationOutcome{
		SessionID:       out.SessionID,
		TranscriptSaved: out.TranscriptSaved,
		TranscriptID:    out.TranscriptID,
		MessageCount:    out.MessageCount,
		DurationSeconds: out.DurationSeconds,
	}
}

// Helper method to convert an internal transcript to its sdk form
func toSDKTranscript(t transcript.Transcript) sdk.Transcript {
	return sdk.Transcript{
		TranscriptID:    t.TranscriptID,
		SessionID:       t.SessionID,
		UserMessages:    t.UserMessages,
		BotResponses:    t.BotResponses,
		MessageCount:    t.MessageCount,
		StartedAt:       t.StartedAt,
		EndedAt:         t.EndedAt,
		DurationSeconds: t.DurationSeconds,
		TotalCharacters: t.TotalCharacters,
		CreatedAt:       t.CreatedAt,
	}
}
