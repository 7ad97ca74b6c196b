// Package gateway exposes the chat service over a WebSocket connection. Each
// connection binds to one session; when the connection drops with the session
// still bound, the session is terminated best-effort so its history is
// archived rather than left to expire silently.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"newschat-backend/internal/chat"
	"newschat-backend/internal/lifecycle"
	"newschat-backend/internal/stores/session"
)

// Handler upgrades HTTP requests to WebSocket chat connections
type Handler struct {
	chat      *chat.Service
	sessions  session.Store
	lifecycle *lifecycle.Coordinator
	devMode   bool
}

// NewHandler creates a gateway handler. devMode disables origin verification
// on the upgrade for local frontends.
func NewHandler(chatService *chat.Service, sessions session.Store, coordinator *lifecycle.Coordinator, devMode bool) *Handler {
	return &Handler{
		chat:      chatService,
		sessions:  sessions,
		lifecycle: coordinator,
		devMode:   devMode,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.devMode,
	})
	if err != nil {
		log.Printf("[GATEWAY]: failed to accept websocket: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	h.handleConnection(r.Context(), conn)
}

// connectionState holds the session binding for a single connection
type connectionState struct {
	mu        sync.Mutex
	sessionID string

	// writeMu protects WebSocket writes from concurrent access
	writeMu sync.Mutex
}

func (s *connectionState) bound() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *connectionState) bind(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
}

func (h *Handler) handleConnection(ctx context.Context, conn *websocket.Conn) {
	log.Print("[GATEWAY]: new connection")

	state := &connectionState{}

	defer func() {
		// Connection loss is a termination trigger. The read loop's ctx is
		// already done at this point, so use a fresh one for the stores.
		if sessionID := state.bound(); sessionID != "" {
			log.Printf("[GATEWAY]: connection lost, terminating session %s", sessionID)
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			h.lifecycle.TerminateBestEffort(cleanupCtx, sessionID)
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			log.Printf("[GATEWAY]: read error: %v", err)
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[GATEWAY]: unmarshal error: %v", err)
			h.sendError(ctx, conn, state, "invalid message format")
			continue
		}

		switch msg.Type {
		case "join-session":
			if err := h.handleJoin(ctx, conn, msg, state); err != nil {
				log.Printf("[GATEWAY]: join error: %v", err)
				h.sendError(ctx, conn, state, err.Error())
			}

		case "chat-message":
			if err := h.handleChat(ctx, conn, msg, state); err != nil {
				log.Printf("[GATEWAY]: chat error: %v", err)
				h.sendError(ctx, conn, state, err.Error())
			}

		case "get-history":
			if err := h.handleHistory(ctx, conn, state); err != nil {
				log.Printf("[GATEWAY]: history error: %v", err)
				h.sendError(ctx, conn, state, err.Error())
			}

		case "clear-session":
			if err := h.handleClear(ctx, conn, state); err != nil {
				log.Printf("[GATEWAY]: clear error: %v", err)
				h.sendError(ctx, conn, state, err.Error())
			}

		case "cleanup-sessions":
			if err := h.handleCleanup(ctx, conn, msg, state); err != nil {
				log.Printf("[GATEWAY]: cleanup error: %v", err)
				h.sendError(ctx, conn, state, err.Error())
			}

		default:
			h.sendError(ctx, conn, state, "unknown message type")
		}
	}
}

// handleJoin binds the connection to a session, minting an id when the client
// has none, and replays the session's history
func (h *Handler) handleJoin(ctx context.Context, conn *websocket.Conn, msg ClientMessage, state *connectionState) error {
	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	state.bind(sessionID)

	if err := h.sessions.Refresh(ctx, sessionID); err != nil {
		log.Printf("[GATEWAY]: failed to refresh session %s: %v", sessionID, err)
	}

	if err := h.send(ctx, conn, state, ServerMessage{Type: "session-joined", SessionID: sessionID}); err != nil {
		return err
	}
	return h.handleHistory(ctx, conn, state)
}

func (h *Handler) handleChat(ctx context.Context, conn *websocket.Conn, msg ClientMessage, state *connectionState) error {
	sessionID := state.bound()
	if sessionID == "" {
		return errNoSession
	}
	if msg.Content == "" {
		return errEmptyMessage
	}

	if err := h.send(ctx, conn, state, ServerMessage{Type: "bot-typing", SessionID: sessionID}); err != nil {
		return err
	}

	if !msg.Streaming {
		answer, err := h.chat.Ask(ctx, sessionID, msg.Content)
		if err != nil {
			return err
		}
		return h.send(ctx, conn, state, ServerMessage{
			Type:      "chat-response",
			SessionID: sessionID,
			Content:   answer.Text,
			Sources:   answer.Sources,
		})
	}

	stream, err := h.chat.Stream(ctx, sessionID, msg.Content)
	if err != nil {
		return err
	}

	if err := h.send(ctx, conn, state, ServerMessage{Type: "chat-response-start", SessionID: sessionID}); err != nil {
		return err
	}

	for chunk := range stream {
		switch {
		case chunk.Err != nil:
			return chunk.Err
		case chunk.Done:
			return h.send(ctx, conn, state, ServerMessage{
				Type:      "chat-response-complete",
				SessionID: sessionID,
				Content:   chunk.Full,
				Sources:   chunk.Sources,
			})
		default:
			if err := h.send(ctx, conn, state, ServerMessage{
				Type:      "chat-response-chunk",
				SessionID: sessionID,
				Content:   chunk.Delta,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Handler) handleHistory(ctx context.Context, conn *websocket.Conn, state *connectionState) error {
	sessionID := state.bound()
	if sessionID == "" {
		return errNoSession
	}

	messages, err := h.sessions.Read(ctx, sessionID)
	if err != nil {
		return err
	}

	history := make([]HistoryTurn, len(messages))
	for i, m := range messages {
		history[i] = HistoryTurn{
			UserQuery:   m.UserQuery,
			BotResponse: m.BotResponse,
			Timestamp:   m.Timestamp,
		}
	}
	return h.send(ctx, conn, state, ServerMessage{
		Type:      "session-history",
		SessionID: sessionID,
		History:   history,
	})
}

// handleClear runs the full termination protocol so a non-empty session is
// archived before its history disappears
func (h *Handler) handleClear(ctx context.Context, conn *websocket.Conn, state *connectionState) error {
	sessionID := state.bound()
	if sessionID == "" {
		return errNoSession
	}

	outcome, err := h.lifecycle.Terminate(ctx, sessionID)
	if err != nil {
		return err
	}
	saved, count := outcome.TranscriptSaved, outcome.MessageCount
	return h.send(ctx, conn, state, ServerMessage{
		Type:            "session-cleared",
		SessionID:       sessionID,
		TranscriptSaved: &saved,
		TranscriptID:    outcome.TranscriptID,
		MessageCount:    &count,
		DurationSeconds: outcome.DurationSeconds,
	})
}

// handleCleanup terminates the named sessions, or every active session when
// the request names none
func (h *Handler) handleCleanup(ctx context.Context, conn *websocket.Conn, msg ClientMessage, state *connectionState) error {
	ids := msg.Sessions
	if len(ids) == 0 {
		var err error
		ids, err = h.sessions.ListActive(ctx)
		if err != nil {
			return err
		}
	}

	reason := msg.Reason
	if reason == "" {
		reason = "client request"
	}

	outcomes := h.lifecycle.Cleanup(ctx, ids, reason)
	return h.send(ctx, conn, state, ServerMessage{
		Type:    "cleanup-done",
		Cleaned: len(outcomes),
	})
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, state *connectionState, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	state.writeMu.Lock()
	defer state.writeMu.Unlock()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, state *connectionState, errMsg string) {
	if err := h.send(ctx, conn, state, ServerMessage{Type: "error", Error: errMsg}); err != nil {
		log.Printf("[GATEWAY]: failed to send error: %v", err)
	}
}
