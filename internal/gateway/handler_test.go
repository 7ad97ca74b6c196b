package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newschat-backend/internal/chat"
	"newschat-backend/internal/knowledge"
	"newschat-backend/internal/lifecycle"
	"newschat-backend/internal/stores/session"
	"newschat-backend/internal/stores/transcript"
)

type nilRetriever struct{}

func (nilRetriever) Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error) {
	return nil, nil
}

type echoGenerator struct {
	fragments []string
}

func (g *echoGenerator) Complete(ctx context.Context, req chat.Request) (string, error) {
	return strings.Join(g.fragments, ""), nil
}

func (g *echoGenerator) StreamComplete(ctx context.Context, req chat.Request, emit func(delta string)) (string, error) {
	var full string
	for _, f := range g.fragments {
		full += f
		emit(f)
	}
	return full, nil
}

type testEnv struct {
	t           *testing.T
	sessions    *session.MemoryStore
	transcripts *transcript.MemoryStore
	server      *httptest.Server
	conn        *websocket.Conn
	ctx         context.Context
}

func newTestEnv(t *testing.T, gen chat.Generator) *testEnv {
	sessions := session.NewMemoryStore(time.Hour)
	transcripts := transcript.NewMemoryStore()
	coordinator := lifecycle.New(sessions, transcripts, time.Second)
	chatService := chat.NewService(sessions, nilRetriever{}, gen, "", 20, 4)

	h := NewHandler(chatService, sessions, coordinator, true)
	server := httptest.NewServer(h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		cancel()
		server.Close()
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "")
		cancel()
		server.Close()
	})

	return &testEnv{
		t:           t,
		sessions:    sessions,
		transcripts: transcripts,
		server:      server,
		conn:        conn,
		ctx:         ctx,
	}
}

func (e *testEnv) send(msg ClientMessage) {
	data, err := json.Marshal(msg)
	require.NoError(e.t, err)
	require.NoError(e.t, e.conn.Write(e.ctx, websocket.MessageText, data))
}

func (e *testEnv) read() ServerMessage {
	_, data, err := e.conn.Read(e.ctx)
	require.NoError(e.t, err)

	var msg ServerMessage
	require.NoError(e.t, json.Unmarshal(data, &msg))
	return msg
}

// readRaw exposes the wire payload so tests can assert which keys are present
func (e *testEnv) readRaw() map[string]json.RawMessage {
	_, data, err := e.conn.Read(e.ctx)
	require.NoError(e.t, err)

	var msg map[string]json.RawMessage
	require.NoError(e.t, json.Unmarshal(data, &msg))
	return msg
}

// join binds the connection to a session and consumes the join replies
func (e *testEnv) join(sessionID string) string {
	e.send(ClientMessage{Type: "join-session", SessionID: sessionID})
	joined := e.read()
	require.Equal(e.t, "session-joined", joined.Type)
	e.read() // session-history replay
	return joined.SessionID
}

func TestJoinMintsSessionID(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, &echoGenerator{})

	env.send(ClientMessage{Type: "join-session"})
	joined := env.read()

	assert.Equal("session-joined", joined.Type)
	assert.NotEmpty(joined.SessionID)

	history := env.read()
	assert.Equal("session-history", history.Type)
	assert.Empty(history.History)
}

func TestJoinReplaysExistingHistory(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, &echoGenerator{})

	_, err := env.sessions.Append(context.Background(), "s1", "hi", "hello!", time.Now())
	require.NoError(t, err)

	env.send(ClientMessage{Type: "join-session", SessionID: "s1"})
	joined := env.read()
	assert.Equal("s1", joined.SessionID)

	history := env.read()
	assert.Equal("session-history", history.Type)
	require.Len(t, history.History, 1)
	assert.Equal("hi", history.History[0].UserQuery)
	assert.Equal("hello!", history.History[0].BotResponse)
}

func TestChatStreamsFragmentsThenComplete(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, &echoGenerator{fragments: []string{"part ", "one"}})
	env.join("s1")

	env.send(ClientMessage{Type: "chat-message", Content: "hello", Streaming: true})

	assert.Equal("bot-typing", env.read().Type)
	assert.Equal("chat-response-start", env.read().Type)

	first := env.read()
	assert.Equal("chat-response-chunk", first.Type)
	assert.Equal("part ", first.Content)

	second := env.read()
	assert.Equal("chat-response-chunk", second.Type)
	assert.Equal("one", second.Content)

	complete := env.read()
	assert.Equal("chat-response-complete", complete.Type)
	assert.Equal("part one", complete.Content)

	history, err := env.sessions.Read(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal("part one", history[0].BotResponse)
}

func TestChatNonStreamingSendsSingleResponse(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, &echoGenerator{fragments: []string{"all ", "at once"}})
	env.join("s1")

	env.send(ClientMessage{Type: "chat-message", Content: "hello"})

	assert.Equal("bot-typing", env.read().Type)

	resp := env.read()
	assert.Equal("chat-response", resp.Type)
	assert.Equal("all at once", resp.Content)

	history, err := env.sessions.Read(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestChatWithoutJoinFails(t *testing.T) {
	env := newTestEnv(t, &echoGenerator{})

	env.send(ClientMessage{Type: "chat-message", Content: "hello"})
	resp := env.read()

	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Error, "no session joined")
}

func TestClearArchivesNonEmptySession(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, &echoGenerator{})

	_, err := env.sessions.Append(context.Background(), "s1", "q", "a", time.Now())
	require.NoError(t, err)
	env.join("s1")

	env.send(ClientMessage{Type: "clear-session"})
	resp := env.read()

	assert.Equal("session-cleared", resp.Type)
	require.NotNil(t, resp.TranscriptSaved)
	assert.True(*resp.TranscriptSaved)
	assert.NotEmpty(resp.TranscriptID)
	require.NotNil(t, resp.MessageCount)
	assert.Equal(1, *resp.MessageCount)
	assert.Equal(1, env.transcripts.Count())

	history, err := env.sessions.Read(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(history)
}

func TestClearEmptySessionLeavesNoTranscript(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, &echoGenerator{})
	env.join("s1")

	env.send(ClientMessage{Type: "clear-session"})
	resp := env.read()

	assert.Equal("session-cleared", resp.Type)
	require.NotNil(t, resp.TranscriptSaved)
	assert.False(*resp.TranscriptSaved)
	assert.Equal(0, env.transcripts.Count())
}

func TestClearEmptySessionReportsOutcomeOnWire(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, &echoGenerator{})
	env.join("s1")

	env.send(ClientMessage{Type: "clear-session"})
	raw := env.readRaw()

	assert.Equal(`"session-cleared"`, string(raw["type"]))

	// The outcome keys must be on the wire even when the session had no
	// history; a client must see transcriptSaved=false, not a missing field
	require.Contains(t, raw, "transcriptSaved")
	require.Contains(t, raw, "messageCount")
	assert.Equal("false", string(raw["transcriptSaved"]))
	assert.Equal("0", string(raw["messageCount"]))
}

func TestCleanupTerminatesActiveSessions(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, &echoGenerator{})

	_, err := env.sessions.Append(context.Background(), "s1", "q1", "a1", time.Now())
	require.NoError(t, err)
	_, err = env.sessions.Append(context.Background(), "s2", "q2", "a2", time.Now())
	require.NoError(t, err)
	env.join("s1")

	env.send(ClientMessage{Type: "cleanup-sessions"})
	resp := env.read()

	assert.Equal("cleanup-done", resp.Type)
	assert.Equal(2, resp.Cleaned)
	assert.Equal(2, env.transcripts.Count())
}

func TestCleanupWithExplicitTargets(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, &echoGenerator{})

	_, err := env.sessions.Append(context.Background(), "s1", "q1", "a1", time.Now())
	require.NoError(t, err)
	_, err = env.sessions.Append(context.Background(), "s2", "q2", "a2", time.Now())
	require.NoError(t, err)
	env.join("s1")

	env.send(ClientMessage{Type: "cleanup-sessions", Sessions: []string{"s2"}, Reason: "idle"})
	resp := env.read()

	assert.Equal("cleanup-done", resp.Type)
	assert.Equal(1, resp.Cleaned)
	assert.Equal(1, env.transcripts.Count())

	// The untargeted session keeps its history
	history, err := env.sessions.Read(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(history, 1)
}

func TestConnectionLossTerminatesBoundSession(t *testing.T) {
	env := newTestEnv(t, &echoGenerator{})

	_, err := env.sessions.Append(context.Background(), "s1", "q", "a", time.Now())
	require.NoError(t, err)
	env.join("s1")

	require.NoError(t, env.conn.Close(websocket.StatusNormalClosure, ""))

	// Termination runs async on the server side of the dropped connection
	require.Eventually(t, func() bool {
		return env.transcripts.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	history, err := env.sessions.Read(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestInvalidJSONReportsError(t *testing.T) {
	env := newTestEnv(t, &echoGenerator{})

	require.NoError(t, env.conn.Write(env.ctx, websocket.MessageText, []byte("{invalid json")))
	resp := env.read()

	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Error, "invalid message format")
}

func TestUnknownMessageTypeReportsError(t *testing.T) {
	env := newTestEnv(t, &echoGenerator{})

	env.send(ClientMessage{Type: "bogus"})
	resp := env.read()

	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Error, "unknown message type")
}
