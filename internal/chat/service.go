// Package chat orchestrates answer generation: it retrieves relevant news
// passages, assembles a grounded prompt, calls the language model and records
// the completed turn in the ephemeral session store.
package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"newschat-backend/internal/knowledge"
	"newschat-backend/internal/stores/session"
)

// Retriever is the slice of the knowledge store the chat service needs
type Retriever interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Request carries the assembled prompt for one generation
type Request struct {
	System  string
	History []session.Message
	Query   string
}

// Generator produces answers from an assembled prompt
type Generator interface {
	// Complete returns the full answer text
	Complete(ctx context.Context, req Request) (string, error)

	// StreamComplete emits answer fragments through emit as they arrive and
	// returns the accumulated full text
	StreamComplete(ctx context.Context, req Request, emit func(delta string)) (string, error)
}

// Source identifies a news passage an answer was grounded on
type Source struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Answer is a completed response to one user query
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources,omitempty"`
}

// StreamChunk is one item on a streaming response channel. Intermediate
// chunks carry Delta; the terminal chunk has Done set and carries the
// accumulated full text plus sources.
type StreamChunk struct {
	Delta   string
	Done    bool
	Full    string
	Sources []Source
	Err     error
}

// Service answers user queries grounded on indexed news
type Service struct {
	sessions   session.Store
	retriever  Retriever
	generator  Generator
	system     string
	maxHistory int
	topK       int
	now        func() time.Time
}

// NewService creates a chat service. maxHistory caps how many prior turns are
// sent to the model; topK caps retrieved passages.
func NewService(sessions session.Store, retriever Retriever, generator Generator, system string, maxHistory, topK int) *Service {
	if system == "" {
		system = DefaultSystemPrompt
	}
	if maxHistory <= 0 {
		maxHistory = 20
	}
	if topK <= 0 {
		topK = 4
	}
	return &Service{
		sessions:   sessions,
		retriever:  retriever,
		generator:  generator,
		system:     system,
		maxHistory: maxHistory,
		topK:       topK,
		now:        time.Now,
	}
}

// Ask generates a grounded answer synchronously and appends the turn to the
// session's history
func (s *Service) Ask(ctx context.Context, sessionID, query string) (Answer, error) {
	req, sources, err := s.prepare(ctx, sessionID, query)
	if err != nil {
		return Answer{}, err
	}

	text, err := s.generator.Complete(ctx, req)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	if _, err := s.sessions.Append(ctx, sessionID, query, text, s.now()); err != nil {
		return Answer{}, fmt.Errorf("failed to record turn: %w", err)
	}

	return Answer{Text: text, Sources: sources}, nil
}

// Stream generates a grounded answer incrementally. Fragments arrive on the
// returned channel; the terminal chunk has Done set and the full text. The
// turn is appended to the session before the terminal chunk is emitted, so a
// consumer that sees Done can rely on the history being current. The channel
// is closed after the terminal chunk.
func (s *Service) Stream(ctx context.Context, sessionID, query string) (<-chan StreamChunk, error) {
	req, sources, err := s.prepare(ctx, sessionID, query)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	emit := func(chunk StreamChunk) {
		// Consumers that stop draining cancel ctx, so this never leaks
		select {
		case out <- chunk:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(out)

		full, err := s.generator.StreamComplete(ctx, req, func(delta string) {
			emit(StreamChunk{Delta: delta})
		})
		if err != nil {
			emit(StreamChunk{Err: fmt.Errorf("failed to generate answer: %w", err)})
			return
		}

		if _, err := s.sessions.Append(ctx, sessionID, query, full, s.now()); err != nil {
			emit(StreamChunk{Err: fmt.Errorf("failed to record turn: %w", err)})
			return
		}

		emit(StreamChunk{Done: true, Full: full, Sources: sources})
	}()
	return out, nil
}

// prepare reads capped history, retrieves context passages and assembles the
// generation request. Retrieval failure degrades to an ungrounded answer
// rather than failing the turn.
func (s *Service) prepare(ctx context.Context, sessionID, query string) (Request, []Source, error) {
	history, err := s.sessions.Read(ctx, sessionID)
	if err != nil {
		return Request{}, nil, fmt.Errorf("failed to read session history: %w", err)
	}
	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}

	var sources []Source
	system := s.system

	// A nil retriever means no news index is configured; answer ungrounded
	if s.retriever == nil {
		return Request{System: system, History: history, Query: query}, nil, nil
	}

	results, err := s.retriever.Search(ctx, query, knowledge.WithTopK(s.topK))
	if err != nil {
		log.Printf("[CHAT]: retrieval failed for session %s, answering without context: %v", sessionID, err)
	} else if len(results) > 0 {
		system = s.system + "\n\n" + buildContext(results)
		sources = collectSources(results)
	}

	return Request{System: system, History: history, Query: query}, sources, nil
}
