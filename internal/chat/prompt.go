package chat

import (
	"fmt"
	"strings"

	"newschat-backend/internal/knowledge"
)

// DefaultSystemPrompt is used when no prompt file is configured
const DefaultSystemPrompt = `You are a helpful news assistant. Answer the user's questions using the news articles provided to you as context. When the context does not cover a question, say so rather than guessing. Keep answers concise and cite the article titles you drew on.`

// buildContext renders retrieved passages into a prompt section
func buildContext(results []knowledge.Result) string {
	var b strings.Builder
	b.WriteString("Relevant news articles:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] %s (%s)\n%s\n", i+1, r.Chunk.Title, r.Chunk.Source, r.Chunk.Content)
	}
	return b.String()
}

// collectSources deduplicates result articles by URL, preserving rank order
func collectSources(results []knowledge.Result) []Source {
	seen := make(map[string]bool, len(results))
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		if seen[r.Chunk.URL] {
			continue
		}
		seen[r.Chunk.URL] = true
		sources = append(sources, Source{
			Title:  r.Chunk.Title,
			URL:    r.Chunk.URL,
			Source: r.Chunk.Source,
		})
	}
	return sources
}
