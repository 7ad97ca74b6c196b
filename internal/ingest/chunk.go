package ingest

import "strings"

const (
	defaultChunkSize    = 1200
	defaultChunkOverlap = 120
)

// SplitContent breaks article text into chunks of at most maxLen characters,
// preferring sentence boundaries and overlapping consecutive chunks so that
// context spanning a boundary is still retrievable.
func SplitContent(text string, maxLen, overlap int) []string {
	if maxLen <= 0 {
		maxLen = defaultChunkSize
	}
	if overlap < 0 || overlap >= maxLen {
		overlap = defaultChunkOverlap
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + maxLen
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}

		// Cut at the last sentence end inside the window, else at a space
		cut := end
		if idx := strings.LastIndexAny(text[start:end], ".!?"); idx > 0 {
			cut = start + idx + 1
		} else if idx := strings.LastIndex(text[start:end], " "); idx > 0 {
			cut = start + idx
		}

		chunk := strings.TrimSpace(text[start:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}
