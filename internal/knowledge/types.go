package knowledge

import "time"

// Chunk is one indexed passage of a news article
type Chunk struct {
	ID          string
	Source      string // feed name the article came from
	Title       string
	URL         string
	Content     string
	PublishedAt time.Time
}

// Result is a single search hit with its cosine similarity score
type Result struct {
	Chunk      Chunk
	Similarity float32
}

// SearchOption configures search behavior
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK   int
	source string
}

// WithTopK sets the maximum number of results to return. Default is 4.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithSource restricts results to passages from the named feed
func WithSource(source string) SearchOption {
	return func(c *searchConfig) {
		c.source = source
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{topK: 4}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
