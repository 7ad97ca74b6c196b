// Package ingest pulls articles from configured RSS feeds, splits them into
// passages and indexes them in the knowledge store.
package ingest

import (
	"context"
	"fmt"
	"log"

	"newschat-backend/internal/knowledge"
)

// Indexer is the slice of the knowledge store the ingest pipeline needs
type Indexer interface {
	Upsert(ctx context.Context, chunk knowledge.Chunk) error
}

// Service fetches, chunks and indexes the configured feeds
type Service struct {
	feeds     []Feed
	fetcher   *Fetcher
	indexer   Indexer
	chunkSize int
	overlap   int
}

// NewService creates an ingest service over the given feeds and indexer
func NewService(feeds []Feed, fetcher *Fetcher, indexer Indexer) *Service {
	return &Service{
		feeds:     feeds,
		fetcher:   fetcher,
		indexer:   indexer,
		chunkSize: defaultChunkSize,
		overlap:   defaultChunkOverlap,
	}
}

// RunOnce ingests every configured feed. Failures are isolated per feed and
// per article so one bad source never blocks the rest.
func (s *Service) RunOnce(ctx context.Context) error {
	var failed int
	for _, feed := range s.feeds {
		if err := s.ingestFeed(ctx, feed); err != nil {
			log.Printf("[INGEST]: feed %s failed: %v", feed.Name, err)
			failed++
		}
	}
	if failed == len(s.feeds) && len(s.feeds) > 0 {
		return fmt.Errorf("all %d feeds failed", failed)
	}
	return nil
}

func (s *Service) ingestFeed(ctx context.Context, feed Feed) error {
	articles, err := s.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		return err
	}

	indexed := 0
	for _, article := range articles {
		chunks := SplitContent(article.Content, s.chunkSize, s.overlap)
		for i, content := range chunks {
			chunk := knowledge.Chunk{
				ID:          fmt.Sprintf("%s#%d", article.GUID, i),
				Source:      feed.Name,
				Title:       article.Title,
				URL:         article.Link,
				Content:     content,
				PublishedAt: article.PublishedAt,
			}
			if err := s.indexer.Upsert(ctx, chunk); err != nil {
				log.Printf("[INGEST]: failed to index %s: %v", chunk.ID, err)
				continue
			}
			indexed++
		}
	}

	log.Printf("[INGEST]: feed %s: %d articles, %d passages indexed", feed.Name, len(articles), indexed)
	return nil
}
