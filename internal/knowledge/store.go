// Package knowledge stores embedded news passages in PostgreSQL and retrieves
// the ones most similar to a query using pgvector cosine search.
package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Embedder turns text into vectors. Defined here by the consumer; the
// production implementation wraps the OpenAI embeddings API.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store manages news passages with vector search. Safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
	dims     int
}

// NewPool opens a pgx pool with pgvector types registered on every connection
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return pool, nil
}

// NewStore creates a Store over the given pool and embedder. dims must match
// the embedding model's output dimension.
func NewStore(pool *pgxpool.Pool, embedder Embedder, dims int) (*Store, error) {
	if pool == nil {
		return nil, errors.New("knowledge: pool must not be nil")
	}
	if embedder == nil {
		return nil, errors.New("knowledge: embedder must not be nil")
	}
	if dims <= 0 {
		dims = 1536
	}
	return &Store{pool: pool, embedder: embedder, dims: dims}, nil
}

// EnsureSchema creates the extension, table and index if missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS news_chunks (
			id           text PRIMARY KEY,
			source       text NOT NULL,
			title        text NOT NULL,
			url          text NOT NULL,
			content      text NOT NULL,
			published_at timestamptz,
			embedding    vector(%d) NOT NULL,
			created_at   timestamptz NOT NULL DEFAULT now()
		)`, s.dims),
		`CREATE INDEX IF NOT EXISTS news_chunks_embedding_idx
			ON news_chunks USING hnsw (embedding vector_cosine_ops)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert embeds the chunk's content and inserts or replaces it by id
func (s *Store) Upsert(ctx context.Context, chunk Chunk) error {
	vectors, err := s.embedder.Embed(ctx, []string{chunk.Content})
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return fmt.Errorf("empty embedding returned for chunk %q", chunk.ID)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO news_chunks (id, source, title, url, content, published_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			content = EXCLUDED.content,
			published_at = EXCLUDED.published_at,
			embedding = EXCLUDED.embedding`,
		chunk.ID, chunk.Source, chunk.Title, chunk.URL, chunk.Content,
		chunk.PublishedAt, pgvector.NewVector(vectors[0]))
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %q: %w", chunk.ID, err)
	}
	return nil
}

// Search embeds the query and returns the most similar passages
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding returned for query")
	}
	queryVec := pgvector.NewVector(vectors[0])

	sql := `
		SELECT id, source, title, url, content, published_at,
		       1 - (embedding <=> $1) AS similarity
		FROM news_chunks`
	args := []any{queryVec}
	if cfg.source != "" {
		sql += ` WHERE source = $2`
		args = append(args, cfg.source)
	}
	sql += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, cfg.topK)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.Source, &r.Chunk.Title,
			&r.Chunk.URL, &r.Chunk.Content, &r.Chunk.PublishedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	return results, nil
}

// Count returns the number of indexed passages
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM news_chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
