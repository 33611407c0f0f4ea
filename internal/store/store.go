// SPDX-License-Identifier: MPL-2.0

// Package store persists transcript chunks and their embeddings in SQLite
// and answers nearest-neighbor queries over them.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"instagent/internal/issue"
)

// DefaultCollection is the collection transcript chunks are indexed under.
const DefaultCollection = "instagram_transcripts"

type (
	// Store is a SQLite-backed chunk index. Safe for concurrent use.
	Store struct {
		db     *sql.DB
		mu     sync.RWMutex
		dbPath string
	}

	// Chunk is one indexed slice of a transcript.
	Chunk struct {
		// ChunkID identifies the chunk, "<pk>_chunk_<seq>".
		ChunkID string
		// Collection groups chunks for querying.
		Collection string
		// Content is the chunk text.
		Content string
		// Embedding is the chunk's embedding vector.
		Embedding []float32
		// Source is the video file name the chunk's transcript came from.
		Source string
		// Seq is the chunk's position within its transcript.
		Seq int
		// CreatedAt is set by the database on insert.
		CreatedAt time.Time
	}

	// ScoredChunk is a query hit with its cosine similarity score.
	ScoredChunk struct {
		Chunk
		Score float64
	}

	// Stats summarizes the index contents.
	Stats struct {
		Chunks int64
		Media  int64
	}
)

// Open creates or opens the chunk index at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("create index directory").
			WithResource(filepath.Dir(path)).
			WithSuggestion("Check directory permissions").
			WithSuggestion("Set pipeline.data_dir to a writable location").
			Wrap(err).
			BuildError()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("open vector store").
			WithResource(path).
			Wrap(err).
			BuildError()
	}

	// modernc's driver serializes access per connection; a single
	// connection avoids SQLITE_BUSY between concurrent writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup
		return nil, issue.NewErrorContext().
			WithOperation("initialize vector store schema").
			WithResource(path).
			WithSuggestion("Delete the file if it is not a chunk index").
			Wrap(err).
			BuildError()
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	pragmas := `
	PRAGMA busy_timeout = 5000;
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = NORMAL;
	`

	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id TEXT NOT NULL UNIQUE,
		collection TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT,
		source TEXT NOT NULL,
		seq INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);

	CREATE TABLE IF NOT EXISTS media (
		pk TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	for _, stmts := range []string{pragmas, schema} {
		if _, err := s.db.Exec(stmts); err != nil {
			return err
		}
	}
	return nil
}

// AddChunks inserts or updates chunks in one transaction. Re-adding a
// chunk_id replaces its content and embedding, so re-running the pipeline
// over the same media is idempotent.
func (s *Store) AddChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, collection, content, embedding, source, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			collection = excluded.collection,
			content = excluded.content,
			embedding = excluded.embedding,
			source = excluded.source,
			seq = excluded.seq`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // statement bound to tx

	for _, c := range chunks {
		embJSON, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding for %s: %w", c.ChunkID, err)
		}
		collection := c.Collection
		if collection == "" {
			collection = DefaultCollection
		}
		if _, err := stmt.ExecContext(ctx, c.ChunkID, collection, c.Content, string(embJSON), c.Source, c.Seq); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// HasMedia reports whether the media with the given primary key has
// already been processed.
func (s *Store) HasMedia(ctx context.Context, pk string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM media WHERE pk = ?", pk).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up media %s: %w", pk, err)
	}
	return true, nil
}

// MarkMedia records a media as processed with its chunk count.
func (s *Store) MarkMedia(ctx context.Context, pk, source string, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media (pk, source, chunk_count)
		VALUES (?, ?, ?)
		ON CONFLICT(pk) DO UPDATE SET
			source = excluded.source,
			chunk_count = excluded.chunk_count,
			processed_at = CURRENT_TIMESTAMP`,
		pk, source, chunkCount)
	if err != nil {
		return fmt.Errorf("failed to mark media %s: %w", pk, err)
	}
	return nil
}

// Count returns the number of chunks in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE collection = ?", collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// Query returns the topK chunks of a collection closest to the given
// embedding by cosine similarity. The scan is linear over the collection,
// which is fine at the scale of one account's transcripts.
func (s *Store) Query(ctx context.Context, collection string, embedding []float32, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = 3
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, collection, content, embedding, source, seq, created_at
		FROM chunks WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var scored []ScoredChunk
	for rows.Next() {
		var c Chunk
		var embJSON string
		if err := rows.Scan(&c.ChunkID, &c.Collection, &c.Content, &embJSON, &c.Source, &c.Seq, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if embJSON != "" {
			if err := json.Unmarshal([]byte(embJSON), &c.Embedding); err != nil {
				return nil, fmt.Errorf("failed to decode embedding for %s: %w", c.ChunkID, err)
			}
		}
		scored = append(scored, ScoredChunk{
			Chunk: c,
			Score: CosineSimilarity(embedding, c.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// GetStats returns index statistics.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&st.Chunks); err != nil {
		return Stats{}, fmt.Errorf("failed to count chunks: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM media").Scan(&st.Media); err != nil {
		return Stats{}, fmt.Errorf("failed to count media: %w", err)
	}
	return st, nil
}

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
