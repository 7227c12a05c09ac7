package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"chatanything/model"
	"chatanything/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkStorer is the chunk table: rows of (chunk, relative_path, category).
type ChunkStorer interface {
	InsertChunk(context.Context, types.ChunkRecord) error
	DistinctPaths(context.Context) ([]string, error)
	DistinctCategories(context.Context) ([]types.Category, error)
	DeleteByPath(context.Context, string) error
}

// Searcher is the search service over the chunk table.
type Searcher interface {
	Search(context.Context, types.SearchQuery) ([]types.SearchResult, error)
}

// Backend is a chunk table together with its search service.
type Backend interface {
	ChunkStorer
	Searcher
	Close() error
}

// Table is the chunk table name shared by every deployment.
const Table = "docs_chunks_table"

type PostgresStore struct {
	pool         *pgxpool.Pool
	embedder     model.Embedder
	embeddingDim int
	logger       *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, embedder model.Embedder, embeddingDim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:         pool,
		embedder:     embedder,
		embeddingDim: embeddingDim,
		logger:       slog.Default().With("component", "postgres"),
	}, nil
}

func (p *PostgresStore) InsertChunk(ctx context.Context, c types.ChunkRecord) error {
	embedding, err := p.embedder.Embed(ctx, c.Text)
	if err != nil {
		return fmt.Errorf("embed chunk: %w", err)
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	query := `INSERT INTO ` + Table + ` (id, chunk, relative_path, category, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = p.pool.Exec(ctx, query,
		c.ID, c.Text, c.SourcePath, string(c.Category), pgvector.NewVector(embedding), time.Now().UTC(),
	)
	return err
}

func (p *PostgresStore) DistinctPaths(ctx context.Context) ([]string, error) {
	return p.distinct(ctx, "relative_path")
}

func (p *PostgresStore) DistinctCategories(ctx context.Context) ([]types.Category, error) {
	values, err := p.distinct(ctx, "category")
	if err != nil {
		return nil, err
	}
	out := make([]types.Category, len(values))
	for i, v := range values {
		out[i] = types.Category(v)
	}
	return out, nil
}

func (p *PostgresStore) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := p.pool.Query(ctx, "SELECT DISTINCT "+column+" FROM "+Table+" ORDER BY "+column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DeleteByPath(ctx context.Context, path string) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM "+Table+" WHERE relative_path = $1", path)
	if err != nil {
		return err
	}
	p.logger.Info("deleted chunks", "path", path, "rows", tag.RowsAffected())
	return nil
}

func (p *PostgresStore) Search(ctx context.Context, q types.SearchQuery) ([]types.SearchResult, error) {
	if err := checkColumns(q.Columns); err != nil {
		return nil, err
	}
	queryVec, err := p.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(queryVec) == 0 {
		return nil, errors.New("empty query vector")
	}

	args := []any{pgvector.NewVector(queryVec), limitOrDefault(q.Limit)}
	where := "embedding IS NOT NULL"
	if q.Category != "" {
		where += " AND category = $3"
		args = append(args, string(q.Category))
	}
	query := `
		SELECT id, chunk, relative_path, category, 1 - (embedding <=> $1) AS score
		FROM ` + Table + `
		WHERE ` + where + `
		ORDER BY embedding <=> $1
		LIMIT $2`

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	if q.Category != "" {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", filteredEfSearch)); err != nil {
			return nil, err
		}
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.SearchResult
	for rows.Next() {
		var (
			r        types.SearchResult
			category string
		)
		if err := rows.Scan(&r.ID, &r.Text, &r.SourcePath, &category, &r.Score); err != nil {
			return nil, err
		}
		r.Category = types.Category(category)
		p.logger.Debug("search hit", "path", r.SourcePath, "score", r.Score)
		results = append(results, r)
	}
	return results, rows.Err()
}

// filteredEfSearch widens the HNSW candidate list for category-filtered
// searches, which drop candidates after the index scan.
const filteredEfSearch = 200

// schemaSQL creates the chunk table and its indexes. An ivfflat index left by
// older schemas is replaced with HNSW.
func schemaSQL(table string, dim int) string {
	return fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS %[1]s (
		id UUID PRIMARY KEY,
		chunk TEXT NOT NULL,
		relative_path TEXT NOT NULL CHECK (relative_path <> ''),
		category TEXT NOT NULL CHECK (category <> ''),
		embedding vector(%[2]d),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT now()
	);

	DROP INDEX IF EXISTS idx_%[1]s_embedding;
	CREATE INDEX IF NOT EXISTS idx_%[1]s_embedding_hnsw ON %[1]s USING hnsw (embedding vector_cosine_ops);

	CREATE INDEX IF NOT EXISTS idx_%[1]s_relative_path ON %[1]s(relative_path);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_category ON %[1]s(category);
	`, table, dim)
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL(Table, p.embeddingDim))
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool is closed")
	}
	return nil
}

func checkColumns(columns []string) error {
	for _, c := range columns {
		if !slices.Contains(types.SearchColumns, c) {
			return fmt.Errorf("unknown search column %q", c)
		}
	}
	return nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 3
	}
	return limit
}
