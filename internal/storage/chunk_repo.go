package storage

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"sniprag/internal/index"
	"sniprag/internal/models"
)

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// replace swaps the stored chunks of a document for entries.
func (r *ChunkRepo) replace(ctx context.Context, q querier, documentID string, generation uint64, entries []index.Entry) error {
	if _, err := q.Exec(ctx, `DELETE FROM chunks WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("clear chunks of %s: %w", documentID, err)
	}
	for _, e := range entries {
		_, err := q.Exec(ctx, `
INSERT INTO chunks (chunk_id, document_id, generation, page, chunk_index, chunk_kind, strategy, x0, y0, x1, y1, text, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			chunkArgs(documentID, generation, e)...,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", e.ChunkID, err)
		}
	}
	return nil
}

// chunkArgs lists the insert parameters of one entry. The embedding goes
// through pgvector.Vector, the type rows are scanned back into.
func chunkArgs(documentID string, generation uint64, e index.Entry) []any {
	m := e.Metadata
	return []any{
		e.ChunkID, documentID, int64(generation), m.Page, m.ChunkIndex, string(m.ChunkKind), string(m.Strategy),
		m.BBox.X0, m.BBox.Y0, m.BBox.X1, m.BBox.Y1, e.Text, pgvector.NewVector(e.Vector),
	}
}

// ListByDocument returns stored entries ordered by page and chunk index.
func (r *ChunkRepo) ListByDocument(ctx context.Context, documentID string) ([]index.Entry, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT chunk_id, generation, page, chunk_index, chunk_kind, strategy, x0, y0, x1, y1, text, embedding::text
FROM chunks
WHERE document_id=$1
ORDER BY page ASC, chunk_index ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks by document: %w", err)
	}
	defer rows.Close()

	out := make([]index.Entry, 0, 64)
	for rows.Next() {
		var (
			e           index.Entry
			gen         int64
			kind, strat string
			vec         pgvector.Vector
		)
		m := &e.Metadata
		if err := rows.Scan(&e.ChunkID, &gen, &m.Page, &m.ChunkIndex, &kind, &strat,
			&m.BBox.X0, &m.BBox.Y0, &m.BBox.X1, &m.BBox.Y1, &e.Text, &vec); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		m.DocumentID = documentID
		m.ChunkKind = models.ChunkKind(kind)
		m.Strategy = models.Strategy(strat)
		e.Generation = uint64(gen)
		e.Vector = vec.Slice()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
