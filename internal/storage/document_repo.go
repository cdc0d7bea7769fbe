package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"sniprag/internal/models"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) upsert(ctx context.Context, q querier, d models.Document, generation uint64) error {
	pages, err := json.Marshal(d.Pages)
	if err != nil {
		return fmt.Errorf("encode pages: %w", err)
	}
	diags, err := json.Marshal(d.Diagnostics)
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}
	_, err = q.Exec(ctx, `
INSERT INTO documents (document_id, state, strategy, generation, pages, chunk_count, fail_reason, diagnostics, sha256, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), $8, NULLIF($9,''), $10)
ON CONFLICT (document_id)
DO UPDATE SET
  state = EXCLUDED.state,
  strategy = EXCLUDED.strategy,
  generation = EXCLUDED.generation,
  pages = EXCLUDED.pages,
  chunk_count = EXCLUDED.chunk_count,
  fail_reason = EXCLUDED.fail_reason,
  diagnostics = EXCLUDED.diagnostics,
  sha256 = EXCLUDED.sha256,
  updated_at = EXCLUDED.updated_at`,
		d.DocumentID, string(d.State), string(d.Strategy), int64(generation), pages, d.ChunkCount, d.FailReason, diags, d.SHA256, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", d.DocumentID, err)
	}
	return nil
}

func (r *DocumentRepo) Delete(ctx context.Context, documentID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM documents WHERE document_id=$1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) List(ctx context.Context) ([]DocumentSnapshot, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT document_id, state, strategy, generation, pages, chunk_count, COALESCE(fail_reason,''),
       diagnostics, COALESCE(sha256,''), updated_at
FROM documents
ORDER BY document_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]DocumentSnapshot, 0)
	for rows.Next() {
		var (
			s            DocumentSnapshot
			state, strat string
			gen          int64
			pages, diags []byte
		)
		d := &s.Document
		if err := rows.Scan(&d.DocumentID, &state, &strat, &gen, &pages, &d.ChunkCount, &d.FailReason, &diags, &d.SHA256, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.State = models.DocumentState(state)
		d.Strategy = models.Strategy(strat)
		d.Generation = uint64(gen)
		s.Generation = uint64(gen)
		if err := json.Unmarshal(pages, &d.Pages); err != nil {
			return nil, fmt.Errorf("decode pages of %s: %w", d.DocumentID, err)
		}
		if err := json.Unmarshal(diags, &d.Diagnostics); err != nil {
			return nil, fmt.Errorf("decode diagnostics of %s: %w", d.DocumentID, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}
