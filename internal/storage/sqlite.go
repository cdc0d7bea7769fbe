package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"sniprag/internal/index"
	"sniprag/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
  document_id TEXT PRIMARY KEY,
  state       TEXT NOT NULL,
  strategy    TEXT NOT NULL,
  generation  INTEGER NOT NULL,
  pages       TEXT NOT NULL DEFAULT '[]',
  chunk_count INTEGER NOT NULL DEFAULT 0,
  fail_reason TEXT NOT NULL DEFAULT '',
  diagnostics TEXT NOT NULL DEFAULT '[]',
  sha256      TEXT NOT NULL DEFAULT '',
  updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
  chunk_id    TEXT PRIMARY KEY,
  document_id TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
  generation  INTEGER NOT NULL,
  page        INTEGER NOT NULL,
  chunk_index INTEGER NOT NULL,
  chunk_kind  TEXT NOT NULL,
  strategy    TEXT NOT NULL,
  x0 REAL NOT NULL,
  y0 REAL NOT NULL,
  x1 REAL NOT NULL,
  y1 REAL NOT NULL,
  text        TEXT NOT NULL,
  vector      BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, page, chunk_index);
`

// SQLiteStore keeps snapshots in a single local database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode=WAL&_pragma=synchronous=NORMAL&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, snap DocumentSnapshot) error {
	d := snap.Document
	pages, err := json.Marshal(d.Pages)
	if err != nil {
		return fmt.Errorf("encode pages: %w", err)
	}
	diags, err := json.Marshal(d.Diagnostics)
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO documents (document_id, state, strategy, generation, pages, chunk_count, fail_reason, diagnostics, sha256, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET
  state = excluded.state,
  strategy = excluded.strategy,
  generation = excluded.generation,
  pages = excluded.pages,
  chunk_count = excluded.chunk_count,
  fail_reason = excluded.fail_reason,
  diagnostics = excluded.diagnostics,
  sha256 = excluded.sha256,
  updated_at = excluded.updated_at`,
		d.DocumentID, string(d.State), string(d.Strategy), int64(snap.Generation), string(pages), d.ChunkCount,
		d.FailReason, string(diags), d.SHA256, d.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", d.DocumentID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, d.DocumentID); err != nil {
		return fmt.Errorf("clear chunks of %s: %w", d.DocumentID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (chunk_id, document_id, generation, page, chunk_index, chunk_kind, strategy, x0, y0, x1, y1, text, vector)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range snap.Entries {
		m := e.Metadata
		if _, err := stmt.ExecContext(ctx, e.ChunkID, d.DocumentID, int64(snap.Generation), m.Page, m.ChunkIndex,
			string(m.ChunkKind), string(m.Strategy), m.BBox.X0, m.BBox.Y0, m.BBox.X1, m.BBox.Y1, e.Text,
			vectorToBlob(e.Vector)); err != nil {
			return fmt.Errorf("insert chunk %s: %w", e.ChunkID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot of %s: %w", d.DocumentID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]DocumentSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT document_id, state, strategy, generation, pages, chunk_count, fail_reason, diagnostics, sha256, updated_at
FROM documents
ORDER BY document_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]DocumentSnapshot, 0)
	for rows.Next() {
		var (
			snap                  DocumentSnapshot
			state, strat, updated string
			pages, diags          string
			gen                   int64
		)
		d := &snap.Document
		if err := rows.Scan(&d.DocumentID, &state, &strat, &gen, &pages, &d.ChunkCount, &d.FailReason, &diags, &d.SHA256, &updated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.State = models.DocumentState(state)
		d.Strategy = models.Strategy(strat)
		d.Generation = uint64(gen)
		snap.Generation = uint64(gen)
		if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			d.UpdatedAt = t
		}
		if err := json.Unmarshal([]byte(pages), &d.Pages); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode pages of %s: %w", d.DocumentID, err)
		}
		if err := json.Unmarshal([]byte(diags), &d.Diagnostics); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode diagnostics of %s: %w", d.DocumentID, err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	rows.Close()

	for i := range out {
		entries, err := s.listChunks(ctx, out[i].Document.DocumentID)
		if err != nil {
			return nil, err
		}
		out[i].Entries = entries
	}
	return out, nil
}

func (s *SQLiteStore) listChunks(ctx context.Context, documentID string) ([]index.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT chunk_id, generation, page, chunk_index, chunk_kind, strategy, x0, y0, x1, y1, text, vector
FROM chunks
WHERE document_id = ?
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
			blob        []byte
		)
		m := &e.Metadata
		if err := rows.Scan(&e.ChunkID, &gen, &m.Page, &m.ChunkIndex, &kind, &strat,
			&m.BBox.X0, &m.BBox.Y0, &m.BBox.X1, &m.BBox.Y1, &e.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		vec, err := blobToVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decode vector of %s: %w", e.ChunkID, err)
		}
		m.DocumentID = documentID
		m.ChunkKind = models.ChunkKind(kind)
		m.Strategy = models.Strategy(strat)
		e.Generation = uint64(gen)
		e.Vector = vec
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func vectorToBlob(v []float32) []byte {
	blob := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(blob[i*4:i*4+4], math.Float32bits(f))
	}
	return blob
}

func blobToVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob size %d is not a multiple of 4", len(blob))
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return v, nil
}
