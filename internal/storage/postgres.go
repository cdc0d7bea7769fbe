package storage

import (
	"context"
	"fmt"
)

// PostgresStore keeps snapshots in Postgres with pgvector columns.
type PostgresStore struct {
	db     *DB
	docs   *DocumentRepo
	chunks *ChunkRepo
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := NewDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db, docs: NewDocumentRepo(db), chunks: NewChunkRepo(db)}, nil
}

func (s *PostgresStore) SaveDocument(ctx context.Context, snap DocumentSnapshot) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.docs.upsert(ctx, tx, snap.Document, snap.Generation); err != nil {
		return err
	}
	if err := s.chunks.replace(ctx, tx, snap.Document.DocumentID, snap.Generation, snap.Entries); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot of %s: %w", snap.Document.DocumentID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	return s.docs.Delete(ctx, documentID)
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]DocumentSnapshot, error) {
	snaps, err := s.docs.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range snaps {
		entries, err := s.chunks.ListByDocument(ctx, snaps[i].Document.DocumentID)
		if err != nil {
			return nil, err
		}
		snaps[i].Entries = entries
	}
	return snaps, nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
