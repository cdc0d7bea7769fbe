package storage

import (
	"context"

	"sniprag/internal/index"
	"sniprag/internal/models"
)

// DocumentSnapshot is everything needed to bring one document back into the
// index after a restart: its record and the entries of its live generation.
type DocumentSnapshot struct {
	Document   models.Document
	Generation uint64
	Entries    []index.Entry
}

// SnapshotStore persists document generations. SaveDocument replaces the
// stored generation of a document atomically.
type SnapshotStore interface {
	SaveDocument(ctx context.Context, snap DocumentSnapshot) error
	DeleteDocument(ctx context.Context, documentID string) error
	LoadAll(ctx context.Context) ([]DocumentSnapshot, error)
	Close() error
}
