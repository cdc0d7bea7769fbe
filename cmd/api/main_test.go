package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sniprag/internal/config"
	"sniprag/internal/logging"
	"sniprag/internal/storage"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Defaults()
	cfg.APIAddr = "127.0.0.1:0"
	cfg.DataInRoot = ""
	cfg.SnapshotBackend = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "sniprag.db")
	return cfg
}

func TestRunReturnsStartupErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Strategy = "vision"
	err := run(context.Background(), cfg, logging.Discard())
	require.ErrorContains(t, err, "start engine")
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	cfg := testConfig(t)
	cfg.SnapshotBackend = "none"
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, run(ctx, cfg, logging.Discard()))
}

func TestRunClosesStoreOnStartupError(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Restore fails on the canceled context after the store is open.
	require.ErrorContains(t, run(ctx, cfg, logging.Discard()), "restore snapshots")

	st, err := storage.OpenSQLite(cfg.SQLitePath)
	require.NoError(t, err)
	require.NoError(t, st.Close())
}
