package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"sitemap-watch/pkg/logger"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendKV     = "kv"
	BackendMemory = "memory"
)

// NewFromConfig builds the configured backend wrapped in a FallbackStore.
// If the backend cannot even be constructed the process runs on memory only.
func NewFromConfig(ctx context.Context, cfg StorageConfig) SnapshotStore {
	log := logger.GetLogger().WithField("component", "storage_factory")

	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendFile
	}
	if backend == BackendMemory {
		log.Info("Using in-memory snapshot store")
		return NewMemoryStore()
	}

	primary, err := newBackend(ctx, backend, cfg)
	if err != nil {
		log.WithError(err).WithField("backend", backend).Error("Failed to initialize snapshot backend, falling back to memory")
		return NewMemoryStore()
	}

	log.WithField("backend", backend).Info("Snapshot store initialized")
	return NewFallbackStore(backend, primary, NewMemoryStore())
}

func newBackend(ctx context.Context, backend string, cfg StorageConfig) (SnapshotStore, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}

	switch backend {
	case BackendFile:
		return NewFileStore(dataDir)
	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(dataDir, "snapshots.db")
		}
		return NewSQLiteStore(ctx, path)
	case BackendKV:
		return NewKVStore(cfg.KV)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
