package storage

import (
	"context"
	"time"
)

// SnapshotStore persists snapshots keyed by (normalized site, time period).
// Load and LoadMostRecentBefore return (nil, nil) when nothing matches.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot *Snapshot) error
	Load(ctx context.Context, site, timePeriod string) (*Snapshot, error)
	LoadMostRecentBefore(ctx context.Context, site, excludingPeriod string) (*Snapshot, error)
	ListTimePeriods(ctx context.Context, site string) ([]string, error)
	ListSites(ctx context.Context) ([]string, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Closer is implemented by stores holding external resources.
type Closer interface {
	Close() error
}

type KVConfig struct {
	AccountID   string        `mapstructure:"account_id"`
	APIToken    string        `mapstructure:"api_token"`
	NamespaceID string        `mapstructure:"namespace_id"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Backend       string   `mapstructure:"backend"`
	DataDir       string   `mapstructure:"data_dir"`
	SQLitePath    string   `mapstructure:"sqlite_path"`
	RetentionDays int      `mapstructure:"retention_days"`
	KV            KVConfig `mapstructure:"kv"`
}
