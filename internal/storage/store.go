// Package storage persists registry snapshots.
//
// The registry stays authoritative in memory; storage only sees whole
// snapshots. A Flusher heartbeat checks the registry dirty flag on a
// fixed interval and rewrites the durable form when anything changed.
// Two backends exist: a single JSON document on disk (the default) and a
// SQLite database for installations that already run one.
package storage

import (
	"context"

	"github.com/graylab/fleetsync/internal/registry"
)

// Snapshot is the durable form of the registry: every device and every
// value, rewritten in full on each flush.
type Snapshot struct {
	Devices []registry.Device `json:"devices"`
	Values  []registry.Value  `json:"values"`
}

// Store reads and writes registry snapshots.
//
// Load on a store that has never been written returns an empty snapshot,
// not an error: first boot seeds an empty registry.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Close() error
}

// Logger is the minimal logging interface storage needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
