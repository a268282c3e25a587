package storage

import (
	"context"
	"time"

	"github.com/graylab/fleetsync/internal/registry"
)

// DefaultFlushInterval is the heartbeat period between dirty-flag checks.
const DefaultFlushInterval = 5 * time.Second

// Flusher writes registry snapshots to a Store on a steady heartbeat.
//
// Every interval it checks the registry dirty flag; if nothing changed it
// goes back to sleep, otherwise it snapshots and rewrites the durable
// state. A failed write is logged, the dirty flag is re-armed and the
// next beat retries; the in-memory registry always stays authoritative
// and write failures never surface to connections.
type Flusher struct {
	store    Store
	reg      *registry.Registry
	interval time.Duration
	logger   Logger
}

// NewFlusher creates a flusher. A non-positive interval falls back to
// DefaultFlushInterval.
func NewFlusher(store Store, reg *registry.Registry, interval time.Duration, logger Logger) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Flusher{
		store:    store,
		reg:      reg,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, flushing on each heartbeat. On
// shutdown it performs one final flush so mutations from the last
// interval are not lost.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.logger.Info("persistence heartbeat started", "interval", f.interval)
	for {
		select {
		case <-ctx.Done():
			f.flushOnce(context.Background())
			f.logger.Info("persistence heartbeat stopped")
			return
		case <-ticker.C:
			f.flushOnce(ctx)
		}
	}
}

// flushOnce writes a snapshot if the registry changed since the last
// beat.
func (f *Flusher) flushOnce(ctx context.Context) {
	if !f.reg.ConsumeDirty() {
		return
	}

	devices, values := f.reg.Snapshot()
	if err := f.store.Save(ctx, &Snapshot{Devices: devices, Values: values}); err != nil {
		// Re-arm so the next heartbeat retries with current state.
		f.reg.MarkDirty()
		f.logger.Error("snapshot write failed", "error", err)
		return
	}
	f.logger.Debug("snapshot written", "devices", len(devices), "values", len(values))
}
