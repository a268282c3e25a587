package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"github.com/graylab/fleetsync/internal/registry"
)

// SQLiteStore persists snapshots in a SQLite database. Like the file
// store it holds whole snapshots, not incremental rows: each save replaces
// both tables inside one transaction. Useful where an installation already
// ships SQLite tooling and wants durable state it can query directly.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS devices (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	key        TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS device_values (
	id         TEXT PRIMARY KEY,
	device_id  TEXT NOT NULL,
	type       TEXT NOT NULL,
	name       TEXT NOT NULL,
	value      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// OpenSQLiteStore opens (and initialises) a SQLite-backed store at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: sqlite path is required")
	}

	// WAL keeps readers from blocking the flush; the busy timeout covers
	// concurrent inspection with the sqlite3 CLI.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite store: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads the full snapshot. Empty tables yield an empty snapshot.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, key, created_at, updated_at FROM devices ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d deviceRow
		if err := rows.Scan(&d.id, &d.name, &d.key, &d.createdAt, &d.updatedAt); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		dev, err := d.toDevice()
		if err != nil {
			return nil, err
		}
		snap.Devices = append(snap.Devices, dev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	vrows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, type, name, value, created_at, updated_at FROM device_values ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying values: %w", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var v valueRow
		if err := vrows.Scan(&v.id, &v.deviceID, &v.typ, &v.name, &v.value, &v.createdAt, &v.updatedAt); err != nil {
			return nil, fmt.Errorf("scanning value: %w", err)
		}
		val, err := v.toValue()
		if err != nil {
			return nil, err
		}
		snap.Values = append(snap.Values, val)
	}
	if err := vrows.Err(); err != nil {
		return nil, fmt.Errorf("iterating values: %w", err)
	}

	return snap, nil
}

// Save replaces both tables with the snapshot's contents in one
// transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM devices`); err != nil {
		return fmt.Errorf("clearing devices: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM device_values`); err != nil {
		return fmt.Errorf("clearing values: %w", err)
	}

	for i := range snap.Devices {
		d := &snap.Devices[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO devices (id, name, key, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			d.ID, d.Name, d.Key, d.CreatedAt.Format(time.RFC3339Nano), d.UpdatedAt.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("inserting device %s: %w", d.ID, err)
		}
	}

	for i := range snap.Values {
		v := &snap.Values[i]
		payload, err := json.Marshal(v.Value)
		if err != nil {
			return fmt.Errorf("encoding value payload %s: %w", v.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO device_values (id, device_id, type, name, value, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.DeviceID, string(v.Type), v.Name, string(payload),
			v.CreatedAt.Format(time.RFC3339Nano), v.UpdatedAt.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("inserting value %s: %w", v.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// deviceRow and valueRow are scan targets; timestamps and payloads are
// stored as text and decoded here.

type deviceRow struct {
	id, name, key        string
	createdAt, updatedAt string
}

func (d *deviceRow) toDevice() (registry.Device, error) {
	created, err := time.Parse(time.RFC3339Nano, d.createdAt)
	if err != nil {
		return registry.Device{}, fmt.Errorf("parsing device created_at: %w", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, d.updatedAt)
	if err != nil {
		return registry.Device{}, fmt.Errorf("parsing device updated_at: %w", err)
	}
	return registry.Device{
		ID:        d.id,
		Name:      d.name,
		Key:       d.key,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

type valueRow struct {
	id, deviceID, typ, name, value string
	createdAt, updatedAt           string
}

func (v *valueRow) toValue() (registry.Value, error) {
	created, err := time.Parse(time.RFC3339Nano, v.createdAt)
	if err != nil {
		return registry.Value{}, fmt.Errorf("parsing value created_at: %w", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, v.updatedAt)
	if err != nil {
		return registry.Value{}, fmt.Errorf("parsing value updated_at: %w", err)
	}
	var payload any
	if err := json.Unmarshal([]byte(v.value), &payload); err != nil {
		return registry.Value{}, fmt.Errorf("parsing value payload: %w", err)
	}
	return registry.Value{
		ID:        v.id,
		DeviceID:  v.deviceID,
		Type:      registry.ValueType(v.typ),
		Name:      v.name,
		Value:     payload,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}
