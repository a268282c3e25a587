package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/graylab/fleetsync/internal/registry"
)

func TestFileStore_LoadMissingFile(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "fleet.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(snap.Devices) != 0 || len(snap.Values) != 0 {
		t.Errorf("Load() on missing file = %+v, want empty snapshot", snap)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()

	reg := registry.New()
	dev, err := reg.CreateDevice("Lamp")
	if err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	val, err := reg.CreateValue(dev.ID, registry.ValueTypeInt, "Brightness")
	if err != nil {
		t.Fatalf("CreateValue() error = %v", err)
	}
	if _, err := reg.UpdateValue(val.ID, registry.ValueUpdate{Value: 80, HasValue: true}); err != nil {
		t.Fatalf("UpdateValue() error = %v", err)
	}

	devices, values := reg.Snapshot()
	if err := store.Save(ctx, &Snapshot{Devices: devices, Values: values}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Devices) != 1 || len(loaded.Values) != 1 {
		t.Fatalf("Load() = %d devices, %d values; want 1 and 1", len(loaded.Devices), len(loaded.Values))
	}
	if loaded.Devices[0].Key != dev.Key {
		t.Errorf("Key = %q, want %q", loaded.Devices[0].Key, dev.Key)
	}

	// The registry canonicalises JSON-decoded payloads on restore.
	reg2 := registry.New()
	reg2.Restore(loaded.Devices, loaded.Values)
	if got := reg2.ListValues()[0].Value.Value; got != int64(80) {
		t.Errorf("restored payload = %v (%T), want int64(80)", got, got)
	}
}

func TestFileStore_SaveReplacesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, &Snapshot{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, &Snapshot{}); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}

func TestNewFileStore_RequiresPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("NewFileStore(\"\") error = nil, want error")
	}
}
