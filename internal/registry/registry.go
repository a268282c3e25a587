package registry

import (
	"sort"
	"sync"
	"time"
)

// Logger is the minimal logging interface the registry needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry owns the authoritative device and value collections.
//
// A single mutex serialises every operation so find-then-mutate sequences
// cannot race across connections. Mutations set a dirty flag that the
// storage flusher consumes on its heartbeat; the registry itself never
// touches disk.
//
// All public methods are thread-safe and return copies, never internal
// pointers.
type Registry struct {
	mu      sync.Mutex
	devices map[string]*Device
	values  map[string]*Value
	dirty   bool
	newID   IDFunc
	logger  Logger
}

// New creates an empty registry using GenerateID for new identifiers.
func New() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		values:  make(map[string]*Value),
		newID:   GenerateID,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetIDFunc overrides the identifier generator. Intended for tests.
func (r *Registry) SetIDFunc(fn IDFunc) {
	r.newID = fn
}

// ListDevices returns all devices, each annotated with its current
// values, ordered by creation time.
func (r *Registry) ListDevices() []DeviceWithValues {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DeviceWithValues, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, DeviceWithValues{
			Device: *d,
			Values: r.valuesForLocked(d.ID),
		})
	}
	sort.Slice(out, func(i, j int) bool { return less(&out[i].Device, &out[j].Device) })
	return out
}

// ListValues returns all values, each annotated with its owning device,
// ordered by creation time. Orphaned values carry a nil device.
func (r *Registry) ListValues() []ValueWithDevice {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ValueWithDevice, 0, len(r.values))
	for _, v := range r.values {
		vw := ValueWithDevice{Value: *v}
		if d, ok := r.devices[v.DeviceID]; ok {
			dev := *d
			vw.Device = &dev
		}
		out = append(out, vw)
	}
	sort.Slice(out, func(i, j int) bool { return lessValue(&out[i].Value, &out[j].Value) })
	return out
}

// ValuesForDevice returns the values owned by the given device, ordered
// by creation time. An unknown device id yields an empty slice.
func (r *Registry) ValuesForDevice(deviceID string) []Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.valuesForLocked(deviceID)
}

// OrphanValues returns values whose device no longer exists. Device
// deletion does not cascade, so this is the cleanup-tooling view of the
// leftovers.
func (r *Registry) OrphanValues() []Value {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Value
	for _, v := range r.values {
		if _, ok := r.devices[v.DeviceID]; !ok {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessValue(&out[i], &out[j]) })
	return out
}

// CreateDevice registers a new device. The id is allocated here and the
// key derived from it; both are immutable for the lifetime of the device.
func (r *Registry) CreateDevice(name string) (*Device, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	id := r.newID()
	d := &Device{
		ID:        id,
		Name:      name,
		Key:       DeriveKey(id),
		Connected: false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.devices[id] = d
	r.dirty = true

	r.logger.Info("device created", "id", d.ID, "name", d.Name)
	dev := *d
	return &dev, nil
}

// UpdateDevice renames a device. A nil name leaves it untouched; an
// out-of-range name fails and leaves the device unmodified.
func (r *Registry) UpdateDevice(id string, name *string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, errField("id")
	}

	if name != nil {
		if err := ValidateName(*name); err != nil {
			return nil, err
		}
		d.Name = *name
		d.UpdatedAt = time.Now().UTC()
		r.dirty = true
	}

	r.logger.Info("device updated", "id", d.ID, "name", d.Name)
	dev := *d
	return &dev, nil
}

// DeleteDevice removes a device. Values referencing it are left in place
// as orphans; see OrphanValues.
func (r *Registry) DeleteDevice(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[id]; !ok {
		return errField("id")
	}
	delete(r.devices, id)
	r.dirty = true

	r.logger.Info("device deleted", "id", id)
	return nil
}

// FindDeviceByKey resolves a device by its authentication key. An unknown
// key fails under the "key" field.
func (r *Registry) FindDeviceByKey(key string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.devices {
		if d.Key == key {
			dev := *d
			return &dev, nil
		}
	}
	return nil, errField("key")
}

// SetConnected flips a device's connected flag. Called by the connection
// hub on devices.connect and on transport close.
func (r *Registry) SetConnected(id string, connected bool) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, errField("id")
	}
	d.Connected = connected
	d.UpdatedAt = time.Now().UTC()
	r.dirty = true

	r.logger.Debug("device connection state changed", "id", id, "connected", connected)
	dev := *d
	return &dev, nil
}

// CreateValue attaches a new value to an existing device. The payload
// starts at the type's default (false / 0 / 0.0 / "").
func (r *Registry) CreateValue(deviceID string, typ ValueType, name string) (*Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[deviceID]; !ok {
		return nil, errField("device_id")
	}
	if err := ValidateValueType(typ); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	v := &Value{
		ID:        r.newID(),
		DeviceID:  deviceID,
		Type:      typ,
		Name:      name,
		Value:     typ.Default(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.values[v.ID] = v
	r.dirty = true

	r.logger.Info("value created", "id", v.ID, "device_id", deviceID, "type", typ, "name", name)
	val := *v
	return &val, nil
}

// ValueUpdate carries the optional fields of a values.update request.
// HasValue distinguishes an absent payload from an explicit null.
type ValueUpdate struct {
	Type     *ValueType
	Name     *string
	Value    any
	HasValue bool
}

// UpdateValue applies the present fields of upd in order: type, name,
// value. Fields are applied one at a time and each successful change
// marks the registry dirty on its own; a later field failing validation
// does NOT roll back earlier changes from the same call. Callers relying
// on all-or-nothing semantics must send one field per message.
//
// Changing the type resets the payload to the new type's default; a value
// in the same message is then validated against the new type. The payload
// is always validated and coerced against the value's current type.
func (r *Registry) UpdateValue(id string, upd ValueUpdate) (*Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.values[id]
	if !ok {
		return nil, errField("id")
	}

	if upd.Type != nil {
		if err := ValidateValueType(*upd.Type); err != nil {
			return nil, err
		}
		if *upd.Type != v.Type {
			v.Type = *upd.Type
			v.Value = v.Type.Default()
		}
		v.UpdatedAt = time.Now().UTC()
		r.dirty = true
	}

	if upd.Name != nil {
		if err := ValidateName(*upd.Name); err != nil {
			return nil, err
		}
		v.Name = *upd.Name
		v.UpdatedAt = time.Now().UTC()
		r.dirty = true
	}

	if upd.HasValue {
		coerced, err := CoerceValue(v.Type, upd.Value)
		if err != nil {
			return nil, err
		}
		v.Value = coerced
		v.UpdatedAt = time.Now().UTC()
		r.dirty = true
	}

	r.logger.Debug("value updated", "id", v.ID, "name", v.Name)
	val := *v
	return &val, nil
}

// DeleteValue removes a value and returns its last state, so callers can
// report the owning device_id.
func (r *Registry) DeleteValue(id string) (*Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.values[id]
	if !ok {
		return nil, errField("id")
	}
	delete(r.values, id)
	r.dirty = true

	r.logger.Info("value deleted", "id", id, "device_id", v.DeviceID)
	val := *v
	return &val, nil
}

// Counts returns the number of devices and values currently registered.
func (r *Registry) Counts() (devices, values int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices), len(r.values)
}

// ConsumeDirty reports whether any mutation happened since the last call
// and clears the flag. The storage flusher is the only intended caller.
func (r *Registry) ConsumeDirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.dirty
	r.dirty = false
	return d
}

// MarkDirty re-arms the dirty flag. The flusher uses it to schedule a
// retry after a failed write, keeping the in-memory state authoritative.
func (r *Registry) MarkDirty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty = true
}

// Snapshot returns copies of all devices and values in creation order,
// ready for durable serialisation.
func (r *Registry) Snapshot() (devices []Device, values []Value) {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices = make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d)
	}
	sort.Slice(devices, func(i, j int) bool { return less(&devices[i], &devices[j]) })

	values = make([]Value, 0, len(r.values))
	for _, v := range r.values {
		values = append(values, *v)
	}
	sort.Slice(values, func(i, j int) bool { return lessValue(&values[i], &values[j]) })
	return devices, values
}

// Restore seeds the registry from a durable snapshot. Existing state is
// replaced, connected flags are reset (no connection survives a restart)
// and the dirty flag is left unset.
func (r *Registry) Restore(devices []Device, values []Value) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		d.Connected = false
		r.devices[d.ID] = &d
	}
	r.values = make(map[string]*Value, len(values))
	for i := range values {
		v := values[i]
		if coerced, err := CoerceValue(v.Type, v.Value); err == nil {
			v.Value = coerced
		} else {
			v.Value = v.Type.Default()
		}
		r.values[v.ID] = &v
	}
	r.dirty = false

	r.logger.Info("registry restored", "devices", len(devices), "values", len(values))
}

// valuesForLocked collects the values for one device. Caller holds r.mu.
func (r *Registry) valuesForLocked(deviceID string) []Value {
	out := make([]Value, 0)
	for _, v := range r.values {
		if v.DeviceID == deviceID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessValue(&out[i], &out[j]) })
	return out
}

func less(a, b *Device) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func lessValue(a, b *Value) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
