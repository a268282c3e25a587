package registry

import "time"

// ValueType enumerates the four payload types a Value can carry.
// The type is fixed at creation and only changes through an explicit
// values.update; the stored payload always matches the current type.
type ValueType string

// Supported value types.
const (
	ValueTypeBoolean ValueType = "boolean"
	ValueTypeInt     ValueType = "int"
	ValueTypeFloat   ValueType = "float"
	ValueTypeString  ValueType = "string"
)

// AllValueTypes returns every supported value type.
func AllValueTypes() []ValueType {
	return []ValueType{ValueTypeBoolean, ValueTypeInt, ValueTypeFloat, ValueTypeString}
}

// Default returns the payload a freshly created value of this type holds:
// false, 0, 0.0 or "".
func (t ValueType) Default() any {
	switch t {
	case ValueTypeBoolean:
		return false
	case ValueTypeInt:
		return int64(0)
	case ValueTypeFloat:
		return float64(0)
	case ValueTypeString:
		return ""
	}
	return nil
}

// Device is a registered endpoint in the fleet. The key is derived once at
// creation and never regenerated; Connected tracks whether an
// authenticated connection for this device is currently live.
type Device struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	Connected bool      `json:"connected"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Value is a named, typed datum owned by a device. DeviceID is a soft
// reference: it must resolve at creation time but is not re-checked when
// the device is deleted later.
type Value struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Type      ValueType `json:"type"`
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeviceWithValues is a device annotated with its current values,
// as returned by devices.index.
type DeviceWithValues struct {
	Device
	Values []Value `json:"values"`
}

// ValueWithDevice is a value annotated with its owning device, as returned
// by values.index. Device is nil for orphaned values.
type ValueWithDevice struct {
	Value
	Device *Device `json:"device"`
}
