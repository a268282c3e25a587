package server

import (
	"testing"

	"github.com/graylab/fleetsync/internal/registry"
)

func TestDevices_Store(t *testing.T) {
	t.Run("creates device and broadcasts it", func(t *testing.T) {
		s := newTestServer(t)
		c := connect(s)
		other := connect(s)

		data := send(t, s, c, 1, TypeDevicesStore, map[string]any{"name": "Lamp"})
		wantSuccess(t, data)
		dev := data["device"].(map[string]any)
		if dev["name"] != "Lamp" {
			t.Errorf("name = %v, want Lamp", dev["name"])
		}
		if dev["key"] == "" || dev["key"] == nil {
			t.Error("device key missing from response")
		}
		if dev["connected"] != false {
			t.Errorf("connected = %v, want false", dev["connected"])
		}

		env := recvEnvelope(t, other)
		if env.Type != TypeDevicesStore {
			t.Errorf("broadcast type = %q, want %q", env.Type, TypeDevicesStore)
		}
		bdev := decodeEnvData(t, env)["device"].(map[string]any)
		if bdev["id"] != dev["id"] {
			t.Errorf("broadcast device id = %v, want %v", bdev["id"], dev["id"])
		}
		// Broadcast carries the event payload only, no success marker.
		if _, ok := decodeEnvData(t, env)["success"]; ok {
			t.Error("broadcast should not carry a success field")
		}
	})

	t.Run("invalid name fails without broadcast", func(t *testing.T) {
		s := newTestServer(t)
		c := connect(s)
		other := connect(s)

		data := send(t, s, c, 1, TypeDevicesStore, map[string]any{"name": "x"})
		wantError(t, data, "name")
		expectSilence(t, other)
	})
}

func TestDevices_Index(t *testing.T) {
	s := newTestServer(t)
	c := connect(s)

	dev, _ := s.registry.CreateDevice("Lamp")
	s.registry.CreateValue(dev.ID, registry.ValueTypeBoolean, "Power")

	data := send(t, s, c, 1, TypeDevicesIndex, nil)
	wantSuccess(t, data)
	devices := data["devices"].([]any)
	if len(devices) != 1 {
		t.Fatalf("devices len = %d, want 1", len(devices))
	}
	values := devices[0].(map[string]any)["values"].([]any)
	if len(values) != 1 {
		t.Errorf("embedded values len = %d, want 1", len(values))
	}
}

func TestDevices_Update(t *testing.T) {
	s := newTestServer(t)
	c := connect(s)
	other := connect(s)
	dev, _ := s.registry.CreateDevice("Lamp")

	data := send(t, s, c, 1, TypeDevicesUpdate, map[string]any{"id": dev.ID, "name": "Ceiling Lamp"})
	wantSuccess(t, data)
	if got := data["device"].(map[string]any)["name"]; got != "Ceiling Lamp" {
		t.Errorf("name = %v, want Ceiling Lamp", got)
	}
	recvEnvelope(t, other)

	data = send(t, s, c, 2, TypeDevicesUpdate, map[string]any{"id": "nope", "name": "Anything"})
	wantError(t, data, "id")
	expectSilence(t, other)
}

func TestDevices_Delete(t *testing.T) {
	s := newTestServer(t)
	c := connect(s)
	other := connect(s)
	dev, _ := s.registry.CreateDevice("Lamp")
	s.registry.CreateValue(dev.ID, registry.ValueTypeBoolean, "Power")

	data := send(t, s, c, 1, TypeDevicesDelete, map[string]any{"id": dev.ID})
	wantSuccess(t, data)
	if data["id"] != dev.ID {
		t.Errorf("id = %v, want %q", data["id"], dev.ID)
	}

	env := recvEnvelope(t, other)
	if env.Type != TypeDevicesDelete {
		t.Errorf("broadcast type = %q, want %q", env.Type, TypeDevicesDelete)
	}

	// The value survives as an orphan.
	data = send(t, s, c, 2, TypeValuesOrphaned, nil)
	wantSuccess(t, data)
	if orphans := data["values"].([]any); len(orphans) != 1 {
		t.Errorf("orphans len = %d, want 1", len(orphans))
	}
}

func TestDevices_Connect(t *testing.T) {
	t.Run("promotes connection and seeds values", func(t *testing.T) {
		s := newTestServer(t)
		dev, _ := s.registry.CreateDevice("Lamp")
		val, _ := s.registry.CreateValue(dev.ID, registry.ValueTypeBoolean, "Power")

		deviceConn := connect(s)
		observer := connect(s)

		data := send(t, s, deviceConn, 1, TypeDevicesConnect, map[string]any{"key": dev.Key})
		wantSuccess(t, data)
		if data["id"] != dev.ID {
			t.Errorf("id = %v, want %q", data["id"], dev.ID)
		}
		values := data["values"].([]any)
		if len(values) != 1 || values[0].(map[string]any)["id"] != val.ID {
			t.Errorf("values = %v, want the device's single value", values)
		}

		if !deviceConn.IsDevice() || deviceConn.DeviceID() != dev.ID {
			t.Error("connection not promoted to device after connect")
		}
		if !s.registry.ListDevices()[0].Connected {
			t.Error("Connected = false, want true after connect")
		}

		env := recvEnvelope(t, observer)
		if env.Type != TypeDevicesConnect {
			t.Errorf("broadcast type = %q, want %q", env.Type, TypeDevicesConnect)
		}
	})

	t.Run("connect notice excludes device connections", func(t *testing.T) {
		s := newTestServer(t)
		devA, _ := s.registry.CreateDevice("Lamp")
		devB, _ := s.registry.CreateDevice("Fan")

		connA := connect(s)
		send(t, s, connA, 1, TypeDevicesConnect, map[string]any{"key": devA.Key})

		connB := connect(s)
		observer := connect(s)
		send(t, s, connB, 2, TypeDevicesConnect, map[string]any{"key": devB.Key})

		recvEnvelope(t, observer) // observer hears about devB
		expectSilence(t, connA)   // devA's firmware does not
	})

	t.Run("unknown key fails on key field", func(t *testing.T) {
		s := newTestServer(t)
		c := connect(s)

		data := send(t, s, c, 1, TypeDevicesConnect, map[string]any{"key": "bogus"})
		wantError(t, data, "key")
		if c.IsDevice() {
			t.Error("failed connect must not promote the connection")
		}
	})
}

func TestValues_Store(t *testing.T) {
	s := newTestServer(t)
	c := connect(s)
	other := connect(s)
	dev, _ := s.registry.CreateDevice("Lamp")

	data := send(t, s, c, 1, TypeValuesStore, map[string]any{
		"device_id": dev.ID, "type": "int", "name": "Brightness",
	})
	wantSuccess(t, data)
	val := data["value"].(map[string]any)
	if val["value"] != float64(0) {
		t.Errorf("payload = %v, want type default 0", val["value"])
	}
	recvEnvelope(t, other)

	t.Run("unknown type rejected", func(t *testing.T) {
		data := send(t, s, c, 2, TypeValuesStore, map[string]any{
			"device_id": dev.ID, "type": "decimal", "name": "Brightness",
		})
		wantError(t, data, "type")
		expectSilence(t, other)
	})

	t.Run("unknown device rejected", func(t *testing.T) {
		data := send(t, s, c, 3, TypeValuesStore, map[string]any{
			"device_id": "nope", "type": "int", "name": "Brightness",
		})
		wantError(t, data, "device_id")
	})
}

func TestValues_Update(t *testing.T) {
	t.Run("payload update broadcasts to everyone including devices", func(t *testing.T) {
		s := newTestServer(t)
		dev, _ := s.registry.CreateDevice("Lamp")
		val, _ := s.registry.CreateValue(dev.ID, registry.ValueTypeBoolean, "Power")

		ui := connect(s)
		deviceConn := connect(s)
		send(t, s, deviceConn, 1, TypeDevicesConnect, map[string]any{"key": dev.Key})
		recvEnvelope(t, ui) // consume the connect notice

		data := send(t, s, ui, 2, TypeValuesUpdate, map[string]any{"id": val.ID, "value": true})
		wantSuccess(t, data)
		if got := data["value"].(map[string]any)["value"]; got != true {
			t.Errorf("payload = %v, want true", got)
		}

		env := recvEnvelope(t, deviceConn)
		if env.Type != TypeValuesUpdate {
			t.Errorf("broadcast type = %q, want %q", env.Type, TypeValuesUpdate)
		}
		if got := decodeEnvData(t, env)["value"].(map[string]any)["value"]; got != true {
			t.Errorf("broadcast payload = %v, want true", got)
		}
	})

	t.Run("explicit false payload is applied", func(t *testing.T) {
		s := newTestServer(t)
		dev, _ := s.registry.CreateDevice("Lamp")
		val, _ := s.registry.CreateValue(dev.ID, registry.ValueTypeBoolean, "Power")
		s.registry.UpdateValue(val.ID, registry.ValueUpdate{Value: true, HasValue: true})
		c := connect(s)

		data := send(t, s, c, 1, TypeValuesUpdate, map[string]any{"id": val.ID, "value": false})
		wantSuccess(t, data)
		if got := data["value"].(map[string]any)["value"]; got != false {
			t.Errorf("payload = %v, want false", got)
		}
	})

	t.Run("type change resets payload", func(t *testing.T) {
		s := newTestServer(t)
		dev, _ := s.registry.CreateDevice("Lamp")
		val, _ := s.registry.CreateValue(dev.ID, registry.ValueTypeBoolean, "Power")
		s.registry.UpdateValue(val.ID, registry.ValueUpdate{Value: true, HasValue: true})
		c := connect(s)

		data := send(t, s, c, 1, TypeValuesUpdate, map[string]any{"id": val.ID, "type": "string"})
		wantSuccess(t, data)
		got := data["value"].(map[string]any)
		if got["type"] != "string" || got["value"] != "" {
			t.Errorf("value = %v, want string type with empty payload", got)
		}
	})

	t.Run("wrong payload type fails on value field", func(t *testing.T) {
		s := newTestServer(t)
		dev, _ := s.registry.CreateDevice("Lamp")
		val, _ := s.registry.CreateValue(dev.ID, registry.ValueTypeBoolean, "Power")
		c := connect(s)
		other := connect(s)

		data := send(t, s, c, 1, TypeValuesUpdate, map[string]any{"id": val.ID, "value": 42})
		wantError(t, data, "value")
		expectSilence(t, other)
	})
}

func TestValues_Delete(t *testing.T) {
	s := newTestServer(t)
	c := connect(s)
	other := connect(s)
	dev, _ := s.registry.CreateDevice("Lamp")
	val, _ := s.registry.CreateValue(dev.ID, registry.ValueTypeBoolean, "Power")

	data := send(t, s, c, 1, TypeValuesDelete, map[string]any{"id": val.ID})
	wantSuccess(t, data)
	if data["id"] != val.ID || data["device_id"] != dev.ID {
		t.Errorf("response = %v, want id and device_id of the deleted value", data)
	}

	env := recvEnvelope(t, other)
	bdata := decodeEnvData(t, env)
	if bdata["id"] != val.ID || bdata["device_id"] != dev.ID {
		t.Errorf("broadcast = %v, want id and device_id", bdata)
	}
	if _, ok := bdata["success"]; ok {
		t.Error("broadcast should not carry a success field")
	}
}

func TestValues_Index(t *testing.T) {
	s := newTestServer(t)
	c := connect(s)
	dev, _ := s.registry.CreateDevice("Lamp")
	s.registry.CreateValue(dev.ID, registry.ValueTypeBoolean, "Power")

	data := send(t, s, c, 1, TypeValuesIndex, nil)
	wantSuccess(t, data)
	values := data["values"].([]any)
	if len(values) != 1 {
		t.Fatalf("values len = %d, want 1", len(values))
	}
	device := values[0].(map[string]any)["device"]
	if device == nil {
		t.Error("joined device missing from value listing")
	}
}

// TestFleetLifecycle walks the canonical flow end to end: a dashboard
// registers a lamp with a power switch, the lamp's firmware connects
// with its key and seeds state, and a toggle from the dashboard reaches
// the firmware.
func TestFleetLifecycle(t *testing.T) {
	s := newTestServer(t)
	dashboard := connect(s)

	// Dashboard registers the device.
	data := send(t, s, dashboard, 1, TypeDevicesStore, map[string]any{"name": "Lamp"})
	wantSuccess(t, data)
	dev := data["device"].(map[string]any)
	devID := dev["id"].(string)
	devKey := dev["key"].(string)

	// And gives it a boolean power switch.
	data = send(t, s, dashboard, 2, TypeValuesStore, map[string]any{
		"device_id": devID, "type": "boolean", "name": "Power",
	})
	wantSuccess(t, data)
	valID := data["value"].(map[string]any)["id"].(string)

	// Firmware connects with the compiled-in key and learns its values.
	firmware := connect(s)
	data = send(t, s, firmware, 100, TypeDevicesConnect, map[string]any{"key": devKey})
	wantSuccess(t, data)
	values := data["values"].([]any)
	if len(values) != 1 {
		t.Fatalf("seeded values len = %d, want 1", len(values))
	}
	seeded := values[0].(map[string]any)
	if seeded["name"] != "Power" || seeded["value"] != false {
		t.Errorf("seeded value = %v, want Power=false", seeded)
	}

	// Dashboard hears the device came online.
	env := recvEnvelope(t, dashboard)
	if env.Type != TypeDevicesConnect {
		t.Fatalf("dashboard got %q, want %q", env.Type, TypeDevicesConnect)
	}

	// Dashboard flips the switch; firmware receives the new state.
	data = send(t, s, dashboard, 3, TypeValuesUpdate, map[string]any{"id": valID, "value": true})
	wantSuccess(t, data)

	env = recvEnvelope(t, firmware)
	if env.Type != TypeValuesUpdate {
		t.Fatalf("firmware got %q, want %q", env.Type, TypeValuesUpdate)
	}
	pushed := decodeEnvData(t, env)["value"].(map[string]any)
	if pushed["id"] != valID || pushed["value"] != true {
		t.Errorf("pushed value = %v, want Power=true", pushed)
	}

	// Firmware going away flips the device offline and tells the
	// dashboard.
	s.dropClient(firmware)
	env = recvEnvelope(t, dashboard)
	if env.Type != TypeDevicesDisconnect {
		t.Fatalf("dashboard got %q, want %q", env.Type, TypeDevicesDisconnect)
	}
	if s.registry.ListDevices()[0].Connected {
		t.Error("Connected = true, want false after firmware drop")
	}
}
