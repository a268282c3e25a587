package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/graylab/fleetsync/internal/infrastructure/config"
	"github.com/graylab/fleetsync/internal/infrastructure/logging"
	"github.com/graylab/fleetsync/internal/registry"
)

// newTestServer builds a server around a fresh registry with a discard
// logger. No listener or pumps are started; tests drive handleMessage
// directly.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	reg := registry.New()
	n := 0
	reg.SetIDFunc(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	})

	return &Server{
		wsCfg: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		logger:   log,
		registry: reg,
		hub:      NewHub(log),
	}
}

// connect registers a connectionless client with the hub.
func connect(s *Server) *Client {
	c := newClient(s.hub, nil)
	s.hub.Register(c)
	return c
}

// send routes one request envelope for c and returns the direct
// response's data object.
func send(t *testing.T, s *Server, c *Client, id int64, msgType string, data any) map[string]any {
	t.Helper()
	raw, err := encodeEnvelope(id, msgType, data)
	if err != nil {
		t.Fatalf("encoding request: %v", err)
	}
	s.handleMessage(c, raw)
	env := recvEnvelope(t, c)
	if env.ID != id {
		t.Fatalf("response id = %d, want echo of %d", env.ID, id)
	}
	if env.Type != msgType {
		t.Fatalf("response type = %q, want echo of %q", env.Type, msgType)
	}
	return decodeEnvData(t, env)
}

// recvEnvelope pops the next queued envelope for c, failing if none is
// waiting.
func recvEnvelope(t *testing.T, c *Client) *Envelope {
	t.Helper()
	select {
	case raw := <-c.send:
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decoding envelope: %v", err)
		}
		return &env
	default:
		t.Fatal("no envelope queued")
		return nil
	}
}

// expectSilence asserts that no envelope is queued for c.
func expectSilence(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected envelope queued: %s", raw)
	default:
	}
}

func decodeEnvData(t *testing.T, env *Envelope) map[string]any {
	t.Helper()
	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decoding envelope data: %v", err)
	}
	return data
}

// wantSuccess asserts data carries success=true.
func wantSuccess(t *testing.T, data map[string]any) {
	t.Helper()
	if data["success"] != true {
		t.Fatalf("success = %v, want true (data: %v)", data["success"], data)
	}
}

// wantError asserts data carries success=false with the given error
// field.
func wantError(t *testing.T, data map[string]any, field string) {
	t.Helper()
	if data["success"] != false {
		t.Fatalf("success = %v, want false", data["success"])
	}
	if data["error"] != field {
		t.Fatalf("error = %v, want %q", data["error"], field)
	}
}

func TestServer_DropClient(t *testing.T) {
	t.Run("observer drop is silent", func(t *testing.T) {
		s := newTestServer(t)
		observer := connect(s)
		watcher := connect(s)

		s.dropClient(observer)

		if got := s.hub.ClientCount(); got != 1 {
			t.Errorf("ClientCount() = %d, want 1", got)
		}
		expectSilence(t, watcher)
	})

	t.Run("device drop marks disconnected and notifies observers", func(t *testing.T) {
		s := newTestServer(t)
		dev, err := s.registry.CreateDevice("Lamp")
		if err != nil {
			t.Fatalf("CreateDevice() error = %v", err)
		}

		deviceConn := connect(s)
		observer := connect(s)
		otherDevice := connect(s)
		otherDevice.markDevice("someone-else")

		data := send(t, s, deviceConn, 1, TypeDevicesConnect, map[string]any{"key": dev.Key})
		wantSuccess(t, data)
		recvEnvelope(t, observer) // consume the connect broadcast

		s.dropClient(deviceConn)

		devices := s.registry.ListDevices()
		if devices[0].Connected {
			t.Error("Connected = true, want false after drop")
		}

		env := recvEnvelope(t, observer)
		if env.Type != TypeDevicesDisconnect {
			t.Errorf("broadcast type = %q, want %q", env.Type, TypeDevicesDisconnect)
		}
		if got := decodeEnvData(t, env)["id"]; got != dev.ID {
			t.Errorf("broadcast id = %v, want %q", got, dev.ID)
		}

		// Device connections never see presence chatter.
		expectSilence(t, otherDevice)
	})

	t.Run("drop after device deletion stays quiet", func(t *testing.T) {
		s := newTestServer(t)
		dev, _ := s.registry.CreateDevice("Lamp")

		deviceConn := connect(s)
		observer := connect(s)
		send(t, s, deviceConn, 1, TypeDevicesConnect, map[string]any{"key": dev.Key})
		recvEnvelope(t, observer)

		if err := s.registry.DeleteDevice(dev.ID); err != nil {
			t.Fatalf("DeleteDevice() error = %v", err)
		}
		s.dropClient(deviceConn)
		expectSilence(t, observer)
	})
}
