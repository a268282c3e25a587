package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/graylab/fleetsync/internal/infrastructure/config"
)

func TestEventTopic(t *testing.T) {
	tests := []struct {
		messageType string
		want        string
	}{
		{"devices.store", "fleetsync/events/devices/store"},
		{"devices.connect", "fleetsync/events/devices/connect"},
		{"values.update", "fleetsync/events/values/update"},
		{"plain", "fleetsync/events/plain"},
	}
	for _, tt := range tests {
		if got := EventTopic(tt.messageType); got != tt.want {
			t.Errorf("EventTopic(%q) = %q, want %q", tt.messageType, got, tt.want)
		}
	}
}

func TestPublish_Validation(t *testing.T) {
	// A client that never connected still validates inputs first.
	c := &Client{cfg: config.MQTTConfig{QoS: 1}}

	if err := c.Publish("", []byte("x"), 1, false); err != ErrInvalidTopic {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("fleetsync/events/x", []byte("x"), 3, false); err != ErrInvalidQoS {
		t.Errorf("qos 3 error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Publish("fleetsync/events/x", []byte("x"), 1, false); err != ErrNotConnected {
		t.Errorf("disconnected error = %v, want ErrNotConnected", err)
	}
}

func TestStatusPayloads(t *testing.T) {
	for name, payload := range map[string]string{
		"online":  buildOnlinePayload("fleetsync-core"),
		"offline": buildOfflinePayload("fleetsync-core"),
	} {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			t.Errorf("%s payload is not valid JSON: %v", name, err)
			continue
		}
		if decoded["status"] != name {
			t.Errorf("%s payload status = %v", name, decoded["status"])
		}
		if decoded["client_id"] != "fleetsync-core" {
			t.Errorf("%s payload client_id = %v", name, decoded["client_id"])
		}
	}
}
