package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout.
const (
	// statusTopic carries the relay's retained online/offline status.
	statusTopic = "fleetsync/system/status"

	// eventTopicPrefix is the root for mirrored broadcasts. The dotted
	// message type becomes the topic tail: devices.store →
	// fleetsync/events/devices/store.
	eventTopicPrefix = "fleetsync/events/"
)

// maxPayloadSize bounds published payloads (1MB), aligned with typical
// broker limits.
const maxPayloadSize = 1 << 20

// EventTopic maps a broadcast message type to its relay topic.
func EventTopic(messageType string) string {
	return eventTopicPrefix + strings.ReplaceAll(messageType, ".", "/")
}

// Publish sends a message to the specified MQTT topic.
//
// QoS levels: 0 at most once, 1 at least once, 2 exactly once. Retained
// messages are stored by the broker and delivered to new subscribers;
// events are never retained, only the status topic is.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishEvent mirrors a broadcast envelope onto the event topic for its
// message type, using the configured default QoS.
func (c *Client) PublishEvent(messageType string, payload []byte) error {
	return c.Publish(EventTopic(messageType), payload, byte(c.cfg.QoS), false)
}
