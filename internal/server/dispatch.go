package server

import (
	"encoding/json"

	"github.com/graylab/fleetsync/internal/registry"
)

// handleMessage parses one inbound envelope and dispatches it by type.
// Called synchronously from the client's read pump, so messages from one
// connection are handled in the order received; the registry mutex
// serialises mutations across connections.
//
// Malformed payloads (non-JSON, missing type) are dropped with a warning
// and never tear down the connection. An envelope with a recognised shape
// but an unknown type gets an explicit error response so callers are not
// left guessing.
func (s *Server) handleMessage(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn("dropping malformed message", "error", err)
		return
	}
	if env.Type == "" {
		s.logger.Warn("dropping message without type")
		return
	}

	s.logger.Debug("message received", "id", env.ID, "type", env.Type)

	switch env.Type {
	case TypeDevicesIndex:
		s.handleDevicesIndex(c, &env)
	case TypeDevicesStore:
		s.handleDevicesStore(c, &env)
	case TypeDevicesUpdate:
		s.handleDevicesUpdate(c, &env)
	case TypeDevicesDelete:
		s.handleDevicesDelete(c, &env)
	case TypeDevicesConnect:
		s.handleDevicesConnect(c, &env)
	case TypeValuesIndex:
		s.handleValuesIndex(c, &env)
	case TypeValuesStore:
		s.handleValuesStore(c, &env)
	case TypeValuesUpdate:
		s.handleValuesUpdate(c, &env)
	case TypeValuesDelete:
		s.handleValuesDelete(c, &env)
	case TypeValuesOrphaned:
		s.handleValuesOrphaned(c, &env)
	default:
		s.respondErr(c, &env, "type")
	}
}

// respond sends a success response to the requester, echoing the request
// id and type.
func (s *Server) respond(c *Client, req *Envelope, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["success"] = true
	c.sendEnvelope(req.ID, req.Type, data)
}

// respondErr reports a validation failure to the requester only. The
// failing field name is the whole diagnostic; no broadcast follows.
func (s *Server) respondErr(c *Client, req *Envelope, field string) {
	c.sendEnvelope(req.ID, req.Type, map[string]any{
		"success": false,
		"error":   field,
	})
}

// fail maps a registry error onto the wire and reports it. Unknown error
// shapes are logged and reported under "internal" rather than silently
// swallowed; the registry only returns ValidationErrors today.
func (s *Server) fail(c *Client, req *Envelope, err error) {
	field := registry.FieldOf(err)
	if field == "" {
		s.logger.Error("unexpected registry error", "type", req.Type, "error", err)
		field = "internal"
	}
	s.respondErr(c, req, field)
}

// broadcast fans an event out through the hub and mirrors it onto the
// MQTT relay when one is configured. Broadcast always happens after the
// originator's direct response has been queued.
func (s *Server) broadcast(origin *Client, msgType string, data any, excludeDevices bool) {
	raw := s.hub.Broadcast(origin, msgType, data, excludeDevices)
	if raw == nil || s.mqtt == nil {
		return
	}
	if err := s.mqtt.PublishEvent(msgType, raw); err != nil {
		s.logger.Warn("event relay publish failed", "type", msgType, "error", err)
	}
}

// decodeData unmarshals an envelope's data object into dst. A missing
// data object decodes as all-absent fields, which the registry rejects
// with the right field name.
func decodeData(env *Envelope, dst any) error {
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, dst)
}
