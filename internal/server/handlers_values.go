package server

import (
	"encoding/json"

	"github.com/graylab/fleetsync/internal/registry"
)

// Value message handlers.

type valuesStoreRequest struct {
	DeviceID string `json:"device_id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
}

type valuesUpdateRequest struct {
	ID   string  `json:"id"`
	Type *string `json:"type"`
	Name *string `json:"name"`
	// Value stays raw so an absent field is distinguishable from an
	// explicit null or false.
	Value json.RawMessage `json:"value"`
}

type valuesDeleteRequest struct {
	ID string `json:"id"`
}

// handleValuesIndex returns all values, each with its owning device.
func (s *Server) handleValuesIndex(c *Client, env *Envelope) {
	s.respond(c, env, map[string]any{
		"values": s.registry.ListValues(),
	})
}

// handleValuesOrphaned returns values whose device has been deleted.
// Query only; cleanup stays an explicit values.delete per value.
func (s *Server) handleValuesOrphaned(c *Client, env *Envelope) {
	s.respond(c, env, map[string]any{
		"values": s.registry.OrphanValues(),
	})
}

// handleValuesStore creates a value with its type's default payload.
func (s *Server) handleValuesStore(c *Client, env *Envelope) {
	var req valuesStoreRequest
	if err := decodeData(env, &req); err != nil {
		s.respondErr(c, env, "device_id")
		return
	}

	val, err := s.registry.CreateValue(req.DeviceID, registry.ValueType(req.Type), req.Name)
	if err != nil {
		s.fail(c, env, err)
		return
	}

	s.respond(c, env, map[string]any{"value": val})
	s.broadcast(c, env.Type, map[string]any{"value": val}, false)
}

// handleValuesUpdate applies the optional type/name/value fields. Fields
// apply one at a time in that order; a later field failing does not
// undo earlier ones (see registry.UpdateValue).
func (s *Server) handleValuesUpdate(c *Client, env *Envelope) {
	var req valuesUpdateRequest
	if err := decodeData(env, &req); err != nil {
		s.respondErr(c, env, "id")
		return
	}

	upd := registry.ValueUpdate{Name: req.Name}
	if req.Type != nil {
		t := registry.ValueType(*req.Type)
		upd.Type = &t
	}
	if req.Value != nil {
		var payload any
		if err := json.Unmarshal(req.Value, &payload); err != nil {
			s.respondErr(c, env, "value")
			return
		}
		upd.Value = payload
		upd.HasValue = true
	}

	val, err := s.registry.UpdateValue(req.ID, upd)
	if err != nil {
		s.fail(c, env, err)
		return
	}

	s.respond(c, env, map[string]any{"value": val})
	s.broadcast(c, env.Type, map[string]any{"value": val}, false)
}

// handleValuesDelete removes a value and reports which device owned it.
func (s *Server) handleValuesDelete(c *Client, env *Envelope) {
	var req valuesDeleteRequest
	if err := decodeData(env, &req); err != nil {
		s.respondErr(c, env, "id")
		return
	}

	val, err := s.registry.DeleteValue(req.ID)
	if err != nil {
		s.fail(c, env, err)
		return
	}

	s.respond(c, env, map[string]any{"id": val.ID, "device_id": val.DeviceID})
	s.broadcast(c, env.Type, map[string]any{"id": val.ID, "device_id": val.DeviceID}, false)
}
