package server

// Device message handlers. Each mutating handler sends the requester's
// response first, then broadcasts the change to the rest of the fleet.

type devicesStoreRequest struct {
	Name string `json:"name"`
}

type devicesUpdateRequest struct {
	ID   string  `json:"id"`
	Name *string `json:"name"`
}

type devicesDeleteRequest struct {
	ID string `json:"id"`
}

type devicesConnectRequest struct {
	Key string `json:"key"`
}

// handleDevicesIndex returns all devices, each with its current values.
func (s *Server) handleDevicesIndex(c *Client, env *Envelope) {
	s.respond(c, env, map[string]any{
		"devices": s.registry.ListDevices(),
	})
}

// handleDevicesStore registers a new device and announces it.
func (s *Server) handleDevicesStore(c *Client, env *Envelope) {
	var req devicesStoreRequest
	if err := decodeData(env, &req); err != nil {
		s.respondErr(c, env, "name")
		return
	}

	dev, err := s.registry.CreateDevice(req.Name)
	if err != nil {
		s.fail(c, env, err)
		return
	}

	s.respond(c, env, map[string]any{"device": dev})
	s.broadcast(c, env.Type, map[string]any{"device": dev}, false)
}

// handleDevicesUpdate renames a device and announces the change.
func (s *Server) handleDevicesUpdate(c *Client, env *Envelope) {
	var req devicesUpdateRequest
	if err := decodeData(env, &req); err != nil {
		s.respondErr(c, env, "id")
		return
	}

	dev, err := s.registry.UpdateDevice(req.ID, req.Name)
	if err != nil {
		s.fail(c, env, err)
		return
	}

	s.respond(c, env, map[string]any{"device": dev})
	s.broadcast(c, env.Type, map[string]any{"device": dev}, false)
}

// handleDevicesDelete removes a device. Its values stay behind as
// orphans.
func (s *Server) handleDevicesDelete(c *Client, env *Envelope) {
	var req devicesDeleteRequest
	if err := decodeData(env, &req); err != nil {
		s.respondErr(c, env, "id")
		return
	}

	if err := s.registry.DeleteDevice(req.ID); err != nil {
		s.fail(c, env, err)
		return
	}

	s.respond(c, env, map[string]any{"id": req.ID})
	s.broadcast(c, env.Type, map[string]any{"id": req.ID}, false)
}

// handleDevicesConnect authenticates this connection as a device. On
// success the connection is promoted, the device is marked connected and
// the response carries the device's current values so firmware can seed
// its local state in one round trip. Observers are notified; other
// devices are not.
func (s *Server) handleDevicesConnect(c *Client, env *Envelope) {
	var req devicesConnectRequest
	if err := decodeData(env, &req); err != nil {
		s.respondErr(c, env, "key")
		return
	}

	dev, err := s.registry.FindDeviceByKey(req.Key)
	if err != nil {
		s.fail(c, env, err)
		return
	}
	if _, err := s.registry.SetConnected(dev.ID, true); err != nil {
		s.fail(c, env, err)
		return
	}
	c.markDevice(dev.ID)

	s.logger.Info("device connected", "id", dev.ID, "name", dev.Name)

	s.respond(c, env, map[string]any{
		"id":     dev.ID,
		"values": s.registry.ValuesForDevice(dev.ID),
	})
	s.broadcast(c, env.Type, map[string]any{"id": dev.ID}, true)
}
