package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/graylab/fleetsync/internal/infrastructure/config"
	"github.com/graylab/fleetsync/internal/infrastructure/logging"
	"github.com/graylab/fleetsync/internal/infrastructure/mqtt"
	"github.com/graylab/fleetsync/internal/registry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the server.
type Deps struct {
	Config   config.ServerConfig
	Logger   *logging.Logger
	Registry *registry.Registry
	MQTT     *mqtt.Client // optional event relay; nil disables mirroring
	Version  string
}

// Server is fleetsync's HTTP and WebSocket server.
//
// It manages the HTTP listener, the WebSocket hub and message routing.
// Created with New() and started with Start(); all methods are safe for
// concurrent use.
type Server struct {
	cfg      config.ServerConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	registry *registry.Registry
	mqtt     *mqtt.Client
	version  string
	server   *http.Server
	hub      *Hub
	cancel   context.CancelFunc
}

// New creates a server with the given dependencies. It is not listening
// until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.Config.WebSocket,
		logger:   deps.Logger,
		registry: deps.Registry,
		mqtt:     deps.MQTT,
		version:  deps.Version,
		hub:      NewHub(deps.Logger),
	}, nil
}

// Hub exposes the connection hub, mainly for tests and diagnostics.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections. The hub runs until
// Close() cancels it; the listener runs in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("server listening", "address", s.server.Addr, "ws_path", s.wsCfg.Path, "version", s.version)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server. It waits up to 10 seconds for
// in-flight requests, then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// dropClient tears down a connection. If it had authenticated as a
// device, the device is marked disconnected and the observers (not the
// other devices) are told.
func (s *Server) dropClient(c *Client) {
	s.hub.Unregister(c)

	if !c.IsDevice() {
		return
	}
	deviceID := c.DeviceID()
	if _, err := s.registry.SetConnected(deviceID, false); err != nil {
		// The device may have been deleted while connected; nothing to
		// announce in that case.
		s.logger.Debug("disconnect for unknown device", "id", deviceID)
		return
	}
	s.logger.Info("device disconnected", "id", deviceID)
	s.broadcast(c, TypeDevicesDisconnect, map[string]any{"id": deviceID}, true)
}
