package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Devices connect from their own networks; origin is meaningless
		// for firmware clients.
		return true
	},
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/", s.handleIndex)
	r.Get(s.wsCfg.Path, s.handleWebSocket)

	// Every unknown path gets the not-found page with a 200 status.
	// Deployed firmware probes arbitrary paths during provisioning and
	// treats any non-200 as a dead server, so the status must stay 200.
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // Best-effort static body
		w.Write([]byte("<h1>404 Not Found</h1>"))
	})

	return r
}

// handleIndex serves the embedded status page.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")
	//nolint:errcheck // Best-effort static body
	w.Write(indexPage)
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection
// and starts the read/write pumps. Every connection starts as an
// observer; devices.connect promotes it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(s.hub, conn)
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s)
}
