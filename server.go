package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// Request is a client message on /ws.
type Request struct {
	Type      string     `json:"type"` // "evaluate" or "raycast"
	Source    string     `json:"source,omitempty"`
	Origin    [3]float64 `json:"origin,omitempty"`
	Direction [3]float64 `json:"direction,omitempty"`
}

// Response is a server message on /ws.
type Response struct {
	Type   string      `json:"type"` // "result", "ray" or "error"
	Result *EvalResult `json:"result,omitempty"`
	Ray    *RayResult  `json:"ray,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Server exposes an App over websockets.
type Server struct {
	app      *App
	upgrader websocket.Upgrader
}

// NewServer creates a Server for app.
func NewServer(app *App) *Server {
	return &Server{
		app: app,
		upgrader: websocket.Upgrader{
			// Local tool; any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	return mux
}

// ListenAndServe serves the routes on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	log.Printf("Server starting on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}
	defer conn.Close()

	// Requests on one connection are handled in order, so writes never race.
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Println("WebSocket read error:", err)
			}
			return
		}
		if err := conn.WriteJSON(s.handle(r.Context(), req)); err != nil {
			log.Println("WebSocket write error:", err)
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, req Request) Response {
	switch req.Type {
	case "evaluate":
		res := s.app.EvaluateContext(ctx, req.Source)
		return Response{Type: "result", Result: &res}
	case "raycast":
		ray := s.app.Raycast(req.Origin, req.Direction)
		return Response{Type: "ray", Ray: &ray}
	}
	return Response{Type: "error", Error: fmt.Sprintf("unknown request type %q", req.Type)}
}
