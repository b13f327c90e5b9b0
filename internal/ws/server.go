package ws

import (
	"log"
	"net/http"

	"palaver/internal/models"

	"github.com/gorilla/websocket"
)

// Server upgrades HTTP requests to websockets and hands each one to the hub.
// Identity arrives in the X-User-ID header, resolved against the directory;
// token issuance and validation live outside this process.
type Server struct {
	hub      *Hub
	upgrader *websocket.Upgrader
}

func NewServer(hub *Hub) *Server {
	return &Server{
		hub: hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	client, err := s.hub.Join(userID)
	if err != nil {
		if models.IsKind(err, models.KindNotFound) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.Leave(client)
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	conn := NewConnection(s.hub, ws, client)
	if err := conn.Handle(r.Context()); err != nil {
		log.Printf("connection closed with error: %v", err)
	}
}
