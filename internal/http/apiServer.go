// Package http wires the API handlers and the websocket endpoint into one
// HTTP server.
package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"palaver/internal/api"
	"palaver/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(handlers *api.API, wsServer *ws.Server, addr string) *APIServer {
	mux := http.NewServeMux()

	// Identity
	mux.HandleFunc("POST /api/users", handlers.RegisterHandler)
	mux.HandleFunc("GET /api/users", handlers.UsersHandler)
	mux.HandleFunc("GET /api/users/online", handlers.OnlineUsersHandler)
	mux.HandleFunc("GET /api/users/{id}/status", handlers.UserStatusHandler)
	mux.HandleFunc("GET /api/me", handlers.MeHandler)

	// Messaging
	mux.HandleFunc("POST /api/messages", handlers.SendGlobalHandler)
	mux.HandleFunc("GET /api/messages", handlers.GlobalHistoryHandler)
	mux.HandleFunc("PATCH /api/messages/{id}", handlers.EditMessageHandler)
	mux.HandleFunc("DELETE /api/messages/{id}", handlers.DeleteMessageHandler)
	mux.HandleFunc("PUT /api/messages/{id}/reactions", handlers.ReactHandler)
	mux.HandleFunc("DELETE /api/messages/{id}/reactions", handlers.UnreactHandler)
	mux.HandleFunc("POST /api/messages/{id}/read", handlers.MarkReadHandler)

	// Groups
	mux.HandleFunc("GET /api/groups", handlers.MyGroupsHandler)
	mux.HandleFunc("POST /api/groups/{name}/join", handlers.JoinGroupHandler)
	mux.HandleFunc("POST /api/groups/{name}/leave", handlers.LeaveGroupHandler)
	mux.HandleFunc("POST /api/groups/{name}/messages", handlers.SendGroupHandler)
	mux.HandleFunc("GET /api/groups/{name}/messages", handlers.GroupHistoryHandler)

	// Private conversations
	mux.HandleFunc("POST /api/private/{userId}/messages", handlers.SendPrivateHandler)
	mux.HandleFunc("GET /api/private/{userId}/messages", handlers.PrivateHistoryHandler)

	// Friends
	mux.HandleFunc("GET /api/friends", handlers.FriendsHandler)
	mux.HandleFunc("POST /api/friends/requests", handlers.SendFriendRequestHandler)
	mux.HandleFunc("GET /api/friends/requests", handlers.PendingRequestsHandler)
	mux.HandleFunc("POST /api/friends/requests/{id}/accept", handlers.AcceptFriendRequestHandler)
	mux.HandleFunc("POST /api/friends/requests/{id}/reject", handlers.RejectFriendRequestHandler)

	// WebSocket endpoint
	mux.HandleFunc("/api/chat", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
