// Package api implements the HTTP boundary over the chat, group, friend and
// presence services. Mutations go through the hub so connected clients see
// the matching real-time events.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"palaver/internal/chat"
	"palaver/internal/directory"
	"palaver/internal/friends"
	"palaver/internal/group"
	"palaver/internal/models"
	"palaver/internal/presence"
	"palaver/internal/ws"

	"github.com/go-playground/validator/v10"
)

type API struct {
	hub       *ws.Hub
	chat      *chat.Service
	groups    *group.Authority
	friends   *friends.Graph
	directory *directory.Directory
	presence  *presence.Tracker
	validate  *validator.Validate
}

func New(hub *ws.Hub, chatSvc *chat.Service, groups *group.Authority, graph *friends.Graph, dir *directory.Directory, tracker *presence.Tracker) *API {
	return &API{
		hub:       hub,
		chat:      chatSvc,
		groups:    groups,
		friends:   graph,
		directory: dir,
		presence:  tracker,
		validate:  validator.New(),
	}
}

// actor resolves the caller's identity from the X-User-ID header. Token
// issuance and validation are external; by the time a request reaches this
// process the header is trusted.
func (a *API) actor(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return models.User{}, false
	}
	user, err := a.directory.Get(id)
	if err != nil {
		if models.IsKind(err, models.KindNotFound) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return models.User{}, false
		}
		a.writeError(w, err)
		return models.User{}, false
	}
	return user, true
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if err := a.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps typed failure kinds to HTTP statuses. Anything untyped is
// an internal failure and its detail stays out of the response.
func (a *API) writeError(w http.ResponseWriter, err error) {
	switch models.KindOf(err) {
	case models.KindBadInput:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case models.KindNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case models.KindForbidden:
		http.Error(w, err.Error(), http.StatusForbidden)
	case models.KindConflict:
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("request failed", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func pageRequest(r *http.Request) models.PageRequest {
	number, _ := strconv.Atoi(r.URL.Query().Get("pageNumber"))
	size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return models.NewPageRequest(number, size)
}

type pageResponse[T any] struct {
	Items       []T  `json:"items"`
	TotalCount  int  `json:"totalCount"`
	PageNumber  int  `json:"pageNumber"`
	PageSize    int  `json:"pageSize"`
	TotalPages  int  `json:"totalPages"`
	HasNext     bool `json:"hasNext"`
	HasPrevious bool `json:"hasPrevious"`
}

func toPageResponse[T any](p models.Page[T]) pageResponse[T] {
	if p.Items == nil {
		p.Items = []T{}
	}
	return pageResponse[T]{
		Items:       p.Items,
		TotalCount:  p.TotalCount,
		PageNumber:  p.Number,
		PageSize:    p.Size,
		TotalPages:  p.TotalPages(),
		HasNext:     p.HasNext(),
		HasPrevious: p.HasPrevious(),
	}
}

type registerRequest struct {
	UserName    string `json:"userName" validate:"required"`
	DisplayName string `json:"displayName"`
}

func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.decode(w, r, &req) {
		return
	}
	user, err := a.directory.Register(req.UserName, req.DisplayName)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, user)
}

func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	users, err := a.directory.List()
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, users)
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	a.writeJSON(w, http.StatusOK, user)
}

func (a *API) OnlineUsersHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	users := []models.User{}
	for _, id := range a.presence.ListOnline() {
		if user, err := a.directory.Get(id); err == nil {
			users = append(users, user)
		}
	}
	a.writeJSON(w, http.StatusOK, users)
}

func (a *API) UserStatusHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	id := r.PathValue("id")
	if _, err := a.directory.Get(id); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"userId":          id,
		"online":          a.presence.IsOnline(id),
		"connectionCount": a.presence.ConnectionCount(id),
	})
}

type sendRequest struct {
	Body     string             `json:"body" validate:"required"`
	Type     models.MessageType `json:"type" validate:"omitempty,oneof=text image file"`
	FileURL  string             `json:"fileUrl" validate:"omitempty,url"`
	FileName string             `json:"fileName"`
}

func (r sendRequest) draft() chat.Draft {
	return chat.Draft{Body: r.Body, Type: r.Type, FileURL: r.FileURL, FileName: r.FileName}
}

func (a *API) SendGlobalHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if !a.decode(w, r, &req) {
		return
	}
	msg, err := a.hub.SendGlobal(user.ID, req.draft())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, msg)
}

func (a *API) GlobalHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	page, err := a.chat.GlobalHistory(pageRequest(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toPageResponse(page))
}

func (a *API) SendGroupHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if !a.decode(w, r, &req) {
		return
	}
	msg, err := a.hub.SendToGroup(user.ID, r.PathValue("name"), req.draft())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, msg)
}

func (a *API) GroupHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.actor(w, r); !ok {
		return
	}
	page, err := a.chat.GroupHistory(r.PathValue("name"), pageRequest(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toPageResponse(page))
}

func (a *API) SendPrivateHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if !a.decode(w, r, &req) {
		return
	}
	msg, err := a.hub.SendPrivate(user.ID, r.PathValue("userId"), req.draft())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, msg)
}

func (a *API) PrivateHistoryHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	page, err := a.chat.PrivateHistory(user.ID, r.PathValue("userId"), pageRequest(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toPageResponse(page))
}

type editRequest struct {
	Body string `json:"body" validate:"required"`
}

func (a *API) EditMessageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req editRequest
	if !a.decode(w, r, &req) {
		return
	}
	msg, err := a.hub.EditMessage(r.PathValue("id"), user.ID, req.Body)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, msg)
}

func (a *API) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	if _, err := a.hub.DeleteMessage(r.PathValue("id"), user.ID); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reactRequest struct {
	Symbol string `json:"symbol" validate:"required"`
}

func (a *API) ReactHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req reactRequest
	if !a.decode(w, r, &req) {
		return
	}
	reaction, err := a.hub.ReactMessage(r.PathValue("id"), user.ID, req.Symbol)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, reaction)
}

func (a *API) UnreactHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	if err := a.hub.UnreactMessage(r.PathValue("id"), user.ID); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	msg, err := a.hub.MarkMessageRead(r.PathValue("id"), user.ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, msg)
}

func (a *API) JoinGroupHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	membership, err := a.hub.JoinGroup(user.ID, r.PathValue("name"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, membership)
}

func (a *API) LeaveGroupHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	if err := a.hub.LeaveGroup(user.ID, r.PathValue("name")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) MyGroupsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	groups, err := a.groups.ListGroupsForUser(user.ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	a.writeJSON(w, http.StatusOK, groups)
}

type friendRequestRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
}

func (a *API) SendFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req friendRequestRequest
	if !a.decode(w, r, &req) {
		return
	}
	sent, err := a.friends.SendRequest(user.ID, req.ReceiverID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]bool{"sent": sent})
}

func (a *API) PendingRequestsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	requests, err := a.friends.ListPendingRequests(user.ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if requests == nil {
		requests = []models.FriendRequest{}
	}
	a.writeJSON(w, http.StatusOK, requests)
}

func (a *API) AcceptFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	request, err := a.friends.Accept(user.ID, r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, request)
}

func (a *API) RejectFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	request, err := a.friends.Reject(user.ID, r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, request)
}

func (a *API) FriendsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := a.actor(w, r)
	if !ok {
		return
	}
	list, err := a.friends.ListFriends(user.ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if list == nil {
		list = []models.User{}
	}
	a.writeJSON(w, http.StatusOK, list)
}
