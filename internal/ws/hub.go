package ws

import (
	"log/slog"
	"sync"

	"palaver/internal/chat"
	"palaver/internal/directory"
	"palaver/internal/group"
	"palaver/internal/models"
	"palaver/internal/presence"

	"github.com/google/uuid"
)

// Client is one live connection's registration in the hub. Events for the
// connection are delivered on its buffered send channel; a slow consumer
// whose buffer is full loses events rather than blocking the dispatcher.
type Client struct {
	id     string
	userID string
	send   chan models.ServerEvent

	mu     sync.Mutex
	groups map[string]struct{}
}

// Events returns the stream of events addressed to this connection. The
// channel is closed when the client leaves the hub.
func (c *Client) Events() <-chan models.ServerEvent {
	return c.send
}

// UserID returns the identity this connection is bound to.
func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) subscribed(groupName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.groups[groupName]
	return ok
}

func (c *Client) subscribe(groupName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[groupName] = struct{}{}
}

func (c *Client) unsubscribe(groupName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.groups[groupName]; !ok {
		return false
	}
	delete(c.groups, groupName)
	return true
}

// Hub is the real-time dispatcher: it owns the connection registry, runs
// inbound operations against the services, and fans the resulting events out
// to exactly the connections entitled to see them.
type Hub struct {
	chat      *chat.Service
	groups    *group.Authority
	presence  *presence.Tracker
	directory *directory.Directory

	sendBuffer int

	mu      sync.RWMutex
	clients map[string]*Client
	byUser  map[string]map[string]*Client
}

func NewHub(chatSvc *chat.Service, groups *group.Authority, tracker *presence.Tracker, dir *directory.Directory, sendBuffer int) *Hub {
	return &Hub{
		chat:       chatSvc,
		groups:     groups,
		presence:   tracker,
		directory:  dir,
		sendBuffer: sendBuffer,
		clients:    make(map[string]*Client),
		byUser:     make(map[string]map[string]*Client),
	}
}

// Join registers a new connection for userID. The connection starts
// subscribed to every group the user persistently belongs to. If this is the
// user's first connection, UserOnline is broadcast to everyone.
func (h *Hub) Join(userID string) (*Client, error) {
	user, err := h.directory.Get(userID)
	if err != nil {
		return nil, err
	}

	c := &Client{
		id:     uuid.NewString(),
		userID: user.ID,
		send:   make(chan models.ServerEvent, h.sendBuffer),
		groups: make(map[string]struct{}),
	}

	memberOf, err := h.groups.ListGroupsForUser(user.ID)
	if err != nil {
		return nil, err
	}
	for _, g := range memberOf {
		c.subscribe(g.Name)
	}

	h.mu.Lock()
	h.clients[c.id] = c
	if h.byUser[user.ID] == nil {
		h.byUser[user.ID] = make(map[string]*Client)
	}
	h.byUser[user.ID][c.id] = c
	h.mu.Unlock()

	if h.presence.Connect(user.ID, c.id) {
		h.broadcastAll(models.ServerEvent{
			Event:       models.EventUserOnline,
			UserID:      user.ID,
			DisplayName: user.DisplayName,
		})
	}

	slog.Info("connection joined", "user", user.ID, "conn", c.id)
	return c, nil
}

// Leave removes a connection from the hub and closes its event channel. If
// it was the user's last connection, UserOffline is broadcast to everyone.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	if conns := h.byUser[c.userID]; conns != nil {
		delete(conns, c.id)
		if len(conns) == 0 {
			delete(h.byUser, c.userID)
		}
	}
	h.mu.Unlock()
	close(c.send)

	if h.presence.Disconnect(c.userID, c.id) {
		h.broadcastAll(models.ServerEvent{
			Event:       models.EventUserOffline,
			UserID:      c.userID,
			DisplayName: h.directory.DisplayName(c.userID),
		})
	}

	slog.Info("connection left", "user", c.userID, "conn", c.id)
}

// SendGlobal persists a global message and broadcasts ReceiveMessage to
// every connection.
func (h *Hub) SendGlobal(userID string, d chat.Draft) (models.Message, error) {
	msg, err := h.chat.SendGlobal(userID, d)
	if err != nil {
		return models.Message{}, err
	}
	h.broadcastAll(messageEvent(models.EventReceiveMessage, msg))
	return msg, nil
}

// SendToGroup persists a group message and broadcasts ReceiveGroupMessage
// to the group's subscribed connections.
func (h *Hub) SendToGroup(userID, groupName string, d chat.Draft) (models.Message, error) {
	msg, err := h.chat.SendToGroup(userID, groupName, d)
	if err != nil {
		return models.Message{}, err
	}
	h.broadcastGroup(msg.GroupName, messageEvent(models.EventReceiveGroupMessage, msg))
	return msg, nil
}

// SendPrivate persists a 1:1 message and delivers ReceivePrivateMessage to
// the sender's and receiver's connections only. Each side sees the other as
// the counterpart.
func (h *Hub) SendPrivate(userID, receiverID string, d chat.Draft) (models.Message, error) {
	msg, err := h.chat.SendPrivate(userID, receiverID, d)
	if err != nil {
		return models.Message{}, err
	}

	toSender := messageEvent(models.EventReceivePrivateMessage, msg)
	toSender.CounterpartID = msg.ReceiverID
	h.sendToUser(msg.AuthorID, toSender)

	if msg.ReceiverID != msg.AuthorID {
		toReceiver := messageEvent(models.EventReceivePrivateMessage, msg)
		toReceiver.CounterpartID = msg.AuthorID
		h.sendToUser(msg.ReceiverID, toReceiver)
	}
	return msg, nil
}

// JoinGroup establishes persistent membership and subscribes every one of
// the user's live connections to the group's real-time channel. Subscribers
// see a SystemMessage about the arrival.
func (h *Hub) JoinGroup(userID, groupName string) (models.GroupMembership, error) {
	membership, joined, err := h.groups.JoinGroup(userID, groupName)
	if err != nil {
		return models.GroupMembership{}, err
	}

	g, err := h.groups.Group(groupName)
	if err != nil {
		return models.GroupMembership{}, err
	}

	h.mu.RLock()
	for _, c := range h.byUser[userID] {
		c.subscribe(g.Name)
	}
	h.mu.RUnlock()

	if joined {
		h.broadcastGroup(g.Name, models.ServerEvent{
			Event:     models.EventSystemMessage,
			GroupName: g.Name,
			Text:      h.directory.DisplayName(userID) + " joined group " + g.Name,
		})
	}
	return membership, nil
}

// LeaveGroupSocket drops one connection's real-time subscription without
// touching persistent membership, announcing the departure to remaining
// subscribers. Persistent leave is a separate operation.
func (h *Hub) LeaveGroupSocket(c *Client, groupName string) {
	if !c.unsubscribe(groupName) {
		return
	}
	h.broadcastGroup(groupName, models.ServerEvent{
		Event:     models.EventSystemMessage,
		GroupName: groupName,
		Text:      h.directory.DisplayName(c.userID) + " left group " + groupName,
	})
}

// LeaveGroup removes persistent membership and unsubscribes all of the
// user's connections from the group's real-time channel.
func (h *Hub) LeaveGroup(userID, groupName string) error {
	if err := h.groups.LeaveGroup(userID, groupName); err != nil {
		return err
	}

	h.mu.RLock()
	for _, c := range h.byUser[userID] {
		c.unsubscribe(groupName)
	}
	h.mu.RUnlock()

	h.broadcastGroup(groupName, models.ServerEvent{
		Event:     models.EventSystemMessage,
		GroupName: groupName,
		Text:      h.directory.DisplayName(userID) + " left group " + groupName,
	})
	return nil
}

// EditMessage edits a message and re-broadcasts MessageEdited to the same
// audience the original send had.
func (h *Hub) EditMessage(messageID, actorID, newBody string) (models.Message, error) {
	msg, err := h.chat.Edit(messageID, actorID, newBody)
	if err != nil {
		return models.Message{}, err
	}

	created := msg.CreatedAt
	h.broadcastChannel(msg, models.ServerEvent{
		Event:     models.EventMessageEdited,
		MessageID: msg.ID,
		Body:      msg.Body,
		CreatedAt: &created,
	})
	return msg, nil
}

// DeleteMessage tombstones a message and re-broadcasts MessageDeleted to the
// original audience.
func (h *Hub) DeleteMessage(messageID, actorID string) (models.Message, error) {
	msg, err := h.chat.SoftDelete(messageID, actorID)
	if err != nil {
		return models.Message{}, err
	}

	h.broadcastChannel(msg, models.ServerEvent{
		Event:     models.EventMessageDeleted,
		MessageID: msg.ID,
	})
	return msg, nil
}

// ReactMessage upserts a reaction and broadcasts MessageReaction to the
// message's audience.
func (h *Hub) ReactMessage(messageID, actorID, symbol string) (models.Reaction, error) {
	reaction, err := h.chat.React(messageID, actorID, symbol)
	if err != nil {
		return models.Reaction{}, err
	}

	msg, err := h.chat.Message(messageID)
	if err != nil {
		return models.Reaction{}, err
	}
	h.broadcastChannel(msg, models.ServerEvent{
		Event:     models.EventMessageReaction,
		MessageID: msg.ID,
		UserID:    actorID,
		Reaction:  &reaction,
	})
	return reaction, nil
}

// UnreactMessage removes a reaction and broadcasts MessageReaction with no
// reaction payload, which clients read as removal.
func (h *Hub) UnreactMessage(messageID, actorID string) error {
	if err := h.chat.Unreact(messageID, actorID); err != nil {
		return err
	}

	msg, err := h.chat.Message(messageID)
	if err != nil {
		return err
	}
	h.broadcastChannel(msg, models.ServerEvent{
		Event:     models.EventMessageReaction,
		MessageID: msg.ID,
		UserID:    actorID,
	})
	return nil
}

// MarkMessageRead flags a private message read and notifies both ends of
// the conversation with MessageRead.
func (h *Hub) MarkMessageRead(messageID, actorID string) (models.Message, error) {
	msg, err := h.chat.MarkRead(messageID, actorID)
	if err != nil {
		return models.Message{}, err
	}

	h.broadcastChannel(msg, models.ServerEvent{
		Event:     models.EventMessageRead,
		MessageID: msg.ID,
		UserID:    actorID,
	})
	return msg, nil
}

// Typing forwards an ephemeral typing indicator. Group typing goes to the
// group's subscribers except the typist's own connections; private typing
// goes only to the addressed peer. Nothing is persisted.
func (h *Hub) Typing(userID string, msg models.ClientMessage, stopped bool) {
	event := models.EventUserTyping
	if stopped {
		event = models.EventUserStoppedTyping
	}

	ev := models.ServerEvent{
		Event:       event,
		UserID:      userID,
		DisplayName: h.directory.DisplayName(userID),
	}

	switch {
	case msg.GroupName != "":
		ev.GroupName = msg.GroupName
		h.broadcastGroupExcept(msg.GroupName, userID, ev)
	case msg.ToUserID != "":
		h.sendToUser(msg.ToUserID, ev)
	}
}

// SendError delivers a connection-scoped error event. Failures are never
// broadcast beyond the connection whose request caused them.
func (h *Hub) SendError(c *Client, err error) {
	text := "internal error"
	if models.KindOf(err) != "" {
		text = err.Error()
	} else {
		slog.Error("dispatch failed", "user", c.userID, "error", err)
	}

	// Deliver under the registry lock so the channel cannot be closed by a
	// concurrent Leave mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; ok {
		h.deliver(c, models.ServerEvent{Event: models.EventError, Text: text})
	}
}

func (h *Hub) broadcastAll(ev models.ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.deliver(c, ev)
	}
}

func (h *Hub) broadcastGroup(groupName string, ev models.ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.subscribed(groupName) {
			h.deliver(c, ev)
		}
	}
}

func (h *Hub) broadcastGroupExcept(groupName, userID string, ev models.ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.userID != userID && c.subscribed(groupName) {
			h.deliver(c, ev)
		}
	}
}

func (h *Hub) sendToUser(userID string, ev models.ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.byUser[userID] {
		h.deliver(c, ev)
	}
}

// broadcastChannel re-derives the audience from the message's channel
// descriptor, matching the fan-out of the original send.
func (h *Hub) broadcastChannel(msg models.Message, ev models.ServerEvent) {
	switch ch := msg.Channel(); ch.Kind {
	case models.KindGroup:
		ev.GroupName = ch.Group
		h.broadcastGroup(ch.Group, ev)
	case models.KindPrivate:
		h.sendToUser(msg.AuthorID, ev)
		if msg.ReceiverID != msg.AuthorID {
			h.sendToUser(msg.ReceiverID, ev)
		}
	default:
		h.broadcastAll(ev)
	}
}

// deliver is a non-blocking send: one stalled connection must never hold up
// delivery to the rest of the audience.
func (h *Hub) deliver(c *Client, ev models.ServerEvent) {
	select {
	case c.send <- ev:
	default:
		slog.Warn("dropping event for slow connection", "user", c.userID, "conn", c.id, "event", ev.Event)
	}
}

func messageEvent(name models.EventName, msg models.Message) models.ServerEvent {
	created := msg.CreatedAt
	return models.ServerEvent{
		Event:      name,
		MessageID:  msg.ID,
		SenderName: msg.AuthorName,
		Body:       msg.Body,
		CreatedAt:  &created,
		GroupName:  msg.GroupName,
	}
}
