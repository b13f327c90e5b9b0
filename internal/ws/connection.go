package ws

import (
	"context"
	"errors"
	"sync"

	"palaver/internal/chat"
	"palaver/internal/models"
)

type wsConn interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

// Connection drives one websocket: a read pump feeding inbound requests and
// a main loop interleaving them with hub events bound for this socket.
type Connection struct {
	ws         wsConn
	hub        *Hub
	client     *Client
	fromClient chan models.ClientMessage
	errorCh    chan error
}

func NewConnection(hub *Hub, ws wsConn, client *Client) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		client:     client,
		fromClient: make(chan models.ClientMessage),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.errorCh)
		c.hub.Leave(c.client)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	_ = c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var msg models.ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return err
		}
		select {
		case c.fromClient <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case msg := <-c.fromClient:
			c.dispatch(msg)
		case ev, ok := <-c.client.Events():
			if !ok {
				return nil
			}
			if err := c.ws.WriteJSON(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// dispatch runs one inbound request. Failures are surfaced to this
// connection only; other clients never see them.
func (c *Connection) dispatch(msg models.ClientMessage) {
	userID := c.client.UserID()
	draft := chat.Draft{
		Body:     msg.Body,
		Type:     msg.MessageType,
		FileURL:  msg.FileURL,
		FileName: msg.FileName,
	}

	var err error
	switch msg.Type {
	case models.ClientSend:
		_, err = c.hub.SendGlobal(userID, draft)
	case models.ClientSendGroup:
		_, err = c.hub.SendToGroup(userID, msg.GroupName, draft)
	case models.ClientSendPrivate:
		_, err = c.hub.SendPrivate(userID, msg.ToUserID, draft)
	case models.ClientJoinGroup:
		_, err = c.hub.JoinGroup(userID, msg.GroupName)
	case models.ClientLeaveGroup:
		c.hub.LeaveGroupSocket(c.client, msg.GroupName)
	case models.ClientTyping:
		c.hub.Typing(userID, msg, false)
	case models.ClientStopTyping:
		c.hub.Typing(userID, msg, true)
	case models.ClientEdit:
		_, err = c.hub.EditMessage(msg.MessageID, userID, msg.Body)
	case models.ClientDelete:
		_, err = c.hub.DeleteMessage(msg.MessageID, userID)
	case models.ClientReact:
		_, err = c.hub.ReactMessage(msg.MessageID, userID, msg.Symbol)
	case models.ClientUnreact:
		err = c.hub.UnreactMessage(msg.MessageID, userID)
	case models.ClientMarkRead:
		_, err = c.hub.MarkMessageRead(msg.MessageID, userID)
	default:
		err = models.BadInput("unknown message type %q", msg.Type)
	}

	if err != nil {
		c.hub.SendError(c.client, err)
	}
}
