package ws

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"palaver/internal/models"
)

type fakeWS struct {
	in     chan models.ClientMessage
	out    chan models.ServerEvent
	closed chan struct{}
	once   sync.Once
}

func newFakeWS() *fakeWS {
	return &fakeWS{
		in:     make(chan models.ClientMessage),
		out:    make(chan models.ServerEvent, 100),
		closed: make(chan struct{}),
	}
}

func (f *fakeWS) ReadJSON(v interface{}) error {
	select {
	case msg := <-f.in:
		*v.(*models.ClientMessage) = msg
		return nil
	case <-f.closed:
		return net.ErrClosed
	}
}

func (f *fakeWS) WriteJSON(v interface{}) error {
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	f.out <- v.(models.ServerEvent)
	return nil
}

func (f *fakeWS) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func awaitWrite(t *testing.T, ws *fakeWS) models.ServerEvent {
	t.Helper()
	select {
	case ev := <-ws.out:
		return ev
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for written event")
	}
	return models.ServerEvent{}
}

func TestConnectionHandle(t *testing.T) {
	f := newFixture(t)

	client := f.join(t, f.alice.ID)
	ws := newFakeWS()
	conn := NewConnection(f.hub, ws, client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- conn.Handle(ctx) }()

	// The connection's own UserOnline broadcast comes back on the socket.
	ev := awaitWrite(t, ws)
	if ev.Event != models.EventUserOnline || ev.UserID != f.alice.ID {
		t.Fatalf("expected UserOnline, got %+v", ev)
	}

	ws.in <- models.ClientMessage{Type: models.ClientSend, Body: "hello"}
	ev = awaitWrite(t, ws)
	if ev.Event != models.EventReceiveMessage || ev.Body != "hello" {
		t.Fatalf("expected ReceiveMessage echo, got %+v", ev)
	}

	// A bad request comes back as a connection-scoped error event.
	ws.in <- models.ClientMessage{Type: "bogus"}
	ev = awaitWrite(t, ws)
	if ev.Event != models.EventError {
		t.Fatalf("expected Error event, got %+v", ev)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for Handle to return")
	}

	// Handle deregistered the client on the way out.
	if _, ok := <-client.Events(); ok {
		t.Error("expected client channel to be closed after Handle")
	}
	if f.hub.presence.IsOnline(f.alice.ID) {
		t.Error("expected alice to be offline after Handle")
	}
}

func TestConnectionReadErrorTearsDown(t *testing.T) {
	f := newFixture(t)

	client := f.join(t, f.bob.ID)
	ws := newFakeWS()
	conn := NewConnection(f.hub, ws, client)

	done := make(chan error, 1)
	go func() { done <- conn.Handle(context.Background()) }()

	awaitWrite(t, ws) // UserOnline

	// A failed read (client went away) shuts the connection down.
	_ = ws.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected the read error to surface")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for Handle to return")
	}
	if f.hub.presence.IsOnline(f.bob.ID) {
		t.Error("expected bob to be offline after teardown")
	}
}
