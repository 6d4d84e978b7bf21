package chat

import (
	"log/slog"
	"testing"
	"time"
)

func newTestClient(hub *Hub, dinnerID, userID string) *Client {
	return &Client{
		hub:      hub,
		send:     make(chan []byte, 8),
		dinnerID: dinnerID,
		userID:   userID,
	}
}

func recvOrFail(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case payload := <-c.send:
		return payload
	case <-time.After(time.Second):
		t.Fatal("no payload received")
		return nil
	}
}

func TestHubBroadcastsWithinRoom(t *testing.T) {
	hub := NewHub(slog.New(slog.DiscardHandler))
	go hub.Run()

	a := newTestClient(hub, "d1", "u1")
	b := newTestClient(hub, "d1", "u2")
	other := newTestClient(hub, "d2", "u3")
	hub.register <- a
	hub.register <- b
	hub.register <- other

	hub.Broadcast("d1", []byte("hello"))

	if got := recvOrFail(t, a); string(got) != "hello" {
		t.Errorf("a received %q", got)
	}
	if got := recvOrFail(t, b); string(got) != "hello" {
		t.Errorf("b received %q", got)
	}

	select {
	case payload := <-other.send:
		t.Errorf("other room received %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := NewHub(slog.New(slog.DiscardHandler))
	go hub.Run()

	c := newTestClient(hub, "d1", "u1")
	hub.register <- c
	hub.unregister <- c

	select {
	case _, open := <-c.send:
		if open {
			t.Error("send channel still open after unregister")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}

	// Broadcasting to the emptied room must not panic or block.
	hub.Broadcast("d1", []byte("late"))
}
