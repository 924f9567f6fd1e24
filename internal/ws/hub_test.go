package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) *Hub {
	t.Helper()

	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func registerClient(t *testing.T, hub *Hub, userID int64) *Client {
	t.Helper()

	client := &Client{
		hub:    hub,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
		logger: zap.NewNop(),
	}
	hub.register <- client

	// Registration is asynchronous; wait until the hub has picked it up.
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients[userID][client]
	}, time.Second, 5*time.Millisecond)

	return client
}

func receiveEvent(t *testing.T, client *Client) Event {
	t.Helper()

	select {
	case payload := <-client.send:
		var event Event
		require.NoError(t, json.Unmarshal(payload, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestHub_ForceLogoutReachesAllUserConnections(t *testing.T) {
	hub := startHub(t)

	tab1 := registerClient(t, hub, 7)
	tab2 := registerClient(t, hub, 7)
	other := registerClient(t, hub, 8)

	hub.ForceLogout(7, "sess-1", "user logged out")

	for _, client := range []*Client{tab1, tab2} {
		event := receiveEvent(t, client)
		assert.Equal(t, EventSessionRevoked, event.Type)
		assert.Equal(t, "sess-1", event.Data["session_id"])
		assert.Equal(t, "user logged out", event.Data["reason"])
	}

	select {
	case <-other.send:
		t.Fatal("event leaked to another user's connection")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	hub := startHub(t)
	client := registerClient(t, hub, 7)

	hub.unregister <- client

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients[7] == nil
	}, time.Second, 5*time.Millisecond)

	_, open := <-client.send
	assert.False(t, open)

	// Notifying after unregister is a no-op.
	hub.ForceLogout(7, "sess-1", "user logged out")
}

func TestHub_SlowConsumerDoesNotBlock(t *testing.T) {
	hub := startHub(t)
	client := registerClient(t, hub, 7)

	// Fill the buffer past capacity; ForceLogout must return regardless.
	for i := 0; i < sendBuffer+5; i++ {
		done := make(chan struct{})
		go func() {
			hub.ForceLogout(7, "sess-1", "flood")
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("ForceLogout blocked on a slow consumer")
		}
	}

	assert.Len(t, client.send, sendBuffer)
}
