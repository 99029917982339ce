package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishQueuesEnvelope(t *testing.T) {
	hub := NewHub(nil)

	hub.Publish("commission.created", map[string]string{"id": "c-1"})

	require.Len(t, hub.Broadcast, 1)
	var msg struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(<-hub.Broadcast, &msg))
	assert.Equal(t, "commission.created", msg.Type)
	assert.Equal(t, "c-1", msg.Data["id"])
}

func TestHubPublishDropsWhenQueueFull(t *testing.T) {
	hub := NewHub(nil)

	for i := 0; i < broadcastBuffer+10; i++ {
		hub.Publish("commission.paid", i)
	}

	assert.Len(t, hub.Broadcast, broadcastBuffer)
}

func TestHubPublishSkipsUnserializablePayload(t *testing.T) {
	hub := NewHub(nil)

	hub.Publish("commission.created", make(chan int))

	assert.Len(t, hub.Broadcast, 0)
}

func TestHubRunStopsOnCancel(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := &Client{Hub: hub, Send: make(chan []byte, 4)}
	hub.register <- client
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish("commission.approved", map[string]string{"id": "c-2"})
	select {
	case raw := <-client.Send:
		assert.Contains(t, string(raw), "commission.approved")
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}

	cancel()
	select {
	case <-hub.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	_, open := <-client.Send
	assert.False(t, open, "client channel closed on shutdown")
	assert.Equal(t, 0, hub.ClientCount())

	// late unregister from a reader must not block once the hub is gone
	select {
	case hub.unregister <- client:
		t.Fatal("unregister accepted after stop")
	case <-hub.Done():
	}
}
