package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/horse-race-game/game/race"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(log.New(io.Discard))
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func newTestClient(hub *Hub, sessionID string) *Client {
	return &Client{
		hub:       hub,
		sessionID: sessionID,
		send:      make(chan []byte, sendBuffer),
	}
}

func sampleState() *race.GameState {
	return &race.GameState{
		GameInProgress: true,
		Status:         race.StatusRunning,
		Horses: []race.Horse{
			{ID: 1, Name: "Thunderbolt", Color: "red", Condition: 80},
		},
		RaceState: race.RaceState{Running: true, RaceIndex: 2},
	}
}

func readMessage(t *testing.T, ch <-chan []byte) Message {
	t.Helper()
	select {
	case data := <-ch:
		var message Message
		require.NoError(t, json.Unmarshal(data, &message))
		return message
	case <-time.After(time.Second):
		t.Fatal("no message received within timeout")
		return Message{}
	}
}

func TestHubRegisterClient(t *testing.T) {
	hub := newTestHub(t)
	client := newTestClient(hub, "AB12")

	hub.registerClient(client)

	assert.True(t, hub.sessions["ab12"][client])
	assert.Equal(t, 1, hub.ClientCount("ab12"))
	assert.Equal(t, 1, hub.ClientCount("AB12"))
}

func TestHubUnregisterClient(t *testing.T) {
	hub := newTestHub(t)
	client1 := newTestClient(hub, "multi")
	client2 := newTestClient(hub, "multi")

	hub.registerClient(client1)
	hub.registerClient(client2)
	assert.Equal(t, 2, hub.ClientCount("multi"))

	hub.unregisterClient(client1)
	assert.Equal(t, 1, hub.ClientCount("multi"))
	assert.True(t, hub.sessions["multi"][client2])

	_, open := <-client1.send
	assert.False(t, open, "send channel must be closed")

	// Unregistering twice is harmless
	hub.unregisterClient(client1)

	hub.unregisterClient(client2)
	_, exists := hub.sessions["multi"]
	assert.False(t, exists, "empty sessions are cleaned up")
}

func TestHubBroadcastToSession(t *testing.T) {
	hub := newTestHub(t)
	target := newTestClient(hub, "broadcast-test")
	other := newTestClient(hub, "other")
	hub.registerClient(target)
	hub.registerClient(other)

	hub.BroadcastToSession("broadcast-test", sampleState())
	hub.broadcastMessage(<-hub.broadcast)

	message := readMessage(t, target.send)
	assert.Equal(t, "broadcast-test", message.SessionID)
	assert.Equal(t, EventStateUpdate, message.Event)
	require.NotNil(t, message.GameState)
	assert.Equal(t, race.StatusRunning, message.GameState.Status)
	assert.Equal(t, 2, message.GameState.RaceState.RaceIndex)

	assert.Empty(t, other.send, "other sessions receive nothing")
}

func TestHubBroadcastEvent(t *testing.T) {
	hub := newTestHub(t)

	hub.BroadcastEvent("event-test", string(race.EventFinishRecorded), race.Event{HorseID: 4})

	select {
	case message := <-hub.broadcast:
		assert.Equal(t, "event-test", message.SessionID)
		assert.Equal(t, "finish_recorded", message.Event)
		assert.Equal(t, race.Event{HorseID: 4}, message.Data)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no broadcast message queued")
	}
}

func TestHubBroadcastNeverBlocks(t *testing.T) {
	hub := newTestHub(t)

	// Nothing drains the queue; the extra messages are dropped
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer+10; i++ {
			hub.BroadcastToSession("full", sampleState())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full queue")
	}
	assert.Len(t, hub.broadcast, broadcastBuffer)
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := newTestHub(t)
	slow := &Client{hub: hub, sessionID: "slow", send: make(chan []byte)}
	hub.registerClient(slow)

	hub.broadcastMessage(&Message{SessionID: "slow", Event: "tick"})

	assert.Equal(t, 0, hub.ClientCount("slow"))
}

func newWSServer(t *testing.T, hub *Hub, initial *race.GameState) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("session"), initial)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketLifecycle(t *testing.T) {
	hub := startHub(t)
	wsURL := newWSServer(t, hub, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?session=ws-test", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return hub.ClientCount("ws-test") == 1 },
		time.Second, 5*time.Millisecond)

	conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount("ws-test") == 0 },
		time.Second, 5*time.Millisecond, "client should be removed after close")
}

func TestWebSocketMessageReceive(t *testing.T) {
	hub := startHub(t)
	initial := sampleState()
	initial.RaceState.RaceIndex = 0
	wsURL := newWSServer(t, hub, initial)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?session=msg-test", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() Message {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var message Message
		require.NoError(t, json.Unmarshal(data, &message))
		return message
	}

	first := read()
	assert.Equal(t, EventStateUpdate, first.Event)
	require.NotNil(t, first.GameState)
	assert.Equal(t, 0, first.GameState.RaceState.RaceIndex)

	require.Eventually(t, func() bool { return hub.ClientCount("msg-test") == 1 },
		time.Second, 5*time.Millisecond)

	hub.BroadcastToSession("MSG-TEST", sampleState())

	second := read()
	assert.Equal(t, "MSG-TEST", second.SessionID)
	require.NotNil(t, second.GameState)
	assert.Equal(t, 2, second.GameState.RaceState.RaceIndex)
	require.Len(t, second.GameState.Horses, 1)
	assert.Equal(t, "Thunderbolt", second.GameState.Horses[0].Name)
}

func TestHubRunStopsOnCancel(t *testing.T) {
	hub := newTestHub(t)
	client := newTestClient(hub, "bye")
	hub.registerClient(client)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	_, open := <-client.send
	assert.False(t, open)
	assert.Equal(t, 0, hub.ClientCount("bye"))
}
