package websocket

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piresc/tumpang/internal/pkg/constants"
	"github.com/piresc/tumpang/internal/pkg/credentials"
	"github.com/piresc/tumpang/internal/pkg/models"
)

type staticCreds struct {
	token string
	err   error
}

func (s staticCreds) Get() (string, error) { return s.token, s.err }
func (s staticCreds) Set(string) error     { return nil }
func (s staticCreds) Clear() error         { return nil }

// newWSServer runs a WebSocket endpoint that hands every accepted
// connection to onConn on its own goroutine
func newWSServer(t *testing.T, onConn func(*websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go onConn(conn)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(map[string]interface{}{
		"type":    eventType,
		"payload": json.RawMessage(data),
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func waitConnected(t *testing.T, c *Channel, want bool) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Connected() == want },
		2*time.Second, 10*time.Millisecond)
}

func TestChannel_DispatchInRegistrationOrder(t *testing.T) {
	conns := make(chan *websocket.Conn, 1)
	url := newWSServer(t, func(conn *websocket.Conn) { conns <- conn })

	c := NewChannel(url, staticCreds{token: "tok"}, time.Second)
	defer c.Close()

	received := make(chan string, 4)
	c.Subscribe(constants.EventRideAccepted, func(json.RawMessage) { received <- "first" })
	c.Subscribe(constants.EventRideAccepted, func(json.RawMessage) { received <- "second" })

	c.Connect()
	waitConnected(t, c, true)

	server := <-conns
	sendEvent(t, server, constants.EventRideAccepted, map[string]string{"id": "ride-1"})

	assert.Equal(t, "first", <-received)
	assert.Equal(t, "second", <-received)
}

func TestChannel_MalformedAndUnknownFramesDropped(t *testing.T) {
	conns := make(chan *websocket.Conn, 1)
	url := newWSServer(t, func(conn *websocket.Conn) { conns <- conn })

	c := NewChannel(url, staticCreds{token: "tok"}, time.Second)
	defer c.Close()

	received := make(chan json.RawMessage, 2)
	c.Subscribe(constants.EventRideAccepted, func(p json.RawMessage) { received <- p })

	c.Connect()
	waitConnected(t, c, true)
	server := <-conns

	// Garbage, a frame without a type, and an unknown topic: all dropped
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"payload":{}}`)))
	sendEvent(t, server, "totally_unknown_event", map[string]string{})

	// The connection survives and the next valid frame still arrives
	sendEvent(t, server, constants.EventRideAccepted, map[string]string{"id": "ride-1"})

	select {
	case payload := <-received:
		assert.JSONEq(t, `{"id":"ride-1"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame was not dispatched")
	}
	assert.Empty(t, received)
}

func TestSubscribe_UnsubscribeRemovesExactlyOne(t *testing.T) {
	c := NewChannel("ws://unused", staticCreds{token: "tok"}, time.Second)
	defer c.Close()

	var first, second atomic.Int32
	unsub := c.Subscribe(constants.EventRideStarted, func(json.RawMessage) { first.Add(1) })
	c.Subscribe(constants.EventRideStarted, func(json.RawMessage) { second.Add(1) })

	unsub()
	unsub() // idempotent

	c.dispatch(wsFrame(t, constants.EventRideStarted))
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestPublish_DroppedWhileDisconnected(t *testing.T) {
	c := NewChannel("ws://unused", staticCreds{token: "tok"}, time.Second)
	defer c.Close()

	// At-most-once: no connection means the message is dropped, not an error
	err := c.Publish(constants.EventDriverLocationUpdate, map[string]string{"k": "v"})
	assert.NoError(t, err)
}

func TestPublish_ReachesServer(t *testing.T) {
	frames := make(chan []byte, 1)
	url := newWSServer(t, func(conn *websocket.Conn) {
		_, raw, err := conn.ReadMessage()
		if err == nil {
			frames <- raw
		}
	})

	c := NewChannel(url, staticCreds{token: "tok"}, time.Second)
	defer c.Close()
	c.Connect()
	waitConnected(t, c, true)

	require.NoError(t, c.Publish(constants.EventDriverArrived, map[string]string{"ride_id": "ride-1"}))

	select {
	case raw := <-frames:
		assert.Contains(t, string(raw), constants.EventDriverArrived)
		assert.Contains(t, string(raw), "ride-1")
	case <-time.After(2 * time.Second):
		t.Fatal("published frame never reached the server")
	}
}

func TestConnect_NoCredentialIsNoop(t *testing.T) {
	c := NewChannel("ws://unused", staticCreds{err: credentials.ErrNoCredential}, time.Second)
	defer c.Close()

	c.Connect()
	assert.False(t, c.Connected())
}

func TestChannel_ReconnectKeepsSubscriptions(t *testing.T) {
	var connCount atomic.Int32
	conns := make(chan *websocket.Conn, 2)
	url := newWSServer(t, func(conn *websocket.Conn) {
		n := connCount.Add(1)
		if n == 1 {
			// Kill the first connection to force the reconnect path
			conn.Close()
			return
		}
		conns <- conn
	})

	c := NewChannel(url, staticCreds{token: "tok"}, 30*time.Millisecond)
	defer c.Close()

	received := make(chan json.RawMessage, 1)
	c.Subscribe(constants.EventRideCompleted, func(p json.RawMessage) { received <- p })

	var states []bool
	stateCh := make(chan bool, 8)
	c.OnConnectionChange(func(connected bool) { stateCh <- connected })

	c.Connect()
	require.Eventually(t, func() bool { return connCount.Load() >= 2 },
		3*time.Second, 10*time.Millisecond)
	waitConnected(t, c, true)

	// No re-subscription happened, yet the handler still fires
	server := <-conns
	sendEvent(t, server, constants.EventRideCompleted, map[string]string{"id": "ride-1"})

	select {
	case payload := <-received:
		assert.JSONEq(t, `{"id":"ride-1"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not survive the reconnect")
	}

	for len(stateCh) > 0 {
		states = append(states, <-stateCh)
	}
	assert.Contains(t, states, true)
	assert.Contains(t, states, false)
}

func TestClose_StopsReconnecting(t *testing.T) {
	// Nothing is listening here; the dial fails and arms a reconnect
	c := NewChannel("ws://127.0.0.1:1", staticCreds{token: "tok"}, 20*time.Millisecond)
	c.Connect()
	c.Close()

	time.Sleep(60 * time.Millisecond)
	assert.False(t, c.Connected())

	// Connect after Close stays a no-op
	c.Connect()
	assert.False(t, c.Connected())
}

func wsFrame(t *testing.T, eventType string) models.WSMessage {
	t.Helper()
	return models.WSMessage{Type: eventType, Payload: json.RawMessage(`{}`)}
}
