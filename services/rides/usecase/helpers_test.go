package usecase

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/piresc/tumpang/internal/pkg/models"
	"github.com/piresc/tumpang/internal/pkg/websocket"
)

// fakeChannel is an in-process stand-in for the push channel
type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	subs      map[string][]websocket.Handler
	published map[string][]interface{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		connected: true,
		subs:      make(map[string][]websocket.Handler),
		published: make(map[string][]interface{}),
	}
}

func (c *fakeChannel) Subscribe(topic string, handler websocket.Handler) websocket.UnsubscribeFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[topic] = append(c.subs[topic], handler)
	return func() {}
}

func (c *fakeChannel) Publish(topic string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published[topic] = append(c.published[topic], payload)
	return nil
}

func (c *fakeChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// push delivers a message to every subscriber of the topic, the way the
// real channel dispatches inbound frames
func (c *fakeChannel) push(t *testing.T, topic string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)

	c.mu.Lock()
	handlers := append([]websocket.Handler{}, c.subs[topic]...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}

// mustJSON marshals a value the way the channel would deliver it
func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func (c *fakeChannel) publishedTo(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published[topic])
}

// testConfig returns a config whose poll loops never fire during a test
func testConfig() *models.Config {
	cfg := &models.Config{}
	cfg.API.Timeout = 2 * time.Second
	cfg.Poll.ActiveRideInterval = time.Hour
	cfg.Poll.DisconnectedInterval = time.Hour
	cfg.Poll.NearbyOffersInterval = time.Hour
	cfg.Rides.OffersRadiusKm = 5
	return cfg
}
