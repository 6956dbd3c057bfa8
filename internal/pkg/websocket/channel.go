package websocket

import (
	"encoding/json"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/piresc/tumpang/internal/pkg/constants"
	"github.com/piresc/tumpang/internal/pkg/credentials"
	"github.com/piresc/tumpang/internal/pkg/logger"
	"github.com/piresc/tumpang/internal/pkg/models"
	"github.com/piresc/tumpang/internal/pkg/observability"
)

// Handler consumes the payload of one push message
type Handler func(payload json.RawMessage)

// UnsubscribeFunc removes exactly one handler registration. Safe to call twice.
type UnsubscribeFunc func()

type subscription struct {
	id      uint64
	handler Handler
}

// Channel is the single shared push channel per client session: one
// reconnecting WebSocket connection multiplexing topic-tagged messages to
// any number of subscribers.
//
// Subscriptions are held client-side, so they survive reconnects without
// any re-subscription protocol. Publishing is best-effort, at-most-once:
// messages sent while the channel is down are dropped, not queued.
type Channel struct {
	mu     sync.Mutex
	url    string
	creds  credentials.Store
	delay  time.Duration
	dialer *websocket.Dialer

	conn      *websocket.Conn
	writeMu   sync.Mutex
	subs      map[string][]*subscription
	nextSubID uint64
	connected bool
	closed    bool
	reconnect *time.Timer
	onState   []func(connected bool)
}

// NewChannel creates a push channel for the given endpoint. The connection
// is not opened until Connect is called.
func NewChannel(url string, creds credentials.Store, reconnectDelay time.Duration) *Channel {
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	return &Channel{
		url:    url,
		creds:  creds,
		delay:  reconnectDelay,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		subs:   make(map[string][]*subscription),
	}
}

// Connect opens the connection, authenticated with the stored bearer
// credential. A missing credential makes this a no-op. An established
// connection replaces any prior one.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	token, err := c.creds.Get()
	if err != nil {
		logger.Debug("Push channel connect skipped, no credential", logger.Err(err))
		return
	}

	header := nethttp.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := c.dialer.Dial(c.url, header)
	if err != nil {
		logger.Warn("Push channel dial failed",
			logger.String("url", c.url),
			logger.Err(err))
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.connected = true
	listeners := append([]func(bool){}, c.onState...)
	c.mu.Unlock()

	logger.Info("Push channel connected", logger.String("url", c.url))
	for _, fn := range listeners {
		fn(true)
	}

	go c.readLoop(conn)
}

// readLoop consumes inbound messages until the connection dies, then
// hands off to the reconnect path
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg models.WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			observability.WSMalformedMessagesTotal.Inc()
			logger.Warn("Dropping malformed push message", logger.Err(err))
			continue
		}
		if !constants.KnownEvent(msg.Type) {
			observability.WSMalformedMessagesTotal.Inc()
			logger.Debug("Dropping push message of unknown type",
				logger.String("type", msg.Type))
			continue
		}

		c.dispatch(msg)
	}

	c.handleDisconnect(conn)
}

// dispatch invokes handlers for the message's topic in registration order
func (c *Channel) dispatch(msg models.WSMessage) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.subs[msg.Type]))
	for _, sub := range c.subs[msg.Type] {
		handlers = append(handlers, sub.handler)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(msg.Payload)
	}
}

func (c *Channel) handleDisconnect(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer connection already replaced this one
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	closed := c.closed
	listeners := append([]func(bool){}, c.onState...)
	c.mu.Unlock()

	conn.Close()
	for _, fn := range listeners {
		fn(false)
	}

	if !closed {
		logger.Warn("Push channel disconnected, reconnecting",
			logger.Duration("delay", c.delay))
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms exactly one reconnect attempt after the fixed delay
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.reconnect != nil {
		return
	}
	observability.WSReconnectsTotal.Inc()
	c.reconnect = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		c.reconnect = nil
		c.mu.Unlock()
		c.Connect()
	})
}

// Subscribe registers a handler for messages tagged with the topic.
// Multiple handlers may share one topic and run in registration order.
// The returned function removes only this registration.
func (c *Channel) Subscribe(topic string, handler Handler) UnsubscribeFunc {
	c.mu.Lock()
	c.nextSubID++
	sub := &subscription{id: c.nextSubID, handler: handler}
	c.subs[topic] = append(c.subs[topic], sub)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subs[topic]
		for i, s := range subs {
			if s.id == sub.id {
				c.subs[topic] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish sends {topic, payload} if the channel is open. Otherwise the
// message is dropped and counted; there is no queueing or retry.
func (c *Channel) Publish(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	open := c.connected
	c.mu.Unlock()

	if !open || conn == nil {
		observability.WSDroppedPublishesTotal.Inc()
		logger.Debug("Push channel not connected, dropping publish",
			logger.String("topic", topic))
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(models.WSMessage{Type: topic, Payload: data})
}

// Connected reports whether the channel currently holds a live connection
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// OnConnectionChange registers a listener for connectivity transitions,
// letting dependents poll more aggressively while disconnected
func (c *Channel) OnConnectionChange(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = append(c.onState, fn)
}

// Close tears the channel down and cancels any pending reconnect.
// The channel cannot be reused afterwards.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
