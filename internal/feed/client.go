package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"indexfeed-trader/internal/eventbus"
	ferrors "indexfeed-trader/internal/errors"
	"indexfeed-trader/internal/logging"
)

// Config tunes one Client.
type Config struct {
	Endpoint             string
	DepthEndpoint        string
	Token                string
	ClientID             string
	InitialDelay         time.Duration
	MaxReconnectAttempts int
	KeepaliveInterval    time.Duration
}

// DefaultConfig matches the documented feed defaults.
func DefaultConfig() Config {
	return Config{
		InitialDelay:         5 * time.Second,
		MaxReconnectAttempts: 5,
		KeepaliveInterval:    30 * time.Second,
	}
}

// Client is the C1 binary feed client: it owns the vendor WebSocket
// connection, decodes frames, republishes them on the event bus, and
// reconnects with exponential backoff after a drop.
type Client struct {
	cfg    Config
	bus    *eventbus.Bus
	logger zerolog.Logger

	mu              sync.RWMutex
	conn            *websocket.Conn
	state           State
	subscriptions   map[InstrumentRef]bool
	reconnecting    bool
	reconnectAttempt int

	cancel context.CancelFunc
}

// New creates a feed client publishing decoded events onto bus.
func New(cfg Config, bus *eventbus.Bus, logger zerolog.Logger) *Client {
	return &Client{
		cfg:           cfg,
		bus:           bus,
		logger:        logging.WithComponent(logger, "feed"),
		subscriptions: make(map[InstrumentRef]bool),
		state:         StateDisconnected,
	}
}

// State reports the client's current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Connected reports whether the client currently has a live, usable feed
// connection, for the /healthz probe.
func (c *Client) Connected() bool {
	switch c.State() {
	case StateConnected, StateSubscribed:
		return true
	default:
		return false
	}
}

// Start dials the feed and runs the read loop until ctx is cancelled,
// reconnecting with backoff on any drop that isn't an auth-class
// disconnection. It blocks until ctx is done or reconnection is exhausted.
func (c *Client) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}
		if err != nil && isAuthClassErr(err) {
			c.logger.Error().Err(err).Msg("auth-class disconnect, not reconnecting")
			c.bus.Publish(eventbus.TopicServerDisconnect, err)
			c.setState(StateDisconnected)
			return err
		}

		if !c.reconnectWithBackoff(ctx) {
			c.setState(StateDisconnected)
			return fmt.Errorf("feed: reconnection exhausted")
		}
	}
}

// Close tears down the connection and stops the client's goroutines.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Subscribe adds instruments to the Full-packet connection's subscription
// set and sends the subscription request if currently connected.
func (c *Client) Subscribe(refs []InstrumentRef) error {
	c.mu.Lock()
	for _, r := range refs {
		c.subscriptions[r] = true
	}
	conn := c.conn
	connected := c.state == StateConnected || c.state == StateSubscribed
	c.mu.Unlock()

	if !connected || conn == nil {
		return nil
	}
	return c.sendSubscriptions(conn, refs)
}

// Unsubscribe removes instruments from the subscription set and notifies
// the vendor if currently connected.
func (c *Client) Unsubscribe(refs []InstrumentRef) error {
	c.mu.Lock()
	for _, r := range refs {
		delete(c.subscriptions, r)
	}
	conn := c.conn
	connected := c.state == StateConnected || c.state == StateSubscribed
	c.mu.Unlock()

	if !connected || conn == nil {
		return nil
	}
	for _, req := range NewUnsubscribeRequest(refs) {
		if err := conn.WriteJSON(req); err != nil {
			return ferrors.NewFeedError("unsubscribe", "write failed", err)
		}
	}
	return nil
}

func (c *Client) sendSubscriptions(conn *websocket.Conn, refs []InstrumentRef) error {
	for _, req := range NewSubscriptionRequest(refs) {
		if err := conn.WriteJSON(req); err != nil {
			return ferrors.NewFeedError("subscribe", "write failed", err)
		}
	}
	return nil
}

func (c *Client) runOnce(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.dialURL(), nil)
	if err != nil {
		return ferrors.NewFeedError("connect", "dial failed", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	first := !c.reconnecting
	c.reconnecting = false
	c.reconnectAttempt = 0
	refs := make([]InstrumentRef, 0, len(c.subscriptions))
	for r := range c.subscriptions {
		refs = append(refs, r)
	}
	c.mu.Unlock()

	c.bus.Publish(eventbus.TopicConnected, struct{}{})
	c.logger.Info().Bool("resumed", !first).Msg("feed connected")

	if len(refs) > 0 {
		if err := c.sendSubscriptions(conn, refs); err != nil {
			conn.Close()
			return err
		}
		c.setState(StateSubscribed)
	}

	keepaliveCtx, stopKeepalive := context.WithCancel(ctx)
	defer stopKeepalive()
	go c.keepalive(keepaliveCtx, conn)

	err = c.readLoop(ctx, conn)
	stopKeepalive()
	conn.Close()

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	c.bus.Publish(eventbus.TopicDisconnected, err)
	return err
}

func (c *Client) dialURL() string {
	return c.cfg.Endpoint
}

func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn) {
	interval := c.cfg.KeepaliveInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return ferrors.NewFeedError("read", "connection closed", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := c.handleFrame(payload); err != nil {
			if _, ok := err.(*authClassError); ok {
				return err
			}
			c.logger.Warn().Err(err).Msg("dropping malformed frame")
		}
	}
}

func (c *Client) handleFrame(buf []byte) error {
	events, err := DecodeFrame(buf)
	if err != nil {
		return err
	}
	for _, e := range events {
		c.bus.Publish(e.Topic, e.Payload)
	}
	return nil
}

// authClassError wraps a server disconnection whose reason forbids
// automatic reconnection.
type authClassError struct {
	reason DisconnectionReason
}

func (e *authClassError) Error() string {
	return fmt.Sprintf("feed: server disconnect, reason %d", e.reason)
}

func isAuthClassErr(err error) bool {
	ae, ok := err.(*authClassError)
	return ok && ae.reason.IsAuthClass()
}

// IsAuthError reports whether err is, or wraps, a fatal, non-retryable
// disconnection from the vendor (expired token, duplicate connection, and
// similar), for callers deciding a process exit code.
func IsAuthError(err error) bool {
	var ae *authClassError
	return errors.As(err, &ae) && ae.reason.IsAuthClass()
}

// reconnectWithBackoff waits out one exponential-backoff delay and reports
// whether the caller should retry the connection. The attempt counter
// persists across calls within a single degraded episode and resets to zero
// the moment a connection succeeds; once it reaches MaxReconnectAttempts the
// client gives up and Start returns an error.
func (c *Client) reconnectWithBackoff(ctx context.Context) bool {
	c.mu.Lock()
	c.reconnecting = true
	attempt := c.reconnectAttempt
	c.reconnectAttempt++
	c.mu.Unlock()
	c.setState(StateDegraded)

	maxAttempts := c.cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if attempt >= maxAttempts {
		return false
	}

	base := c.cfg.InitialDelay
	if base <= 0 {
		base = time.Second
	}
	delay := base * time.Duration(math.Pow(2, float64(attempt)))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	logging.LogReconnect(c.logger, attempt+1, delay, nil)

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}
