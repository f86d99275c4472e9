// Package hub implements the UI-facing fan-out hub (C8): it accepts
// WebSocket subscribers, lets each one join topics, and broadcasts pipeline
// events out to them over the shared event bus. It never feeds back into
// the pipeline — subscribers are a leaf, matching the one-way topology the
// rest of the engine follows.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/models"
)

// SubscriberTopic is a UI-facing stream a subscriber can join. These are
// coarser than eventbus.Topic: "positions" folds both open and closed
// position events into one stream for the UI.
type SubscriberTopic string

const (
	TopicTicks      SubscriberTopic = "ticks"
	TopicCandles    SubscriberTopic = "candles"
	TopicSignals    SubscriberTopic = "signals"
	TopicPositions  SubscriberTopic = "positions"
	TopicPortfolio  SubscriberTopic = "portfolio"
)

// outboundQueueSize is the per-subscriber buffered-message high-water mark.
// A subscriber that falls this far behind is dropped rather than allowed to
// back-pressure the broadcaster.
const outboundQueueSize = 1000

// StatusProvider supplies the snapshot sent to a subscriber on connect.
// Implemented by the serve command's composition root (internal/cli), which has a reference to
// every wired component.
type StatusProvider interface {
	Status() Status
}

// Status is the one-shot snapshot of pipeline state sent to a subscriber
// immediately after it connects.
type Status struct {
	FeedConnected       bool                `json:"feedConnected"`
	SubscribedInstruments []string          `json:"subscribedInstruments"`
	CandleState         map[string]string   `json:"candleState"`
	StrategyStatuses    map[string]string   `json:"strategyStatuses"`
	ExecutorState       string              `json:"executorState"`
	Portfolio           *models.Portfolio   `json:"portfolio,omitempty"`
	OpenPositions       []*models.Position  `json:"openPositions"`
}

// Hub manages WebSocket subscriber lifecycles and fans internal events out
// to them. Grounded on the reference stream hub's subscriber-map-plus-
// non-blocking-broadcast shape, generalized from per-symbol tick channels
// to per-topic JSON-framed WebSocket connections.
type Hub struct {
	bus    *eventbus.Bus
	status StatusProvider
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}

	droppedSubscribers uint64
}

// New creates a hub that fans bus events out to WebSocket subscribers,
// using status to build each subscriber's connect-time snapshot.
func New(bus *eventbus.Bus, status StatusProvider, logger zerolog.Logger) *Hub {
	return &Hub{
		bus:         bus,
		status:      status,
		logger:      logger.With().Str("component", "hub").Logger(),
		subscribers: make(map[*subscriber]struct{}),
	}
}

// inboundMessage is the shape of a message a subscriber sends to the hub:
// either a subscribe request or a pull request. Exactly one of Subscribe/
// Unsubscribe/Request is populated.
type inboundMessage struct {
	Subscribe   SubscriberTopic `json:"subscribe,omitempty"`
	Unsubscribe SubscriberTopic `json:"unsubscribe,omitempty"`
	Request     string          `json:"request,omitempty"`
}

// outboundMessage is the shape of every message the hub sends, tagged by
// topic so the UI can route it without guessing from payload shape.
type outboundMessage struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

type subscriber struct {
	conn   *websocket.Conn
	send   chan outboundMessage
	topics map[SubscriberTopic]bool
	mu     sync.Mutex
	closed bool
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		conn:   conn,
		send:   make(chan outboundMessage, outboundQueueSize),
		topics: make(map[SubscriberTopic]bool),
	}
}

// enqueue attempts a non-blocking send; it reports false if the
// subscriber's queue was already at the high-water mark, signaling the
// caller to drop the connection.
func (s *subscriber) enqueue(msg outboundMessage) bool {
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
	s.conn.Close()
}

// Serve upgrades conn into a tracked subscriber, sends the initial status
// snapshot, and runs its read and write pumps until the connection closes.
// Blocks until the subscriber disconnects.
func (h *Hub) Serve(conn *websocket.Conn) {
	sub := newSubscriber(conn)

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.subscribers, sub)
		h.mu.Unlock()
		sub.close()
	}()

	if h.status != nil {
		sub.enqueue(outboundMessage{Topic: "status", Payload: h.status.Status()})
	}

	done := make(chan struct{})
	go h.writePump(sub, done)
	h.readPump(sub)
	close(done)
}

func (h *Hub) readPump(sub *subscriber) {
	for {
		_, raw, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.logger.Debug().Err(err).Msg("malformed subscriber message")
			continue
		}
		h.handleInbound(sub, msg)
	}
}

func (h *Hub) handleInbound(sub *subscriber, msg inboundMessage) {
	sub.mu.Lock()
	switch {
	case msg.Subscribe != "":
		sub.topics[msg.Subscribe] = true
	case msg.Unsubscribe != "":
		delete(sub.topics, msg.Unsubscribe)
	}
	sub.mu.Unlock()

	if msg.Request != "" && h.status != nil {
		sub.enqueue(outboundMessage{Topic: "status", Payload: h.status.Status()})
	}
}

func (h *Hub) writePump(sub *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-sub.send:
			if !ok {
				return
			}
			if err := sub.conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

// broadcast fans payload out under topic to every subscriber currently
// joined to it. A subscriber whose queue is already full is disconnected —
// best-effort at-least-once-per-session delivery, matching the reference
// hub's slow-consumer-drop discipline.
func (h *Hub) broadcast(topic SubscriberTopic, payload any) {
	h.mu.RLock()
	var dead []*subscriber
	for sub := range h.subscribers {
		sub.mu.Lock()
		joined := sub.topics[topic]
		sub.mu.Unlock()
		if !joined {
			continue
		}
		if !sub.enqueue(outboundMessage{Topic: string(topic), Payload: payload}) {
			dead = append(dead, sub)
		}
	}
	h.mu.RUnlock()

	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, sub := range dead {
		delete(h.subscribers, sub)
	}
	h.mu.Unlock()
	h.droppedSubscribers += uint64(len(dead))
	for _, sub := range dead {
		sub.close()
	}
}

// Run subscribes to the shared bus and fans events out until ctx's done
// channel (passed implicitly via the bus's lifetime) closes. Intended to be
// started once by the serve command's composition root (internal/cli), alongside the pipeline.
func (h *Hub) Run() {
	ticks := h.bus.Subscribe(eventbus.TopicTick)
	candles := h.bus.Subscribe(eventbus.TopicCandleClose)
	signals := h.bus.Subscribe(eventbus.TopicSignal)
	positionUpdates := h.bus.Subscribe(eventbus.TopicPositionUpdate)
	positionClosed := h.bus.Subscribe(eventbus.TopicPositionClosed)
	portfolioUpdates := h.bus.Subscribe(eventbus.TopicPortfolioUpdate)

	for {
		select {
		case e, ok := <-ticks:
			if !ok {
				return
			}
			h.broadcast(TopicTicks, e)
		case e, ok := <-candles:
			if !ok {
				return
			}
			h.broadcast(TopicCandles, e)
		case e, ok := <-signals:
			if !ok {
				return
			}
			h.broadcast(TopicSignals, e)
		case e, ok := <-positionUpdates:
			if !ok {
				return
			}
			h.broadcast(TopicPositions, e)
		case e, ok := <-positionClosed:
			if !ok {
				return
			}
			h.broadcast(TopicPositions, e)
		case e, ok := <-portfolioUpdates:
			if !ok {
				return
			}
			h.broadcast(TopicPortfolio, e)
		}
	}
}

// SubscriberCount returns the number of live subscriber connections,
// reported by the /healthz probe.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
