package hub

import (
	"testing"

	"github.com/rs/zerolog"

	"indexfeed-trader/internal/eventbus"
)

func TestSubscriberEnqueueDropsWhenQueueFull(t *testing.T) {
	sub := newSubscriber(nil)
	for i := 0; i < outboundQueueSize; i++ {
		if !sub.enqueue(outboundMessage{Topic: "ticks"}) {
			t.Fatalf("unexpected drop before queue reached capacity at message %d", i)
		}
	}
	if sub.enqueue(outboundMessage{Topic: "ticks"}) {
		t.Fatalf("expected drop once queue is at the high-water mark")
	}
}

func TestHandleInboundJoinsAndLeavesTopic(t *testing.T) {
	h := New(eventbus.New(8), nil, zerolog.Nop())
	sub := newSubscriber(nil)

	h.handleInbound(sub, inboundMessage{Subscribe: TopicTicks})
	if !sub.topics[TopicTicks] {
		t.Fatalf("expected subscriber to join ticks topic")
	}

	h.handleInbound(sub, inboundMessage{Unsubscribe: TopicTicks})
	if sub.topics[TopicTicks] {
		t.Fatalf("expected subscriber to leave ticks topic")
	}
}

func TestBroadcastOnlyReachesJoinedSubscribers(t *testing.T) {
	h := New(eventbus.New(8), nil, zerolog.Nop())

	joined := newSubscriber(nil)
	joined.topics[TopicTicks] = true
	notJoined := newSubscriber(nil)
	notJoined.topics[TopicCandles] = true

	h.subscribers[joined] = struct{}{}
	h.subscribers[notJoined] = struct{}{}

	h.broadcast(TopicTicks, "tick-payload")

	select {
	case msg := <-joined.send:
		if msg.Topic != string(TopicTicks) {
			t.Fatalf("unexpected topic on joined subscriber: %s", msg.Topic)
		}
	default:
		t.Fatalf("expected joined subscriber to receive the broadcast")
	}

	select {
	case <-notJoined.send:
		t.Fatalf("unjoined subscriber should not receive ticks broadcasts")
	default:
	}
}

type fakeStatusProvider struct{ status Status }

func (f fakeStatusProvider) Status() Status { return f.status }

func TestNewWiresStatusProvider(t *testing.T) {
	h := New(eventbus.New(8), fakeStatusProvider{status: Status{FeedConnected: true}}, zerolog.Nop())
	if h.status == nil {
		t.Fatalf("expected status provider to be wired")
	}
}
