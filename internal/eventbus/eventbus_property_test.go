package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: for any number of subscribers and any number of published
// events, every subscriber with a queue large enough to hold them all
// receives exactly that many events.
func TestProperty_AllSubscribersReceiveEventsWithinTimeout(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	subscriberCountGen := gen.IntRange(1, 5)
	eventCountGen := gen.IntRange(1, 20)

	properties.Property("all subscribers receive all events when queues are unsaturated", prop.ForAll(
		func(subscriberCount, eventCount int) bool {
			bus := New(1000)

			var wg sync.WaitGroup
			received := make([]int64, subscriberCount)
			chans := make([]<-chan any, subscriberCount)
			for i := 0; i < subscriberCount; i++ {
				chans[i] = bus.Subscribe(TopicTick)
			}

			for i := 0; i < subscriberCount; i++ {
				wg.Add(1)
				go func(idx int, ch <-chan any) {
					defer wg.Done()
					timeout := time.After(2 * time.Second)
					for {
						select {
						case _, ok := <-ch:
							if !ok {
								return
							}
							if atomic.AddInt64(&received[idx], 1) >= int64(eventCount) {
								return
							}
						case <-timeout:
							return
						}
					}
				}(i, chans[i])
			}

			for i := 0; i < eventCount; i++ {
				bus.Publish(TopicTick, i)
			}

			wg.Wait()

			for _, count := range received {
				if count != int64(eventCount) {
					return false
				}
			}
			return true
		},
		subscriberCountGen, eventCountGen,
	))

	properties.TestingRun(t)
}

// Property: publishing to a topic with zero subscribers never blocks and
// never panics.
func TestProperty_PublishWithNoSubscribersNeverBlocks(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20

	properties := gopter.NewProperties(parameters)

	properties.Property("publish with no subscribers returns immediately", prop.ForAll(
		func(n int) bool {
			bus := New(8)
			done := make(chan struct{})
			go func() {
				for i := 0; i < n; i++ {
					bus.Publish(TopicSignal, i)
				}
				close(done)
			}()
			select {
			case <-done:
				return true
			case <-time.After(time.Second):
				return false
			}
		},
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

// A slow subscriber whose queue fills up drops events instead of blocking
// the publisher or other subscribers.
func TestSlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	bus := New(2)
	slow := bus.Subscribe(TopicTick)
	fast := bus.Subscribe(TopicTick)

	for i := 0; i < 10; i++ {
		bus.Publish(TopicTick, i)
	}

	fastReceived := 0
drain:
	for {
		select {
		case <-fast:
			fastReceived++
		default:
			break drain
		}
	}
	if fastReceived == 0 {
		t.Fatalf("fast subscriber received no events")
	}

	metrics := bus.Metrics()
	if metrics.Dropped == 0 {
		t.Fatalf("expected drops once the slow subscriber's queue filled")
	}

	bus.Unsubscribe(TopicTick, slow)
	bus.Unsubscribe(TopicTick, fast)
}
