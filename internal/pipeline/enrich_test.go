package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"indexfeed-trader/internal/candle"
	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/models"
)

type fakeTickStore struct {
	mu    sync.Mutex
	ticks []models.Tick
}

func (f *fakeTickStore) SaveTick(tick models.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, tick)
	return nil
}

func (f *fakeTickStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ticks)
}

type fakeCandleStore struct{}

func (fakeCandleStore) UpsertCandle(c models.Candle) error { return nil }

func TestObserveDepthPublishesAnalyticsOnlyAfterBothSides(t *testing.T) {
	bus := eventbus.New(4)
	defer bus.Close()
	analytics := bus.Subscribe(eventbus.TopicDepthAnalytics)

	agg := candle.New(nil, bus, fakeCandleStore{}, nil)
	e := New(bus, agg, &fakeTickStore{}, zerolog.Nop())

	e.observeDepth(models.MarketDepth{
		SecurityID: "13",
		Bids:       []models.DepthLevel{{Price: 100, Quantity: 10}},
	})
	select {
	case <-analytics:
		t.Fatal("expected no analytics before both sides are known")
	case <-time.After(10 * time.Millisecond):
	}

	e.observeDepth(models.MarketDepth{
		SecurityID: "13",
		Asks:       []models.DepthLevel{{Price: 101, Quantity: 12}},
	})
	select {
	case <-analytics:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("expected analytics once both sides are known")
	}
}

func TestObserveTickPersistsAndFeedsAggregator(t *testing.T) {
	bus := eventbus.New(4)
	defer bus.Close()
	closes := bus.Subscribe(eventbus.TopicCandleUpdate)

	agg := candle.New([]models.Interval{models.Interval1m}, bus, fakeCandleStore{}, nil)
	store := &fakeTickStore{}
	e := New(bus, agg, store, zerolog.Nop())

	e.observeTick(models.Tick{
		SecurityID: "13",
		LTP:        25000,
		LTT:        time.Date(2026, 1, 5, 9, 15, 30, 0, time.UTC),
		Volume:     1000,
	})

	if store.count() != 1 {
		t.Fatalf("expected 1 persisted tick, got %d", store.count())
	}
	select {
	case <-closes:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("expected the aggregator to publish a candle:update")
	}
}
