// Package pipeline wires the C1 feed client's raw tick/depth events into
// C2's depth metrics and from there into C3's candle aggregator and C9's
// tick log, implementing the "Ticks enrich via C2 and feed C3" data-flow
// step. It has no direct teacher counterpart since the reference repo's
// ticker delivers already-computed indicators on each tick rather than a
// raw binary feed; grounded instead on the bus-subscribe-and-dispatch shape
// every other stage in this pipeline (mtf, strategy, hub) already uses.
package pipeline

import (
	"sync"

	"github.com/rs/zerolog"

	"indexfeed-trader/internal/candle"
	"indexfeed-trader/internal/depth"
	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/models"
)

// TickStore is the persistence surface the enricher needs.
type TickStore interface {
	SaveTick(tick models.Tick) error
}

// Enricher merges the latest known depth snapshot into each incoming tick,
// tracks the rolling volume delta, persists the enriched tick, feeds it to
// the candle aggregator, and republishes a 20-level-ladder absorption
// analysis on TopicDepthAnalytics for the confluence strategy to consume.
type Enricher struct {
	bus        *eventbus.Bus
	aggregator *candle.Aggregator
	store      TickStore
	tracker    *depth.Tracker
	logger     zerolog.Logger

	mu     sync.Mutex
	latest map[string]models.MarketDepth
}

// New creates an Enricher. aggregator and store may not be nil.
func New(bus *eventbus.Bus, aggregator *candle.Aggregator, store TickStore, logger zerolog.Logger) *Enricher {
	return &Enricher{
		bus:        bus,
		aggregator: aggregator,
		store:      store,
		tracker:    depth.NewTracker(),
		logger:     logger.With().Str("component", "pipeline").Logger(),
		latest:     make(map[string]models.MarketDepth),
	}
}

// Run subscribes to the feed's raw tick and depth topics and blocks until
// both channels close (on bus shutdown). Intended to run in its own
// goroutine from the composition root.
func (e *Enricher) Run() {
	ticks := e.bus.Subscribe(eventbus.TopicTick)
	depths := e.bus.Subscribe(eventbus.TopicDepth)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for ev := range depths {
			md, ok := ev.(models.MarketDepth)
			if !ok {
				continue
			}
			e.observeDepth(md)
		}
	}()
	go func() {
		defer wg.Done()
		for ev := range ticks {
			tick, ok := ev.(models.Tick)
			if !ok {
				continue
			}
			e.observeTick(tick)
		}
	}()
	wg.Wait()
}

// observeDepth merges a bid- or ask-only ladder update into the security's
// latest known book and, once both sides are present, republishes an
// absorption analysis for the confluence strategy.
func (e *Enricher) observeDepth(md models.MarketDepth) {
	e.mu.Lock()
	merged := e.latest[md.SecurityID]
	if len(md.Bids) > 0 {
		merged.Bids = md.Bids
	}
	if len(md.Asks) > 0 {
		merged.Asks = md.Asks
	}
	merged.SecurityID = md.SecurityID
	merged.CapturedAt = md.CapturedAt
	e.latest[md.SecurityID] = merged
	e.mu.Unlock()

	if len(merged.Bids) == 0 || len(merged.Asks) == 0 {
		return
	}
	analytics := depth.ComputeAnalytics(md.SecurityID, merged.Bids, merged.Asks)
	e.bus.Publish(eventbus.TopicDepthAnalytics, analytics)
}

// observeTick attaches the security's latest depth metrics to the tick,
// persists it, and feeds the candle aggregator.
func (e *Enricher) observeTick(tick models.Tick) {
	e.mu.Lock()
	md := e.latest[tick.SecurityID]
	e.mu.Unlock()

	metrics := depth.Compute(md, tick.LTP)
	metrics.VolumeDelta = e.tracker.Observe(tick.SecurityID, tick.TotalBuyQty, tick.TotalSellQty)
	tick.DepthMetrics = metrics

	if err := e.store.SaveTick(tick); err != nil {
		e.logger.Warn().Err(err).Str("securityId", tick.SecurityID).Msg("failed to persist tick")
	}
	if err := e.aggregator.Ingest(tick, metrics); err != nil {
		e.logger.Warn().Err(err).Str("securityId", tick.SecurityID).Msg("candle ingest failed")
	}
}
