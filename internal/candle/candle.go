// Package candle implements the tick-to-OHLC aggregator (C3): one open
// building candle per (securityId, interval), closed and persisted on
// boundary crossing, with depth-metric accumulators averaged into the
// closed bar.
package candle

import (
	"sync"
	"time"

	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/models"
)

// Store is the persistence sink a closed candle is upserted into. It is
// satisfied by the store package's candle adapter.
type Store interface {
	UpsertCandle(c models.Candle) error
}

type key struct {
	securityID string
	interval   models.Interval
}

// building is the in-progress accumulator for one (securityId, interval).
type building struct {
	candle models.Candle

	sumImbalance float64
	sumSpread    float64
	sumStrength  float64
	tickCount    int
}

// Aggregator owns the open-candle table. A single goroutine should drive
// Ingest per security to preserve the per-security ordering the spec
// requires; the table itself is safe for concurrent access across
// securities.
type Aggregator struct {
	mu        sync.Mutex
	open      map[key]*building
	intervals []models.Interval
	bus       *eventbus.Bus
	store     Store
	loc       *time.Location
}

// New creates an aggregator tracking the given intervals (default {1m, 5m}
// if none given), publishing candle:close/candle:update events on bus and
// persisting closed candles through store. loc is the exchange timezone
// (e.g. IST) every bar boundary is floored against; a nil loc falls back to
// UTC.
func New(intervals []models.Interval, bus *eventbus.Bus, store Store, loc *time.Location) *Aggregator {
	if len(intervals) == 0 {
		intervals = []models.Interval{models.Interval1m, models.Interval5m}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		open:      make(map[key]*building),
		intervals: intervals,
		bus:       bus,
		store:     store,
		loc:       loc,
	}
}

// Ingest feeds one enriched tick into every tracked interval's bucket for
// the tick's security, closing any bucket whose bar boundary the tick has
// crossed.
func (a *Aggregator) Ingest(tick models.Tick, metrics models.DepthMetrics) error {
	for _, iv := range a.intervals {
		if err := a.ingestInterval(tick, metrics, iv); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) ingestInterval(tick models.Tick, metrics models.DepthMetrics, iv models.Interval) error {
	barStart := floorToBar(tick.LTT, iv, a.loc)
	k := key{securityID: tick.SecurityID, interval: iv}

	a.mu.Lock()
	b, exists := a.open[k]
	var toClose *models.Candle
	if exists && !b.candle.Timestamp.Equal(barStart) {
		closed := finalize(b)
		toClose = &closed
		delete(a.open, k)
		exists = false
	}
	if !exists {
		b = &building{candle: models.Candle{
			SecurityID: tick.SecurityID,
			Interval:   iv,
			Open:       tick.LTP,
			High:       tick.LTP,
			Low:        tick.LTP,
			Close:      tick.LTP,
			Timestamp:  barStart,
		}}
		a.open[k] = b
	}

	if tick.LTP > b.candle.High {
		b.candle.High = tick.LTP
	}
	if tick.LTP < b.candle.Low {
		b.candle.Low = tick.LTP
	}
	b.candle.Close = tick.LTP
	b.candle.Volume = tick.Volume
	b.sumImbalance += metrics.BidAskImbalance
	b.sumSpread += metrics.DepthSpread
	b.sumStrength += metrics.OrderBookStrength
	b.tickCount++
	update := b.candle
	a.mu.Unlock()

	if toClose != nil {
		if err := a.store.UpsertCandle(*toClose); err != nil {
			return err
		}
		a.bus.Publish(eventbus.TopicCandleClose, *toClose)
	}
	a.bus.Publish(eventbus.TopicCandleUpdate, update)
	return nil
}

// Close finalizes and persists every currently open candle. Called on
// shutdown so no partial bar is lost silently.
func (a *Aggregator) Close() error {
	a.mu.Lock()
	closing := make([]*building, 0, len(a.open))
	for k, b := range a.open {
		closing = append(closing, b)
		delete(a.open, k)
	}
	a.mu.Unlock()

	for _, b := range closing {
		closed := finalize(b)
		if err := a.store.UpsertCandle(closed); err != nil {
			return err
		}
		a.bus.Publish(eventbus.TopicCandleClose, closed)
	}
	return nil
}

// finalize divides the depth-metric accumulators by tick count and marks
// the candle closed. A bucket that received zero ticks (shouldn't happen in
// practice, but guarded) uses the documented neutral defaults.
func finalize(b *building) models.Candle {
	c := b.candle
	c.IsClosed = true
	if b.tickCount == 0 {
		c.AvgImbalance, c.AvgSpread, c.AvgStrength = 1, 0, 0
		return c
	}
	n := float64(b.tickCount)
	c.AvgImbalance = b.sumImbalance / n
	c.AvgSpread = b.sumSpread / n
	c.AvgStrength = b.sumStrength / n
	return c
}

// floorToBar truncates t to the start of its interval bucket in loc, the
// configured exchange timezone, never the host process's zone. Day bars
// floor to loc midnight; all other intervals floor to the interval's
// fixed-size boundary measured against loc's wall clock (e.g. 1h bars land
// on IST hour marks, not UTC ones, which are offset by 30 minutes).
func floorToBar(t time.Time, iv models.Interval, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if iv == models.Interval1d {
		local := t.In(loc)
		y, m, d := local.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	d := iv.Duration()
	if d <= 0 {
		return t
	}
	_, offset := t.In(loc).Zone()
	off := time.Duration(offset) * time.Second
	return t.Add(off).Truncate(d).Add(-off)
}
