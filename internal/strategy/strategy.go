// Package strategy hosts the fixed strategy set (C6): a shared Base trait
// for time-window/depth/sizing rules, the three built-in strategies, and an
// Engine that dispatches candle-close events to whichever strategies are
// declared for that interval.
package strategy

import (
	"math"
	"sync"
	"time"

	"indexfeed-trader/internal/config"
	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/models"
)

// Strategy is the contract every concrete strategy implements.
type Strategy interface {
	Name() string
	Interval() models.Interval
	OnCandle(candle models.Candle) (*models.Signal, string)
	ResetDaily()
}

// Base holds the rules shared by every strategy: trading-window gating,
// per-strategy daily trade caps, depth filters and position sizing. It is
// embedded by value by each concrete strategy, which calls its methods
// explicitly rather than relying on inheritance.
type Base struct {
	Risk config.RiskConfig

	maxTradesPerDay int
	tradesToday     int
	mu              sync.Mutex
}

// NewBase creates a Base with the given daily trade cap (0 = unlimited).
func NewBase(risk config.RiskConfig, maxTradesPerDay int) Base {
	return Base{Risk: risk, maxTradesPerDay: maxTradesPerDay}
}

// WithinIntradayWindow reports whether t's local time-of-day falls in the
// 09:30-15:15 intraday trading window.
func WithinIntradayWindow(t time.Time) bool {
	local := t.Local()
	open := time.Date(local.Year(), local.Month(), local.Day(), 9, 30, 0, 0, local.Location())
	close := time.Date(local.Year(), local.Month(), local.Day(), 15, 15, 0, 0, local.Location())
	return !local.Before(open) && !local.After(close)
}

// TryReserveTrade reports whether today's per-strategy trade cap still has
// room, and if so consumes one slot. A cap of 0 means unlimited.
func (b *Base) TryReserveTrade() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxTradesPerDay > 0 && b.tradesToday >= b.maxTradesPerDay {
		return false
	}
	b.tradesToday++
	return true
}

// ResetDaily zeroes the trade counter; called by the engine at market open.
func (b *Base) ResetDaily() {
	b.mu.Lock()
	b.tradesToday = 0
	b.mu.Unlock()
}

// DepthFilterResult is a passed filter or the logged reason it failed.
type DepthFilterResult struct {
	Passed bool
	Reason string
}

// PassesDepthFilter applies the shared buy/sell/liquidity depth gates.
func PassesDepthFilter(side models.Side, m models.DepthMetrics) DepthFilterResult {
	if m.LiquidityScore < 60 {
		return DepthFilterResult{Reason: "liquidity below 60"}
	}
	switch side {
	case models.SideBuy:
		if m.BidAskImbalance < 1.3 || m.OrderBookStrength <= 0 {
			return DepthFilterResult{Reason: "buy depth filter failed"}
		}
	case models.SideSell:
		if m.BidAskImbalance > 0.77 || m.OrderBookStrength >= 0 {
			return DepthFilterResult{Reason: "sell depth filter failed"}
		}
	}
	return DepthFilterResult{Passed: true}
}

// PositionSize computes the lot-rounded quantity for a risk-sized entry at
// entryPrice, using the Base's risk configuration.
func (b *Base) PositionSize(entryPrice float64) int64 {
	riskPct := b.Risk.RiskPct
	if riskPct <= 0 {
		riskPct = 0.01
	}
	stopLossPct := b.Risk.StopLossPct
	if stopLossPct <= 0 {
		stopLossPct = 0.01
	}
	lotSize := b.Risk.LotSize
	if lotSize <= 0 {
		lotSize = 75
	}

	risk := b.Risk.TotalCapital * riskPct
	perUnitRisk := entryPrice * stopLossPct
	if perUnitRisk <= 0 {
		return int64(lotSize)
	}
	rawQty := risk / perUnitRisk
	lots := math.Floor(rawQty / float64(lotSize))
	if lots < 1 {
		lots = 1
	}
	return int64(lots) * int64(lotSize)
}

// DefaultStopTarget returns the 1%/3% stop-loss and target prices for a
// long or short entry at entryPrice.
func DefaultStopTarget(side models.Side, entryPrice float64) (stopLoss, target float64) {
	stopLossPct, targetPct := 0.01, 0.03
	if side == models.SideSell {
		return entryPrice * (1 + stopLossPct), entryPrice * (1 - targetPct)
	}
	return entryPrice * (1 - stopLossPct), entryPrice * (1 + targetPct)
}

// Engine dispatches candle:close events to every active strategy declared
// for that candle's interval, persists resulting signals, and runs the
// daily reset at market open.
type Engine struct {
	bus        *eventbus.Bus
	strategies []Strategy
	signalSink SignalSink
	logger     Logger
}

// SignalSink persists a signal, writing its assigned ID back onto it.
type SignalSink interface {
	SaveSignal(s *models.Signal) error
}

// Logger is the minimal logging surface the engine needs, so it doesn't
// import zerolog directly into this package's public API.
type Logger interface {
	Rejected(strategy, securityID, reason string)
	Signaled(strategy, securityID, side string, price float64)
}

// NewEngine creates an engine over the given strategies.
func NewEngine(bus *eventbus.Bus, strategies []Strategy, sink SignalSink, logger Logger) *Engine {
	return &Engine{bus: bus, strategies: strategies, signalSink: sink, logger: logger}
}

// Run dispatches the candle:close events received on ch until the channel
// closes (on Unsubscribe/bus.Close).
func (e *Engine) Run(ch <-chan any) {
	for ev := range ch {
		candle, ok := ev.(models.Candle)
		if !ok {
			continue
		}
		e.dispatch(candle)
	}
}

func (e *Engine) dispatch(candle models.Candle) {
	for _, s := range e.strategies {
		if s.Interval() != candle.Interval {
			continue
		}
		signal, rejectReason := s.OnCandle(candle)
		if signal == nil {
			if rejectReason != "" {
				e.logger.Rejected(s.Name(), candle.SecurityID, rejectReason)
			}
			continue
		}
		if err := e.signalSink.SaveSignal(signal); err != nil {
			continue
		}
		e.logger.Signaled(s.Name(), candle.SecurityID, string(signal.Side), signal.Price)
		e.bus.Publish(eventbus.TopicSignal, signal)
	}
}

// ResetDaily resets every strategy's daily state. Callers schedule this at
// market open (default 09:00 local, per the schedule config).
func (e *Engine) ResetDaily() {
	for _, s := range e.strategies {
		s.ResetDaily()
	}
}
