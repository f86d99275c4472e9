// Package executor implements the paper-trading executor (C7): it turns
// accepted signals into simulated fills and positions, marks positions to
// market on every tick, and squares off at end of day.
package executor

import (
	"math"
	"sync"
	"time"

	"indexfeed-trader/internal/eventbus"
	ferrors "indexfeed-trader/internal/errors"
	"indexfeed-trader/internal/models"
)

// Store is the persistence surface the executor needs.
type Store interface {
	GetPortfolio(userID string) (*models.Portfolio, error)
	SavePortfolio(p *models.Portfolio) error
	SaveOrder(o *models.Order) error
	SavePosition(p *models.Position) error
	OpenPosition(strategyName, securityID string) (*models.Position, error)
}

// Jitter abstracts the slippage model's random component so tests can make
// it deterministic.
type Jitter func() float64

// Executor is C7.
type Executor struct {
	store   Store
	bus     *eventbus.Bus
	userID  string
	jitter  Jitter
	lotSize int64

	mu sync.Mutex
}

// New creates an executor acting against the named paper portfolio. lotSize
// is the configured contract lot size (config.RiskConfig.LotSize) used to
// derive the multi-lot slippage surcharge; a non-positive value falls back
// to the NSE index-option default of 75.
func New(store Store, bus *eventbus.Bus, userID string, jitter Jitter, lotSize int64) *Executor {
	if jitter == nil {
		jitter = func() float64 { return 0 }
	}
	if lotSize <= 0 {
		lotSize = 75
	}
	return &Executor{store: store, bus: bus, userID: userID, jitter: jitter, lotSize: lotSize}
}

// OnSignal runs the four-step admission check and, if the signal survives,
// simulates a fill and opens a position.
func (e *Executor) OnSignal(signal *models.Signal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	portfolio, err := e.store.GetPortfolio(e.userID)
	if err != nil || portfolio == nil {
		return e.reject(signal, models.RejectNoPortfolio)
	}
	if portfolio.CurrentDailyLoss >= portfolio.MaxDailyLoss {
		return e.reject(signal, models.RejectDailyLossLimit)
	}
	notional := signal.Price * float64(signal.Quantity)
	if portfolio.AvailableCapital < notional {
		return e.reject(signal, models.RejectInsufficientCapital)
	}
	if existing, _ := e.store.OpenPosition(signal.StrategyName, signal.SecurityID); existing != nil {
		return e.reject(signal, models.RejectDuplicateOpen)
	}

	fillPrice := e.simulatedFill(signal)

	now := time.Now()
	order := &models.Order{
		SignalID:       signal.ID,
		SecurityID:     signal.SecurityID,
		Side:           signal.Side,
		Quantity:       signal.Quantity,
		RequestedPrice: signal.Price,
		FillPrice:      fillPrice,
		Status:         models.OrderExecuted,
		CreatedAt:      now,
		FilledAt:       &now,
	}
	if err := e.store.SaveOrder(order); err != nil {
		return err
	}

	position := &models.Position{
		SecurityID:   signal.SecurityID,
		StrategyName: signal.StrategyName,
		Side:         models.SideFor(signal.Side),
		Quantity:     signal.Quantity,
		EntryPrice:   fillPrice,
		CurrentPrice: fillPrice,
		StopLoss:     signal.StopLoss,
		Target:       signal.Target,
		Status:       models.PositionOpen,
		OpenedAt:     now,
	}
	if err := e.store.SavePosition(position); err != nil {
		return err
	}

	signal.Status = models.SignalExecuted
	signal.DecidedAt = &now

	portfolio.AvailableCapital -= notional
	portfolio.UsedMargin += notional
	if err := e.store.SavePortfolio(portfolio); err != nil {
		return err
	}

	e.bus.Publish(eventbus.TopicPositionUpdate, position)
	return nil
}

func (e *Executor) reject(signal *models.Signal, reason models.RejectionReason) error {
	now := time.Now()
	signal.Status = models.SignalRejected
	signal.RejectionReason = reason
	signal.DecidedAt = &now
	return ferrors.NewRejectionError(signal.SecurityID, string(reason))
}

// simulatedFill applies the documented slippage model adversely to the
// trade direction, rounded to 2 decimals.
func (e *Executor) simulatedFill(signal *models.Signal) float64 {
	bps := 5.0

	liquidityScore := signal.DepthSnapshot.LiquidityScore
	if liquidityScore == 0 {
		liquidityScore = 100
	}
	if liquidityScore < 70 {
		bps += ((70 - liquidityScore) / 70) * 2
	}

	lots := e.lotsFromQuantity(signal.Quantity)
	if lots > 1 {
		bps += 0.5 * float64(lots-1)
	}

	bps += e.jitter()*1.0 - 0.5

	pct := bps / 10000.0
	if signal.Side == models.SideBuy {
		return round2(signal.Price * (1 + pct))
	}
	return round2(signal.Price * (1 - pct))
}

func (e *Executor) lotsFromQuantity(qty int64) int64 {
	if qty <= 0 {
		return 1
	}
	lots := qty / e.lotSize
	if lots < 1 {
		lots = 1
	}
	return lots
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
