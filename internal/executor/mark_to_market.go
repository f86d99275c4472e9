package executor

import (
	"time"

	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/models"
)

// PositionStore is the subset of persistence the mark-to-market loop needs,
// scoped by security so the executor only touches positions it must.
type PositionStore interface {
	OpenPositionsFor(securityID string) ([]*models.Position, error)
	SavePosition(p *models.Position) error
	GetPortfolio(userID string) (*models.Portfolio, error)
	SavePortfolio(p *models.Portfolio) error
}

// OnTick updates every open position on securityId with the new price,
// closing on a stop-loss or target hit. Concurrent ticks for different
// securities may run in parallel; per-position mutation is serialized by e.mu.
func (e *Executor) OnTick(tick models.Tick, positions PositionStore) error {
	open, err := positions.OpenPositionsFor(tick.SecurityID)
	if err != nil {
		return err
	}

	for _, pos := range open {
		e.mu.Lock()
		pos.CurrentPrice = tick.LTP
		pos.UnrealizedPnL = pos.PnLSign() * (tick.LTP - pos.EntryPrice) * float64(pos.Quantity)

		reason, hit := stopOrTargetHit(pos, tick.LTP)
		if !hit {
			e.mu.Unlock()
			if err := positions.SavePosition(pos); err != nil {
				return err
			}
			e.bus.Publish(eventbus.TopicPositionUpdate, pos)
			continue
		}

		if err := e.closePosition(pos, tick.LTP, reason, positions); err != nil {
			e.mu.Unlock()
			return err
		}
		e.mu.Unlock()
	}
	return nil
}

// stopOrTargetHit reports whether price has crossed the position's stop or
// target, direction-aware.
func stopOrTargetHit(pos *models.Position, price float64) (models.CloseReason, bool) {
	if pos.Side == models.PositionLong {
		if price <= pos.StopLoss {
			return models.CloseStop, true
		}
		if price >= pos.Target {
			return models.CloseTarget, true
		}
		return "", false
	}
	if price >= pos.StopLoss {
		return models.CloseStop, true
	}
	if price <= pos.Target {
		return models.CloseTarget, true
	}
	return "", false
}

// closePosition realizes PnL, updates the portfolio, persists both, and
// emits positionClosed. Caller must hold e.mu.
func (e *Executor) closePosition(pos *models.Position, exitPrice float64, reason models.CloseReason, positions PositionStore) error {
	realized := pos.PnLSign() * (exitPrice - pos.EntryPrice) * float64(pos.Quantity)

	now := time.Now()
	pos.CurrentPrice = exitPrice
	pos.RealizedPnL = realized
	pos.UnrealizedPnL = 0
	pos.Status = models.PositionClosed
	pos.ClosedAt = &now
	pos.CloseReason = reason

	if err := positions.SavePosition(pos); err != nil {
		return err
	}

	portfolio, err := positions.GetPortfolio(e.userID)
	if err != nil || portfolio == nil {
		return err
	}

	notional := pos.EntryPrice * float64(pos.Quantity)
	portfolio.AvailableCapital += notional + realized
	portfolio.UsedMargin -= notional
	portfolio.TotalPnL += realized
	portfolio.TodayPnL += realized
	portfolio.TotalTrades++
	if realized > 0 {
		portfolio.WinningTrades++
	} else {
		portfolio.LosingTrades++
		portfolio.CurrentDailyLoss += -realized
	}
	portfolio.RecomputeWinRate()

	if err := positions.SavePortfolio(portfolio); err != nil {
		return err
	}

	e.bus.Publish(eventbus.TopicPositionClosed, pos)
	e.bus.Publish(eventbus.TopicPortfolioUpdate, portfolio)
	return nil
}

// SquareOffAll closes every open position across securityIDs at its current
// price with reason eod. Intended to be called once by the 15:20 local
// sweep; repeated calls within the same minute are idempotent because a
// position already closed is simply absent from OpenPositionsFor.
func (e *Executor) SquareOffAll(securityIDs []string, positions PositionStore) error {
	for _, secID := range securityIDs {
		open, err := positions.OpenPositionsFor(secID)
		if err != nil {
			return err
		}
		for _, pos := range open {
			e.mu.Lock()
			err := e.closePosition(pos, pos.CurrentPrice, models.CloseEOD, positions)
			e.mu.Unlock()
			if err != nil {
				return err
			}
		}
	}
	return nil
}
