package executor

import (
	"testing"

	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/models"
)

// TestScenarioStopLossHitRealizesDocumentedLoss opens a long position and
// drives it through a sequence of ticks that ends on a stop-loss hit,
// matching the documented realized loss for that entry/stop/exit triple.
func TestScenarioStopLossHitRealizesDocumentedLoss(t *testing.T) {
	store := newFakeStore(&models.Portfolio{TotalCapital: 20000, AvailableCapital: 20000, MaxDailyLoss: 50000})
	ex := New(store, eventbus.New(8), "u1", nil, 75)

	opened := &models.Position{
		SecurityID:   "1",
		StrategyName: "ema-crossover",
		Side:         models.PositionLong,
		Quantity:     75,
		EntryPrice:   20000,
		CurrentPrice: 20000,
		StopLoss:     19800,
		Target:       20400,
		Status:       models.PositionOpen,
	}
	if err := store.SavePosition(opened); err != nil {
		t.Fatalf("unexpected error seeding position: %v", err)
	}

	for _, ltp := range []float64{20050, 19900, 19800} {
		if err := ex.OnTick(models.Tick{SecurityID: "1", LTP: ltp}, store); err != nil {
			t.Fatalf("unexpected error on tick %v: %v", ltp, err)
		}
	}

	if len(store.open) != 0 {
		t.Fatalf("expected the position closed once the stop was hit")
	}
	last := store.positions[len(store.positions)-1]
	if last.CloseReason != models.CloseStop {
		t.Fatalf("expected close reason stop, got %s", last.CloseReason)
	}
	if last.RealizedPnL != -15000 {
		t.Fatalf("expected realized PnL -15000, got %v", last.RealizedPnL)
	}
	if store.portfolio.CurrentDailyLoss != 15000 {
		t.Fatalf("expected CurrentDailyLoss to carry the 15000 loss, got %v", store.portfolio.CurrentDailyLoss)
	}
}

// TestScenarioDailyLossLimitRejectsFurtherSignalsOnceBreached closes an
// existing losing position that pushes CurrentDailyLoss to the configured
// cap, then asserts the next signal is rejected before it can open a trade.
func TestScenarioDailyLossLimitRejectsFurtherSignalsOnceBreached(t *testing.T) {
	store := newFakeStore(&models.Portfolio{
		TotalCapital:     20000,
		AvailableCapital: 20000,
		MaxDailyLoss:     600,
		CurrentDailyLoss: 580,
	})
	ex := New(store, eventbus.New(8), "u1", nil, 75)

	losing := &models.Position{
		SecurityID:   "1",
		StrategyName: "ema-crossover",
		Side:         models.PositionLong,
		Quantity:     1,
		EntryPrice:   1000,
		CurrentPrice: 1000,
		StopLoss:     970,
		Target:       1100,
		Status:       models.PositionOpen,
	}
	if err := store.SavePosition(losing); err != nil {
		t.Fatalf("unexpected error seeding position: %v", err)
	}

	if err := ex.OnTick(models.Tick{SecurityID: "1", LTP: 970}, store); err != nil {
		t.Fatalf("unexpected error closing the seeded loss: %v", err)
	}
	if store.portfolio.CurrentDailyLoss != 610 {
		t.Fatalf("expected CurrentDailyLoss 610 after the seeded loss, got %v", store.portfolio.CurrentDailyLoss)
	}

	next := baseSignal()
	next.SecurityID = "2"
	if err := ex.OnSignal(next); err == nil {
		t.Fatalf("expected the daily loss cap to reject the next signal")
	}
	if next.RejectionReason != models.RejectDailyLossLimit {
		t.Fatalf("expected dailyLossLimit, got %s", next.RejectionReason)
	}
	if len(store.open) != 0 {
		t.Fatalf("expected no position opened once the daily loss cap is breached")
	}
}

// TestScenarioEODSquareOffRealizesDocumentedLoss opens a short position and
// squares it off at the EOD sweep, matching the documented realized loss.
func TestScenarioEODSquareOffRealizesDocumentedLoss(t *testing.T) {
	store := newFakeStore(&models.Portfolio{TotalCapital: 20000, AvailableCapital: 20000, MaxDailyLoss: 50000})
	ex := New(store, eventbus.New(8), "u1", nil, 75)

	opened := &models.Position{
		SecurityID:   "1",
		StrategyName: "orb",
		Side:         models.PositionShort,
		Quantity:     75,
		EntryPrice:   19500,
		CurrentPrice: 19650,
		StopLoss:     19700,
		Target:       19200,
		Status:       models.PositionOpen,
	}
	if err := store.SavePosition(opened); err != nil {
		t.Fatalf("unexpected error seeding position: %v", err)
	}

	if err := ex.SquareOffAll([]string{"1"}, store); err != nil {
		t.Fatalf("unexpected error squaring off: %v", err)
	}

	if len(store.open) != 0 {
		t.Fatalf("expected the position closed by the EOD square-off")
	}
	last := store.positions[len(store.positions)-1]
	if last.CloseReason != models.CloseEOD {
		t.Fatalf("expected close reason eod, got %s", last.CloseReason)
	}
	if last.RealizedPnL != -11250 {
		t.Fatalf("expected realized PnL -11250, got %v", last.RealizedPnL)
	}
}
