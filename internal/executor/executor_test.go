package executor

import (
	"testing"

	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/models"
)

type fakeStore struct {
	portfolio *models.Portfolio
	orders    []*models.Order
	positions []*models.Position
	open      map[string]*models.Position
}

func newFakeStore(p *models.Portfolio) *fakeStore {
	return &fakeStore{portfolio: p, open: make(map[string]*models.Position)}
}

func (f *fakeStore) GetPortfolio(userID string) (*models.Portfolio, error) { return f.portfolio, nil }
func (f *fakeStore) SavePortfolio(p *models.Portfolio) error               { f.portfolio = p; return nil }
func (f *fakeStore) SaveOrder(o *models.Order) error                       { f.orders = append(f.orders, o); return nil }
func (f *fakeStore) SavePosition(p *models.Position) error {
	f.positions = append(f.positions, p)
	key := p.StrategyName + "|" + p.SecurityID
	if p.Status == models.PositionOpen {
		f.open[key] = p
	} else {
		delete(f.open, key)
	}
	return nil
}
func (f *fakeStore) OpenPosition(strategyName, securityID string) (*models.Position, error) {
	return f.open[strategyName+"|"+securityID], nil
}
func (f *fakeStore) OpenPositionsFor(securityID string) ([]*models.Position, error) {
	var out []*models.Position
	for _, p := range f.open {
		if p.SecurityID == securityID {
			out = append(out, p)
		}
	}
	return out, nil
}

func baseSignal() *models.Signal {
	return &models.Signal{
		StrategyName: "ema-crossover",
		SecurityID:   "1",
		Side:         models.SideBuy,
		Price:        100,
		StopLoss:     99,
		Target:       103,
		Quantity:     75,
		Status:       models.SignalPending,
	}
}

func TestOnSignalRejectsWithoutPortfolio(t *testing.T) {
	store := newFakeStore(nil)
	ex := New(store, eventbus.New(8), "u1", nil, 75)

	signal := baseSignal()
	if err := ex.OnSignal(signal); err == nil {
		t.Fatalf("expected rejection without a portfolio")
	}
	if signal.RejectionReason != models.RejectNoPortfolio {
		t.Fatalf("expected noPortfolio, got %s", signal.RejectionReason)
	}
}

func TestOnSignalRejectsInsufficientCapital(t *testing.T) {
	store := newFakeStore(&models.Portfolio{AvailableCapital: 10, MaxDailyLoss: 1000})
	ex := New(store, eventbus.New(8), "u1", nil, 75)

	signal := baseSignal()
	if err := ex.OnSignal(signal); err == nil {
		t.Fatalf("expected rejection for insufficient capital")
	}
	if signal.RejectionReason != models.RejectInsufficientCapital {
		t.Fatalf("expected insufficientCapital, got %s", signal.RejectionReason)
	}
}

func TestOnSignalExecutesAndOpensPosition(t *testing.T) {
	store := newFakeStore(&models.Portfolio{AvailableCapital: 1_000_000, MaxDailyLoss: 50_000})
	ex := New(store, eventbus.New(8), "u1", nil, 75)

	signal := baseSignal()
	if err := ex.OnSignal(signal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal.Status != models.SignalExecuted {
		t.Fatalf("expected signal executed, got %s", signal.Status)
	}
	if len(store.orders) != 1 || len(store.open) != 1 {
		t.Fatalf("expected one order and one open position")
	}
	fill := store.orders[0].FillPrice
	if fill <= signal.Price {
		t.Fatalf("expected a buy fill with adverse (higher) slippage, got %v vs signal price %v", fill, signal.Price)
	}
}

func TestOnSignalRejectsDuplicateOpenPosition(t *testing.T) {
	store := newFakeStore(&models.Portfolio{AvailableCapital: 1_000_000, MaxDailyLoss: 50_000})
	ex := New(store, eventbus.New(8), "u1", nil, 75)

	first := baseSignal()
	if err := ex.OnSignal(first); err != nil {
		t.Fatalf("unexpected error on first signal: %v", err)
	}

	second := baseSignal()
	if err := ex.OnSignal(second); err == nil {
		t.Fatalf("expected duplicate-open rejection")
	}
	if second.RejectionReason != models.RejectDuplicateOpen {
		t.Fatalf("expected duplicateOpenPosition, got %s", second.RejectionReason)
	}
}

func TestMultiLotSlippageSurchargeUsesConfiguredLotSize(t *testing.T) {
	// A 100-quantity signal is 1 lot at lot size 100, but 4 lots at lot size
	// 25: the configured lot size, not a hardcoded default, must drive the
	// multi-lot slippage surcharge.
	store25 := newFakeStore(&models.Portfolio{AvailableCapital: 1_000_000, MaxDailyLoss: 50_000})
	ex25 := New(store25, eventbus.New(8), "u1", func() float64 { return 0.5 }, 25)
	signal25 := baseSignal()
	signal25.Quantity = 100
	if err := ex25.OnSignal(signal25); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store100 := newFakeStore(&models.Portfolio{AvailableCapital: 1_000_000, MaxDailyLoss: 50_000})
	ex100 := New(store100, eventbus.New(8), "u1", func() float64 { return 0.5 }, 100)
	signal100 := baseSignal()
	signal100.Quantity = 100
	if err := ex100.OnSignal(signal100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fill25 := store25.orders[0].FillPrice
	fill100 := store100.orders[0].FillPrice
	if fill25 <= fill100 {
		t.Fatalf("expected the smaller configured lot size to produce more slippage (4 lots vs 1), got %v vs %v", fill25, fill100)
	}
}

func TestOnTickClosesAtStopLoss(t *testing.T) {
	store := newFakeStore(&models.Portfolio{AvailableCapital: 1_000_000, MaxDailyLoss: 50_000})
	ex := New(store, eventbus.New(8), "u1", nil, 75)

	signal := baseSignal()
	if err := ex.OnSignal(signal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tick := models.Tick{SecurityID: "1", LTP: 98}
	if err := ex.OnTick(tick, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.open) != 0 {
		t.Fatalf("expected position closed on stop-loss hit")
	}
	last := store.positions[len(store.positions)-1]
	if last.CloseReason != models.CloseStop {
		t.Fatalf("expected close reason stop, got %s", last.CloseReason)
	}
	if store.portfolio.LosingTrades != 1 {
		t.Fatalf("expected one losing trade recorded")
	}
}
