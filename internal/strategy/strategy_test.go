package strategy

import (
	"testing"

	"indexfeed-trader/internal/config"
	"indexfeed-trader/internal/models"
)

func TestPositionSizeRoundsDownToLot(t *testing.T) {
	risk := config.RiskConfig{TotalCapital: 1_000_000, RiskPct: 0.01, StopLossPct: 0.01, LotSize: 75}
	b := NewBase(risk, 0)

	qty := b.PositionSize(100)
	// risk = 10000, per-unit risk = 1, raw qty = 10000, lots = floor(10000/75) = 133
	want := int64(133 * 75)
	if qty != want {
		t.Fatalf("expected %d, got %d", want, qty)
	}
}

func TestPositionSizeMinimumOneLot(t *testing.T) {
	risk := config.RiskConfig{TotalCapital: 1000, RiskPct: 0.01, StopLossPct: 0.01, LotSize: 75}
	b := NewBase(risk, 0)

	qty := b.PositionSize(500)
	if qty != 75 {
		t.Fatalf("expected minimum one lot (75), got %d", qty)
	}
}

func TestDepthFilterBuyRequiresImbalanceAndStrength(t *testing.T) {
	cases := []struct {
		name   string
		m      models.DepthMetrics
		passes bool
	}{
		{"passes", models.DepthMetrics{BidAskImbalance: 1.4, OrderBookStrength: 10, LiquidityScore: 70}, true},
		{"low imbalance", models.DepthMetrics{BidAskImbalance: 1.1, OrderBookStrength: 10, LiquidityScore: 70}, false},
		{"negative strength", models.DepthMetrics{BidAskImbalance: 1.4, OrderBookStrength: -10, LiquidityScore: 70}, false},
		{"low liquidity", models.DepthMetrics{BidAskImbalance: 1.4, OrderBookStrength: 10, LiquidityScore: 59}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := PassesDepthFilter(models.SideBuy, tc.m)
			if r.Passed != tc.passes {
				t.Fatalf("%s: expected passed=%v, got %v (%s)", tc.name, tc.passes, r.Passed, r.Reason)
			}
		})
	}
}

func TestTradeCapEnforced(t *testing.T) {
	b := NewBase(config.RiskConfig{}, 2)
	if !b.TryReserveTrade() {
		t.Fatalf("expected first trade to be allowed")
	}
	if !b.TryReserveTrade() {
		t.Fatalf("expected second trade to be allowed")
	}
	if b.TryReserveTrade() {
		t.Fatalf("expected third trade to be rejected by the daily cap")
	}
	b.ResetDaily()
	if !b.TryReserveTrade() {
		t.Fatalf("expected trade to be allowed again after daily reset")
	}
}
