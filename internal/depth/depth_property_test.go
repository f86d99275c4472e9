package depth

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"indexfeed-trader/internal/models"
)

func randomDepth(bidBase, askBase float64, qty int64) models.MarketDepth {
	var bids, asks []models.DepthLevel
	for i := 0; i < 5; i++ {
		bids = append(bids, models.DepthLevel{Price: bidBase - float64(i), Quantity: qty, Orders: 10})
		asks = append(asks, models.DepthLevel{Price: askBase + float64(i), Quantity: qty, Orders: 10})
	}
	return models.MarketDepth{SecurityID: "1", Bids: bids, Asks: asks}
}

// Property: for any Full-packet-shaped depth snapshot, bidAskImbalance is
// never negative and liquidityScore always lands inside [0, 100].
func TestProperty_MetricsStayInBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("imbalance non-negative and liquidity score clamped", prop.ForAll(
		func(ltp float64, qty int64) bool {
			md := randomDepth(100, 101, qty)
			m := Compute(md, ltp)
			return m.BidAskImbalance >= 0 && m.LiquidityScore >= 0 && m.LiquidityScore <= 100
		},
		gen.Float64Range(1, 50000),
		gen.Int64Range(0, 1_000_000),
	))

	properties.TestingRun(t)
}

// Property: order book strength is exactly zero when every level carries
// equal bid and ask quantity.
func TestProperty_EqualBookHasZeroStrength(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("equal bid/ask quantities yield zero strength", prop.ForAll(
		func(qty int64) bool {
			md := randomDepth(100, 101, qty)
			m := Compute(md, 100)
			return m.OrderBookStrength == 0
		},
		gen.Int64Range(0, 1_000_000),
	))

	properties.TestingRun(t)
}

func TestImbalanceSentinelWhenAskEmpty(t *testing.T) {
	md := models.MarketDepth{
		Bids: []models.DepthLevel{{Price: 99, Quantity: 500, Orders: 5}},
	}
	m := Compute(md, 100)
	if m.BidAskImbalance != 10 {
		t.Fatalf("expected sentinel imbalance of 10, got %v", m.BidAskImbalance)
	}
}

func TestVolumeDeltaRequiresTwoSamples(t *testing.T) {
	tr := NewTracker()
	if d := tr.Observe("1", 100, 50); d != 0 {
		t.Fatalf("expected 0 on first sample, got %d", d)
	}
	d := tr.Observe("1", 150, 60)
	want := (150 - 100) - (60 - 50)
	if d != int64(want) {
		t.Fatalf("expected delta %d, got %d", want, d)
	}
}

func TestVolumeDeltaRingBounded(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 10; i++ {
		tr.Observe("1", int64(i*10), int64(i*5))
	}
	tr.mu.Lock()
	n := len(tr.rings["1"])
	tr.mu.Unlock()
	if n != ringSize {
		t.Fatalf("expected ring bounded at %d, got %d", ringSize, n)
	}
}
