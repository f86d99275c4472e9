package strategy

import (
	"testing"
	"time"

	"indexfeed-trader/internal/config"
	"indexfeed-trader/internal/models"
)

// TestEMACrossoverBullishScenario reproduces the bullish-EMA-crossover
// fixture end to end: a flat run of 5m closes followed by a rise into a
// volume surge on the last bar must emit exactly one BUY signal priced and
// sized to the documented values.
func TestEMACrossoverBullishScenario(t *testing.T) {
	s := NewEMACrossover(config.RiskConfig{TotalCapital: 10000})

	// OnCandle drops any candle outside the 09:30-15:15 intraday window (checked
	// against time.Local) before it ever reaches the history, so the fixture
	// starts at the window open rather than before it.
	base := time.Date(2026, 1, 5, 9, 30, 0, 0, time.Local)
	// 26 flat bars hold EMA9 and EMA21 together at exactly 100, so the single
	// closing jump to 110 on the last bar is what freshly pulls the fast EMA
	// above the slow one, rather than a crossover that already happened
	// somewhere inside a gradual climb.
	closes := []float64{}
	for i := 0; i < 26; i++ {
		closes = append(closes, 100)
	}
	closes = append(closes, 110)

	var signal *models.Signal
	var reason string
	for i, close := range closes {
		volume := int64(1000)
		if i == len(closes)-1 {
			volume = 1600
		}
		candle := models.Candle{
			SecurityID:   "13",
			Interval:     models.Interval5m,
			Open:         close,
			High:         close,
			Low:          close,
			Close:        close,
			Volume:       volume,
			AvgImbalance: 1.4,
			AvgStrength:  2000,
			Timestamp:    base.Add(time.Duration(i) * 5 * time.Minute),
			IsClosed:     true,
		}
		signal, reason = s.OnCandle(candle)
		if signal != nil && i != len(closes)-1 {
			t.Fatalf("unexpected signal on bar %d before the documented crossover bar: %+v (reason=%q)", i, signal, reason)
		}
	}

	if signal == nil {
		t.Fatalf("expected a BUY signal on the final bar, got none (last reject reason=%q)", reason)
	}
	if signal.Side != models.SideBuy {
		t.Fatalf("expected BUY, got %s", signal.Side)
	}
	if signal.Price != 110 {
		t.Fatalf("expected price 110, got %v", signal.Price)
	}
	if signal.StopLoss != 108.9 {
		t.Fatalf("expected stopLoss 108.90, got %v", signal.StopLoss)
	}
	if signal.Target != 113.3 {
		t.Fatalf("expected target 113.30, got %v", signal.Target)
	}
	if signal.Quantity != 75 {
		t.Fatalf("expected quantity 75, got %v", signal.Quantity)
	}
}

// TestOpeningRangeBreakoutBullishScenario reproduces the ORB bullish
// breakout fixture: an opening range of [24985, 25040] followed by a
// breakout close of 25060 on 2.5x volume must emit a BUY signal with the
// documented stop, target, and quantity, and mark the bullish slot as used.
func TestOpeningRangeBreakoutBullishScenario(t *testing.T) {
	s := NewOpeningRangeBreakout(config.RiskConfig{TotalCapital: 2_000_000})

	// OnCandle floors candle.Timestamp through time.Local, so the fixture
	// times are built in time.Local rather than UTC to land on the documented
	// 09:15-09:30 opening-range window regardless of the host's offset.
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.Local)

	// Builds the opening range [24985, 25040] during 09:15-09:29.
	s.OnCandle(models.Candle{
		SecurityID: "13", Interval: models.Interval1m,
		Open: 25010, High: 25040, Low: 24985, Close: 25010,
		Volume: 1000, Timestamp: day.Add(9*time.Hour + 20*time.Minute),
	})

	// 09:30 freezes the range; stays inside it so no breakout fires yet.
	signal, _ := s.OnCandle(models.Candle{
		SecurityID: "13", Interval: models.Interval1m,
		Open: 25010, High: 25035, Low: 24990, Close: 25010,
		Volume: 1000, Timestamp: day.Add(9*time.Hour + 30*time.Minute),
	})
	if signal != nil {
		t.Fatalf("unexpected signal while freezing the range: %+v", signal)
	}

	// A couple of quiet bars between the freeze and the breakout.
	for _, ts := range []time.Duration{32 * time.Minute, 34 * time.Minute} {
		s.OnCandle(models.Candle{
			SecurityID: "13", Interval: models.Interval1m,
			Open: 25015, High: 25020, Low: 25005, Close: 25015,
			Volume: 1000, Timestamp: day.Add(9*time.Hour + ts),
		})
	}

	// 09:36 breaks out above the OR high on 2.5x volume.
	signal, reason := s.OnCandle(models.Candle{
		SecurityID: "13", Interval: models.Interval1m,
		Open: 25040, High: 25065, Low: 25038, Close: 25060,
		Volume: 2500, AvgImbalance: 1.4, AvgStrength: 1500,
		Timestamp: day.Add(9*time.Hour + 36*time.Minute),
	})

	if signal == nil {
		t.Fatalf("expected a BUY breakout signal, got none (reason=%q)", reason)
	}
	if signal.Side != models.SideBuy {
		t.Fatalf("expected BUY, got %s", signal.Side)
	}
	if signal.StopLoss != 24985 {
		t.Fatalf("expected stopLoss 24985, got %v", signal.StopLoss)
	}
	if signal.Target != 25170 {
		t.Fatalf("expected target 25170, got %v", signal.Target)
	}
	if signal.Quantity != 75 {
		t.Fatalf("expected quantity 75, got %v", signal.Quantity)
	}
	if !s.state["13"].tradedBullish {
		t.Fatalf("expected hasTradedBullish to be set after the breakout")
	}
}
