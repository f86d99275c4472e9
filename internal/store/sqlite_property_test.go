package store

import (
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"indexfeed-trader/internal/models"
)

// Property: for any valid candle, upserting it and reading it back via
// LastClosed produces equivalent OHLCV data (round-trip consistency).
func TestProperty_CandleRoundTripConsistency(t *testing.T) {
	dbPath := "test_candles_property.db"
	defer os.Remove(dbPath)

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	priceGen := gen.Float64Range(100.0, 5000.0)
	volumeGen := gen.Int64Range(1000, 1000000)

	properties.Property("candle round-trip: upsert then LastClosed produces equivalent data", prop.ForAll(
		func(basePrice float64, volume int64) bool {
			securityID := fmt.Sprintf("sec-%d", time.Now().UnixNano())
			candle := buildTestCandle(securityID, basePrice, volume)

			if err := store.UpsertCandle(candle); err != nil {
				t.Logf("upsert failed: %v", err)
				return false
			}

			retrieved, err := store.LastClosed(securityID, models.Interval5m, 1)
			if err != nil {
				t.Logf("LastClosed failed: %v", err)
				return false
			}
			if len(retrieved) != 1 {
				t.Logf("expected 1 candle, got %d", len(retrieved))
				return false
			}
			return candlesEqual(candle, retrieved[0])
		},
		priceGen,
		volumeGen,
	))

	properties.Property("candle upsert is idempotent on (securityId, interval, timestamp)", prop.ForAll(
		func(basePrice float64, volume int64) bool {
			securityID := fmt.Sprintf("sec-%d", time.Now().UnixNano())
			first := buildTestCandle(securityID, basePrice, volume)
			store.UpsertCandle(first)

			updated := first
			updated.Close = first.Close + 1
			updated.Volume = first.Volume + 500
			if err := store.UpsertCandle(updated); err != nil {
				t.Logf("re-upsert failed: %v", err)
				return false
			}

			retrieved, err := store.LastClosed(securityID, models.Interval5m, 5)
			if err != nil {
				return false
			}
			return len(retrieved) == 1 && candlesEqual(updated, retrieved[0])
		},
		priceGen,
		volumeGen,
	))

	properties.TestingRun(t)
}

func TestPortfolioUpsertOverwritesInPlace(t *testing.T) {
	dbPath := "test_portfolio_property.db"
	defer os.Remove(dbPath)

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	p := &models.Portfolio{UserID: "u1", TotalCapital: 1_000_000, AvailableCapital: 1_000_000, MaxDailyLoss: 20_000}
	if err := store.SavePortfolio(p); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	p.AvailableCapital = 500_000
	p.TotalTrades = 3
	if err := store.SavePortfolio(p); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}

	got, err := store.GetPortfolio("u1")
	if err != nil || got == nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.AvailableCapital != 500_000 || got.TotalTrades != 3 || got.TotalCapital != 1_000_000 {
		t.Fatalf("unexpected portfolio state: %+v", got)
	}
}

func TestSweepExpiredRemovesOldTicksAndOneMinuteCandles(t *testing.T) {
	dbPath := "test_sweep_property.db"
	defer os.Remove(dbPath)

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	old := models.Tick{SecurityID: "1", LTP: 100, CapturedAt: time.Now().Add(-48 * time.Hour)}
	fresh := models.Tick{SecurityID: "1", LTP: 101, CapturedAt: time.Now()}
	store.SaveTick(old)
	store.SaveTick(fresh)

	oldCandle := models.Candle{SecurityID: "1", Interval: models.Interval1m, Timestamp: time.Now().Add(-10 * 24 * time.Hour), IsClosed: true}
	freshCandle := models.Candle{SecurityID: "1", Interval: models.Interval1m, Timestamp: time.Now(), IsClosed: true}
	store.UpsertCandle(oldCandle)
	store.UpsertCandle(freshCandle)

	if err := store.SweepExpired(); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	ticks, err := store.RecentTicks("1", 10)
	if err != nil {
		t.Fatalf("recent ticks failed: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("expected 1 surviving tick, got %d", len(ticks))
	}

	candles, err := store.LastClosed("1", models.Interval1m, 10)
	if err != nil {
		t.Fatalf("last closed failed: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("expected 1 surviving 1m candle, got %d", len(candles))
	}
}

func TestSaveInstrumentUpsertsBySecurityID(t *testing.T) {
	dbPath := "test_instruments_property.db"
	defer os.Remove(dbPath)

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	inst := models.Instrument{SecurityID: "13", Symbol: "NIFTY", Segment: models.SegmentIndex, LotSize: 75, TickSize: 0.05}
	if err := store.SaveInstrument(inst); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	inst.LotSize = 50
	if err := store.SaveInstrument(inst); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}

	all, err := store.AllInstruments()
	if err != nil {
		t.Fatalf("all instruments failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 instrument after upsert, got %d", len(all))
	}
	if all[0].LotSize != 50 {
		t.Fatalf("expected lot size to be overwritten to 50, got %d", all[0].LotSize)
	}
}

func buildTestCandle(securityID string, basePrice float64, volume int64) models.Candle {
	open := basePrice
	close := basePrice * 1.005
	high := math.Max(open, close) * 1.01
	low := math.Min(open, close) * 0.99

	return models.Candle{
		SecurityID: securityID,
		Interval:   models.Interval5m,
		Timestamp:  time.Date(2026, 1, 1, 9, 20, 0, 0, time.UTC),
		Open:       roundToDecimal(open, 2),
		High:       roundToDecimal(high, 2),
		Low:        roundToDecimal(low, 2),
		Close:      roundToDecimal(close, 2),
		Volume:     volume,
		IsClosed:   true,
	}
}

func roundToDecimal(val float64, places int) float64 {
	multiplier := math.Pow(10, float64(places))
	return math.Round(val*multiplier) / multiplier
}

func candlesEqual(a, b models.Candle) bool {
	const tolerance = 0.01
	if !a.Timestamp.Equal(b.Timestamp) {
		return false
	}
	return floatEqual(a.Open, b.Open, tolerance) &&
		floatEqual(a.High, b.High, tolerance) &&
		floatEqual(a.Low, b.Low, tolerance) &&
		floatEqual(a.Close, b.Close, tolerance) &&
		a.Volume == b.Volume
}

func floatEqual(a, b, tolerance float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
