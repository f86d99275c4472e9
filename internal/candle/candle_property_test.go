package candle

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/models"
)

type fakeStore struct {
	upserts []models.Candle
}

func (f *fakeStore) UpsertCandle(c models.Candle) error {
	f.upserts = append(f.upserts, c)
	return nil
}

// Property: a candle's high is never below its low, and close always
// equals the most recent tick's LTP, for any sequence of ticks landing in
// the same bar.
func TestProperty_CandleOHLCInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("high >= low and close == last ltp within one bar", prop.ForAll(
		func(prices []float64) bool {
			if len(prices) == 0 {
				return true
			}
			store := &fakeStore{}
			agg := New([]models.Interval{models.Interval1m}, eventbus.New(16), store, nil)

			base := time.Date(2026, 1, 5, 9, 20, 0, 0, time.UTC)
			var last models.Tick
			for _, p := range prices {
				tick := models.Tick{SecurityID: "1", LTP: p, LTT: base, Volume: 100}
				if err := agg.Ingest(tick, models.DepthMetrics{}); err != nil {
					return false
				}
				last = tick
			}
			agg.Close()
			if len(store.upserts) == 0 {
				return false
			}
			c := store.upserts[len(store.upserts)-1]
			return c.High >= c.Low && c.Close == last.LTP
		},
		gen.SliceOfN(5, gen.Float64Range(100, 200)),
	))

	properties.TestingRun(t)
}

func TestBarBoundaryClosesPreviousCandle(t *testing.T) {
	store := &fakeStore{}
	bus := eventbus.New(16)
	agg := New([]models.Interval{models.Interval1m}, bus, store, nil)

	t1 := time.Date(2026, 1, 5, 9, 20, 10, 0, time.UTC)
	t2 := time.Date(2026, 1, 5, 9, 21, 5, 0, time.UTC)

	agg.Ingest(models.Tick{SecurityID: "1", LTP: 100, LTT: t1, Volume: 10}, models.DepthMetrics{})
	agg.Ingest(models.Tick{SecurityID: "1", LTP: 105, LTT: t1.Add(20 * time.Second), Volume: 20}, models.DepthMetrics{})
	agg.Ingest(models.Tick{SecurityID: "1", LTP: 110, LTT: t2, Volume: 5}, models.DepthMetrics{})

	if len(store.upserts) != 1 {
		t.Fatalf("expected exactly one closed candle after crossing a boundary, got %d", len(store.upserts))
	}
	closed := store.upserts[0]
	if !closed.IsClosed || closed.Close != 105 {
		t.Fatalf("unexpected closed candle: %+v", closed)
	}
}

func TestFloorToBarAlignsHourBarsToExchangeZoneNotUTC(t *testing.T) {
	ist := time.FixedZone("+05:30", 5*3600+30*60)

	// 09:45 IST sits between the 09:00 and 10:00 IST hour marks. A UTC-epoch
	// floor would instead align to 04:00/05:00 UTC, landing on 09:30 IST.
	tickTime := time.Date(2026, 1, 5, 9, 45, 0, 0, ist)

	got := floorToBar(tickTime, models.Interval1h, ist)
	want := time.Date(2026, 1, 5, 9, 0, 0, 0, ist)
	if !got.Equal(want) {
		t.Fatalf("expected hour bar to floor to %v, got %v", want, got)
	}
}

func TestFloorToBarDayBarUsesExchangeZoneMidnight(t *testing.T) {
	ist := time.FixedZone("+05:30", 5*3600+30*60)

	// 00:15 IST on Jan 6 is still Jan 5 in UTC; a host-zone floor (or a UTC
	// floor) would misplace this tick in the prior day's bar.
	tickTime := time.Date(2026, 1, 6, 0, 15, 0, 0, ist)

	got := floorToBar(tickTime, models.Interval1d, ist)
	want := time.Date(2026, 1, 6, 0, 0, 0, 0, ist)
	if !got.Equal(want) {
		t.Fatalf("expected day bar to floor to %v, got %v", want, got)
	}
}

func TestShutdownClosesOpenCandles(t *testing.T) {
	store := &fakeStore{}
	bus := eventbus.New(16)
	agg := New([]models.Interval{models.Interval1m}, bus, store, nil)

	agg.Ingest(models.Tick{SecurityID: "1", LTP: 100, LTT: time.Now(), Volume: 1}, models.DepthMetrics{})
	if err := agg.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("expected shutdown to flush the one open candle, got %d", len(store.upserts))
	}
}
