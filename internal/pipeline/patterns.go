package pipeline

import (
	"sync"

	"github.com/rs/zerolog"

	"indexfeed-trader/internal/analysis"
	"indexfeed-trader/internal/analysis/patterns"
	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/models"
)

const patternWindowLen = 20

// PatternStore is the persistence surface the pattern watcher needs.
type PatternStore interface {
	SavePatternEvent(e models.PatternEvent) error
}

type patternKey struct {
	securityID string
	interval   models.Interval
}

// PatternWatcher runs the candlestick detector over each security's closed
// candle history and republishes/persists any pattern whose completion lands
// on the candle that just closed, so C6 strategies and the hub see a
// pattern exactly once, on the bar that completes it.
type PatternWatcher struct {
	bus      *eventbus.Bus
	detector analysis.PatternDetector
	store    PatternStore
	logger   zerolog.Logger

	mu      sync.Mutex
	windows map[patternKey][]models.Candle
}

// NewPatternWatcher creates a watcher driven by the candlestick detector.
func NewPatternWatcher(bus *eventbus.Bus, store PatternStore, logger zerolog.Logger) *PatternWatcher {
	return &PatternWatcher{
		bus:      bus,
		detector: patterns.NewCandlestickDetector(),
		store:    store,
		logger:   logger.With().Str("component", "patterns").Logger(),
		windows:  make(map[patternKey][]models.Candle),
	}
}

// Run subscribes to candle:close and blocks until the channel closes (on bus
// shutdown). Intended to run in its own goroutine from the composition root.
func (w *PatternWatcher) Run() {
	closes := w.bus.Subscribe(eventbus.TopicCandleClose)
	for ev := range closes {
		candle, ok := ev.(models.Candle)
		if !ok {
			continue
		}
		w.observe(candle)
	}
}

func (w *PatternWatcher) observe(candle models.Candle) {
	k := patternKey{securityID: candle.SecurityID, interval: candle.Interval}

	w.mu.Lock()
	window := append(w.windows[k], candle)
	if len(window) > patternWindowLen {
		window = window[len(window)-patternWindowLen:]
	}
	w.windows[k] = window
	candles := append([]models.Candle(nil), window...)
	w.mu.Unlock()

	found, err := w.detector.Detect(candles)
	if err != nil {
		w.logger.Warn().Err(err).Str("securityId", candle.SecurityID).Msg("pattern detection failed")
		return
	}

	lastIdx := len(candles) - 1
	for _, p := range found {
		if p.EndIndex != lastIdx {
			continue
		}
		event := models.PatternEvent{
			SecurityID: candle.SecurityID,
			Interval:   candle.Interval,
			Name:       p.Name,
			Direction:  string(p.Direction),
			Strength:   p.Strength,
			DetectedAt: candle.Timestamp,
		}
		if err := w.store.SavePatternEvent(event); err != nil {
			w.logger.Warn().Err(err).Str("securityId", candle.SecurityID).Msg("failed to persist pattern event")
		}
		w.bus.Publish(eventbus.TopicPatternDetected, event)
	}
}
