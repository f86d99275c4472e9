// Package mtf implements the multi-timeframe confirmer (C5): it loads recent
// closed candles for a primary interval plus its mid/higher pair from a fixed
// hierarchy, classifies each by EMA9/EMA21 slope, and scores their alignment.
package mtf

import (
	"fmt"
	"sync"

	"indexfeed-trader/internal/analysis/indicators"
	"indexfeed-trader/internal/models"
)

// Direction is the per-interval trend classification.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	Neutral Direction = "NEUTRAL"
)

// Recommendation is the confirmer's final verdict for a security.
type Recommendation string

const (
	RecommendBuy  Recommendation = "BUY"
	RecommendSell Recommendation = "SELL"
	RecommendWait Recommendation = "WAIT"
)

const historyLen = 50

// hierarchy maps a primary interval to its mid and higher confirming intervals.
var hierarchy = map[models.Interval][2]models.Interval{
	models.Interval1m:  {models.Interval5m, models.Interval15m},
	models.Interval5m:  {models.Interval15m, models.Interval1h},
	models.Interval15m: {models.Interval1h, models.Interval1d},
	models.Interval1h:  {models.Interval1d, models.Interval1d},
}

// CandleSource loads the last n closed candles for a security/interval,
// oldest first. It is satisfied by the candle aggregator's store-backed history.
type CandleSource interface {
	LastClosed(securityID string, interval models.Interval, n int) ([]models.Candle, error)
}

// TimeframeView is the classification computed for one of the three intervals.
type TimeframeView struct {
	Interval  models.Interval
	Direction Direction
	EMA9Last  float64
	EMA9Prev  float64
	EMA21Last float64
}

// Result is the confirmer's verdict across the primary/mid/higher triad.
type Result struct {
	SecurityID     string
	Primary        TimeframeView
	Mid            TimeframeView
	Higher         TimeframeView
	IsAligned      bool
	AlignmentScore int
	Recommendation Recommendation
}

// Confirmer is C5.
type Confirmer struct {
	source CandleSource
}

// NewConfirmer creates a confirmer backed by the given candle source.
func NewConfirmer(source CandleSource) *Confirmer {
	return &Confirmer{source: source}
}

// Confirm classifies the primary interval and its hierarchy pair and scores
// their alignment. It returns (nil, nil) when any interval lacks the 50
// candles of history the classification needs — the spec treats that as
// "pass" for callers, not as an error.
func (c *Confirmer) Confirm(securityID string, primary models.Interval) (*Result, error) {
	pair, ok := hierarchy[primary]
	if !ok {
		return nil, fmt.Errorf("mtf: no hierarchy entry for interval %s", primary)
	}
	mid, higher := pair[0], pair[1]

	intervals := []models.Interval{primary, mid, higher}
	views := make([]TimeframeView, len(intervals))
	errs := make([]error, len(intervals))

	var wg sync.WaitGroup
	for i, iv := range intervals {
		wg.Add(1)
		go func(i int, iv models.Interval) {
			defer wg.Done()
			v, err := c.classify(securityID, iv)
			views[i] = v
			errs[i] = err
		}(i, iv)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, nil
		}
	}

	result := &Result{
		SecurityID: securityID,
		Primary:    views[0],
		Mid:        views[1],
		Higher:     views[2],
	}
	c.score(result)
	return result, nil
}

func (c *Confirmer) classify(securityID string, interval models.Interval) (TimeframeView, error) {
	candles, err := c.source.LastClosed(securityID, interval, historyLen)
	if err != nil {
		return TimeframeView{}, err
	}
	if len(candles) < historyLen {
		return TimeframeView{}, fmt.Errorf("mtf: insufficient history for %s", interval)
	}

	closes := make([]float64, len(candles))
	for i, cd := range candles {
		closes[i] = cd.Close
	}

	ema9 := indicators.CalculateEMA(closes, 9)
	ema21 := indicators.CalculateEMA(closes, 21)
	if len(ema9) < 2 || len(ema21) == 0 {
		return TimeframeView{}, fmt.Errorf("mtf: insufficient EMA history for %s", interval)
	}

	n := len(ema9)
	view := TimeframeView{
		Interval:  interval,
		EMA9Last:  ema9[n-1],
		EMA9Prev:  ema9[n-2],
		EMA21Last: ema21[len(ema21)-1],
	}

	switch {
	case view.EMA9Last > view.EMA21Last && view.EMA9Last > view.EMA9Prev:
		view.Direction = Bullish
	case view.EMA9Last < view.EMA21Last && view.EMA9Last < view.EMA9Prev:
		view.Direction = Bearish
	default:
		view.Direction = Neutral
	}

	return view, nil
}

func (c *Confirmer) score(r *Result) {
	primary, mid, higher := r.Primary.Direction, r.Mid.Direction, r.Higher.Direction

	allShare := primary != Neutral && primary == mid && mid == higher
	higherMidAgree := higher != Neutral && higher == mid && (primary == higher || primary == Neutral)

	r.IsAligned = allShare || higherMidAgree

	switch {
	case !r.IsAligned:
		r.AlignmentScore = 0
	case allShare:
		r.AlignmentScore = 100
	case primary == higher:
		r.AlignmentScore = 75
	default:
		r.AlignmentScore = 50
	}
	if higher != Neutral && r.AlignmentScore > 0 {
		r.AlignmentScore += 15
	}
	if r.AlignmentScore > 100 {
		r.AlignmentScore = 100
	}

	switch {
	case r.IsAligned && (primary == Bullish || higher == Bullish):
		r.Recommendation = RecommendBuy
	case r.IsAligned && (primary == Bearish || higher == Bearish):
		r.Recommendation = RecommendSell
	default:
		r.Recommendation = RecommendWait
	}
}
