package strategy

import (
	"math"
	"sync"

	"indexfeed-trader/internal/config"
	"indexfeed-trader/internal/depth"
	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/models"
	"indexfeed-trader/internal/mtf"
)

const confluenceHistoryLen = 20

// OptionChainSentiment is the cached external sentiment input consumed as
// confluence #4.
type OptionChainSentiment struct {
	SecurityID string
	Direction  models.Side
	Strength   float64
}

type confluenceState struct {
	candles        []models.Candle
	sumVolume      int64
	depthAnalytics depth.Analytics
	sentiment      OptionChainSentiment
}

// MultiConfluence requires at least four of five confluences plus C5
// alignment before emitting a signal on a 5m close.
type MultiConfluence struct {
	Base

	confirmer *mtf.Confirmer

	mu    sync.Mutex
	state map[string]*confluenceState
}

// NewMultiConfluence creates the confluence strategy, unlimited daily
// trades (the per-confluence gating is the rate limiter here).
func NewMultiConfluence(risk config.RiskConfig, confirmer *mtf.Confirmer) *MultiConfluence {
	return &MultiConfluence{
		Base:      NewBase(risk, 0),
		confirmer: confirmer,
		state:     make(map[string]*confluenceState),
	}
}

func (s *MultiConfluence) Name() string             { return "multi-confluence" }
func (s *MultiConfluence) Interval() models.Interval { return models.Interval5m }

// Subscribe wires the strategy's depth:analytics and option-chain:analytics
// cache to the shared bus. Call once at startup.
func (s *MultiConfluence) Subscribe(bus *eventbus.Bus) {
	go s.consumeAnalytics(bus.Subscribe(eventbus.TopicDepthAnalytics))
	go s.consumeSentiment(bus.Subscribe(eventbus.TopicOptionChain))
}

func (s *MultiConfluence) consumeAnalytics(ch <-chan any) {
	for ev := range ch {
		a, ok := ev.(depth.Analytics)
		if !ok {
			continue
		}
		s.mu.Lock()
		st := s.stateFor(a.SecurityID)
		st.depthAnalytics = a
		s.mu.Unlock()
	}
}

func (s *MultiConfluence) consumeSentiment(ch <-chan any) {
	for ev := range ch {
		sent, ok := ev.(OptionChainSentiment)
		if !ok {
			continue
		}
		s.mu.Lock()
		st := s.stateFor(sent.SecurityID)
		st.sentiment = sent
		s.mu.Unlock()
	}
}

func (s *MultiConfluence) stateFor(securityID string) *confluenceState {
	st, ok := s.state[securityID]
	if !ok {
		st = &confluenceState{}
		s.state[securityID] = st
	}
	return st
}

func (s *MultiConfluence) OnCandle(candle models.Candle) (*models.Signal, string) {
	if !WithinIntradayWindow(candle.Timestamp) {
		return nil, ""
	}

	s.mu.Lock()
	st := s.stateFor(candle.SecurityID)
	st.candles = append(st.candles, candle)
	if len(st.candles) > confluenceHistoryLen {
		st.candles = st.candles[len(st.candles)-confluenceHistoryLen:]
	}
	st.sumVolume += candle.Volume
	candles := append([]models.Candle(nil), st.candles...)
	analytics := st.depthAnalytics
	sentiment := st.sentiment
	s.mu.Unlock()

	if len(candles) < 6 {
		return nil, ""
	}

	avgVolume := averageVolume(candles)
	side, score := s.evaluateConfluences(candles, avgVolume, analytics, sentiment)
	if score < 4 {
		return nil, "fewer than 4 confluences satisfied"
	}

	result, err := s.confirmer.Confirm(candle.SecurityID, candle.Interval)
	if err != nil {
		return nil, "confirmer error"
	}
	if result != nil && !result.IsAligned {
		return nil, "multi-timeframe confirmer not aligned"
	}

	filter := PassesDepthFilter(side, models.DepthMetrics{
		BidAskImbalance:   candle.AvgImbalance,
		OrderBookStrength: candle.AvgStrength,
		LiquidityScore:    100,
	})
	if !filter.Passed {
		return nil, filter.Reason
	}
	if !s.TryReserveTrade() {
		return nil, "daily trade cap reached"
	}

	stopLoss, target := DefaultStopTarget(side, candle.Close)
	return &models.Signal{
		StrategyName: s.Name(),
		SecurityID:   candle.SecurityID,
		Side:         side,
		Price:        candle.Close,
		StopLoss:     stopLoss,
		Target:       target,
		Quantity:     s.PositionSize(candle.Close),
		Reason:       "multi-confluence alignment",
		Status:       models.SignalPending,
	}, ""
}

// evaluateConfluences scores up to five confluences for both directions
// and returns the stronger side with its satisfied count.
func (s *MultiConfluence) evaluateConfluences(candles []models.Candle, avgVolume float64, a depth.Analytics, sentiment OptionChainSentiment) (models.Side, int) {
	bullScore := 0
	bearScore := 0

	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]

	// Confluence 1: breakout candle.
	rng := last.High - last.Low
	if rng > 0 {
		topQuartile := last.High - 0.25*rng
		if last.Close > last.Open && last.Close >= topQuartile && last.Close > prev.High {
			bullScore++
		}
		bottomQuartile := last.Low + 0.25*rng
		if last.Close < last.Open && last.Close <= bottomQuartile && last.Close < prev.Low {
			bearScore++
		}
	}

	// Confluence 2: volume surge.
	if avgVolume > 0 && float64(last.Volume) >= 1.3*avgVolume {
		bullScore++
		bearScore++
	}

	// Confluence 3: depth absorption (>=20% imbalance) or the close sitting
	// on top of the strongest resting level on that side. Either test awards
	// at most one point per side, never both.
	bidAbsorption := a.Side == depth.AbsorptionBid && a.Imbalance >= 0.20
	bidProximity := a.StrongestBid > 0 && math.Abs(last.Close-a.StrongestBid)/last.Close <= 0.005
	if bidAbsorption || bidProximity {
		bullScore++
	}
	askAbsorption := a.Side == depth.AbsorptionAsk && -a.Imbalance >= 0.20
	askProximity := a.StrongestAsk > 0 && math.Abs(last.Close-a.StrongestAsk)/last.Close <= 0.005
	if askAbsorption || askProximity {
		bearScore++
	}

	// Confluence 4: option-chain sentiment.
	if sentiment.Strength >= 60 {
		if sentiment.Direction == models.SideBuy {
			bullScore++
		} else if sentiment.Direction == models.SideSell {
			bearScore++
		}
	}

	// Confluence 5: prior accumulation (tight consolidation before the move).
	if len(candles) >= 6 {
		window := candles[len(candles)-6 : len(candles)-1]
		if isAccumulation(window) {
			bullScore++
			bearScore++
		}
	}

	if bullScore >= bearScore {
		return models.SideBuy, bullScore
	}
	return models.SideSell, bearScore
}

func isAccumulation(candles []models.Candle) bool {
	if len(candles) == 0 {
		return false
	}
	var sum float64
	for _, c := range candles {
		sum += c.Close
	}
	mean := sum / float64(len(candles))
	if mean == 0 {
		return false
	}
	for _, c := range candles {
		if math.Abs(c.Close-mean)/mean > 0.01 {
			return false
		}
	}
	return true
}

func averageVolume(candles []models.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	var sum int64
	for _, c := range candles {
		sum += c.Volume
	}
	return float64(sum) / float64(len(candles))
}
