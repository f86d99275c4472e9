package strategy

import (
	"sync"
	"time"

	"indexfeed-trader/internal/config"
	"indexfeed-trader/internal/models"
)

// openingRangeState tracks one security's opening-range phase across a
// session: the range being built during 09:15-09:30, then the frozen range
// and sticky entry flags used for the rest of the day.
type openingRangeState struct {
	rangeHigh, rangeLow float64
	haveRange           bool
	frozen              bool
	orHigh, orLow       float64

	tradedBullish bool
	tradedBearish bool

	volumes []int64
}

// OpeningRangeBreakout trades a break of the 09:15-09:30 opening range on
// 1m candles, one bullish and one bearish entry per session.
type OpeningRangeBreakout struct {
	Base

	mu    sync.Mutex
	state map[string]*openingRangeState
}

// NewOpeningRangeBreakout creates the ORB strategy with its documented
// 2-trade daily cap.
func NewOpeningRangeBreakout(risk config.RiskConfig) *OpeningRangeBreakout {
	return &OpeningRangeBreakout{
		Base:  NewBase(risk, 2),
		state: make(map[string]*openingRangeState),
	}
}

func (s *OpeningRangeBreakout) Name() string             { return "opening-range-breakout" }
func (s *OpeningRangeBreakout) Interval() models.Interval { return models.Interval1m }

// ResetDaily clears every security's opening-range state in addition to
// the shared trade counter.
func (s *OpeningRangeBreakout) ResetDaily() {
	s.Base.ResetDaily()
	s.mu.Lock()
	s.state = make(map[string]*openingRangeState)
	s.mu.Unlock()
}

func (s *OpeningRangeBreakout) OnCandle(candle models.Candle) (*models.Signal, string) {
	local := candle.Timestamp.Local()
	openTime := dayTime(local, 9, 15)
	freezeTime := dayTime(local, 9, 30)
	sessionEnd := dayTime(local, 14, 0)

	if local.Before(openTime) || local.After(sessionEnd) {
		return nil, ""
	}

	s.mu.Lock()
	st, ok := s.state[candle.SecurityID]
	if !ok {
		st = &openingRangeState{}
		s.state[candle.SecurityID] = st
	}
	st.volumes = append(st.volumes, candle.Volume)
	if len(st.volumes) > 20 {
		st.volumes = st.volumes[len(st.volumes)-20:]
	}

	if local.Before(freezeTime) {
		if !st.haveRange {
			st.rangeHigh, st.rangeLow = candle.High, candle.Low
			st.haveRange = true
		} else {
			if candle.High > st.rangeHigh {
				st.rangeHigh = candle.High
			}
			if candle.Low < st.rangeLow {
				st.rangeLow = candle.Low
			}
		}
		s.mu.Unlock()
		return nil, ""
	}

	if !st.frozen {
		st.orHigh, st.orLow = st.rangeHigh, st.rangeLow
		st.frozen = true
	}
	orHigh, orLow := st.orHigh, st.orLow
	orHeight := orHigh - orLow
	tradedBullish, tradedBearish := st.tradedBullish, st.tradedBearish
	volumes := append([]int64(nil), st.volumes...)
	s.mu.Unlock()

	if orHeight <= 0 {
		return nil, ""
	}
	if !volumeSurged(volumes, 2.0, 20) {
		return nil, "volume did not surge 2x trailing average"
	}

	var side models.Side
	var stopLoss, target float64
	switch {
	case candle.Close > orHigh && !tradedBullish:
		side = models.SideBuy
		stopLoss = orLow
		target = candle.Close + 2*orHeight
	case candle.Close < orLow && !tradedBearish:
		side = models.SideSell
		stopLoss = orHigh
		target = candle.Close - 2*orHeight
	default:
		return nil, ""
	}

	filter := PassesDepthFilter(side, models.DepthMetrics{
		BidAskImbalance:   candle.AvgImbalance,
		OrderBookStrength: candle.AvgStrength,
		LiquidityScore:    100,
	})
	if !filter.Passed {
		return nil, filter.Reason
	}
	if candle.AvgStrength > -1000 && candle.AvgStrength < 1000 {
		return nil, "order book strength below 1000"
	}

	if !s.TryReserveTrade() {
		return nil, "daily trade cap reached"
	}

	s.mu.Lock()
	if side == models.SideBuy {
		st.tradedBullish = true
	} else {
		st.tradedBearish = true
	}
	s.mu.Unlock()

	return &models.Signal{
		StrategyName: s.Name(),
		SecurityID:   candle.SecurityID,
		Side:         side,
		Price:        candle.Close,
		StopLoss:     stopLoss,
		Target:       target,
		Quantity:     s.PositionSize(candle.Close),
		Reason:       "opening range breakout",
		Status:       models.SignalPending,
	}, ""
}

func dayTime(ref time.Time, hour, minute int) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, ref.Location())
}
