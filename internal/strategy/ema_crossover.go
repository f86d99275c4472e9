package strategy

import (
	"sync"

	"indexfeed-trader/internal/analysis/indicators"
	"indexfeed-trader/internal/config"
	"indexfeed-trader/internal/models"
)

const emaHistoryLimit = 60

// EMACrossover trades a 9/21 EMA crossover on 5m candles, gated by a
// volume-surge filter and the shared depth/sizing rules.
type EMACrossover struct {
	Base

	mu      sync.Mutex
	history map[string][]models.Candle
}

// NewEMACrossover creates the crossover strategy with its documented
// 3-trade daily cap.
func NewEMACrossover(risk config.RiskConfig) *EMACrossover {
	return &EMACrossover{
		Base:    NewBase(risk, 3),
		history: make(map[string][]models.Candle),
	}
}

func (s *EMACrossover) Name() string            { return "ema-crossover" }
func (s *EMACrossover) Interval() models.Interval { return models.Interval5m }

// OnCandle appends candle to the per-security rolling history and, once 21
// candles are available, checks for a fresh EMA9/EMA21 crossover against a
// volume-surge filter before deferring to the shared depth/sizing rules.
func (s *EMACrossover) OnCandle(candle models.Candle) (*models.Signal, string) {
	if !WithinIntradayWindow(candle.Timestamp) {
		return nil, ""
	}

	s.mu.Lock()
	hist := append(s.history[candle.SecurityID], candle)
	if len(hist) > emaHistoryLimit {
		hist = hist[len(hist)-emaHistoryLimit:]
	}
	s.history[candle.SecurityID] = hist
	candles := append([]models.Candle(nil), hist...)
	s.mu.Unlock()

	if len(candles) < 21 {
		return nil, ""
	}

	closes := make([]float64, len(candles))
	volumes := make([]int64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	ema9 := indicators.CalculateEMA(closes, 9)
	ema21 := indicators.CalculateEMA(closes, 21)
	if len(ema9) < 2 || len(ema21) < 1 {
		return nil, ""
	}

	crossover := indicators.DetectEMACrossover(ema9, ema21)
	if crossover == indicators.CrossoverNone {
		return nil, ""
	}

	if !volumeSurged(volumes, 1.2, 10) {
		return nil, "volume did not surge 1.2x trailing average"
	}

	side := models.SideBuy
	if crossover == indicators.CrossoverBearish {
		side = models.SideSell
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
	qty := s.PositionSize(candle.Close)

	return &models.Signal{
		StrategyName: s.Name(),
		SecurityID:   candle.SecurityID,
		Side:         side,
		Price:        candle.Close,
		StopLoss:     stopLoss,
		Target:       target,
		Quantity:     qty,
		Reason:       "ema9/ema21 crossover with volume surge",
		Status:       models.SignalPending,
	}, ""
}

// volumeSurged reports whether the most recent volume sample is at least
// factor times the average of up to lookback prior samples.
func volumeSurged(volumes []int64, factor float64, lookback int) bool {
	if len(volumes) < 2 {
		return false
	}
	latest := volumes[len(volumes)-1]
	prior := volumes[:len(volumes)-1]
	if len(prior) > lookback {
		prior = prior[len(prior)-lookback:]
	}
	if len(prior) == 0 {
		return false
	}
	var sum int64
	for _, v := range prior {
		sum += v
	}
	avg := float64(sum) / float64(len(prior))
	if avg == 0 {
		return false
	}
	return float64(latest) >= factor*avg
}
