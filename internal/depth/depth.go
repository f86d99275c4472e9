// Package depth computes order-book derived metrics from a market depth
// snapshot: imbalance, spread, weighted strength, a rolling volume delta,
// and a composite liquidity score consumed as an entry filter by the
// strategy engine (C6).
package depth

import (
	"sync"

	"indexfeed-trader/internal/models"
)

// levelWeights weights bid/ask quantity by proximity to the touch when
// computing order book strength: level 1 counts for 5x, level 5 for 1x.
var levelWeights = [5]float64{5, 4, 3, 2, 1}

// Compute derives DepthMetrics from a market depth snapshot and the tick's
// last traded price. It is a pure function: callers own the volume-delta
// ring separately via a Tracker.
func Compute(md models.MarketDepth, ltp float64) models.DepthMetrics {
	var sumBidQty, sumAskQty int64
	var strength float64

	for i := 0; i < 5 && i < len(md.Bids); i++ {
		sumBidQty += md.Bids[i].Quantity
		strength += levelWeights[i] * float64(md.Bids[i].Quantity)
	}
	for i := 0; i < 5 && i < len(md.Asks); i++ {
		sumAskQty += md.Asks[i].Quantity
		strength -= levelWeights[i] * float64(md.Asks[i].Quantity)
	}

	imbalance := 10.0
	if sumAskQty > 0 {
		imbalance = float64(sumBidQty) / float64(sumAskQty)
	}

	var spread float64
	if ltp > 0 && len(md.Bids) > 0 && len(md.Asks) > 0 {
		spread = (md.Asks[0].Price - md.Bids[0].Price) / ltp
	}

	return models.DepthMetrics{
		BidAskImbalance:   imbalance,
		DepthSpread:       spread,
		OrderBookStrength: strength,
		LiquidityScore:    liquidityScore(spread, sumBidQty+sumAskQty, avgOrders(md)),
	}
}

func avgOrders(md models.MarketDepth) float64 {
	var total int64
	var count int
	for i := 0; i < 5 && i < len(md.Bids); i++ {
		total += int64(md.Bids[i].Orders)
		count++
	}
	for i := 0; i < 5 && i < len(md.Asks); i++ {
		total += int64(md.Asks[i].Orders)
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

// liquidityScore starts at 100 and applies the documented penalties for a
// wide spread, thin total depth, and few resting orders per level, clamped
// to [0, 100].
func liquidityScore(spread float64, totalQty int64, avgOrdersPerLevel float64) float64 {
	score := 100.0

	switch {
	case spread > 0.0015:
		score -= 30
	case spread > 0.0010:
		score -= 20
	case spread > 0.0005:
		score -= 10
	}

	switch {
	case totalQty < 10_000:
		score -= 25
	case totalQty < 50_000:
		score -= 10
	}

	switch {
	case avgOrdersPerLevel < 10:
		score -= 15
	case avgOrdersPerLevel < 20:
		score -= 5
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// sample is one (totalBuyQty, totalSellQty) observation in a security's
// volume-delta ring.
type sample struct {
	buy, sell int64
}

const ringSize = 5

// Tracker maintains a per-security ring of recent buy/sell totals so
// VolumeDelta can be computed across ticks without the caller threading
// history through itself.
type Tracker struct {
	mu    sync.Mutex
	rings map[string][]sample
}

// NewTracker creates an empty volume-delta tracker.
func NewTracker() *Tracker {
	return &Tracker{rings: make(map[string][]sample)}
}

// Observe records a new (totalBuyQty, totalSellQty) pair for securityID and
// returns the volume delta against the oldest retained sample. It returns 0
// until at least two samples have been observed.
func (t *Tracker) Observe(securityID string, totalBuyQty, totalSellQty int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	ring := t.rings[securityID]
	ring = append(ring, sample{buy: totalBuyQty, sell: totalSellQty})
	if len(ring) > ringSize {
		ring = ring[len(ring)-ringSize:]
	}
	t.rings[securityID] = ring

	if len(ring) < 2 {
		return 0
	}
	oldest, newest := ring[0], ring[len(ring)-1]
	return (newest.buy - oldest.buy) - (newest.sell - oldest.sell)
}
