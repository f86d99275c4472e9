// Package models provides the domain entities shared across the pipeline.
package models

import "time"

// Segment identifies the exchange segment an instrument trades on.
type Segment string

const (
	SegmentIndex       Segment = "index"
	SegmentEquity      Segment = "equity"
	SegmentDerivatives Segment = "derivatives"
	SegmentCurrency    Segment = "currency"
	SegmentCommodity   Segment = "commodity"
)

// Side is the direction of a signal, order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionSide mirrors Side but reads naturally against an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// SideFor returns the position side that opening with the given order side produces.
func SideFor(s Side) PositionSide {
	if s == SideSell {
		return PositionShort
	}
	return PositionLong
}

// Interval is a tracked candle timeframe.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
)

// Duration returns the wall-clock span of the interval, or 0 for Interval1d
// whose boundary is computed against local midnight rather than a fixed span.
func (iv Interval) Duration() time.Duration {
	switch iv {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// SignalStatus is the lifecycle state of a Signal.
type SignalStatus string

const (
	SignalPending  SignalStatus = "pending"
	SignalExecuted SignalStatus = "executed"
	SignalRejected SignalStatus = "rejected"
	SignalExpired  SignalStatus = "expired"
)

// OrderStatus is the lifecycle state of a paper Order.
type OrderStatus string

const (
	OrderExecuted OrderStatus = "executed"
	OrderFailed   OrderStatus = "failed"
)

// PositionStatus is the lifecycle state of a Position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseStop   CloseReason = "stop"
	CloseTarget CloseReason = "target"
	CloseEOD    CloseReason = "eod"
	CloseManual CloseReason = "manual"
)

// RejectionReason is why the executor refused to act on a signal.
type RejectionReason string

const (
	RejectDailyLossLimit      RejectionReason = "dailyLossLimit"
	RejectInsufficientCapital RejectionReason = "insufficientCapital"
	RejectNoPortfolio         RejectionReason = "noPortfolio"
	RejectDuplicateOpen       RejectionReason = "duplicateOpenPosition"
)

// Instrument is immutable subscription configuration for a tradeable security.
type Instrument struct {
	SecurityID string
	Symbol     string
	Segment    Segment
	LotSize    int
	TickSize   float64
}

// DepthLevel is a single rung of the bid or ask ladder.
type DepthLevel struct {
	Price    float64
	Quantity int64
	Orders   int32
}

// DepthMetrics is the analytics C2 recomputes on every full packet.
type DepthMetrics struct {
	BidAskImbalance   float64
	DepthSpread       float64
	OrderBookStrength float64
	VolumeDelta       int64
	LiquidityScore    float64
}

// Tick is the enriched quote created on every full quote packet.
type Tick struct {
	SecurityID   string
	LTP          float64
	LTQ          int32
	LTT          time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	ATP          float64
	Volume       int64
	TotalBuyQty  int64
	TotalSellQty int64
	DepthMetrics DepthMetrics
	CapturedAt   time.Time
}

// MarketDepth is the full bid/ask ladder for a security, up to 20 levels a side.
type MarketDepth struct {
	SecurityID string
	Bids       []DepthLevel
	Asks       []DepthLevel
	CapturedAt time.Time
}

// Candle is one OHLCV bar for a (SecurityID, Interval, Timestamp) key.
type Candle struct {
	SecurityID  string
	Interval    Interval
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      int64
	AvgImbalance float64
	AvgSpread    float64
	AvgStrength  float64
	Timestamp    time.Time
	IsClosed     bool
}

// Key uniquely identifies the candle's aggregation bucket.
func (c Candle) Key() string {
	return c.SecurityID + "|" + string(c.Interval) + "|" + c.Timestamp.UTC().Format(time.RFC3339)
}

// PatternEvent is a candlestick pattern detected on a closed candle.
type PatternEvent struct {
	ID         int64
	SecurityID string
	Interval   Interval
	Name       string
	Direction  string
	Strength   float64
	DetectedAt time.Time
}

// Signal is a strategy's proposed trade, pending an executor decision.
type Signal struct {
	ID             int64
	StrategyName   string
	SecurityID     string
	Side           Side
	Price          float64
	StopLoss       float64
	Target         float64
	Quantity       int64
	Reason         string
	DepthSnapshot  DepthMetrics
	QualityScore   float64
	Status         SignalStatus
	CreatedAt      time.Time
	DecidedAt      *time.Time
	RejectionReason RejectionReason
}

// Order is the paper fill created when a signal is executed.
type Order struct {
	ID             int64
	SignalID       int64
	SecurityID     string
	Side           Side
	Quantity       int64
	RequestedPrice float64
	FillPrice      float64
	Status         OrderStatus
	CreatedAt      time.Time
	FilledAt       *time.Time
}

// Position is a single open or closed trade lot.
type Position struct {
	ID            int64
	SecurityID    string
	StrategyName  string
	Side          PositionSide
	Quantity      int64
	EntryPrice    float64
	CurrentPrice  float64
	StopLoss      float64
	Target        float64
	UnrealizedPnL float64
	RealizedPnL   float64
	Status        PositionStatus
	OpenedAt      time.Time
	ClosedAt      *time.Time
	CloseReason   CloseReason
}

// Portfolio is the single virtual account the executor mutates.
type Portfolio struct {
	UserID           string
	TotalCapital     float64
	AvailableCapital float64
	UsedMargin       float64
	TodayPnL         float64
	TotalPnL         float64
	TotalTrades      int64
	WinningTrades    int64
	LosingTrades     int64
	WinRate          float64
	MaxDailyLoss     float64
	CurrentDailyLoss float64
}

// RecomputeWinRate refreshes WinRate from TotalTrades/WinningTrades.
func (p *Portfolio) RecomputeWinRate() {
	if p.TotalTrades == 0 {
		p.WinRate = 0
		return
	}
	p.WinRate = float64(p.WinningTrades) / float64(p.TotalTrades)
}

// PnLSign returns +1 for a long position and -1 for a short one.
func (p Position) PnLSign() float64 {
	if p.Side == PositionShort {
		return -1
	}
	return 1
}
