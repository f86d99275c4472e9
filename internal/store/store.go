// Package store provides the persistence adapter (C9): ticks, candles,
// signals, orders, positions and portfolios, backed by SQLite in WAL mode.
package store

import (
	"indexfeed-trader/internal/models"
)

// DataStore is the full persistence surface C1-C9 depends on. A single
// SQLite-backed implementation satisfies it; individual components narrow
// it to the methods they need (see candle.Store, executor.Store,
// executor.PositionStore, strategy.SignalSink, mtf.CandleSource).
type DataStore interface {
	// Ticks: append-only, 24h TTL.
	SaveTick(tick models.Tick) error
	RecentTicks(securityID string, limit int) ([]models.Tick, error)

	// Candles: upsert by (securityId, interval, timestamp). 1m TTL 7 days,
	// other intervals retained indefinitely.
	UpsertCandle(c models.Candle) error
	LastClosed(securityID string, interval models.Interval, n int) ([]models.Candle, error)

	// Signals.
	SaveSignal(s *models.Signal) error
	SignalsByStrategy(strategyName string, limit int) ([]models.Signal, error)
	SignalsByStatus(status models.SignalStatus, limit int) ([]models.Signal, error)

	// Orders.
	SaveOrder(o *models.Order) error

	// Positions.
	SavePosition(p *models.Position) error
	OpenPosition(strategyName, securityID string) (*models.Position, error)
	OpenPositionsFor(securityID string) ([]*models.Position, error)
	AllOpenPositions() ([]*models.Position, error)
	PositionsByStrategy(strategyName string, limit int) ([]models.Position, error)

	// Instruments: seeded subscription configuration.
	SaveInstrument(inst models.Instrument) error
	AllInstruments() ([]models.Instrument, error)

	// Pattern events: candlestick patterns detected on closed candles.
	SavePatternEvent(e models.PatternEvent) error
	RecentPatternEvents(securityID string, limit int) ([]models.PatternEvent, error)

	// Portfolio: one virtual account per userID.
	GetPortfolio(userID string) (*models.Portfolio, error)
	SavePortfolio(p *models.Portfolio) error

	// SweepExpired deletes ticks and 1m candles past their TTL. Intended to
	// run on a fixed interval (default hourly) as a background task.
	SweepExpired() error

	// Ping reports whether the underlying connection is reachable, for the
	// /healthz probe.
	Ping() error

	Close() error
}
