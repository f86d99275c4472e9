package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"indexfeed-trader/internal/models"
	"indexfeed-trader/pkg/utils"
)

// SQLiteStore implements DataStore over SQLite in WAL mode.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (creating if absent) the database at dbPath and
// applies the schema. Matches the reference store's connection setup:
// WAL journal mode, a busy timeout so concurrent writers back off instead
// of failing, and foreign keys enabled.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	// initSchema can hit SQLITE_BUSY against a WAL file another process is
	// still recovering from a prior crash; retry with backoff rather than
	// failing startup on the first transient lock.
	retryCfg := utils.DefaultRetryConfig()
	retryCfg.MaxAttempts = 5
	if err := utils.Retry(context.Background(), retryCfg, store.initSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ticks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		security_id TEXT NOT NULL,
		ltp REAL NOT NULL,
		ltq INTEGER NOT NULL,
		ltt DATETIME NOT NULL,
		open REAL, high REAL, low REAL, close REAL, atp REAL,
		volume INTEGER NOT NULL,
		total_buy_qty INTEGER NOT NULL,
		total_sell_qty INTEGER NOT NULL,
		bid_ask_imbalance REAL,
		depth_spread REAL,
		order_book_strength REAL,
		volume_delta INTEGER,
		liquidity_score REAL,
		captured_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ticks_security_time ON ticks(security_id, captured_at DESC);

	CREATE TABLE IF NOT EXISTS candles (
		security_id TEXT NOT NULL,
		interval TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL, high REAL NOT NULL, low REAL NOT NULL, close REAL NOT NULL,
		volume INTEGER NOT NULL,
		avg_imbalance REAL, avg_spread REAL, avg_strength REAL,
		is_closed INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (security_id, interval, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_candles_lookup ON candles(security_id, interval, timestamp DESC);

	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		strategy_name TEXT NOT NULL,
		security_id TEXT NOT NULL,
		side TEXT NOT NULL,
		price REAL NOT NULL,
		stop_loss REAL NOT NULL,
		target REAL NOT NULL,
		quantity INTEGER NOT NULL,
		reason TEXT,
		quality_score REAL,
		status TEXT NOT NULL,
		rejection_reason TEXT,
		created_at DATETIME NOT NULL,
		decided_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_signals_strategy ON signals(strategy_name, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status);

	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		signal_id INTEGER,
		security_id TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		requested_price REAL NOT NULL,
		fill_price REAL NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		filled_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		security_id TEXT NOT NULL,
		strategy_name TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		current_price REAL NOT NULL,
		stop_loss REAL NOT NULL,
		target REAL NOT NULL,
		unrealized_pnl REAL NOT NULL DEFAULT 0,
		realized_pnl REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		opened_at DATETIME NOT NULL,
		closed_at DATETIME,
		close_reason TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_positions_open ON positions(security_id, status);
	CREATE INDEX IF NOT EXISTS idx_positions_strategy ON positions(strategy_name, opened_at DESC);

	CREATE TABLE IF NOT EXISTS instruments (
		security_id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		segment TEXT NOT NULL,
		lot_size INTEGER NOT NULL,
		tick_size REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pattern_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		security_id TEXT NOT NULL,
		interval TEXT NOT NULL,
		name TEXT NOT NULL,
		direction TEXT NOT NULL,
		strength REAL NOT NULL,
		detected_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pattern_events_security ON pattern_events(security_id, detected_at DESC);

	CREATE TABLE IF NOT EXISTS portfolios (
		user_id TEXT PRIMARY KEY,
		total_capital REAL NOT NULL,
		available_capital REAL NOT NULL,
		used_margin REAL NOT NULL,
		today_pnl REAL NOT NULL DEFAULT 0,
		total_pnl REAL NOT NULL DEFAULT 0,
		total_trades INTEGER NOT NULL DEFAULT 0,
		winning_trades INTEGER NOT NULL DEFAULT 0,
		losing_trades INTEGER NOT NULL DEFAULT 0,
		win_rate REAL NOT NULL DEFAULT 0,
		max_daily_loss REAL NOT NULL DEFAULT 0,
		current_daily_loss REAL NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying connection pool.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database connection is reachable.
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

// SaveTick appends one enriched tick to the append-only tick log.
func (s *SQLiteStore) SaveTick(t models.Tick) error {
	_, err := s.db.Exec(`
		INSERT INTO ticks (
			security_id, ltp, ltq, ltt, open, high, low, close, atp, volume,
			total_buy_qty, total_sell_qty, bid_ask_imbalance, depth_spread,
			order_book_strength, volume_delta, liquidity_score, captured_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.SecurityID, t.LTP, t.LTQ, t.LTT, t.Open, t.High, t.Low, t.Close, t.ATP, t.Volume,
		t.TotalBuyQty, t.TotalSellQty, t.DepthMetrics.BidAskImbalance, t.DepthMetrics.DepthSpread,
		t.DepthMetrics.OrderBookStrength, t.DepthMetrics.VolumeDelta, t.DepthMetrics.LiquidityScore, t.CapturedAt,
	)
	return err
}

// RecentTicks returns the most recent limit ticks for a security, newest
// first.
func (s *SQLiteStore) RecentTicks(securityID string, limit int) ([]models.Tick, error) {
	rows, err := s.db.Query(`
		SELECT security_id, ltp, ltq, ltt, open, high, low, close, atp, volume,
		       total_buy_qty, total_sell_qty, bid_ask_imbalance, depth_spread,
		       order_book_strength, volume_delta, liquidity_score, captured_at
		FROM ticks WHERE security_id = ? ORDER BY captured_at DESC LIMIT ?`, securityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Tick
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(
			&t.SecurityID, &t.LTP, &t.LTQ, &t.LTT, &t.Open, &t.High, &t.Low, &t.Close, &t.ATP, &t.Volume,
			&t.TotalBuyQty, &t.TotalSellQty, &t.DepthMetrics.BidAskImbalance, &t.DepthMetrics.DepthSpread,
			&t.DepthMetrics.OrderBookStrength, &t.DepthMetrics.VolumeDelta, &t.DepthMetrics.LiquidityScore, &t.CapturedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertCandle inserts or replaces a candle at its (securityId, interval,
// timestamp) key, matching C3's idempotent-upsert requirement.
func (s *SQLiteStore) UpsertCandle(c models.Candle) error {
	_, err := s.db.Exec(`
		INSERT INTO candles (security_id, interval, timestamp, open, high, low, close, volume,
			avg_imbalance, avg_spread, avg_strength, is_closed)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(security_id, interval, timestamp) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
			volume=excluded.volume, avg_imbalance=excluded.avg_imbalance,
			avg_spread=excluded.avg_spread, avg_strength=excluded.avg_strength,
			is_closed=excluded.is_closed`,
		c.SecurityID, string(c.Interval), c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume,
		c.AvgImbalance, c.AvgSpread, c.AvgStrength, c.IsClosed,
	)
	return err
}

// LastClosed returns the last n closed candles for (securityId, interval),
// oldest first, as required by the multi-timeframe confirmer.
func (s *SQLiteStore) LastClosed(securityID string, interval models.Interval, n int) ([]models.Candle, error) {
	rows, err := s.db.Query(`
		SELECT security_id, interval, timestamp, open, high, low, close, volume,
		       avg_imbalance, avg_spread, avg_strength, is_closed
		FROM candles WHERE security_id = ? AND interval = ? AND is_closed = 1
		ORDER BY timestamp DESC LIMIT ?`, securityID, string(interval), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Candle
	for rows.Next() {
		var c models.Candle
		var iv string
		if err := rows.Scan(&c.SecurityID, &iv, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
			&c.AvgImbalance, &c.AvgSpread, &c.AvgStrength, &c.IsClosed); err != nil {
			return nil, err
		}
		c.Interval = models.Interval(iv)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// SaveSignal inserts a new signal or updates an existing one's decision
// fields, writing the assigned ID back onto s.
func (s *SQLiteStore) SaveSignal(sig *models.Signal) error {
	if sig.ID == 0 {
		sig.CreatedAt = time.Now()
		res, err := s.db.Exec(`
			INSERT INTO signals (strategy_name, security_id, side, price, stop_loss, target,
				quantity, reason, quality_score, status, rejection_reason, created_at, decided_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			sig.StrategyName, sig.SecurityID, string(sig.Side), sig.Price, sig.StopLoss, sig.Target,
			sig.Quantity, sig.Reason, sig.QualityScore, string(sig.Status), string(sig.RejectionReason),
			sig.CreatedAt, sig.DecidedAt,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		sig.ID = id
		return nil
	}
	_, err := s.db.Exec(`
		UPDATE signals SET status = ?, rejection_reason = ?, decided_at = ? WHERE id = ?`,
		string(sig.Status), string(sig.RejectionReason), sig.DecidedAt, sig.ID,
	)
	return err
}

// SignalsByStrategy returns the most recent limit signals for a strategy.
func (s *SQLiteStore) SignalsByStrategy(strategyName string, limit int) ([]models.Signal, error) {
	return s.querySignals(`WHERE strategy_name = ? ORDER BY created_at DESC LIMIT ?`, strategyName, limit)
}

// SignalsByStatus returns the most recent limit signals with the given
// status.
func (s *SQLiteStore) SignalsByStatus(status models.SignalStatus, limit int) ([]models.Signal, error) {
	return s.querySignals(`WHERE status = ? ORDER BY created_at DESC LIMIT ?`, string(status), limit)
}

func (s *SQLiteStore) querySignals(where string, args ...any) ([]models.Signal, error) {
	rows, err := s.db.Query(`
		SELECT id, strategy_name, security_id, side, price, stop_loss, target, quantity,
		       reason, quality_score, status, rejection_reason, created_at, decided_at
		FROM signals `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Signal
	for rows.Next() {
		var sig models.Signal
		var side, status, rejection string
		if err := rows.Scan(&sig.ID, &sig.StrategyName, &sig.SecurityID, &side, &sig.Price, &sig.StopLoss,
			&sig.Target, &sig.Quantity, &sig.Reason, &sig.QualityScore, &status, &rejection,
			&sig.CreatedAt, &sig.DecidedAt); err != nil {
			return nil, err
		}
		sig.Side = models.Side(side)
		sig.Status = models.SignalStatus(status)
		sig.RejectionReason = models.RejectionReason(rejection)
		out = append(out, sig)
	}
	return out, rows.Err()
}

// SaveOrder inserts a new (always-executed) paper order.
func (s *SQLiteStore) SaveOrder(o *models.Order) error {
	res, err := s.db.Exec(`
		INSERT INTO orders (signal_id, security_id, side, quantity, requested_price, fill_price,
			status, created_at, filled_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		o.SignalID, o.SecurityID, string(o.Side), o.Quantity, o.RequestedPrice, o.FillPrice,
		string(o.Status), o.CreatedAt, o.FilledAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = id
	return nil
}

// SavePosition inserts a new position or updates an existing one in place.
func (s *SQLiteStore) SavePosition(p *models.Position) error {
	if p.ID == 0 {
		res, err := s.db.Exec(`
			INSERT INTO positions (security_id, strategy_name, side, quantity, entry_price,
				current_price, stop_loss, target, unrealized_pnl, realized_pnl, status,
				opened_at, closed_at, close_reason) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			p.SecurityID, p.StrategyName, string(p.Side), p.Quantity, p.EntryPrice, p.CurrentPrice,
			p.StopLoss, p.Target, p.UnrealizedPnL, p.RealizedPnL, string(p.Status),
			p.OpenedAt, p.ClosedAt, string(p.CloseReason),
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		p.ID = id
		return nil
	}
	_, err := s.db.Exec(`
		UPDATE positions SET current_price = ?, unrealized_pnl = ?, realized_pnl = ?, status = ?,
			closed_at = ?, close_reason = ? WHERE id = ?`,
		p.CurrentPrice, p.UnrealizedPnL, p.RealizedPnL, string(p.Status), p.ClosedAt,
		string(p.CloseReason), p.ID,
	)
	return err
}

// OpenPosition returns the open position for (strategyName, securityId), or
// nil if none exists. Used to enforce the duplicate-open-position rule.
func (s *SQLiteStore) OpenPosition(strategyName, securityID string) (*models.Position, error) {
	rows, err := s.queryPositions(`WHERE strategy_name = ? AND security_id = ? AND status = ? LIMIT 1`,
		strategyName, securityID, string(models.PositionOpen))
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// OpenPositionsFor returns every open position on a security, across
// strategies, for the mark-to-market loop.
func (s *SQLiteStore) OpenPositionsFor(securityID string) ([]*models.Position, error) {
	rows, err := s.queryPositions(`WHERE security_id = ? AND status = ?`, securityID, string(models.PositionOpen))
	if err != nil {
		return nil, err
	}
	out := make([]*models.Position, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// AllOpenPositions returns every open position, for the EOD square-off
// sweep.
func (s *SQLiteStore) AllOpenPositions() ([]*models.Position, error) {
	rows, err := s.queryPositions(`WHERE status = ?`, string(models.PositionOpen))
	if err != nil {
		return nil, err
	}
	out := make([]*models.Position, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// PositionsByStrategy returns the most recent limit positions opened by a
// strategy, regardless of status.
func (s *SQLiteStore) PositionsByStrategy(strategyName string, limit int) ([]models.Position, error) {
	return s.queryPositions(`WHERE strategy_name = ? ORDER BY opened_at DESC LIMIT ?`, strategyName, limit)
}

func (s *SQLiteStore) queryPositions(where string, args ...any) ([]models.Position, error) {
	rows, err := s.db.Query(`
		SELECT id, security_id, strategy_name, side, quantity, entry_price, current_price,
		       stop_loss, target, unrealized_pnl, realized_pnl, status, opened_at, closed_at, close_reason
		FROM positions `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		var p models.Position
		var side, status, reason string
		if err := rows.Scan(&p.ID, &p.SecurityID, &p.StrategyName, &side, &p.Quantity, &p.EntryPrice,
			&p.CurrentPrice, &p.StopLoss, &p.Target, &p.UnrealizedPnL, &p.RealizedPnL, &status,
			&p.OpenedAt, &p.ClosedAt, &reason); err != nil {
			return nil, err
		}
		p.Side = models.PositionSide(side)
		p.Status = models.PositionStatus(status)
		p.CloseReason = models.CloseReason(reason)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveInstrument upserts one instrument's subscription configuration, for
// the seed-instruments CLI command.
func (s *SQLiteStore) SaveInstrument(inst models.Instrument) error {
	_, err := s.db.Exec(`
		INSERT INTO instruments (security_id, symbol, segment, lot_size, tick_size)
		VALUES (?,?,?,?,?)
		ON CONFLICT(security_id) DO UPDATE SET
			symbol=excluded.symbol, segment=excluded.segment,
			lot_size=excluded.lot_size, tick_size=excluded.tick_size`,
		inst.SecurityID, inst.Symbol, string(inst.Segment), inst.LotSize, inst.TickSize,
	)
	return err
}

// AllInstruments returns every seeded instrument.
func (s *SQLiteStore) AllInstruments() ([]models.Instrument, error) {
	rows, err := s.db.Query(`SELECT security_id, symbol, segment, lot_size, tick_size FROM instruments`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Instrument
	for rows.Next() {
		var inst models.Instrument
		var segment string
		if err := rows.Scan(&inst.SecurityID, &inst.Symbol, &segment, &inst.LotSize, &inst.TickSize); err != nil {
			return nil, err
		}
		inst.Segment = models.Segment(segment)
		out = append(out, inst)
	}
	return out, rows.Err()
}

// SavePatternEvent inserts one detected candlestick pattern.
func (s *SQLiteStore) SavePatternEvent(e models.PatternEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO pattern_events (security_id, interval, name, direction, strength, detected_at)
		VALUES (?,?,?,?,?,?)`,
		e.SecurityID, string(e.Interval), e.Name, e.Direction, e.Strength, e.DetectedAt,
	)
	return err
}

// RecentPatternEvents returns the most recently detected patterns for a
// security, most recent first.
func (s *SQLiteStore) RecentPatternEvents(securityID string, limit int) ([]models.PatternEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, security_id, interval, name, direction, strength, detected_at
		FROM pattern_events WHERE security_id = ? ORDER BY detected_at DESC LIMIT ?`,
		securityID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PatternEvent
	for rows.Next() {
		var e models.PatternEvent
		var interval string
		if err := rows.Scan(&e.ID, &e.SecurityID, &interval, &e.Name, &e.Direction, &e.Strength, &e.DetectedAt); err != nil {
			return nil, err
		}
		e.Interval = models.Interval(interval)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetPortfolio loads the virtual account for userID, or nil if it hasn't
// been seeded yet.
func (s *SQLiteStore) GetPortfolio(userID string) (*models.Portfolio, error) {
	row := s.db.QueryRow(`
		SELECT user_id, total_capital, available_capital, used_margin, today_pnl, total_pnl,
		       total_trades, winning_trades, losing_trades, win_rate, max_daily_loss, current_daily_loss
		FROM portfolios WHERE user_id = ?`, userID)

	var p models.Portfolio
	err := row.Scan(&p.UserID, &p.TotalCapital, &p.AvailableCapital, &p.UsedMargin, &p.TodayPnL,
		&p.TotalPnL, &p.TotalTrades, &p.WinningTrades, &p.LosingTrades, &p.WinRate,
		&p.MaxDailyLoss, &p.CurrentDailyLoss)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePortfolio upserts the virtual account.
func (s *SQLiteStore) SavePortfolio(p *models.Portfolio) error {
	_, err := s.db.Exec(`
		INSERT INTO portfolios (user_id, total_capital, available_capital, used_margin, today_pnl,
			total_pnl, total_trades, winning_trades, losing_trades, win_rate, max_daily_loss, current_daily_loss)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET
			available_capital=excluded.available_capital, used_margin=excluded.used_margin,
			today_pnl=excluded.today_pnl, total_pnl=excluded.total_pnl, total_trades=excluded.total_trades,
			winning_trades=excluded.winning_trades, losing_trades=excluded.losing_trades,
			win_rate=excluded.win_rate, current_daily_loss=excluded.current_daily_loss`,
		p.UserID, p.TotalCapital, p.AvailableCapital, p.UsedMargin, p.TodayPnL, p.TotalPnL,
		p.TotalTrades, p.WinningTrades, p.LosingTrades, p.WinRate, p.MaxDailyLoss, p.CurrentDailyLoss,
	)
	return err
}

// SweepExpired deletes ticks past their 24h TTL and 1m candles past their
// 7-day TTL with one DELETE statement each. It is run by a background
// hourly sweep rather than relying on SQLite's non-existent native TTL.
func (s *SQLiteStore) SweepExpired() error {
	now := time.Now()
	if _, err := s.db.Exec(`DELETE FROM ticks WHERE captured_at < ?`, now.Add(-24*time.Hour)); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM candles WHERE interval = ? AND timestamp < ?`,
		string(models.Interval1m), now.Add(-7*24*time.Hour))
	return err
}
