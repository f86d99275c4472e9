package cli

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"indexfeed-trader/internal/candle"
	"indexfeed-trader/internal/config"
	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/executor"
	"indexfeed-trader/internal/feed"
	"indexfeed-trader/internal/httpapi"
	"indexfeed-trader/internal/hub"
	"indexfeed-trader/internal/models"
	"indexfeed-trader/internal/mtf"
	"indexfeed-trader/internal/pipeline"
	"indexfeed-trader/internal/store"
	"indexfeed-trader/internal/strategy"
)

const portfolioUserID = "paper"

// newServeCmd composes C1-C9 into one running process: feed client, depth
// enrichment, candle aggregation, the strategy engine (consulting the mtf
// confirmer), the executor, and the subscriber hub, all hung off one shared
// event bus, plus the HTTP surface that exposes the hub over WebSocket.
// Grounded on the reference CLI's App-struct composition, generalized from
// wiring one broker client to wiring nine cooperating pipeline stages.
func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the feed-to-paper-trading pipeline and the subscriber hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(app)
		},
	}
}

func runServe(app *App) error {
	logger := app.Logger
	cfg := app.Config

	dataStore, err := store.NewSQLiteStore(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer dataStore.Close()

	if err := seedPortfolioIfAbsent(dataStore, cfg); err != nil {
		return fmt.Errorf("seeding portfolio: %w", err)
	}

	bus := eventbus.New(0)
	defer bus.Close()

	exchangeLoc := parseOffsetLocation(cfg.Schedule.Timezone)

	intervals := parseIntervals(cfg.Candle.Intervals)
	aggregator := candle.New(intervals, bus, dataStore, exchangeLoc)
	defer aggregator.Close()

	enricher := pipeline.New(bus, aggregator, dataStore, logger)
	patternWatcher := pipeline.NewPatternWatcher(bus, dataStore, logger)

	confirmer := mtf.NewConfirmer(dataStore)
	strategies := []strategy.Strategy{
		strategy.NewEMACrossover(cfg.Risk),
		strategy.NewOpeningRangeBreakout(cfg.Risk),
		strategy.NewMultiConfluence(cfg.Risk, confirmer),
	}
	for _, s := range strategies {
		if mc, ok := s.(*strategy.MultiConfluence); ok {
			mc.Subscribe(bus)
		}
	}
	engine := strategy.NewEngine(bus, strategies, dataStore, strategyLogger{logger})

	jitter := func() float64 { return (rand.Float64()*2 - 1) * 0.5 }
	exec := executor.New(dataStore, bus, portfolioUserID, jitter, int64(cfg.Risk.LotSize))

	feedClient := feed.New(feed.Config{
		Endpoint:             cfg.Feed.Endpoint,
		DepthEndpoint:        cfg.Feed.Endpoint,
		Token:                cfg.Feed.Token,
		ClientID:             cfg.Feed.ClientID,
		InitialDelay:         time.Duration(cfg.Feed.Reconnect.InitialDelayMs) * time.Millisecond,
		MaxReconnectAttempts: cfg.Feed.Reconnect.MaxAttempts,
		KeepaliveInterval:    time.Duration(cfg.Feed.KeepaliveIntervalSec) * time.Second,
	}, bus, logger)

	statusProvider := newStatus(dataStore, feedClient, cfg, strategies)
	h := hub.New(bus, statusProvider, logger)
	httpServer := httpapi.New(h, feedStatusAdapter{feedClient}, dataStore, logger)

	instruments := instrumentRefs(cfg.Feed.SubscriptionSet)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go enricher.Run()
	go patternWatcher.Run()
	go h.Run()
	go engine.Run(bus.Subscribe(eventbus.TopicCandleClose))
	go runExecutorLoop(ctx, bus, exec, dataStore)
	go runSweepLoop(ctx, dataStore, logger)
	go runScheduleLoop(ctx, cfg.Schedule, exchangeLoc, engine, exec, instruments, dataStore, logger)

	feedErr := make(chan error, 1)
	go func() {
		feedErr <- feedClient.Start(ctx)
	}()
	go func() {
		time.Sleep(2 * time.Second)
		if err := feedClient.Subscribe(instruments); err != nil {
			logger.Warn().Err(err).Msg("initial subscribe failed")
		}
	}()

	httpSrv := &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: httpServer.Handler()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-feedErr:
		if err != nil {
			logger.Error().Err(err).Msg("feed client stopped")
			if feed.IsAuthError(err) {
				runErr = fmt.Errorf("feed auth failure: %w", err)
			}
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	feedClient.Close()

	return runErr
}

func seedPortfolioIfAbsent(s *store.SQLiteStore, cfg *config.Config) error {
	existing, err := s.GetPortfolio(portfolioUserID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return s.SavePortfolio(&models.Portfolio{
		UserID:           portfolioUserID,
		TotalCapital:     cfg.Risk.TotalCapital,
		AvailableCapital: cfg.Risk.TotalCapital,
		MaxDailyLoss:     cfg.Risk.TotalCapital * cfg.Risk.MaxDailyLossPct,
	})
}

func parseIntervals(raw []string) []models.Interval {
	out := make([]models.Interval, 0, len(raw))
	for _, r := range raw {
		out = append(out, models.Interval(r))
	}
	return out
}

func instrumentRefs(entries []config.SubscriptionEntry) []feed.InstrumentRef {
	out := make([]feed.InstrumentRef, 0, len(entries))
	for _, e := range entries {
		out = append(out, feed.InstrumentRef{ExchangeSegment: e.Segment, SecurityID: e.SecurityID})
	}
	return out
}

// strategyLogger adapts zerolog.Logger to strategy.Logger so the engine
// package never imports zerolog directly.
type strategyLogger struct {
	logger zerolog.Logger
}

func (l strategyLogger) Rejected(strategyName, securityID, reason string) {
	l.logger.Debug().Str("strategy", strategyName).Str("securityId", securityID).Str("reason", reason).Msg("signal rejected")
}

func (l strategyLogger) Signaled(strategyName, securityID, side string, price float64) {
	l.logger.Info().Str("strategy", strategyName).Str("securityId", securityID).Str("side", side).Float64("price", price).Msg("signal generated")
}

// runExecutorLoop feeds accepted strategy signals and every tick into the
// executor, matching the data flow's "signals go to C7 ... C7 ... C8/C9".
func runExecutorLoop(ctx context.Context, bus *eventbus.Bus, exec *executor.Executor, positions executor.PositionStore) {
	signals := bus.Subscribe(eventbus.TopicSignal)
	ticks := bus.Subscribe(eventbus.TopicTick)
	defer bus.Unsubscribe(eventbus.TopicSignal, signals)
	defer bus.Unsubscribe(eventbus.TopicTick, ticks)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-signals:
			if !ok {
				return
			}
			signal, ok := ev.(*models.Signal)
			if !ok {
				continue
			}
			exec.OnSignal(signal)
		case ev, ok := <-ticks:
			if !ok {
				return
			}
			tick, ok := ev.(models.Tick)
			if !ok {
				continue
			}
			exec.OnTick(tick, positions)
		}
	}
}

// runSweepLoop runs the TTL sweep on a fixed hourly interval.
func runSweepLoop(ctx context.Context, s *store.SQLiteStore, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepExpired(); err != nil {
				logger.Warn().Err(err).Msg("TTL sweep failed")
			}
		}
	}
}

// runScheduleLoop fires the daily reset at market open and the EOD
// square-off sweep at the configured local times, checked once a minute.
func runScheduleLoop(ctx context.Context, sched config.ScheduleConfig, loc *time.Location, engine *strategy.Engine, exec *executor.Executor, instruments []feed.InstrumentRef, positions executor.PositionStore, logger zerolog.Logger) {
	resetAt := parseClock(sched.DailyResetAt)
	squareOffAt := parseClock(sched.EODSquareOff)

	var lastReset, lastSquareOff string
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	securityIDs := make([]string, len(instruments))
	for i, ref := range instruments {
		securityIDs[i] = ref.SecurityID
	}

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			local := now.In(loc)
			day := local.Format("2006-01-02")
			clock := local.Format("15:04")

			if clock == resetAt && lastReset != day {
				engine.ResetDaily()
				lastReset = day
				logger.Info().Msg("daily strategy reset")
			}
			if clock == squareOffAt && lastSquareOff != day {
				if err := exec.SquareOffAll(securityIDs, positions); err != nil {
					logger.Warn().Err(err).Msg("EOD square-off failed")
				}
				lastSquareOff = day
				logger.Info().Msg("EOD square-off complete")
			}
		}
	}
}

func parseClock(hhmm string) string {
	if hhmm == "" {
		return "00:00"
	}
	return hhmm
}

// parseOffsetLocation turns a "+05:30"-style fixed offset into a
// time.Location, falling back to UTC for anything it can't parse.
func parseOffsetLocation(offset string) *time.Location {
	sign := 1
	s := offset
	if strings.HasPrefix(s, "-") {
		sign = -1
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return time.UTC
	}
	hours, err1 := strconv.Atoi(parts[0])
	minutes, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return time.UTC
	}
	return time.FixedZone(offset, sign*(hours*3600+minutes*60))
}

type feedStatusAdapter struct {
	client *feed.Client
}

func (f feedStatusAdapter) Connected() bool { return f.client.Connected() }
