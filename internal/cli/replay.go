package cli

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"indexfeed-trader/internal/candle"
	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/executor"
	"indexfeed-trader/internal/feed"
	"indexfeed-trader/internal/mtf"
	"indexfeed-trader/internal/pipeline"
	"indexfeed-trader/internal/store"
	"indexfeed-trader/internal/strategy"
	"indexfeed-trader/pkg/utils"
)

// newReplayCmd drives the same pipeline newServeCmd wires, but from a file of
// captured frames instead of a live vendor socket, for backtesting: every
// frame is decoded and published to the bus in file order.
func newReplayCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <feed-dump>",
		Short: "Drive the pipeline from a captured frame dump for backtesting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(app, args[0])
		},
	}
}

// frameDump is a sequence of length-prefixed binary frames: a uint32
// big-endian length followed by that many bytes of frame payload, repeated
// to EOF. This matches how a capture of the vendor's binary frames is most
// naturally recorded, since the frames themselves carry no delimiter.
func readFrames(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feed dump: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var frames [][]byte
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("reading frame length: %w", err)
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("reading frame body: %w", err)
		}
		frames = append(frames, buf)
	}
	return frames, nil
}

func runReplay(app *App, dumpPath string) error {
	logger := app.Logger
	cfg := app.Config

	frames, err := readFrames(dumpPath)
	if err != nil {
		return err
	}
	logger.Info().Int("frames", len(frames)).Str("path", dumpPath).Msg("loaded feed dump")

	dataStore, err := store.NewSQLiteStore(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer dataStore.Close()

	if err := seedPortfolioIfAbsent(dataStore, cfg); err != nil {
		return fmt.Errorf("seeding portfolio: %w", err)
	}

	// Publish never blocks on the bus (it drops on a full per-subscriber
	// queue), so queue depth is sized well above the frame count rather than
	// left at the live-feed default: a replay run must not silently drop
	// events the way a slow UI subscriber is allowed to on the live path.
	bus := eventbus.New(len(frames)*4 + 64)
	defer bus.Close()

	intervals := parseIntervals(cfg.Candle.Intervals)
	aggregator := candle.New(intervals, bus, dataStore, parseOffsetLocation(cfg.Schedule.Timezone))
	defer aggregator.Close()

	enricher := pipeline.New(bus, aggregator, dataStore, logger)
	go enricher.Run()
	patternWatcher := pipeline.NewPatternWatcher(bus, dataStore, logger)
	go patternWatcher.Run()

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
	go engine.Run(bus.Subscribe(eventbus.TopicCandleClose))

	jitter := func() float64 { return (rand.Float64()*2 - 1) * 0.5 }
	exec := executor.New(dataStore, bus, portfolioUserID, jitter, int64(cfg.Risk.LotSize))
	go runExecutorLoop(context.Background(), bus, exec, dataStore)

	for i, buf := range frames {
		events, err := feed.DecodeFrame(buf)
		if err != nil {
			logger.Warn().Err(err).Int("frame", i).Msg("dropping malformed frame")
			continue
		}
		for _, e := range events {
			bus.Publish(e.Topic, e.Payload)
		}
	}

	// The downstream stages above run as goroutines draining the bus
	// concurrently with the publish loop; give them a moment to finish
	// processing the tail of the dump before reading the final portfolio.
	time.Sleep(200 * time.Millisecond)

	portfolio, err := dataStore.GetPortfolio(portfolioUserID)
	if err != nil {
		return err
	}
	logger.Info().
		Float64("availableCapital", portfolio.AvailableCapital).
		Float64("totalPnL", portfolio.TotalPnL).
		Int64("totalTrades", portfolio.TotalTrades).
		Msg("replay complete")

	fmt.Fprintf(os.Stdout, "available capital: %s\ntotal P&L: %s\ntotal trades: %s\n",
		utils.FormatIndianCurrency(portfolio.AvailableCapital),
		utils.FormatPnL(portfolio.TotalPnL),
		utils.FormatQuantity(portfolio.TotalTrades),
	)

	return nil
}
