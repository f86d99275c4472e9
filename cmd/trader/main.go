// Command trader runs the paper-trading engine: a binary feed client,
// depth/candle enrichment, a fixed strategy set, a paper-fill executor, and
// a WebSocket hub, composed by internal/cli.
package main

import (
	"fmt"
	"os"

	"indexfeed-trader/internal/cli"
	"indexfeed-trader/internal/config"
	"indexfeed-trader/internal/logging"
)

// Exit codes: 0 clean shutdown, 1 configuration error, 2 fatal feed auth
// failure (surfaced through cli.NewRootCmd's command errors).
const (
	exitOK          = 0
	exitConfigError = 1
	exitFeedAuth    = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(config.DefaultConfigDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitConfigError
	}

	logger := logging.NewLoggerWithConfig(logging.LogConfig{
		Level:      cfg.Logging.Level,
		Console:    true,
		File:       cfg.Logging.File != "",
		FilePath:   cfg.Logging.File,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	})

	root := cli.NewRootCmd(cfg, logger)
	if err := root.Execute(); err != nil {
		if cli.IsFatalFeedAuthError(err) {
			logger.Error().Err(err).Msg("fatal feed authentication failure")
			return exitFeedAuth
		}
		logger.Error().Err(err).Msg("command failed")
		return exitConfigError
	}
	return exitOK
}
