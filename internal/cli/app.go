// Package cli provides the command-line interface for the trading engine:
// a single cobra root command with serve/replay/seed-instruments/version/
// config subcommands, following the reference repo's App-struct-plus-
// NewRootCmd composition.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"indexfeed-trader/internal/config"
	"indexfeed-trader/internal/feed"
)

const (
	Version   = "0.1.0"
	BuildDate = "2026-01-01"
)

// App holds dependencies shared across subcommands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command, wiring serve/replay/seed-instruments
// alongside the core version/config utility commands.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{Config: cfg, Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Paper-trading engine for an index options/futures market feed",
		Long: `trader runs a real-time paper-trading engine against a binary market-data
feed: it decodes ticks and depth, aggregates candles, confirms signals across
timeframes, runs a fixed strategy set, simulates fills against a virtual
portfolio, and broadcasts everything to WebSocket subscribers.

Use 'trader serve' to run the full pipeline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/indexfeed-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newReplayCmd(app))
	rootCmd.AddCommand(newSeedInstrumentsCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.Encode(map[string]string{"version": Version, "buildDate": BuildDate})
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trader %s (%s)\n", Version, BuildDate)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or validate configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the loaded configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Config.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(app.Config)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration directory in use",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.DefaultConfigDir())
		},
	})
	return cmd
}

// IsFatalFeedAuthError reports whether err (as returned by the root command's
// Execute) originated from a non-retryable feed disconnection, so main can
// select exit code 2 instead of the generic configuration-error code.
func IsFatalFeedAuthError(err error) bool {
	return err != nil && feed.IsAuthError(err)
}
