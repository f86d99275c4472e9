package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"indexfeed-trader/internal/models"
	"indexfeed-trader/internal/store"
)

// newSeedInstrumentsCmd loads a CSV instrument master and upserts every row
// into the store, following the reference CLI's encoding/csv idiom for
// file-backed bulk commands (its export/backtest commands read and write
// CSV the same way).
//
// Expected columns: security_id,symbol,segment,lot_size,tick_size
func newSeedInstrumentsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-instruments <file>",
		Short: "Insert instrument subscription configs from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeedInstruments(app, args[0])
		},
	}
}

func runSeedInstruments(app *App, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening instrument file: %w", err)
	}
	defer f.Close()

	instruments, err := parseInstrumentCSV(f)
	if err != nil {
		return err
	}

	dataStore, err := store.NewSQLiteStore(app.Config.Store.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer dataStore.Close()

	for _, inst := range instruments {
		if err := dataStore.SaveInstrument(inst); err != nil {
			return fmt.Errorf("saving instrument %s: %w", inst.SecurityID, err)
		}
	}

	app.Logger.Info().Int("count", len(instruments)).Str("path", path).Msg("seeded instruments")
	return nil
}

func parseInstrumentCSV(r io.Reader) ([]models.Instrument, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[h] = i
	}
	for _, required := range []string{"security_id", "symbol", "segment", "lot_size", "tick_size"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var out []models.Instrument
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		lotSize, err := strconv.Atoi(row[cols["lot_size"]])
		if err != nil {
			return nil, fmt.Errorf("parsing lot_size for %s: %w", row[cols["security_id"]], err)
		}
		tickSize, err := strconv.ParseFloat(row[cols["tick_size"]], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing tick_size for %s: %w", row[cols["security_id"]], err)
		}

		out = append(out, models.Instrument{
			SecurityID: row[cols["security_id"]],
			Symbol:     row[cols["symbol"]],
			Segment:    models.Segment(row[cols["segment"]]),
			LotSize:    lotSize,
			TickSize:   tickSize,
		})
	}
	return out, nil
}
