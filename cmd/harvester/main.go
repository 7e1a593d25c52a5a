// Path: cmd/harvester/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"arxiv-harvester/internal/config"
	"arxiv-harvester/internal/harvester"
	"arxiv-harvester/internal/oai"
	"arxiv-harvester/internal/storage"
)

// Default discipline codes harvested when --set-specs is not given.
var defaultSetSpecs = []string{"physics", "math", "cs", "q-bio", "q-fin", "stat", "eess", "econ"}

// Flag values.
var (
	flagMode      string
	flagStartDate string
	flagEndDate   string
	flagSetSpecs  []string
)

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Harvests arXiv paper metadata over OAI-PMH into PostgreSQL",
	Long: `harvester pulls bibliographic metadata records from the arXiv OAI-PMH
endpoint and upserts them into a PostgreSQL table keyed by record identifier.

Two strategies are available: "recent" harvests the sliding one-day window
[now-48h, now-24h] for each set spec; "backfill" discovers calendar dates with
no persisted records in a historical range and fills them day by day. "both"
runs recent first, then backfill. Partial set or date failures are logged and
counted but never abort a run.`,
	RunE:          runHarvest,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().StringVarP(&flagMode, "mode", "m", "recent", "harvest mode: recent, backfill, or both")
	rootCmd.Flags().StringVar(&flagStartDate, "start-date", "", "start date for backfill (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&flagEndDate, "end-date", "", "end date for backfill (YYYY-MM-DD)")
	rootCmd.Flags().StringSliceVar(&flagSetSpecs, "set-specs", defaultSetSpecs, "set specifications to process")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runHarvest(cmd *cobra.Command, args []string) error {
	if flagMode != "recent" && flagMode != "backfill" && flagMode != "both" {
		return fmt.Errorf("invalid --mode %q: must be recent, backfill, or both", flagMode)
	}
	for _, d := range []string{flagStartDate, flagEndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", d)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := config.SetupLogger(cfg)

	logger.Info("arXiv harvester starting", slog.String("mode", flagMode))

	// Shutdown signals cancel the run context; every wait and round-trip
	// below is interruptible through it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()

	pool, err := storage.Connect(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := storage.NewPostgres(pool, cfg.Postgres, cfg.ArXiv.BatchSize, logger)
	client := oai.NewClient(cfg.ArXiv, logger)
	h := harvester.New(client, store, client.Limiter(), cfg.Backfill, logger)

	totalRecords := 0

	if flagMode == "recent" || flagMode == "both" {
		logger.Info("Starting recent harvest")
		summary, err := h.HarvestRecent(ctx, flagSetSpecs)
		if err != nil {
			return fmt.Errorf("recent harvest: %w", err)
		}
		totalRecords += summary.Records
	}

	if flagMode == "backfill" || flagMode == "both" {
		logger.Info("Starting backfill")
		summary, err := h.HarvestBackfill(ctx, flagStartDate, flagEndDate, flagSetSpecs)
		if err != nil {
			return fmt.Errorf("backfill: %w", err)
		}
		totalRecords += summary.Records
	}

	elapsed := time.Since(startTime)
	logger.Info("Harvest completed",
		slog.Int("total_records", totalRecords),
		slog.Duration("elapsed", elapsed.Round(time.Second)),
	)
	if secs := elapsed.Seconds(); secs > 0 {
		logger.Info("Throughput",
			slog.Float64("records_per_minute", float64(totalRecords)*60.0/secs),
		)
	}
	return nil
}
