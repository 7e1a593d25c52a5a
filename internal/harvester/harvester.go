// Path: internal/harvester/harvester.go
package harvester

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"arxiv-harvester/internal/config"
	"arxiv-harvester/internal/oai"
)

const (
	// Dublin Core is the only metadata format this harvester ingests.
	metadataPrefix = "oai_dc"

	dateLayout = "2006-01-02"

	// Conservative superset of arXiv's OAI history, used when the caller
	// gives no explicit backfill range.
	defaultBackfillStart = "2007-01-01"
	defaultBackfillEnd   = "2026-01-01"
)

// UnitStatus classifies the outcome of one (set, date-range) unit of work.
type UnitStatus int

const (
	// UnitHarvested means records were fetched and persisted.
	UnitHarvested UnitStatus = iota
	// UnitEmpty means the query legitimately matched nothing.
	UnitEmpty
	// UnitFailed means the fetch or the persist failed; nothing can be
	// said about the remote state for this unit.
	UnitFailed
)

// UnitResult is the three-way outcome of one harvest unit.
type UnitResult struct {
	Status UnitStatus
	Count  int
	Err    error
}

// Summary accumulates the user-visible counters for one strategy run.
type Summary struct {
	Records        int
	SucceededSets  int
	FailedSets     int
	SucceededDates int
	FailedDates    int
	Elapsed        time.Duration
}

// Harvester drives the OAI-PMH client across set specs and a temporal
// strategy, persisting results through the record store. Execution is
// single-threaded and blocking: the remote enforces a de-facto single-client
// rate limit, so concurrency would only be re-serialized at the limiter.
type Harvester struct {
	fetcher       RecordFetcher
	store         RecordStore
	limiter       *oai.Limiter
	chunkSize     int
	chunkCooldown time.Duration
	logger        *slog.Logger

	// now is replaceable so tests can pin the recent-window arithmetic.
	now func() time.Time
}

// New creates a harvester over the given fetcher and store. The limiter must
// be the same instance the fetcher paces itself with, so inter-unit pauses
// and per-request waits share one timeline.
func New(fetcher RecordFetcher, store RecordStore, limiter *oai.Limiter, cfg config.BackfillConfig, logger *slog.Logger) *Harvester {
	return &Harvester{
		fetcher:       fetcher,
		store:         store,
		limiter:       limiter,
		chunkSize:     cfg.ChunkSize,
		chunkCooldown: cfg.ChunkCooldownDuration(),
		logger:        logger,
		now:           time.Now,
	}
}

// HarvestRecent harvests the sliding one-day window [now-48h, now-24h] for
// each set spec in order. The window trails a full day behind "today" so a
// still-mutating day is never harvested. A single set's failure never aborts
// the run; it is logged, counted, and the loop continues.
func (h *Harvester) HarvestRecent(ctx context.Context, setSpecs []string) (Summary, error) {
	started := h.now()
	fromDate := started.Add(-48 * time.Hour).Format(dateLayout)
	untilDate := started.Add(-24 * time.Hour).Format(dateLayout)

	logger := h.logger.With(slog.String("run_id", uuid.NewString()))
	logger.Info("Recent harvest starting",
		slog.String("from", fromDate),
		slog.String("until", untilDate),
		slog.Int("sets", len(setSpecs)),
	)

	var summary Summary
	if err := h.store.EnsureReady(ctx); err != nil {
		return summary, err
	}

	for i, setSpec := range setSpecs {
		logger.Info("Processing set spec",
			slog.Int("index", i+1),
			slog.Int("total", len(setSpecs)),
			slog.String("set_spec", setSpec),
		)

		res := h.harvestUnit(ctx, setSpec, fromDate, untilDate)
		switch res.Status {
		case UnitHarvested:
			summary.Records += res.Count
			summary.SucceededSets++
			logger.Info("Set spec processed", slog.String("set_spec", setSpec), slog.Int("records", res.Count))
		case UnitEmpty:
			summary.SucceededSets++
			logger.Info("No records found", slog.String("set_spec", setSpec))
		case UnitFailed:
			summary.FailedSets++
			logger.Error("Set spec failed", slog.String("set_spec", setSpec), slog.String("error", res.Err.Error()))
		}

		if i < len(setSpecs)-1 {
			if err := h.limiter.Pause(ctx); err != nil {
				summary.Elapsed = h.now().Sub(started)
				return summary, err
			}
		}
	}

	summary.Elapsed = h.now().Sub(started)
	logger.Info("Recent harvest completed",
		slog.Int("succeeded_sets", summary.SucceededSets),
		slog.Int("failed_sets", summary.FailedSets),
		slog.Int("records", summary.Records),
	)
	return summary, nil
}

// HarvestBackfill fills date gaps in the already-harvested history. For each
// set spec it asks the store which calendar days in [startDate, endDate] have
// no rows, then harvests each missing day as a single-day window, in
// ascending order, chunked with a fixed cooldown between chunks. Backfill is
// best-effort: per-date failures are logged and counted, never fatal.
func (h *Harvester) HarvestBackfill(ctx context.Context, startDate, endDate string, setSpecs []string) (Summary, error) {
	started := h.now()
	if startDate == "" {
		startDate = defaultBackfillStart
	}
	if endDate == "" {
		endDate = defaultBackfillEnd
	}

	logger := h.logger.With(slog.String("run_id", uuid.NewString()))
	logger.Info("Backfill starting",
		slog.String("start", startDate),
		slog.String("end", endDate),
		slog.Int("sets", len(setSpecs)),
	)

	var summary Summary
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return summary, err
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return summary, err
	}
	if err := h.store.EnsureReady(ctx); err != nil {
		return summary, err
	}

	for _, setSpec := range setSpecs {
		missing, err := h.store.FindMissingDates(ctx, setSpec, start, end)
		if err != nil {
			summary.FailedSets++
			logger.Error("Missing-dates query failed", slog.String("set_spec", setSpec), slog.String("error", err.Error()))
			continue
		}
		if len(missing) == 0 {
			summary.SucceededSets++
			logger.Info("No missing dates", slog.String("set_spec", setSpec))
			continue
		}

		logger.Info("Backfilling set spec",
			slog.String("set_spec", setSpec),
			slog.Int("missing_dates", len(missing)),
		)

		for i := 0; i < len(missing); i += h.chunkSize {
			endIdx := min(i+h.chunkSize, len(missing))

			for _, date := range missing[i:endIdx] {
				day := date.Format(dateLayout)
				res := h.harvestUnit(ctx, setSpec, day, day)
				switch res.Status {
				case UnitHarvested:
					summary.Records += res.Count
					summary.SucceededDates++
					logger.Info("Backfilled date",
						slog.String("set_spec", setSpec),
						slog.String("date", day),
						slog.Int("records", res.Count),
					)
				case UnitEmpty:
					summary.SucceededDates++
				case UnitFailed:
					summary.FailedDates++
					logger.Error("Backfill date failed",
						slog.String("set_spec", setSpec),
						slog.String("date", day),
						slog.String("error", res.Err.Error()),
					)
				}

				if err := h.limiter.Wait(ctx); err != nil {
					summary.Elapsed = h.now().Sub(started)
					return summary, err
				}
			}

			// Coarser throttle across long backfills, on top of the
			// per-request cadence.
			if endIdx < len(missing) {
				logger.Debug("Cooling down between chunks", slog.Duration("cooldown", h.chunkCooldown))
				if err := h.limiter.PauseFor(ctx, h.chunkCooldown); err != nil {
					summary.Elapsed = h.now().Sub(started)
					return summary, err
				}
			}
		}
		summary.SucceededSets++
	}

	summary.Elapsed = h.now().Sub(started)
	logger.Info("Backfill completed",
		slog.Int("succeeded_dates", summary.SucceededDates),
		slog.Int("failed_dates", summary.FailedDates),
		slog.Int("records", summary.Records),
	)
	return summary, nil
}

// harvestUnit fetches and persists one (set, date-range) unit of work.
func (h *Harvester) harvestUnit(ctx context.Context, setSpec, fromDate, untilDate string) UnitResult {
	records, err := h.fetcher.ListRecords(ctx, metadataPrefix, setSpec, fromDate, untilDate)
	if err != nil {
		return UnitResult{Status: UnitFailed, Err: err}
	}
	if len(records) == 0 {
		return UnitResult{Status: UnitEmpty}
	}

	count, err := h.store.UpsertRecords(ctx, records, setSpec)
	if err != nil {
		return UnitResult{Status: UnitFailed, Err: err}
	}
	return UnitResult{Status: UnitHarvested, Count: count}
}
