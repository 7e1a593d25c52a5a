// Path: internal/harvester/storage.go
package harvester

import (
	"context"
	"time"

	"arxiv-harvester/internal/domain"
)

// RecordFetcher defines the interface for a component that can fetch records
// from the remote repository. This allows for mocking in tests.
type RecordFetcher interface {
	// ListRecords executes one protocol query. Empty setSpec/fromDate/
	// untilDate omit the corresponding parameter. A nil slice with a nil
	// error means the query matched nothing.
	ListRecords(ctx context.Context, metadataPrefix, setSpec, fromDate, untilDate string) ([]domain.Record, error)
}

// RecordStore defines the interface for persisting harvested records.
type RecordStore interface {
	// EnsureReady idempotently provisions the schema, table and indexes.
	// Safe to call on every run.
	EnsureReady(ctx context.Context) error

	// UpsertRecords inserts or overwrites each record keyed by its
	// identifier and returns the number actually written. Invalid or
	// individually failing records are skipped, not fatal.
	UpsertRecords(ctx context.Context, records []domain.Record, setSpec string) (int, error)

	// FindMissingDates returns, ascending, every calendar date in
	// [start, end] with no persisted row for the given set.
	FindMissingDates(ctx context.Context, setSpec string, start, end time.Time) ([]time.Time, error)
}
