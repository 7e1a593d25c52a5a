// Path: internal/storage/postgres.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"arxiv-harvester/internal/config"
	"arxiv-harvester/internal/domain"
)

const dateLayout = "2006-01-02"

// DBTX is the query surface the gateway needs. It is satisfied by
// *pgxpool.Pool and pgx.Tx, and by fakes in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect creates a pgx connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.PostgresConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("database", cfg.DB),
	)
	return pool, nil
}

// Postgres persists harvested records into a schema-qualified table keyed by
// the record identifier. Schema and table names come from configuration and
// are identifier-quoted; every data value is bound as a statement parameter.
type Postgres struct {
	db        DBTX
	schema    string
	table     string
	batchSize int // progress-log cadence during bulk upserts
	logger    *slog.Logger
}

// NewPostgres creates the storage gateway over db.
func NewPostgres(db DBTX, cfg config.PostgresConfig, batchSize int, logger *slog.Logger) *Postgres {
	return &Postgres{
		db:        db,
		schema:    cfg.Schema,
		table:     cfg.Table,
		batchSize: batchSize,
		logger:    logger,
	}
}

// qualifiedTable returns the quoted schema.table reference.
func (p *Postgres) qualifiedTable() string {
	return pgx.Identifier{p.schema, p.table}.Sanitize()
}

// EnsureReady idempotently provisions the schema, the metadata table, and
// its indexes. Safe to run on every start.
func (p *Postgres) EnsureReady(ctx context.Context) error {
	schema := pgx.Identifier{p.schema}.Sanitize()
	if _, err := p.db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	table := p.qualifiedTable()
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id SERIAL PRIMARY KEY,
		header_datestamp DATE,
		header_identifier VARCHAR(255) UNIQUE NOT NULL,
		header_setspecs JSONB,
		metadata_creator JSONB,
		metadata_date JSONB,
		metadata_description TEXT,
		metadata_identifier JSONB,
		metadata_subject JSONB,
		metadata_title JSONB,
		metadata_type VARCHAR(100),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, table)
	if _, err := p.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// The datestamp and setspecs indexes are load-bearing: backfill gap
	// detection filters on both.
	indexes := []string{
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s_header_identifier_idx ON %s (header_identifier)", p.table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_header_datestamp_idx ON %s (header_datestamp)", p.table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_header_setspecs_idx ON %s USING GIN (header_setspecs)", p.table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_header_datestamp_setspecs_idx ON %s (header_datestamp, header_setspecs)", p.table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_metadata_subject_idx ON %s USING GIN (metadata_subject)", p.table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_created_at_idx ON %s (created_at)", p.table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_updated_at_idx ON %s (updated_at)", p.table, table),
	}
	for _, idx := range indexes {
		if _, err := p.db.Exec(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	p.logger.Info("Storage ready",
		slog.String("schema", p.schema),
		slog.String("table", p.table),
	)
	return nil
}

// UpsertRecords writes each record with INSERT ... ON CONFLICT keyed by the
// identifier. Re-upserting an identifier overwrites the mutable fields and
// bumps updated_at; created_at stays at first insert. Invalid records and
// per-record errors are skipped so one bad record never sinks a batch.
// Returns the number of records actually written.
func (p *Postgres) UpsertRecords(ctx context.Context, records []domain.Record, setSpec string) (int, error) {
	upsert := fmt.Sprintf(`INSERT INTO %s (
		header_datestamp, header_identifier, header_setspecs,
		metadata_creator, metadata_date, metadata_description,
		metadata_identifier, metadata_subject, metadata_title, metadata_type
	) VALUES (
		$1::date, $2, $3::jsonb, $4::jsonb, $5::jsonb, $6, $7::jsonb, $8::jsonb, $9::jsonb, $10
	)
	ON CONFLICT (header_identifier)
	DO UPDATE SET
		header_datestamp = EXCLUDED.header_datestamp,
		header_setspecs = EXCLUDED.header_setspecs,
		metadata_creator = EXCLUDED.metadata_creator,
		metadata_date = EXCLUDED.metadata_date,
		metadata_description = EXCLUDED.metadata_description,
		metadata_identifier = EXCLUDED.metadata_identifier,
		metadata_subject = EXCLUDED.metadata_subject,
		metadata_title = EXCLUDED.metadata_title,
		metadata_type = EXCLUDED.metadata_type,
		updated_at = CURRENT_TIMESTAMP`, p.qualifiedTable())

	processed := 0
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if !record.Valid() {
			continue
		}

		_, err := p.db.Exec(ctx, upsert,
			nullIfEmpty(record.Datestamp),
			record.Identifier,
			jsonArray(record.SetSpecs),
			jsonArray(record.Creators),
			jsonArray(record.Dates),
			record.Description,
			jsonArray(record.Identifiers),
			jsonArray(record.Subjects),
			jsonArray(record.Titles),
			record.Type,
		)
		if err != nil {
			p.logger.Error("Failed to upsert record",
				slog.String("identifier", record.Identifier),
				slog.String("error", err.Error()),
			)
			continue
		}

		processed++
		if p.batchSize > 0 && processed%p.batchSize == 0 {
			p.logger.Info("Upsert progress",
				slog.String("set_spec", setSpec),
				slog.Int("processed", processed),
			)
		}
	}

	p.logger.Info("Upserted records",
		slog.String("set_spec", setSpec),
		slog.Int("count", processed),
	)
	return processed, nil
}

// FindMissingDates returns every calendar date in [start, end], ascending,
// with no row whose datestamp is that day and whose set memberships include
// setSpec. Served by the datestamp btree and setspecs GIN indexes.
func (p *Postgres) FindMissingDates(ctx context.Context, setSpec string, start, end time.Time) ([]time.Time, error) {
	query := fmt.Sprintf(`SELECT gs.day::date
		FROM generate_series($1::date, $2::date, interval '1 day') AS gs(day)
		WHERE NOT EXISTS (
			SELECT 1 FROM %s t
			WHERE t.header_datestamp = gs.day::date
			  AND t.header_setspecs ? $3
		)
		ORDER BY gs.day`, p.qualifiedTable())

	rows, err := p.db.Query(ctx, query,
		start.Format(dateLayout),
		end.Format(dateLayout),
		setSpec,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query missing dates: %w", err)
	}
	defer rows.Close()

	var missing []time.Time
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan missing date: %w", err)
		}
		missing = append(missing, day)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return missing, nil
}

// jsonArray renders a string slice as a JSON array literal for a JSONB
// column, preserving order and duplicates as received from the wire.
func jsonArray(vals []string) string {
	if vals == nil {
		vals = []string{}
	}
	b, _ := json.Marshal(vals)
	return string(b)
}

// nullIfEmpty maps an absent datestamp to SQL NULL rather than an
// unparseable empty date literal.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
