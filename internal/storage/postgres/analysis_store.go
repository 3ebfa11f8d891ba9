// Package postgres provides the Postgres-backed analysis record store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/competition-radar/internal/analysis"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// invalidTextRepresentation is raised when an id is not a valid uuid.
const invalidTextRepresentation = "22P02"

// Config controls the Postgres connection pool used for analysis rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	QueryRow(context.Context, string, ...any) pgx.Row
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// AnalysisStore reads and writes analysis records.
type AnalysisStore struct {
	pool  pool
	table string
}

const selectColumns = `id::text, owner_id::text, url, status, created_at, completed_at,
	summary, direction, compliance, new_launches, flagship_product,
	unique_findings, sentiment_summary, error_message`

// NewAnalysisStore creates a Postgres-backed AnalysisStore using the provided config.
func NewAnalysisStore(ctx context.Context, cfg Config) (*AnalysisStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &AnalysisStore{pool: p, table: table}, nil
}

// NewAnalysisStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewAnalysisStoreWithPool(p pool, table string) (*AnalysisStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &AnalysisStore{pool: p, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "analyses"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *AnalysisStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *AnalysisStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Create inserts a record and returns it with the database-assigned id.
func (s *AnalysisStore) Create(ctx context.Context, rec analysis.NewRecord) (analysis.Record, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (owner_id, url, status, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id::text, created_at`, s.table)

	out := analysis.Record{
		OwnerID: rec.OwnerID,
		URL:     rec.URL,
		Status:  rec.Status,
	}
	if err := s.pool.QueryRow(ctx, query, rec.OwnerID, rec.URL, string(rec.Status), rec.CreatedAt).
		Scan(&out.ID, &out.CreatedAt); err != nil {
		return analysis.Record{}, fmt.Errorf("insert analysis: %w", err)
	}
	return out, nil
}

// Update applies upd to a non-terminal record. Terminal records are left
// untouched and yield analysis.ErrTerminal.
func (s *AnalysisStore) Update(ctx context.Context, id string, upd analysis.Update) (analysis.Record, error) {
	sets := []string{"status = $2", "completed_at = $3", "error_message = $4"}
	args := []any{id, string(upd.Status), upd.CompletedAt, nullable(upd.ErrorMessage)}
	if upd.Sections != nil {
		for _, col := range []struct {
			name  string
			value string
		}{
			{"summary", upd.Sections.Summary},
			{"direction", upd.Sections.Direction},
			{"compliance", upd.Sections.Compliance},
			{"new_launches", upd.Sections.NewLaunches},
			{"flagship_product", upd.Sections.FlagshipProduct},
			{"unique_findings", upd.Sections.UniqueFindings},
			{"sentiment_summary", upd.Sections.SentimentSummary},
		} {
			args = append(args, nullable(col.value))
			sets = append(sets, fmt.Sprintf("%s = $%d", col.name, len(args)))
		}
	}
	query := fmt.Sprintf(`
UPDATE %s SET %s
WHERE id = $1 AND status IN ('pending', 'processing')
RETURNING %s`, s.table, strings.Join(sets, ", "), selectColumns)

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return analysis.Record{}, fmt.Errorf("update analysis %s: %w", id, mapError(err))
	}
	// No row matched: either the id is unknown or the record is terminal.
	if _, getErr := s.Get(ctx, id); getErr != nil {
		return analysis.Record{}, getErr
	}
	return analysis.Record{}, fmt.Errorf("update analysis %s: %w", id, analysis.ErrTerminal)
}

// Get returns one record.
func (s *AnalysisStore) Get(ctx context.Context, id string) (analysis.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, s.table)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return analysis.Record{}, fmt.Errorf("get analysis %s: %w", id, mapError(err))
	}
	return rec, nil
}

// ListByOwner returns an owner's records, newest first.
func (s *AnalysisStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]analysis.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, selectColumns, s.table)

	rows, err := s.pool.Query(ctx, query, ownerID, limit, offset)
	if invalidInput(err) {
		// owner_id is a uuid column; a malformed owner owns nothing.
		return []analysis.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", mapError(err))
	}
	defer rows.Close()

	records := make([]analysis.Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (analysis.Record, error) {
	var (
		rec    analysis.Record
		status string
		fields [8]*string
	)
	err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.URL,
		&status,
		&rec.CreatedAt,
		&rec.CompletedAt,
		&fields[0],
		&fields[1],
		&fields[2],
		&fields[3],
		&fields[4],
		&fields[5],
		&fields[6],
		&fields[7],
	)
	if err != nil {
		return analysis.Record{}, err
	}
	rec.Status = analysis.Status(status)
	rec.Sections = analysis.Sections{
		Summary:          deref(fields[0]),
		Direction:        deref(fields[1]),
		Compliance:       deref(fields[2]),
		NewLaunches:      deref(fields[3]),
		FlagshipProduct:  deref(fields[4]),
		UniqueFindings:   deref(fields[5]),
		SentimentSummary: deref(fields[6]),
	}
	rec.ErrorMessage = deref(fields[7])
	return rec, nil
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return analysis.ErrNotFound
	}
	if invalidInput(err) {
		return analysis.ErrNotFound
	}
	return err
}

func invalidInput(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
