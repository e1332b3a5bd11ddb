// Package postgres provides a Postgres-backed listing repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrMissingTable reports that the jobs relation has not been created; run the schema command.
var ErrMissingTable = errors.New("jobs table does not exist")

// columns lists the jobs relation in insert order; id is the conflict key.
var columns = []string{
	"id",
	`"creationDate"`,
	`"lastModificationDate"`,
	"title",
	"description",
	`"numberOfPosts"`,
	`"locationMap"`,
	`"euresFlag"`,
	`"jobCategoriesCodes"`,
	`"positionScheduleCodes"`,
	`"positionOfferingCode"`,
	"employer",
	`"availableLanguages"`,
	"score",
	"details",
}

// Config controls the Postgres connection pool used for listings.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type txPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// ListingStore upserts listings into Postgres, one transaction per batch.
type ListingStore struct {
	pool      txPool
	table     string
	upsertSQL string
}

// NewListingStore creates a Postgres-backed ListingStore using the provided config.
func NewListingStore(ctx context.Context, cfg Config) (*ListingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewListingStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewListingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewListingStoreWithPool(pool txPool, table string) (*ListingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "jobs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ListingStore{pool: pool, table: table, upsertSQL: upsertStatement(table)}, nil
}

func upsertStatement(table string) string {
	placeholders := make([]string, len(columns))
	updates := make([]string, 0, len(columns)-1)
	for i, col := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if i > 0 {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
}

// EnsureSchema creates the jobs relation when it does not exist.
func (s *ListingStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	"creationDate" TEXT,
	"lastModificationDate" TEXT,
	title TEXT,
	description TEXT,
	"numberOfPosts" INTEGER,
	"locationMap" TEXT,
	"euresFlag" TEXT,
	"jobCategoriesCodes" TEXT,
	"positionScheduleCodes" TEXT,
	"positionOfferingCode" TEXT,
	employer TEXT,
	"availableLanguages" TEXT,
	score DOUBLE PRECISION,
	details TEXT
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure %s schema: %w", s.table, err)
	}
	return nil
}

// Begin opens a transaction for one page of listings.
func (s *ListingStore) Begin(ctx context.Context) (crawler.ListingBatch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin listing batch: %w", err)
	}
	return &batch{tx: tx, upsertSQL: s.upsertSQL}, nil
}

// Ping verifies the database is reachable.
func (s *ListingStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *ListingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

type batch struct {
	tx        pgx.Tx
	upsertSQL string
}

func (b *batch) Upsert(ctx context.Context, listing crawler.JobListing) error {
	if listing.ID == "" {
		return fmt.Errorf("listing id is required")
	}
	if _, err := b.tx.Exec(ctx, b.upsertSQL, listingArgs(listing)...); err != nil {
		return fmt.Errorf("upsert listing %s: %w", listing.ID, classify(err))
	}
	return nil
}

func (b *batch) Commit(ctx context.Context) error {
	if err := b.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit listing batch: %w", err)
	}
	return nil
}

func (b *batch) Rollback(ctx context.Context) error {
	if err := b.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback listing batch: %w", err)
	}
	return nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return fmt.Errorf("%w: %w", ErrMissingTable, err)
	}
	return err
}

func listingArgs(l crawler.JobListing) []any {
	return []any{
		l.ID,
		l.CreationDate,
		l.LastModificationDate,
		l.Title,
		l.Description,
		l.NumberOfPosts,
		l.LocationMap,
		l.EuresFlag,
		l.JobCategoriesCodes,
		l.PositionScheduleCodes,
		l.PositionOfferingCode,
		l.Employer,
		l.AvailableLanguages,
		l.Score,
		l.Details,
	}
}
