// Package sqlite provides the default embedded listing repository.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

// DefaultPath is the database file used when none is configured.
const DefaultPath = "jobs_data.db"

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	creationDate TEXT,
	lastModificationDate TEXT,
	title TEXT,
	description TEXT,
	numberOfPosts INTEGER,
	locationMap TEXT,
	euresFlag TEXT,
	jobCategoriesCodes TEXT,
	positionScheduleCodes TEXT,
	positionOfferingCode TEXT,
	employer TEXT,
	availableLanguages TEXT,
	score REAL,
	details TEXT
)`

const upsertSQL = `
INSERT INTO jobs (
	id, creationDate, lastModificationDate, title, description,
	numberOfPosts, locationMap, euresFlag, jobCategoriesCodes,
	positionScheduleCodes, positionOfferingCode, employer,
	availableLanguages, score, details
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	creationDate = excluded.creationDate,
	lastModificationDate = excluded.lastModificationDate,
	title = excluded.title,
	description = excluded.description,
	numberOfPosts = excluded.numberOfPosts,
	locationMap = excluded.locationMap,
	euresFlag = excluded.euresFlag,
	jobCategoriesCodes = excluded.jobCategoriesCodes,
	positionScheduleCodes = excluded.positionScheduleCodes,
	positionOfferingCode = excluded.positionOfferingCode,
	employer = excluded.employer,
	availableLanguages = excluded.availableLanguages,
	score = excluded.score,
	details = excluded.details`

// ListingStore writes listings to a sqlite database file.
type ListingStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*ListingStore, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return &ListingStore{db: db}, nil
}

// EnsureSchema creates the jobs relation when it does not exist.
func (s *ListingStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure jobs schema: %w", err)
	}
	return nil
}

// Begin opens a transaction for one page of listings.
func (s *ListingStore) Begin(ctx context.Context) (crawler.ListingBatch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin listing batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare upsert: %w", err)
	}
	return &batch{tx: tx, stmt: stmt}, nil
}

// Get reads one listing back by id.
func (s *ListingStore) Get(ctx context.Context, id string) (crawler.JobListing, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, creationDate, lastModificationDate, title, description,
	numberOfPosts, locationMap, euresFlag, jobCategoriesCodes,
	positionScheduleCodes, positionOfferingCode, employer,
	availableLanguages, score, details
FROM jobs WHERE id = ?`, id)
	var l crawler.JobListing
	err := row.Scan(
		&l.ID, &l.CreationDate, &l.LastModificationDate, &l.Title, &l.Description,
		&l.NumberOfPosts, &l.LocationMap, &l.EuresFlag, &l.JobCategoriesCodes,
		&l.PositionScheduleCodes, &l.PositionOfferingCode, &l.Employer,
		&l.AvailableLanguages, &l.Score, &l.Details,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.JobListing{}, false, nil
	}
	if err != nil {
		return crawler.JobListing{}, false, fmt.Errorf("read listing %s: %w", id, err)
	}
	return l, true, nil
}

// Count returns the number of stored listings.
func (s *ListingStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

// Ping verifies the database file is usable.
func (s *ListingStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *ListingStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

type batch struct {
	tx   *sql.Tx
	stmt *sql.Stmt
}

func (b *batch) Upsert(ctx context.Context, l crawler.JobListing) error {
	if l.ID == "" {
		return fmt.Errorf("listing id is required")
	}
	_, err := b.stmt.ExecContext(ctx,
		l.ID, l.CreationDate, l.LastModificationDate, l.Title, l.Description,
		l.NumberOfPosts, l.LocationMap, l.EuresFlag, l.JobCategoriesCodes,
		l.PositionScheduleCodes, l.PositionOfferingCode, l.Employer,
		l.AvailableLanguages, l.Score, l.Details,
	)
	if err != nil {
		return fmt.Errorf("upsert listing %s: %w", l.ID, err)
	}
	return nil
}

func (b *batch) Commit(_ context.Context) error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("commit listing batch: %w", err)
	}
	return nil
}

func (b *batch) Rollback(_ context.Context) error {
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback listing batch: %w", err)
	}
	return nil
}
