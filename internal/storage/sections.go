package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rs/zerolog"
)

// SectionFileName is the private scheduler store file inside --datadir.
const SectionFileName = "marketcollector.sqlite3"

const (
	createSectionsSQL = `CREATE TABLE IF NOT EXISTS sections (
        sectionid TEXT PRIMARY KEY,
        next_processing_timestamp INT
    );`

	getNextRunSQL    = `SELECT next_processing_timestamp FROM sections WHERE sectionid = ?;`
	insertSectionSQL = `INSERT INTO sections (sectionid, next_processing_timestamp) VALUES (?, ?);`
	setNextRunSQL    = `INSERT INTO sections (sectionid, next_processing_timestamp) VALUES (?, ?)
        ON CONFLICT(sectionid) DO UPDATE SET next_processing_timestamp = excluded.next_processing_timestamp;`
)

// SectionStore persists per-section next-run timestamps, private to the
// collector.
type SectionStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenSections opens (creating if absent) the private scheduler store.
func OpenSections(path string, logger zerolog.Logger) (*SectionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open section store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragma: %w", err)
	}

	return &SectionStore{
		db:     db,
		logger: logger.With().Str("component", "section_store").Logger(),
	}, nil
}

// Close releases the underlying database handle.
func (s *SectionStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the sections table when absent.
func (s *SectionStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSectionsSQL); err != nil {
		return fmt.Errorf("create sections table: %w", err)
	}
	return nil
}

// NextRun returns the next processing timestamp for a section. On first
// lookup a record is inserted with next_run = now so the section runs
// immediately.
func (s *SectionStore) NextRun(ctx context.Context, sectionID string, now int64) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx, getNextRunSQL, sectionID).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.ExecContext(ctx, insertSectionSQL, sectionID, now); err != nil {
			return 0, fmt.Errorf("insert section record: %w", err)
		}
		s.logger.Debug().Str("section", sectionID).Msg("section record created")
		return now, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get next run: %w", err)
	}
	return next, nil
}

// SetNextRun rewrites the next processing timestamp after a section run.
func (s *SectionStore) SetNextRun(ctx context.Context, sectionID string, next int64) error {
	if _, err := s.db.ExecContext(ctx, setNextRunSQL, sectionID, next); err != nil {
		return fmt.Errorf("set next run: %w", err)
	}
	return nil
}
