package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	maxRetries     = 5
	initialBackoff = 10 * time.Millisecond
)

// Run is one batch evaluation.
type Run struct {
	RunID       string
	CreatedAt   int64
	Clips       int
	Failures    int
	FalseAlarms int
	Misses      int
	Confusions  int
	Total       int
	// IER is NULL when the run had no reference speech.
	IER        sql.NullFloat64
	ConfigYAML string
}

// ClipRecord is the outcome of one clip within a run. Failed clips carry
// Error and zero counts.
type ClipRecord struct {
	ResultID       string
	RunID          string
	ClipNumber     int
	ClipName       string
	HypothesisPath string
	ReferencePath  string
	StartTimeS     float64
	WindowLengthS  float64
	FalseAlarms    int
	Misses         int
	Confusions     int
	Correct        int
	Total          int
	Skipped        int
	IER            sql.NullFloat64
	Error          string
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and brings its schema
// up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	// m is not closed, that would close the shared connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	logrus.Debugf("[migrate] "+strings.TrimSuffix(format, "\n"), v...)
}

func (migrateLogger) Verbose() bool {
	return false
}

// SaveRun writes a run and its clip records in one transaction. Empty ids are
// filled with fresh UUIDs.
func (s *Store) SaveRun(run *Run, clips []*ClipRecord) error {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}
	for _, c := range clips {
		if c.ResultID == "" {
			c.ResultID = uuid.NewString()
		}
		c.RunID = run.RunID
	}

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		_, err = tx.Exec(`
			INSERT INTO runs (
				run_id, created_at, clips, failures, false_alarms, misses,
				confusions, total, ier, config_yaml
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.CreatedAt, run.Clips, run.Failures, run.FalseAlarms, run.Misses,
			run.Confusions, run.Total, run.IER, run.ConfigYAML,
		)
		if err != nil {
			return err
		}
		for _, c := range clips {
			_, err = tx.Exec(`
				INSERT INTO clip_results (
					result_id, run_id, clip_number, clip_name, hypothesis_path, reference_path,
					start_time_s, window_length_s, false_alarms, misses, confusions, correct,
					total, skipped, ier, error
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.ResultID, c.RunID, c.ClipNumber, c.ClipName, c.HypothesisPath, c.ReferencePath,
				c.StartTimeS, c.WindowLengthS, c.FalseAlarms, c.Misses, c.Confusions, c.Correct,
				c.Total, c.Skipped, c.IER, nullString(c.Error),
			)
			if err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// Runs lists every run, newest first.
func (s *Store) Runs() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, created_at, clips, failures, false_alarms, misses,
			confusions, total, ier, COALESCE(config_yaml, '')
		FROM runs
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		if err := rows.Scan(&r.RunID, &r.CreatedAt, &r.Clips, &r.Failures, &r.FalseAlarms,
			&r.Misses, &r.Confusions, &r.Total, &r.IER, &r.ConfigYAML); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListByRun returns the clip records of a run ordered by clip number.
func (s *Store) ListByRun(runID string) ([]*ClipRecord, error) {
	rows, err := s.db.Query(`
		SELECT result_id, run_id, clip_number, clip_name, hypothesis_path, reference_path,
			start_time_s, window_length_s, false_alarms, misses, confusions, correct,
			total, skipped, ier, COALESCE(error, '')
		FROM clip_results
		WHERE run_id = ?
		ORDER BY clip_number`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ClipRecord
	for rows.Next() {
		c := &ClipRecord{}
		if err := rows.Scan(&c.ResultID, &c.RunID, &c.ClipNumber, &c.ClipName, &c.HypothesisPath,
			&c.ReferencePath, &c.StartTimeS, &c.WindowLengthS, &c.FalseAlarms, &c.Misses,
			&c.Confusions, &c.Correct, &c.Total, &c.Skipped, &c.IER, &c.Error); err != nil {
			return nil, err
		}
		records = append(records, c)
	}
	return records, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(fn func() error) error {
	backoff := initialBackoff
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err = fn(); !isSQLiteBusy(err) {
			return err
		}
		if attempt < maxRetries-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return fmt.Errorf("database still busy after %d attempts: %w", maxRetries, err)
}
