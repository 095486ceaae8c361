// Package report persists campaign results (bugs, round history, summary)
// to a local sqlite database for the out-of-scope reporting layer.
package report

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed result sink.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS campaigns (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	rounds      INTEGER NOT NULL DEFAULT 0,
	bugs        INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS bugs (
	id          TEXT PRIMARY KEY,
	campaign_id TEXT NOT NULL,
	alarm_id    TEXT NOT NULL,
	file        TEXT,
	line        INTEGER,
	round       INTEGER NOT NULL,
	found_at    INTEGER NOT NULL,
	input       BLOB
);
CREATE TABLE IF NOT EXISTS rounds (
	campaign_id TEXT NOT NULL,
	round       INTEGER NOT NULL,
	elapsed_ms  INTEGER NOT NULL,
	targets     INTEGER NOT NULL,
	bugs        INTEGER NOT NULL,
	PRIMARY KEY (campaign_id, round)
);
`

// Open creates or opens the report database at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		log.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: init schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// BeginCampaign records the campaign start.
func (s *Store) BeginCampaign(id string, startedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO campaigns(id, started_at) VALUES(?, ?)`,
		id, startedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("report: begin campaign %s: %w", id, err)
	}
	return nil
}

// SaveBug records one confirmed bug.
func (s *Store) SaveBug(campaignID, bugID, alarmID, file string, line, round int, foundAt time.Time, input []byte) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO bugs(id, campaign_id, alarm_id, file, line, round, found_at, input)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		bugID, campaignID, alarmID, file, line, round, foundAt.UnixMilli(), input)
	if err != nil {
		return fmt.Errorf("report: save bug %s: %w", bugID, err)
	}
	return nil
}

// SaveRound records one round-history snapshot.
func (s *Store) SaveRound(campaignID string, round int, elapsed time.Duration, targets, bugs int) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO rounds(campaign_id, round, elapsed_ms, targets, bugs)
		 VALUES(?, ?, ?, ?, ?)`,
		campaignID, round, elapsed.Milliseconds(), targets, bugs)
	if err != nil {
		return fmt.Errorf("report: save round %d: %w", round, err)
	}
	return nil
}

// FinishCampaign records the final round/bug totals.
func (s *Store) FinishCampaign(id string, finishedAt time.Time, rounds, bugs int) error {
	_, err := s.db.Exec(
		`UPDATE campaigns SET finished_at=?, rounds=?, bugs=? WHERE id=?`,
		finishedAt.UnixMilli(), rounds, bugs, id)
	if err != nil {
		return fmt.Errorf("report: finish campaign %s: %w", id, err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
