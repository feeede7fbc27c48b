// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package store persists the outcome of preprocessing runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	eeg_dir      TEXT NOT NULL,
	beh_dir      TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	finished_at  TEXT
);

CREATE TABLE IF NOT EXISTS outcomes (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	participant_id TEXT NOT NULL,
	sex            TEXT,
	age            TEXT,
	status         TEXT NOT NULL,
	reason         TEXT,
	annotations    INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS epoch_counts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	outcome_id INTEGER NOT NULL,
	prefix     TEXT NOT NULL,
	epochs     INTEGER NOT NULL,
	dropped    INTEGER NOT NULL,
	samples    INTEGER NOT NULL,
	FOREIGN KEY (outcome_id) REFERENCES outcomes(id)
);
`

// timeLayout is fixed-width so stored timestamps sort chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Status is the result of processing one participant.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Run is one invocation of the pipeline.
type Run struct {
	ID         string
	EEGDir     string
	BehDir     string
	StartedAt  time.Time
	FinishedAt time.Time // Zero while running
}

// RunSummary is a run with per-status participant counts.
type RunSummary struct {
	Run
	OK      int
	Skipped int
	Failed  int
}

// EpochCount is the number of epochs cut for one prefix.
type EpochCount struct {
	Prefix  string
	Epochs  int
	Dropped int
	Samples int // Samples per epoch
}

// Outcome is the result of processing one participant in a run.
type Outcome struct {
	RunID         string
	ParticipantID string
	Sex           string
	Age           string
	Status        Status
	Reason        string
	Annotations   int
	Epochs        []EpochCount
}

// Store manages run outcomes in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Parallel workers record outcomes through one connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records the start of a new run.
func (s *Store) StartRun(ctx context.Context, eegDir, behDir string) (Run, error) {
	run := Run{
		ID:        uuid.New().String(),
		EEGDir:    eegDir,
		BehDir:    behDir,
		StartedAt: s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, eeg_dir, beh_dir, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.EEGDir, run.BehDir, run.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun marks a run as finished.
func (s *Store) FinishRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE run_id = ?`,
		s.now().UTC().Format(timeLayout), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: run %s not found", runID)
	}
	return nil
}

// RecordOutcome stores the outcome of one participant.
func (s *Store) RecordOutcome(ctx context.Context, o Outcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, participant_id, sex, age, status, reason, annotations, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.ParticipantID, o.Sex, o.Age, string(o.Status), o.Reason, o.Annotations,
		s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}

	outcomeID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("outcome id: %w", err)
	}

	for _, ec := range o.Epochs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO epoch_counts (outcome_id, prefix, epochs, dropped, samples) VALUES (?, ?, ?, ?, ?)`,
			outcomeID, ec.Prefix, ec.Epochs, ec.Dropped, ec.Samples,
		)
		if err != nil {
			return fmt.Errorf("insert epoch count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Outcomes returns the outcomes of a run ordered by participant.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, participant_id, sex, age, status, reason, annotations
		 FROM outcomes WHERE run_id = ? ORDER BY participant_id, id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var (
		outcomes []Outcome
		ids      []int64
	)
	for rows.Next() {
		var (
			id     int64
			o      = Outcome{RunID: runID}
			status string
		)
		if err := rows.Scan(&id, &o.ParticipantID, &o.Sex, &o.Age, &status, &o.Reason, &o.Annotations); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Status = Status(status)
		outcomes = append(outcomes, o)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i, id := range ids {
		if outcomes[i].Epochs, err = s.epochCounts(ctx, id); err != nil {
			return nil, err
		}
	}
	return outcomes, nil
}

func (s *Store) epochCounts(ctx context.Context, outcomeID int64) ([]EpochCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT prefix, epochs, dropped, samples FROM epoch_counts WHERE outcome_id = ? ORDER BY id`,
		outcomeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query epoch counts: %w", err)
	}
	defer rows.Close()

	var counts []EpochCount
	for rows.Next() {
		var ec EpochCount
		if err := rows.Scan(&ec.Prefix, &ec.Epochs, &ec.Dropped, &ec.Samples); err != nil {
			return nil, fmt.Errorf("scan epoch count: %w", err)
		}
		counts = append(counts, ec)
	}
	return counts, rows.Err()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.run_id, r.eeg_dir, r.beh_dir, r.started_at, COALESCE(r.finished_at, ''),
		        COALESCE(SUM(o.status = 'ok'), 0),
		        COALESCE(SUM(o.status = 'skipped'), 0),
		        COALESCE(SUM(o.status = 'failed'), 0)
		 FROM runs r LEFT JOIN outcomes o ON o.run_id = r.run_id
		 GROUP BY r.run_id
		 ORDER BY r.started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			rs                RunSummary
			started, finished string
		)
		if err := rows.Scan(&rs.ID, &rs.EEGDir, &rs.BehDir, &started, &finished, &rs.OK, &rs.Skipped, &rs.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if rs.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if finished != "" {
			if rs.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
				return nil, fmt.Errorf("parse finished_at: %w", err)
			}
		}
		runs = append(runs, rs)
	}
	return runs, rows.Err()
}
