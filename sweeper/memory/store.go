// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/unimib-datAI/faasweep/sweeper/confspace"
)

// ErrSchemaMismatch is returned when a store (or a checkpoint) was written
// with a different schema version than the engine is configured for. There is
// no implicit migration.
var ErrSchemaMismatch = errors.New("execution-memory schema version mismatch")

// Store is the embedded database behind the execution memory: five core
// tables plus the debug-only raw-summaries table.
type Store struct {
	db            *sql.DB
	schemaVersion string
}

const createTables = `
CREATE TABLE IF NOT EXISTS schema_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_sessions (
	run_id     TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	gateway    TEXT NOT NULL,
	strategy   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS config_catalog (
	config_id      TEXT PRIMARY KEY,
	key_json       TEXT NOT NULL,
	function_count INTEGER NOT NULL,
	rate_sum       INTEGER NOT NULL,
	first_seen_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS execution_events (
	run_id       TEXT NOT NULL,
	config_id    TEXT NOT NULL,
	iteration    INTEGER NOT NULL,
	repetition   INTEGER NOT NULL,
	started_at   INTEGER NOT NULL,
	ended_at     INTEGER NOT NULL,
	row_json     TEXT NOT NULL,
	metrics_json TEXT NOT NULL,
	summary_json TEXT NOT NULL,
	output_path  TEXT NOT NULL,
	PRIMARY KEY (run_id, config_id, iteration, repetition)
);
CREATE TABLE IF NOT EXISTS policy_updates (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	policy      TEXT NOT NULL,
	mode        TEXT NOT NULL,
	event_count INTEGER NOT NULL,
	applied_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS raw_summaries (
	run_id     TEXT NOT NULL,
	config_id  TEXT NOT NULL,
	iteration  INTEGER NOT NULL,
	repetition INTEGER NOT NULL,
	raw        TEXT NOT NULL,
	PRIMARY KEY (run_id, config_id, iteration, repetition)
);
`

// OpenStore opens (or creates) the store file and checks the persisted schema
// version against the configured one. A mismatch is fatal.
func OpenStore(path, schemaVersion string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "Error while opening the execution-memory store")
	}

	if _, err := db.Exec(createTables); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Error while creating the execution-memory tables")
	}

	store := &Store{db: db, schemaVersion: schemaVersion}

	stored, err := store.storedSchemaVersion()
	if err != nil {
		db.Close()
		return nil, err
	}
	if stored == "" {
		if _, err := db.Exec(
			`INSERT INTO schema_meta (key, value) VALUES ('schema_version', ?)`, schemaVersion); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "Error while writing the schema version")
		}
	} else if stored != schemaVersion {
		db.Close()
		return nil, fmt.Errorf("store has schema version %q, engine is configured for %q: %w",
			stored, schemaVersion, ErrSchemaMismatch)
	}

	return store, nil
}

func (s *Store) storedSchemaVersion() (string, error) {
	var version string
	err := s.db.QueryRow(
		`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "Error while reading the schema version")
	}
	return version, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordSession registers one run session. Re-recording the same run id is a
// no-op.
func (s *Store) RecordSession(runID, gateway, strategy string, startedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO run_sessions (run_id, started_at, gateway, strategy) VALUES (?, ?, ?, ?)`,
		runID, startedAt.Unix(), gateway, strategy)
	return errors.Wrap(err, "Error while recording the run session")
}

// UpsertConfig registers one distinct configuration in the catalog with its
// derived stats. Already-cataloged configurations are left untouched.
func (s *Store) UpsertConfig(configID string, key confspace.Key) error {
	keyJSON, err := json.Marshal(map[string]interface{}{
		"functions": key.Functions,
		"rates":     key.Rates,
	})
	if err != nil {
		return errors.Wrap(err, "Error while encoding a configuration key")
	}

	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO config_catalog
		 (config_id, key_json, function_count, rate_sum, first_seen_at)
		 VALUES (?, ?, ?, ?, ?)`,
		configID, string(keyJSON), key.FunctionCount(), key.RateSum(), time.Now().Unix())
	return errors.Wrap(err, "Error while cataloging a configuration")
}

// InsertEvent writes one execution event. Duplicate (run, config, iteration,
// repetition) events are ignored, making ingestion idempotent. It reports
// whether the row was actually inserted.
func (s *Store) InsertEvent(ev Event) (bool, error) {
	rowJSON, err := json.Marshal(ev.Row)
	if err != nil {
		return false, errors.Wrap(err, "Error while encoding a result row")
	}
	metricsJSON, err := json.Marshal(ev.Metrics)
	if err != nil {
		return false, errors.Wrap(err, "Error while encoding collected metrics")
	}
	summaryJSON, err := json.Marshal(ev.Summary)
	if err != nil {
		return false, errors.Wrap(err, "Error while encoding a parsed summary")
	}

	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO execution_events
		 (run_id, config_id, iteration, repetition, started_at, ended_at,
		  row_json, metrics_json, summary_json, output_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.ConfigID, ev.Iteration, ev.Repetition,
		ev.StartedAt.Unix(), ev.EndedAt.Unix(),
		string(rowJSON), string(metricsJSON), string(summaryJSON), ev.OutputPath)
	if err != nil {
		return false, errors.Wrap(err, "Error while inserting an execution event")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "Error while checking the inserted rows")
	}
	return n > 0, nil
}

// InsertRawSummary stores the raw load-test summary for debugging. Raw
// summaries never enter core checkpoints.
func (s *Store) InsertRawSummary(ev Event) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO raw_summaries (run_id, config_id, iteration, repetition, raw)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.RunID, ev.ConfigID, ev.Iteration, ev.Repetition, string(ev.RawSummary))
	return errors.Wrap(err, "Error while inserting a raw summary")
}

// RecordPolicyUpdate appends one entry to the policy-update log.
func (s *Store) RecordPolicyUpdate(runID, policy, mode string, eventCount int) error {
	_, err := s.db.Exec(
		`INSERT INTO policy_updates (run_id, policy, mode, event_count, applied_at)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, policy, mode, eventCount, time.Now().Unix())
	return errors.Wrap(err, "Error while recording a policy update")
}

// SeenKeys replays the catalog of configurations that have at least one
// execution event and returns their keys. Used to rebuild the seen set at
// engine startup.
func (s *Store) SeenKeys() ([]confspace.Key, error) {
	rows, err := s.db.Query(
		`SELECT c.key_json FROM config_catalog c
		 WHERE EXISTS (SELECT 1 FROM execution_events e WHERE e.config_id = c.config_id)`)
	if err != nil {
		return nil, errors.Wrap(err, "Error while replaying seen configurations")
	}
	defer rows.Close()

	var keys []confspace.Key
	for rows.Next() {
		var keyJSON string
		if err := rows.Scan(&keyJSON); err != nil {
			return nil, errors.Wrap(err, "Error while scanning a cataloged configuration")
		}
		var decoded struct {
			Functions []string `json:"functions"`
			Rates     []int    `json:"rates"`
		}
		if err := json.Unmarshal([]byte(keyJSON), &decoded); err != nil {
			return nil, errors.Wrap(err, "Error while decoding a cataloged configuration key")
		}
		keys = append(keys, confspace.Key{Functions: decoded.Functions, Rates: decoded.Rates})
	}

	return keys, rows.Err()
}

// EventCount returns the number of stored events for one configuration.
func (s *Store) EventCount(configID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM execution_events WHERE config_id = ?`, configID).Scan(&n)
	return n, errors.Wrap(err, "Error while counting execution events")
}
