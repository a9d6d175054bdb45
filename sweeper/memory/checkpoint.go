// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package memory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

// Checkpoints are directories with one columnar file per table. The
// schema-meta file is always consulted first on preload; importing a
// checkpoint with a different schema version fails before any rows are
// touched.

type schemaMetaRow struct {
	Key   string `parquet:"key"`
	Value string `parquet:"value"`
}

type sessionRow struct {
	RunID     string `parquet:"run_id"`
	StartedAt int64  `parquet:"started_at"`
	Gateway   string `parquet:"gateway"`
	Strategy  string `parquet:"strategy"`
}

type configRow struct {
	ConfigID      string `parquet:"config_id"`
	KeyJSON       string `parquet:"key_json"`
	FunctionCount int64  `parquet:"function_count"`
	RateSum       int64  `parquet:"rate_sum"`
	FirstSeenAt   int64  `parquet:"first_seen_at"`
}

type eventRow struct {
	RunID       string `parquet:"run_id"`
	ConfigID    string `parquet:"config_id"`
	Iteration   int64  `parquet:"iteration"`
	Repetition  int64  `parquet:"repetition"`
	StartedAt   int64  `parquet:"started_at"`
	EndedAt     int64  `parquet:"ended_at"`
	RowJSON     string `parquet:"row_json"`
	MetricsJSON string `parquet:"metrics_json"`
	SummaryJSON string `parquet:"summary_json"`
	OutputPath  string `parquet:"output_path"`
}

type policyUpdateRow struct {
	RunID      string `parquet:"run_id"`
	Policy     string `parquet:"policy"`
	Mode       string `parquet:"mode"`
	EventCount int64  `parquet:"event_count"`
	AppliedAt  int64  `parquet:"applied_at"`
}

type rawSummaryRow struct {
	RunID      string `parquet:"run_id"`
	ConfigID   string `parquet:"config_id"`
	Iteration  int64  `parquet:"iteration"`
	Repetition int64  `parquet:"repetition"`
	Raw        string `parquet:"raw"`
}

// exportCore writes the five core tables to dir, one parquet file per table.
func (e *Engine) exportCore(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "Error while creating the core checkpoint directory")
	}

	meta := []schemaMetaRow{{Key: "schema_version", Value: e.cfg.SchemaVersion}}
	if err := parquet.WriteFile(filepath.Join(dir, "schema_meta.parquet"), meta); err != nil {
		return errors.Wrap(err, "Error while exporting schema_meta")
	}

	var sessions []sessionRow
	rows, err := e.store.db.Query(`SELECT run_id, started_at, gateway, strategy FROM run_sessions`)
	if err != nil {
		return errors.Wrap(err, "Error while reading run_sessions")
	}
	for rows.Next() {
		var r sessionRow
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.Gateway, &r.Strategy); err != nil {
			rows.Close()
			return errors.Wrap(err, "Error while scanning run_sessions")
		}
		sessions = append(sessions, r)
	}
	rows.Close()
	if err := parquet.WriteFile(filepath.Join(dir, "run_sessions.parquet"), sessions); err != nil {
		return errors.Wrap(err, "Error while exporting run_sessions")
	}

	var configs []configRow
	rows, err = e.store.db.Query(
		`SELECT config_id, key_json, function_count, rate_sum, first_seen_at FROM config_catalog`)
	if err != nil {
		return errors.Wrap(err, "Error while reading config_catalog")
	}
	for rows.Next() {
		var r configRow
		if err := rows.Scan(&r.ConfigID, &r.KeyJSON, &r.FunctionCount, &r.RateSum, &r.FirstSeenAt); err != nil {
			rows.Close()
			return errors.Wrap(err, "Error while scanning config_catalog")
		}
		configs = append(configs, r)
	}
	rows.Close()
	if err := parquet.WriteFile(filepath.Join(dir, "config_catalog.parquet"), configs); err != nil {
		return errors.Wrap(err, "Error while exporting config_catalog")
	}

	var events []eventRow
	rows, err = e.store.db.Query(
		`SELECT run_id, config_id, iteration, repetition, started_at, ended_at,
		        row_json, metrics_json, summary_json, output_path
		 FROM execution_events`)
	if err != nil {
		return errors.Wrap(err, "Error while reading execution_events")
	}
	for rows.Next() {
		var r eventRow
		if err := rows.Scan(&r.RunID, &r.ConfigID, &r.Iteration, &r.Repetition,
			&r.StartedAt, &r.EndedAt, &r.RowJSON, &r.MetricsJSON, &r.SummaryJSON, &r.OutputPath); err != nil {
			rows.Close()
			return errors.Wrap(err, "Error while scanning execution_events")
		}
		events = append(events, r)
	}
	rows.Close()
	if err := parquet.WriteFile(filepath.Join(dir, "execution_events.parquet"), events); err != nil {
		return errors.Wrap(err, "Error while exporting execution_events")
	}

	var updates []policyUpdateRow
	rows, err = e.store.db.Query(
		`SELECT run_id, policy, mode, event_count, applied_at FROM policy_updates`)
	if err != nil {
		return errors.Wrap(err, "Error while reading policy_updates")
	}
	for rows.Next() {
		var r policyUpdateRow
		if err := rows.Scan(&r.RunID, &r.Policy, &r.Mode, &r.EventCount, &r.AppliedAt); err != nil {
			rows.Close()
			return errors.Wrap(err, "Error while scanning policy_updates")
		}
		updates = append(updates, r)
	}
	rows.Close()
	if err := parquet.WriteFile(filepath.Join(dir, "policy_updates.parquet"), updates); err != nil {
		return errors.Wrap(err, "Error while exporting policy_updates")
	}

	return nil
}

// exportDebug writes the raw-summaries table to dir, kept apart from core
// checkpoints.
func (e *Engine) exportDebug(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "Error while creating the debug checkpoint directory")
	}

	var raws []rawSummaryRow
	rows, err := e.store.db.Query(
		`SELECT run_id, config_id, iteration, repetition, raw FROM raw_summaries`)
	if err != nil {
		return errors.Wrap(err, "Error while reading raw_summaries")
	}
	for rows.Next() {
		var r rawSummaryRow
		if err := rows.Scan(&r.RunID, &r.ConfigID, &r.Iteration, &r.Repetition, &r.Raw); err != nil {
			rows.Close()
			return errors.Wrap(err, "Error while scanning raw_summaries")
		}
		raws = append(raws, r)
	}
	rows.Close()
	if err := parquet.WriteFile(filepath.Join(dir, "raw_summaries.parquet"), raws); err != nil {
		return errors.Wrap(err, "Error while exporting raw_summaries")
	}

	return nil
}

// preloadCheckpoint imports a core checkpoint into the open store. The
// schema-meta file is validated against the configured schema version before
// any row is imported.
func (e *Engine) preloadCheckpoint(dir string) error {
	meta, err := parquet.ReadFile[schemaMetaRow](filepath.Join(dir, "schema_meta.parquet"))
	if err != nil {
		return errors.Wrap(err, "Error while reading the checkpoint schema meta")
	}

	version := ""
	for _, row := range meta {
		if row.Key == "schema_version" {
			version = row.Value
		}
	}
	if version != e.cfg.SchemaVersion {
		return fmt.Errorf("checkpoint has schema version %q, engine is configured for %q: %w",
			version, e.cfg.SchemaVersion, ErrSchemaMismatch)
	}

	sessions, err := parquet.ReadFile[sessionRow](filepath.Join(dir, "run_sessions.parquet"))
	if err != nil {
		return errors.Wrap(err, "Error while reading the run_sessions checkpoint")
	}
	for _, r := range sessions {
		if _, err := e.store.db.Exec(
			`INSERT OR IGNORE INTO run_sessions (run_id, started_at, gateway, strategy) VALUES (?, ?, ?, ?)`,
			r.RunID, r.StartedAt, r.Gateway, r.Strategy); err != nil {
			return errors.Wrap(err, "Error while importing run_sessions")
		}
	}

	configs, err := parquet.ReadFile[configRow](filepath.Join(dir, "config_catalog.parquet"))
	if err != nil {
		return errors.Wrap(err, "Error while reading the config_catalog checkpoint")
	}
	for _, r := range configs {
		if _, err := e.store.db.Exec(
			`INSERT OR IGNORE INTO config_catalog
			 (config_id, key_json, function_count, rate_sum, first_seen_at) VALUES (?, ?, ?, ?, ?)`,
			r.ConfigID, r.KeyJSON, r.FunctionCount, r.RateSum, r.FirstSeenAt); err != nil {
			return errors.Wrap(err, "Error while importing config_catalog")
		}
	}

	events, err := parquet.ReadFile[eventRow](filepath.Join(dir, "execution_events.parquet"))
	if err != nil {
		return errors.Wrap(err, "Error while reading the execution_events checkpoint")
	}
	for _, r := range events {
		if _, err := e.store.db.Exec(
			`INSERT OR IGNORE INTO execution_events
			 (run_id, config_id, iteration, repetition, started_at, ended_at,
			  row_json, metrics_json, summary_json, output_path)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.ConfigID, r.Iteration, r.Repetition, r.StartedAt, r.EndedAt,
			r.RowJSON, r.MetricsJSON, r.SummaryJSON, r.OutputPath); err != nil {
			return errors.Wrap(err, "Error while importing execution_events")
		}
	}

	updates, err := parquet.ReadFile[policyUpdateRow](filepath.Join(dir, "policy_updates.parquet"))
	if err != nil {
		return errors.Wrap(err, "Error while reading the policy_updates checkpoint")
	}
	// The table has a surrogate id, so re-importing must dedup on the row
	// content itself to keep preloading idempotent.
	for _, r := range updates {
		if _, err := e.store.db.Exec(
			`INSERT INTO policy_updates (run_id, policy, mode, event_count, applied_at)
			 SELECT ?, ?, ?, ?, ?
			 WHERE NOT EXISTS (
			     SELECT 1 FROM policy_updates
			     WHERE run_id = ? AND policy = ? AND mode = ? AND event_count = ? AND applied_at = ?)`,
			r.RunID, r.Policy, r.Mode, r.EventCount, r.AppliedAt,
			r.RunID, r.Policy, r.Mode, r.EventCount, r.AppliedAt); err != nil {
			return errors.Wrap(err, "Error while importing policy_updates")
		}
	}

	return nil
}
