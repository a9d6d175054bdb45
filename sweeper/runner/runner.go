// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

// This package drives the whole sweep: prepare, iterate over the proposed
// configurations, finalize. One run is a plain sequential loop; all
// concurrency lives below (load tool, metric collection) or beside it
// (annotation shipping).
package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unimib-datAI/faasweep/sweeper/annot"
	"github.com/unimib-datAI/faasweep/sweeper/confspace"
	"github.com/unimib-datAI/faasweep/sweeper/fnspec"
	"github.com/unimib-datAI/faasweep/sweeper/httpserver"
	"github.com/unimib-datAI/faasweep/sweeper/infogath/promq"
	"github.com/unimib-datAI/faasweep/sweeper/loadgen"
	"github.com/unimib-datAI/faasweep/sweeper/logging"
	"github.com/unimib-datAI/faasweep/sweeper/memory"
	"github.com/unimib-datAI/faasweep/sweeper/results"
	"github.com/unimib-datAI/faasweep/sweeper/scheduler"
)

//////////////////// COLLABORATOR SEAMS ////////////////////

// CooldownWaiter blocks until the system under test is idle again.
type CooldownWaiter interface {
	WaitForIdle(baseline promq.NodeSnapshot, functions []string) (time.Duration, error)
}

// MetricsCollector gathers node and per-function telemetry.
type MetricsCollector interface {
	GetNodeSnapshot(window time.Duration, start, end *time.Time) (promq.NodeSnapshot, error)
	CollectAll(functions []string, nominal time.Duration, start, end time.Time) (promq.AllMetrics, error)
}

// ReplicaProvider reports the current replica count per function.
type ReplicaProvider interface {
	ReplicaCounts() (map[string]int, error)
}

// LoadExecutor runs one generated load script and returns the raw summary.
type LoadExecutor interface {
	Execute(configID string, iteration int, script string) ([]byte, error)
}

// MemoryEngine is the slice of the execution memory the orchestrator needs.
type MemoryEngine interface {
	SeenSet() map[string]bool
	IngestEvent(ev memory.Event) error
	Checkpoint(coreDir, debugDir string) error
}

//////////////////// RESULT TYPES ////////////////////

// Skip reasons recorded in placeholder rows.
const (
	ReasonAlreadyIndexed = "already-indexed"
	ReasonDominated      = "dominated"
	ReasonScript         = "script-generation"
	ReasonCooldown       = "cooldown"
	ReasonExecution      = "load-execution"
	ReasonReplicas       = "replica-count"
	ReasonSummary        = "summary-parse"
	ReasonMetrics        = "metrics-collection"
)

// SkippedRow is the placeholder recorded for a configuration that did not
// execute, either intentionally (indexed, dominated) or after a failure.
type SkippedRow struct {
	ConfigID string `json:"config_id"`
	Key      string `json:"key"`
	Reason   string `json:"reason"`
	Detail   string `json:"detail,omitempty"`
}

// RunResult is the aggregate payload of one run.
type RunResult struct {
	RunID    string             `json:"run_id"`
	Columns  []string           `json:"columns"`
	Rows     []results.Row      `json:"rows"`
	Skipped  []SkippedRow       `json:"skipped"`
	Index    []IndexRow         `json:"index"`
	Baseline promq.NodeSnapshot `json:"baseline"`
}

const resultsFileName = "results.json"

//////////////////// RUNNER ////////////////////

// Options are the per-run knobs of the orchestrator.
type Options struct {
	RunID      string
	OutputDir  string
	Iterations int

	// Repetition distinguishes repeated sweeps over the same space.
	Repetition int

	// TestDuration is the nominal duration of one load test.
	TestDuration time.Duration

	Script     loadgen.ScriptOptions
	Thresholds results.Thresholds

	// CheckpointDir receives the core-tables parquet export at finalize;
	// DebugCheckpointDir, when non-empty, receives the debug tables.
	CheckpointDir      string
	DebugCheckpointDir string
}

// Runner executes one full sweep. All collaborators are injected.
type Runner struct {
	Opts Options

	// Specs is the whole workload, keyed by function name; AllFunctions is the
	// sorted universe the wide rows are shaped on.
	Specs        map[string]fnspec.FunctionSpec
	AllFunctions []string

	Candidates []confspace.Candidate
	Scheduler  scheduler.ConfigScheduler
	Policy     memory.Algorithm

	Cooldown  CooldownWaiter
	Collector MetricsCollector
	Replicas  ReplicaProvider
	Executor  LoadExecutor
	Memory    MemoryEngine

	// Annotations may be nil; publishing is best-effort either way.
	Annotations *annot.Publisher

	// State accumulated while iterating.
	result         *RunResult
	indexed        map[string]bool
	overloadedKeys []confspace.Key
	baseline       promq.NodeSnapshot
}

// Run executes the sweep: prepare, iterate, finalize. It returns the
// aggregate result; the same payload is also written to the output directory.
// A failing configuration never fails the run, only preparation and
// finalization errors do.
func (r *Runner) Run() (*RunResult, error) {
	batch, err := r.prepare()
	if err != nil {
		return nil, err
	}

	for _, cand := range batch {
		r.runConfiguration(cand)
	}

	if err := r.finalize(); err != nil {
		return r.result, err
	}
	return r.result, nil
}

// prepare loads the on-disk index, takes the baseline snapshot and proposes
// the batch of configurations to execute.
func (r *Runner) prepare() ([]confspace.Candidate, error) {
	logger := logging.Logger()

	if err := os.MkdirAll(r.Opts.OutputDir, 0755); err != nil {
		return nil, errors.Wrap(err, "Error while creating the output directory")
	}

	index, err := loadIndex(r.Opts.OutputDir)
	if err != nil {
		return nil, err
	}

	r.result = &RunResult{
		RunID:   r.Opts.RunID,
		Columns: results.Columns(r.AllFunctions),
		Index:   index,
	}

	// Overload marks of previous (and this) run feed the dominance pruning.
	r.indexed = map[string]bool{}
	for _, row := range index {
		r.indexed[row.Key] = true
		if row.Overloaded {
			r.overloadedKeys = append(r.overloadedKeys, confspace.Candidate{Pairs: row.Pairs}.Key())
		}
	}

	r.baseline, err = r.Collector.GetNodeSnapshot(r.Opts.TestDuration, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Error while taking the idle baseline snapshot")
	}
	r.result.Baseline = r.baseline
	logger.Infof("Idle baseline: cpu=%.2f%% ram=%.0f ram_pct=%.2f%% power=%.2f",
		r.baseline.CPUPct, r.baseline.RAM, r.baseline.RAMPct, r.baseline.Power)

	// Seen keys come from the execution memory (all past runs) plus the index
	// of this output location.
	seen := r.Memory.SeenSet()
	batch := r.Scheduler.ProposeBatch(r.Candidates, seen, len(r.Candidates))
	if r.Policy != nil {
		batch = r.Policy.ChooseBatch(batch, len(batch))
	}
	logger.Infof("Run %s: %d candidates total, %d proposed for execution",
		r.Opts.RunID, len(r.Candidates), len(batch))

	r.Annotations.Publish("runner", annot.KindRunStart,
		fmt.Sprintf("run %s started with %d configurations", r.Opts.RunID, len(batch)),
		r.Opts.Repetition)

	return batch, nil
}

// runConfiguration executes every iteration of one candidate. Failures abort
// only this configuration.
func (r *Runner) runConfiguration(cand confspace.Candidate) {
	logger := logging.Logger()

	key := cand.Key()
	keyStr := key.String()
	configID := key.Hash()

	if r.indexed[keyStr] {
		r.skip(configID, keyStr, ReasonAlreadyIndexed, "")
		return
	}
	if r.dominatesOverloaded(key) {
		r.skip(configID, keyStr, ReasonDominated, "")
		return
	}

	script, err := loadgen.BuildScript(cand, r.Specs, r.Opts.Script)
	if err != nil {
		logger.Warnf("Script generation failed for %s: %v", keyStr, err)
		r.skip(configID, keyStr, ReasonScript, err.Error())
		return
	}

	logger.Infof("Executing configuration %s (%s)", configID, keyStr)
	r.Annotations.Publish("runner", annot.KindConfigChange, keyStr, r.Opts.Repetition)

	overloadedIterations := 0

	for iteration := 0; iteration < r.Opts.Iterations; iteration++ {
		nodeOverloaded, reason, err := r.runIteration(cand, configID, iteration, script)
		if err != nil {
			logger.Warnf("Configuration %s aborted at iteration %d (%s): %v",
				configID, iteration, reason, err)
			r.Annotations.Publish("runner", annot.KindError,
				fmt.Sprintf("configuration %s: %v", keyStr, err), r.Opts.Repetition)
			r.skip(configID, keyStr, reason, err.Error())
			return
		}
		if nodeOverloaded {
			overloadedIterations++
			r.Annotations.Publish("runner", annot.KindOverload,
				fmt.Sprintf("configuration %s iteration %d overloaded the node", keyStr, iteration),
				r.Opts.Repetition)
		}
		inc(httpserver.IterationsRun)
	}

	// A configuration counts as overloading when more than half of its
	// iterations did.
	overloaded := 2*overloadedIterations > r.Opts.Iterations
	if overloaded {
		r.overloadedKeys = append(r.overloadedKeys, key)
		inc(httpserver.ConfigsOverloaded)
	}

	row := IndexRow{ConfigID: configID, Key: keyStr, Pairs: cand.Pairs, Overloaded: overloaded}
	if err := appendIndex(r.Opts.OutputDir, row); err != nil {
		logger.Warnf("Failed to persist an index row for %s: %v", configID, err)
	}
	r.indexed[keyStr] = true
	r.result.Index = append(r.result.Index, row)
	inc(httpserver.ConfigsCompleted)
}

// runIteration is one cooldown, execute, collect, classify, ingest cycle. It
// returns the node overload verdict, or a skip reason and error on failure.
func (r *Runner) runIteration(cand confspace.Candidate, configID string, iteration int, script string) (bool, string, error) {
	logger := logging.Logger()

	key := cand.Key()
	functions := key.Functions

	rested, err := r.Cooldown.WaitForIdle(r.baseline, functions)
	if err != nil {
		return false, ReasonCooldown, err
	}

	started := time.Now()
	rawSummary, err := r.Executor.Execute(configID, iteration, script)
	ended := time.Now()
	if err != nil {
		return false, ReasonExecution, err
	}

	replicas, err := r.Replicas.ReplicaCounts()
	if err != nil {
		return false, ReasonReplicas, err
	}

	load, err := loadgen.ParseSummary(rawSummary, functions)
	if err != nil {
		return false, ReasonSummary, err
	}

	all, err := r.Collector.CollectAll(functions, r.Opts.TestDuration, started, ended)
	if err != nil {
		return false, ReasonMetrics, err
	}

	row, nodeOverloaded := results.Build(
		r.AllFunctions, cand.Pairs, load, replicas, all,
		r.baseline, rested.Seconds(), r.Opts.Thresholds)
	r.result.Rows = append(r.result.Rows, row)

	ev := memory.Event{
		RunID:      r.Opts.RunID,
		ConfigID:   configID,
		Key:        key,
		Iteration:  iteration,
		Repetition: r.Opts.Repetition,
		StartedAt:  started,
		EndedAt:    ended,
		Row:        row,
		Metrics:    all,
		Summary:    load,
		RawSummary: rawSummary,
		OutputPath: r.Opts.OutputDir,
	}
	if err := r.Memory.IngestEvent(ev); err != nil {
		// Memory is an accelerator, not a gate: losing one event must not
		// abort the configuration.
		logger.Warnf("Failed to ingest an execution event for %s: %v", configID, err)
	}

	return nodeOverloaded, "", nil
}

// finalize checkpoints the execution memory and writes the aggregate payload.
func (r *Runner) finalize() error {
	logger := logging.Logger()

	if err := r.Memory.Checkpoint(r.Opts.CheckpointDir, r.Opts.DebugCheckpointDir); err != nil {
		return errors.Wrap(err, "Error while checkpointing the execution memory")
	}

	data, err := json.MarshalIndent(r.result, "", "  ")
	if err != nil {
		return errors.Wrap(err, "Error while encoding the run results")
	}
	path := filepath.Join(r.Opts.OutputDir, resultsFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "Error while writing the run results")
	}

	logger.Infof("Run %s done: %d rows, %d skipped, %d indexed",
		r.Opts.RunID, len(r.result.Rows), len(r.result.Skipped), len(r.result.Index))
	r.Annotations.Publish("runner", annot.KindRunEnd,
		fmt.Sprintf("run %s finished", r.Opts.RunID), r.Opts.Repetition)

	return nil
}

// dominatesOverloaded reports whether the candidate asks at least as much as a
// configuration already observed to overload the node.
func (r *Runner) dominatesOverloaded(key confspace.Key) bool {
	for _, over := range r.overloadedKeys {
		if confspace.Dominates(key, over) {
			return true
		}
	}
	return false
}

// skip records one placeholder row.
func (r *Runner) skip(configID, key, reason, detail string) {
	logging.Logger().Infof("Skipping configuration %s (%s): %s", configID, key, reason)
	r.result.Skipped = append(r.result.Skipped, SkippedRow{
		ConfigID: configID, Key: key, Reason: reason, Detail: detail,
	})
	inc(httpserver.ConfigsSkipped)
}

// inc guards against counters not being registered, which is the case in
// tests that exercise the runner without the http server.
func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}
