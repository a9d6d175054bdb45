// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package runner

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unimib-datAI/faasweep/sweeper/confspace"
	"github.com/unimib-datAI/faasweep/sweeper/fnspec"
	"github.com/unimib-datAI/faasweep/sweeper/infogath/promq"
	"github.com/unimib-datAI/faasweep/sweeper/loadgen"
	"github.com/unimib-datAI/faasweep/sweeper/memory"
	"github.com/unimib-datAI/faasweep/sweeper/results"
	"github.com/unimib-datAI/faasweep/sweeper/scheduler"
)

//////////////////// FAKES ////////////////////

type fakeCooldown struct {
	waited time.Duration
	err    error
	calls  int
}

func (f *fakeCooldown) WaitForIdle(baseline promq.NodeSnapshot, functions []string) (time.Duration, error) {
	f.calls++
	return f.waited, f.err
}

type fakeCollector struct {
	node promq.NodeSnapshot
	err  error
}

func (f *fakeCollector) GetNodeSnapshot(window time.Duration, start, end *time.Time) (promq.NodeSnapshot, error) {
	return f.node, f.err
}

func (f *fakeCollector) CollectAll(functions []string, nominal time.Duration, start, end time.Time) (promq.AllMetrics, error) {
	if f.err != nil {
		return promq.AllMetrics{}, f.err
	}
	all := promq.AllMetrics{Node: f.node, Functions: map[string]promq.FunctionMetrics{}}
	for _, fn := range functions {
		all.Functions[fn] = promq.FunctionMetrics{CPUPct: 10, RAM: 1 << 20, Power: math.NaN()}
	}
	return all, nil
}

type fakeReplicas struct {
	counts map[string]int
}

func (f *fakeReplicas) ReplicaCounts() (map[string]int, error) {
	return f.counts, nil
}

type fakeExecutor struct {
	// successRate is reported for every function of every summary; failFor
	// makes executions of that config id fail.
	successRate float64
	failFor     string
	calls       int
}

func (f *fakeExecutor) Execute(configID string, iteration int, script string) ([]byte, error) {
	f.calls++
	if f.failFor != "" && configID == f.failFor {
		return nil, &loadgen.ExecError{Reason: "load tool exited with an error"}
	}
	return nil, nil
}

// summarize renders a parseable summary. The runner hands the executor's raw
// bytes to ParseSummary, so the fake builds them per config.
func (f *fakeExecutor) summary(functions []string) []byte {
	out := `{"metrics": {`
	for i, fn := range functions {
		id := loadgen.MetricID(fn)
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(
			`"success_rate_%s": {"rate": %g}, "latency_%s": {"avg": 10}, "requests_%s": {"count": 100}`,
			id, f.successRate, id, id)
	}
	return []byte(out + "}}")
}

// scriptedExecutor returns a fixed summary per call.
type scriptedExecutor struct {
	fakeExecutor
	functions []string
}

func (s *scriptedExecutor) Execute(configID string, iteration int, script string) ([]byte, error) {
	s.calls++
	if s.failFor != "" && configID == s.failFor {
		return nil, &loadgen.ExecError{Reason: "load tool exited with an error"}
	}
	return s.summary(s.functions), nil
}

type fakeMemory struct {
	seen        map[string]bool
	events      []memory.Event
	checkpoints int
	ingestErr   error
}

func (f *fakeMemory) SeenSet() map[string]bool {
	if f.seen == nil {
		return map[string]bool{}
	}
	return f.seen
}

func (f *fakeMemory) IngestEvent(ev memory.Event) error {
	if f.ingestErr != nil {
		return f.ingestErr
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeMemory) Checkpoint(coreDir, debugDir string) error {
	f.checkpoints++
	return nil
}

//////////////////// HELPERS ////////////////////

func candidate(fn string, rate int) confspace.Candidate {
	return confspace.Candidate{Pairs: []confspace.Pair{{Function: fn, Rate: rate}}}
}

func testWorkload(t *testing.T, names ...string) map[string]fnspec.FunctionSpec {
	t.Helper()

	specs := map[string]fnspec.FunctionSpec{}
	for _, name := range names {
		spec, err := fnspec.New(name, "POST", "x", nil, nil)
		require.NoError(t, err)
		specs[name] = spec
	}
	return specs
}

func newTestRunner(t *testing.T, candidates []confspace.Candidate, exec LoadExecutor, mem *fakeMemory, names ...string) *Runner {
	t.Helper()

	return &Runner{
		Opts: Options{
			RunID:        "test-run",
			OutputDir:    t.TempDir(),
			Iterations:   2,
			TestDuration: time.Minute,
			Script: loadgen.ScriptOptions{
				GatewayURL:   "http://gw",
				DurationSecs: 60,
				MaxVUs:       10,
			},
			Thresholds: results.Thresholds{
				FunctionSuccessFloor: 0.95,
				NodeSuccessFloor:     0.98,
				ReplicaOverload:      8,
				NodeCPUCapacityPct:   90,
				NodeRAMThresholdPct:  90,
			},
			CheckpointDir: filepath.Join(t.TempDir(), "checkpoint"),
		},
		Specs:        testWorkload(t, names...),
		AllFunctions: names,
		Candidates:   candidates,
		Scheduler:    scheduler.New(""),
		Cooldown:     &fakeCooldown{waited: time.Second},
		Collector:    &fakeCollector{node: promq.NodeSnapshot{CPUPct: 10, RAM: 100, RAMPct: 20, Power: math.NaN()}},
		Replicas:     &fakeReplicas{counts: map[string]int{}},
		Executor:     exec,
		Memory:       mem,
	}
}

//////////////////// TESTS ////////////////////

func TestRunHappyPath(t *testing.T) {
	ass := require.New(t)

	exec := &scriptedExecutor{functions: []string{"figlet"}}
	exec.successRate = 1.0
	mem := &fakeMemory{}

	r := newTestRunner(t, []confspace.Candidate{candidate("figlet", 10)}, exec, mem, "figlet")

	result, err := r.Run()
	ass.NoError(err)

	// Two iterations, one completed configuration, nothing skipped.
	ass.Len(result.Rows, 2)
	ass.Empty(result.Skipped)
	ass.Len(result.Index, 1)
	ass.False(result.Index[0].Overloaded)
	ass.Equal("figlet=10", result.Index[0].Key)

	// Every iteration was ingested and the memory was checkpointed once.
	ass.Len(mem.events, 2)
	ass.Equal(0, mem.events[0].Iteration)
	ass.Equal(1, mem.events[1].Iteration)
	ass.Equal(1, mem.checkpoints)

	// The on-disk index and aggregate payload exist.
	rows, err := loadIndex(r.Opts.OutputDir)
	ass.NoError(err)
	ass.Len(rows, 1)
	_, err = os.Stat(filepath.Join(r.Opts.OutputDir, resultsFileName))
	ass.NoError(err)
}

func TestRunSkipsAlreadyIndexed(t *testing.T) {
	ass := require.New(t)

	cand := candidate("figlet", 10)
	exec := &scriptedExecutor{functions: []string{"figlet"}}
	exec.successRate = 1.0

	r := newTestRunner(t, []confspace.Candidate{cand}, exec, &fakeMemory{}, "figlet")

	// A previous run already completed this configuration.
	ass.NoError(appendIndex(r.Opts.OutputDir, IndexRow{
		ConfigID: cand.Key().Hash(),
		Key:      cand.Key().String(),
		Pairs:    cand.Pairs,
	}))

	result, err := r.Run()
	ass.NoError(err)

	ass.Empty(result.Rows)
	ass.Zero(exec.calls)
	ass.Len(result.Skipped, 1)
	ass.Equal(ReasonAlreadyIndexed, result.Skipped[0].Reason)
}

func TestRunDominancePruningFromIndex(t *testing.T) {
	ass := require.New(t)

	overloaded := candidate("figlet", 10)
	harder := candidate("figlet", 20)
	other := candidate("shasum", 20)

	exec := &scriptedExecutor{functions: []string{"shasum"}}
	exec.successRate = 1.0

	r := newTestRunner(t, []confspace.Candidate{harder, other}, exec, &fakeMemory{}, "figlet", "shasum")

	// A previous run observed figlet=10 overloading the node.
	ass.NoError(appendIndex(r.Opts.OutputDir, IndexRow{
		ConfigID:   overloaded.Key().Hash(),
		Key:        overloaded.Key().String(),
		Pairs:      overloaded.Pairs,
		Overloaded: true,
	}))

	result, err := r.Run()
	ass.NoError(err)

	// figlet=20 dominates the overloaded figlet=10 and is pruned; shasum=20
	// has a different function set and runs.
	ass.Len(result.Skipped, 1)
	ass.Equal(ReasonDominated, result.Skipped[0].Reason)
	ass.Equal("figlet=20", result.Skipped[0].Key)
	ass.Len(result.Rows, 2)
}

func TestRunMarksOverloadAndPrunesInRun(t *testing.T) {
	ass := require.New(t)

	exec := &scriptedExecutor{functions: []string{"figlet"}}
	exec.successRate = 0.5 // below the per-function floor on every iteration

	r := newTestRunner(t, []confspace.Candidate{
		candidate("figlet", 10),
		candidate("figlet", 20),
	}, exec, &fakeMemory{}, "figlet")

	result, err := r.Run()
	ass.NoError(err)

	// figlet=10 overloaded on both iterations, so figlet=20 is pruned within
	// the same run.
	ass.Len(result.Index, 1)
	ass.True(result.Index[0].Overloaded)
	ass.Len(result.Skipped, 1)
	ass.Equal(ReasonDominated, result.Skipped[0].Reason)
}

func TestRunConfigurationFailureIsIsolated(t *testing.T) {
	ass := require.New(t)

	failing := candidate("figlet", 10)
	healthy := candidate("shasum", 10)

	exec := &scriptedExecutor{functions: []string{"shasum"}}
	exec.successRate = 1.0
	exec.failFor = failing.Key().Hash()

	r := newTestRunner(t, []confspace.Candidate{failing, healthy}, exec, &fakeMemory{}, "figlet", "shasum")

	result, err := r.Run()
	ass.NoError(err)

	// The failing configuration is skipped (and not indexed, so a rerun
	// retries it); the healthy one completes.
	ass.Len(result.Skipped, 1)
	ass.Equal(ReasonExecution, result.Skipped[0].Reason)
	ass.Equal(failing.Key().String(), result.Skipped[0].Key)

	ass.Len(result.Index, 1)
	ass.Equal(healthy.Key().String(), result.Index[0].Key)
	ass.Len(result.Rows, 2)
}

func TestRunCooldownTimeoutSkipsConfiguration(t *testing.T) {
	ass := require.New(t)

	exec := &scriptedExecutor{functions: []string{"figlet"}}
	exec.successRate = 1.0

	r := newTestRunner(t, []confspace.Candidate{candidate("figlet", 10)}, exec, &fakeMemory{}, "figlet")
	r.Cooldown = &fakeCooldown{err: errors.New("system not idle")}

	result, err := r.Run()
	ass.NoError(err)

	ass.Zero(exec.calls)
	ass.Len(result.Skipped, 1)
	ass.Equal(ReasonCooldown, result.Skipped[0].Reason)
	ass.Empty(result.Index)
}

func TestRunMemoryIngestFailureIsSwallowed(t *testing.T) {
	ass := require.New(t)

	exec := &scriptedExecutor{functions: []string{"figlet"}}
	exec.successRate = 1.0
	mem := &fakeMemory{ingestErr: errors.New("disk full")}

	r := newTestRunner(t, []confspace.Candidate{candidate("figlet", 10)}, exec, mem, "figlet")

	result, err := r.Run()
	ass.NoError(err)

	// Losing memory events degrades learning, never the run itself.
	ass.Len(result.Rows, 2)
	ass.Len(result.Index, 1)
}

func TestRunBaselineFailureIsFatal(t *testing.T) {
	ass := require.New(t)

	exec := &scriptedExecutor{functions: []string{"figlet"}}
	r := newTestRunner(t, []confspace.Candidate{candidate("figlet", 10)}, exec, &fakeMemory{}, "figlet")
	r.Collector = &fakeCollector{err: errors.New("prometheus unreachable")}

	_, err := r.Run()
	ass.Error(err)
	ass.Zero(exec.calls)
}

func TestRunSkipsSeenFromMemory(t *testing.T) {
	ass := require.New(t)

	cand := candidate("figlet", 10)
	exec := &scriptedExecutor{functions: []string{"figlet"}}
	exec.successRate = 1.0
	mem := &fakeMemory{seen: map[string]bool{cand.Key().String(): true}}

	r := newTestRunner(t, []confspace.Candidate{cand}, exec, mem, "figlet")

	result, err := r.Run()
	ass.NoError(err)

	// The scheduler never proposes configurations the memory has seen. No
	// skipped row is recorded: the candidate was not in the batch at all.
	ass.Zero(exec.calls)
	ass.Empty(result.Rows)
	ass.Empty(result.Skipped)
}
