// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package sweeper

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/unimib-datAI/faasweep/sweeper/annot"
	"github.com/unimib-datAI/faasweep/sweeper/confspace"
	"github.com/unimib-datAI/faasweep/sweeper/config"
	"github.com/unimib-datAI/faasweep/sweeper/constants"
	"github.com/unimib-datAI/faasweep/sweeper/cooldown"
	"github.com/unimib-datAI/faasweep/sweeper/fnspec"
	"github.com/unimib-datAI/faasweep/sweeper/httpserver"
	"github.com/unimib-datAI/faasweep/sweeper/infogath/gateway"
	"github.com/unimib-datAI/faasweep/sweeper/infogath/promq"
	"github.com/unimib-datAI/faasweep/sweeper/loadgen"
	"github.com/unimib-datAI/faasweep/sweeper/logging"
	"github.com/unimib-datAI/faasweep/sweeper/memory"
	"github.com/unimib-datAI/faasweep/sweeper/policy"
	"github.com/unimib-datAI/faasweep/sweeper/rates"
	"github.com/unimib-datAI/faasweep/sweeper/results"
	"github.com/unimib-datAI/faasweep/sweeper/runner"
	"github.com/unimib-datAI/faasweep/sweeper/scheduler"
)

//////////////////// PRIVATE FUNCTIONS ////////////////////

// buildRateStrategy builds the rate-generation strategy selected in the
// configuration.
func buildRateStrategy(config config.Configuration) (rates.Strategy, error) {
	switch config.RateStrategy {
	case "linear", "":
		return rates.NewLinear(config.RateMin, config.RateMax, config.RateStep)
	case "random":
		return rates.NewRandom(config.RateMin, config.RateMax, config.RateCount, config.RateSeed)
	case "exponential":
		return rates.NewExponential(config.RateBase, config.RateMinPower, config.RateMaxPower, config.RateCap)
	case "custom":
		return rates.NewCustom(config.RateList)
	default:
		return nil, fmt.Errorf("unknown rate strategy %q", config.RateStrategy)
	}
}

// cooldownSampler adapts the metrics collector and the gateway client to the
// cooldown manager's sampling seam. Snapshots are always instant.
type cooldownSampler struct {
	collector *promq.Collector
	gateway   *gateway.Client
	window    time.Duration
}

func (s *cooldownSampler) NodeSnapshot() (promq.NodeSnapshot, error) {
	return s.collector.GetNodeSnapshot(s.window, nil, nil)
}

func (s *cooldownSampler) ReplicaCounts() (map[string]int, error) {
	return s.gateway.ReplicaCounts()
}

// runSweeper is the main function to be called once we got some very basic
// setup, such as parsed CLI flags and a usable logger.
func runSweeper(config config.Configuration) error {
	// Obtain the global logger object
	logger := logging.Logger()

	runID := uuid.NewString()

	////////// WORKLOAD AND CONFIGURATION SPACE //////////

	specs, err := fnspec.LoadWorkload(config.WorkloadFile)
	if err != nil {
		return err
	}
	names := fnspec.Names(specs)

	strategy, err := buildRateStrategy(config)
	if err != nil {
		return errors.Wrap(err, "Error while building the rate strategy")
	}
	logger.Infof("Rate strategy: %s", strategy.Description())

	caps := map[string]int{}
	for _, spec := range specs {
		if spec.MaxRate != nil {
			caps[spec.Name] = *spec.MaxRate
		}
	}

	candidates := confspace.BuildSpace(names, strategy, config.MinFunctions, config.MaxFunctions, caps)
	logger.Infof("Configuration space: %d functions, %d candidates", len(names), len(candidates))

	////////// INFORMATION GATHERING //////////

	queries, err := promq.LoadQuerySet(config.QueriesFile, config.PowerMetrics)
	if err != nil {
		return err
	}

	promClient := &promq.Client{Hostname: config.PrometheusHost, Port: config.PrometheusPort}
	collector := &promq.Collector{
		Client:        promClient,
		Queries:       queries,
		RetryBudget:   config.MetricsRetryBudget,
		SleepInterval: config.MetricsSleepInterval,
		RangeStep:     config.MetricsRangeStep,
		PidPattern:    config.PidPattern,
		PowerEnabled:  config.PowerMetrics,
	}

	gatewayClient := &gateway.Client{
		Hostname: config.GatewayHost,
		Port:     config.GatewayPort,
		Username: config.GatewayUser,
		Password: config.GatewayPass,
	}

	// Every function of the workload must actually be deployed.
	deployed, err := gatewayClient.FunctionNames()
	if err != nil {
		return errors.Wrap(err, "Error while listing the deployed functions")
	}
	deployedSet := map[string]bool{}
	for _, name := range deployed {
		deployedSet[name] = true
	}
	for _, name := range names {
		if !deployedSet[name] {
			return fmt.Errorf("function %q from the workload file is not deployed on the gateway", name)
		}
	}

	////////// COOLDOWN //////////

	cooldownMgr := &cooldown.Manager{
		Sampler: &cooldownSampler{
			collector: collector,
			gateway:   gatewayClient,
			window:    config.TestDuration,
		},
		SleepStep:        config.CooldownSleepStep,
		MaxWait:          config.CooldownMaxWait,
		IdleThresholdPct: config.IdleThresholdPct,
	}

	////////// LOAD GENERATION //////////

	var shell loadgen.Shell
	if config.RemoteHost != "" {
		shell = &loadgen.SSHShell{Host: config.RemoteHost}
		logger.Infof("Load tool runs remotely on %s", config.RemoteHost)
	} else {
		shell = &loadgen.LocalShell{}
	}

	executor := &loadgen.Executor{
		Shell:        shell,
		Binary:       config.LoadToolBinary,
		WorkDir:      config.WorkDir,
		OutputSinks:  config.OutputSinks,
		Tags:         config.LoadTags,
		StreamOutput: config.StreamOutput,
	}

	////////// EXECUTION MEMORY //////////

	mode := config.PolicyMode
	if mode == "" {
		mode = memory.ModeOnline
	}
	engine, err := memory.NewEngine(memory.EngineConfig{
		Path:          config.MemoryPath,
		SchemaVersion: constants.SchemaVersion,
		PreloadDir:    config.CheckpointPreload,
		Mode:          mode,
		BatchSize:     config.PolicyBatchSize,
		BatchWindow:   config.PolicyBatchWindow,
	}, policy.New(config.PolicyName))
	if err != nil {
		return errors.Wrap(err, "Error while building the execution memory engine")
	}
	if err := engine.Startup(); err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.RecordSession(runID, config.GatewayHost, strategy.Description()); err != nil {
		logger.Warnf("Failed to record the run session: %v", err)
	}

	////////// ANNOTATIONS //////////

	hostname, _ := os.Hostname()
	annotations := annot.NewPublisher(config.AnnotationEndpoint, runID, hostname)
	if config.ShipperEndpoint != "" {
		shipper := annot.NewShipper(
			config.ShipperEndpoint,
			config.ShipperQueueSize,
			config.ShipperFlushSize,
			config.ShipperFlushEvery,
		)
		annotations.Shipper = shipper
		defer shipper.Close()
	}

	////////// HTTPSERVER INITIALIZATION //////////

	httpserver.Initialize(config)

	////////// RUNNER //////////

	debugCheckpointDir := ""
	if config.DebugMode {
		debugCheckpointDir = filepath.Join(config.OutputDir, "checkpoint_debug")
	}

	run := &runner.Runner{
		Opts: runner.Options{
			RunID:        runID,
			OutputDir:    config.OutputDir,
			Iterations:   config.Iterations,
			Repetition:   config.Repetition,
			TestDuration: config.TestDuration,
			Script: loadgen.ScriptOptions{
				GatewayURL:   fmt.Sprintf("http://%s:%d", config.GatewayHost, config.GatewayPort),
				DurationSecs: int(config.TestDuration.Seconds()),
				MaxVUs:       config.MaxVUs,
			},
			Thresholds: results.Thresholds{
				FunctionSuccessFloor: config.FunctionSuccessFloor,
				NodeSuccessFloor:     config.NodeSuccessFloor,
				ReplicaOverload:      config.ReplicaOverload,
				NodeCPUCapacityPct:   config.NodeCPUCapacityPct,
				NodeRAMThresholdPct:  config.NodeRAMThresholdPct,
			},
			CheckpointDir:      filepath.Join(config.OutputDir, "checkpoint"),
			DebugCheckpointDir: debugCheckpointDir,
		},
		Specs:        fnspec.ByName(specs),
		AllFunctions: names,
		Candidates:   candidates,
		Scheduler:    scheduler.New(config.SchedulerName),
		Policy:       engine.Policy(),
		Cooldown:     cooldownMgr,
		Collector:    collector,
		Replicas:     gatewayClient,
		Executor:     executor,
		Memory:       engine,
		Annotations:  annotations,
	}

	////////// GOROUTINES //////////

	chanStop := make(chan os.Signal, 1)
	signal.Notify(chanStop, syscall.SIGINT, syscall.SIGTERM)

	chanErr := make(chan error, 1)

	go func() { chanErr <- httpserver.RunHttpServer() }()

	go func() {
		_, err := run.Run()
		chanErr <- err
	}()

	select {
	case sig := <-chanStop:
		logger.Warn("Caught " + sig.String() + " signal. Stopping.")
		return nil
	case err = <-chanErr:
		return err
	}
}

//////////////////// MAIN FUNCTION ////////////////////

func Main() {
	// Load configuration.
	_config, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	// Setup logging engine.
	logger, err := logging.Initialize(_config.DateTime, _config.DebugMode, _config.LogColors)
	if err != nil {
		log.Fatal(err)
	}

	// Run the sweeper.
	logger.Debugf("Running sweeper with configuration: %+v", _config)
	if err := runSweeper(_config); err != nil {
		logger.Fatal(err)
	}
}
