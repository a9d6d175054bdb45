// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package config

import (
	"flag"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/spf13/viper"
)

// Configuration holds the post-processed configuration values.
type Configuration struct {
	DebugMode bool `mapstructure:"SWEEP_DEBUG"`
	DateTime  bool `mapstructure:"SWEEP_LOG_DATETIME"`
	LogColors bool `mapstructure:"SWEEP_LOG_COLORS"`

	// Gateway through which the functions under test are invoked.
	GatewayHost string `mapstructure:"SWEEP_GATEWAY_HOST"`
	GatewayPort uint   `mapstructure:"SWEEP_GATEWAY_PORT"`
	GatewayUser string `mapstructure:"SWEEP_GATEWAY_USER"`
	GatewayPass string `mapstructure:"SWEEP_GATEWAY_PASS"`

	PrometheusHost string `mapstructure:"SWEEP_PROMETHEUS_HOST"`
	PrometheusPort uint   `mapstructure:"SWEEP_PROMETHEUS_PORT"`

	// Declarative query-definitions file for the metrics collector.
	QueriesFile string `mapstructure:"SWEEP_QUERIES_FILE"`

	// Whether power metrics are collected. Gates the power queries in the
	// query-definitions file.
	PowerMetrics bool `mapstructure:"SWEEP_POWER_METRICS"`

	// Process-name pattern substituted into queries that filter by process.
	PidPattern string `mapstructure:"SWEEP_PID_PATTERN"`

	// YAML file listing the function specs under test.
	WorkloadFile string `mapstructure:"SWEEP_WORKLOAD_FILE"`

	// Rate strategy selection and its per-variant parameters.
	RateStrategy string `mapstructure:"SWEEP_RATE_STRATEGY"`
	RateMin      int    `mapstructure:"SWEEP_RATE_MIN"`
	RateMax      int    `mapstructure:"SWEEP_RATE_MAX"`
	RateStep     int    `mapstructure:"SWEEP_RATE_STEP"`
	RateCount    int    `mapstructure:"SWEEP_RATE_COUNT"`
	RateSeed     int64  `mapstructure:"SWEEP_RATE_SEED"`
	RateBase     int    `mapstructure:"SWEEP_RATE_BASE"`
	RateMinPower int    `mapstructure:"SWEEP_RATE_MIN_POWER"`
	RateMaxPower int    `mapstructure:"SWEEP_RATE_MAX_POWER"`
	RateCap      int    `mapstructure:"SWEEP_RATE_CAP"`
	RateList     []int  `mapstructure:"SWEEP_RATE_LIST"`

	// Combination-size range for the configuration space, upper bound
	// exclusive.
	MinFunctions int `mapstructure:"SWEEP_MIN_FUNCTIONS"`
	MaxFunctions int `mapstructure:"SWEEP_MAX_FUNCTIONS"`

	// Iterations per configuration and nominal duration of one load test.
	Iterations   int           `mapstructure:"SWEEP_ITERATIONS"`
	TestDuration time.Duration `mapstructure:"SWEEP_TEST_DURATION"`

	// Repetition distinguishes repeated sweeps over the same space.
	Repetition int `mapstructure:"SWEEP_REPETITION"`

	CooldownSleepStep time.Duration `mapstructure:"SWEEP_COOLDOWN_SLEEP_STEP"`
	CooldownMaxWait   time.Duration `mapstructure:"SWEEP_COOLDOWN_MAX_WAIT"`
	IdleThresholdPct  float64       `mapstructure:"SWEEP_IDLE_THRESHOLD_PCT"`

	MetricsRetryBudget   time.Duration `mapstructure:"SWEEP_METRICS_RETRY_BUDGET"`
	MetricsSleepInterval time.Duration `mapstructure:"SWEEP_METRICS_SLEEP_INTERVAL"`
	MetricsRangeStep     time.Duration `mapstructure:"SWEEP_METRICS_RANGE_STEP"`

	// Load-test tool invocation.
	LoadToolBinary string   `mapstructure:"SWEEP_LOAD_TOOL_BINARY"`
	RemoteHost     string   `mapstructure:"SWEEP_REMOTE_HOST"`
	WorkDir        string   `mapstructure:"SWEEP_WORK_DIR"`
	OutputSinks    []string `mapstructure:"SWEEP_OUTPUT_SINKS"`
	LoadTags       []string `mapstructure:"SWEEP_LOAD_TAGS"`
	StreamOutput   bool     `mapstructure:"SWEEP_STREAM_OUTPUT"`
	MaxVUs         int      `mapstructure:"SWEEP_MAX_VUS"`

	OutputDir string `mapstructure:"SWEEP_OUTPUT_DIR"`

	// Execution memory engine.
	MemoryPath        string        `mapstructure:"SWEEP_MEMORY_PATH"`
	CheckpointPreload string        `mapstructure:"SWEEP_CHECKPOINT_PRELOAD"`
	PolicyName        string        `mapstructure:"SWEEP_POLICY"`
	PolicyMode        string        `mapstructure:"SWEEP_POLICY_MODE"`
	PolicyBatchSize   int           `mapstructure:"SWEEP_POLICY_BATCH_SIZE"`
	PolicyBatchWindow time.Duration `mapstructure:"SWEEP_POLICY_BATCH_WINDOW"`

	SchedulerName string `mapstructure:"SWEEP_SCHEDULER"`

	// Overload classification thresholds.
	FunctionSuccessFloor float64 `mapstructure:"SWEEP_FUNCTION_SUCCESS_FLOOR"`
	NodeSuccessFloor     float64 `mapstructure:"SWEEP_NODE_SUCCESS_FLOOR"`
	ReplicaOverload      int     `mapstructure:"SWEEP_REPLICA_OVERLOAD"`
	NodeCPUCapacityPct   float64 `mapstructure:"SWEEP_NODE_CPU_CAPACITY_PCT"`
	NodeRAMThresholdPct  float64 `mapstructure:"SWEEP_NODE_RAM_THRESHOLD_PCT"`

	// Best-effort side channels. Empty endpoints disable them.
	AnnotationEndpoint string        `mapstructure:"SWEEP_ANNOTATION_ENDPOINT"`
	ShipperEndpoint    string        `mapstructure:"SWEEP_SHIPPER_ENDPOINT"`
	ShipperQueueSize   int           `mapstructure:"SWEEP_SHIPPER_QUEUE_SIZE"`
	ShipperFlushSize   int           `mapstructure:"SWEEP_SHIPPER_FLUSH_SIZE"`
	ShipperFlushEvery  time.Duration `mapstructure:"SWEEP_SHIPPER_FLUSH_EVERY"`

	HttpServerHost string `mapstructure:"SWEEP_HTTP_SERVER_HOST"`
	HttpServerPort uint   `mapstructure:"SWEEP_HTTP_SERVER_PORT"`
}

// viperBindConfig binds each field of the Configuration struct with its
// corresponding environment variable.
//
// This is necessary because of a bug in the Viper library. See viper's bug
// [188] for more information.
//
// [188]: https://github.com/spf13/viper/issues/188#issuecomment-1273983955
func viperBindConfig() {
	var cfg Configuration

	t := reflect.TypeOf(cfg)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue // Skip field without mapstructure tag.
		}
		// Bind the environment variable.
		_ = viper.BindEnv(tag, tag)
	}
}

// LoadConfig reads configuration from environment variables first, and then
// optionally overwrites with a .env file specified by the --config command
// line argument.
func LoadConfig() (config Configuration, err error) {
	viperBindConfig()

	// Parse command line arguments.
	help := flag.Bool("help", false, "Show help message")
	configPath := flag.String("config", "", "Path to .env file to overwrite env vars")
	flag.Parse()

	if *help {
		fmt.Println("Usage: [--config config.env] [--help]")
		fmt.Println("If --config is provided, values from the file will overwrite environment variables.")
		os.Exit(0)
	}

	viper.AllowEmptyEnv(true)

	// If --config is provided and the file exists, load it and overwrite env
	// vars.
	if *configPath != "" {
		if _, statErr := os.Stat(*configPath); statErr == nil {
			viper.SetConfigFile(*configPath)
			viper.SetConfigType("env")

			// Only overwrite values from the file.
			readErr := viper.ReadInConfig()
			if readErr != nil {
				err = readErr
				return
			}
		} else if !os.IsNotExist(statErr) {
			// If error is not "file does not exist", return statErr
			err = statErr
			return
		}
	}

	err = viper.Unmarshal(&config)
	return
}
