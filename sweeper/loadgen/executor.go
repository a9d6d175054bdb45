// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package loadgen

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/unimib-datAI/faasweep/sweeper/logging"
)

// ExecError marks a failed load-test execution. It is a per-configuration
// failure: the orchestrator skips the remaining iterations of the current
// configuration and continues with the next one.
type ExecError struct {
	Reason string
	Err    error
}

func (e *ExecError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("load execution failed: %s", e.Reason)
	}
	return fmt.Sprintf("load execution failed: %s: %v", e.Reason, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Executor writes the generated script through a Shell and invokes the
// external load-test binary on it.
type Executor struct {
	Shell  Shell
	Binary string

	// WorkDir is where scripts and summaries are written, on whichever host
	// the Shell points at.
	WorkDir string

	// OutputSinks are passed through as repeated --out flags.
	OutputSinks []string

	// Tags are passed through as repeated --tag flags, already in k=v form.
	Tags []string

	// StreamOutput mirrors the tool's stdout/stderr to our own.
	StreamOutput bool
}

// Execute writes the script, runs the tool with a summary-export flag and
// reads the JSON summary back. Every failure path (non-zero exit, transport
// failure, missing summary) returns an ExecError.
func (e *Executor) Execute(configID string, iteration int, script string) ([]byte, error) {
	logger := logging.Logger()

	scriptPath := path.Join(e.WorkDir, fmt.Sprintf("load_%s.js", configID))
	summaryPath := path.Join(e.WorkDir, fmt.Sprintf("summary_%s_%d.json", configID, iteration))

	if err := e.Shell.WriteFile(scriptPath, []byte(script)); err != nil {
		return nil, &ExecError{Reason: "writing the load script", Err: err}
	}

	args := []string{"run", "--summary-export", summaryPath}
	for _, sink := range e.OutputSinks {
		args = append(args, "--out", sink)
	}
	for _, tag := range e.Tags {
		args = append(args, "--tag", tag)
	}
	args = append(args, scriptPath)

	var stdout, stderr io.Writer
	var captured bytes.Buffer
	stdout, stderr = &captured, &captured
	if e.StreamOutput {
		stdout = io.MultiWriter(&captured, os.Stdout)
		stderr = io.MultiWriter(&captured, os.Stderr)
	}

	logger.Debugf("Running load test: %s %v", e.Binary, args)
	if err := e.Shell.Run(stdout, stderr, e.Binary, args...); err != nil {
		logger.Debugf("Load tool output:\n%s", captured.String())
		return nil, &ExecError{Reason: "load tool exited with an error", Err: err}
	}

	summary, err := e.Shell.ReadFile(summaryPath)
	if err != nil {
		return nil, &ExecError{Reason: "reading back the summary artifact", Err: err}
	}
	if len(summary) == 0 {
		return nil, &ExecError{Reason: "summary artifact is empty"}
	}

	return summary, nil
}
