// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

// This package waits for the system under test to return to an idle baseline
// between two configurations. It is a small polling state machine with states
// polling, idle and timed-out.
package cooldown

import (
	"fmt"
	"math"
	"time"

	"github.com/unimib-datAI/faasweep/sweeper/constants"
	"github.com/unimib-datAI/faasweep/sweeper/infogath/promq"
	"github.com/unimib-datAI/faasweep/sweeper/logging"
)

// Sampler provides the live telemetry the cooldown decision is based on.
type Sampler interface {
	// NodeSnapshot returns the current node-level metrics. A failure here is
	// a hard failure of the current configuration, not of the whole run.
	NodeSnapshot() (promq.NodeSnapshot, error)

	// ReplicaCounts returns the current replica count per function.
	ReplicaCounts() (map[string]int, error)
}

// TimeoutError is raised when the system does not return to the idle baseline
// within the time budget.
type TimeoutError struct {
	Waited time.Duration
	Max    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("system not idle after %v (budget %v)", e.Waited, e.Max)
}

// Manager polls the sampler until the system is idle again.
type Manager struct {
	Sampler Sampler

	SleepStep        time.Duration
	MaxWait          time.Duration
	IdleThresholdPct float64
}

// WithinThreshold reports whether value is at most baseline plus
// IdleThresholdPct percent of baseline. NaN on either side counts as within:
// missing metrics must not block progress.
func WithinThreshold(value, baseline, pct float64) bool {
	if math.IsNaN(value) || math.IsNaN(baseline) {
		return true
	}
	return value <= baseline+baseline*(pct/100)
}

// WaitForIdle polls every SleepStep until the node metrics are back within
// the idle threshold above baseline and every function of the configuration
// has scaled down. It returns the time spent waiting; exceeding MaxWait
// returns a TimeoutError carrying the waited and maximum durations.
func (m *Manager) WaitForIdle(baseline promq.NodeSnapshot, functions []string) (time.Duration, error) {
	logger := logging.Logger()

	waited := time.Duration(0)
	for {
		snap, err := m.Sampler.NodeSnapshot()
		if err != nil {
			return waited, err
		}

		replicas, err := m.Sampler.ReplicaCounts()
		if err != nil {
			return waited, err
		}

		if m.isIdle(snap, baseline, replicas, functions) {
			logger.Debugf("System idle again after %v", waited)
			return waited, nil
		}

		if waited >= m.MaxWait {
			return waited, &TimeoutError{Waited: waited, Max: m.MaxWait}
		}

		time.Sleep(m.SleepStep)
		waited += m.SleepStep
	}
}

func (m *Manager) isIdle(snap, baseline promq.NodeSnapshot, replicas map[string]int, functions []string) bool {
	if !WithinThreshold(snap.CPUPct, baseline.CPUPct, m.IdleThresholdPct) {
		return false
	}
	if !WithinThreshold(snap.RAM, baseline.RAM, m.IdleThresholdPct) {
		return false
	}
	if !WithinThreshold(snap.Power, baseline.Power, m.IdleThresholdPct) {
		return false
	}

	for _, fn := range functions {
		if replicas[fn] >= constants.MinReplicasBusy {
			return false
		}
	}

	return true
}
