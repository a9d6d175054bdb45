// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package memory

import (
	"fmt"
	"time"

	"github.com/unimib-datAI/faasweep/sweeper/confspace"
	"github.com/unimib-datAI/faasweep/sweeper/logging"
)

// Update cadences of the policy algorithm.
const (
	ModeOnline     = "online"
	ModeMicroBatch = "micro-batch"
)

// EngineConfig holds the construction parameters of the memory engine.
type EngineConfig struct {
	Path          string
	SchemaVersion string

	// PreloadDir, when set, is a core-tables checkpoint imported at startup.
	PreloadDir string

	// Mode selects the policy update cadence. Micro-batch flushes when
	// BatchSize events accumulated or BatchWindow elapsed since the first
	// buffered event, whichever comes first. The window is only checked when
	// an event is ingested: in a quiet stretch an expired window flushes on
	// the next event, Checkpoint or Close, not on a timer.
	Mode        string
	BatchSize   int
	BatchWindow time.Duration
}

// Engine composes the persistent store, the tensor cache and the policy
// algorithm. It is owned and driven by the single orchestrator goroutine; no
// internal locking.
type Engine struct {
	cfg    EngineConfig
	policy Algorithm

	store *Store
	cache *TensorCache
	seen  map[string]bool

	pending      []Event
	pendingSince time.Time
}

// NewEngine builds an engine. Startup must be called before use.
func NewEngine(cfg EngineConfig, policy Algorithm) (*Engine, error) {
	switch cfg.Mode {
	case ModeOnline, ModeMicroBatch:
	default:
		return nil, fmt.Errorf("unknown policy update mode %q", cfg.Mode)
	}
	if cfg.Mode == ModeMicroBatch && cfg.BatchSize <= 0 && cfg.BatchWindow <= 0 {
		return nil, fmt.Errorf("micro-batch mode needs a batch size or a batch window")
	}

	return &Engine{
		cfg:    cfg,
		policy: policy,
		cache:  NewTensorCache(),
		seen:   map[string]bool{},
	}, nil
}

// Startup opens (or creates) the store, optionally preloads a core-tables
// checkpoint and rebuilds the in-memory seen-key set from the store.
func (e *Engine) Startup() error {
	store, err := OpenStore(e.cfg.Path, e.cfg.SchemaVersion)
	if err != nil {
		return err
	}
	e.store = store

	if e.cfg.PreloadDir != "" {
		if err := e.preloadCheckpoint(e.cfg.PreloadDir); err != nil {
			e.store.Close()
			e.store = nil
			return err
		}
	}

	keys, err := e.store.SeenKeys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		e.seen[key.String()] = true
	}

	logging.Logger().Infof("Execution memory started with %d seen configurations", len(e.seen))
	return nil
}

// RecordSession registers this run in the session log.
func (e *Engine) RecordSession(runID, gateway, strategy string) error {
	if e.store == nil {
		return fmt.Errorf("memory engine not started")
	}
	return e.store.RecordSession(runID, gateway, strategy, time.Now())
}

// IsSeen reports whether the configuration has been executed before, in this
// run or a previous one.
func (e *Engine) IsSeen(key confspace.Key) bool {
	return e.seen[key.String()]
}

// SeenSet returns the seen keys as a set of canonical strings. The scheduler
// consumes this shape.
func (e *Engine) SeenSet() map[string]bool {
	out := make(map[string]bool, len(e.seen))
	for k := range e.seen {
		out[k] = true
	}
	return out
}

// IngestEvent persists the event, feeds the tensor cache, marks the key seen
// and drives the policy with the configured cadence. Ingesting a duplicate
// event is a no-op on the store but still refreshes the cache.
func (e *Engine) IngestEvent(ev Event) error {
	if e.store == nil {
		return fmt.Errorf("memory engine not started")
	}

	if err := e.store.UpsertConfig(ev.ConfigID, ev.Key); err != nil {
		return err
	}
	if _, err := e.store.InsertEvent(ev); err != nil {
		return err
	}
	if len(ev.RawSummary) > 0 {
		if err := e.store.InsertRawSummary(ev); err != nil {
			return err
		}
	}

	e.cache.Put(ev.Key, ev.Row)
	e.seen[ev.Key.String()] = true

	switch e.cfg.Mode {
	case ModeOnline:
		if err := e.policy.UpdateOnline(ev); err != nil {
			return err
		}
		return e.store.RecordPolicyUpdate(ev.RunID, e.policy.Name(), ModeOnline, 1)
	case ModeMicroBatch:
		if len(e.pending) == 0 {
			e.pendingSince = time.Now()
		}
		e.pending = append(e.pending, ev)
		if e.batchReady() {
			return e.flushBatch()
		}
	}
	return nil
}

func (e *Engine) batchReady() bool {
	if e.cfg.BatchSize > 0 && len(e.pending) >= e.cfg.BatchSize {
		return true
	}
	if e.cfg.BatchWindow > 0 && time.Since(e.pendingSince) >= e.cfg.BatchWindow {
		return true
	}
	return false
}

// flushBatch hands the accumulated events to the policy and resets the
// buffer.
func (e *Engine) flushBatch() error {
	if len(e.pending) == 0 {
		return nil
	}

	batch := e.pending
	e.pending = nil

	if err := e.policy.UpdateBatch(batch); err != nil {
		return err
	}
	return e.store.RecordPolicyUpdate(batch[0].RunID, e.policy.Name(), ModeMicroBatch, len(batch))
}

// Checkpoint flushes any pending micro-batch and exports the core tables to
// coreDir and the debug tables to debugDir. Either directory may be empty to
// skip that export; debug data never enters the core checkpoint.
func (e *Engine) Checkpoint(coreDir, debugDir string) error {
	if e.store == nil {
		return fmt.Errorf("memory engine not started")
	}

	if err := e.flushBatch(); err != nil {
		return err
	}

	if coreDir != "" {
		if err := e.exportCore(coreDir); err != nil {
			return err
		}
	}
	if debugDir != "" {
		if err := e.exportDebug(debugDir); err != nil {
			return err
		}
	}
	return nil
}

// Cache exposes the tensor cache.
func (e *Engine) Cache() *TensorCache {
	return e.cache
}

// Policy exposes the configured policy algorithm.
func (e *Engine) Policy() Algorithm {
	return e.policy
}

// Close tears the engine down. Pending micro-batches are flushed first.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	if err := e.flushBatch(); err != nil {
		logging.Logger().Warnf("Failed to flush the pending policy batch on close: %v", err)
	}
	err := e.store.Close()
	e.store = nil
	return err
}
