// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

// This package provides the concrete policy algorithms driven by the memory
// engine. It is implemented using a modular approach: a new policy can be
// added by defining a factory type and a policy type.
package policy

import (
	"github.com/unimib-datAI/faasweep/sweeper/confspace"
	"github.com/unimib-datAI/faasweep/sweeper/logging"
	"github.com/unimib-datAI/faasweep/sweeper/memory"
)

// Policy names recognized by the factory.
const (
	NoopPolicy = "noop"
)

// policyFactory is the interface which represents a generic policy factory.
// Every factory for new policies must implement this interface.
type policyFactory interface {
	createPolicy() memory.Algorithm
}

//////////////////// NOOP POLICY ////////////////////

// Noop is the default pass-through policy: it keeps the proposed batch as-is
// and learns nothing.
type Noop struct{}

func (p *Noop) ChooseBatch(candidates []confspace.Candidate, desired int) []confspace.Candidate {
	if desired < len(candidates) {
		return candidates[:desired]
	}
	return candidates
}

func (p *Noop) UpdateOnline(event memory.Event) error { return nil }

func (p *Noop) UpdateBatch(events []memory.Event) error { return nil }

func (p *Noop) Name() string { return NoopPolicy }

type noopPolicyFactory struct{}

func (f *noopPolicyFactory) createPolicy() memory.Algorithm {
	return &Noop{}
}

//////////////////// FACTORY ////////////////////

// New returns the policy registered under the given name. An unknown name
// logs a warning and falls back to the noop policy.
func New(name string) memory.Algorithm {
	var factory policyFactory

	switch name {
	default:
		logging.Logger().Warnf("No policy named %q found, using the noop policy by default", name)
		fallthrough
	case NoopPolicy, "":
		factory = &noopPolicyFactory{}
	}

	return factory.createPolicy()
}
