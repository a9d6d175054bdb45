// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

// This package generates the request-rate axis of the configuration space.
// Each strategy variant validates its parameters at construction and produces
// a sorted, deduplicated list of non-negative integer rates.
package rates

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// Strategy is the rate-generation seam. Every variant produces the same rates
// on every call.
type Strategy interface {
	// GenerateRates returns the sorted unique non-negative rates.
	GenerateRates() []int

	// Description returns a short human-readable label for logging and
	// annotations.
	Description() string
}

//////////////////// LINEAR ////////////////////

// Linear generates min, min+step, ... up to and including max.
type Linear struct {
	min, max, step int
}

func NewLinear(min, max, step int) (*Linear, error) {
	if min < 0 {
		return nil, errors.New("linear rate strategy: min must be non-negative")
	}
	if min > max {
		return nil, fmt.Errorf("linear rate strategy: min %d greater than max %d", min, max)
	}
	if step <= 0 {
		return nil, errors.New("linear rate strategy: step must be positive")
	}
	return &Linear{min: min, max: max, step: step}, nil
}

func (s *Linear) GenerateRates() []int {
	var out []int
	for r := s.min; r <= s.max; r += s.step {
		out = append(out, r)
	}
	return dedupSorted(out)
}

func (s *Linear) Description() string {
	return fmt.Sprintf("linear(min=%d,max=%d,step=%d)", s.min, s.max, s.step)
}

//////////////////// RANDOM ////////////////////

// Random generates count rates drawn uniformly from [min, max]. The same seed
// always yields the same rates.
type Random struct {
	min, max, count int
	seed            int64
}

func NewRandom(min, max, count int, seed int64) (*Random, error) {
	if min < 0 {
		return nil, errors.New("random rate strategy: min must be non-negative")
	}
	if min > max {
		return nil, fmt.Errorf("random rate strategy: min %d greater than max %d", min, max)
	}
	if count <= 0 {
		return nil, errors.New("random rate strategy: count must be positive")
	}
	return &Random{min: min, max: max, count: count, seed: seed}, nil
}

func (s *Random) GenerateRates() []int {
	rng := rand.New(rand.NewSource(s.seed))
	out := make([]int, 0, s.count)
	for i := 0; i < s.count; i++ {
		out = append(out, s.min+rng.Intn(s.max-s.min+1))
	}
	return dedupSorted(out)
}

func (s *Random) Description() string {
	return fmt.Sprintf("random(min=%d,max=%d,count=%d,seed=%d)", s.min, s.max, s.count, s.seed)
}

//////////////////// EXPONENTIAL ////////////////////

// Exponential generates base^p for p in [minPower, maxPower], optionally
// capped at maxRate (0 means no cap).
type Exponential struct {
	base, minPower, maxPower, maxRate int
}

func NewExponential(base, minPower, maxPower, maxRate int) (*Exponential, error) {
	if base < 2 {
		return nil, errors.New("exponential rate strategy: base must be at least 2")
	}
	if minPower < 0 {
		return nil, errors.New("exponential rate strategy: min_power must be non-negative")
	}
	if minPower > maxPower {
		return nil, fmt.Errorf("exponential rate strategy: min_power %d greater than max_power %d", minPower, maxPower)
	}
	if maxRate < 0 {
		return nil, errors.New("exponential rate strategy: max_rate must be non-negative")
	}
	return &Exponential{base: base, minPower: minPower, maxPower: maxPower, maxRate: maxRate}, nil
}

func (s *Exponential) GenerateRates() []int {
	var out []int
	value := 1
	for p := 0; p <= s.maxPower; p++ {
		if p >= s.minPower {
			r := value
			if s.maxRate > 0 && r > s.maxRate {
				r = s.maxRate
			}
			out = append(out, r)
		}
		// Higher powers would overflow int; every rate past this point is
		// unrepresentable, so stop here.
		if value > math.MaxInt/s.base {
			break
		}
		value *= s.base
	}
	return dedupSorted(out)
}

func (s *Exponential) Description() string {
	return fmt.Sprintf("exponential(base=%d,min_power=%d,max_power=%d,max_rate=%d)",
		s.base, s.minPower, s.maxPower, s.maxRate)
}

//////////////////// CUSTOM ////////////////////

// Custom carries an explicit rate list.
type Custom struct {
	rates []int
}

func NewCustom(list []int) (*Custom, error) {
	if len(list) == 0 {
		return nil, errors.New("custom rate strategy: rate list must not be empty")
	}
	for _, r := range list {
		if r < 0 {
			return nil, fmt.Errorf("custom rate strategy: rate %d is negative", r)
		}
	}
	rates := make([]int, len(list))
	copy(rates, list)
	return &Custom{rates: rates}, nil
}

func (s *Custom) GenerateRates() []int {
	return dedupSorted(append([]int(nil), s.rates...))
}

func (s *Custom) Description() string {
	return fmt.Sprintf("custom(%d rates)", len(s.rates))
}

// dedupSorted sorts the rates ascending and removes duplicates in place.
func dedupSorted(rates []int) []int {
	sort.Ints(rates)
	out := rates[:0]
	for _, r := range rates {
		if len(out) == 0 || r != out[len(out)-1] {
			out = append(out, r)
		}
	}
	return out
}
