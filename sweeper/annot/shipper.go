// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package annot

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/unimib-datAI/faasweep/sweeper/logging"
)

// Shipper batches events to an external endpoint on an independent worker.
// The queue is bounded: when it is full the newest enqueue attempt is dropped
// rather than blocking the producer. Batches flush when FlushSize events
// accumulated or FlushEvery elapsed. Transient send failures are retried with
// exponential backoff up to MaxRetries; 4xx-class failures drop the batch
// without retry.
type Shipper struct {
	Endpoint   string
	FlushSize  int
	FlushEvery time.Duration
	MaxRetries int

	// mu serializes Enqueue against Close: producers may still publish while
	// the shutdown path tears the shipper down, and a send must never race the
	// queue being closed.
	mu     sync.Mutex
	closed bool

	queue  chan Event
	done   chan struct{}
	client *http.Client
}

// NewShipper builds and starts a shipper. queueSize bounds the producer
// queue.
func NewShipper(endpoint string, queueSize, flushSize int, flushEvery time.Duration) *Shipper {
	if queueSize <= 0 {
		queueSize = 256
	}
	if flushSize <= 0 {
		flushSize = 32
	}
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}

	s := &Shipper{
		Endpoint:   endpoint,
		FlushSize:  flushSize,
		FlushEvery: flushEvery,
		MaxRetries: 3,
		queue:      make(chan Event, queueSize),
		done:       make(chan struct{}),
		client:     &http.Client{Timeout: 10 * time.Second},
	}

	go s.run()
	return s
}

// Enqueue offers one event to the shipper. It reports whether the event was
// accepted; a full queue or a closed shipper drops the event.
func (s *Shipper) Enqueue(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		logging.Logger().Debug("Shipper closed, dropping event")
		return false
	}

	select {
	case s.queue <- ev:
		return true
	default:
		logging.Logger().Debug("Shipper queue full, dropping event")
		return false
	}
}

// Close stops the worker after a final flush of whatever is queued. Closing
// twice is a no-op; events enqueued after Close are dropped.
func (s *Shipper) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.queue)
	<-s.done
}

func (s *Shipper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.FlushEvery)
	defer ticker.Stop()

	var batch []Event
	for {
		select {
		case ev, ok := <-s.queue:
			if !ok {
				s.ship(batch)
				return
			}
			batch = append(batch, ev)
			if len(batch) >= s.FlushSize {
				s.ship(batch)
				batch = nil
			}
		case <-ticker.C:
			s.ship(batch)
			batch = nil
		}
	}
}

// ship sends one batch with bounded retries. All failures end up swallowed:
// shipping must never affect the run.
func (s *Shipper) ship(batch []Event) {
	if len(batch) == 0 || s.Endpoint == "" {
		return
	}

	logger := logging.Logger()

	backoff := time.Second
	for attempt := 0; ; attempt++ {
		err := postJSON(s.client, s.Endpoint, batch)
		if err == nil {
			return
		}

		var se *statusError
		if errors.As(err, &se) && se.permanent() {
			logger.Debugf("Shipper got a permanent failure, dropping %d events: %v", len(batch), err)
			return
		}
		if attempt >= s.MaxRetries {
			logger.Debugf("Shipper exhausted retries, dropping %d events: %v", len(batch), err)
			return
		}

		time.Sleep(backoff)
		backoff *= 2
	}
}
