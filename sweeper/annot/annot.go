// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

// This package publishes run annotations and ships event batches to an
// external endpoint. Both channels are best-effort: failures are logged and
// swallowed, never surfaced to the orchestration loop.
package annot

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/unimib-datAI/faasweep/sweeper/logging"
)

// Event kinds published over the side channel.
const (
	KindRunStart     = "run-start"
	KindRunEnd       = "run-end"
	KindConfigChange = "config-change"
	KindOverload     = "overload"
	KindError        = "error"
)

// Event is one fire-and-forget text annotation.
type Event struct {
	RunID      string    `json:"run_id"`
	Component  string    `json:"component"`
	Host       string    `json:"host"`
	Repetition int       `json:"repetition"`
	Kind       string    `json:"kind"`
	Text       string    `json:"text"`
	Time       time.Time `json:"time"`
}

//////////////////// PUBLISHER ////////////////////

// Publisher posts single annotations. A nil Publisher or an empty endpoint
// disables publishing; Publish never blocks the caller. When a Shipper is
// attached, every published event is also offered to it for batched shipping.
type Publisher struct {
	Endpoint string
	RunID    string
	Host     string

	Shipper *Shipper

	client *http.Client
}

func NewPublisher(endpoint, runID, host string) *Publisher {
	return &Publisher{
		Endpoint: endpoint,
		RunID:    runID,
		Host:     host,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Publish sends one annotation in the background. Errors are logged and
// swallowed.
func (p *Publisher) Publish(component, kind, text string, repetition int) {
	if p == nil || (p.Endpoint == "" && p.Shipper == nil) {
		return
	}

	ev := Event{
		RunID:      p.RunID,
		Component:  component,
		Host:       p.Host,
		Repetition: repetition,
		Kind:       kind,
		Text:       text,
		Time:       time.Now(),
	}

	if p.Shipper != nil {
		p.Shipper.Enqueue(ev)
	}

	if p.Endpoint == "" {
		return
	}
	go func() {
		if err := postJSON(p.client, p.Endpoint, ev); err != nil {
			logging.Logger().Debugf("Annotation publish failed (ignored): %v", err)
		}
	}()
}

func postJSON(client *http.Client, endpoint string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := client.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &statusError{Status: resp.StatusCode}
	}
	return nil
}

type statusError struct {
	Status int
}

func (e *statusError) Error() string {
	return http.StatusText(e.Status)
}

// permanent reports whether the failure is a 4xx-class one that retrying
// cannot fix.
func (e *statusError) permanent() bool {
	return e.Status >= 400 && e.Status < 500
}
