// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

// This package is for communicating with Prometheus. The name of the package
// stands for: PROMetheus Querent.
package promq

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/unimib-datAI/faasweep/sweeper/logging"
)

// ErrEmptyResult is returned when a query succeeds at the transport level but
// carries no samples. It is the only error the collector retries on.
var ErrEmptyResult = errors.New("empty query result")

// Client for querying the Prometheus HTTP API.
type Client struct {
	Hostname string
	Port     uint
}

// doRequest performs an HTTP GET against the given API path with the given
// query parameters and returns the raw body.
func (client *Client) doRequest(apiPath string, params map[string]string) ([]byte, error) {
	logger := logging.Logger()

	strURL := fmt.Sprintf("http://%s:%d%s", client.Hostname, client.Port, apiPath)

	httpClient := &http.Client{}

	req, err := http.NewRequest("GET", strURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building HTTP request: %w", err)
	}

	q := req.URL.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	req.URL.RawQuery = q.Encode()

	logger.Debug("Full URL for Prometheus query: ", req.URL.String())

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing HTTP request: %w", err)
	}
	defer resp.Body.Close()

	logger.Debug("Prometheus query response status: ", resp.Status)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return body, nil
}

// QueryInstant executes an instant query and returns the value of the first
// sample of the result. An empty result yields ErrEmptyResult.
func (client *Client) QueryInstant(query string) (float64, error) {
	body, err := client.doRequest("/api/v1/query", map[string]string{"query": query})
	if err != nil {
		return math.NaN(), err
	}

	var respObj instantResponse
	if err := json.Unmarshal(body, &respObj); err != nil {
		return math.NaN(), fmt.Errorf("Error while deserializing a JSON string from the Prometheus API endpoint: %w", err)
	}

	if len(respObj.Data.Result) == 0 {
		return math.NaN(), ErrEmptyResult
	}

	return sampleValue(respObj.Data.Result[0].Value)
}

// QueryRange executes a range query and returns the time-average of the first
// series of the result. An empty result yields ErrEmptyResult.
func (client *Client) QueryRange(query string, start, end time.Time, step time.Duration) (float64, error) {
	params := map[string]string{
		"query": query,
		"start": strconv.FormatInt(start.Unix(), 10),
		"end":   strconv.FormatInt(end.Unix(), 10),
		"step":  fmt.Sprintf("%.0f", step.Seconds()),
	}

	body, err := client.doRequest("/api/v1/query_range", params)
	if err != nil {
		return math.NaN(), err
	}

	var respObj rangeResponse
	if err := json.Unmarshal(body, &respObj); err != nil {
		return math.NaN(), fmt.Errorf("Error while deserializing a JSON string from the Prometheus API endpoint: %w", err)
	}

	if len(respObj.Data.Result) == 0 || len(respObj.Data.Result[0].Values) == 0 {
		return math.NaN(), ErrEmptyResult
	}

	sum := 0.0
	count := 0
	for _, sample := range respObj.Data.Result[0].Values {
		v, err := sampleValue(sample)
		if err != nil {
			continue
		}
		if !math.IsNaN(v) {
			sum += v
			count++
		}
	}
	if count == 0 {
		return math.NaN(), ErrEmptyResult
	}

	return sum / float64(count), nil
}

// sampleValue extracts the float value from a [timestamp, value] pair. An
// unparseable value becomes NaN, in line with how the rest of the sweeper
// treats missing metrics.
func sampleValue(pair []interface{}) (float64, error) {
	if len(pair) < 2 {
		return math.NaN(), ErrEmptyResult
	}
	str, ok := pair[1].(string)
	if !ok {
		return math.NaN(), ErrEmptyResult
	}
	num, err := strconv.ParseFloat(str, 64)
	if err != nil {
		num = math.NaN()
	}
	return num, nil
}
