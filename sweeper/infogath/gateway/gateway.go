// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

// This package is for getting the deployed functions and their replica counts
// from the FaaS gateway.
package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

/*
	Example of response from "/system/functions":

	[
		{
			"name": "figlet",
			"image": "functions/figlet:0.13.0",
			"invocationCount": 0,
			"replicas": 1,
			"availableReplicas": 1,
			"labels": {
				"com.openfaas.function": "figlet",
				"function": "true"
			},
			"annotations": null
		}
	]
*/

// funcsReplicasResponse is the structure of a response from
// "/system/functions". This contains only the relevant attributes (it is
// incomplete).
type funcsReplicasResponse []struct {
	Name     string `json:"name"`
	Replicas int    `json:"replicas"`
}

// Client for gathering information from the FaaS gateway.
type Client struct {
	Hostname string
	Port     uint
	Username string
	Password string
}

// doFuncsRequest gets info about functions from "/system/functions".
func (client *Client) doFuncsRequest() ([]byte, error) {
	strURL := fmt.Sprintf("http://%s:%d/system/functions", client.Hostname, client.Port)

	req, err := http.NewRequest("GET", strURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Error while building an HTTP request to /system/functions")
	}
	if client.Username != "" {
		req.SetBasicAuth(client.Username, client.Password)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "Error while performing an HTTP GET request to /system/functions")
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "Error while reading the content of an HTTP response from /system/functions")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %q from /system/functions", resp.Status)
	}

	return body, nil
}

// ReplicaCounts returns, for each deployed function, the number of replicas
// currently running.
func (client *Client) ReplicaCounts() (map[string]int, error) {
	body, err := client.doFuncsRequest()
	if err != nil {
		return nil, err
	}

	var respObj funcsReplicasResponse
	if err := json.Unmarshal(body, &respObj); err != nil {
		return nil, errors.Wrap(err, "Error while deserializing a JSON string from /system/functions")
	}

	result := map[string]int{}
	for _, item := range respObj {
		result[item.Name] = item.Replicas
	}

	return result, nil
}

// FunctionNames returns the deployed function names. Used to check that every
// function of the workload file actually exists behind the gateway.
func (client *Client) FunctionNames() ([]string, error) {
	body, err := client.doFuncsRequest()
	if err != nil {
		return nil, err
	}

	var respObj funcsReplicasResponse
	if err := json.Unmarshal(body, &respObj); err != nil {
		return nil, errors.Wrap(err, "Error while deserializing a JSON string from /system/functions")
	}

	var result []string
	for _, item := range respObj {
		result = append(result, item.Name)
	}

	return result, nil
}
