// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package constants

// This package contains only some constants shared across the sweeper.

const (
	// SchemaVersion is the version label written into (and required from)
	// every execution-memory store and checkpoint.
	SchemaVersion = "1"

	// MinReplicasBusy is the replica count at which a function is considered
	// still scaled up; cooldown waits until every function is below it.
	MinReplicasBusy = 2
)

// AllowedMethods is the HTTP method allow-list for function specs.
var AllowedMethods = []string{"GET", "POST", "PUT", "DELETE"}

// IsAllowedMethod reports whether method is in the allow-list.
func IsAllowedMethod(method string) bool {
	for _, m := range AllowedMethods {
		if m == method {
			return true
		}
	}
	return false
}
