// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package fnspec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeWorkload(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "workload.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewValidation(t *testing.T) {
	ass := require.New(t)

	spec, err := New("figlet", "post", "body", nil, nil)
	ass.NoError(err)
	// The method is uppercased and nil headers become an empty map.
	ass.Equal("POST", spec.Method)
	ass.NotNil(spec.Headers)

	_, err = New("", "GET", "", nil, nil)
	ass.Error(err)

	_, err = New("figlet", "PATCH", "", nil, nil)
	ass.Error(err)

	negative := -1
	_, err = New("figlet", "GET", "", nil, &negative)
	ass.Error(err)
}

func TestLoadWorkload(t *testing.T) {
	ass := require.New(t)

	path := writeWorkload(t, `
functions:
  - name: shasum
    method: POST
    body: "data"
  - name: figlet
    method: get
    max_rate: 50
    headers:
      X-Test: "1"
`)

	specs, err := LoadWorkload(path)
	ass.NoError(err)
	ass.Len(specs, 2)

	// Sorted by name.
	ass.Equal("figlet", specs[0].Name)
	ass.Equal("GET", specs[0].Method)
	ass.NotNil(specs[0].MaxRate)
	ass.Equal(50, *specs[0].MaxRate)
	ass.Equal("1", specs[0].Headers["X-Test"])

	ass.Equal("shasum", specs[1].Name)
	ass.Nil(specs[1].MaxRate)

	ass.Equal([]string{"figlet", "shasum"}, Names(specs))
	ass.Equal("shasum", ByName(specs)["shasum"].Name)
}

func TestLoadWorkloadDuplicateNames(t *testing.T) {
	ass := require.New(t)

	path := writeWorkload(t, `
functions:
  - name: figlet
    method: GET
  - name: figlet
    method: POST
`)

	_, err := LoadWorkload(path)
	ass.Error(err)
	ass.Contains(err.Error(), "duplicate")
}

func TestLoadWorkloadEmpty(t *testing.T) {
	ass := require.New(t)

	_, err := LoadWorkload(writeWorkload(t, "functions: []"))
	ass.Error(err)
}
