// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package runner

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/unimib-datAI/faasweep/sweeper/confspace"
)

// IndexRow marks one completed configuration in the on-disk index. The index
// is what makes interrupted runs resumable and carries the overload marks the
// dominance pruning feeds on.
type IndexRow struct {
	ConfigID   string           `json:"config_id"`
	Key        string           `json:"key"`
	Pairs      []confspace.Pair `json:"pairs"`
	Overloaded bool             `json:"overloaded"`
}

const indexFileName = "index.jsonl"

// loadIndex reads the index rows of a previous run from the output location.
// A missing index file simply means a fresh run.
func loadIndex(outputDir string) ([]IndexRow, error) {
	f, err := os.Open(filepath.Join(outputDir, indexFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Error while opening the run index")
	}
	defer f.Close()

	var rows []IndexRow
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row IndexRow
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, errors.Wrap(err, "Error while decoding a run index row")
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "Error while reading the run index")
	}

	return rows, nil
}

// appendIndex appends one row to the on-disk index.
func appendIndex(outputDir string, row IndexRow) error {
	f, err := os.OpenFile(
		filepath.Join(outputDir, indexFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "Error while opening the run index for appending")
	}
	defer f.Close()

	data, err := json.Marshal(row)
	if err != nil {
		return errors.Wrap(err, "Error while encoding a run index row")
	}

	_, err = f.Write(append(data, '\n'))
	return errors.Wrap(err, "Error while appending to the run index")
}
