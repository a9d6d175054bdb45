// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package loadgen

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Shell abstracts where the load test runs: the local filesystem and process
// table, or a remote host reached over ssh.
type Shell interface {
	// WriteFile writes data to path, creating parent directories.
	WriteFile(path string, data []byte) error

	// ReadFile reads path back.
	ReadFile(path string) ([]byte, error)

	// Run executes the command, wiring the given stdout/stderr writers.
	Run(stdout, stderr io.Writer, name string, args ...string) error
}

//////////////////// LOCAL SHELL ////////////////////

// LocalShell runs everything on the local host.
type LocalShell struct{}

func (s *LocalShell) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "Error while creating the working directory")
	}
	return os.WriteFile(path, data, 0644)
}

func (s *LocalShell) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (s *LocalShell) Run(stdout, stderr io.Writer, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

//////////////////// SSH SHELL ////////////////////

// SSHShell runs everything on a remote host by piping scripts into
// "ssh <host> bash -s". The host must be reachable non-interactively.
type SSHShell struct {
	Host string
}

func (s *SSHShell) bash(stdin string, stdout, stderr io.Writer) error {
	cmd := exec.Command("ssh", "-o", "StrictHostKeyChecking=no", s.Host, "bash", "-s")
	cmd.Stdin = bytes.NewBufferString(stdin)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

func (s *SSHShell) WriteFile(path string, data []byte) error {
	var script strings.Builder
	script.WriteString("set -e\n")
	script.WriteString(fmt.Sprintf("mkdir -p %q\n", filepath.Dir(path)))
	script.WriteString(fmt.Sprintf("cat <<'FAASWEEP_EOF' > %q\n%s\nFAASWEEP_EOF\n", path, string(data)))

	if err := s.bash(script.String(), nil, os.Stderr); err != nil {
		return fmt.Errorf("failed to write %s on %s: %w", path, s.Host, err)
	}
	return nil
}

func (s *SSHShell) ReadFile(path string) ([]byte, error) {
	var out bytes.Buffer
	if err := s.bash(fmt.Sprintf("cat %q\n", path), &out, os.Stderr); err != nil {
		return nil, fmt.Errorf("failed to read %s on %s: %w", path, s.Host, err)
	}
	return out.Bytes(), nil
}

func (s *SSHShell) Run(stdout, stderr io.Writer, name string, args ...string) error {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, fmt.Sprintf("%q", name))
	for _, a := range args {
		parts = append(parts, fmt.Sprintf("%q", a))
	}
	return s.bash(strings.Join(parts, " ")+"\n", stdout, stderr)
}
