// Package runner abstracts external process execution so components that
// drive rsync, ssh, openssl, and keytool can be tested against a fake
// that records invocations instead of touching the system.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner executes external binaries.
type Runner interface {
	// Run executes the command, discarding stdout. Stderr is captured
	// and folded into the returned error on failure.
	Run(ctx context.Context, name string, args ...string) error
	// Output executes the command and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// RunInput executes the command with stdin fed from input.
	RunInput(ctx context.Context, input []byte, name string, args ...string) error
}

// RequireBinary verifies the binary is on PATH.
func RequireBinary(name string) error {
	_, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("required binary not found: %s", name)
	}
	return nil
}

// Exec runs commands on the local system.
type Exec struct {
	// Env entries appended to the inherited environment.
	Env map[string]string
}

func (e *Exec) command(ctx context.Context, name string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	for k, v := range e.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	return cmd
}

func (e *Exec) Run(ctx context.Context, name string, args ...string) error {
	cmd := e.command(ctx, name, args)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return wrapExecErr(name, args, err, stderr.Bytes())
	}
	return nil
}

func (e *Exec) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := e.command(ctx, name, args)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, wrapExecErr(name, args, err, stderr.Bytes())
	}
	return stdout.Bytes(), nil
}

func (e *Exec) RunInput(ctx context.Context, input []byte, name string, args ...string) error {
	cmd := e.command(ctx, name, args)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return wrapExecErr(name, args, err, stderr.Bytes())
	}
	return nil
}

func wrapExecErr(name string, args []string, err error, stderr []byte) error {
	msg := strings.TrimSpace(string(stderr))
	if msg != "" {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
	}
	return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
}
