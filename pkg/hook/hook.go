// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hook runs lifecycle scripts and build commands as shell
// subprocesses with inherited stdio and a hard timeout. On timeout the
// whole process tree is killed, not just the shell.
package hook

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/kraklabs/plunk/internal/errors"
)

// DefaultTimeout is the subprocess timeout unless PLUNK_HOOK_TIMEOUT
// (milliseconds) overrides it.
const DefaultTimeout = 60 * time.Second

// Timeout resolves the effective hook timeout.
func Timeout() time.Duration {
	if env := os.Getenv("PLUNK_HOOK_TIMEOUT"); env != "" {
		if ms, err := strconv.Atoi(env); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return DefaultTimeout
}

// Runner executes shell commands in a working directory.
type Runner struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewRunner returns a Runner with the configured timeout.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Timeout: Timeout(), Logger: logger}
}

// Run executes command through the platform shell in dir, streaming its
// output to the current process's stdio. Returns HookFailed on a non-zero
// exit and HookTimeout when the deadline kills it.
func (r *Runner) Run(ctx context.Context, dir, name, command string) error {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := shellCommand(ctx, command)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	setProcessGroup(cmd)

	r.Logger.Info("hook.run", "name", name, "command", command, "dir", dir)
	start := time.Now()
	err := cmd.Start()
	if err != nil {
		return errors.NewError(errors.KindHookFailed,
			"Hook failed to start", fmt.Sprintf("%s: %s", name, command),
			"Check that a shell is available on PATH", err)
	}

	err = cmd.Wait()
	elapsed := time.Since(start)
	if ctx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		return errors.NewError(errors.KindHookTimeout,
			"Hook timed out",
			fmt.Sprintf("%s exceeded %s", name, timeout),
			"Increase PLUNK_HOOK_TIMEOUT (milliseconds) or speed up the script", ctx.Err())
	}
	if err != nil {
		return errors.NewError(errors.KindHookFailed,
			"Hook failed", fmt.Sprintf("%s: %s", name, command),
			"Fix the script and retry", err)
	}
	r.Logger.Info("hook.done", "name", name, "elapsed", elapsed)
	return nil
}
