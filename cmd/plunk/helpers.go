// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/pkg/store"
)

// initLogging installs the process-wide slog handler: warnings by
// default, info with -v, debug with -vv.
func initLogging(globals GlobalFlags) {
	level := slog.LevelWarn
	switch {
	case globals.Verbose >= 2:
		level = slog.LevelDebug
	case globals.Verbose == 1:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// mustCwd returns the current working directory or exits.
func mustCwd(globals GlobalFlags) string {
	cwd, err := os.Getwd()
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot access working directory",
			"Failed to determine current directory path",
			"This is unexpected. Please report this issue if it persists",
			err,
		), globals.JSON)
	}
	return cwd
}

// mustStore opens the per-user store or exits.
func mustStore(globals GlobalFlags) *store.Store {
	s, err := store.Open(slog.Default())
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	return s
}

// resolveDir returns the first positional arg as an absolute directory,
// or the working directory.
func resolveDir(args []string, globals GlobalFlags) string {
	if len(args) > 0 && args[0] != "" {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			errors.FatalError(errors.NewInputError(
				"Invalid directory", args[0], "Pass an existing directory path"), globals.JSON)
		}
		return abs
	}
	return mustCwd(globals)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, for the
// watch loops.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
