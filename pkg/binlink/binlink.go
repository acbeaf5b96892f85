// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package binlink creates cross-platform executable entry points under
// <consumer>/node_modules/.bin pointing at injected artifacts.
//
// On Unix each entry is a relative symlink to the target script (made
// executable); when symlinking is not permitted a shell wrapper is
// written instead. On Windows a .cmd wrapper plus a POSIX-shell companion
// cover both native shells and the sh-alikes that run there.
package binlink

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/kraklabs/plunk/pkg/fsutil"
	"github.com/kraklabs/plunk/pkg/names"
)

// Create writes one shim per executable in bins ({name: path relative to
// targetDir}) and returns the shim names created, sorted.
func Create(consumerDir, targetDir string, bins map[string]string, logger *slog.Logger) ([]string, error) {
	if len(bins) == 0 {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	binDir := names.BinDir(consumerDir)
	if fsutil.IsDryRun() {
		slog.Info("dry-run: create bin shims", "dir", binDir, "count", len(bins))
		return sortedNames(bins), nil
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return nil, err
	}

	var created []string
	for name, rel := range bins {
		target := filepath.Join(targetDir, filepath.FromSlash(rel))
		if err := createOne(binDir, name, target, logger); err != nil {
			return created, err
		}
		created = append(created, name)
	}
	sort.Strings(created)
	return created, nil
}

// Remove deletes every shim shape for the given executables. Missing
// files are fine.
func Remove(consumerDir string, bins map[string]string) error {
	if len(bins) == 0 {
		return nil
	}
	binDir := names.BinDir(consumerDir)
	if fsutil.IsDryRun() {
		slog.Info("dry-run: remove bin shims", "dir", binDir, "count", len(bins))
		return nil
	}
	for name := range bins {
		for _, path := range []string{
			filepath.Join(binDir, name),
			filepath.Join(binDir, name+".cmd"),
		} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}

func createOne(binDir, name, target string, logger *slog.Logger) error {
	relTarget, err := filepath.Rel(binDir, target)
	if err != nil {
		relTarget = target
	}

	if runtime.GOOS == "windows" {
		return writeWindowsShims(binDir, name, target)
	}

	_ = os.Chmod(target, 0o755)
	link := filepath.Join(binDir, name)
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Symlink(relTarget, link); err != nil {
		if !os.IsPermission(err) {
			return err
		}
		logger.Warn("binlink.symlink_denied", "name", name)
		wrapper := fmt.Sprintf("#!/bin/sh\nexec node \"%s\" \"$@\"\n", relTarget)
		if err := os.WriteFile(link, []byte(wrapper), 0o755); err != nil {
			return err
		}
	}
	return nil
}

func writeWindowsShims(binDir, name, target string) error {
	cmd := fmt.Sprintf("@ECHO off\r\nnode \"%s\" %%*\r\n", target)
	if err := os.WriteFile(filepath.Join(binDir, name+".cmd"), []byte(cmd), 0o755); err != nil {
		return err
	}
	sh := fmt.Sprintf("#!/bin/sh\nexec node \"%s\" \"$@\"\n", filepath.ToSlash(target))
	return os.WriteFile(filepath.Join(binDir, name), []byte(sh), 0o755)
}

func sortedNames(bins map[string]string) []string {
	out := make([]string, 0, len(bins))
	for name := range bins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
