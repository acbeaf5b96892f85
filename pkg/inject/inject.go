// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package inject transplants store entries into consumer dependency
// trees: incremental copy into the manager-resolved target, executable
// shim creation, an advisory missing-dependency check, and the
// backup/restore pair used by add/remove.
package inject

import (
	"context"
	"log/slog"
	"os"
	"sort"

	"github.com/kraklabs/plunk/pkg/binlink"
	"github.com/kraklabs/plunk/pkg/fsutil"
	"github.com/kraklabs/plunk/pkg/manifest"
	"github.com/kraklabs/plunk/pkg/names"
	"github.com/kraklabs/plunk/pkg/pm"
	"github.com/kraklabs/plunk/pkg/store"
)

// Options controls one injection.
type Options struct {
	// Force re-copies every file regardless of hash comparison.
	Force bool
}

// Result reports what an injection did.
type Result struct {
	TargetDir   string   `json:"target_dir"`
	Copied      int      `json:"copied"`
	Skipped     int      `json:"skipped"`
	Removed     int      `json:"removed"`
	BinLinks    []string `json:"bin_links,omitempty"`
	MissingDeps []string `json:"missing_deps,omitempty"`
}

// Changed reports whether the consumer's files were altered.
func (r *Result) Changed() bool { return r.Copied > 0 || r.Removed > 0 }

// Injector injects store entries into consumers.
type Injector struct {
	logger *slog.Logger
}

// New returns an Injector.
func New(logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{logger: logger}
}

// Inject copies entry's files into consumerDir's dependency tree for the
// given manager mode. Injection succeeds even when runtime dependencies
// are missing from the consumer; those are reported in MissingDeps.
func (in *Injector) Inject(ctx context.Context, entry *store.Entry, consumerDir string, mode pm.Mode, opts Options) (*Result, error) {
	target, err := pm.ResolveTargetDir(consumerDir, entry.Name, entry.Version, mode, in.logger)
	if err != nil {
		return nil, err
	}

	if opts.Force {
		if err := fsutil.RemoveTree(target); err != nil {
			return nil, err
		}
	}
	sync, err := fsutil.SyncDir(ctx, entry.PackageDir(), target)
	if err != nil {
		return nil, err
	}
	res := &Result{
		TargetDir: target,
		Copied:    sync.Copied,
		Skipped:   sync.Skipped,
		Removed:   sync.Removed,
	}
	in.logger.Info("inject.done",
		"package", entry.Name, "consumer", consumerDir,
		"copied", sync.Copied, "skipped", sync.Skipped, "removed", sync.Removed)

	m, err := manifest.Load(entry.PackageDir())
	if err != nil {
		// The store entry was validated at publish time; a missing
		// manifest here means the entry is damaged.
		return nil, err
	}
	res.BinLinks, err = binlink.Create(consumerDir, target, m.Bins(), in.logger)
	if err != nil {
		return nil, err
	}
	res.MissingDeps = missingDeps(consumerDir, m)
	return res, nil
}

// missingDeps returns the runtime dependencies (plus non-optional peers)
// not present in the consumer's dependency tree.
func missingDeps(consumerDir string, m *manifest.Manifest) []string {
	var missing []string
	for dep := range m.RuntimeDeps() {
		if dep == m.Name {
			continue
		}
		if _, err := os.Stat(names.DepPath(consumerDir, dep)); err != nil {
			missing = append(missing, dep)
		}
	}
	sort.Strings(missing)
	return missing
}

// BackupExisting copies a pre-existing directory at the resolved target
// to the consumer's backup path. Reports whether a backup was made.
func BackupExisting(consumerDir, name, version string, mode pm.Mode) (bool, error) {
	target, err := pm.ResolveTargetDir(consumerDir, name, version, mode, nil)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		return false, nil
	}
	backup := names.BackupDir(consumerDir, name)
	if err := fsutil.RemoveTree(backup); err != nil {
		return false, err
	}
	if err := fsutil.CopyDir(target, backup); err != nil {
		return false, err
	}
	return true, nil
}

// RestoreBackup replaces the resolved target with the stored backup and
// deletes the backup. Reports whether a restore happened.
func RestoreBackup(consumerDir, name, version string, mode pm.Mode) (bool, error) {
	backup := names.BackupDir(consumerDir, name)
	info, err := os.Stat(backup)
	if err != nil || !info.IsDir() {
		return false, nil
	}
	target, err := pm.ResolveTargetDir(consumerDir, name, version, mode, nil)
	if err != nil {
		return false, err
	}
	if err := fsutil.RemoveTree(target); err != nil {
		return false, err
	}
	if err := fsutil.CopyDir(backup, target); err != nil {
		return false, err
	}
	if err := fsutil.RemoveTree(backup); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveInjected deletes the injected package and its executable shims
// from a consumer.
func RemoveInjected(consumerDir, name, version string, mode pm.Mode) error {
	target, err := pm.ResolveTargetDir(consumerDir, name, version, mode, nil)
	if err != nil {
		return err
	}
	if m, err := manifest.Load(target); err == nil {
		if err := binlink.Remove(consumerDir, m.Bins()); err != nil {
			return err
		}
	}
	return fsutil.RemoveTree(target)
}
