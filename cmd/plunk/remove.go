// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"sort"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/internal/output"
	"github.com/kraklabs/plunk/internal/ui"
	"github.com/kraklabs/plunk/pkg/fsutil"
	"github.com/kraklabs/plunk/pkg/inject"
	"github.com/kraklabs/plunk/pkg/names"
	"github.com/kraklabs/plunk/pkg/pm"
	"github.com/kraklabs/plunk/pkg/track"
)

func runRemove(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	var (
		all   = fs.Bool("all", false, "Remove every linked package and delete plunk state")
		force = fs.Bool("force", false, "Remove even when the package is not tracked")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: plunk remove [package] [options]

Description:
  Delete an injected package from this project's dependency tree and
  stop tracking it. When a backup of the pre-plunk installation exists,
  it is restored in place.

  With --all, every linked package is removed and the .plunk state file
  is deleted.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Remove one package, restoring the registry version if backed up
  plunk remove @scope/lib

  # Remove everything plunk put here
  plunk remove --all

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 && !*all {
		fs.Usage()
		os.Exit(1)
	}

	consumer := mustCwd(globals)
	s := mustStore(globals)
	st := track.ReadConsumerState(consumer)

	var packages []string
	if *all {
		for name := range st.Links {
			packages = append(packages, name)
		}
		sort.Strings(packages)
	} else {
		pkg := fs.Arg(0)
		if _, ok := st.Links[pkg]; !ok && !*force {
			errors.FatalError(errors.NewError(errors.KindPackageNotLinked,
				"Package not linked", pkg,
				"Run plunk list to see linked packages, or pass --force", nil), globals.JSON)
		}
		packages = []string{pkg}
	}

	type removal struct {
		Package  string `json:"package"`
		Restored bool   `json:"restored"`
	}
	var removals []removal
	for _, pkg := range packages {
		link := st.Links[pkg]
		mode := pm.Mode{Manager: pm.Npm}
		if mgr, ok := pm.ParseManager(link.PackageManager); ok {
			mode.Manager = mgr
		}

		if err := inject.RemoveInjected(consumer, pkg, link.Version, mode); err != nil {
			errors.FatalError(errors.NewFsError("Cannot remove injected package", pkg, err), globals.JSON)
		}
		restored := false
		if link.BackupExists {
			var err error
			restored, err = inject.RestoreBackup(consumer, pkg, link.Version, mode)
			if err != nil {
				errors.FatalError(errors.NewFsError("Cannot restore backup", pkg, err), globals.JSON)
			}
		}

		if err := track.RemoveLink(consumer, pkg); err != nil {
			errors.FatalError(errors.NewFsError("Cannot update state file", consumer, err), globals.JSON)
		}
		if err := track.UnregisterConsumer(s.Home(), pkg, consumer); err != nil {
			errors.FatalError(errors.NewFsError("Cannot update consumer registry", s.Home(), err), globals.JSON)
		}
		track.AppendOpsLog(consumer, fmt.Sprintf("remove %s (restored=%v)", pkg, restored))
		removals = append(removals, removal{Package: pkg, Restored: restored})
	}

	if *all {
		if err := fsutil.RemoveTree(names.StatePath(consumer)); err != nil {
			errors.FatalError(errors.NewFsError("Cannot delete state file", consumer, err), globals.JSON)
		}
	}

	if globals.JSON {
		output.JSON(map[string]interface{}{"removed": removals})
		return
	}
	for _, r := range removals {
		if r.Restored {
			ui.Successf("Removed %s (restored previous installation)", r.Package)
		} else {
			ui.Successf("Removed %s", r.Package)
		}
	}
	if len(removals) == 0 {
		ui.Info("Nothing to remove.")
	}
}
