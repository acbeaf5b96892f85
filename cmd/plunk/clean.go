// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/internal/output"
	"github.com/kraklabs/plunk/internal/ui"
	"github.com/kraklabs/plunk/pkg/names"
	"github.com/kraklabs/plunk/pkg/track"
)

// gcGrace keeps freshly published entries alive even when unreferenced,
// so a publish racing a clean is not swept.
const gcGrace = 5 * time.Minute

func runClean(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: plunk clean

Description:
  Garbage-collect the per-user store: remove entries no registered
  consumer links (older than a 5 minute grace window), drop stale
  registry entries, and sweep orphaned temp directories left by
  interrupted publishes. 'plunk gc' is an alias.

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	s := mustStore(globals)

	removedConsumers, removedPackages, err := track.CleanStaleConsumers(s.Home())
	if err != nil {
		errors.FatalError(errors.NewFsError("Cannot clean consumer registry", s.Home(), err), globals.JSON)
	}

	// Everything still linked by a registered consumer stays.
	referenced := map[string]bool{}
	for pkg, consumers := range track.ReadRegistry(s.Home()) {
		for _, consumer := range consumers {
			if link, ok := track.GetLink(consumer, pkg); ok {
				referenced[names.EntryDirName(pkg, link.Version)] = true
			}
		}
	}

	removedEntries, err := s.GC(referenced, gcGrace)
	if err != nil {
		errors.FatalError(errors.NewFsError("Cannot clean store", s.Root(), err), globals.JSON)
	}
	sweptTemp, err := s.SweepTempDirs()
	if err != nil {
		errors.FatalError(errors.NewFsError("Cannot sweep temp directories", s.Root(), err), globals.JSON)
	}

	if globals.JSON {
		removed := make([]string, 0, len(removedEntries))
		for _, e := range removedEntries {
			removed = append(removed, fmt.Sprintf("%s@%s", e.Name, e.Version))
		}
		output.JSON(map[string]interface{}{
			"removed_entries":   removed,
			"removed_consumers": removedConsumers,
			"removed_packages":  removedPackages,
			"swept_temp_dirs":   sweptTemp,
		})
		return
	}

	ui.Successf("Removed %s store entries, %s stale consumers, %s stale packages, %s temp dirs",
		ui.CountText(len(removedEntries)), ui.CountText(removedConsumers),
		ui.CountText(removedPackages), ui.CountText(sweptTemp))
	for _, e := range removedEntries {
		fmt.Printf("  %s %s@%s\n", ui.DimText("removed"), e.Name, e.Version)
	}
}
