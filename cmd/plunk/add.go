// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/internal/output"
	"github.com/kraklabs/plunk/internal/ui"
	"github.com/kraklabs/plunk/pkg/inject"
	"github.com/kraklabs/plunk/pkg/names"
	"github.com/kraklabs/plunk/pkg/pm"
	"github.com/kraklabs/plunk/pkg/publish"
	"github.com/kraklabs/plunk/pkg/track"
)

func runAdd(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	var (
		from = fs.String("from", "", "Publish this source directory first, then add it")
		yes  = fs.BoolP("yes", "y", false, "Skip confirmation prompts")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: plunk add <package> [options]

Description:
  Inject a published package into this project's dependency tree and
  track the link. Any pre-existing installation of the package is backed
  up first so 'plunk remove' can restore it.

  The newest store entry for the package is used. With --from, the
  source directory is published first.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Link the latest published build
  plunk add @scope/lib

  # Publish ../lib and link it in one step
  plunk add @scope/lib --from ../lib

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	pkg := fs.Arg(0)

	consumer := mustCwd(globals)
	s := mustStore(globals)

	mode, err := pm.Detect(consumer)
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot detect package manager", consumer, "", err), globals.JSON)
	}
	if err := mode.Compatible(); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if *from != "" {
		res, err := publish.New(s, nil).Publish(context.Background(), *from, publish.Options{RunScripts: true})
		if err != nil {
			errors.FatalError(err, globals.JSON)
		}
		if !globals.JSON {
			printPublishResult(res)
		}
		if res.Name != pkg {
			errors.FatalError(errors.NewInputError(
				"Package name mismatch",
				fmt.Sprintf("%s publishes %s, not %s", *from, res.Name, pkg),
				"Pass the name the source directory declares"), globals.JSON)
		}
	}

	entry, err := s.FindEntry(pkg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	// Back up a pre-existing installation once; a re-add keeps the
	// original backup.
	backupExists := false
	if link, ok := track.GetLink(consumer, pkg); ok {
		backupExists = link.BackupExists
	} else {
		if _, statErr := os.Stat(names.DepPath(consumer, pkg)); statErr == nil && !*yes && !globals.JSON {
			if !confirm(bufio.NewReader(os.Stdin),
				fmt.Sprintf("%s is already installed here; replace it (a backup is kept)?", pkg)) {
				ui.Info("Aborted.")
				return
			}
		}
		backupExists, err = inject.BackupExisting(consumer, pkg, entry.Version, mode)
		if err != nil {
			errors.FatalError(errors.NewFsError("Cannot back up existing package", pkg, err), globals.JSON)
		}
	}

	res, err := inject.New(nil).Inject(context.Background(), entry, consumer, mode, inject.Options{})
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if err := track.AddLink(consumer, pkg, track.LinkEntry{
		Version:        entry.Version,
		ContentHash:    entry.Meta.ContentHash,
		LinkedAt:       time.Now().UTC(),
		SourcePath:     entry.Meta.SourcePath,
		BackupExists:   backupExists,
		PackageManager: string(mode.Manager),
		BuildID:        entry.Meta.BuildID,
	}); err != nil {
		errors.FatalError(errors.NewFsError("Cannot write state file", consumer, err), globals.JSON)
	}
	if err := track.RegisterConsumer(s.Home(), pkg, consumer); err != nil {
		errors.FatalError(errors.NewFsError("Cannot update consumer registry", s.Home(), err), globals.JSON)
	}
	track.AppendOpsLog(consumer, fmt.Sprintf("add %s@%s build %s", pkg, entry.Version, entry.Meta.BuildID))

	if globals.JSON {
		output.JSON(map[string]interface{}{
			"package":      pkg,
			"version":      entry.Version,
			"build_id":     entry.Meta.BuildID,
			"target_dir":   res.TargetDir,
			"copied":       res.Copied,
			"bin_links":    res.BinLinks,
			"missing_deps": res.MissingDeps,
		})
		return
	}

	ui.Successf("Added %s@%s (build %s, %s files)",
		pkg, entry.Version, ui.DimText(entry.Meta.BuildID), ui.CountText(res.Copied))
	if len(res.BinLinks) > 0 {
		ui.Infof("Linked executables: %s", strings.Join(res.BinLinks, ", "))
	}
	if len(res.MissingDeps) > 0 {
		ui.Warningf("Missing dependencies in this project: %s", strings.Join(res.MissingDeps, ", "))
		ui.Info(ui.DimText("  Install them with your package manager; plunk does not."))
	}
}
