// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/internal/output"
	"github.com/kraklabs/plunk/internal/ui"
	"github.com/kraklabs/plunk/pkg/publish"
)

func runPublish(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	var (
		private   = fs.Bool("private", false, "Publish even if the package is marked private")
		noScripts = fs.Bool("no-scripts", false, "Skip preplunk/postplunk lifecycle scripts")
		force     = fs.Bool("force", false, "Publish even when content is unchanged")
		recursive = fs.BoolP("recursive", "r", false, "Publish every package found under the directory")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: plunk publish [dir] [options]

Description:
  Pack the package at dir (default: current directory) into the per-user
  store. The pack list follows the manifest's files field and ignore
  rules; the content hash makes repeated publishes of unchanged sources
  no-ops.

  Workspace-protocol dependency specifiers are rewritten to concrete
  versions in the stored manifest; the source tree is never modified.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Publish the current package
  plunk publish

  # Publish a package elsewhere
  plunk publish ../my-lib

  # Publish every package in a monorepo checkout
  plunk publish --recursive

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	dir := resolveDir(fs.Args(), globals)
	s := mustStore(globals)
	p := publish.New(s, nil)

	progressCfg := NewProgressConfig(globals)
	var bar *progressbar.ProgressBar
	p.SetProgressCallback(func(current, total int64, phase string) {
		if bar == nil {
			bar = NewProgressBar(progressCfg, total, "Packing files")
		}
		if bar != nil {
			_ = bar.Set64(current)
		}
	})

	opts := publish.Options{
		AllowPrivate: *private,
		RunScripts:   !*noScripts,
		Force:        *force,
	}

	dirs := []string{dir}
	if *recursive {
		found, err := publish.DiscoverPackages(dir)
		if err != nil {
			errors.FatalError(errors.NewFsError("Cannot scan for packages", dir, err), globals.JSON)
		}
		if len(found) == 0 {
			errors.FatalError(errors.NewInputError(
				"No packages found", dir, "Pass a directory containing package.json files"), globals.JSON)
		}
		dirs = found
	}

	var results []*publish.Result
	for _, d := range dirs {
		bar = nil
		res, err := p.Publish(context.Background(), d, opts)
		if err != nil {
			if *recursive {
				ui.Warningf("skipping %s: %v", d, err)
				continue
			}
			errors.FatalError(err, globals.JSON)
		}
		results = append(results, res)
		if !globals.JSON {
			printPublishResult(res)
		}
	}

	if globals.JSON {
		if *recursive {
			output.JSON(results)
		} else if len(results) == 1 {
			output.JSON(results[0])
		}
	}
}

func printPublishResult(res *publish.Result) {
	if res.Skipped {
		ui.Infof("%s@%s unchanged (build %s), skipped",
			res.Name, res.Version, ui.DimText(res.BuildID))
		return
	}
	ui.Successf("Published %s@%s (build %s, %s files, %s)",
		res.Name, res.Version, ui.DimText(res.BuildID),
		ui.CountText(res.FileCount), res.Elapsed.Round(time.Millisecond))
}
