// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the plunk CLI: local package development with a
// content-addressed store instead of symlinks.
//
// Usage:
//
//	plunk publish [dir]           Publish a package to the local store
//	plunk add <pkg>               Inject a published package into this project
//	plunk push [--watch]          Publish and fan out to all consumers
//	plunk dev                     Watch, rebuild and push on change
//	plunk status                  Per-package health report
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/plunk/internal/ui"
	"github.com/kraklabs/plunk/pkg/fsutil"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	JSON    bool // Output in JSON format (one object per command)
	NoColor bool // Disable color output
	Verbose int  // Verbosity level: 0=normal, 1=-v (info), 2=-vv (debug)
	Quiet   bool // Suppress non-essential output (progress, info messages)
	DryRun  bool // Log destructive actions instead of performing them
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (one object per command)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
		dryRun      = flag.Bool("dry-run", false, "Log destructive actions instead of performing them")
	)

	// Stop parsing at the first non-flag argument (the command name) so
	// subcommand flags like "remove --all" reach the subcommand parsers.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `plunk - local package development without symlinks

plunk publishes built packages into a per-user content-addressed store
and copies them into consumer dependency trees, replacing npm/yarn link
and yalc workflows. A watcher rebuilds and re-pushes on source change.

Usage:
  plunk <command> [options]

Commands:
  init          Configure this project for plunk
  publish       Publish a package to the local store
  add           Inject a published package and track it
  remove        Remove an injected package (restores any backup)
  push          Publish and fan out to all registered consumers
  dev           push --watch with auto-detected build command
  restore       Re-inject every linked package
  list          Enumerate linked packages
  status        Per-package health report
  update        Force re-inject from the latest store content
  clean         Remove unreferenced store entries and stale state (alias: gc)
  doctor        Run the diagnostic suite
  migrate       Detect and clean up yalc state

Global Options:
  --json            Output in JSON format (one object per command)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output
  --dry-run         Log destructive actions instead of performing them
  -V, --version     Show version and exit

Examples:
  plunk publish                      Publish the current package
  plunk add @scope/lib               Link a published package here
  plunk push --watch                 Rebuild and fan out on change
  plunk remove --all                 Unlink everything, restore backups
  plunk status --json                Health report for scripts

Getting Started (library side):
  1. plunk init --role=library
  2. plunk publish
  3. plunk dev

Getting Started (consumer side):
  1. plunk init
  2. plunk add <package>

Data Storage:
  The store lives in ~/.plunk (override with PLUNK_HOME). Per-project
  state lives in .plunk/ next to package.json.

Environment Variables:
  PLUNK_HOME          Per-user root directory
  PLUNK_HOOK_TIMEOUT  Hook/build subprocess timeout in milliseconds
  NO_COLOR            Disable ANSI colors
  FORCE_COLOR         Force ANSI colors

For detailed command help: plunk <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("plunk version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if *quiet && *verbose > 0 {
		fmt.Fprintf(os.Stderr, "Error: cannot use --quiet and --verbose together\n")
		os.Exit(1)
	}

	// JSON mode auto-enables quiet to keep stdout parseable.
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Verbose: *verbose,
		Quiet:   *quiet,
		DryRun:  *dryRun,
	}

	ui.InitColors(globals.NoColor)
	initLogging(globals)
	fsutil.SetDryRun(globals.DryRun)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "publish":
		runPublish(cmdArgs, globals)
	case "add":
		runAdd(cmdArgs, globals)
	case "remove":
		runRemove(cmdArgs, globals)
	case "push":
		runPush(cmdArgs, globals)
	case "dev":
		runDev(cmdArgs, globals)
	case "restore":
		runRestore(cmdArgs, globals)
	case "list":
		runList(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "update":
		runUpdate(cmdArgs, globals)
	case "clean", "gc":
		runClean(cmdArgs, globals)
	case "doctor":
		runDoctor(cmdArgs, globals)
	case "migrate":
		runMigrate(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
