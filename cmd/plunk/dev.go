// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/plunk/pkg/manifest"
	"github.com/kraklabs/plunk/pkg/pm"
	"github.com/kraklabs/plunk/pkg/project"
)

func runDev(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("dev", flag.ExitOnError)
	var f pushFlags
	f.watchMode = true
	fs.StringVar(&f.build, "build", "", "Build command (default: auto-detected)")
	fs.BoolVar(&f.skipBuild, "skip-build", false, "Skip the build command")
	fs.IntVar(&f.debounce, "debounce", 0, "Watch debounce in milliseconds (default 100)")
	fs.BoolVar(&f.noScripts, "no-scripts", false, "Skip preplunk/postplunk lifecycle scripts")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: plunk dev [options]

Description:
  Library development loop: publish, fan out to every consumer, then
  watch sources and repeat on change. Equivalent to plunk push --watch
  with the build command auto-detected from .plunk/config.yaml or the
  manifest's "build" script.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Watch with auto-detected build
  plunk dev

  # Watch without building (pre-built dist)
  plunk dev --skip-build

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	dir := mustCwd(globals)
	s := mustStore(globals)

	if f.build == "" && !f.skipBuild {
		f.build = detectBuildCommand(dir)
	}
	runPushWith(dir, s, f, globals)
}

// detectBuildCommand prefers the project config's build entry, then the
// manifest's "build" script run through the detected manager.
func detectBuildCommand(dir string) string {
	if cfg, err := project.Load(dir); err == nil && cfg.Build != "" {
		return cfg.Build
	}
	m, err := manifest.Load(dir)
	if err != nil {
		return ""
	}
	if _, ok := m.Script("build"); !ok {
		return ""
	}
	mode, err := pm.Detect(dir)
	if err != nil {
		return "npm run build"
	}
	return fmt.Sprintf("%s run build", mode.Manager)
}
