// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/plunk/internal/output"
	"github.com/kraklabs/plunk/internal/ui"
	"github.com/kraklabs/plunk/pkg/names"
	"github.com/kraklabs/plunk/pkg/pm"
	"github.com/kraklabs/plunk/pkg/track"
)

// doctorCheck is one diagnostic result.
type doctorCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

func runDoctor(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: plunk doctor

Description:
  Run the diagnostic suite: store accessibility, registry and state file
  health, store entries for every link, dangling registrations, orphaned
  temp directories, and package-manager compatibility.

  Findings are reported; apart from creating the store root when it is
  missing, nothing is modified. Run plunk clean to fix
  what it can.

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	consumer := mustCwd(globals)
	s := mustStore(globals)
	var checks []doctorCheck
	report := func(name string, ok bool, detail string) {
		checks = append(checks, doctorCheck{Name: name, OK: ok, Detail: detail})
	}

	// Store root exists and is writable.
	if err := os.MkdirAll(s.Root(), 0o755); err != nil {
		report("store root writable", false, err.Error())
	} else if probe, err := os.CreateTemp(s.Root(), ".doctor-*"); err != nil {
		report("store root writable", false, err.Error())
	} else {
		_ = probe.Close()
		_ = os.Remove(probe.Name())
		report("store root writable", true, s.Root())
	}

	// Registry parses.
	if data, err := os.ReadFile(names.RegistryPath(s.Home())); err == nil {
		var reg map[string][]string
		if json.Unmarshal(data, &reg) != nil {
			report("registry parseable", false, "consumers.json is corrupt (reads recover to empty)")
		} else {
			report("registry parseable", true, "")
		}
	} else {
		report("registry parseable", true, "no registry yet")
	}

	// State file parses.
	if data, err := os.ReadFile(names.StatePath(consumer)); err == nil {
		var raw map[string]interface{}
		if json.Unmarshal(data, &raw) != nil {
			report("state file parseable", false, "state.json is corrupt (reads recover to empty)")
		} else {
			report("state file parseable", true, "")
		}
	} else {
		report("state file parseable", true, "no state yet")
	}

	// Package manager mode.
	mode, err := pm.Detect(consumer)
	if err != nil {
		report("package manager", false, err.Error())
	} else if cerr := mode.Compatible(); cerr != nil {
		report("package manager", false, cerr.Error())
	} else {
		report("package manager", true, string(mode.Manager))
	}

	// Every link has a store entry.
	st := track.ReadConsumerState(consumer)
	linkNames := make([]string, 0, len(st.Links))
	for name := range st.Links {
		linkNames = append(linkNames, name)
	}
	sort.Strings(linkNames)
	missing := 0
	for _, name := range linkNames {
		if _, err := s.GetEntry(name, st.Links[name].Version); err != nil {
			missing++
			report("store entry for "+name, false, "missing; re-publish from "+st.Links[name].SourcePath)
		}
	}
	if missing == 0 {
		report("store entries for links", true, fmt.Sprintf("%d links", len(linkNames)))
	}

	// Dangling registrations.
	dangling := 0
	for _, consumers := range track.ReadRegistry(s.Home()) {
		for _, dir := range consumers {
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				dangling++
			}
		}
	}
	detail := ""
	if dangling > 0 {
		detail = fmt.Sprintf("%d dangling (plunk clean removes them)", dangling)
	}
	report("registry consumers exist", dangling == 0, detail)

	// Orphaned temp dirs.
	tempDirs := 0
	if dirents, err := os.ReadDir(s.Root()); err == nil {
		for _, d := range dirents {
			if d.IsDir() && strings.Contains(d.Name(), ".tmp-") {
				tempDirs++
			}
		}
	}
	detail = ""
	if tempDirs > 0 {
		detail = fmt.Sprintf("%d found (plunk clean removes them)", tempDirs)
	}
	report("no orphaned temp dirs", tempDirs == 0, detail)

	// Injected bins resolve.
	binDir := names.BinDir(consumer)
	broken := 0
	if dirents, err := os.ReadDir(binDir); err == nil {
		for _, d := range dirents {
			path := filepath.Join(binDir, d.Name())
			if _, err := filepath.EvalSymlinks(path); err != nil {
				broken++
			}
		}
	}
	detail = ""
	if broken > 0 {
		detail = fmt.Sprintf("%d broken entries in %s", broken, binDir)
	}
	report("bin shims resolve", broken == 0, detail)

	// Injected bins not shadowed by PATH.
	shadowed := shadowedBins(binDir, os.Getenv("PATH"))
	detail = ""
	if len(shadowed) > 0 {
		detail = fmt.Sprintf("shadowed by earlier PATH entries: %s", strings.Join(shadowed, ", "))
	}
	report("bin shims not shadowed by PATH", len(shadowed) == 0, detail)

	failed := 0
	for _, c := range checks {
		if !c.OK {
			failed++
		}
	}

	if globals.JSON {
		output.JSON(map[string]interface{}{"checks": checks, "failed": failed})
	} else {
		ui.Header("plunk doctor")
		for _, c := range checks {
			marker := ui.Green.Sprint("✓")
			if !c.OK {
				marker = ui.Red.Sprint("✗")
			}
			line := fmt.Sprintf("  %s %s", marker, c.Name)
			if c.Detail != "" {
				line += "  " + ui.DimText(c.Detail)
			}
			fmt.Println(line)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// shadowedBins reports which executables in binDir are shadowed by a
// same-named executable in a PATH entry searched before binDir. Package
// manager script runners prepend binDir to PATH, so only entries ahead of
// it (or all of them, when binDir is absent from PATH) can shadow a shim.
func shadowedBins(binDir, pathEnv string) []string {
	dirents, err := os.ReadDir(binDir)
	if err != nil || len(dirents) == 0 {
		return nil
	}
	binAbs, err := filepath.Abs(binDir)
	if err != nil {
		binAbs = binDir
	}

	shadowed := map[string]bool{}
	for _, pathDir := range filepath.SplitList(pathEnv) {
		if pathDir == "" {
			continue
		}
		abs, err := filepath.Abs(pathDir)
		if err != nil {
			continue
		}
		if abs == binAbs {
			break
		}
		for _, d := range dirents {
			name := strings.TrimSuffix(d.Name(), ".cmd")
			if shadowed[name] {
				continue
			}
			info, err := os.Stat(filepath.Join(abs, name))
			if err != nil || info.IsDir() {
				continue
			}
			if info.Mode()&0o111 != 0 {
				shadowed[name] = true
			}
		}
	}

	out := make([]string, 0, len(shadowed))
	for name := range shadowed {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
