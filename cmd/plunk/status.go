// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"sort"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/plunk/internal/output"
	"github.com/kraklabs/plunk/internal/ui"
	"github.com/kraklabs/plunk/pkg/pm"
	"github.com/kraklabs/plunk/pkg/track"
)

// PackageStatus is one package's health in the status report.
type PackageStatus struct {
	Package      string `json:"package"`
	Version      string `json:"version"`
	BuildID      string `json:"build_id"`
	StoreEntry   bool   `json:"store_entry"`
	Injected     bool   `json:"injected"`
	UpToDate     bool   `json:"up_to_date"`
	BackupExists bool   `json:"backup_exists"`
	Issue        string `json:"issue,omitempty"`
}

func runStatus(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: plunk status

Description:
  Per-package health report for this project: whether each linked
  package still has a store entry, whether the injected files are in
  place, and whether the link matches the newest published build.

  A missing store entry is reported, not fatal; re-publish the package
  to fix it.

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	consumer := mustCwd(globals)
	s := mustStore(globals)
	st := track.ReadConsumerState(consumer)

	names := make([]string, 0, len(st.Links))
	for name := range st.Links {
		names = append(names, name)
	}
	sort.Strings(names)

	var statuses []PackageStatus
	for _, name := range names {
		link := st.Links[name]
		ps := PackageStatus{
			Package:      name,
			Version:      link.Version,
			BuildID:      link.BuildID,
			BackupExists: link.BackupExists,
		}

		entry, err := s.GetEntry(name, link.Version)
		if err == nil {
			ps.StoreEntry = true
			ps.UpToDate = entry.Meta.ContentHash == link.ContentHash
		} else {
			ps.Issue = "store entry missing; run plunk publish in the source directory"
		}

		mode := pm.Mode{Manager: pm.Npm}
		if mgr, ok := pm.ParseManager(link.PackageManager); ok {
			mode.Manager = mgr
		}
		if target, err := pm.ResolveTargetDir(consumer, name, link.Version, mode, nil); err == nil {
			if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
				ps.Injected = true
			} else if ps.Issue == "" {
				ps.Issue = "injected files missing; run plunk restore"
			}
		}
		statuses = append(statuses, ps)
	}

	if globals.JSON {
		output.JSON(map[string]interface{}{
			"package_manager": st.PackageManager,
			"role":            st.Role,
			"packages":        statuses,
		})
		return
	}

	ui.Header("Project status")
	ui.Label("Package manager", st.PackageManager)
	ui.Label("Role", st.Role)
	ui.Label("Linked packages", len(statuses))
	if len(statuses) == 0 {
		return
	}
	fmt.Println()
	for _, ps := range statuses {
		marker := ui.Green.Sprint("✓")
		if ps.Issue != "" {
			marker = ui.Yellow.Sprint("!")
		}
		fmt.Printf("  %s %s@%s %s\n", marker, ps.Package, ps.Version, ui.DimText("build "+ps.BuildID))
		if ps.Issue != "" {
			fmt.Printf("      %s\n", ui.DimText(ps.Issue))
		} else if !ps.UpToDate {
			fmt.Printf("      %s\n", ui.DimText("a newer build is in the store; run plunk update"))
		}
	}
}
