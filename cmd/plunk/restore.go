// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/internal/output"
	"github.com/kraklabs/plunk/internal/ui"
	"github.com/kraklabs/plunk/pkg/inject"
	"github.com/kraklabs/plunk/pkg/pm"
	"github.com/kraklabs/plunk/pkg/track"
)

func runRestore(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	silent := fs.Bool("silent", false, "Only report failures")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: plunk restore [options]

Description:
  Re-inject every linked package from its store entry, repairing a
  dependency tree after a package manager install wiped the injected
  files. Typically wired into a postinstall script.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  plunk restore
  plunk restore --silent

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	consumer := mustCwd(globals)
	s := mustStore(globals)
	st := track.ReadConsumerState(consumer)

	if len(st.Links) == 0 {
		if globals.JSON {
			output.JSON(map[string]interface{}{"restored": []string{}})
		} else if !*silent {
			ui.Info("No linked packages.")
		}
		return
	}

	names := make([]string, 0, len(st.Links))
	for name := range st.Links {
		names = append(names, name)
	}
	sort.Strings(names)

	injector := inject.New(nil)
	var restored []string
	failures := 0
	for _, name := range names {
		link := st.Links[name]
		entry, err := s.GetEntry(name, link.Version)
		if err != nil {
			ui.Warningf("%s@%s: %v", name, link.Version, err)
			failures++
			continue
		}
		mode := pm.Mode{Manager: pm.Npm}
		if mgr, ok := pm.ParseManager(link.PackageManager); ok {
			mode.Manager = mgr
		}
		res, err := injector.Inject(context.Background(), entry, consumer, mode, inject.Options{})
		if err != nil {
			ui.Warningf("%s: %v", name, err)
			failures++
			continue
		}
		link.ContentHash = entry.Meta.ContentHash
		link.BuildID = entry.Meta.BuildID
		link.LinkedAt = time.Now().UTC()
		if err := track.AddLink(consumer, name, link); err != nil {
			ui.Warningf("%s: %v", name, err)
			failures++
			continue
		}
		restored = append(restored, name)
		if !*silent && !globals.JSON {
			ui.Successf("Restored %s@%s (%s files)", name, link.Version, ui.CountText(res.Copied))
		}
	}
	track.AppendOpsLog(consumer, fmt.Sprintf("restore (%d ok, %d failed)", len(restored), failures))

	if failures > 0 {
		errors.FatalError(errors.NewInputError(
			"Restore incomplete",
			fmt.Sprintf("%d of %d packages failed", failures, len(names)),
			"Re-publish the missing packages from their source directories"), globals.JSON)
	}
	if globals.JSON {
		output.JSON(map[string]interface{}{"restored": restored})
	}
}
