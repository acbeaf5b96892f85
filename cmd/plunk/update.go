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

func runUpdate(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: plunk update

Description:
  Force re-inject every linked package from the newest store content,
  moving links that lag behind the latest published build.

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
			output.JSON(map[string]interface{}{"updated": []string{}})
		} else {
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
	var updated []string
	for _, name := range names {
		link := st.Links[name]
		entry, err := s.FindEntry(name)
		if err != nil {
			errors.FatalError(err, globals.JSON)
		}
		mode := pm.Mode{Manager: pm.Npm}
		if mgr, ok := pm.ParseManager(link.PackageManager); ok {
			mode.Manager = mgr
		}
		res, err := injector.Inject(context.Background(), entry, consumer, mode, inject.Options{Force: true})
		if err != nil {
			errors.FatalError(err, globals.JSON)
		}
		link.Version = entry.Version
		link.ContentHash = entry.Meta.ContentHash
		link.BuildID = entry.Meta.BuildID
		link.LinkedAt = time.Now().UTC()
		link.SourcePath = entry.Meta.SourcePath
		if err := track.AddLink(consumer, name, link); err != nil {
			errors.FatalError(errors.NewFsError("Cannot write state file", consumer, err), globals.JSON)
		}
		updated = append(updated, name)
		if !globals.JSON {
			ui.Successf("Updated %s@%s (build %s, %s files)",
				name, entry.Version, ui.DimText(entry.Meta.BuildID), ui.CountText(res.Copied))
		}
	}
	track.AppendOpsLog(consumer, fmt.Sprintf("update (%d packages)", len(updated)))

	if globals.JSON {
		output.JSON(map[string]interface{}{"updated": updated})
	}
}
