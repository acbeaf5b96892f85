// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/plunk/internal/output"
	"github.com/kraklabs/plunk/internal/ui"
	"github.com/kraklabs/plunk/pkg/track"
)

func runList(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: plunk list

Description:
  Enumerate the packages linked into this project, with their versions
  and build identifiers.

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	consumer := mustCwd(globals)
	st := track.ReadConsumerState(consumer)

	if globals.JSON {
		output.JSON(st)
		return
	}
	if len(st.Links) == 0 {
		ui.Info("No linked packages.")
		return
	}

	names := make([]string, 0, len(st.Links))
	for name := range st.Links {
		names = append(names, name)
	}
	sort.Strings(names)

	ui.Header(fmt.Sprintf("Linked packages (%d)", len(names)))
	for _, name := range names {
		link := st.Links[name]
		fmt.Printf("  %s@%s  %s  %s\n",
			name, link.Version,
			ui.DimText("build "+link.BuildID),
			ui.DimText(link.LinkedAt.Local().Format(time.RFC3339)))
	}
}
