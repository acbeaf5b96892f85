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

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/internal/output"
	"github.com/kraklabs/plunk/internal/ui"
	"github.com/kraklabs/plunk/pkg/hashing"
	"github.com/kraklabs/plunk/pkg/hook"
	"github.com/kraklabs/plunk/pkg/project"
	"github.com/kraklabs/plunk/pkg/publish"
	"github.com/kraklabs/plunk/pkg/push"
	"github.com/kraklabs/plunk/pkg/store"
	"github.com/kraklabs/plunk/pkg/watch"
)

type pushFlags struct {
	watchMode bool
	build     string
	skipBuild bool
	debounce  int
	cooldown  int
	noScripts bool
	force     bool
}

func runPush(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("push", flag.ExitOnError)
	var f pushFlags
	fs.BoolVarP(&f.watchMode, "watch", "w", false, "Stay running and re-push on source change")
	fs.StringVar(&f.build, "build", "", "Build command to run before each publish")
	fs.BoolVar(&f.skipBuild, "skip-build", false, "Skip the configured build command")
	fs.IntVar(&f.debounce, "debounce", 0, "Watch debounce in milliseconds (default 100)")
	fs.IntVar(&f.cooldown, "cooldown", 0, "Minimum milliseconds between pushes")
	fs.BoolVar(&f.noScripts, "no-scripts", false, "Skip preplunk/postplunk lifecycle scripts")
	fs.BoolVar(&f.force, "force", false, "Push even when content is unchanged")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: plunk push [options]

Description:
  Publish the current package, then re-inject it into every registered
  consumer. Each consumer's link entry is rewritten on every push that
  fans out — even when no files changed — which is the restart signal
  host bundler plugins watch for. When the content is unchanged since
  the last publish, the push stops there unless --force is given.

  With --watch, plunk stays running: source changes are debounced, the
  build command (if any) runs to completion, and the push repeats.
  Pushes never overlap; changes during a push fold into one follow-up.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # One-shot publish + fan out
  plunk push

  # Keep pushing on change, building first
  plunk push --watch --build "npm run build"

  # Tune the change loop
  plunk push --watch --debounce 250 --cooldown 1000

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	dir := mustCwd(globals)
	s := mustStore(globals)
	runPushWith(dir, s, f, globals)
}

// runPushWith drives one-shot or watch-mode pushes; dev reuses it.
func runPushWith(dir string, s *store.Store, f pushFlags, globals GlobalFlags) {
	cfg, cfgErr := project.Load(dir)
	if cfgErr == nil {
		if f.build == "" {
			f.build = cfg.Build
		}
		if f.debounce == 0 {
			f.debounce = cfg.Watch.DebounceMs
		}
		if f.cooldown == 0 {
			f.cooldown = cfg.Watch.CooldownMs
		}
	}
	if f.skipBuild {
		f.build = ""
	}

	pub := publish.New(s, nil)
	engine := push.New(s, pub, nil)
	opts := push.Options{RunScripts: !f.noScripts, Force: f.force}

	if !f.watchMode {
		if f.build != "" {
			if err := runBuild(dir, f.build, globals); err != nil {
				errors.FatalError(err, globals.JSON)
			}
		}
		res, err := engine.Push(context.Background(), dir, opts)
		if err != nil {
			errors.FatalError(err, globals.JSON)
		}
		reportPush(res, globals)
		return
	}

	// Watch mode keeps file contents cached between publishes.
	pub.SetContentCache(hashing.NewContentCache())

	var patterns []string
	if cfgErr == nil {
		patterns = cfg.Watch.Patterns
	}
	w := watch.New(watch.Config{
		Dir:          dir,
		Patterns:     patterns,
		BuildCommand: f.build,
		Debounce:     time.Duration(f.debounce) * time.Millisecond,
		Cooldown:     time.Duration(f.cooldown) * time.Millisecond,
	}, func(ctx context.Context) error {
		res, err := engine.Push(ctx, dir, opts)
		if err != nil {
			ui.Errorf("push failed: %v", err)
			return err
		}
		reportPush(res, globals)
		return nil
	})

	ctx, cancel := signalContext()
	defer cancel()

	// Initial push before settling into the loop.
	if f.build != "" {
		if err := runBuild(dir, f.build, globals); err != nil {
			errors.FatalError(err, globals.JSON)
		}
	}
	if res, err := engine.Push(ctx, dir, opts); err != nil {
		errors.FatalError(err, globals.JSON)
	} else {
		reportPush(res, globals)
	}

	if !globals.Quiet {
		ui.Infof("Watching for changes%s (ctrl-c to stop)", buildSuffix(f.build))
	}
	if err := w.Run(ctx); err != nil {
		errors.FatalError(errors.NewInternalError("Watcher failed", "", "", err), globals.JSON)
	}
}

func buildSuffix(build string) string {
	if build == "" {
		return ""
	}
	return fmt.Sprintf(", building with %q", build)
}

func runBuild(dir, command string, globals GlobalFlags) error {
	if !globals.Quiet {
		ui.Infof("Running build: %s", ui.DimText(command))
	}
	return hook.NewRunner(nil).Run(context.Background(), dir, "build", command)
}

func reportPush(res *push.Result, globals GlobalFlags) {
	if globals.JSON {
		output.JSON(res)
		return
	}
	if res.Publish.Skipped {
		ui.Infof("%s@%s unchanged (build %s), nothing to push",
			res.Publish.Name, res.Publish.Version, ui.DimText(res.Publish.BuildID))
		return
	}
	ui.Successf("Pushed %s@%s (build %s) to %s consumers: %s changed, %s unchanged, %s",
		res.Publish.Name, res.Publish.Version, ui.DimText(res.Publish.BuildID),
		ui.CountText(len(res.Pushed)), ui.CountText(res.FilesChanged),
		ui.CountText(res.FilesUnchanged), res.Elapsed.Round(time.Millisecond))
	for _, failure := range res.Failed {
		ui.Warningf("failed consumer %s: %s", failure.Consumer, failure.Error)
	}
	if len(res.Pushed) == 0 && len(res.Failed) == 0 {
		ui.Info(ui.DimText("  No consumers registered yet; run plunk add in a consumer project."))
	}
}
