// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package watch runs the debounced source-change loop behind plunk push
// --watch and plunk dev: fsnotify events are coalesced, the build command
// (if any) runs to completion, then the push callback fires. Pushes are
// strictly serialized per watched package — a change during an active
// push folds into a single follow-up run.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kraklabs/plunk/pkg/hook"
	"github.com/kraklabs/plunk/pkg/manifest"
)

// DefaultDebounce coalesces change bursts.
const DefaultDebounce = 100 * time.Millisecond

// skipDirs are never watched (descriptor economy and noise).
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, ".plunk": true,
	"dist": true, "build": true, "coverage": true,
}

// sourceDirs are the conventional source roots watched when a build
// command is configured.
var sourceDirs = []string{"src", "lib", "source", "app", "pages", "components"}

// Config parameterizes a watch loop.
type Config struct {
	// Dir is the watched package directory.
	Dir string
	// Patterns is an explicit list of paths (relative to Dir) to watch
	// instead of the derived set.
	Patterns []string
	// BuildCommand runs to completion before each push; empty skips it.
	BuildCommand string
	// Debounce delays the reaction to a change burst.
	Debounce time.Duration
	// Cooldown suppresses a new push right after one completed.
	Cooldown time.Duration
	Logger   *slog.Logger
}

// Watcher drives the loop.
type Watcher struct {
	cfg    Config
	push   func(ctx context.Context) error
	hooks  *hook.Runner
	logger *slog.Logger

	mu         sync.Mutex
	inProgress bool
	pending    bool
	lastDone   time.Time
	kick       chan struct{}
}

// New returns a watcher that invokes push after each settled change.
func New(cfg Config, push func(ctx context.Context) error) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{
		cfg:    cfg,
		push:   push,
		hooks:  hook.NewRunner(cfg.Logger),
		logger: cfg.Logger,
		kick:   make(chan struct{}, 1),
	}
}

// WatchDirs resolves the directories to watch: the explicit patterns, or
// — with a build command — the conventional source dirs that exist, or
// the manifest's files list. Falls back to the package dir itself.
func (w *Watcher) WatchDirs() ([]string, error) {
	var roots []string
	switch {
	case len(w.cfg.Patterns) > 0:
		for _, p := range w.cfg.Patterns {
			roots = append(roots, filepath.Join(w.cfg.Dir, filepath.FromSlash(p)))
		}
	case w.cfg.BuildCommand != "":
		for _, d := range sourceDirs {
			path := filepath.Join(w.cfg.Dir, d)
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				roots = append(roots, path)
			}
		}
	default:
		if m, err := manifest.Load(w.cfg.Dir); err == nil {
			for _, f := range m.Files {
				roots = append(roots, filepath.Join(w.cfg.Dir, filepath.FromSlash(f)))
			}
		}
	}
	if len(roots) == 0 {
		roots = []string{w.cfg.Dir}
	}

	var dirs []string
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			dirs = append(dirs, filepath.Dir(root))
			continue
		}
		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsPermission(err) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			base := filepath.Base(path)
			if path != root && (skipDirs[base] || strings.HasPrefix(base, ".")) {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return dirs, nil
}

// Run watches until ctx is cancelled. The error is nil on a clean stop.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dirs, err := w.WatchDirs()
	if err != nil {
		return err
	}
	added := 0
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			w.logger.Warn("watch.add_failed", "dir", dir, "err", err)
			continue
		}
		added++
	}
	w.logger.Info("watch.started", "dirs", added, "debounce", w.cfg.Debounce)

	var debounceTimer *time.Timer
	var timerCh <-chan time.Time // nil while no burst is settling

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			w.logger.Info("watch.stopped")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event) {
				continue
			}
			w.logger.Debug("watch.event", "path", event.Name, "op", event.Op.String())
			// New directories join the watch set as they appear.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.cfg.Debounce)
			timerCh = debounceTimer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch.error", "err", err)
		case <-timerCh:
			timerCh = nil
			w.startPush(ctx)
		case <-w.kick:
			w.startPush(ctx)
		}
	}
}

// startPush launches one build+push run unless one is active, in which
// case the request is folded into a single pending follow-up.
func (w *Watcher) startPush(ctx context.Context) {
	w.mu.Lock()
	if w.inProgress {
		w.pending = true
		w.mu.Unlock()
		return
	}
	if w.cfg.Cooldown > 0 {
		if wait := w.cfg.Cooldown - time.Since(w.lastDone); wait > 0 {
			w.mu.Unlock()
			w.logger.Debug("watch.cooldown", "wait", wait)
			time.AfterFunc(wait, func() {
				select {
				case w.kick <- struct{}{}:
				default:
				}
			})
			return
		}
	}
	w.inProgress = true
	w.mu.Unlock()

	go func() {
		w.runOnce(ctx)

		w.mu.Lock()
		w.inProgress = false
		w.lastDone = time.Now()
		rerun := w.pending
		w.pending = false
		w.mu.Unlock()

		if rerun && ctx.Err() == nil {
			select {
			case w.kick <- struct{}{}:
			default:
			}
		}
	}()
}

func (w *Watcher) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if w.cfg.BuildCommand != "" {
		if err := w.hooks.Run(ctx, w.cfg.Dir, "build", w.cfg.BuildCommand); err != nil {
			// Build failures keep the loop alive; the next change retries.
			w.logger.Warn("watch.build_failed", "err", err)
			return
		}
	}
	if err := w.push(ctx); err != nil {
		w.logger.Warn("watch.push_failed", "err", err)
	}
}

// relevantEvent filters out noise: chmod-only events, editor temp files
// (*.tmp, *~) anywhere, and every event inside the state dir.
func relevantEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, "~") {
		return false
	}
	return !strings.Contains(event.Name, string(filepath.Separator)+".plunk"+string(filepath.Separator))
}
