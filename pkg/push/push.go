// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package push implements the publish-then-fan-out engine: publish a
// package, then re-inject it into every registered consumer with bounded
// concurrency. Per-consumer failures are isolated and aggregated; every
// consumer the fan-out reaches has its link entry rewritten — even when
// no files changed — because consumers treat a state-file change as their
// restart signal.
package push

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/plunk/pkg/inject"
	"github.com/kraklabs/plunk/pkg/pm"
	"github.com/kraklabs/plunk/pkg/publish"
	"github.com/kraklabs/plunk/pkg/store"
	"github.com/kraklabs/plunk/pkg/track"
)

// fanOutLimit bounds concurrent consumer injections.
const fanOutLimit = 4

// Options controls one push.
type Options struct {
	RunScripts bool
	Force      bool
}

// ConsumerResult reports one consumer's injection.
type ConsumerResult struct {
	Consumer string `json:"consumer"`
	Copied   int    `json:"copied"`
	Skipped  int    `json:"skipped"`
	Removed  int    `json:"removed"`
}

// ConsumerFailure reports one consumer that could not be updated.
type ConsumerFailure struct {
	Consumer string `json:"consumer"`
	Error    string `json:"error"`
}

// Result aggregates one push run.
type Result struct {
	Publish         *publish.Result   `json:"publish"`
	Pushed          []ConsumerResult  `json:"pushed"`
	Failed          []ConsumerFailure `json:"failed,omitempty"`
	FilesChanged    int               `json:"files_changed"`
	FilesUnchanged  int               `json:"files_unchanged"`
	Elapsed         time.Duration     `json:"-"`
	SkippedConsumer int               `json:"skipped_consumers,omitempty"`
}

// Engine drives publish + fan-out.
type Engine struct {
	store    *store.Store
	pub      *publish.Publisher
	injector *inject.Injector
	logger   *slog.Logger
}

// New returns a push engine over s and pub.
func New(s *store.Store, pub *publish.Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, pub: pub, injector: inject.New(logger), logger: logger}
}

// Push publishes packageDir and injects the fresh entry into every
// registered consumer. A publish skipped by the hash check short-circuits
// the fan-out.
func (e *Engine) Push(ctx context.Context, packageDir string, opts Options) (*Result, error) {
	start := time.Now()

	pubRes, err := e.pub.Publish(ctx, packageDir, publish.Options{
		RunScripts: opts.RunScripts,
		Force:      opts.Force,
	})
	if err != nil {
		return nil, err
	}
	res := &Result{Publish: pubRes}
	if pubRes.Skipped && !opts.Force {
		res.Elapsed = time.Since(start)
		return res, nil
	}

	entry, err := e.store.GetEntry(pubRes.Name, pubRes.Version)
	if err != nil {
		return nil, err
	}

	consumers := track.GetConsumers(e.store.Home(), pubRes.Name)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	for _, consumer := range consumers {
		g.Go(func() error {
			link, ok := track.GetLink(consumer, pubRes.Name)
			if !ok {
				mu.Lock()
				res.SkippedConsumer++
				mu.Unlock()
				return nil
			}
			mode := pm.Mode{Manager: pm.Npm}
			if mgr, ok := pm.ParseManager(link.PackageManager); ok {
				mode.Manager = mgr
			}
			if mode.Manager == pm.Yarn {
				detected, err := pm.Detect(consumer)
				if err == nil && detected.Manager == pm.Yarn {
					mode.YarnLinker = detected.YarnLinker
				}
			}

			injRes, err := e.injector.Inject(gctx, entry, consumer, mode, inject.Options{})
			if err != nil {
				e.logger.Warn("push.consumer_failed", "consumer", consumer, "err", err)
				mu.Lock()
				res.Failed = append(res.Failed, ConsumerFailure{Consumer: consumer, Error: err.Error()})
				mu.Unlock()
				return nil
			}

			// Rewrite the link entry unconditionally: the state file is
			// the change signal host bundlers watch.
			link.Version = entry.Version
			link.ContentHash = entry.Meta.ContentHash
			link.BuildID = entry.Meta.BuildID
			link.LinkedAt = time.Now().UTC()
			link.SourcePath = entry.Meta.SourcePath
			if err := track.AddLink(consumer, pubRes.Name, link); err != nil {
				mu.Lock()
				res.Failed = append(res.Failed, ConsumerFailure{Consumer: consumer, Error: err.Error()})
				mu.Unlock()
				return nil
			}
			track.AppendOpsLog(consumer, fmt.Sprintf("push %s@%s build %s (copied %d, removed %d)",
				entry.Name, entry.Version, entry.Meta.BuildID, injRes.Copied, injRes.Removed))

			mu.Lock()
			res.Pushed = append(res.Pushed, ConsumerResult{
				Consumer: consumer,
				Copied:   injRes.Copied,
				Skipped:  injRes.Skipped,
				Removed:  injRes.Removed,
			})
			res.FilesChanged += injRes.Copied + injRes.Removed
			res.FilesUnchanged += injRes.Skipped
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	res.Elapsed = time.Since(start)
	e.logger.Info("push.done",
		"package", pubRes.Name, "build_id", pubRes.BuildID,
		"pushed", len(res.Pushed), "failed", len(res.Failed),
		"files_changed", res.FilesChanged, "elapsed", res.Elapsed)
	return res, nil
}
