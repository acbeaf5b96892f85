// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package publish turns a source directory into an immutable store entry:
// manifest validation, lifecycle hooks, pack-list resolution, aggregate
// hashing with skip-if-unchanged, and an atomic temp-dir write into the
// store. The source tree is never modified; the manifest is rewritten in
// transit (workspace specifiers, publishConfig overrides).
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/pkg/fsutil"
	"github.com/kraklabs/plunk/pkg/hashing"
	"github.com/kraklabs/plunk/pkg/hook"
	"github.com/kraklabs/plunk/pkg/manifest"
	"github.com/kraklabs/plunk/pkg/names"
	"github.com/kraklabs/plunk/pkg/packlist"
	"github.com/kraklabs/plunk/pkg/store"
)

// Options controls one publish.
type Options struct {
	// AllowPrivate publishes packages marked private.
	AllowPrivate bool
	// RunScripts runs the preplunk/postplunk lifecycle scripts.
	RunScripts bool
	// Force publishes even when the content hash is unchanged.
	Force bool
}

// Result reports one publish.
type Result struct {
	Name        string        `json:"name"`
	Version     string        `json:"version"`
	FileCount   int           `json:"file_count"`
	Skipped     bool          `json:"skipped"`
	ContentHash string        `json:"content_hash"`
	BuildID     string        `json:"build_id"`
	Elapsed     time.Duration `json:"-"`
}

// Publisher writes store entries.
type Publisher struct {
	store    *store.Store
	hooks    *hook.Runner
	logger   *slog.Logger
	cache    *hashing.ContentCache
	progress func(current, total int64, phase string)
}

// New returns a Publisher writing into s.
func New(s *store.Store, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{store: s, hooks: hook.NewRunner(logger), logger: logger}
}

// SetContentCache installs the watch-mode content cache used during
// hashing.
func (p *Publisher) SetContentCache(c *hashing.ContentCache) { p.cache = c }

// SetProgressCallback installs a copy-progress callback.
func (p *Publisher) SetProgressCallback(fn func(current, total int64, phase string)) {
	p.progress = fn
}

// Publish packs sourceDir into the store. A publish whose content hash
// matches the existing entry returns Skipped unless forced. Two
// concurrent publishes of the same (name, version) race on the final
// rename; the last writer wins and both observe a consistent entry.
func (p *Publisher) Publish(ctx context.Context, sourceDir string, opts Options) (*Result, error) {
	start := time.Now()
	m, err := manifest.Load(sourceDir)
	if err != nil {
		return nil, err
	}
	if m.Private && !opts.AllowPrivate {
		return nil, errors.NewError(errors.KindPrivatePackage,
			"Package is private", m.Name,
			"Pass --private to publish it anyway", nil)
	}

	if opts.RunScripts {
		if script, ok := m.Script("preplunk"); ok {
			if err := p.hooks.Run(ctx, sourceDir, "preplunk", script); err != nil {
				return nil, err
			}
		}
	}

	entries, err := packlist.Resolve(m, p.logger)
	if err != nil {
		return nil, err
	}
	contentHash, err := hashing.DirectoryDigest(entries, p.cache)
	if err != nil {
		return nil, err
	}
	buildID := hashing.BuildID(contentHash)

	if !opts.Force {
		if meta, err := p.store.ReadMeta(m.Name, m.Version); err == nil && meta.ContentHash == contentHash {
			p.logger.Info("publish.skipped", "package", m.Name, "build_id", buildID)
			return &Result{
				Name: m.Name, Version: m.Version,
				FileCount: len(entries), Skipped: true,
				ContentHash: contentHash, BuildID: buildID,
				Elapsed: time.Since(start),
			}, nil
		}
	}

	finalDir := p.store.EntryDir(m.Name, m.Version)
	tmpDir := fmt.Sprintf("%s.tmp-%d", finalDir, time.Now().UnixMilli())
	if err := p.writeEntry(ctx, m, entries, tmpDir, contentHash, buildID, sourceDir); err != nil {
		_ = fsutil.RemoveTree(tmpDir)
		return nil, err
	}

	if err := fsutil.RemoveTree(finalDir); err != nil {
		_ = fsutil.RemoveTree(tmpDir)
		return nil, errors.NewFsError("Cannot replace store entry", finalDir, err)
	}
	if err := fsutil.MoveDir(tmpDir, finalDir); err != nil {
		_ = fsutil.RemoveTree(tmpDir)
		return nil, errors.NewFsError("Cannot finalize store entry", finalDir, err)
	}
	p.logger.Info("publish.done",
		"package", m.Name, "version", m.Version,
		"files", len(entries), "build_id", buildID)

	if opts.RunScripts {
		if script, ok := m.Script("postplunk"); ok {
			if err := p.hooks.Run(ctx, sourceDir, "postplunk", script); err != nil {
				return nil, err
			}
		}
	}
	return &Result{
		Name: m.Name, Version: m.Version,
		FileCount: len(entries), Skipped: false,
		ContentHash: contentHash, BuildID: buildID,
		Elapsed: time.Since(start),
	}, nil
}

// writeEntry populates tmpDir with the packed files and metadata. The
// manifest is rewritten in transit; everything else is copied verbatim on
// a bounded pool.
func (p *Publisher) writeEntry(ctx context.Context, m *manifest.Manifest, entries []hashing.FileEntry, tmpDir, contentHash, buildID, sourceDir string) error {
	pkgDir := names.PackageDir(tmpDir)
	if !fsutil.IsDryRun() {
		if err := os.MkdirAll(pkgDir, 0o755); err != nil {
			return err
		}
	}

	rewritten, err := m.ForPublish()
	if err != nil {
		return err
	}

	total := int64(len(entries))
	var done atomic.Int64
	report := func() {
		if p.progress != nil {
			p.progress(done.Add(1), total, "copying")
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(runtime.NumCPU(), 8))
	for _, e := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dst := filepath.Join(pkgDir, filepath.FromSlash(e.Rel))
			if e.Rel == manifest.FileName {
				if err := fsutil.WriteFileAtomic(dst, rewritten, 0o644); err != nil {
					return err
				}
			} else if err := fsutil.CopyFile(e.Abs, dst); err != nil {
				return err
			}
			report()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	abs, err := filepath.Abs(sourceDir)
	if err != nil {
		abs = sourceDir
	}
	return p.store.WriteMeta(tmpDir, &store.Meta{
		ContentHash: contentHash,
		BuildID:     buildID,
		PublishedAt: time.Now().UTC(),
		SourcePath:  abs,
	})
}
