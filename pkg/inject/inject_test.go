// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package inject

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/plunk/pkg/names"
	"github.com/kraklabs/plunk/pkg/pm"
	"github.com/kraklabs/plunk/pkg/store"
)

func seedEntry(t *testing.T, s *store.Store, name, version string, files map[string]string) *store.Entry {
	t.Helper()
	dir := s.EntryDir(name, version)
	pkgDir := names.PackageDir(dir)
	for rel, content := range files {
		path := filepath.Join(pkgDir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	require.NoError(t, s.WriteMeta(dir, &store.Meta{
		ContentHash: "sha256v2:abc123",
		BuildID:     "abc123",
		PublishedAt: time.Now(),
		SourcePath:  "/src/" + name,
	}))
	entry, err := s.GetEntry(name, version)
	require.NoError(t, err)
	return entry
}

func TestInjectNpm(t *testing.T) {
	s := store.New(t.TempDir(), nil)
	entry := seedEntry(t, s, "@example/api-client", "1.0.0", map[string]string{
		"package.json":  `{"name":"@example/api-client","version":"1.0.0"}`,
		"dist/index.js": "const a=1;",
	})
	consumer := t.TempDir()

	res, err := New(nil).Inject(context.Background(), entry, consumer, pm.Mode{Manager: pm.Npm}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Copied)

	data, err := os.ReadFile(filepath.Join(consumer, "node_modules", "@example", "api-client", "dist", "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "const a=1;", string(data))

	// Second inject of the unchanged entry is a no-op.
	res, err = New(nil).Inject(context.Background(), entry, consumer, pm.Mode{Manager: pm.Npm}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Copied)
	assert.Equal(t, 0, res.Removed)
	assert.GreaterOrEqual(t, res.Skipped, 1)
}

func TestInjectPnpmVirtualStore(t *testing.T) {
	s := store.New(t.TempDir(), nil)
	entry := seedEntry(t, s, "test-lib", "1.0.0", map[string]string{
		"package.json": `{"name":"test-lib","version":"1.0.0"}`,
		"index.js":     "x",
	})
	consumer := t.TempDir()
	virtual := filepath.Join(consumer, "node_modules", ".pnpm", "test-lib@1.0.0", "node_modules", "test-lib")
	require.NoError(t, os.MkdirAll(virtual, 0o755))

	res, err := New(nil).Inject(context.Background(), entry, consumer, pm.Mode{Manager: pm.Pnpm}, Options{})
	require.NoError(t, err)
	assert.Equal(t, virtual, res.TargetDir)

	_, err = os.Stat(filepath.Join(virtual, "index.js"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(consumer, "node_modules", "test-lib", "index.js"))
	assert.True(t, os.IsNotExist(err))
}

func TestInjectCreatesBinShims(t *testing.T) {
	s := store.New(t.TempDir(), nil)
	entry := seedEntry(t, s, "tool", "1.0.0", map[string]string{
		"package.json": `{"name":"tool","version":"1.0.0","bin":"cli.js"}`,
		"cli.js":       "#!/usr/bin/env node\n",
	})
	consumer := t.TempDir()

	res, err := New(nil).Inject(context.Background(), entry, consumer, pm.Mode{Manager: pm.Npm}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"tool"}, res.BinLinks)

	_, err = os.Lstat(filepath.Join(consumer, "node_modules", ".bin", "tool"))
	assert.NoError(t, err)
}

func TestInjectReportsMissingDeps(t *testing.T) {
	s := store.New(t.TempDir(), nil)
	entry := seedEntry(t, s, "lib", "1.0.0", map[string]string{
		"package.json": `{"name":"lib","version":"1.0.0",
			"dependencies":{"present":"^1.0.0","absent":"^2.0.0"},
			"peerDependencies":{"peer-absent":"*","peer-opt":"*"},
			"peerDependenciesMeta":{"peer-opt":{"optional":true}}}`,
		"index.js": "x",
	})
	consumer := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(consumer, "node_modules", "present"), 0o755))

	res, err := New(nil).Inject(context.Background(), entry, consumer, pm.Mode{Manager: pm.Npm}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"absent", "peer-absent"}, res.MissingDeps)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	s := store.New(t.TempDir(), nil)
	entry := seedEntry(t, s, "lib", "1.0.0", map[string]string{
		"package.json": `{"name":"lib","version":"1.0.0"}`,
		"index.js":     "plunk version",
	})
	consumer := t.TempDir()
	mode := pm.Mode{Manager: pm.Npm}

	// Pre-existing registry install.
	target := names.DepPath(consumer, "lib")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "original.js"), []byte("// v0.9"), 0o644))

	made, err := BackupExisting(consumer, "lib", "1.0.0", mode)
	require.NoError(t, err)
	assert.True(t, made)

	_, err = New(nil).Inject(context.Background(), entry, consumer, mode, Options{})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(target, "original.js"))
	assert.True(t, os.IsNotExist(err), "inject removes files with no source counterpart")

	restored, err := RestoreBackup(consumer, "lib", "1.0.0", mode)
	require.NoError(t, err)
	assert.True(t, restored)

	data, err := os.ReadFile(filepath.Join(target, "original.js"))
	require.NoError(t, err)
	assert.Equal(t, "// v0.9", string(data))
	_, err = os.Stat(filepath.Join(target, "index.js"))
	assert.True(t, os.IsNotExist(err))

	// Backup consumed.
	_, err = os.Stat(names.BackupDir(consumer, "lib"))
	assert.True(t, os.IsNotExist(err))
}

func TestRestoreBackupWithoutBackup(t *testing.T) {
	restored, err := RestoreBackup(t.TempDir(), "lib", "1.0.0", pm.Mode{Manager: pm.Npm})
	require.NoError(t, err)
	assert.False(t, restored)
}

func TestRemoveInjected(t *testing.T) {
	s := store.New(t.TempDir(), nil)
	entry := seedEntry(t, s, "tool", "1.0.0", map[string]string{
		"package.json": `{"name":"tool","version":"1.0.0","bin":"cli.js"}`,
		"cli.js":       "x",
	})
	consumer := t.TempDir()
	mode := pm.Mode{Manager: pm.Npm}

	_, err := New(nil).Inject(context.Background(), entry, consumer, mode, Options{})
	require.NoError(t, err)

	require.NoError(t, RemoveInjected(consumer, "tool", "1.0.0", mode))
	_, err = os.Stat(names.DepPath(consumer, "tool"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Lstat(filepath.Join(consumer, "node_modules", ".bin", "tool"))
	assert.True(t, os.IsNotExist(err))
}
