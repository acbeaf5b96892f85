// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/plunk/pkg/project"
)

func TestAddGitignoreEntry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("node_modules\n"), 0o644))

	assert.True(t, addGitignoreEntry(dir))

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "node_modules\n.plunk/\n", string(data))

	// Idempotent.
	assert.False(t, addGitignoreEntry(dir))
}

func TestAddGitignoreEntryNonGitProject(t *testing.T) {
	assert.False(t, addGitignoreEntry(t.TempDir()))
}

func TestAddPushScriptPreservesFields(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"),
		[]byte(`{"name":"lib","version":"1.0.0","scripts":{"build":"tsc"},"custom":true}`), 0o644))

	assert.True(t, addPushScript(dir))

	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"plunk:push"`)
	assert.Contains(t, string(data), `"build"`)
	assert.Contains(t, string(data), `"custom"`)

	// Second run is a no-op.
	assert.False(t, addPushScript(dir))
}

func TestDetectBuildCommandFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := project.Default("library", "npm")
	cfg.Build = "make dist"
	require.NoError(t, project.Save(dir, cfg))

	assert.Equal(t, "make dist", detectBuildCommand(dir))
}

func TestDetectBuildCommandFromManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"),
		[]byte(`{"name":"lib","version":"1.0.0","scripts":{"build":"tsc"}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pnpm-lock.yaml"), nil, 0o644))

	assert.Equal(t, "pnpm run build", detectBuildCommand(dir))
}

func TestDetectBuildCommandNone(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"),
		[]byte(`{"name":"lib","version":"1.0.0"}`), 0o644))

	assert.Equal(t, "", detectBuildCommand(dir))
}

func TestRewriteYalcSpecifiers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"),
		[]byte(`{"name":"app","version":"1.0.0",
			"dependencies":{"a":"file:.yalc/a","b":"^1.0.0"},
			"devDependencies":{"c":"link:.yalc/c","d":"file:.yalc/d"},
			"custom":{"keep":true}}`), 0o644))
	// .yalc copies record the published versions for a and c; d has none.
	for name, version := range map[string]string{"a": "2.3.4", "c": "0.9.0"} {
		pkgDir := filepath.Join(dir, ".yalc", name)
		require.NoError(t, os.MkdirAll(pkgDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "package.json"),
			[]byte(`{"name":"`+name+`","version":"`+version+`"}`), 0o644))
	}

	rewritten, unresolved, err := rewriteYalcSpecifiers(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, rewritten)
	assert.Equal(t, []string{"d"}, unresolved)

	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	require.NoError(t, err)
	var m struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
		Custom          map[string]bool   `json:"custom"`
	}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "^2.3.4", m.Dependencies["a"])
	assert.Equal(t, "^1.0.0", m.Dependencies["b"])
	assert.Equal(t, "^0.9.0", m.DevDependencies["c"])
	assert.Equal(t, "file:.yalc/d", m.DevDependencies["d"])
	assert.True(t, m.Custom["keep"], "unrelated fields preserved")
}

func TestRewriteYalcSpecifiersNoManifest(t *testing.T) {
	rewritten, unresolved, err := rewriteYalcSpecifiers(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, rewritten)
	assert.Empty(t, unresolved)
}

func TestShadowedBins(t *testing.T) {
	root := t.TempDir()
	binDir := filepath.Join(root, "node_modules", ".bin")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "tool"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "other"), []byte("#!/bin/sh\n"), 0o755))

	early := filepath.Join(root, "early")
	require.NoError(t, os.MkdirAll(early, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(early, "tool"), []byte("#!/bin/sh\n"), 0o755))
	// Same name but not executable: does not shadow.
	require.NoError(t, os.WriteFile(filepath.Join(early, "other"), []byte("x"), 0o644))

	late := filepath.Join(root, "late")
	require.NoError(t, os.MkdirAll(late, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(late, "other"), []byte("#!/bin/sh\n"), 0o755))

	// Entries after binDir cannot shadow.
	pathEnv := early + string(os.PathListSeparator) + binDir + string(os.PathListSeparator) + late
	assert.Equal(t, []string{"tool"}, shadowedBins(binDir, pathEnv))

	// binDir absent from PATH: every earlier entry counts.
	pathEnv = early + string(os.PathListSeparator) + late
	assert.Equal(t, []string{"other", "tool"}, shadowedBins(binDir, pathEnv))

	// Empty bin dir: nothing to shadow.
	assert.Empty(t, shadowedBins(filepath.Join(root, "missing"), pathEnv))
}

func TestYalcSpecifiers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"),
		[]byte(`{"name":"app","version":"1.0.0",
			"dependencies":{"a":"file:.yalc/a","b":"^1.0.0"},
			"devDependencies":{"c":"link:.yalc/c"}}`), 0o644))

	got := yalcSpecifiers(dir)
	assert.ElementsMatch(t, []string{"a", "c"}, got)
}
