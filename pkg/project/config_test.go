// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package project

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/pkg/names"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default("library", "pnpm")
	cfg.Build = "npm run build"
	cfg.Watch = WatchConfig{DebounceMs: 250, CooldownMs: 1000, Patterns: []string{"src"}}

	require.NoError(t, Save(dir, cfg))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ConfigVersion, got.Version)
	assert.Equal(t, "library", got.Role)
	assert.Equal(t, "pnpm", got.PackageManager)
	assert.Equal(t, "npm run build", got.Build)
	assert.Equal(t, 250*time.Millisecond, got.Debounce())
	assert.Equal(t, time.Second, got.Cooldown())
	assert.Equal(t, []string{"src"}, got.Watch.Patterns)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.True(t, os.IsNotExist(err))
}

func TestLoadCorruptFailsLoudly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(names.StateDir(dir), 0o755))
	require.NoError(t, os.WriteFile(names.ConfigPath(dir), []byte("{{{"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfigCorrupt))
}
