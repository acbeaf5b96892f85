// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package track

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/plunk/pkg/names"
)

func TestReadConsumerStateMissing(t *testing.T) {
	st := ReadConsumerState(t.TempDir())
	assert.Equal(t, StateVersion, st.Version)
	assert.Empty(t, st.Links)
}

func TestReadConsumerStateCorruptRecovers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(names.StateDir(dir), 0o755))
	require.NoError(t, os.WriteFile(names.StatePath(dir), []byte("{not json"), 0o644))

	st := ReadConsumerState(dir)
	assert.Empty(t, st.Links)

	// A subsequent AddLink produces a well-formed state.
	require.NoError(t, AddLink(dir, "lib", LinkEntry{Version: "1.0.0", BuildID: "abc"}))
	entry, ok := GetLink(dir, "lib")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", entry.Version)

	st = ReadConsumerState(dir)
	assert.Equal(t, StateVersion, st.Version)
}

func TestAddLinkOverwrites(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AddLink(dir, "lib", LinkEntry{Version: "1.0.0", ContentHash: "sha256v2:a"}))
	require.NoError(t, AddLink(dir, "lib", LinkEntry{Version: "1.0.0", ContentHash: "sha256v2:b"}))

	entry, ok := GetLink(dir, "lib")
	require.True(t, ok)
	assert.Equal(t, "sha256v2:b", entry.ContentHash)

	st := ReadConsumerState(dir)
	assert.Len(t, st.Links, 1)
}

func TestRemoveLinkKeepsStateFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AddLink(dir, "lib", LinkEntry{Version: "1.0.0"}))
	require.NoError(t, RemoveLink(dir, "lib"))

	_, ok := GetLink(dir, "lib")
	assert.False(t, ok)
	_, err := os.Stat(names.StatePath(dir))
	assert.NoError(t, err)
}

func TestRegistryIdempotentRegister(t *testing.T) {
	home := t.TempDir()
	for i := 0; i < 3; i++ {
		require.NoError(t, RegisterConsumer(home, "lib", "/proj/a"))
	}
	assert.Equal(t, []string{"/proj/a"}, GetConsumers(home, "lib"))
}

func TestUnregisterConsumerDropsEmptyKey(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, RegisterConsumer(home, "lib", "/proj/a"))
	require.NoError(t, RegisterConsumer(home, "lib", "/proj/b"))

	require.NoError(t, UnregisterConsumer(home, "lib", "/proj/a"))
	assert.Equal(t, []string{"/proj/b"}, GetConsumers(home, "lib"))

	require.NoError(t, UnregisterConsumer(home, "lib", "/proj/b"))
	reg := ReadRegistry(home)
	_, ok := reg["lib"]
	assert.False(t, ok)
}

func TestRegistryCorruptRecovers(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(home, 0o755))
	require.NoError(t, os.WriteFile(names.RegistryPath(home), []byte("]["), 0o644))

	assert.Empty(t, ReadRegistry(home))
	require.NoError(t, RegisterConsumer(home, "lib", "/proj/a"))
	assert.Equal(t, []string{"/proj/a"}, GetConsumers(home, "lib"))
}

func TestCleanStaleConsumers(t *testing.T) {
	home := t.TempDir()

	live := t.TempDir()
	require.NoError(t, AddLink(live, "lib", LinkEntry{Version: "1.0.0", LinkedAt: time.Now()}))

	noLink := t.TempDir()

	gone := filepath.Join(t.TempDir(), "deleted")

	require.NoError(t, RegisterConsumer(home, "lib", live))
	require.NoError(t, RegisterConsumer(home, "lib", noLink))
	require.NoError(t, RegisterConsumer(home, "lib", gone))
	require.NoError(t, RegisterConsumer(home, "dead-pkg", gone))

	removedConsumers, removedPackages, err := CleanStaleConsumers(home)
	require.NoError(t, err)
	assert.Equal(t, 3, removedConsumers)
	assert.Equal(t, 1, removedPackages)
	assert.Equal(t, []string{live}, GetConsumers(home, "lib"))
}

func TestAppendOpsLog(t *testing.T) {
	dir := t.TempDir()
	AppendOpsLog(dir, "publish lib@1.0.0")
	AppendOpsLog(dir, "inject lib@1.0.0")

	lines := OpsLogTail(dir, 10)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "inject lib@1.0.0")
}
