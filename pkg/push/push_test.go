// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package push

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/plunk/pkg/publish"
	"github.com/kraklabs/plunk/pkg/store"
	"github.com/kraklabs/plunk/pkg/track"
)

func writeSource(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func newEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s := store.New(t.TempDir(), nil)
	return New(s, publish.New(s, nil), nil), s
}

func addConsumer(t *testing.T, home, pkg string) string {
	t.Helper()
	consumer := t.TempDir()
	require.NoError(t, track.AddLink(consumer, pkg, track.LinkEntry{
		Version:        "1.0.0",
		PackageManager: "npm",
	}))
	require.NoError(t, track.RegisterConsumer(home, pkg, consumer))
	return consumer
}

func TestPushFanOut(t *testing.T) {
	e, s := newEngine(t)
	src := writeSource(t, map[string]string{
		"package.json":  `{"name":"lib","version":"1.0.0","files":["dist"]}`,
		"dist/index.js": "const a=1;",
	})
	c1 := addConsumer(t, s.Home(), "lib")
	c2 := addConsumer(t, s.Home(), "lib")

	res, err := e.Push(context.Background(), src, Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Publish)
	assert.False(t, res.Publish.Skipped)
	assert.Len(t, res.Pushed, 2)
	assert.Empty(t, res.Failed)

	for _, consumer := range []string{c1, c2} {
		data, err := os.ReadFile(filepath.Join(consumer, "node_modules", "lib", "dist", "index.js"))
		require.NoError(t, err)
		assert.Equal(t, "const a=1;", string(data))

		link, ok := track.GetLink(consumer, "lib")
		require.True(t, ok)
		assert.Equal(t, res.Publish.ContentHash, link.ContentHash)
		assert.Equal(t, res.Publish.BuildID, link.BuildID)
	}
}

func TestPushSkippedPublishShortCircuits(t *testing.T) {
	e, s := newEngine(t)
	src := writeSource(t, map[string]string{
		"package.json":  `{"name":"lib","version":"1.0.0","files":["dist"]}`,
		"dist/index.js": "x",
	})
	addConsumer(t, s.Home(), "lib")

	_, err := e.Push(context.Background(), src, Options{})
	require.NoError(t, err)

	res, err := e.Push(context.Background(), src, Options{})
	require.NoError(t, err)
	assert.True(t, res.Publish.Skipped)
	assert.Empty(t, res.Pushed)
}

func TestPushForcedTouchesStateWhenUnchanged(t *testing.T) {
	e, s := newEngine(t)
	src := writeSource(t, map[string]string{
		"package.json":  `{"name":"lib","version":"1.0.0","files":["dist"]}`,
		"dist/index.js": "x",
	})
	consumer := addConsumer(t, s.Home(), "lib")

	_, err := e.Push(context.Background(), src, Options{})
	require.NoError(t, err)
	before, ok := track.GetLink(consumer, "lib")
	require.True(t, ok)

	res, err := e.Push(context.Background(), src, Options{Force: true})
	require.NoError(t, err)
	require.Len(t, res.Pushed, 1)
	assert.Equal(t, 0, res.FilesChanged)

	after, ok := track.GetLink(consumer, "lib")
	require.True(t, ok)
	assert.True(t, after.LinkedAt.After(before.LinkedAt),
		"link entry rewritten even when no files changed")
}

func TestPushIsolatesFailedConsumer(t *testing.T) {
	e, s := newEngine(t)
	src := writeSource(t, map[string]string{
		"package.json":  `{"name":"lib","version":"1.0.0","files":["dist"]}`,
		"dist/index.js": "const a=1;",
	})
	healthy := addConsumer(t, s.Home(), "lib")
	broken := addConsumer(t, s.Home(), "lib")
	// node_modules as a file makes the copy fail for this consumer.
	require.NoError(t, os.WriteFile(filepath.Join(broken, "node_modules"), []byte("x"), 0o644))

	res, err := e.Push(context.Background(), src, Options{})
	require.NoError(t, err)
	require.Len(t, res.Pushed, 1)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, broken, res.Failed[0].Consumer)
	assert.Equal(t, healthy, res.Pushed[0].Consumer)

	_, err = os.Stat(filepath.Join(healthy, "node_modules", "lib", "dist", "index.js"))
	assert.NoError(t, err)
}

func TestPushDeletionPropagates(t *testing.T) {
	e, s := newEngine(t)
	src := writeSource(t, map[string]string{
		"package.json":       `{"name":"lib","version":"1.0.0","files":["dist"]}`,
		"dist/keep.js":       "k",
		"dist/remove-me.js":  "r",
	})
	consumer := addConsumer(t, s.Home(), "lib")

	_, err := e.Push(context.Background(), src, Options{})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(consumer, "node_modules", "lib", "dist", "remove-me.js"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(src, "dist", "remove-me.js")))
	res, err := e.Push(context.Background(), src, Options{})
	require.NoError(t, err)
	require.Len(t, res.Pushed, 1)

	_, err = os.Stat(filepath.Join(consumer, "node_modules", "lib", "dist", "remove-me.js"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(consumer, "node_modules", "lib", "dist", "keep.js"))
	assert.NoError(t, err)
}
