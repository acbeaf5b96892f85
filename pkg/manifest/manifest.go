// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package manifest models the package.json of a publishable package.
//
// The file is parsed twice: into typed fields for reading, and into a raw
// key map that preserves unknown fields so the rewritten manifest written
// into a store entry keeps everything the author put there. The source
// manifest on disk is never modified.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/pkg/names"
)

// FileName is the manifest file name.
const FileName = "package.json"

// PeerMeta is one peerDependenciesMeta entry.
type PeerMeta struct {
	Optional bool `json:"optional"`
}

// Manifest is a parsed package.json.
type Manifest struct {
	Name                 string              `json:"name"`
	Version              string              `json:"version"`
	Private              bool                `json:"private"`
	Files                []string            `json:"files"`
	Scripts              map[string]string   `json:"scripts"`
	Dependencies         map[string]string   `json:"dependencies"`
	PeerDependencies     map[string]string   `json:"peerDependencies"`
	PeerDependenciesMeta map[string]PeerMeta `json:"peerDependenciesMeta"`

	raw map[string]json.RawMessage
	dir string
}

// Load reads and validates <dir>/package.json.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.NewError(errors.KindManifestMissing,
			"No package.json found", dir,
			"Run plunk from a package directory, or pass the directory as an argument", err)
	}
	if err != nil {
		return nil, errors.NewFsError("Cannot read package.json", path, err)
	}
	return Parse(data, dir)
}

// Parse decodes manifest bytes. dir is retained for path resolution.
func Parse(data []byte, dir string) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.NewError(errors.KindManifestFieldMissing,
			"Cannot parse package.json", dir,
			"Fix the JSON syntax in package.json", err)
	}
	if err := json.Unmarshal(data, &m.raw); err != nil {
		return nil, errors.NewError(errors.KindManifestFieldMissing,
			"Cannot parse package.json", dir, "Fix the JSON syntax in package.json", err)
	}
	m.dir = dir
	if m.Name == "" {
		return nil, errors.NewError(errors.KindManifestFieldMissing,
			"Manifest field missing", `package.json has no "name"`,
			`Add a "name" field to package.json`, nil)
	}
	if m.Version == "" {
		return nil, errors.NewError(errors.KindManifestFieldMissing,
			"Manifest field missing", fmt.Sprintf("%s has no version", m.Name),
			`Add a "version" field to package.json`, nil)
	}
	return &m, nil
}

// Dir returns the directory the manifest was loaded from.
func (m *Manifest) Dir() string { return m.dir }

// HasFilesList reports whether the manifest declares an explicit files
// list (an empty declared list still counts as declared).
func (m *Manifest) HasFilesList() bool {
	_, ok := m.raw["files"]
	return ok
}

// Script returns the named lifecycle script, if declared.
func (m *Manifest) Script(name string) (string, bool) {
	s, ok := m.Scripts[name]
	return s, ok && s != ""
}

// Bins returns the executables map. A string bin field yields one entry
// keyed by the unscoped package name.
func (m *Manifest) Bins() map[string]string {
	raw, ok := m.raw["bin"]
	if !ok {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return map[string]string{names.UnscopedName(m.Name): single}
	}
	var multi map[string]string
	if err := json.Unmarshal(raw, &multi); err == nil {
		return multi
	}
	return nil
}

// RuntimeDeps returns the runtime dependencies plus non-optional peer
// dependencies, as the injector's missing-dependency check needs them.
func (m *Manifest) RuntimeDeps() map[string]string {
	deps := make(map[string]string, len(m.Dependencies)+len(m.PeerDependencies))
	for name, spec := range m.Dependencies {
		deps[name] = spec
	}
	for name, spec := range m.PeerDependencies {
		if meta, ok := m.PeerDependenciesMeta[name]; ok && meta.Optional {
			continue
		}
		deps[name] = spec
	}
	return deps
}

// PublishConfigDirectory returns publishConfig.directory, or "".
func (m *Manifest) PublishConfigDirectory() string {
	pc := m.publishConfig()
	if pc == nil {
		return ""
	}
	var dir string
	if raw, ok := pc["directory"]; ok {
		_ = json.Unmarshal(raw, &dir)
	}
	return dir
}

// PackRoot resolves the directory files are packed from: the manifest's
// directory, or publishConfig.directory relative to it.
func (m *Manifest) PackRoot() string {
	if dir := m.PublishConfigDirectory(); dir != "" {
		if filepath.IsAbs(dir) {
			return filepath.Clean(dir)
		}
		return filepath.Clean(filepath.Join(m.dir, dir))
	}
	return m.dir
}

func (m *Manifest) publishConfig() map[string]json.RawMessage {
	raw, ok := m.raw["publishConfig"]
	if !ok {
		return nil
	}
	var pc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &pc); err != nil {
		return nil
	}
	return pc
}
