// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package track persists who consumes what: the per-consumer state file
// and the global consumer registry. Both are JSON written atomically;
// reads recover from absence or corruption by returning an empty value,
// because destroying links on a bad parse is worse than losing them
// silently.
package track

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/kraklabs/plunk/pkg/fsutil"
	"github.com/kraklabs/plunk/pkg/names"
)

// StateVersion is the consumer state schema version.
const StateVersion = "1"

// Role of a project: consumer of linked packages, or library author.
const (
	RoleConsumer = "consumer"
	RoleLibrary  = "library"
)

// LinkEntry records one injected package in a consumer.
type LinkEntry struct {
	Version        string    `json:"version"`
	ContentHash    string    `json:"content_hash"`
	LinkedAt       time.Time `json:"linked_at"`
	SourcePath     string    `json:"source_path"`
	BackupExists   bool      `json:"backup_exists"`
	PackageManager string    `json:"package_manager"`
	BuildID        string    `json:"build_id"`
}

// ConsumerState is the .plunk/state.json payload.
type ConsumerState struct {
	Version        string               `json:"version"`
	PackageManager string               `json:"package_manager"`
	Role           string               `json:"role"`
	Links          map[string]LinkEntry `json:"links"`
}

// emptyState returns a well-formed empty state.
func emptyState() *ConsumerState {
	return &ConsumerState{Version: StateVersion, Role: RoleConsumer, Links: map[string]LinkEntry{}}
}

// ReadConsumerState loads a consumer's state. Missing or unparseable
// files yield an empty state, never an error.
func ReadConsumerState(consumerDir string) *ConsumerState {
	data, err := os.ReadFile(names.StatePath(consumerDir))
	if err != nil {
		return emptyState()
	}
	var st ConsumerState
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("track.state_corrupt", "consumer", consumerDir, "err", err)
		return emptyState()
	}
	if st.Version == "" {
		st.Version = StateVersion
	}
	if st.Links == nil {
		st.Links = map[string]LinkEntry{}
	}
	return &st
}

// WriteConsumerState persists st atomically.
func WriteConsumerState(consumerDir string, st *ConsumerState) error {
	if st.Version == "" {
		st.Version = StateVersion
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(names.StatePath(consumerDir), append(data, '\n'), 0o644)
}

// AddLink overwrites the link entry for name and persists the state.
func AddLink(consumerDir, name string, entry LinkEntry) error {
	st := ReadConsumerState(consumerDir)
	st.Links[name] = entry
	return WriteConsumerState(consumerDir, st)
}

// RemoveLink deletes the link entry for name. The state file remains even
// when no links are left.
func RemoveLink(consumerDir, name string) error {
	st := ReadConsumerState(consumerDir)
	delete(st.Links, name)
	return WriteConsumerState(consumerDir, st)
}

// GetLink returns the link entry for name, if present.
func GetLink(consumerDir, name string) (LinkEntry, bool) {
	st := ReadConsumerState(consumerDir)
	entry, ok := st.Links[name]
	return entry, ok
}
