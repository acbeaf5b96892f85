// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package track

import (
	"encoding/json"
	"log/slog"
	"os"
	"slices"
	"sort"

	"github.com/kraklabs/plunk/pkg/fsutil"
	"github.com/kraklabs/plunk/pkg/names"
)

// Registry maps package names to the consumer directories that linked
// them. One file per plunk home, written atomically; corruption recovers
// to empty.
type Registry map[string][]string

// ReadRegistry loads the global registry under home.
func ReadRegistry(home string) Registry {
	data, err := os.ReadFile(names.RegistryPath(home))
	if err != nil {
		return Registry{}
	}
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		slog.Warn("track.registry_corrupt", "home", home, "err", err)
		return Registry{}
	}
	return reg
}

// WriteRegistry persists the registry atomically.
func WriteRegistry(home string, reg Registry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(names.RegistryPath(home), append(data, '\n'), 0o644)
}

// RegisterConsumer records consumerDir as a consumer of pkg. Idempotent.
func RegisterConsumer(home, pkg, consumerDir string) error {
	reg := ReadRegistry(home)
	if slices.Contains(reg[pkg], consumerDir) {
		return nil
	}
	reg[pkg] = append(reg[pkg], consumerDir)
	sort.Strings(reg[pkg])
	return WriteRegistry(home, reg)
}

// UnregisterConsumer removes consumerDir from pkg's consumers; the key is
// dropped when its list empties.
func UnregisterConsumer(home, pkg, consumerDir string) error {
	reg := ReadRegistry(home)
	list, ok := reg[pkg]
	if !ok {
		return nil
	}
	filtered := slices.DeleteFunc(slices.Clone(list), func(p string) bool { return p == consumerDir })
	if len(filtered) == len(list) {
		return nil
	}
	if len(filtered) == 0 {
		delete(reg, pkg)
	} else {
		reg[pkg] = filtered
	}
	return WriteRegistry(home, reg)
}

// GetConsumers returns the registered consumers of pkg.
func GetConsumers(home, pkg string) []string {
	return ReadRegistry(home)[pkg]
}

// CleanStaleConsumers drops registrations whose consumer directory no
// longer exists or whose state has no matching link, and removes package
// keys whose lists empty out. Returns (removed consumers, removed
// packages).
func CleanStaleConsumers(home string) (int, int, error) {
	reg := ReadRegistry(home)
	removedConsumers := 0
	removedPackages := 0
	for pkg, consumers := range reg {
		var kept []string
		for _, dir := range consumers {
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				removedConsumers++
				continue
			}
			if _, ok := GetLink(dir, pkg); !ok {
				removedConsumers++
				continue
			}
			kept = append(kept, dir)
		}
		if len(kept) == 0 {
			delete(reg, pkg)
			removedPackages++
		} else {
			reg[pkg] = kept
		}
	}
	if removedConsumers == 0 && removedPackages == 0 {
		return 0, 0, nil
	}
	return removedConsumers, removedPackages, WriteRegistry(home, reg)
}
