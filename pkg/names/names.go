// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package names defines the on-disk layout of the plunk home directory and
// the reversible encoding of scoped package names used for store entry and
// backup directory names.
package names

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/plunk/internal/errors"
)

const (
	// StateDirName is the per-consumer state directory.
	StateDirName = ".plunk"
	// DepsDirName is the dependency directory all supported managers use.
	DepsDirName = "node_modules"
	// MetaFileName is the per-entry metadata file.
	MetaFileName = ".plunk-meta.json"
	// PackageDirName holds the packed files inside a store entry.
	PackageDirName = "package"
)

// Encode maps a package name to a directory-safe form: "/" becomes "+".
// Reversible because npm package names may not contain "+".
func Encode(name string) string {
	return strings.ReplaceAll(name, "/", "+")
}

// Decode reverses Encode. For scoped names only the first "+" separates the
// scope from the sub-name.
func Decode(encoded string) string {
	if strings.HasPrefix(encoded, "@") {
		return strings.Replace(encoded, "+", "/", 1)
	}
	return encoded
}

// EntryDirName returns the store directory name for (name, version).
func EntryDirName(name, version string) string {
	return Encode(name) + "@" + version
}

// ParseEntryDirName splits an encoded "name@version" directory name.
// The version separator is the last "@" that is not the leading scope
// marker. ok is false for names that do not follow the layout.
func ParseEntryDirName(dir string) (name, version string, ok bool) {
	idx := strings.LastIndex(dir, "@")
	if idx <= 0 {
		// idx==0 means a scoped name with no version suffix.
		return "", "", false
	}
	name = Decode(dir[:idx])
	version = dir[idx+1:]
	if name == "" || version == "" {
		return "", "", false
	}
	return name, version, true
}

// Home resolves the plunk home directory: PLUNK_HOME > ~/.plunk.
func Home() (string, error) {
	if env := os.Getenv("PLUNK_HOME"); env != "" {
		if filepath.IsAbs(env) {
			return filepath.Clean(env), nil
		}
		abs, err := filepath.Abs(env)
		if err != nil {
			return "", err
		}
		return filepath.Clean(abs), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternalError(
			"Cannot determine home directory",
			"Operating system did not provide user home directory path",
			"Set PLUNK_HOME or the HOME environment variable",
			err,
		)
	}
	return filepath.Join(home, ".plunk"), nil
}

// StoreRoot returns the store directory under home.
func StoreRoot(home string) string {
	return filepath.Join(home, "store")
}

// RegistryPath returns the global consumer registry file under home.
func RegistryPath(home string) string {
	return filepath.Join(home, "consumers.json")
}

// EntryDir returns the store entry directory for (name, version).
func EntryDir(home, name, version string) string {
	return filepath.Join(StoreRoot(home), EntryDirName(name, version))
}

// PackageDir returns the packed-files subdirectory of a store entry.
func PackageDir(entryDir string) string {
	return filepath.Join(entryDir, PackageDirName)
}

// MetaPath returns the metadata file of a store entry.
func MetaPath(entryDir string) string {
	return filepath.Join(entryDir, MetaFileName)
}

// StateDir returns the consumer state directory.
func StateDir(consumerDir string) string {
	return filepath.Join(consumerDir, StateDirName)
}

// StatePath returns the consumer state file.
func StatePath(consumerDir string) string {
	return filepath.Join(StateDir(consumerDir), "state.json")
}

// ConfigPath returns the consumer project config file.
func ConfigPath(consumerDir string) string {
	return filepath.Join(StateDir(consumerDir), "config.yaml")
}

// BackupDir returns the backup directory for one package in a consumer.
func BackupDir(consumerDir, name string) string {
	return filepath.Join(StateDir(consumerDir), "backups", Encode(name))
}

// OpsLogPath returns the append-only diagnostics log of a consumer.
func OpsLogPath(consumerDir string) string {
	return filepath.Join(StateDir(consumerDir), "ops.log")
}

// DepPath returns the direct dependency path of a package inside a
// consumer. Scoped names map to nested directories.
func DepPath(consumerDir, name string) string {
	return filepath.Join(consumerDir, DepsDirName, filepath.FromSlash(name))
}

// BinDir returns the executables directory of a consumer.
func BinDir(consumerDir string) string {
	return filepath.Join(consumerDir, DepsDirName, ".bin")
}

// UnscopedName strips the scope from a package name: "@s/n" -> "n".
func UnscopedName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
