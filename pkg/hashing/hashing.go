// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hashing computes the content digests plunk relies on: a
// deterministic aggregate digest over a publish's file set (persisted in
// store metadata) and a fast per-file hash used for incremental copy
// decisions (never persisted).
package hashing

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// HashPrefix versions the aggregate digest format. A format change bumps
// the prefix so old store entries are recognizably stale rather than
// silently mismatched.
const HashPrefix = "sha256v2:"

// streamThreshold is the file size above which per-file hashing streams
// instead of reading the whole file.
const streamThreshold = 1 << 20

// FileEntry is one file of a publish set.
type FileEntry struct {
	// Rel is the path relative to the pack root, forward-slash separated.
	Rel string
	// Abs is the absolute on-disk path.
	Abs string
}

// DirectoryDigest computes the aggregate content hash over entries. Entries
// are hashed in sorted Rel order; each contributes
// path · NUL · len(content) as u32 LE · content, so the digest is
// independent of enumeration order and unambiguous across entry
// boundaries. A non-nil cache serves file contents in watch mode.
func DirectoryDigest(entries []FileEntry, cache *ContentCache) (string, error) {
	sorted := make([]FileEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rel < sorted[j].Rel })

	h := sha256.New()
	var lenBuf [4]byte
	for _, e := range sorted {
		var content []byte
		var err error
		if cache != nil {
			content, err = cache.Get(e.Abs)
		} else {
			content, err = os.ReadFile(e.Abs)
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", e.Abs, err)
		}
		h.Write([]byte(e.Rel))
		h.Write([]byte{0})
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(content)))
		h.Write(lenBuf[:])
		h.Write(content)
	}
	if cache != nil {
		keep := make([]string, len(sorted))
		for i, e := range sorted {
			keep[i] = e.Abs
		}
		cache.EvictExcept(keep)
	}
	return HashPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// BuildID derives the short display identifier from an aggregate hash:
// the first 8 hex characters of the digest.
func BuildID(contentHash string) string {
	hexPart := strings.TrimPrefix(contentHash, HashPrefix)
	if len(hexPart) < 8 {
		return hexPart
	}
	return hexPart[:8]
}

// FileHash computes the fast 64-bit hash of one file. Small files are read
// in one shot; larger files stream through the hasher.
func FileHash(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.Size() <= streamThreshold {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		return xxhash.Sum64(data), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
