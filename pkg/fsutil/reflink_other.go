// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !linux

package fsutil

import "errors"

var errReflinkUnsupported = errors.New("reflink not supported on this platform")

func reflinkFile(src, dst string) error {
	return errReflinkUnsupported
}

func volumeID(path string) (uint64, error) {
	return 0, errReflinkUnsupported
}
