// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errors defines the structured error type surfaced by plunk
// commands. Every caller-visible failure carries a kind, a one-line title,
// a detail line, and an optional suggestion drawn from a small fixed set,
// so the CLI can print a single consistent diagnostic (or a JSON object in
// --json mode).
package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"github.com/kraklabs/plunk/internal/ui"
)

// Kind identifies a failure class. Kinds are stable strings so they can be
// matched in scripts consuming --json output.
type Kind string

const (
	KindManifestMissing      Kind = "manifest_missing"
	KindManifestFieldMissing Kind = "manifest_field_missing"
	KindPrivatePackage       Kind = "private_package"
	KindNoPublishableFiles   Kind = "no_publishable_files"
	KindNotFoundInStore      Kind = "not_found_in_store"
	KindStoreEntryCorrupt    Kind = "store_entry_corrupt"
	KindPackageNotLinked     Kind = "package_not_linked"
	KindIncompatiblePM       Kind = "incompatible_package_manager_mode"
	KindHookFailed           Kind = "hook_failed"
	KindHookTimeout          Kind = "hook_timeout"
	KindFsPermission         Kind = "fs_permission"
	KindFsNoSpace            Kind = "fs_no_space"
	KindFsBusy               Kind = "fs_busy"
	KindConfigCorrupt        Kind = "config_corrupt"
	KindInput                Kind = "input"
	KindInternal             Kind = "internal"
)

// CLIError is the structured error type shown to users.
type CLIError struct {
	Kind       Kind   `json:"kind"`
	Title      string `json:"title"`
	Detail     string `json:"detail,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Err        error  `json:"-"`
}

func (e *CLIError) Error() string {
	msg := e.Title
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CLIError) Unwrap() error { return e.Err }

// NewError constructs a CLIError with an explicit kind.
func NewError(kind Kind, title, detail, suggestion string, err error) *CLIError {
	return &CLIError{Kind: kind, Title: title, Detail: detail, Suggestion: suggestion, Err: err}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(title, detail, suggestion string, err error) *CLIError {
	return NewError(KindInternal, title, detail, suggestion, err)
}

// NewInputError reports invalid user input; it never wraps a cause.
func NewInputError(title, detail, suggestion string) *CLIError {
	return NewError(KindInput, title, detail, suggestion, nil)
}

// New returns a plain error, for internal plumbing that is wrapped into a
// CLIError closer to the surface.
func New(text string) error { return stderrors.New(text) }

// NewFsError classifies an underlying filesystem error into one of the
// filesystem kinds, attaching the matching suggestion. Unrecognized OS
// errors become KindInternal.
func NewFsError(title, path string, err error) *CLIError {
	detail := path
	switch {
	case stderrors.Is(err, fs.ErrPermission) || stderrors.Is(err, syscall.EACCES) || stderrors.Is(err, syscall.EPERM):
		return NewError(KindFsPermission, title, detail,
			"Check ownership and permissions of the path", err)
	case stderrors.Is(err, syscall.ENOSPC):
		return NewError(KindFsNoSpace, title, detail,
			"Free disk space and retry", err)
	case stderrors.Is(err, syscall.EBUSY) || stderrors.Is(err, syscall.ETXTBSY):
		return NewError(KindFsBusy, title, detail,
			"Stop the dev server or other processes holding the file, then retry", err)
	default:
		return NewError(KindInternal, title, detail, "", err)
	}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var ce *CLIError
	if stderrors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// As exposes errors.As for callers that already import this package.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// Is exposes errors.Is.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// FatalError prints err as a single-line diagnostic (plus suggestion, if
// any) and exits with status 1. In jsonMode the error is emitted as one
// JSON object on stdout instead, so scripted callers always get valid
// JSON.
func FatalError(err error, jsonMode bool) {
	var ce *CLIError
	if !stderrors.As(err, &ce) {
		ce = NewInternalError("Unexpected error", err.Error(), "", err)
	}
	if jsonMode {
		fmt.Printf("{\"error\":{\"kind\":%q,\"title\":%q,\"detail\":%q,\"suggestion\":%q}}\n",
			ce.Kind, ce.Title, ce.Detail, ce.Suggestion)
	} else {
		line := ce.Title
		if ce.Detail != "" {
			line += ": " + ce.Detail
		}
		if ce.Err != nil {
			line += " (" + ce.Err.Error() + ")"
		}
		ui.Errorf("%s", line)
		if ce.Suggestion != "" {
			fmt.Fprintln(os.Stderr, ui.DimText("  → "+ce.Suggestion))
		}
	}
	os.Exit(1)
}
