// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides colored terminal output helpers shared by all plunk
// commands. Color is disabled automatically when stdout is not a TTY and
// can be forced on or off via flags and the NO_COLOR / FORCE_COLOR
// environment variables.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Exported color objects for ad-hoc formatting at call sites.
var (
	Cyan   = color.New(color.FgCyan)
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Red    = color.New(color.FgRed)
	Dim    = color.New(color.Faint)
	Bold   = color.New(color.Bold)
)

// InitColors configures global color output. Precedence: explicit noColor
// flag > NO_COLOR env > FORCE_COLOR env > TTY detection.
func InitColors(noColor bool) {
	switch {
	case noColor || os.Getenv("NO_COLOR") != "":
		color.NoColor = true
	case os.Getenv("FORCE_COLOR") != "":
		color.NoColor = false
	default:
		color.NoColor = !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
	}
}

// Header prints a bold section header.
func Header(text string) {
	_, _ = Bold.Println(text)
}

// SubHeader prints a secondary header.
func SubHeader(text string) {
	fmt.Println()
	_, _ = Bold.Println(text)
}

// Info prints an informational line.
func Info(text string) {
	fmt.Println(text)
}

// Infof prints a formatted informational line.
func Infof(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

// Success prints a line with a green check prefix.
func Success(text string) {
	fmt.Printf("%s %s\n", Green.Sprint("✓"), text)
}

// Successf prints a formatted line with a green check prefix.
func Successf(format string, args ...interface{}) {
	Success(fmt.Sprintf(format, args...))
}

// Warning prints a line with a yellow warning prefix to stderr.
func Warning(text string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", Yellow.Sprint("!"), text)
}

// Warningf prints a formatted warning line to stderr.
func Warningf(format string, args ...interface{}) {
	Warning(fmt.Sprintf(format, args...))
}

// Errorf prints a formatted line with a red cross prefix to stderr.
func Errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", Red.Sprint("✗"), fmt.Sprintf(format, args...))
}

// Label prints an aligned "name: value" row.
func Label(name string, value interface{}) {
	fmt.Printf("  %-16s %v\n", name+":", value)
}

// DimText returns text rendered in faint style.
func DimText(text string) string {
	return Dim.Sprint(text)
}

// CountText returns a number rendered in cyan, for stats lines.
func CountText(n int) string {
	return Cyan.Sprint(n)
}
