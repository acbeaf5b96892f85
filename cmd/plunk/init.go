// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/internal/output"
	"github.com/kraklabs/plunk/internal/ui"
	"github.com/kraklabs/plunk/pkg/fsutil"
	"github.com/kraklabs/plunk/pkg/names"
	"github.com/kraklabs/plunk/pkg/pm"
	"github.com/kraklabs/plunk/pkg/project"
	"github.com/kraklabs/plunk/pkg/track"
)

type initFlags struct {
	yes   bool
	force bool
	role  string
}

func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f initFlags
	fs.BoolVarP(&f.yes, "yes", "y", false, "Non-interactive mode (use defaults)")
	fs.BoolVar(&f.force, "force", false, "Overwrite existing configuration")
	fs.StringVar(&f.role, "role", track.RoleConsumer, "Project role: consumer or library")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: plunk init [options]

Description:
  Configure the current project for plunk: detect the package manager,
  create the .plunk state directory and config, and add .plunk/ to
  .gitignore when the project is a git repository.

  With --role=library the project is set up as a package author:
  a "plunk:push" script is offered for package.json.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Interactive setup
  plunk init

  # Non-interactive consumer setup
  plunk init -y

  # Library author setup
  plunk init --role=library -y

Notes:
  Configuration is stored in .plunk/config.yaml. Re-run with --force to
  recreate it.

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if f.role != track.RoleConsumer && f.role != track.RoleLibrary {
		errors.FatalError(errors.NewInputError(
			"Invalid role", f.role, "Use --role=consumer or --role=library"), globals.JSON)
	}

	cwd := mustCwd(globals)

	configPath := names.ConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil && !f.force {
		errors.FatalError(errors.NewInputError(
			"Configuration already exists",
			fmt.Sprintf("%s already exists in this directory", configPath),
			"Use 'plunk init --force' to overwrite the existing configuration",
		), globals.JSON)
	}

	mode, err := pm.Detect(cwd)
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot detect package manager", cwd, "", err), globals.JSON)
	}
	if err := mode.Compatible(); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	cfg := project.Default(f.role, string(mode.Manager))
	if err := project.Save(cwd, cfg); err != nil {
		errors.FatalError(errors.NewFsError("Cannot write project config", configPath, err), globals.JSON)
	}

	st := track.ReadConsumerState(cwd)
	st.PackageManager = string(mode.Manager)
	st.Role = f.role
	if err := track.WriteConsumerState(cwd, st); err != nil {
		errors.FatalError(errors.NewFsError("Cannot write state file", names.StatePath(cwd), err), globals.JSON)
	}

	gitignored := addGitignoreEntry(cwd)

	scriptsAdded := false
	if f.role == track.RoleLibrary {
		reader := bufio.NewReader(os.Stdin)
		if f.yes || confirm(reader, `Add a "plunk:push" script to package.json?`) {
			scriptsAdded = addPushScript(cwd)
		}
	}

	if globals.JSON {
		output.JSON(map[string]interface{}{
			"package_manager": string(mode.Manager),
			"role":            f.role,
			"config":          configPath,
			"gitignore_added": gitignored,
			"scripts_added":   scriptsAdded,
		})
		return
	}

	ui.Successf("Created %s", configPath)
	ui.Label("Package manager", string(mode.Manager))
	ui.Label("Role", f.role)
	if gitignored {
		ui.Info("Added .plunk/ to .gitignore")
	}
	if scriptsAdded {
		ui.Info(`Added "plunk:push" script to package.json`)
	}

	ui.SubHeader("Next steps:")
	if f.role == track.RoleLibrary {
		fmt.Printf("  1. Run '%s' to publish this package\n", ui.Cyan.Sprint("plunk publish"))
		fmt.Printf("  2. Run '%s' to rebuild and push on change\n", ui.Cyan.Sprint("plunk dev"))
	} else {
		fmt.Printf("  1. Run '%s' in the library to publish it\n", ui.Cyan.Sprint("plunk publish"))
		fmt.Printf("  2. Run '%s' here to link it\n", ui.Cyan.Sprint("plunk add <package>"))
	}
}

// confirm asks a y/N question on stdin.
func confirm(reader *bufio.Reader, question string) bool {
	fmt.Printf("%s [y/N] ", question)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// addGitignoreEntry appends .plunk/ to .gitignore for git repositories.
// Idempotent; reports whether an entry was added.
func addGitignoreEntry(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return false
	}
	path := filepath.Join(dir, ".gitignore")
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == ".plunk" || trimmed == ".plunk/" {
			return false
		}
	}
	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += ".plunk/\n"
	if fsutil.IsDryRun() {
		return false
	}
	return os.WriteFile(path, []byte(content), 0o644) == nil
}

// addPushScript inserts scripts["plunk:push"] = "plunk push" into
// package.json, preserving every other field. Reports success.
func addPushScript(dir string) bool {
	path := filepath.Join(dir, "package.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return false
	}
	scripts := map[string]string{}
	if existing, ok := raw["scripts"]; ok {
		if err := json.Unmarshal(existing, &scripts); err != nil {
			return false
		}
	}
	if _, ok := scripts["plunk:push"]; ok {
		return false
	}
	scripts["plunk:push"] = "plunk push"
	encoded, err := json.Marshal(scripts)
	if err != nil {
		return false
	}
	raw["scripts"] = encoded
	out, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return false
	}
	if fsutil.IsDryRun() {
		return false
	}
	return fsutil.WriteFileAtomic(path, append(out, '\n'), 0o644) == nil
}
