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
	"sort"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/plunk/internal/errors"
	"github.com/kraklabs/plunk/internal/output"
	"github.com/kraklabs/plunk/internal/ui"
	"github.com/kraklabs/plunk/pkg/fsutil"
)

func runMigrate(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	yes := fs.BoolP("yes", "y", false, "Remove detected state without prompting")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: plunk migrate [options]

Description:
  Detect state left behind by yalc in this project (.yalc/ directory,
  yalc.lock, file:.yalc/ dependency specifiers) and clean it up so plunk
  can take over. Dependency specifiers pointing into .yalc/ are rewritten
  back to registry versions using the version each .yalc copy recorded.
  The global ~/.yalc store is reported but never touched.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  plunk migrate
  plunk migrate -y

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	consumer := mustCwd(globals)

	yalcDir := filepath.Join(consumer, ".yalc")
	yalcLock := filepath.Join(consumer, "yalc.lock")
	_, dirErr := os.Stat(yalcDir)
	_, lockErr := os.Stat(yalcLock)
	specifiers := yalcSpecifiers(consumer)

	globalStore := ""
	if home, err := os.UserHomeDir(); err == nil {
		if _, err := os.Stat(filepath.Join(home, ".yalc")); err == nil {
			globalStore = filepath.Join(home, ".yalc")
		}
	}

	found := dirErr == nil || lockErr == nil || len(specifiers) > 0
	if !found {
		if globals.JSON {
			output.JSON(map[string]interface{}{"found": false})
		} else {
			ui.Info("No yalc state found in this project.")
			if globalStore != "" {
				ui.Infof("Global yalc store at %s left untouched.", ui.DimText(globalStore))
			}
		}
		return
	}

	if !globals.JSON {
		ui.Header("yalc state detected")
		if dirErr == nil {
			ui.Label(".yalc directory", yalcDir)
		}
		if lockErr == nil {
			ui.Label("yalc.lock", yalcLock)
		}
		if len(specifiers) > 0 {
			ui.Label("file:.yalc deps", strings.Join(specifiers, ", "))
		}
		if globalStore != "" {
			ui.Label("global store", globalStore+" (not touched)")
		}
	}

	if !*yes && !globals.JSON {
		if !confirm(bufio.NewReader(os.Stdin), "Remove this project's yalc state?") {
			ui.Info("Aborted.")
			return
		}
	}

	// Rewrite specifiers first: the versions live in the .yalc copies that
	// are about to be deleted.
	rewritten, unresolved, err := rewriteYalcSpecifiers(consumer)
	if err != nil {
		errors.FatalError(errors.NewFsError("Cannot rewrite package.json", consumer, err), globals.JSON)
	}

	removed := []string{}
	if dirErr == nil {
		if err := fsutil.RemoveTree(yalcDir); err != nil {
			errors.FatalError(errors.NewFsError("Cannot remove .yalc", yalcDir, err), globals.JSON)
		}
		removed = append(removed, yalcDir)
	}
	if lockErr == nil {
		if err := fsutil.RemoveTree(yalcLock); err != nil {
			errors.FatalError(errors.NewFsError("Cannot remove yalc.lock", yalcLock, err), globals.JSON)
		}
		removed = append(removed, yalcLock)
	}

	if globals.JSON {
		output.JSON(map[string]interface{}{
			"found":       true,
			"removed":     removed,
			"rewritten":   rewritten,
			"unresolved":  unresolved,
			"globalStore": globalStore,
		})
		return
	}
	ui.Successf("Removed %s paths", ui.CountText(len(removed)))
	if len(rewritten) > 0 {
		ui.Successf("Rewrote %s dependency specifiers to registry versions: %s",
			ui.CountText(len(rewritten)), strings.Join(rewritten, ", "))
	}
	if len(unresolved) > 0 {
		ui.Warningf("package.json still has file:.yalc specifiers: %s", strings.Join(unresolved, ", "))
		ui.Info(ui.DimText("  Their .yalc copies carried no version; restore the registry versions by hand."))
	}
	if len(rewritten) > 0 {
		ui.Info(ui.DimText("  Reinstall with your package manager, then run plunk add for each package."))
	}
}

// yalcSpecifiers lists dependencies whose specifier points into .yalc/.
func yalcSpecifiers(dir string) []string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil
	}
	var m struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	var out []string
	for _, deps := range []map[string]string{m.Dependencies, m.DevDependencies} {
		for name, spec := range deps {
			if isYalcSpecifier(spec) {
				out = append(out, name)
			}
		}
	}
	return out
}

func isYalcSpecifier(spec string) bool {
	return strings.HasPrefix(spec, "file:.yalc/") || strings.HasPrefix(spec, "link:.yalc/")
}

// rewriteYalcSpecifiers replaces file:.yalc/<name> and link:.yalc/<name>
// specifiers in dependencies/devDependencies with the version recorded in
// the package's .yalc copy (as a caret range), preserving every other
// manifest field. Returns the rewritten names and those left in place
// because no version could be recovered.
func rewriteYalcSpecifiers(dir string) (rewritten, unresolved []string, err error) {
	path := filepath.Join(dir, "package.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}

	changed := false
	for _, field := range []string{"dependencies", "devDependencies"} {
		rawDeps, ok := raw[field]
		if !ok {
			continue
		}
		var deps map[string]string
		if err := json.Unmarshal(rawDeps, &deps); err != nil {
			continue
		}
		fieldChanged := false
		for name, spec := range deps {
			if !isYalcSpecifier(spec) {
				continue
			}
			version := yalcPackageVersion(dir, name)
			if version == "" {
				unresolved = append(unresolved, name)
				continue
			}
			deps[name] = "^" + version
			rewritten = append(rewritten, name)
			fieldChanged = true
		}
		if fieldChanged {
			encoded, err := json.Marshal(deps)
			if err != nil {
				return rewritten, unresolved, err
			}
			raw[field] = encoded
			changed = true
		}
	}
	sort.Strings(rewritten)
	sort.Strings(unresolved)
	if !changed {
		return rewritten, unresolved, nil
	}

	out, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return rewritten, unresolved, err
	}
	return rewritten, unresolved, fsutil.WriteFileAtomic(path, append(out, '\n'), 0o644)
}

// yalcPackageVersion reads the version a yalc install recorded in its
// .yalc/<name>/package.json copy.
func yalcPackageVersion(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, ".yalc", filepath.FromSlash(name), "package.json"))
	if err != nil {
		return ""
	}
	var m struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return ""
	}
	return m.Version
}
