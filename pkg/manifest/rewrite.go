// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package manifest

import (
	"encoding/json"
	"strings"
)

// dependencyFields are the specifier maps subject to workspace rewriting.
var dependencyFields = []string{
	"dependencies",
	"devDependencies",
	"peerDependencies",
	"optionalDependencies",
}

// publishConfigOverrides are the publishConfig keys merged into the
// written manifest.
var publishConfigOverrides = []string{
	"main",
	"module",
	"browser",
	"types",
	"typings",
	"exports",
	"bin",
}

// ForPublish renders the manifest as written into a store entry:
// workspace-protocol specifiers are replaced with concrete versions,
// publishConfig overrides are merged in, and the publishConfig key itself
// is dropped. The source file is untouched.
func (m *Manifest) ForPublish() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.raw))
	for k, v := range m.raw {
		out[k] = v
	}

	for _, field := range dependencyFields {
		raw, ok := out[field]
		if !ok {
			continue
		}
		var deps map[string]string
		if err := json.Unmarshal(raw, &deps); err != nil {
			continue
		}
		changed := false
		for name, spec := range deps {
			if rewritten, ok := RewriteWorkspaceSpec(spec, m.Version); ok {
				deps[name] = rewritten
				changed = true
			}
		}
		if changed {
			encoded, err := json.Marshal(deps)
			if err != nil {
				return nil, err
			}
			out[field] = encoded
		}
	}

	if pc := m.publishConfig(); pc != nil {
		for _, key := range publishConfigOverrides {
			if v, ok := pc[key]; ok {
				out[key] = v
			}
		}
	}
	delete(out, "publishConfig")

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RewriteWorkspaceSpec maps a workspace-protocol specifier to a concrete
// one using the package's own version:
//
//	workspace:*      -> <version>
//	workspace:^      -> ^<version>
//	workspace:~      -> ~<version>
//	workspace:<spec> -> <spec>
//
// The second result is false for non-workspace specifiers.
func RewriteWorkspaceSpec(spec, version string) (string, bool) {
	rest, ok := strings.CutPrefix(spec, "workspace:")
	if !ok {
		return spec, false
	}
	switch rest {
	case "*", "":
		return version, true
	case "^", "~":
		return rest + version, true
	default:
		return rest, true
	}
}
