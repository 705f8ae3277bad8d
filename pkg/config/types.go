package config

import (
	"path/filepath"
	"sort"
)

// Dependency kinds understood by the build core. Any kind other than
// DependencyOrdinary is treated as a precondition.
const (
	DependencyOrdinary  = "ordinary"
	DependencyBuildOnly = "build-only"
)

// Defaults applied to manifests after decoding.
const (
	DefaultScriptDir = "scripts"
	DefaultStateDir  = ".pallet"
	DefaultScript    = "build.sh"
)

// BuildConfig is the build-wide configuration loaded from the build manifest.
type BuildConfig struct {
	// Root is the absolute build-root path. It is set by the loader, never decoded.
	Root string `json:"-" yaml:"-"`

	// Prefix is the install prefix handed to every build action.
	Prefix string `json:"prefix" yaml:"prefix" validate:"required"`

	// Host identifies the machine the stack is built for.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Environment is the global overlay applied to every build action.
	Environment Environment `json:"environment,omitempty" yaml:"environment,omitempty" validate:"dive"`

	// Projects maps project names to their directories (relative to Root or absolute).
	Projects map[string]string `json:"projects,omitempty" yaml:"projects,omitempty" validate:"dive,keys,required,endkeys,required"`

	// ScriptDir is the centralized build-script directory (relative to Root or absolute).
	ScriptDir string `json:"script_dir,omitempty" yaml:"script_dir,omitempty"`

	// StateDir holds the ledger database (relative to Root or absolute).
	StateDir string `json:"state_dir,omitempty" yaml:"state_dir,omitempty"`
}

// ProjectConfig is the configuration loaded from a project manifest.
type ProjectConfig struct {
	// Name is the name the project calls itself. It should match the mapped name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Dependencies maps a dependency kind to project names.
	Dependencies map[string][]string `json:"dependencies,omitempty" yaml:"dependencies,omitempty" validate:"dive,keys,required,endkeys,dive,required"`

	// Environment is layered on top of the build-wide environment.
	Environment Environment `json:"environment,omitempty" yaml:"environment,omitempty" validate:"dive"`

	// Script is the build script file name searched for by the workspace.
	Script string `json:"script,omitempty" yaml:"script,omitempty"`
}

// DependencyGroup is the set of project names declared under one dependency kind.
type DependencyGroup struct {
	Kind  string
	Names []string
}

// Ordinary reports whether the group's names must be built before the dependent.
func (g DependencyGroup) Ordinary() bool {
	return g.Kind == DependencyOrdinary
}

// Groups returns the dependency groups in a stable order: precondition kinds
// sorted by name, followed by the ordinary group. Duplicate names within a group
// are dropped, keeping the first occurrence.
func (p *ProjectConfig) Groups() []DependencyGroup {
	kinds := make([]string, 0, len(p.Dependencies))
	for kind := range p.Dependencies {
		if kind != DependencyOrdinary {
			kinds = append(kinds, kind)
		}
	}
	sort.Strings(kinds)
	if _, ok := p.Dependencies[DependencyOrdinary]; ok {
		kinds = append(kinds, DependencyOrdinary)
	}

	groups := make([]DependencyGroup, 0, len(kinds))
	for _, kind := range kinds {
		names := dedupe(p.Dependencies[kind])
		if len(names) == 0 {
			continue
		}
		groups = append(groups, DependencyGroup{Kind: kind, Names: names})
	}
	return groups
}

// StatePath returns the absolute state directory.
func (c *BuildConfig) StatePath() string {
	return c.resolve(c.StateDir)
}

// ScriptPath returns the absolute centralized script directory.
func (c *BuildConfig) ScriptPath() string {
	return c.resolve(c.ScriptDir)
}

// LedgerPath returns the path of the ledger database inside the state directory.
func (c *BuildConfig) LedgerPath() string {
	return filepath.Join(c.StatePath(), "ledger.db")
}

// resolve joins a possibly relative path with the build root.
func (c *BuildConfig) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.Root, path)
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
