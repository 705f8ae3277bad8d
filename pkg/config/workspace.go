package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

var (
	// ErrProjectNotFound is returned when a name has no mapping, its directory is
	// missing, or the directory holds no project manifest.
	ErrProjectNotFound = errors.New("project not found")

	// ErrScriptNotFound is returned when neither build-script location exists.
	ErrScriptNotFound = errors.New("build script not found")
)

// ProjectSpec is everything the build core needs to know about one project.
type ProjectSpec struct {
	// Name is the mapped project name.
	Name string

	// Root is the absolute project directory.
	Root string

	// Config is the decoded project manifest.
	Config *ProjectConfig

	// Script is the absolute path of the resolved build script.
	Script string
}

// Workspace resolves project names against a build manifest.
type Workspace struct {
	config *BuildConfig
	logger zerolog.Logger
}

// NewWorkspace creates a workspace for cfg.
func NewWorkspace(cfg *BuildConfig, logger zerolog.Logger) *Workspace {
	return &Workspace{
		config: cfg,
		logger: logger.With().Str("component", "workspace").Logger(),
	}
}

// Config returns the build configuration.
func (w *Workspace) Config() *BuildConfig {
	return w.config
}

// Names returns the mapped project names in sorted order.
func (w *Workspace) Names() []string {
	names := make([]string, 0, len(w.config.Projects))
	for name := range w.config.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProjectPath resolves name to its absolute project directory.
func (w *Workspace) ProjectPath(name string) (string, error) {
	rel, ok := w.config.Projects[name]
	if !ok {
		return "", fmt.Errorf("%w: %q is not mapped in the build manifest", ErrProjectNotFound, name)
	}

	path := w.config.resolve(rel)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %q maps to missing directory %s", ErrProjectNotFound, name, path)
		}
		return "", fmt.Errorf("failed to stat project %s: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %q maps to %s, which is not a directory", ErrProjectNotFound, name, path)
	}

	return path, nil
}

// Lookup resolves name, loads its manifest and locates its build script.
func (w *Workspace) Lookup(name string) (*ProjectSpec, error) {
	root, err := w.ProjectPath(name)
	if err != nil {
		return nil, err
	}

	cfg, err := LoadProjectConfig(root)
	if err != nil {
		if errors.Is(err, ErrManifestNotFound) {
			return nil, fmt.Errorf("%w: %q: %w", ErrProjectNotFound, name, err)
		}
		return nil, err
	}

	if cfg.Name != "" && cfg.Name != name {
		w.logger.Warn().
			Str("project", name).
			Str("manifest_name", cfg.Name).
			Str("root", root).
			Msg("Project manifest name does not match its mapped name")
	}

	script, err := w.ResolveScript(name, root, cfg.Script)
	if err != nil {
		return nil, err
	}

	return &ProjectSpec{
		Name:   name,
		Root:   root,
		Config: cfg,
		Script: script,
	}, nil
}

// ResolveScript locates a project's build script. The centralized location
// <script_dir>/<name>/<script> is searched first, then <projectRoot>/<script>.
// An absolute script path is used as is.
func (w *Workspace) ResolveScript(name, projectRoot, script string) (string, error) {
	if script == "" {
		script = DefaultScript
	}

	var candidates []string
	if filepath.IsAbs(script) {
		candidates = []string{script}
	} else {
		candidates = []string{
			filepath.Join(w.config.ScriptPath(), name, script),
			filepath.Join(projectRoot, script),
		}
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat build script %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf("%w for %q (looked in %v)", ErrScriptNotFound, name, candidates)
}
