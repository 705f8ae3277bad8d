package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Manifest file names, in lookup order.
var (
	BuildManifestNames   = []string{"pallet.yaml", "pallet.yml", "pallet.cue"}
	ProjectManifestNames = []string{"project.yaml", "project.yml", "project.cue"}
)

// ErrManifestNotFound is returned when a directory holds none of the expected manifests.
var ErrManifestNotFound = errors.New("manifest not found")

var validate = validator.New()

// ParseError reports a manifest that exists but could not be decoded or validated.
type ParseError struct {
	// Path is the manifest file.
	Path string

	// Err is the decoder or validator error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid manifest %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// LoadBuildConfig loads the build manifest found in root.
func LoadBuildConfig(root string) (*BuildConfig, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve build root %s: %w", root, err)
	}

	path, err := findManifest(abs, BuildManifestNames)
	if err != nil {
		return nil, err
	}

	cfg := &BuildConfig{}
	if err := decodeManifest(path, cfg); err != nil {
		return nil, err
	}

	cfg.Root = abs
	if cfg.Host == "" {
		cfg.Host = runtime.GOARCH + "-" + runtime.GOOS
	}
	if cfg.ScriptDir == "" {
		cfg.ScriptDir = DefaultScriptDir
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
	}
	if cfg.Projects == nil {
		cfg.Projects = make(map[string]string)
	}

	return cfg, nil
}

// LoadProjectConfig loads the project manifest found in dir.
func LoadProjectConfig(dir string) (*ProjectConfig, error) {
	path, err := findManifest(dir, ProjectManifestNames)
	if err != nil {
		return nil, err
	}

	cfg := &ProjectConfig{}
	if err := decodeManifest(path, cfg); err != nil {
		return nil, err
	}

	if cfg.Script == "" {
		cfg.Script = DefaultScript
	}

	return cfg, nil
}

// findManifest returns the first manifest name that exists in dir.
func findManifest(dir string, names []string) (string, error) {
	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat manifest %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("%w in %s (looked for %v)", ErrManifestNotFound, dir, names)
}

// decodeManifest decodes a YAML or CUE manifest into out and validates it.
func decodeManifest(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	switch filepath.Ext(path) {
	case ".cue":
		err = decodeCUE(path, data, out)
	default:
		err = decodeYAML(data, out)
	}
	if err != nil {
		return &ParseError{Path: path, Err: err}
	}

	if err := validate.Struct(out); err != nil {
		return &ParseError{Path: path, Err: err}
	}

	return nil
}

// decodeYAML decodes strictly: unknown fields are errors. An empty document
// decodes to the zero value.
func decodeYAML(data []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeCUE(path string, data []byte, out interface{}) error {
	val := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := val.Err(); err != nil {
		return errors.New(cueerrors.Details(err, nil))
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return errors.New(cueerrors.Details(err, nil))
	}
	return val.Decode(out)
}
