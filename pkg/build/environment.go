package build

import "github.com/openfroyo/pallet/pkg/config"

// Variables set for every build action.
const (
	EnvPrefix    = "PALLET_PREFIX"
	EnvHost      = "PALLET_HOST"
	EnvBuildRoot = "PALLET_BUILD_ROOT"
)

// ComposeEnvironment layers a project's overlay on the build-wide overlay and
// adds the implicit prefix, host and build-root variables, which win over
// both overlays.
func ComposeEnvironment(cfg *config.BuildConfig, project config.Environment) config.Environment {
	implicit := config.Environment{
		{Name: EnvPrefix, Value: cfg.Prefix},
		{Name: EnvHost, Value: cfg.Host},
		{Name: EnvBuildRoot, Value: cfg.Root},
	}
	return cfg.Environment.Overlay(project, implicit)
}

// Environment returns the environment name's build action would run with.
func (b *Build) Environment(name string) (config.Environment, error) {
	spec, err := b.lookup(name)
	if err != nil {
		return nil, err
	}
	return ComposeEnvironment(b.config, spec.Config.Environment), nil
}
