// SPDX-License-Identifier: MPL-2.0

package config

type (
	// LoadOptions controls where configuration is loaded from.
	LoadOptions struct {
		// ConfigFilePath, when non-empty, names the exact config file to
		// read. A missing file is an error.
		ConfigFilePath string

		// ConfigDirPath, when non-empty, names the directory searched for
		// the config file instead of the platform config directory. A
		// missing file falls back to defaults.
		ConfigDirPath string
	}

	// Provider loads configuration. It exists so components can take
	// config loading as a dependency instead of calling the package-level
	// Load directly.
	Provider interface {
		// Load returns the effective configuration.
		Load() (*Config, error)
	}

	fileProvider struct {
		opts LoadOptions
	}
)

// NewProvider returns a Provider that loads configuration with the given
// options on each Load call.
func NewProvider(opts LoadOptions) Provider {
	return &fileProvider{opts: opts}
}

// Load implements Provider.
func (p *fileProvider) Load() (*Config, error) {
	cfg, _, err := loadWithOptions(p.opts)
	return cfg, err
}
