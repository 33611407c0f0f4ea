// SPDX-License-Identifier: MPL-2.0

package config

import "sync"

// Global override state for the config package. The CLI sets the file
// override from its --config flag before the first Load; tests set the
// directory override to point at a temp dir.
var (
	globalMu               sync.RWMutex
	configFilePathOverride string
	configDirOverride      string
)

// SetConfigFilePathOverride makes Load read the given file instead of
// searching the default locations. An empty string clears the override.
func SetConfigFilePathOverride(path string) {
	globalMu.Lock()
	defer globalMu.Unlock()
	configFilePathOverride = path
}

// SetConfigDirOverride makes Load search the given directory instead of
// the platform config directory. An empty string clears the override.
// Primarily used by tests.
func SetConfigDirOverride(dir string) {
	globalMu.Lock()
	defer globalMu.Unlock()
	configDirOverride = dir
}

// Reset clears all overrides. Primarily used by tests.
func Reset() {
	globalMu.Lock()
	defer globalMu.Unlock()
	configFilePathOverride = ""
	configDirOverride = ""
}

// effectiveConfigDir returns the directory override when set, the
// platform config directory otherwise.
func effectiveConfigDir() (string, error) {
	globalMu.RLock()
	dir := configDirOverride
	globalMu.RUnlock()
	if dir != "" {
		return dir, nil
	}
	return ConfigDir()
}

// Load loads the configuration honoring the global overrides. It returns
// the defaults when no config file exists.
func Load() (*Config, error) {
	cfg, _, err := LoadWithPath()
	return cfg, err
}

// LoadWithPath is Load plus the path of the config file that was read,
// or an empty path when defaults applied.
func LoadWithPath() (*Config, string, error) {
	globalMu.RLock()
	opts := LoadOptions{
		ConfigFilePath: configFilePathOverride,
		ConfigDirPath:  configDirOverride,
	}
	globalMu.RUnlock()

	return loadWithOptions(opts)
}
