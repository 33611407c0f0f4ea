// SPDX-License-Identifier: MPL-2.0

package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"instagent/internal/issue"
)

//go:embed config_schema.cue
var configSchema string

const (
	// AppName is the application name used for config directories.
	AppName = "instagent"
	// ConfigFileName is the base name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"

	// EnvPrefix is the prefix for environment variable overrides, e.g.
	// INSTAGENT_SERVER_ADDR overrides server.addr.
	EnvPrefix = "INSTAGENT"

	// geminiAPIKeyEnv is honored as a fallback for genai.api_key so the
	// same variable works here and in the Gemini SDK tooling.
	geminiAPIKeyEnv = "GEMINI_API_KEY"
)

// ConfigDir returns the platform-appropriate configuration directory:
//   - Windows: %APPDATA%\instagent
//   - macOS: ~/Library/Application Support/instagent
//   - Linux/Unix: $XDG_CONFIG_HOME/instagent or ~/.config/instagent
func ConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			return "", issue.NewErrorContext().
				WithOperation("determine config directory").
				WithResource("APPDATA environment variable").
				WithSuggestion("Ensure the APPDATA environment variable is set").
				Wrap(fmt.Errorf("APPDATA not set")).
				BuildError()
		}
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", issue.NewErrorContext().
				WithOperation("determine config directory").
				WithResource("user home directory").
				WithSuggestion("Ensure the HOME environment variable is set").
				Wrap(err).
				BuildError()
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support")
	default:
		baseDir = os.Getenv("XDG_CONFIG_HOME")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", issue.NewErrorContext().
					WithOperation("determine config directory").
					WithResource("user home directory").
					WithSuggestion("Ensure the HOME environment variable is set").
					WithSuggestion("Alternatively set XDG_CONFIG_HOME").
					Wrap(err).
					BuildError()
			}
			baseDir = filepath.Join(homeDir, ".config")
		}
	}

	return filepath.Join(baseDir, AppName), nil
}

// DefaultConfigFilePath returns the full path of the config file inside the
// platform config directory.
func DefaultConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// loadWithOptions loads the configuration honoring the given options.
// It returns the loaded config and the path of the config file that was
// used, or an empty path when no file was found and defaults applied.
func loadWithOptions(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath, err := resolveConfigFilePath(opts)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("read config file").
				WithResource(configPath).
				WithSuggestion("Check the file exists and is readable").
				Wrap(err).
				BuildError()
		}
		if err := loadCUEIntoViper(v, data, configPath); err != nil {
			return nil, "", err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("parse config").
			WithResource(configPath).
			WithSuggestion("Check the config file structure matches the schema").
			Wrap(err).
			BuildError()
	}

	applyEnvFallbacks(cfg)

	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate config").
			WithResource(configPath).
			WithSuggestion("Fix the invalid fields and retry").
			Wrap(errs[0]).
			BuildError()
	}

	return cfg, configPath, nil
}

// resolveConfigFilePath decides which config file to read, in order:
// explicit file path, explicit directory, platform config directory,
// current working directory. A missing file is not an error unless the
// path was requested explicitly.
func resolveConfigFilePath(opts LoadOptions) (string, error) {
	fileName := ConfigFileName + "." + ConfigFileExt

	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("locate config file").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Check the --config path for typos").
				Wrap(os.ErrNotExist).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	if opts.ConfigDirPath != "" {
		path := filepath.Join(opts.ConfigDirPath, fileName)
		if fileExists(path) {
			return path, nil
		}
		return "", nil
	}

	if dir, err := ConfigDir(); err == nil {
		path := filepath.Join(dir, fileName)
		if fileExists(path) {
			return path, nil
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		path := filepath.Join(cwd, fileName)
		if fileExists(path) {
			return path, nil
		}
	}

	return "", nil
}

// setDefaults registers the default value of every config key so partial
// config files only need to state what they change.
func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("instagram.username", def.Instagram.Username)
	v.SetDefault("instagram.password", def.Instagram.Password)
	v.SetDefault("instagram.target_account", def.Instagram.TargetAccount)

	v.SetDefault("genai.api_key", def.GenAI.APIKey)
	v.SetDefault("genai.chat_model", def.GenAI.ChatModel)
	v.SetDefault("genai.embed_model", def.GenAI.EmbedModel)
	v.SetDefault("genai.transcribe_model", def.GenAI.TranscribeModel)

	v.SetDefault("server.addr", def.Server.Addr)

	v.SetDefault("pipeline.data_dir", def.Pipeline.DataDir)
	v.SetDefault("pipeline.media_limit", def.Pipeline.MediaLimit)
	v.SetDefault("pipeline.chunk_size", def.Pipeline.ChunkSize)
	v.SetDefault("pipeline.workers", def.Pipeline.Workers)

	v.SetDefault("ui.color_scheme", def.UI.ColorScheme.String())
	v.SetDefault("ui.verbose", def.UI.Verbose)
}

// applyEnvFallbacks fills credential fields from well-known environment
// variables when the config still carries a placeholder value.
func applyEnvFallbacks(cfg *Config) {
	if cfg.GenAI.APIKey == "" || cfg.GenAI.APIKey == PlaceholderAPIKey {
		if key := os.Getenv(geminiAPIKeyEnv); key != "" {
			cfg.GenAI.APIKey = key
		}
	}
}

// fileExists reports whether path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// EnsureConfigDir creates the config directory if needed and returns its
// path. The directory override set via SetConfigDirOverride takes
// precedence over the platform config directory.
func EnsureConfigDir() (string, error) {
	dir, err := effectiveConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", issue.NewErrorContext().
			WithOperation("create config directory").
			WithResource(dir).
			WithSuggestion("Check directory permissions").
			Wrap(err).
			BuildError()
	}
	return dir, nil
}

// EnsureDataDirs creates the pipeline data directories (videos, transcripts)
// if they do not exist yet.
func EnsureDataDirs(cfg *Config) error {
	for _, dir := range []string{cfg.VideosDir(), cfg.TranscriptsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return issue.NewErrorContext().
				WithOperation("create data directory").
				WithResource(dir).
				WithSuggestion("Check directory permissions").
				WithSuggestion("Set pipeline.data_dir to a writable location").
				Wrap(err).
				BuildError()
		}
	}
	return nil
}

// CreateDefaultConfig writes a default config file into the platform config
// directory and returns its path. Existing files are left untouched.
func CreateDefaultConfig() (string, error) {
	dir, err := EnsureConfigDir()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if fileExists(path) {
		return path, nil
	}

	if err := Save(DefaultConfig(), path); err != nil {
		return "", err
	}
	return path, nil
}

// Save writes cfg to path in CUE syntax.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return issue.NewErrorContext().
			WithOperation("create config directory").
			WithResource(filepath.Dir(path)).
			WithSuggestion("Check directory permissions").
			Wrap(err).
			BuildError()
	}

	if err := os.WriteFile(path, []byte(GenerateCUE(cfg)), 0o600); err != nil {
		return issue.NewErrorContext().
			WithOperation("write config file").
			WithResource(path).
			WithSuggestion("Check file permissions").
			Wrap(err).
			BuildError()
	}
	return nil
}

// GenerateCUE renders cfg as a commented CUE document.
func GenerateCUE(cfg *Config) string {
	var b strings.Builder

	b.WriteString("// instagent configuration\n")
	b.WriteString("//\n")
	b.WriteString("// Replace the placeholder credentials before running the pipeline.\n")
	b.WriteString("// Values omitted here fall back to the built-in defaults.\n\n")

	b.WriteString("instagram: {\n")
	fmt.Fprintf(&b, "\tusername:       %q\n", cfg.Instagram.Username)
	fmt.Fprintf(&b, "\tpassword:       %q\n", cfg.Instagram.Password)
	fmt.Fprintf(&b, "\ttarget_account: %q\n", cfg.Instagram.TargetAccount)
	b.WriteString("}\n\n")

	b.WriteString("genai: {\n")
	fmt.Fprintf(&b, "\tapi_key:          %q\n", cfg.GenAI.APIKey)
	fmt.Fprintf(&b, "\tchat_model:       %q\n", cfg.GenAI.ChatModel)
	fmt.Fprintf(&b, "\tembed_model:      %q\n", cfg.GenAI.EmbedModel)
	fmt.Fprintf(&b, "\ttranscribe_model: %q\n", cfg.GenAI.TranscribeModel)
	b.WriteString("}\n\n")

	b.WriteString("server: {\n")
	fmt.Fprintf(&b, "\taddr: %q\n", cfg.Server.Addr)
	b.WriteString("}\n\n")

	b.WriteString("pipeline: {\n")
	fmt.Fprintf(&b, "\tdata_dir:    %q\n", cfg.Pipeline.DataDir)
	fmt.Fprintf(&b, "\tmedia_limit: %d\n", cfg.Pipeline.MediaLimit)
	fmt.Fprintf(&b, "\tchunk_size:  %d\n", cfg.Pipeline.ChunkSize)
	fmt.Fprintf(&b, "\tworkers:     %d\n", cfg.Pipeline.Workers)
	b.WriteString("}\n\n")

	b.WriteString("ui: {\n")
	fmt.Fprintf(&b, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	fmt.Fprintf(&b, "\tverbose:      %v\n", cfg.UI.Verbose)
	b.WriteString("}\n")

	return b.String()
}
