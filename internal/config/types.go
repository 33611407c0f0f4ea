// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	// PlaceholderUsername is the shipped Instagram username default.
	// Its presence means the account has not been configured yet.
	PlaceholderUsername = "ton_user"
	// PlaceholderPassword is the shipped Instagram password default.
	PlaceholderPassword = "ton_mdp"
	// PlaceholderTargetAccount is the shipped target account default.
	PlaceholderTargetAccount = "compte_cible"
	// PlaceholderAPIKey is the shipped GenAI API key default.
	PlaceholderAPIKey = "TA_CLE_API"
)

var (
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidServerConfig is the sentinel error wrapped by InvalidServerConfigError.
	ErrInvalidServerConfig = errors.New("invalid server config")
	// ErrInvalidPipelineConfig is the sentinel error wrapped by InvalidPipelineConfigError.
	ErrInvalidPipelineConfig = errors.New("invalid pipeline config")
	// ErrInvalidUIConfig is the sentinel error wrapped by InvalidUIConfigError.
	ErrInvalidUIConfig = errors.New("invalid UI config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// InvalidServerConfigError is returned when a ServerConfig has invalid fields.
	// It wraps ErrInvalidServerConfig for errors.Is() compatibility and collects
	// field-level validation errors.
	InvalidServerConfigError struct {
		FieldErrors []error
	}

	// InvalidPipelineConfigError is returned when a PipelineConfig has invalid fields.
	// It wraps ErrInvalidPipelineConfig for errors.Is() compatibility and collects
	// field-level validation errors.
	InvalidPipelineConfigError struct {
		FieldErrors []error
	}

	// InvalidUIConfigError is returned when a UIConfig has invalid fields.
	// It wraps ErrInvalidUIConfig for errors.Is() compatibility and collects
	// field-level validation errors.
	InvalidUIConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// InstagramConfig holds the credentials and the account the agent indexes.
	InstagramConfig struct {
		// Username is the Instagram login of the agent account.
		Username string `json:"username" mapstructure:"username"`
		// Password is the Instagram password of the agent account.
		Password string `json:"password" mapstructure:"password"`
		// TargetAccount is the account whose videos are fetched and indexed.
		TargetAccount string `json:"target_account" mapstructure:"target_account"`
	}

	// GenAIConfig configures the Gemini API access and model selection.
	GenAIConfig struct {
		// APIKey authenticates against the GenAI API. The GEMINI_API_KEY
		// environment variable overrides a placeholder or empty value.
		APIKey string `json:"api_key" mapstructure:"api_key"`
		// ChatModel answers questions over the indexed transcripts.
		ChatModel string `json:"chat_model" mapstructure:"chat_model"`
		// EmbedModel produces the transcript chunk embeddings.
		EmbedModel string `json:"embed_model" mapstructure:"embed_model"`
		// TranscribeModel turns extracted audio into text.
		TranscribeModel string `json:"transcribe_model" mapstructure:"transcribe_model"`
	}

	// ServerConfig configures the HTTP API.
	ServerConfig struct {
		// Addr is the listen address, host:port.
		Addr string `json:"addr" mapstructure:"addr"`
	}

	// PipelineConfig configures the content-indexing pipeline.
	PipelineConfig struct {
		// DataDir is the root for downloaded videos, transcripts and the index.
		DataDir string `json:"data_dir" mapstructure:"data_dir"`
		// MediaLimit is the default number of recent medias fetched per run.
		MediaLimit int `json:"media_limit" mapstructure:"media_limit"`
		// ChunkSize is the transcript chunk length in runes.
		ChunkSize int `json:"chunk_size" mapstructure:"chunk_size"`
		// Workers bounds concurrent media processing.
		Workers int `json:"workers" mapstructure:"workers"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme sets the color scheme
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables verbose output
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}

	// Config holds the application configuration.
	Config struct {
		// Instagram configures the agent's Instagram access.
		Instagram InstagramConfig `json:"instagram" mapstructure:"instagram"`
		// GenAI configures Gemini models and credentials.
		GenAI GenAIConfig `json:"genai" mapstructure:"genai"`
		// Server configures the HTTP API.
		Server ServerConfig `json:"server" mapstructure:"server"`
		// Pipeline configures the indexing pipeline.
		Pipeline PipelineConfig `json:"pipeline" mapstructure:"pipeline"`
		// UI configures the user interface.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}
)

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error {
	return ErrInvalidColorScheme
}

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color schemes,
// and a list of validation errors if it is not.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}

// IsValid returns whether the ServerConfig has valid fields.
// The listen address must be non-empty and not whitespace-only.
func (c ServerConfig) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, fmt.Errorf("server.addr must be non-empty"))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidServerConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidServerConfigError.
func (e *InvalidServerConfigError) Error() string {
	return fmt.Sprintf("invalid server config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidServerConfig for errors.Is() compatibility.
func (e *InvalidServerConfigError) Unwrap() error { return ErrInvalidServerConfig }

// IsValid returns whether the PipelineConfig has valid fields.
// DataDir must be non-empty; the numeric limits must be positive.
func (c PipelineConfig) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, fmt.Errorf("pipeline.data_dir must be non-empty"))
	}
	if c.MediaLimit < 1 {
		errs = append(errs, fmt.Errorf("pipeline.media_limit must be >= 1, got %d", c.MediaLimit))
	}
	if c.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.chunk_size must be >= 1, got %d", c.ChunkSize))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be >= 1, got %d", c.Workers))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidPipelineConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidPipelineConfigError.
func (e *InvalidPipelineConfigError) Error() string {
	return fmt.Sprintf("invalid pipeline config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidPipelineConfig for errors.Is() compatibility.
func (e *InvalidPipelineConfigError) Unwrap() error { return ErrInvalidPipelineConfig }

// IsValid returns whether the UIConfig has valid fields.
// It delegates to ColorScheme.IsValid(); bool fields need no validation.
func (c UIConfig) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidUIConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidUIConfigError.
func (e *InvalidUIConfigError) Error() string {
	return fmt.Sprintf("invalid UI config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidUIConfig for errors.Is() compatibility.
func (e *InvalidUIConfigError) Unwrap() error { return ErrInvalidUIConfig }

// IsValid returns whether the Config has valid fields.
// It delegates to Server.IsValid(), Pipeline.IsValid(), and UI.IsValid().
// Credential fields are never structurally invalid; use Placeholders() to
// detect unconfigured credentials.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Server.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Pipeline.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.UI.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Placeholders returns the dotted names of credential fields that still hold
// the shipped placeholder values. An empty result means all credentials are
// configured.
func (c Config) Placeholders() []string {
	var fields []string
	if c.Instagram.Username == PlaceholderUsername || c.Instagram.Username == "" {
		fields = append(fields, "instagram.username")
	}
	if c.Instagram.Password == PlaceholderPassword || c.Instagram.Password == "" {
		fields = append(fields, "instagram.password")
	}
	if c.Instagram.TargetAccount == PlaceholderTargetAccount || c.Instagram.TargetAccount == "" {
		fields = append(fields, "instagram.target_account")
	}
	if c.GenAI.APIKey == PlaceholderAPIKey || c.GenAI.APIKey == "" {
		fields = append(fields, "genai.api_key")
	}
	return fields
}

// VideosDir returns the directory downloaded videos are stored in.
func (c Config) VideosDir() string {
	return filepath.Join(c.Pipeline.DataDir, "videos")
}

// TranscriptsDir returns the directory transcript text files are written to.
func (c Config) TranscriptsDir() string {
	return filepath.Join(c.Pipeline.DataDir, "transcripts")
}

// StorePath returns the path of the vector index database file.
func (c Config) StorePath() string {
	return filepath.Join(c.Pipeline.DataDir, "index.db")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			Username:      PlaceholderUsername,
			Password:      PlaceholderPassword,
			TargetAccount: PlaceholderTargetAccount,
		},
		GenAI: GenAIConfig{
			APIKey:          PlaceholderAPIKey,
			ChatModel:       "gemini-2.5-flash",
			EmbedModel:      "gemini-embedding-001",
			TranscribeModel: "gemini-2.5-flash",
		},
		Server: ServerConfig{
			Addr: "localhost:8000",
		},
		Pipeline: PipelineConfig{
			DataDir:    "data",
			MediaLimit: 5,
			ChunkSize:  500,
			Workers:    3,
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
			Verbose:     false,
		},
	}
}
