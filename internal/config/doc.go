// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/instagent/config.cue (or XDG equivalent on Linux,
// ~/Library/Application Support/instagent/config.cue on macOS, %APPDATA%\instagent\config.cue
// on Windows), with a config.cue in the working directory as a final fallback. The package
// provides type-safe configuration access covering Instagram credentials, GenAI model
// selection, the HTTP server, the indexing pipeline, and UI settings. Environment variables
// prefixed INSTAGENT_ override file values; GEMINI_API_KEY fills in a missing API key.
//
// Configuration validation is performed against a CUE schema (config_schema.cue) to ensure
// type safety and provide clear error messages for invalid configurations.
package config
