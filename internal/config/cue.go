// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/viper"

	"instagent/internal/issue"
)

// maxConfigFileSize bounds how large a config file may be before parsing.
const maxConfigFileSize int64 = 1 << 20

// loadCUEIntoViper parses data as CUE, validates it against the embedded
// #Config schema, and merges the concrete values into v.
func loadCUEIntoViper(v *viper.Viper, data []byte, path string) error {
	if int64(len(data)) > maxConfigFileSize {
		return issue.NewErrorContext().
			WithOperation("parse config file").
			WithResource(path).
			WithSuggestion("Config files are limited to 1 MiB").
			Wrap(fmt.Errorf("file size %d bytes exceeds maximum %d bytes",
				len(data), maxConfigFileSize)).
			BuildError()
	}

	cuectx := cuecontext.New()

	schema := cuectx.CompileString(configSchema)
	if schema.Err() != nil {
		return issue.NewErrorContext().
			WithOperation("compile config schema").
			WithResource("embedded schema").
			Wrap(schema.Err()).
			BuildError()
	}

	value := cuectx.CompileBytes(data, cue.Filename(path))
	if value.Err() != nil {
		return issue.NewErrorContext().
			WithOperation("parse config file").
			WithResource(path).
			WithSuggestion("Check the CUE syntax").
			Wrap(formatCUEError(value.Err(), path)).
			BuildError()
	}

	schemaDef := schema.LookupPath(cue.ParsePath("#Config"))
	if schemaDef.Err() != nil {
		return issue.NewErrorContext().
			WithOperation("look up config schema definition").
			WithResource("embedded schema").
			Wrap(schemaDef.Err()).
			BuildError()
	}

	unified := schemaDef.Unify(value)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return issue.NewErrorContext().
			WithOperation("validate config file").
			WithResource(path).
			WithSuggestion("Check field names and value types against the schema").
			Wrap(formatCUEError(err, path)).
			BuildError()
	}

	var settings map[string]any
	if err := unified.Decode(&settings); err != nil {
		return issue.NewErrorContext().
			WithOperation("decode config file").
			WithResource(path).
			Wrap(formatCUEError(err, path)).
			BuildError()
	}

	if err := v.MergeConfigMap(settings); err != nil {
		return issue.NewErrorContext().
			WithOperation("merge config values").
			WithResource(path).
			Wrap(err).
			BuildError()
	}

	return nil
}

// formatCUEError formats a CUE error with JSON path prefixes for clear
// error messages.
//
// Error format: <file-path>: <json-path>: <message>
//
// Examples:
//   - config.cue: pipeline.media_limit: invalid value 0 (out of bound >=1)
//   - config.cue: ui.color_scheme: 3 errors in empty disjunction
func formatCUEError(err error, filePath string) error {
	if err == nil {
		return nil
	}

	// Extract all CUE errors
	cueErrs := cueerrors.Errors(err)
	if len(cueErrs) == 0 {
		// Fallback: not a CUE error, return as-is
		return fmt.Errorf("%s: %w", filePath, err)
	}

	var lines []string
	for _, e := range cueErrs {
		pathStr := formatCUEPath(cueerrors.Path(e))
		msg := e.Error()

		// CUE sometimes includes the path in the message itself
		if pathStr != "" && strings.HasPrefix(msg, pathStr) {
			msg = strings.TrimPrefix(msg, pathStr)
			msg = strings.TrimPrefix(msg, ":")
			msg = strings.TrimSpace(msg)
		}

		if pathStr != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", pathStr, msg))
		} else {
			lines = append(lines, msg)
		}
	}

	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", filePath, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", filePath, strings.Join(lines, "\n  "))
}

// formatCUEPath converts a CUE error path to JSON-path notation.
// CUE provides error paths as flat string slices (e.g., ["pipeline", "workers"])
// where numeric elements represent array indices.
func formatCUEPath(path []string) string {
	if len(path) == 0 {
		return ""
	}

	var result strings.Builder
	for i, part := range path {
		isIndex := true
		for _, c := range part {
			if c < '0' || c > '9' {
				isIndex = false
				break
			}
		}

		if isIndex && i > 0 {
			result.WriteString("[")
			result.WriteString(part)
			result.WriteString("]")
		} else {
			if i > 0 {
				result.WriteString(".")
			}
			result.WriteString(part)
		}
	}

	return result.String()
}
