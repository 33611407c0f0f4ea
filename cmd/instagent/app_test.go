// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"testing"

	"instagent/internal/config"
)

func TestBuildComponentsRejectsPlaceholderKey(t *testing.T) {
	t.Parallel()

	// The default config ships the placeholder API key.
	cfg := config.DefaultConfig()
	cfg.Pipeline.DataDir = t.TempDir()

	if _, err := buildComponents(context.Background(), cfg); err == nil {
		t.Fatal("placeholder API key should fail")
	}
}

func TestBuildComponentsRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.GenAI.APIKey = ""
	cfg.Pipeline.DataDir = t.TempDir()

	if _, err := buildComponents(context.Background(), cfg); err == nil {
		t.Fatal("empty API key should fail")
	}
}

func TestBuildComponents(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.GenAI.APIKey = "test-key-not-real"
	cfg.Pipeline.DataDir = t.TempDir()

	comps, err := buildComponents(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildComponents() error: %v", err)
	}
	defer comps.Close()

	if comps.store == nil || comps.engine == nil || comps.agent == nil {
		t.Fatal("components incomplete")
	}
}
