// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"instagent/internal/testutil"
)

func TestConfigDir(t *testing.T) {
	if runtime.GOOS == "linux" {
		testXDGPath := "/tmp/test-xdg-config"
		restoreXDG := testutil.MustSetenv(t, "XDG_CONFIG_HOME", testXDGPath)

		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir() returned error: %v", err)
		}

		expected := filepath.Join(testXDGPath, AppName)
		if dir != expected {
			t.Errorf("ConfigDir() = %s, want %s", dir, expected)
		}

		restoreXDG()
		restoreUnset := testutil.MustUnsetenv(t, "XDG_CONFIG_HOME")
		defer restoreUnset()

		dir, err = ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir() returned error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected = filepath.Join(home, ".config", AppName)
		if dir != expected {
			t.Errorf("ConfigDir() = %s, want %s", dir, expected)
		}
	}
}

func TestLoad_ReturnsDefaultsWhenNoConfigFile(t *testing.T) {
	Reset()
	SetConfigDirOverride(t.TempDir())
	defer Reset()

	cfg, path, err := LoadWithPath()
	if err != nil {
		t.Fatalf("LoadWithPath() returned error: %v", err)
	}
	if path != "" {
		t.Errorf("LoadWithPath() path = %q, want empty (no config file)", path)
	}

	defaults := DefaultConfig()
	if cfg.Server.Addr != defaults.Server.Addr {
		t.Errorf("Server.Addr = %s, want %s", cfg.Server.Addr, defaults.Server.Addr)
	}
	if cfg.Pipeline.MediaLimit != defaults.Pipeline.MediaLimit {
		t.Errorf("Pipeline.MediaLimit = %d, want %d", cfg.Pipeline.MediaLimit, defaults.Pipeline.MediaLimit)
	}
	if cfg.UI.ColorScheme != defaults.UI.ColorScheme {
		t.Errorf("UI.ColorScheme = %s, want %s", cfg.UI.ColorScheme, defaults.UI.ColorScheme)
	}
}

func TestLoadAndSave(t *testing.T) {
	Reset()
	configDir := t.TempDir()
	SetConfigDirOverride(configDir)
	defer Reset()

	cfg := &Config{
		Instagram: InstagramConfig{
			Username:      "agent_account",
			Password:      "s3cret",
			TargetAccount: "creator_account",
		},
		GenAI: GenAIConfig{
			APIKey:          "AIza-test-key",
			ChatModel:       "gemini-2.5-pro",
			EmbedModel:      "gemini-embedding-001",
			TranscribeModel: "gemini-2.5-flash",
		},
		Server: ServerConfig{
			Addr: "0.0.0.0:9000",
		},
		Pipeline: PipelineConfig{
			DataDir:    "/srv/agent-data",
			MediaLimit: 12,
			ChunkSize:  800,
			Workers:    6,
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeDark,
			Verbose:     true,
		},
	}

	path := filepath.Join(configDir, ConfigFileName+"."+ConfigFileExt)
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}

	loaded, loadedPath, err := LoadWithPath()
	if err != nil {
		t.Fatalf("LoadWithPath() returned error: %v", err)
	}
	if loadedPath != path {
		t.Errorf("LoadWithPath() path = %q, want %q", loadedPath, path)
	}

	if loaded.Instagram.Username != "agent_account" {
		t.Errorf("Instagram.Username = %q, want agent_account", loaded.Instagram.Username)
	}
	if loaded.Instagram.TargetAccount != "creator_account" {
		t.Errorf("Instagram.TargetAccount = %q, want creator_account", loaded.Instagram.TargetAccount)
	}
	if loaded.GenAI.APIKey != "AIza-test-key" {
		t.Errorf("GenAI.APIKey = %q, want AIza-test-key", loaded.GenAI.APIKey)
	}
	if loaded.GenAI.ChatModel != "gemini-2.5-pro" {
		t.Errorf("GenAI.ChatModel = %q, want gemini-2.5-pro", loaded.GenAI.ChatModel)
	}
	if loaded.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("Server.Addr = %q, want 0.0.0.0:9000", loaded.Server.Addr)
	}
	if loaded.Pipeline.DataDir != "/srv/agent-data" {
		t.Errorf("Pipeline.DataDir = %q, want /srv/agent-data", loaded.Pipeline.DataDir)
	}
	if loaded.Pipeline.MediaLimit != 12 {
		t.Errorf("Pipeline.MediaLimit = %d, want 12", loaded.Pipeline.MediaLimit)
	}
	if loaded.Pipeline.ChunkSize != 800 {
		t.Errorf("Pipeline.ChunkSize = %d, want 800", loaded.Pipeline.ChunkSize)
	}
	if loaded.Pipeline.Workers != 6 {
		t.Errorf("Pipeline.Workers = %d, want 6", loaded.Pipeline.Workers)
	}
	if loaded.UI.ColorScheme != ColorSchemeDark {
		t.Errorf("UI.ColorScheme = %s, want dark", loaded.UI.ColorScheme)
	}
	if !loaded.UI.Verbose {
		t.Error("UI.Verbose = false, want true")
	}
}

func TestLoad_PartialConfigMergesDefaults(t *testing.T) {
	Reset()
	configDir := t.TempDir()
	SetConfigDirOverride(configDir)
	defer Reset()

	partial := `server: addr: "localhost:9999"
pipeline: media_limit: 20
`
	testutil.MustWriteFile(t, filepath.Join(configDir, "config.cue"), []byte(partial), 0o600)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Addr != "localhost:9999" {
		t.Errorf("Server.Addr = %q, want localhost:9999", cfg.Server.Addr)
	}
	if cfg.Pipeline.MediaLimit != 20 {
		t.Errorf("Pipeline.MediaLimit = %d, want 20", cfg.Pipeline.MediaLimit)
	}

	// Untouched keys keep their defaults.
	if cfg.Pipeline.ChunkSize != 500 {
		t.Errorf("Pipeline.ChunkSize = %d, want default 500", cfg.Pipeline.ChunkSize)
	}
	if cfg.Instagram.Username != PlaceholderUsername {
		t.Errorf("Instagram.Username = %q, want default placeholder", cfg.Instagram.Username)
	}
}

func TestLoad_RejectsInvalidColorScheme(t *testing.T) {
	Reset()
	configDir := t.TempDir()
	SetConfigDirOverride(configDir)
	defer Reset()

	bad := `ui: color_scheme: "neon"
`
	testutil.MustWriteFile(t, filepath.Join(configDir, "config.cue"), []byte(bad), 0o600)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() accepted invalid color scheme, want error")
	}
	if !strings.Contains(err.Error(), "color_scheme") {
		t.Errorf("error should name the offending field, got: %v", err)
	}
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	Reset()
	configDir := t.TempDir()
	SetConfigDirOverride(configDir)
	defer Reset()

	bad := `serverx: addr: "localhost:9999"
`
	testutil.MustWriteFile(t, filepath.Join(configDir, "config.cue"), []byte(bad), 0o600)

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted unknown top-level field, want error")
	}
}

func TestLoad_RejectsOutOfRangeWorkers(t *testing.T) {
	Reset()
	configDir := t.TempDir()
	SetConfigDirOverride(configDir)
	defer Reset()

	bad := `pipeline: workers: 64
`
	testutil.MustWriteFile(t, filepath.Join(configDir, "config.cue"), []byte(bad), 0o600)

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted workers above schema bound, want error")
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	Reset()
	SetConfigFilePathOverride(filepath.Join(t.TempDir(), "nope.cue"))
	defer Reset()

	_, err := Load()
	if err == nil {
		t.Fatal("Load() with missing explicit config file succeeded, want error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should wrap os.ErrNotExist, got: %v", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	Reset()
	configDir := t.TempDir()
	SetConfigDirOverride(configDir)
	defer Reset()

	testutil.MustWriteFile(t, filepath.Join(configDir, "config.cue"),
		[]byte("server: addr: \"localhost:7000\"\n"), 0o600)

	restore := testutil.MustSetenv(t, "INSTAGENT_SERVER_ADDR", "localhost:7777")
	defer restore()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Server.Addr != "localhost:7777" {
		t.Errorf("Server.Addr = %q, want env override localhost:7777", cfg.Server.Addr)
	}
}

func TestLoad_GeminiAPIKeyFallback(t *testing.T) {
	Reset()
	SetConfigDirOverride(t.TempDir())
	defer Reset()

	restore := testutil.MustSetenv(t, "GEMINI_API_KEY", "AIza-from-env")
	defer restore()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.GenAI.APIKey != "AIza-from-env" {
		t.Errorf("GenAI.APIKey = %q, want AIza-from-env", cfg.GenAI.APIKey)
	}

	// A configured key wins over the fallback variable.
	configured := DefaultConfig()
	configured.GenAI.APIKey = "AIza-configured"
	applyEnvFallbacks(configured)
	if configured.GenAI.APIKey != "AIza-configured" {
		t.Errorf("configured key overwritten by env fallback: %q", configured.GenAI.APIKey)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	Reset()
	configDir := filepath.Join(t.TempDir(), AppName)
	SetConfigDirOverride(configDir)
	defer Reset()

	dir, err := EnsureConfigDir()
	if err != nil {
		t.Fatalf("EnsureConfigDir() returned error: %v", err)
	}
	if dir != configDir {
		t.Errorf("EnsureConfigDir() = %q, want %q", dir, configDir)
	}

	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		t.Errorf("EnsureConfigDir() did not create directory %s", configDir)
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	Reset()
	configDir := filepath.Join(t.TempDir(), AppName)
	SetConfigDirOverride(configDir)
	defer Reset()

	path, err := CreateDefaultConfig()
	if err != nil {
		t.Fatalf("CreateDefaultConfig() returned error: %v", err)
	}

	expected := filepath.Join(configDir, "config.cue")
	if path != expected {
		t.Errorf("CreateDefaultConfig() = %q, want %q", path, expected)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading created config: %v", err)
	}
	if !strings.Contains(string(data), PlaceholderUsername) {
		t.Error("created config should carry the placeholder username")
	}

	// Second call is a no-op on the existing file.
	again, err := CreateDefaultConfig()
	if err != nil {
		t.Fatalf("CreateDefaultConfig() second call returned error: %v", err)
	}
	if again != path {
		t.Errorf("second CreateDefaultConfig() = %q, want %q", again, path)
	}
}

func TestEnsureDataDirs(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Pipeline.DataDir = filepath.Join(t.TempDir(), "data")

	if err := EnsureDataDirs(cfg); err != nil {
		t.Fatalf("EnsureDataDirs() returned error: %v", err)
	}

	for _, dir := range []string{cfg.VideosDir(), cfg.TranscriptsDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("expected directory %s: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestProvider_Load(t *testing.T) {
	t.Parallel()

	configDir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(configDir, "config.cue"),
		[]byte("pipeline: workers: 2\n"), 0o600)

	p := NewProvider(LoadOptions{ConfigDirPath: configDir})
	cfg, err := p.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Pipeline.Workers != 2 {
		t.Errorf("Pipeline.Workers = %d, want 2", cfg.Pipeline.Workers)
	}
}
