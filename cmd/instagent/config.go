// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"strconv"

	"instagent/internal/config"
	"instagent/internal/issue"

	"github.com/spf13/cobra"
)

var configCmd = newConfigCommand()

// newConfigCommand creates the `instagent config` command tree.
func newConfigCommand() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage instagent configuration",
		Long: `Manage instagent configuration.

Configuration is stored in:
  - Linux: ~/.config/instagent/config.cue
  - macOS: ~/Library/Application Support/instagent/config.cue
  - Windows: %APPDATA%\instagent\config.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig()
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath()
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setConfigValue(args[0], args[1])
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output raw configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadAgentConfig()
			if err != nil {
				return err
			}

			fmt.Print(config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig() error {
	cfg, cfgPath, err := config.LoadWithPath()
	if err != nil {
		renderIssue(issue.ConfigLoadFailedId)
		return err
	}

	// Style definitions using shared color palette
	headerStyle := TitleStyle
	keyStyle := CmdStyle
	valueStyle := SuccessStyle

	fmt.Println(headerStyle.Render("Current Configuration"))
	fmt.Println()

	if cfgPath != "" {
		fmt.Printf("%s: %s\n", keyStyle.Render("Config file"), cfgPath)
	} else {
		fmt.Printf("%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Println()

	fmt.Printf("%s:\n", keyStyle.Render("instagram"))
	fmt.Printf("  username:       %s\n", flagPlaceholder(cfg.Instagram.Username, config.PlaceholderUsername))
	fmt.Printf("  password:       %s\n", maskSecret(cfg.Instagram.Password, config.PlaceholderPassword))
	fmt.Printf("  target_account: %s\n", flagPlaceholder(cfg.Instagram.TargetAccount, config.PlaceholderTargetAccount))

	fmt.Println()
	fmt.Printf("%s:\n", keyStyle.Render("genai"))
	fmt.Printf("  api_key:          %s\n", maskSecret(cfg.GenAI.APIKey, config.PlaceholderAPIKey))
	fmt.Printf("  chat_model:       %s\n", valueStyle.Render(cfg.GenAI.ChatModel))
	fmt.Printf("  embed_model:      %s\n", valueStyle.Render(cfg.GenAI.EmbedModel))
	fmt.Printf("  transcribe_model: %s\n", valueStyle.Render(cfg.GenAI.TranscribeModel))

	fmt.Println()
	fmt.Printf("%s:\n", keyStyle.Render("server"))
	fmt.Printf("  addr: %s\n", valueStyle.Render(cfg.Server.Addr))

	fmt.Println()
	fmt.Printf("%s:\n", keyStyle.Render("pipeline"))
	fmt.Printf("  data_dir:    %s\n", valueStyle.Render(cfg.Pipeline.DataDir))
	fmt.Printf("  media_limit: %s\n", valueStyle.Render(strconv.Itoa(cfg.Pipeline.MediaLimit)))
	fmt.Printf("  chunk_size:  %s\n", valueStyle.Render(strconv.Itoa(cfg.Pipeline.ChunkSize)))
	fmt.Printf("  workers:     %s\n", valueStyle.Render(strconv.Itoa(cfg.Pipeline.Workers)))

	fmt.Println()
	fmt.Printf("%s:\n", keyStyle.Render("ui"))
	fmt.Printf("  color_scheme: %s\n", valueStyle.Render(string(cfg.UI.ColorScheme)))
	fmt.Printf("  verbose:      %s\n", valueStyle.Render(strconv.FormatBool(cfg.UI.Verbose)))

	return nil
}

func initConfig() error {
	path, err := config.CreateDefaultConfig()
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}

	fmt.Printf("%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)

	// Also create the data directories
	cfg, err := config.Load()
	if err == nil {
		if dirErr := config.EnsureDataDirs(cfg); dirErr != nil {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+"failed to create data directories: "+dirErr.Error())
		} else {
			fmt.Printf("%s Created data directories under %s\n", SuccessStyle.Render("✓"), cfg.Pipeline.DataDir)
		}
	}

	fmt.Println()
	fmt.Println(SubtitleStyle.Render("Replace the placeholder credentials before running: instagent update"))
	return nil
}

func showConfigPath() error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}

	fmt.Printf("Config directory: %s\n", cfgDir)

	path, err := config.DefaultConfigFilePath()
	if err == nil {
		fmt.Printf("Config file: %s\n", path)
	}

	cfg, err := config.Load()
	if err == nil {
		fmt.Printf("Data directory: %s\n", cfg.Pipeline.DataDir)
		fmt.Printf("Vector store: %s\n", cfg.StorePath())
	}

	return nil
}

func setConfigValue(key, value string) error {
	cfg, cfgPath, err := config.LoadWithPath()
	if err != nil {
		renderIssue(issue.ConfigLoadFailedId)
		return err
	}

	switch key {
	case "instagram.username":
		cfg.Instagram.Username = value

	case "instagram.password":
		cfg.Instagram.Password = value

	case "instagram.target_account":
		cfg.Instagram.TargetAccount = value

	case "genai.api_key":
		cfg.GenAI.APIKey = value

	case "genai.chat_model":
		cfg.GenAI.ChatModel = value

	case "genai.embed_model":
		cfg.GenAI.EmbedModel = value

	case "genai.transcribe_model":
		cfg.GenAI.TranscribeModel = value

	case "server.addr":
		cfg.Server.Addr = value

	case "pipeline.data_dir":
		cfg.Pipeline.DataDir = value

	case "pipeline.media_limit":
		n, err := parsePositiveInt(key, value)
		if err != nil {
			return err
		}
		cfg.Pipeline.MediaLimit = n

	case "pipeline.chunk_size":
		n, err := parsePositiveInt(key, value)
		if err != nil {
			return err
		}
		cfg.Pipeline.ChunkSize = n

	case "pipeline.workers":
		n, err := parsePositiveInt(key, value)
		if err != nil {
			return err
		}
		cfg.Pipeline.Workers = n

	case "ui.color_scheme":
		scheme := config.ColorScheme(value)
		if ok, errs := scheme.IsValid(); !ok {
			return errs[0]
		}
		cfg.UI.ColorScheme = scheme

	case "ui.verbose":
		cfg.UI.Verbose = value == "true" || value == "1"

	default:
		return fmt.Errorf("unknown configuration key: %s\nValid keys: instagram.username, instagram.password, instagram.target_account, genai.api_key, genai.chat_model, genai.embed_model, genai.transcribe_model, server.addr, pipeline.data_dir, pipeline.media_limit, pipeline.chunk_size, pipeline.workers, ui.color_scheme, ui.verbose", key)
	}

	// No config file yet: create the default one first so the write lands
	// in the config directory.
	if cfgPath == "" {
		cfgPath, err = config.CreateDefaultConfig()
		if err != nil {
			return err
		}
	}

	if err := config.Save(cfg, cfgPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("%s Set %s = %s\n", SuccessStyle.Render("✓"), key, displayValue(key, value))
	return nil
}

// parsePositiveInt parses value as an integer >= 1.
func parsePositiveInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

// displayValue hides credential values in confirmation output.
func displayValue(key, value string) string {
	switch key {
	case "instagram.password", "genai.api_key":
		return "********"
	default:
		return value
	}
}

// maskSecret hides a credential value, keeping placeholders visible since
// they are not secrets and the user needs to see they are still there.
func maskSecret(value, placeholder string) string {
	switch value {
	case "":
		return SubtitleStyle.Render("(not set)")
	case placeholder:
		return WarningStyle.Render(value + " (placeholder)")
	default:
		return "********"
	}
}

// flagPlaceholder renders a non-secret value, highlighting placeholders.
func flagPlaceholder(value, placeholder string) string {
	if value == placeholder {
		return WarningStyle.Render(value + " (placeholder)")
	}
	if value == "" {
		return SubtitleStyle.Render("(not set)")
	}
	return SuccessStyle.Render(value)
}
