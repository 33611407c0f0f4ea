// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"instagent/internal/config"
	"instagent/internal/instagram"
	"instagent/internal/issue"
	"instagent/internal/media"
	"instagent/internal/pipeline"
	"instagent/internal/tui"
)

var (
	updateLimit int

	updateCmd = &cobra.Command{
		Use:   "update",
		Short: "Download, transcribe and index new videos",
		Long: `Download, transcribe and index new videos.

Fetches the most recent posts of the target account, downloads the videos
that are not indexed yet, extracts their audio with ffmpeg, transcribes
them with Gemini and indexes the transcript chunks in the vector store.
Already-indexed videos are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context())
		},
	}
)

func init() {
	updateCmd.Flags().IntVar(&updateLimit, "limit", 0, "max recent posts to examine (default from config)")
}

func runUpdate(ctx context.Context) error {
	cfg, _, err := loadAgentConfig()
	if err != nil {
		return err
	}

	// Placeholder credentials can never log in; fail before any network
	// call instead of at the login step.
	if fields := cfg.Placeholders(); len(fields) > 0 {
		renderIssue(issue.PlaceholderCredentialsId)
		return fmt.Errorf("config still holds placeholder values: %s", strings.Join(fields, ", "))
	}

	if err := config.EnsureDataDirs(cfg); err != nil {
		return err
	}

	extractor := media.NewExtractor()
	if !extractor.Available() {
		renderIssue(issue.FFmpegNotFoundId)
		return media.ErrFFmpegNotFound
	}

	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	limit := updateLimit
	if limit < 1 {
		limit = cfg.Pipeline.MediaLimit
	}

	run := func(runCtx context.Context, observer pipeline.Observer) (*pipeline.Stats, error) {
		pipe, err := newPipeline(cfg, pipeline.Deps{
			Extractor:   extractor,
			Transcriber: comps.agent,
			Engine:      comps.engine,
			Store:       comps.store,
		}, observer)
		if err != nil {
			return nil, err
		}
		return pipe.Run(runCtx, limit)
	}

	var stats *pipeline.Stats
	if tui.IsInteractive(os.Stdout) {
		title := fmt.Sprintf("Indexing @%s", cfg.Instagram.TargetAccount)
		stats, err = tui.RunWithProgress(ctx, title, run)
	} else {
		stats, err = run(ctx, nil)
	}
	if err != nil {
		if errors.Is(err, instagram.ErrLoginFailed) {
			renderIssue(issue.InstagramAuthFailedId)
		}
		return err
	}

	printStats(stats)
	return nil
}

// printStats summarizes a finished indexing run.
func printStats(stats *pipeline.Stats) {
	fmt.Printf("%s %d indexed, %d skipped, %d failed (%d videos in %d posts, %s)\n",
		SuccessStyle.Render("✓"),
		stats.Indexed, stats.Skipped, stats.Failed, stats.Videos, stats.Fetched,
		stats.Duration.Round(time.Millisecond))
	if stats.Failed > 0 {
		fmt.Println(WarningStyle.Render(fmt.Sprintf("%d videos failed; see the log output above", stats.Failed)))
	}
}
