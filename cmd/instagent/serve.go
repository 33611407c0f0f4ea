// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"instagent/internal/agent"
	"instagent/internal/config"
	"instagent/internal/issue"
	"instagent/internal/media"
	"instagent/internal/pipeline"
	"instagent/internal/server"
)

var (
	serveAddr        string
	serveWatchConfig bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the agent HTTP service",
		Long: `Run the agent HTTP service.

The service answers questions over the indexed transcripts on POST /query,
triggers indexing runs on POST /update, and streams run progress on
GET /update/events. It keeps running until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveWatchConfig, "watch-config", false, "apply tunable config changes without restarting")
}

func runServe(ctx context.Context) error {
	cfg, cfgPath, err := loadAgentConfig()
	if err != nil {
		return err
	}
	warnPlaceholders(cfg)

	if err := config.EnsureDataDirs(cfg); err != nil {
		return err
	}

	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	extractor := media.NewExtractor()
	if !extractor.Available() {
		// Queries still work without ffmpeg; update runs will report it.
		renderIssue(issue.FFmpegNotFoundId)
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+
			"ffmpeg not found; /update will fail until it is installed")
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	chat := &liveClient{}
	chat.client.Store(comps.agent)
	runner := &liveRunner{}

	srv := server.New(server.Config{
		Addr:               addr,
		Version:            Version,
		DefaultUpdateLimit: cfg.Pipeline.MediaLimit,
	}, server.Deps{
		Runner:   runner,
		Embedder: comps.engine,
		Searcher: comps.store,
		Answerer: chat,
	})

	// Built after the server so update runs stream their progress over
	// /update/events.
	pipe, err := newPipeline(cfg, pipeline.Deps{
		Extractor:   extractor,
		Transcriber: chat,
		Engine:      comps.engine,
		Store:       comps.store,
	}, srv.Observer())
	if err != nil {
		return err
	}
	runner.pipe.Store(pipe)

	if err := srv.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("%s Instagram AI Agent service listening on http://%s\n",
		SuccessStyle.Render("✓"), srv.Address())
	fmt.Println(SubtitleStyle.Render("Press Ctrl+C to stop"))

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	if serveWatchConfig {
		path := cfgPath
		if path == "" {
			path, err = config.DefaultConfigFilePath()
			if err != nil {
				path = ""
			}
		}
		if path == "" {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+
				"no config file to watch; --watch-config ignored")
		} else {
			go watchServeConfig(watchCtx, path, cfg, comps, extractor, runner, chat, srv.Observer())
		}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Wait() }()

	select {
	case <-ctx.Done():
		fmt.Println(SubtitleStyle.Render("Shutting down..."))
		if err := srv.Stop(); err != nil {
			return err
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		// The listener died on its own; stop cleans up whatever is left.
		if stopErr := srv.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
		return err
	}
}

// watchServeConfig applies tunable config fields to the running service.
// Each change rebuilds the pipeline (instagram credentials, target account,
// chunk size, workers) and, when the chat settings changed, the Gemini
// client. The listen address, data directory and embedding model stay fixed
// until restart: the socket, the store handle and the index geometry are
// bound to them.
func watchServeConfig(ctx context.Context, path string, initial *config.Config, comps *components, extractor pipeline.Extractor, runner *liveRunner, chat *liveClient, observer pipeline.Observer) {
	warn := func(msg string) {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+msg)
	}

	prevKey := initial.GenAI.APIKey
	prevChatModel := initial.GenAI.ChatModel
	prevTranscribeModel := initial.GenAI.TranscribeModel

	reload := func() {
		cfg, err := config.Load()
		if err != nil {
			warn("config reload failed: " + formatErrorForDisplay(err, verbose))
			return
		}

		if cfg.Pipeline.DataDir != initial.Pipeline.DataDir {
			warn("pipeline.data_dir changed; restart to apply")
			cfg.Pipeline.DataDir = initial.Pipeline.DataDir
		}
		if cfg.Server.Addr != initial.Server.Addr {
			warn("server.addr changed; restart to apply")
		}
		if cfg.GenAI.EmbedModel != initial.GenAI.EmbedModel {
			warn("genai.embed_model changed; restart to apply")
		}

		if cfg.GenAI.APIKey != prevKey ||
			cfg.GenAI.ChatModel != prevChatModel ||
			cfg.GenAI.TranscribeModel != prevTranscribeModel {
			client, err := agent.NewClient(ctx, cfg.GenAI.APIKey, cfg.GenAI.ChatModel, cfg.GenAI.TranscribeModel)
			if err != nil {
				warn("config reload failed: " + formatErrorForDisplay(err, verbose))
			} else {
				old := chat.client.Swap(client)
				// Closing only drops idle connections; in-flight calls
				// on the old client still complete.
				_ = old.Close() //nolint:errcheck // best-effort cleanup
				prevKey = cfg.GenAI.APIKey
				prevChatModel = cfg.GenAI.ChatModel
				prevTranscribeModel = cfg.GenAI.TranscribeModel
			}
		}

		pipe, err := newPipeline(cfg, pipeline.Deps{
			Extractor:   extractor,
			Transcriber: chat,
			Engine:      comps.engine,
			Store:       comps.store,
		}, observer)
		if err != nil {
			warn("config reload failed: " + formatErrorForDisplay(err, verbose))
			return
		}
		runner.pipe.Store(pipe)

		fmt.Fprintln(os.Stderr, SubtitleStyle.Render("config reloaded"))
	}

	err := config.Watch(ctx, path, reload, config.WatchOptions{})
	if err != nil && !errors.Is(err, context.Canceled) {
		warn("config watch stopped: " + formatErrorForDisplay(err, verbose))
	}
}
