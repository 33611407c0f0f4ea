// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"instagent/internal/agent"
	"instagent/internal/config"
	"instagent/internal/embedding"
	"instagent/internal/instagram"
	"instagent/internal/issue"
	"instagent/internal/pipeline"
	"instagent/internal/store"
)

// issueStyle is the glamour style issue cards render with. initRootConfig
// overrides it from ui.color_scheme.
var issueStyle = string(config.ColorSchemeAuto)

type (
	// components bundles the services shared by serve, update and query:
	// the vector store, the embedding engine and the Gemini chat client.
	components struct {
		store  *store.Store
		engine *embedding.GenAIEngine
		agent  *agent.Client
	}

	// liveClient routes Answer and Transcribe calls through the most
	// recently loaded Gemini client, so config reloads reach a running
	// service without restarting it.
	liveClient struct {
		client atomic.Pointer[agent.Client]
	}

	// liveRunner routes update runs through the most recently built
	// pipeline, for the same reason.
	liveRunner struct {
		pipe atomic.Pointer[pipeline.Pipeline]
	}
)

// Answer answers a question with the current chat client.
func (l *liveClient) Answer(ctx context.Context, question string, contextChunks []string) (string, error) {
	return l.client.Load().Answer(ctx, question, contextChunks)
}

// Transcribe transcribes audio with the current chat client.
func (l *liveClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return l.client.Load().Transcribe(ctx, audio, mimeType)
}

// Run executes an indexing pass with the current pipeline.
func (l *liveRunner) Run(ctx context.Context, limit int) (*pipeline.Stats, error) {
	return l.pipe.Load().Run(ctx, limit)
}

// loadAgentConfig loads the configuration plus the path it was read from,
// rendering the configuration issue card when loading fails.
func loadAgentConfig() (*config.Config, string, error) {
	cfg, path, err := config.LoadWithPath()
	if err != nil {
		renderIssue(issue.ConfigLoadFailedId)
		return nil, "", err
	}
	return cfg, path, nil
}

// buildComponents opens the store and creates the GenAI clients. The caller
// owns the returned components and must Close them.
func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	key := cfg.GenAI.APIKey
	if key == "" || key == config.PlaceholderAPIKey {
		renderIssue(issue.GenAIKeyMissingId)
		return nil, fmt.Errorf("GenAI API key is not configured")
	}

	st, err := store.Open(cfg.StorePath())
	if err != nil {
		renderIssue(issue.StoreUnavailableId)
		return nil, err
	}

	engine, err := embedding.NewGenAIEngine(ctx, key, cfg.GenAI.EmbedModel)
	if err != nil {
		_ = st.Close() //nolint:errcheck // already failing
		return nil, err
	}

	client, err := agent.NewClient(ctx, key, cfg.GenAI.ChatModel, cfg.GenAI.TranscribeModel)
	if err != nil {
		_ = engine.Close() //nolint:errcheck // already failing
		_ = st.Close()     //nolint:errcheck // already failing
		return nil, err
	}

	return &components{store: st, engine: engine, agent: client}, nil
}

// Close releases the components, best effort.
func (c *components) Close() {
	_ = c.agent.Close()  //nolint:errcheck // best-effort cleanup
	_ = c.engine.Close() //nolint:errcheck // best-effort cleanup
	_ = c.store.Close()  //nolint:errcheck // best-effort cleanup
}

// newPipeline builds the fetcher from the config credentials and assembles
// an indexing pipeline around the given collaborators. deps.Fetcher is
// overwritten; the other fields pass through.
func newPipeline(cfg *config.Config, deps pipeline.Deps, observer pipeline.Observer) (*pipeline.Pipeline, error) {
	fetcher, err := instagram.NewClient(cfg.Instagram.Username, cfg.Instagram.Password)
	if err != nil {
		return nil, err
	}
	deps.Fetcher = fetcher

	return pipeline.New(deps, pipeline.Options{
		TargetAccount:  cfg.Instagram.TargetAccount,
		VideosDir:      cfg.VideosDir(),
		TranscriptsDir: cfg.TranscriptsDir(),
		ChunkSize:      cfg.Pipeline.ChunkSize,
		Workers:        cfg.Pipeline.Workers,
		Observer:       observer,
	})
}

// warnPlaceholders nags about credential fields still holding the shipped
// placeholder values.
func warnPlaceholders(cfg *config.Config) {
	fields := cfg.Placeholders()
	if len(fields) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+
		"config still holds placeholder values: "+strings.Join(fields, ", "))
}

// renderIssue prints the registry card for id to stderr, best effort.
func renderIssue(id issue.Id) {
	rendered, _ := issue.Get(id).Render(issueStyle)
	fmt.Fprint(os.Stderr, rendered)
}
