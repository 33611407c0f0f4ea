// SPDX-License-Identifier: MPL-2.0

// Package pipeline orchestrates the content indexing run: fetch the target
// account's recent posts, download new videos, extract and transcribe their
// audio, then chunk, embed and index the transcripts.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"instagent/internal/embedding"
	"instagent/internal/instagram"
	"instagent/internal/store"
)

const (
	// DefaultMediaLimit is how many recent posts are examined per run when
	// no limit is configured.
	DefaultMediaLimit = 5

	// DefaultWorkers bounds concurrent per-media processing.
	DefaultWorkers = 3

	// audioMIMEType is the format ExtractAudio produces.
	audioMIMEType = "audio/mp3"
)

type (
	// Fetcher lists and downloads the target account's media.
	Fetcher interface {
		Login(ctx context.Context) error
		UserID(ctx context.Context, username string) (string, error)
		RecentMedias(ctx context.Context, userID string, limit int) ([]instagram.Media, error)
		DownloadVideo(ctx context.Context, media instagram.Media, dir string) (string, error)
	}

	// Extractor converts a downloaded video into an audio file.
	Extractor interface {
		Available() bool
		ExtractAudio(ctx context.Context, videoPath string) (string, error)
	}

	// Transcriber turns audio bytes into transcript text.
	Transcriber interface {
		Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	}

	// Deps are the collaborators a Pipeline drives.
	Deps struct {
		Fetcher     Fetcher
		Extractor   Extractor
		Transcriber Transcriber
		Engine      embedding.Engine
		Store       *store.Store
	}

	// Options tune a Pipeline.
	Options struct {
		// TargetAccount is the Instagram account whose posts are indexed.
		TargetAccount string
		// VideosDir receives downloaded videos and extracted audio.
		VideosDir string
		// TranscriptsDir receives one .txt per transcribed video.
		TranscriptsDir string
		// ChunkSize is the transcript window size in runes.
		ChunkSize int
		// Workers bounds concurrent per-media processing.
		Workers int
		// Collection is the store namespace chunks are indexed under.
		Collection string
		// Logger defaults to a stderr logger with the "pipeline" prefix.
		Logger *log.Logger
		// Observer receives progress events; nil means no notifications.
		Observer Observer
	}

	// Pipeline runs indexing passes. Safe for use from one goroutine at a
	// time; the server serializes runs itself.
	Pipeline struct {
		deps   Deps
		opts   Options
		logger *log.Logger
		notify Observer
	}

	// Stats summarizes one pipeline run.
	Stats struct {
		RunID    string
		Fetched  int // posts returned by the feed
		Videos   int // video posts among them
		Skipped  int // videos already indexed by an earlier run
		Indexed  int // videos fully processed this run
		Failed   int // videos that errored; the run continues past them
		Duration time.Duration
	}
)

// New validates the collaborators and builds a Pipeline.
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("pipeline needs a Fetcher")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("pipeline needs an Extractor")
	case deps.Transcriber == nil:
		return nil, fmt.Errorf("pipeline needs a Transcriber")
	case deps.Engine == nil:
		return nil, fmt.Errorf("pipeline needs an embedding Engine")
	case deps.Store == nil:
		return nil, fmt.Errorf("pipeline needs a Store")
	}
	if opts.TargetAccount == "" {
		return nil, fmt.Errorf("pipeline needs a target account")
	}

	if opts.ChunkSize < 1 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.Collection == "" {
		opts.Collection = store.DefaultCollection
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "pipeline",
		})
	}
	notify := opts.Observer
	if notify == nil {
		notify = func(Event) {}
	}

	return &Pipeline{deps: deps, opts: opts, logger: logger, notify: notify}, nil
}

// Run executes one indexing pass over the target account's most recent limit
// posts. A non-positive limit falls back to DefaultMediaLimit. Individual
// video failures are counted and logged but do not abort the run; Run only
// errors on setup failures or context cancellation.
func (p *Pipeline) Run(ctx context.Context, limit int) (*Stats, error) {
	if limit < 1 {
		limit = DefaultMediaLimit
	}

	start := time.Now()
	stats := &Stats{RunID: uuid.NewString()}
	p.emit(stats.RunID, StageStart, "", fmt.Sprintf("indexing up to %d posts of %s", limit, p.opts.TargetAccount))

	if !p.deps.Extractor.Available() {
		return nil, fmt.Errorf("audio extractor is not available")
	}
	for _, dir := range []string{p.opts.VideosDir, p.opts.TranscriptsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	if err := p.deps.Fetcher.Login(ctx); err != nil {
		return nil, fmt.Errorf("logging in to instagram: %w", err)
	}
	userID, err := p.deps.Fetcher.UserID(ctx, p.opts.TargetAccount)
	if err != nil {
		return nil, fmt.Errorf("resolving target account: %w", err)
	}
	medias, err := p.deps.Fetcher.RecentMedias(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching recent medias: %w", err)
	}

	stats.Fetched = len(medias)
	p.logger.Info("fetched feed", "account", p.opts.TargetAccount, "posts", len(medias))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for _, m := range medias {
		if !m.IsVideo() {
			continue
		}
		stats.Videos++

		g.Go(func() error {
			seen, err := p.deps.Store.HasMedia(gctx, m.PK)
			if err != nil {
				return p.recordFailure(gctx, stats, &mu, m.PK, fmt.Errorf("checking index: %w", err))
			}
			if seen {
				mu.Lock()
				stats.Skipped++
				mu.Unlock()
				p.emit(stats.RunID, StageSkipped, m.PK, "already indexed")
				return nil
			}

			if err := p.processMedia(gctx, stats.RunID, m); err != nil {
				return p.recordFailure(gctx, stats, &mu, m.PK, err)
			}

			mu.Lock()
			stats.Indexed++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(start)
	p.logger.Info("✅ Pipeline terminé",
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", stats.Duration.Round(time.Millisecond))
	p.emit(stats.RunID, StageDone, "",
		fmt.Sprintf("%d indexed, %d skipped, %d failed", stats.Indexed, stats.Skipped, stats.Failed))

	return stats, nil
}

// recordFailure counts a per-media error without failing the group, unless
// the error came from a cancelled context.
func (p *Pipeline) recordFailure(ctx context.Context, stats *Stats, mu *sync.Mutex, pk string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	mu.Lock()
	stats.Failed++
	mu.Unlock()

	p.logger.Warn("media failed", "pk", pk, "err", err)
	p.emit(stats.RunID, StageFailed, pk, err.Error())
	return nil
}

// processMedia runs the full download-extract-transcribe-index chain for one
// video post.
func (p *Pipeline) processMedia(ctx context.Context, runID string, m instagram.Media) error {
	p.emit(runID, StageDownload, m.PK, "")
	videoPath, err := p.deps.Fetcher.DownloadVideo(ctx, m, p.opts.VideosDir)
	if err != nil {
		return fmt.Errorf("downloading video: %w", err)
	}
	p.logger.Debug("downloaded", "pk", m.PK, "path", videoPath)

	p.emit(runID, StageExtract, m.PK, "")
	audioPath, err := p.deps.Extractor.ExtractAudio(ctx, videoPath)
	if err != nil {
		return fmt.Errorf("extracting audio: %w", err)
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("reading audio: %w", err)
	}

	p.emit(runID, StageTranscribe, m.PK, "")
	text, err := p.deps.Transcriber.Transcribe(ctx, audio, audioMIMEType)
	if err != nil {
		return fmt.Errorf("transcribing: %w", err)
	}

	transcriptPath := filepath.Join(p.opts.TranscriptsDir, m.PK+".txt")
	if err := os.WriteFile(transcriptPath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}

	p.emit(runID, StageIndex, m.PK, "")
	source := filepath.Base(videoPath)
	chunks := ChunkText(text, p.opts.ChunkSize)
	if len(chunks) == 0 {
		// Transcript came back empty. Mark the media anyway so the next run
		// does not refetch it.
		p.logger.Warn("empty transcript", "pk", m.PK)
		return p.deps.Store.MarkMedia(ctx, m.PK, source, 0)
	}

	vectors, err := p.deps.Engine.EmbedDocuments(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}

	records := make([]store.Chunk, len(chunks))
	for i := range chunks {
		records[i] = store.Chunk{
			ChunkID:    ChunkID(m.PK, i),
			Collection: p.opts.Collection,
			Content:    chunks[i],
			Embedding:  vectors[i],
			Source:     source,
			Seq:        i,
		}
	}
	if err := p.deps.Store.AddChunks(ctx, records); err != nil {
		return fmt.Errorf("indexing chunks: %w", err)
	}
	if err := p.deps.Store.MarkMedia(ctx, m.PK, source, len(chunks)); err != nil {
		return fmt.Errorf("marking media: %w", err)
	}

	p.logger.Info("indexed", "pk", m.PK, "chunks", len(chunks))
	return nil
}

// emit builds and delivers one progress event.
func (p *Pipeline) emit(runID string, stage Stage, pk, detail string) {
	p.notify(Event{
		RunID:   runID,
		Stage:   stage,
		MediaPK: pk,
		Detail:  detail,
		Time:    time.Now(),
	})
}
