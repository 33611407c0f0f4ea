// SPDX-License-Identifier: EPL-2.0

// Package server exposes the agent over HTTP: a health banner, the question
// endpoint backed by the transcript index, the update endpoint that runs the
// indexing pipeline, and an SSE stream of pipeline progress.
//
// A Server instance is single-use: once stopped or failed, create a new one.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"instagent/internal/pipeline"
	"instagent/internal/store"
)

const (
	// StateCreated indicates the server has been created but not started.
	StateCreated ServerState = iota
	// StateStarting indicates the server is in the process of starting.
	StateStarting
	// StateRunning indicates the server is running and accepting requests.
	StateRunning
	// StateStopping indicates the server is shutting down.
	StateStopping
	// StateStopped indicates the server has stopped (terminal state).
	StateStopped
	// StateFailed indicates the server failed to start or encountered a fatal error (terminal state).
	StateFailed
)

const (
	// homeMessage is the health banner; the checker greps it for
	// "Instagram AI Agent".
	homeMessage = "Instagram AI Agent running!"

	// updateStatusMessage is the update completion status; the checker greps
	// it for "exécuté".
	updateStatusMessage = "Pipeline exécuté, nouvelles vidéos indexées"
)

type (
	// ServerState represents the lifecycle state of the server.
	ServerState int32

	// UpdateRunner runs one indexing pass.
	UpdateRunner interface {
		Run(ctx context.Context, limit int) (*pipeline.Stats, error)
	}

	// QueryEmbedder embeds a question for index lookup.
	QueryEmbedder interface {
		EmbedQuery(ctx context.Context, text string) ([]float32, error)
	}

	// ChunkSearcher ranks indexed chunks against a query embedding.
	ChunkSearcher interface {
		Query(ctx context.Context, collection string, embedding []float32, topK int) ([]store.ScoredChunk, error)
	}

	// Answerer produces a grounded answer from context chunks.
	Answerer interface {
		Answer(ctx context.Context, question string, contextChunks []string) (string, error)
	}

	// Deps are the collaborators the HTTP handlers drive.
	Deps struct {
		Runner   UpdateRunner
		Embedder QueryEmbedder
		Searcher ChunkSearcher
		Answerer Answerer
	}

	// Config holds immutable configuration for the server.
	Config struct {
		// Addr is the address to bind to (default: localhost:8000).
		Addr string
		// Version is reported by the health banner.
		Version string
		// Collection is the store namespace queries run against.
		Collection string
		// DefaultTopK is the query result count when top_k is absent (default: 3).
		DefaultTopK int
		// DefaultUpdateLimit is the post limit when limit is absent (default: 5).
		DefaultUpdateLimit int
		// StartupTimeout is the max time to wait for the listener (default: 5s).
		StartupTimeout time.Duration
		// ShutdownTimeout is the timeout for graceful shutdown (default: 10s).
		ShutdownTimeout time.Duration
	}

	// Server serves the agent API. Lifecycle: New -> Start -> Stop.
	Server struct {
		// Immutable configuration (set at creation, never modified)
		cfg  Config
		deps Deps

		// State management (atomic for lock-free reads)
		state atomic.Int32

		// Initialized during Start() - protected by stateMu for writes
		stateMu  sync.Mutex
		httpSrv  *http.Server
		listener net.Listener
		addr     string // Actual bound address (including resolved port)

		// Lifecycle management
		ctx       context.Context
		cancel    context.CancelFunc
		wg        sync.WaitGroup
		startedCh chan struct{} // Closed when the listener is accepting
		errCh     chan error    // Receives fatal errors from background goroutines
		lastErr   error         // Stores the last error for State() == StateFailed

		// Update serialization: only one pipeline run at a time
		updating atomic.Bool

		events *eventHub
		logger *log.Logger
	}

	homeResponse struct {
		Message string `json:"message"`
		Version string `json:"version,omitempty"`
	}

	queryResponse struct {
		Answer string `json:"answer"`
	}

	updateResponse struct {
		Status  string `json:"status"`
		Indexed int    `json:"indexed"`
		RunID   string `json:"run_id"`
	}
)

// String returns a human-readable representation of the server state.
func (s ServerState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:               "localhost:8000",
		Version:            "dev",
		Collection:         store.DefaultCollection,
		DefaultTopK:        3,
		DefaultUpdateLimit: pipeline.DefaultMediaLimit,
		StartupTimeout:     5 * time.Second,
		ShutdownTimeout:    10 * time.Second,
	}
}

// New creates a Server. It is not started; call Start() to begin serving.
func New(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:8000"
	}
	if cfg.Collection == "" {
		cfg.Collection = store.DefaultCollection
	}
	if cfg.DefaultTopK < 1 {
		cfg.DefaultTopK = 3
	}
	if cfg.DefaultUpdateLimit < 1 {
		cfg.DefaultUpdateLimit = pipeline.DefaultMediaLimit
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		startedCh: make(chan struct{}),
		errCh:     make(chan error, 1), // Buffered so goroutines don't block
		events:    newEventHub(),
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "server",
		}),
	}
	s.state.Store(int32(StateCreated))

	return s
}

// Observer returns the progress sink to wire into the pipeline, so update
// runs stream onto the SSE endpoint.
func (s *Server) Observer() pipeline.Observer {
	return s.events.Publish
}

// Start binds the listener and blocks until the server accepts requests,
// fails to start, or the context/startup timeout expires. After Start()
// returns nil, use Err() to monitor for runtime errors.
func (s *Server) Start(ctx context.Context) error {
	// Check for an already-cancelled context BEFORE any setup, so the serve
	// goroutine cannot transition to StateRunning first.
	select {
	case <-ctx.Done():
		s.transitionToFailed(fmt.Errorf("context cancelled before start: %w", ctx.Err()))
		return s.lastErr
	default:
	}

	// Transition: Created -> Starting
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return fmt.Errorf("cannot start server in state %s", ServerState(s.state.Load()))
	}

	// Internal context for lifecycle management; request contexts derive
	// from it, so cancelling it also ends SSE streams during shutdown.
	s.ctx, s.cancel = context.WithCancel(context.Background())

	startupCtx, startupCancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer startupCancel()

	var lc net.ListenConfig
	listener, err := lc.Listen(startupCtx, "tcp", s.cfg.Addr)
	if err != nil {
		s.transitionToFailed(fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err))
		return s.lastErr
	}

	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return s.ctx
		},
	}

	s.stateMu.Lock()
	s.listener = listener
	s.addr = listener.Addr().String()
	s.httpSrv = srv
	s.stateMu.Unlock()

	s.wg.Add(1)
	go s.serve()

	select {
	case <-s.startedCh:
		s.logger.Info("agent service started", "address", s.addr)
		return nil

	case err := <-s.errCh:
		s.transitionToFailed(err)
		return err

	case <-startupCtx.Done():
		s.cancel() // Stop any background work
		s.transitionToFailed(fmt.Errorf("startup timeout: %w", startupCtx.Err()))
		return s.lastErr
	}
}

// Stop gracefully stops the server. It blocks until in-flight requests
// finish or the shutdown timeout is reached. Safe to call multiple times.
func (s *Server) Stop() error {
	for {
		currentState := ServerState(s.state.Load())
		switch currentState {
		case StateStopped, StateFailed:
			return nil // Already stopped
		case StateCreated:
			if s.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
				return nil // Never started
			}
			continue // State changed, retry
		case StateStopping:
			// Wait for the ongoing stop to complete
			s.wg.Wait()
			return nil
		case StateStarting, StateRunning:
			if !s.state.CompareAndSwap(int32(currentState), int32(StateStopping)) {
				continue // State changed, retry
			}
			return s.doStop()
		default:
			return fmt.Errorf("unknown server state: %d", currentState)
		}
	}
}

// Err returns a channel that receives fatal server errors. The channel is
// closed when the server stops.
func (s *Server) Err() <-chan error {
	return s.errCh
}

// State returns the current server state.
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

// IsRunning reports whether the server is accepting requests.
func (s *Server) IsRunning() bool {
	return s.State() == StateRunning
}

// Address returns the server's bound address (host:port). Blocks until the
// server has started or failed; empty when it never started.
func (s *Server) Address() string {
	select {
	case <-s.startedCh:
		s.stateMu.Lock()
		defer s.stateMu.Unlock()
		return s.addr
	case <-s.ctx.Done():
		return ""
	}
}

// Port returns the server's listening port. Blocks until the server has
// started or failed; 0 when it never started.
func (s *Server) Port() int {
	addr := s.Address()
	if addr == "" {
		return 0
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

// Wait blocks until the server stops, returning the error if it failed.
func (s *Server) Wait() error {
	s.wg.Wait()

	if s.State() == StateFailed {
		return s.lastErr
	}
	return nil
}

// routes builds the request multiplexer.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /update", s.handleUpdate)
	mux.HandleFunc("GET /update/events", s.handleUpdateEvents)
	return mux
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, homeResponse{Message: homeMessage, Version: s.cfg.Version})
}

// handleQuery answers a question from the indexed transcripts: embed the
// question, collect the top-k chunks, ask the agent.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	question := r.URL.Query().Get("question")
	if question == "" {
		writeError(w, badRequest("question is required"))
		return
	}

	topK := s.cfg.DefaultTopK
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, badRequest("top_k must be a positive integer"))
			return
		}
		topK = n
	}

	ctx := r.Context()
	vector, err := s.deps.Embedder.EmbedQuery(ctx, question)
	if err != nil {
		writeError(w, fmt.Errorf("embedding question: %w", err))
		return
	}

	hits, err := s.deps.Searcher.Query(ctx, s.cfg.Collection, vector, topK)
	if err != nil {
		writeError(w, fmt.Errorf("querying index: %w", err))
		return
	}

	chunks := make([]string, len(hits))
	for i, hit := range hits {
		chunks[i] = hit.Content
	}

	answer, err := s.deps.Answerer.Answer(ctx, question, chunks)
	if err != nil {
		writeError(w, fmt.Errorf("generating answer: %w", err))
		return
	}

	s.logger.Info("answered", "chunks", len(chunks), "top_k", topK)
	writeJSON(w, queryResponse{Answer: answer})
}

// handleUpdate runs the pipeline synchronously and reports the result.
// Concurrent updates are rejected with 409.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.DefaultUpdateLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, badRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}

	if !s.updating.CompareAndSwap(false, true) {
		writeError(w, conflict("an update is already running"))
		return
	}
	defer s.updating.Store(false)

	s.logger.Info("update requested", "limit", limit)
	stats, err := s.deps.Runner.Run(r.Context(), limit)
	if err != nil {
		writeError(w, fmt.Errorf("running pipeline: %w", err))
		return
	}

	writeJSON(w, updateResponse{
		Status:  updateStatusMessage,
		Indexed: stats.Indexed,
		RunID:   stats.RunID,
	})
}

// handleUpdateEvents streams pipeline progress as SSE.
func (s *Server) handleUpdateEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, internalError("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch, unsub := s.events.Subscribe()
	defer unsub()

	id := 0
	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-ch:
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: progress\ndata: %s\nid: %d\n\n", data, id)
			flusher.Flush()
			id++
		}
	}
}

// serve runs the HTTP server and reports unexpected exit errors.
func (s *Server) serve() {
	defer s.wg.Done()

	// Transition: Starting -> Running (signals readiness)
	if s.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		close(s.startedCh)
	}

	s.stateMu.Lock()
	srv := s.httpSrv
	listener := s.listener
	s.stateMu.Unlock()

	if srv == nil || listener == nil {
		return
	}

	err := srv.Serve(listener)
	if err != nil {
		// Ignore expected shutdown errors
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
			return
		}

		select {
		case s.errCh <- fmt.Errorf("serve error: %w", err):
		default:
			s.logger.Error("serve error (channel full)", "error", err)
		}
	}
}

// doStop performs the actual shutdown logic.
func (s *Server) doStop() error {
	// Cancelling the base context ends SSE streams so Shutdown can finish.
	if s.cancel != nil {
		s.cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	s.stateMu.Lock()
	if s.httpSrv != nil {
		shutdownErr = s.httpSrv.Shutdown(shutdownCtx)
		if shutdownErr != nil && !errors.Is(shutdownErr, net.ErrClosed) {
			s.logger.Error("shutdown error", "error", shutdownErr)
		} else {
			shutdownErr = nil
		}
	}
	if s.listener != nil {
		_ = s.listener.Close() // Best-effort cleanup during shutdown
	}
	s.stateMu.Unlock()

	s.wg.Wait()

	s.state.Store(int32(StateStopped))
	s.logger.Info("agent service stopped")

	// Close the error channel to signal consumers
	close(s.errCh)

	return shutdownErr
}

// transitionToFailed sets the server state to Failed and stores the error.
func (s *Server) transitionToFailed(err error) {
	s.lastErr = err
	s.state.Store(int32(StateFailed))
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case s.errCh <- err:
	default:
	}
}
