// SPDX-License-Identifier: MPL-2.0

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"instagent/internal/pipeline"
	"instagent/internal/store"
	"instagent/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// opencensus (linked in via the genai dependency chain) starts
		// this worker in package init; it is not a leak in this package.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

type fakeRunner struct {
	stats    *pipeline.Stats
	err      error
	gotLimit int
}

func (f *fakeRunner) Run(_ context.Context, limit int) (*pipeline.Stats, error) {
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if f.stats != nil {
		return f.stats, nil
	}
	return &pipeline.Stats{RunID: "run-test", Indexed: 2}, nil
}

// blockingRunner holds an update in flight until released, so tests can
// observe the conflict path.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, _ int) (*pipeline.Stats, error) {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return &pipeline.Stats{RunID: "run-blocked"}, nil
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeSearcher struct {
	hits          []store.ScoredChunk
	err           error
	gotCollection string
	gotTopK       int
}

func (f *fakeSearcher) Query(_ context.Context, collection string, _ []float32, topK int) ([]store.ScoredChunk, error) {
	f.gotCollection = collection
	f.gotTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakeAnswerer struct {
	answer      string
	err         error
	gotQuestion string
	gotChunks   []string
}

func (f *fakeAnswerer) Answer(_ context.Context, question string, chunks []string) (string, error) {
	f.gotQuestion = question
	f.gotChunks = chunks
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func newTestServer(deps Deps) *Server {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	return New(cfg, deps)
}

func doRequest(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, http.NoBody)
	w := httptest.NewRecorder()
	s.routes().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Error
}

func TestHandleHome(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Version = "1.2.3"
	s := New(cfg, Deps{})

	w := doRequest(t, s, http.MethodGet, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp homeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message != "Instagram AI Agent running!" {
		t.Errorf("Message = %q, want %q", resp.Message, "Instagram AI Agent running!")
	}
	if resp.Version != "1.2.3" {
		t.Errorf("Version = %q, want %q", resp.Version, "1.2.3")
	}
}

func TestHandleHomeExactPathOnly(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{})

	w := doRequest(t, s, http.MethodGet, "/nope")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleQuery(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	searcher := &fakeSearcher{hits: []store.ScoredChunk{
		{Chunk: store.Chunk{ChunkID: "101_chunk_0", Content: "Premier extrait."}, Score: 0.92},
		{Chunk: store.Chunk{ChunkID: "101_chunk_1", Content: "Deuxième extrait."}, Score: 0.81},
	}}
	answerer := &fakeAnswerer{answer: "Réponse fondée sur les extraits."}
	s := newTestServer(Deps{Embedder: embedder, Searcher: searcher, Answerer: answerer})

	target := "/query?" + url.Values{"question": {"Qui est le créateur ?"}}.Encode()
	w := doRequest(t, s, http.MethodPost, target)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp queryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Answer != "Réponse fondée sur les extraits." {
		t.Errorf("Answer = %q", resp.Answer)
	}

	if searcher.gotCollection != store.DefaultCollection {
		t.Errorf("collection = %q, want %q", searcher.gotCollection, store.DefaultCollection)
	}
	if searcher.gotTopK != 3 {
		t.Errorf("topK = %d, want 3", searcher.gotTopK)
	}
	if answerer.gotQuestion != "Qui est le créateur ?" {
		t.Errorf("question = %q", answerer.gotQuestion)
	}
	wantChunks := []string{"Premier extrait.", "Deuxième extrait."}
	if diff := cmp.Diff(wantChunks, answerer.gotChunks); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleQueryMissingQuestion(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{})

	w := doRequest(t, s, http.MethodPost, "/query")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if e := decodeError(t, w); e.Code != codeBadRequest {
		t.Errorf("code = %q, want %q", e.Code, codeBadRequest)
	}
}

func TestHandleQueryInvalidTopK(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"abc", "0", "-2"} {
		s := newTestServer(Deps{Embedder: &fakeEmbedder{}, Searcher: &fakeSearcher{}, Answerer: &fakeAnswerer{}})

		target := "/query?" + url.Values{"question": {"Où ?"}, "top_k": {raw}}.Encode()
		w := doRequest(t, s, http.MethodPost, target)
		if w.Code != http.StatusBadRequest {
			t.Errorf("top_k=%q: status = %d, want %d", raw, w.Code, http.StatusBadRequest)
		}
	}
}

func TestHandleQueryCustomTopK(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{}
	s := newTestServer(Deps{
		Embedder: &fakeEmbedder{vector: []float32{1}},
		Searcher: searcher,
		Answerer: &fakeAnswerer{answer: "ok"},
	})

	target := "/query?" + url.Values{"question": {"Où ?"}, "top_k": {"7"}}.Encode()
	w := doRequest(t, s, http.MethodPost, target)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if searcher.gotTopK != 7 {
		t.Errorf("topK = %d, want 7", searcher.gotTopK)
	}
}

func TestHandleQueryEmbedderFailure(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{
		Embedder: &fakeEmbedder{err: errors.New("quota exceeded")},
		Searcher: &fakeSearcher{},
		Answerer: &fakeAnswerer{},
	})

	target := "/query?" + url.Values{"question": {"Où ?"}}.Encode()
	w := doRequest(t, s, http.MethodPost, target)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	e := decodeError(t, w)
	if e.Code != codeInternalError {
		t.Errorf("code = %q, want %q", e.Code, codeInternalError)
	}
	if !strings.Contains(e.Message, "quota exceeded") {
		t.Errorf("message = %q, should mention the cause", e.Message)
	}
}

func TestHandleQueryNoHits(t *testing.T) {
	t.Parallel()

	// An empty index still produces an answer; the agent just gets no context.
	answerer := &fakeAnswerer{answer: "Je ne sais pas."}
	s := newTestServer(Deps{
		Embedder: &fakeEmbedder{vector: []float32{1}},
		Searcher: &fakeSearcher{},
		Answerer: answerer,
	})

	target := "/query?" + url.Values{"question": {"Où ?"}}.Encode()
	w := doRequest(t, s, http.MethodPost, target)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(answerer.gotChunks) != 0 {
		t.Errorf("chunks = %v, want none", answerer.gotChunks)
	}
}

func TestHandleUpdate(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{stats: &pipeline.Stats{RunID: "run-42", Indexed: 3}}
	s := newTestServer(Deps{Runner: runner})

	w := doRequest(t, s, http.MethodPost, "/update")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp updateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "Pipeline exécuté, nouvelles vidéos indexées" {
		t.Errorf("Status = %q", resp.Status)
	}
	if resp.Indexed != 3 {
		t.Errorf("Indexed = %d, want 3", resp.Indexed)
	}
	if resp.RunID != "run-42" {
		t.Errorf("RunID = %q, want %q", resp.RunID, "run-42")
	}

	if runner.gotLimit != pipeline.DefaultMediaLimit {
		t.Errorf("limit = %d, want %d", runner.gotLimit, pipeline.DefaultMediaLimit)
	}
}

func TestHandleUpdateCustomLimit(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s := newTestServer(Deps{Runner: runner})

	w := doRequest(t, s, http.MethodPost, "/update?limit=12")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if runner.gotLimit != 12 {
		t.Errorf("limit = %d, want 12", runner.gotLimit)
	}
}

func TestHandleUpdateInvalidLimit(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"abc", "0", "-1"} {
		runner := &fakeRunner{}
		s := newTestServer(Deps{Runner: runner})

		w := doRequest(t, s, http.MethodPost, "/update?limit="+raw)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%q: status = %d, want %d", raw, w.Code, http.StatusBadRequest)
		}
		if runner.gotLimit != 0 {
			t.Errorf("limit=%q: runner should not have been called", raw)
		}
	}
}

func TestHandleUpdateRunnerFailure(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{Runner: &fakeRunner{err: errors.New("login rejected")}})

	w := doRequest(t, s, http.MethodPost, "/update")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if e := decodeError(t, w); !strings.Contains(e.Message, "login rejected") {
		t.Errorf("message = %q, should mention the cause", e.Message)
	}
}

func TestHandleUpdateConcurrentConflict(t *testing.T) {
	t.Parallel()

	runner := &blockingRunner{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := newTestServer(Deps{Runner: runner})

	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		firstDone <- doRequest(t, s, http.MethodPost, "/update")
	}()

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first update never started")
	}

	// Second update while the first is still running.
	w := doRequest(t, s, http.MethodPost, "/update")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if e := decodeError(t, w); e.Code != codeConflict {
		t.Errorf("code = %q, want %q", e.Code, codeConflict)
	}

	close(runner.release)
	select {
	case first := <-firstDone:
		if first.Code != http.StatusOK {
			t.Errorf("first update status = %d, want %d", first.Code, http.StatusOK)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first update never finished")
	}
}

func TestHandleUpdateEventsStreams(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{})
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/update/events", http.NoBody)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer testutil.DeferClose(t, resp.Body)()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/event-stream")
	}

	// The hub replays recent events, so publishing after the request was
	// accepted is safe even if the subscription races the publish.
	s.Observer()(pipeline.Event{
		RunID: "run-sse",
		Stage: pipeline.StageStart,
		Time:  time.Now(),
	})

	scanner := bufio.NewScanner(resp.Body)
	var eventName, data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventName = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if eventName != "progress" {
		t.Errorf("event = %q, want %q", eventName, "progress")
	}

	var e pipeline.Event
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		t.Fatalf("failed to decode event %q: %v", data, err)
	}
	if e.RunID != "run-sse" {
		t.Errorf("RunID = %q, want %q", e.RunID, "run-sse")
	}
	if e.Stage != pipeline.StageStart {
		t.Errorf("Stage = %q, want %q", e.Stage, pipeline.StageStart)
	}

	// Disconnect the client so the handler returns before srv.Close().
	cancel()
}

type noFlushWriter struct {
	http.ResponseWriter
}

func TestHandleUpdateEventsRequiresFlusher(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{})

	req := httptest.NewRequest(http.MethodGet, "/update/events", http.NoBody)
	rec := httptest.NewRecorder()
	s.handleUpdateEvents(noFlushWriter{rec}, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{})

	if s.State() != StateCreated {
		t.Errorf("State should be Created, got %s", s.State())
	}
	if s.IsRunning() {
		t.Error("Server should not be running before Start()")
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	if s.State() != StateRunning {
		t.Errorf("State should be Running, got %s", s.State())
	}
	if !s.IsRunning() {
		t.Error("Server should be running after Start()")
	}
	if s.Port() == 0 {
		t.Error("Server port should be assigned")
	}

	// The live server must serve the health banner.
	client := &http.Client{}
	defer client.CloseIdleConnections()

	resp, err := client.Get(fmt.Sprintf("http://%s/", s.Address()))
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	var home homeResponse
	if err := json.NewDecoder(resp.Body).Decode(&home); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	testutil.MustClose(t, resp.Body)
	if !strings.Contains(home.Message, "Instagram AI Agent") {
		t.Errorf("Message = %q, should contain %q", home.Message, "Instagram AI Agent")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State should be Stopped, got %s", s.State())
	}
	if s.IsRunning() {
		t.Error("Server should not be running after Stop()")
	}
}

func TestServerDoubleStart(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{})

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer testutil.MustStop(t, s)

	if err := s.Start(ctx); err == nil {
		t.Error("Second Start() should return error")
	}
}

func TestServerDoubleStop(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{})

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("First Stop() failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Second Stop() should not error, got: %v", err)
	}
}

func TestServerStopWithoutStart(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{})

	if err := s.Stop(); err != nil {
		t.Errorf("Stop without Start should not error, got: %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State should be Stopped, got %s", s.State())
	}
}

func TestServerStartWithCancelledContext(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Start(ctx); err == nil {
		t.Error("Start with cancelled context should return error")
		testutil.MustStop(t, s)
	}
	if s.State() != StateFailed {
		t.Errorf("State should be Failed, got %s", s.State())
	}
	if err := s.Wait(); err == nil {
		t.Error("Wait() after failed Start should return non-nil error")
	}
}

func TestServerStartWithUsedPort(t *testing.T) {
	t.Parallel()

	s1 := newTestServer(Deps{})

	ctx := context.Background()
	if err := s1.Start(ctx); err != nil {
		t.Fatalf("Failed to start server1: %v", err)
	}
	defer testutil.MustStop(t, s1)

	cfg2 := DefaultConfig()
	cfg2.Addr = s1.Address()
	s2 := New(cfg2, Deps{})

	if err := s2.Start(ctx); err == nil {
		testutil.MustStop(t, s2)
		t.Fatal("Start with used port should return error")
	}
	if s2.State() != StateFailed {
		t.Errorf("State should be Failed, got %s", s2.State())
	}
}

func TestServerStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state    ServerState
		expected string
	}{
		{StateCreated, "created"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{StateStopped, "stopped"},
		{StateFailed, "failed"},
		{ServerState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("ServerState(%d).String() = %q, want %q", tt.state, got, tt.expected)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Addr != "localhost:8000" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, "localhost:8000")
	}
	if cfg.Collection != store.DefaultCollection {
		t.Errorf("Collection = %q, want %q", cfg.Collection, store.DefaultCollection)
	}
	if cfg.DefaultTopK != 3 {
		t.Errorf("DefaultTopK = %d, want 3", cfg.DefaultTopK)
	}
	if cfg.DefaultUpdateLimit != 5 {
		t.Errorf("DefaultUpdateLimit = %d, want 5", cfg.DefaultUpdateLimit)
	}
	if cfg.StartupTimeout != 5*time.Second {
		t.Errorf("StartupTimeout = %v, want %v", cfg.StartupTimeout, 5*time.Second)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want %v", cfg.ShutdownTimeout, 10*time.Second)
	}
}
