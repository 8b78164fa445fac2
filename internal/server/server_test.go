package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/wenjiez/shuoba/internal/history"
	"github.com/wenjiez/shuoba/internal/observe"
	"github.com/wenjiez/shuoba/internal/pipeline"
)

type fakeRunner struct {
	mu      sync.Mutex
	lastReq pipeline.Request
	result  *pipeline.Result
	err     error
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type memHistory struct {
	mu     sync.Mutex
	turns  []history.Turn
	failed bool
}

func (m *memHistory) Append(_ context.Context, turn history.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	return nil
}

func (m *memHistory) ReadAll(context.Context) ([]history.Turn, error) {
	if m.failed {
		return nil, errors.New("store offline")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Turn(nil), m.turns...), nil
}

func (m *memHistory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	return nil
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestServer(t *testing.T, runner TurnRunner, turns history.Store) *Server {
	t.Helper()
	s, err := New(runner, turns, t.TempDir(), WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// multipartBody builds a multipart form with an audio file and optional
// extra string fields.
func multipartBody(t *testing.T, field, filename string, audio []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write(audio); err != nil {
			t.Fatalf("write audio: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf, mw.FormDataContentType()
}

func TestInteractReturnsTurn(t *testing.T) {
	url := "/static/audio/response_abc.mp3"
	runner := &fakeRunner{result: &pipeline.Result{
		UserInput:  pipeline.Turn{Hanzi: "你好", Pinyin: "nǐ hǎo", English: "Hello"},
		AIResponse: pipeline.Turn{Hanzi: "你好！", Pinyin: "nǐ hǎo", English: "Hello!"},
		AudioURL:   &url,
	}}
	s := newTestServer(t, runner, &memHistory{})

	body, ctype := multipartBody(t, "audio", "turn.webm", []byte("RIFFdata"), nil)
	req := httptest.NewRequest(http.MethodPost, "/interact", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var res pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.UserInput.Hanzi != "你好" || res.AudioURL == nil || *res.AudioURL != url {
		t.Errorf("result = %+v", res)
	}
	if runner.lastReq.Filename != "turn.webm" {
		t.Errorf("Filename = %q", runner.lastReq.Filename)
	}
	if !bytes.Equal(runner.lastReq.Audio, []byte("RIFFdata")) {
		t.Errorf("Audio = %q", runner.lastReq.Audio)
	}
}

func TestInteractAcceptsFileField(t *testing.T) {
	runner := &fakeRunner{result: &pipeline.Result{}}
	s := newTestServer(t, runner, &memHistory{})

	body, ctype := multipartBody(t, "file", "turn.ogg", []byte("OggS"), nil)
	req := httptest.NewRequest(http.MethodPost, "/interact", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestInteractMissingAudio(t *testing.T) {
	s := newTestServer(t, &fakeRunner{result: &pipeline.Result{}}, &memHistory{})

	body, ctype := multipartBody(t, "", "", nil, map[string]string{"note": "no file"})
	req := httptest.NewRequest(http.MethodPost, "/interact", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestInteractEmptyAudio(t *testing.T) {
	s := newTestServer(t, &fakeRunner{result: &pipeline.Result{}}, &memHistory{})

	body, ctype := multipartBody(t, "audio", "empty.webm", nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/interact", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestInteractChatHistoryOverride(t *testing.T) {
	runner := &fakeRunner{result: &pipeline.Result{}}
	s := newTestServer(t, runner, &memHistory{})

	override := `[{"role":"user","hanzi":"早上好","pinyin":"zǎo shang hǎo","english":"Good morning"}]`
	body, ctype := multipartBody(t, "audio", "turn.webm", []byte("data"),
		map[string]string{"chat_history": override})
	req := httptest.NewRequest(http.MethodPost, "/interact", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if len(runner.lastReq.ContextOverride) != 1 || runner.lastReq.ContextOverride[0].Hanzi != "早上好" {
		t.Errorf("ContextOverride = %+v", runner.lastReq.ContextOverride)
	}
}

func TestInteractMalformedChatHistory(t *testing.T) {
	runner := &fakeRunner{result: &pipeline.Result{}}
	s := newTestServer(t, runner, &memHistory{})

	body, ctype := multipartBody(t, "audio", "turn.webm", []byte("data"),
		map[string]string{"chat_history": "{not json"})
	req := httptest.NewRequest(http.MethodPost, "/interact", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "chat_history") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestInteractRunnerFailure(t *testing.T) {
	s := newTestServer(t, &fakeRunner{err: errors.New("boom")}, &memHistory{})

	body, ctype := multipartBody(t, "audio", "turn.webm", []byte("data"), nil)
	req := httptest.NewRequest(http.MethodPost, "/interact", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestInteractRejectsOversizedUpload(t *testing.T) {
	s, err := New(&fakeRunner{result: &pipeline.Result{}}, &memHistory{}, t.TempDir(),
		WithMetrics(testMetrics(t)), WithMaxUploadBytes(512))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	body, ctype := multipartBody(t, "audio", "big.webm", bytes.Repeat([]byte("a"), 4096), nil)
	req := httptest.NewRequest(http.MethodPost, "/interact", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestGetHistory(t *testing.T) {
	turns := &memHistory{turns: []history.Turn{
		{Role: history.RoleUser, Hanzi: "你好", English: "Hello"},
		{Role: history.RoleAssistant, Hanzi: "你好！", English: "Hello!"},
	}}
	s := newTestServer(t, &fakeRunner{result: &pipeline.Result{}}, turns)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []history.Turn
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Role != history.RoleUser || got[1].Role != history.RoleAssistant {
		t.Errorf("turns = %+v", got)
	}
}

func TestGetHistoryEmptyIsArray(t *testing.T) {
	s := newTestServer(t, &fakeRunner{result: &pipeline.Result{}}, &memHistory{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))

	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestGetHistoryStoreFailure(t *testing.T) {
	s := newTestServer(t, &fakeRunner{result: &pipeline.Result{}}, &memHistory{failed: true})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestClearHistory(t *testing.T) {
	turns := &memHistory{turns: []history.Turn{{Role: history.RoleUser, Hanzi: "你好"}}}
	s := newTestServer(t, &fakeRunner{result: &pipeline.Result{}}, turns)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/history", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(turns.turns) != 0 {
		t.Errorf("turns not cleared: %+v", turns.turns)
	}
}

func TestStaticClipServed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "response_x.mp3"), []byte("ID3clip"), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	s, err := New(&fakeRunner{result: &pipeline.Result{}}, &memHistory{}, dir,
		WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/audio/response_x.mp3", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	b, _ := io.ReadAll(rec.Body)
	if !bytes.Equal(b, []byte("ID3clip")) {
		t.Errorf("body = %q", b)
	}
}

func TestProbesRegistered(t *testing.T) {
	s := newTestServer(t, &fakeRunner{result: &pipeline.Result{}}, &memHistory{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeRunner{result: &pipeline.Result{}}, &memHistory{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
}
