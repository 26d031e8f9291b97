package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/johnayoung/math-consensus/internal/consensus"
	"github.com/johnayoung/math-consensus/internal/history"
	"github.com/johnayoung/math-consensus/internal/logger"
	"github.com/johnayoung/math-consensus/internal/provider"
	"github.com/johnayoung/math-consensus/internal/runner"
	"github.com/johnayoung/math-consensus/internal/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ocrFunc func(ctx context.Context, path string) (string, error)

func (f ocrFunc) Process(ctx context.Context, path string) (string, error) { return f(ctx, path) }

type fixture struct {
	handler   http.Handler
	store     *history.FileStore
	uploadDir string
	seenImage string
}

func newFixture(t *testing.T, backends ...string) *fixture {
	t.Helper()
	return newFixtureWithSettings(t, Settings{MaxUploadBytes: 1 << 20}, backends...)
}

func newFixtureWithSettings(t *testing.T, settings Settings, backends ...string) *fixture {
	t.Helper()
	f := &fixture{uploadDir: filepath.Join(t.TempDir(), "uploads")}

	reg := provider.NewRegistry()
	for _, name := range backends {
		reg.Register(name, "m", provider.ProviderFunc(func(ctx context.Context, req provider.Request) (provider.Response, error) {
			return provider.Response{Content: "Step 1: compute.\nanswer: 4"}, nil
		}))
	}

	store, err := history.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	f.store = store

	svc := solver.New(runner.New(reg, time.Second), backends,
		solver.WithStore(store),
		solver.WithOCR(ocrFunc(func(ctx context.Context, path string) (string, error) {
			f.seenImage = path
			return "2+2", nil
		})),
	)

	settings.UploadDir = f.uploadDir
	srv := New(settings, svc, store,
		WithLogger(logger.NewTestLogger(t)))
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func postFile(t *testing.T, field, filename string, content []byte) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/submit", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestSubmit_Text(t *testing.T) {
	f := newFixture(t, "chatgpt", "claude")

	rec := f.do(postForm(url.Values{"problem_text": {"2+2"}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got history.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "2+2.", got.ProblemText)
	assert.Equal(t, consensus.StatusFullConsensus, got.Consensus.Status)
	assert.Equal(t, []string{"chatgpt", "claude"}, got.AvailableModels)

	_, err := f.store.Get(context.Background(), got.ID)
	assert.NoError(t, err)
}

func TestSubmit_Image(t *testing.T) {
	f := newFixture(t, "chatgpt")

	rec := f.do(postFile(t, "problem_image", "../../my problem.png", []byte("fake png")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, f.uploadDir, filepath.Dir(f.seenImage))
	assert.Regexp(t, `^[0-9a-f-]{36}_my_problem\.png$`, filepath.Base(f.seenImage))
	data, err := os.ReadFile(f.seenImage)
	require.NoError(t, err)
	assert.Equal(t, "fake png", string(data))
}

func TestSubmit_RemovesSpilledFormFiles(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	f := newFixtureWithSettings(t, Settings{MaxUploadBytes: 1 << 20, MaxMemoryBytes: 1024}, "chatgpt")

	rec := f.do(postFile(t, "problem_image", "big.png", bytes.Repeat([]byte("x"), 64<<10)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	spilled, err := filepath.Glob(filepath.Join(tmp, "multipart-*"))
	require.NoError(t, err)
	assert.Empty(t, spilled, "multipart temp files left behind")

	data, err := os.ReadFile(f.seenImage)
	require.NoError(t, err)
	assert.Len(t, data, 64<<10)
}

func TestSubmit_Errors(t *testing.T) {
	t.Run("nothing provided", func(t *testing.T) {
		f := newFixture(t, "chatgpt")
		rec := f.do(postForm(url.Values{"other": {"x"}}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "no problem image or text provided", decodeError(t, rec))
	})

	t.Run("empty filename", func(t *testing.T) {
		f := newFixture(t, "chatgpt")
		rec := f.do(postFile(t, "problem_image", "", []byte("x")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No selected file", decodeError(t, rec))
	})

	t.Run("blank text", func(t *testing.T) {
		f := newFixture(t, "chatgpt")
		rec := f.do(postForm(url.Values{"problem_text": {"   "}}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no backends", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(postForm(url.Values{"problem_text": {"1+1"}}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec), "no AI backends available")
	})

	t.Run("too large", func(t *testing.T) {
		f := newFixture(t, "chatgpt")
		rec := f.do(postFile(t, "problem_image", "big.png", bytes.Repeat([]byte("x"), 2<<20)))
		assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		f := newFixture(t, "chatgpt")
		rec := f.do(httptest.NewRequest(http.MethodGet, "/api/submit", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHistoryEndpoints(t *testing.T) {
	f := newFixture(t, "chatgpt")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	submitted := f.do(postForm(url.Values{"problem_text": {"3*3"}}))
	require.Equal(t, http.StatusOK, submitted.Code)
	var created history.Record
	require.NoError(t, json.Unmarshal(submitted.Body.Bytes(), &created))

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []history.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Equal(t, "medium", list[0].Confidence)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/history/"+created.ID+".json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got history.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "3*3.", got.ProblemText)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/history/result_20990101_000000_abcdef", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "History item not found", decodeError(t, rec))
}

func TestHistoryItem_Invalid(t *testing.T) {
	dir := t.TempDir()
	store, err := history.NewFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "result_20240101_000000.json"), []byte(`{"x":1}`), 0o644))

	srv := New(Settings{}, solver.New(nil, nil), store)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/result_20240101_000000", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Invalid history file", decodeError(t, rec))
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, "chatgpt", "gemini")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","backends":["chatgpt","gemini"],"history":"file"}`, rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHistoryDisabled(t *testing.T) {
	srv := New(Settings{}, solver.New(nil, nil), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSecureFilename(t *testing.T) {
	tests := map[string]string{
		"photo.png":          "photo.png",
		"../../etc/passwd":   "passwd",
		`C:\Users\me\eq.jpg`: "eq.jpg",
		"my problem (1).png": "my_problem_1_.png",
		"...":                "upload",
		".hidden":            "hidden",
	}
	for in, want := range tests {
		assert.Equal(t, want, secureFilename(in), in)
	}
}
