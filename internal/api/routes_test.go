package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cutscene/cutscene-client/internal/db"
	"github.com/cutscene/cutscene-client/internal/downloads"
	"github.com/cutscene/cutscene-client/internal/editor"
	"github.com/cutscene/cutscene-client/internal/logging"
	"github.com/cutscene/cutscene-client/internal/media"
	"github.com/cutscene/cutscene-client/internal/metrics"
	"github.com/cutscene/cutscene-client/internal/playback"
	"github.com/cutscene/cutscene-client/internal/remote"
	"github.com/cutscene/cutscene-client/internal/timecode"
)

const testToken = "secret-token"

type fakeRemote struct {
	sessions []media.Session
	err      error
}

func (f *fakeRemote) Sessions(ctx context.Context) ([]media.Session, error) {
	return f.sessions, f.err
}

func (f *fakeRemote) AuthURL() string { return "http://media.local/authUrl" }

func (f *fakeRemote) PreviewURL(s media.Session, startMs, endMs int) string {
	return fmt.Sprintf("http://media.local/preview/%s/%s/%s", s.RatingKey, timecode.Format(startMs), timecode.Format(endMs))
}

func (f *fakeRemote) ClipURL(s media.Session, startMs, endMs int) string {
	return fmt.Sprintf("http://media.local/clip/%s/%s/%s", s.RatingKey, timecode.Format(startMs), timecode.Format(endMs))
}

type fakeThumbs struct {
	err error
}

func (f *fakeThumbs) Thumb(ctx context.Context, path string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("jpeg:" + path), "image/jpeg", nil
}

var testSessions = []media.Session{
	{RatingKey: "42", Type: "movie", Title: "Heat", Year: 1995, ViewOffset: 120000, Duration: 600000, Thumb: "/library/42/thumb"},
	{RatingKey: "7", Type: "episode", Title: "Pilot", GrandparentTitle: "Show", ParentIndex: 1, Index: 1, ViewOffset: 0, Duration: 1800000},
}

type testEnv struct {
	cfg     ServerConfig
	handler http.Handler
	repo    downloads.Repository
}

func newTestEnv(t *testing.T, r editor.Remote) *testEnv {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := downloads.NewRepository(database.Conn())
	if err := repo.SetConfig(context.Background(), AuthTokenKey, testToken); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}

	opts := editor.DefaultOptions()
	opts.Clock = clockwork.NewFakeClock()
	ed := editor.New(r, opts)
	_ = ed.Load(context.Background())

	logger := logging.Discard()
	cfg := ServerConfig{
		Editor:     ed,
		Downloads:  downloads.NewService(repo, logger),
		Repository: repo,
		Clips:      playback.NewClipServer(logger),
		Thumbs:     &fakeThumbs{},
		Metrics:    metrics.New(),
		Logger:     logger,
		StartTime:  time.Now(),
		ClientID:   "client-1",
	}
	return &testEnv{cfg: cfg, handler: NewRouter(cfg), repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealth_NoAuth(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{sessions: testSessions})

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[HealthResponse](t, rr)
	if resp.Status != "ok" || resp.ClientID != "client-1" {
		t.Errorf("health = %+v", resp)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{sessions: testSessions})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + testToken, http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + testToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			env.handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestSessions_List(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{sessions: testSessions})

	rr := env.do(t, http.MethodGet, "/sessions", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[SessionsResponse](t, rr)
	if resp.Status != string(editor.StatusReady) {
		t.Errorf("status = %q, want ready", resp.Status)
	}
	if len(resp.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(resp.Sessions))
	}
	heat := resp.Sessions[0]
	if heat.DisplayName != "Heat (1995)" || heat.ViewOffset != "00:02:00" || !heat.HasThumb {
		t.Errorf("session = %+v", heat)
	}
}

func TestSessions_AuthRequired(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{err: remote.ErrAuthRequired})

	resp := decode[SessionsResponse](t, env.do(t, http.MethodGet, "/sessions", nil))
	if !resp.AuthRequired || resp.AuthURL != "http://media.local/authUrl" {
		t.Errorf("response = %+v, want auth required with url", resp)
	}
	if len(resp.Sessions) != 0 {
		t.Errorf("sessions = %d, want 0", len(resp.Sessions))
	}
}

func TestSelect(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{sessions: testSessions})

	rr := env.do(t, http.MethodPost, "/sessions/42/select", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	resp := decode[SelectResponse](t, rr)
	if resp.Range.Start != "00:02:00" || resp.Range.End != "00:03:00" {
		t.Errorf("range = %+v, want 00:02:00-00:03:00", resp.Range)
	}
	if resp.Preview.URL != "http://media.local/preview/42/00:02:00/00:03:00" {
		t.Errorf("preview = %q", resp.Preview.URL)
	}

	rr = env.do(t, http.MethodPost, "/sessions/999/select", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rr.Code)
	}
}

func TestRangeEdit(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{sessions: testSessions})

	rr := env.do(t, http.MethodPut, "/range/start", map[string]int{"ms": 130000})
	if rr.Code != http.StatusConflict || decode[ErrorResponse](t, rr).Code != "NO_SELECTION" {
		t.Fatalf("edit without selection = %d %s, want 409 NO_SELECTION", rr.Code, rr.Body.String())
	}

	env.do(t, http.MethodPost, "/sessions/42/select", nil)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantErr  string
		wantRng  string
	}{
		{"start ms", "/range/start", `{"ms":130000}`, http.StatusOK, "", "00:02:10-00:03:00"},
		{"end clock", "/range/end", `{"clock":"00:04:00"}`, http.StatusOK, "", "00:02:10-00:04:00"},
		{"end sub ms", "/range/end", `{"sub_ms":250}`, http.StatusOK, "", "00:02:10-00:04:00.250"},
		{"start past end", "/range/start", `{"ms":239800}`, http.StatusConflict, "RANGE_REJECTED", "00:02:10-00:04:00.250"},
		{"end past duration", "/range/end", `{"ms":600001}`, http.StatusConflict, "RANGE_REJECTED", "00:02:10-00:04:00.250"},
		{"bad clock", "/range/start", `{"clock":"2 minutes"}`, http.StatusBadRequest, "INVALID_TIMECODE", ""},
		{"two fields", "/range/start", `{"ms":1,"sub_ms":2}`, http.StatusBadRequest, "BAD_REQUEST", ""},
		{"empty", "/range/start", `{}`, http.StatusBadRequest, "BAD_REQUEST", ""},
		{"garbage", "/range/start", `{`, http.StatusBadRequest, "BAD_REQUEST", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPut, tt.path, tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantCode, rr.Body.String())
			}
			var resp struct {
				Code  string `json:"code"`
				Start string `json:"start"`
				End   string `json:"end"`
				Range *RangeResponse
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantErr)
			}
			if tt.wantRng == "" {
				return
			}
			got := resp.Start + "-" + resp.End
			if resp.Range != nil {
				got = resp.Range.Start + "-" + resp.Range.End
			}
			if got != tt.wantRng {
				t.Errorf("range = %s, want %s", got, tt.wantRng)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{sessions: testSessions})

	if rr := env.do(t, http.MethodGet, "/preview", nil); rr.Code != http.StatusConflict {
		t.Fatalf("preview without selection = %d, want 409", rr.Code)
	}

	env.do(t, http.MethodPost, "/sessions/7/select", nil)
	resp := decode[PreviewResponse](t, env.do(t, http.MethodGet, "/preview", nil))
	if resp.URL != "http://media.local/preview/7/00:00:00/00:01:00" {
		t.Errorf("url = %q", resp.URL)
	}
	if resp.ClipURL != "http://media.local/clip/7/00:00:00/00:01:00" {
		t.Errorf("clip url = %q", resp.ClipURL)
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{sessions: testSessions})
	env.do(t, http.MethodPost, "/sessions/42/select", nil)

	resp := decode[StatusResponse](t, env.do(t, http.MethodGet, "/status", nil))
	if resp.State != "ready" || resp.SessionsCount != 2 {
		t.Errorf("status = %+v", resp)
	}
	if resp.Selected == nil || resp.Selected.RatingKey != "42" {
		t.Errorf("selected = %+v, want 42", resp.Selected)
	}
	if resp.Range == nil || resp.Range.StartMs != 120000 {
		t.Errorf("range = %+v", resp.Range)
	}
	if resp.Downloads == nil {
		t.Error("downloads counts missing")
	}
}

func TestDownloads_CreateAndGet(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{sessions: testSessions})

	if rr := env.do(t, http.MethodPost, "/downloads", nil); rr.Code != http.StatusConflict {
		t.Fatalf("download without selection = %d, want 409", rr.Code)
	}

	env.do(t, http.MethodPost, "/sessions/42/select", nil)
	env.do(t, http.MethodPut, "/range/end", `{"ms":150000}`)

	rr := env.do(t, http.MethodPost, "/downloads", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rr.Code, rr.Body.String())
	}
	created := decode[DownloadResponse](t, rr)
	if created.Status != downloads.StatusPending || created.End != "00:02:30" {
		t.Errorf("created = %+v", created)
	}

	got := decode[DownloadResponse](t, env.do(t, http.MethodGet, "/downloads/"+created.ID, nil))
	if got.ID != created.ID || got.Title != "Heat (1995)" {
		t.Errorf("get = %+v", got)
	}

	list := decode[DownloadsResponse](t, env.do(t, http.MethodGet, "/downloads", nil))
	if len(list.Downloads) != 1 {
		t.Errorf("list = %d, want 1", len(list.Downloads))
	}

	if rr := env.do(t, http.MethodGet, "/downloads/missing", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing download = %d, want 404", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/downloads?limit=abc", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/downloads/"+created.ID+"/file", nil); rr.Code != http.StatusConflict {
		t.Errorf("file of pending download = %d, want 409", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/downloads/"+created.ID+"/retry", nil); rr.Code != http.StatusConflict {
		t.Errorf("retry pending = %d, want 409", rr.Code)
	}
}

func TestDownloads_RetryAndFile(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{sessions: testSessions})
	ctx := context.Background()

	env.do(t, http.MethodPost, "/sessions/42/select", nil)
	created := decode[DownloadResponse](t, env.do(t, http.MethodPost, "/downloads", nil))

	if err := env.repo.UpdateStatus(ctx, created.ID, downloads.StatusFailed, "boom"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	rr := env.do(t, http.MethodPost, "/downloads/"+created.ID+"/retry", nil)
	if rr.Code != http.StatusAccepted || decode[DownloadResponse](t, rr).Status != downloads.StatusPending {
		t.Fatalf("retry = %d %s", rr.Code, rr.Body.String())
	}

	out := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(out, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := env.repo.Complete(ctx, created.ID, out, "Heat clip.mp4", 10); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/downloads/"+created.ID+"/file", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Range", "bytes=2-5")
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rr.Code)
	}
	if rr.Body.String() != "2345" {
		t.Errorf("body = %q, want 2345", rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "Heat clip.mp4") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestThumb(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{sessions: testSessions})

	rr := env.do(t, http.MethodGet, "/thumb/42", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "image/jpeg" || rr.Body.String() != "jpeg:/library/42/thumb" {
		t.Errorf("thumb = %q %q", rr.Header().Get("Content-Type"), rr.Body.String())
	}

	if rr := env.do(t, http.MethodGet, "/thumb/7", nil); rr.Code != http.StatusNotFound {
		t.Errorf("session without thumb = %d, want 404", rr.Code)
	}

	env.cfg.Thumbs = &fakeThumbs{err: remote.ErrAuthRequired}
	env.handler = NewRouter(env.cfg)
	if rr := env.do(t, http.MethodGet, "/thumb/42", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("auth required thumb = %d, want 401", rr.Code)
	}

	env.cfg.Thumbs = &fakeThumbs{err: errors.New("dial tcp: refused")}
	env.handler = NewRouter(env.cfg)
	if rr := env.do(t, http.MethodGet, "/thumb/42", nil); rr.Code != http.StatusBadGateway {
		t.Errorf("failed thumb = %d, want 502", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeRemote{sessions: testSessions})
	env.do(t, http.MethodGet, "/sessions", nil)
	env.do(t, http.MethodGet, "/preview", nil)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"cutscene_api_requests_total 2", "cutscene_api_errors_total 1", "cutscene_downloads_queued 0"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
