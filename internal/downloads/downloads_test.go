package downloads

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cutscene/cutscene-client/internal/db"
	"github.com/cutscene/cutscene-client/internal/logging"
	"github.com/cutscene/cutscene-client/internal/media"
	"github.com/cutscene/cutscene-client/internal/remote"
)

type fakeFetcher struct {
	mu      sync.Mutex
	offsets []int64
	fn      func(offset int64, w io.Writer) (*remote.ClipInfo, error)
}

func (f *fakeFetcher) DownloadClip(ctx context.Context, clipURL string, offset int64, w io.Writer) (*remote.ClipInfo, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	f.mu.Unlock()
	return f.fn(offset, w)
}

func serve(body, filename string) func(int64, io.Writer) (*remote.ClipInfo, error) {
	return func(offset int64, w io.Writer) (*remote.ClipInfo, error) {
		n, err := io.WriteString(w, body)
		return &remote.ClipInfo{Filename: filename, Written: int64(n)}, err
	}
}

func setup(t *testing.T, fetcher Fetcher, edlFPS float64) (*Service, *Runner, Repository, string) {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := NewRepository(database.Conn())
	dir := filepath.Join(t.TempDir(), "clips")
	svc := NewService(repo, logging.Discard())
	runner := NewRunner(repo, fetcher, RunnerOptions{
		Dir:          dir,
		EDLFrameRate: edlFPS,
		PollInterval: time.Hour,
		Logger:       logging.Discard(),
	})
	return svc, runner, repo, dir
}

var heat = media.Session{RatingKey: "42", Type: "movie", Title: "Heat", Year: 1995, Duration: 600000}

func TestService_Enqueue(t *testing.T) {
	svc, _, repo, _ := setup(t, nil, 0)
	notified := 0
	svc.OnEnqueue(func() { notified++ })

	d, err := svc.Enqueue(context.Background(), heat, 120000, 180000, "http://server/clip/42/00:02:00/00:03:00")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if d.Status != StatusPending || d.Filename != "Heat (1995) (00_02_00 - 00_03_00).mp4" {
		t.Fatalf("download = %+v", d)
	}
	if notified != 1 {
		t.Errorf("notified = %d, want 1", notified)
	}

	stored, err := repo.Get(context.Background(), d.ID)
	if err != nil || stored == nil {
		t.Fatalf("Get() = %v, %v", stored, err)
	}
	if stored.ClipURL != d.ClipURL || stored.StartMs != 120000 || stored.Title != "Heat (1995)" {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestService_EnqueueRejectsBadRange(t *testing.T) {
	svc, _, _, _ := setup(t, nil, 0)

	tests := []struct {
		name       string
		start, end int
		url        string
	}{
		{"no url", 0, 1000, ""},
		{"reversed", 5000, 1000, "http://server/clip"},
		{"negative", -1, 1000, "http://server/clip"},
	}
	for _, tt := range tests {
		if _, err := svc.Enqueue(context.Background(), heat, tt.start, tt.end, tt.url); !errors.Is(err, ErrInvalidClip) {
			t.Errorf("%s: error = %v, want ErrInvalidClip", tt.name, err)
		}
	}
}

func TestService_GetMissing(t *testing.T) {
	svc, _, _, _ := setup(t, nil, 0)
	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestRunner_CompletesDownload(t *testing.T) {
	fetcher := &fakeFetcher{fn: serve("clipdata", "Heat (1995) (00:02:00 - 00:03:00).mp4")}
	svc, runner, _, dir := setup(t, fetcher, 0)
	ctx := context.Background()

	d, _ := svc.Enqueue(ctx, heat, 120000, 180000, "http://server/clip/42/00:02:00/00:03:00")
	if !runner.processNext(ctx) {
		t.Fatal("processNext() found no work")
	}
	if runner.processNext(ctx) {
		t.Fatal("processNext() ran a second download")
	}

	got, err := svc.Get(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted || got.Bytes != 8 {
		t.Fatalf("download = %+v", got)
	}

	want := filepath.Join(dir, "Heat (1995) (00_02_00 - 00_03_00).mp4")
	if got.OutputPath != want {
		t.Fatalf("OutputPath = %q, want %q", got.OutputPath, want)
	}
	data, err := os.ReadFile(want)
	if err != nil || string(data) != "clipdata" {
		t.Fatalf("clip file = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "."+d.ID+".part")); !os.IsNotExist(err) {
		t.Errorf("part file left behind: %v", err)
	}
}

func TestRunner_FallsBackToQueuedFilename(t *testing.T) {
	fetcher := &fakeFetcher{fn: serve("x", "")}
	svc, runner, _, dir := setup(t, fetcher, 0)
	ctx := context.Background()

	d, _ := svc.Enqueue(ctx, heat, 0, 60000, "http://server/clip/42/00:00:00/00:01:00")
	runner.processNext(ctx)

	got, _ := svc.Get(ctx, d.ID)
	if got.OutputPath != filepath.Join(dir, d.Filename) {
		t.Fatalf("OutputPath = %q", got.OutputPath)
	}
}

func TestRunner_WritesEDLSidecar(t *testing.T) {
	fetcher := &fakeFetcher{fn: serve("x", "clip.mp4")}
	svc, runner, _, dir := setup(t, fetcher, 25)
	ctx := context.Background()

	svc.Enqueue(ctx, heat, 120000, 180000, "http://server/clip/42/00:02:00/00:03:00?X-Plex-Token=secret")
	runner.processNext(ctx)

	edl, err := os.ReadFile(filepath.Join(dir, "clip.edl"))
	if err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	if !strings.Contains(string(edl), "00:02:00:00 00:03:00:00") {
		t.Errorf("sidecar = %s", edl)
	}
	if strings.Contains(string(edl), "secret") {
		t.Error("sidecar leaked the token")
	}
}

func TestRunner_FailureThenResume(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.fn = func(offset int64, w io.Writer) (*remote.ClipInfo, error) {
		if offset == 0 {
			io.WriteString(w, "cli")
			return nil, &remote.StatusError{Op: "download clip", StatusCode: 502, Body: "bad gateway"}
		}
		io.WriteString(w, "pdata")
		return &remote.ClipInfo{Filename: "clip.mp4", Resumed: true}, nil
	}
	svc, runner, _, dir := setup(t, fetcher, 0)
	ctx := context.Background()

	d, _ := svc.Enqueue(ctx, heat, 0, 60000, "http://server/clip")
	runner.processNext(ctx)

	failed, _ := svc.Get(ctx, d.ID)
	if failed.Status != StatusFailed || !strings.Contains(failed.Error, "HTTP 502") {
		t.Fatalf("download = %+v, want failed with HTTP 502", failed)
	}
	if failed.Bytes != 3 {
		t.Errorf("Bytes = %d, want 3", failed.Bytes)
	}

	if _, err := svc.Retry(ctx, d.ID); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	runner.processNext(ctx)

	done, _ := svc.Get(ctx, d.ID)
	if done.Status != StatusCompleted || done.Bytes != 8 {
		t.Fatalf("download = %+v", done)
	}
	if fetcher.offsets[1] != 3 {
		t.Errorf("resume offset = %d, want 3", fetcher.offsets[1])
	}
	data, _ := os.ReadFile(filepath.Join(dir, "clip.mp4"))
	if string(data) != "clipdata" {
		t.Errorf("clip = %q", data)
	}

	if _, err := svc.Retry(ctx, d.ID); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("Retry(completed) error = %v", err)
	}
}

type failStatusRepo struct {
	Repository
}

func (r failStatusRepo) UpdateStatus(ctx context.Context, id, status, errorMsg string) error {
	if status == StatusFailed {
		return errors.New("disk I/O error")
	}
	return r.Repository.UpdateStatus(ctx, id, status, errorMsg)
}

func TestRunner_LogsStatusWriteFailure(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(int64, io.Writer) (*remote.ClipInfo, error) {
		return nil, &remote.StatusError{Op: "download clip", StatusCode: 500, Body: "boom"}
	}}
	svc, _, repo, dir := setup(t, fetcher, 0)

	var buf bytes.Buffer
	runner := NewRunner(failStatusRepo{repo}, fetcher, RunnerOptions{
		Dir:          dir,
		PollInterval: time.Hour,
		Logger:       logging.NewLoggerTo(&buf, "debug", "text"),
	})
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, heat, 0, 60000, "http://server/clip"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	runner.processNext(ctx)

	if !strings.Contains(buf.String(), "failed to mark download failed") {
		t.Errorf("log = %q, want status write failure", buf.String())
	}
}

func TestTruncateStr(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"inside rune", "abécd", 3, "ab"},
		{"rune boundary", "abécd", 4, "abé"},
		{"wide rune", "日本", 4, "日"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateStr(tt.in, tt.max); got != tt.want {
				t.Errorf("truncateStr(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestRepository_Counts(t *testing.T) {
	fetcher := &fakeFetcher{fn: serve("x", "a.mp4")}
	svc, runner, repo, _ := setup(t, fetcher, 0)
	ctx := context.Background()

	svc.Enqueue(ctx, heat, 0, 1000, "http://server/clip/1")
	svc.Enqueue(ctx, heat, 0, 2000, "http://server/clip/2")
	runner.processNext(ctx)

	c, err := repo.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.Pending != 1 || c.Completed != 1 || c.Active() != 1 {
		t.Fatalf("counts = %+v", c)
	}

	list, _ := svc.List(ctx, 10)
	if len(list) != 2 || list[0].EndMs != 2000 {
		t.Fatalf("list = %+v, want newest first", list)
	}
}

func TestRepository_Config(t *testing.T) {
	_, _, repo, _ := setup(t, nil, 0)
	ctx := context.Background()

	if v, err := repo.GetConfig(ctx, "api_token"); err != nil || v != "" {
		t.Fatalf("GetConfig(missing) = %q, %v", v, err)
	}
	repo.SetConfig(ctx, "api_token", "a")
	repo.SetConfig(ctx, "api_token", "b")
	if v, _ := repo.GetConfig(ctx, "api_token"); v != "b" {
		t.Fatalf("GetConfig = %q, want b", v)
	}
}

func TestRunner_StartProcessesOnWake(t *testing.T) {
	fetcher := &fakeFetcher{fn: serve("x", "a.mp4")}
	svc, runner, _, _ := setup(t, fetcher, 0)
	svc.OnEnqueue(runner.Wake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	d, _ := svc.Enqueue(context.Background(), heat, 0, 1000, "http://server/clip")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := svc.Get(context.Background(), d.ID)
		if got.Status == StatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("download not completed after wake")
}

func TestRunner_PausedSkipsWork(t *testing.T) {
	fetcher := &fakeFetcher{fn: serve("x", "a.mp4")}
	svc, runner, _, _ := setup(t, fetcher, 0)
	svc.OnEnqueue(runner.Wake)
	runner.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()

	d, _ := svc.Enqueue(context.Background(), heat, 0, 1000, "http://server/clip")
	time.Sleep(100 * time.Millisecond)

	got, _ := svc.Get(context.Background(), d.ID)
	if got.Status != StatusPending {
		t.Fatalf("status = %s while paused", got.Status)
	}
	if !runner.IsPaused() {
		t.Fatal("IsPaused() = false")
	}

	cancel()
	<-done
}
