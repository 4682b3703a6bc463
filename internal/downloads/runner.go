package downloads

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"

	"github.com/cutscene/cutscene-client/internal/export"
	"github.com/cutscene/cutscene-client/internal/logging"
	"github.com/cutscene/cutscene-client/internal/metrics"
	"github.com/cutscene/cutscene-client/internal/remote"
)

const (
	defaultPollInterval = 5 * time.Second
	progressEvery       = 4 << 20
	maxErrorLen         = 512
)

// Fetcher streams a clip body. *remote.Client implements it.
type Fetcher interface {
	DownloadClip(ctx context.Context, clipURL string, offset int64, w io.Writer) (*remote.ClipInfo, error)
}

type RunnerOptions struct {
	Dir          string
	EDLFrameRate float64
	PollInterval time.Duration
	Clock        clockwork.Clock
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Runner executes pending downloads one at a time.
type Runner struct {
	repo         Repository
	fetcher      Fetcher
	dir          string
	edlFPS       float64
	pollInterval time.Duration
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      *metrics.Metrics
	wake         chan struct{}
	running      atomic.Bool
	paused       atomic.Bool
}

func NewRunner(repo Repository, fetcher Fetcher, opts RunnerOptions) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		repo:         repo,
		fetcher:      fetcher,
		dir:          opts.Dir,
		edlFPS:       opts.EDLFrameRate,
		pollInterval: opts.PollInterval,
		clock:        opts.Clock,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		wake:         make(chan struct{}, 1),
	}
}

// Start polls for pending downloads until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}
	defer r.running.Store(false)

	r.logger.Info("download runner started", "dir", logging.SanitizePath(r.dir))

	ticker := r.clock.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("download runner stopping")
			return
		case <-ticker.Chan():
		case <-r.wake:
		}
		if r.paused.Load() {
			continue
		}
		for ctx.Err() == nil && !r.paused.Load() && r.processNext(ctx) {
		}
	}
}

// Wake asks the runner to look for work now instead of at the next tick.
func (r *Runner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("download runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("download runner resumed")
	r.Wake()
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// processNext runs the oldest pending download and reports whether one ran.
func (r *Runner) processNext(ctx context.Context) bool {
	pending, err := r.repo.ListPending(ctx)
	if err != nil {
		r.logger.Error("failed to list pending downloads", "error", err)
		return false
	}
	if len(pending) == 0 {
		return false
	}

	r.run(ctx, pending[0])
	return true
}

func (r *Runner) run(ctx context.Context, d *Download) {
	log := logging.WithRatingKey(logging.WithDownloadID(r.logger, d.ID), d.RatingKey)
	log.Info("download started", "filename", d.Filename)

	if err := r.repo.UpdateStatus(ctx, d.ID, StatusRunning, ""); err != nil {
		log.Error("failed to mark download running", "error", err)
		return
	}

	total, name, err := r.fetch(ctx, d)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown: leave it queued so the partial file is resumed next start.
			if err := r.repo.UpdateStatus(context.Background(), d.ID, StatusPending, ""); err != nil {
				log.Error("failed to requeue interrupted download", "error", err)
			}
			log.Info("download interrupted", "bytes", total)
			return
		}
		if err := r.repo.UpdateBytes(ctx, d.ID, total); err != nil {
			log.Error("failed to record download bytes", "error", err)
		}
		r.fail(ctx, log, d, err)
		return
	}

	path, err := r.finish(d, name)
	if err != nil {
		r.fail(ctx, log, d, err)
		return
	}

	if err := r.repo.Complete(ctx, d.ID, path, filepath.Base(path), total); err != nil {
		log.Error("failed to record completed download", "error", err)
		return
	}
	r.metrics.ObserveDownload(StatusCompleted, total)
	log.Info("download completed", "path", logging.SanitizePath(path), "size", humanize.Bytes(uint64(total)))
}

func (r *Runner) fail(ctx context.Context, log *slog.Logger, d *Download, cause error) {
	r.metrics.ObserveDownload(StatusFailed, 0)
	log.Error("download failed", "error", cause)
	if err := r.repo.UpdateStatus(ctx, d.ID, StatusFailed, truncateStr(cause.Error(), maxErrorLen)); err != nil {
		log.Error("failed to mark download failed", "error", err)
	}
}

// fetch streams the clip into the download's part file and returns the
// bytes on disk and the filename to keep.
func (r *Runner) fetch(ctx context.Context, d *Download) (int64, string, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return 0, "", fmt.Errorf("create download directory: %w", err)
	}

	f, err := os.OpenFile(r.partPath(d), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, "", fmt.Errorf("open part file: %w", err)
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, "", fmt.Errorf("seek part file: %w", err)
	}

	pw := &progressWriter{file: f, written: offset, flushed: offset, report: func(n int64) {
		r.repo.UpdateBytes(ctx, d.ID, n)
	}}

	info, err := r.fetcher.DownloadClip(ctx, d.ClipURL, offset, pw)
	if err != nil {
		return pw.written, "", err
	}
	if err := f.Sync(); err != nil {
		return pw.written, "", fmt.Errorf("sync part file: %w", err)
	}

	name := export.CleanServerFilename(info.Filename)
	if name == "" {
		name = d.Filename
	}
	return pw.written, name, nil
}

// finish moves the part file to its final name and writes the EDL sidecar.
func (r *Runner) finish(d *Download, name string) (string, error) {
	path := export.UniquePath(r.dir, name)
	if err := os.Rename(r.partPath(d), path); err != nil {
		return "", fmt.Errorf("move clip into place: %w", err)
	}

	if r.edlFPS > 0 {
		edl := export.ClipEDL(d.Title, mediaPath(d.ClipURL), d.StartMs, d.EndMs, r.edlFPS)
		if err := os.WriteFile(export.SidecarPath(path), []byte(edl), 0644); err != nil {
			r.logger.Warn("failed to write EDL sidecar", "download_id", d.ID, "error", err)
		}
	}
	return path, nil
}

func (r *Runner) partPath(d *Download) string {
	return filepath.Join(r.dir, "."+d.ID+".part")
}

// mediaPath strips the query from a clip URL so tokens never reach disk.
func mediaPath(clipURL string) string {
	u, err := url.Parse(clipURL)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	return u.String()
}

// progressWriter counts bytes on disk and reports them every progressEvery.
type progressWriter struct {
	file    *os.File
	written int64
	flushed int64
	report  func(int64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.written += int64(n)
	if w.written-w.flushed >= progressEvery {
		w.flushed = w.written
		w.report(w.written)
	}
	return n, err
}

// Restart discards a partial file when the server ignored the resume range.
func (w *progressWriter) Restart() error {
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	w.written, w.flushed = 0, 0
	return nil
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

var _ remote.Restartable = (*progressWriter)(nil)
