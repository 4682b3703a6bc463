package downloads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cutscene/cutscene-client/internal/export"
	"github.com/cutscene/cutscene-client/internal/media"
)

var (
	ErrNotFound     = errors.New("download not found")
	ErrNotRetryable = errors.New("only failed downloads can be retried")
	ErrInvalidClip  = errors.New("invalid clip request")
)

// Service is the queue front end used by presenters and the control API.
type Service struct {
	repo   Repository
	logger *slog.Logger
	notify func()
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// OnEnqueue registers fn to run after a download is queued, typically the
// runner's Wake.
func (s *Service) OnEnqueue(fn func()) {
	s.notify = fn
}

// Enqueue records a pending download of [startMs, endMs] of sess.
func (s *Service) Enqueue(ctx context.Context, sess media.Session, startMs, endMs int, clipURL string) (*Download, error) {
	if clipURL == "" {
		return nil, fmt.Errorf("%w: missing clip url", ErrInvalidClip)
	}
	if startMs < 0 || endMs <= startMs {
		return nil, fmt.Errorf("%w: range %d-%d", ErrInvalidClip, startMs, endMs)
	}

	now := time.Now()
	d := &Download{
		ID:        NewID(),
		RatingKey: sess.RatingKey.String(),
		Title:     sess.DisplayName(),
		StartMs:   startMs,
		EndMs:     endMs,
		ClipURL:   clipURL,
		Filename:  export.ClipFilename(sess, startMs, endMs),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create download: %w", err)
	}

	s.logger.Info("download queued",
		"download_id", d.ID,
		"rating_key", d.RatingKey,
		"filename", d.Filename,
	)
	if s.notify != nil {
		s.notify()
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Download, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrNotFound
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]*Download, error) {
	return s.repo.List(ctx, limit)
}

func (s *Service) Counts(ctx context.Context) (Counts, error) {
	return s.repo.Counts(ctx)
}

// Retry puts a failed download back in the queue. Bytes already on disk
// are reused when the server honors range requests.
func (s *Service) Retry(ctx context.Context, id string) (*Download, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusFailed {
		return nil, ErrNotRetryable
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusPending, ""); err != nil {
		return nil, fmt.Errorf("requeue download: %w", err)
	}
	d.Status = StatusPending
	d.Error = ""

	s.logger.Info("download requeued", "download_id", id)
	if s.notify != nil {
		s.notify()
	}
	return d, nil
}
