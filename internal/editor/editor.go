// Package editor holds the clip editor state: the session list, the
// selected session's start/end range and the preview links derived from it.
//
// All mutations are serialized by one mutex. Presenters are notified after
// the lock is released. The preview link is computed synchronously when a
// session is selected and debounced for every later range edit.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cutscene/cutscene-client/internal/debounce"
	"github.com/cutscene/cutscene-client/internal/logging"
	"github.com/cutscene/cutscene-client/internal/media"
	"github.com/cutscene/cutscene-client/internal/metrics"
	"github.com/cutscene/cutscene-client/internal/remote"
	"github.com/cutscene/cutscene-client/internal/timecode"
)

// MinGapMs is the smallest allowed distance between start and end.
const MinGapMs = 500

var (
	ErrNoSelection    = errors.New("no session selected")
	ErrUnknownSession = errors.New("unknown session")
)

// Status is the session list state.
type Status string

const (
	StatusLoading      Status = "loading"
	StatusReady        Status = "ready"
	StatusAuthRequired Status = "auth_required"
)

// Remote is the subset of the server client the editor uses.
type Remote interface {
	Sessions(ctx context.Context) ([]media.Session, error)
	AuthURL() string
	PreviewURL(s media.Session, startMs, endMs int) string
	ClipURL(s media.Session, startMs, endMs int) string
}

// Range is a start/end pair in milliseconds.
type Range struct {
	StartMs int `json:"start_ms"`
	EndMs   int `json:"end_ms"`
}

// Options tune the editor. Use DefaultOptions as the base.
type Options struct {
	Clock            clockwork.Clock
	DebounceInterval time.Duration
	SeedWindowMs     int
	ClampSeed        bool
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
}

func DefaultOptions() Options {
	return Options{
		Clock:            clockwork.NewRealClock(),
		DebounceInterval: 500 * time.Millisecond,
		SeedWindowMs:     60000,
		ClampSeed:        true,
		Logger:           logging.Discard(),
	}
}

// State is a point-in-time copy of the editor.
type State struct {
	Status         Status          `json:"status"`
	AuthRequired   bool            `json:"auth_required"`
	AuthURL        string          `json:"auth_url,omitempty"`
	Sessions       []media.Session `json:"sessions"`
	Selected       *media.Session  `json:"selected,omitempty"`
	Range          *Range          `json:"range,omitempty"`
	PreviewURL     string          `json:"preview_url,omitempty"`
	ClipURL        string          `json:"clip_url,omitempty"`
	PreviewPending bool            `json:"preview_pending"`
}

// ClipRequest is everything needed to download the selected range.
type ClipRequest struct {
	Session media.Session
	StartMs int
	EndMs   int
	URL     string
}

// Editor is the single clip editor instance.
type Editor struct {
	remote    Remote
	debouncer *debounce.Debouncer
	seedMs    int
	clampSeed bool
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu         sync.Mutex
	presenters MultiPresenter
	loadCalled bool
	status     Status
	authURL    string
	sessions   []media.Session
	selected   *media.Session
	rng        Range
	preview    PreviewView
	generation uint64
}

func New(r Remote, opts Options) *Editor {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.SeedWindowMs <= MinGapMs {
		opts.SeedWindowMs = 60000
	}
	return &Editor{
		remote:    r,
		debouncer: debounce.New(opts.Clock, opts.DebounceInterval),
		seedMs:    opts.SeedWindowMs,
		clampSeed: opts.ClampSeed,
		logger:    logging.WithComponent(opts.Logger, "editor"),
		metrics:   opts.Metrics,
		status:    StatusLoading,
	}
}

// Attach adds a presenter and immediately renders the current state to it.
func (e *Editor) Attach(p Presenter) {
	e.mu.Lock()
	e.presenters = append(e.presenters, p)
	sv := e.sessionsViewLocked()
	rv, hasRange := e.rangeViewLocked()
	pv := e.preview
	e.mu.Unlock()

	p.RenderSessions(sv)
	if hasRange {
		p.RenderRange(rv)
		if pv.URL != "" {
			p.RenderPreview(pv)
		}
	}
}

// Load fetches the session list once. Later calls do nothing. A redirect
// switches the editor to the auth-required state; any other failure is
// logged and the list stays loading.
func (e *Editor) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.loadCalled {
		e.mu.Unlock()
		return nil
	}
	e.loadCalled = true
	e.mu.Unlock()

	sessions, err := e.remote.Sessions(ctx)

	e.mu.Lock()
	switch {
	case errors.Is(err, remote.ErrAuthRequired):
		e.status = StatusAuthRequired
		e.authURL = e.remote.AuthURL()
		e.metrics.ObserveSessionFetch(metrics.FetchAuthRequired)
	case err != nil:
		e.metrics.ObserveSessionFetch(metrics.FetchFailed)
		e.mu.Unlock()
		var statusErr *remote.StatusError
		if errors.As(err, &statusErr) {
			e.logger.Error("session list fetch failed",
				"status", statusErr.StatusCode,
				"body", statusErr.Body,
			)
		} else {
			e.logger.Error("session list fetch failed", "error", err)
		}
		return fmt.Errorf("load sessions: %w", err)
	default:
		e.status = StatusReady
		e.sessions = sessions
		e.metrics.ObserveSessionFetch(metrics.FetchOK)
	}
	sv := e.sessionsViewLocked()
	p := e.presenters
	e.mu.Unlock()

	if sv.AuthRequired {
		e.logger.Info("login required", "auth_url", sv.AuthURL)
	} else {
		e.logger.Info("sessions loaded", "count", len(sv.Sessions))
	}
	p.RenderSessions(sv)
	return nil
}

// Select makes the session with ratingKey current, seeds its range from the
// playback position and publishes the first preview synchronously.
func (e *Editor) Select(ratingKey media.ID) error {
	e.mu.Lock()
	idx := slices.IndexFunc(e.sessions, func(s media.Session) bool { return s.RatingKey == ratingKey })
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, ratingKey)
	}

	e.debouncer.Cancel()
	e.generation++
	s := e.sessions[idx]
	e.selected = &s
	e.rng = seedRange(s, e.seedMs, e.clampSeed)
	e.preview = e.buildPreviewLocked()
	e.metrics.IncPreviews()

	sv := e.sessionsViewLocked()
	rv, _ := e.rangeViewLocked()
	pv := e.preview
	p := e.presenters
	e.mu.Unlock()

	logging.WithRatingKey(e.logger, ratingKey.String()).Info("session selected",
		"start", rv.Start,
		"end", rv.End,
	)
	p.RenderSessions(sv)
	p.RenderRange(rv)
	p.RenderPreview(pv)
	return nil
}

func seedRange(s media.Session, window int, clamp bool) Range {
	r := Range{StartMs: s.ViewOffset, EndMs: s.ViewOffset + window}
	if !clamp || s.Duration <= MinGapMs || r.EndMs <= s.Duration {
		return r
	}
	r.EndMs = s.Duration
	if r.EndMs-r.StartMs < MinGapMs {
		r.StartMs = max(0, r.EndMs-window)
	}
	return r
}

// SetStart moves the start bound. It is applied only when v is not negative,
// stays more than MinGapMs before the end and, for a known duration, is not
// past it.
func (e *Editor) SetStart(v int) bool {
	return e.editStart(func(int) int { return v })
}

// SetEnd moves the end bound. It is applied only when v is more than
// MinGapMs after the start and, for a known duration, not past it.
func (e *Editor) SetEnd(v int) bool {
	return e.editEnd(func(int) int { return v })
}

// editStart derives the new start from the current one and applies it under
// a single hold of the lock.
func (e *Editor) editStart(next func(cur int) int) bool {
	return e.mutate(func() bool {
		v := next(e.rng.StartMs)
		if v < 0 || v >= e.rng.EndMs-MinGapMs {
			return false
		}
		if d := e.selected.Duration; d > 0 && v > d {
			return false
		}
		e.rng.StartMs = v
		return true
	})
}

func (e *Editor) editEnd(next func(cur int) int) bool {
	return e.mutate(func() bool {
		v := next(e.rng.EndMs)
		if v <= e.rng.StartMs+MinGapMs {
			return false
		}
		if d := e.selected.Duration; d > 0 && v > d {
			return false
		}
		e.rng.EndMs = v
		return true
	})
}

// SetRange replaces both bounds at once under the same rules as SetStart
// and SetEnd. Either both move or neither does.
func (e *Editor) SetRange(startMs, endMs int) bool {
	return e.mutate(func() bool {
		if startMs < 0 || endMs <= startMs+MinGapMs {
			return false
		}
		if d := e.selected.Duration; d > 0 && endMs > d {
			return false
		}
		e.rng = Range{StartMs: startMs, EndMs: endMs}
		return true
	})
}

// SetStartMillis replaces the sub-second part of the start bound.
func (e *Editor) SetStartMillis(sub int) bool {
	if sub < 0 || sub > 999 {
		e.metrics.IncRangeRejects()
		return false
	}
	return e.editStart(func(cur int) int { return timecode.WithSubMillis(cur, sub) })
}

// SetEndMillis replaces the sub-second part of the end bound.
func (e *Editor) SetEndMillis(sub int) bool {
	if sub < 0 || sub > 999 {
		e.metrics.IncRangeRejects()
		return false
	}
	return e.editEnd(func(cur int) int { return timecode.WithSubMillis(cur, sub) })
}

// SetStartClock sets the start bound from HH:MM:SS[.mmm]. Without a fraction
// the current sub-second part is kept.
func (e *Editor) SetStartClock(text string) (bool, error) {
	if !e.hasSelection() {
		return false, ErrNoSelection
	}
	next, err := clockValue(text)
	if err != nil {
		return false, err
	}
	return e.editStart(next), nil
}

// SetEndClock is SetStartClock for the end bound.
func (e *Editor) SetEndClock(text string) (bool, error) {
	if !e.hasSelection() {
		return false, ErrNoSelection
	}
	next, err := clockValue(text)
	if err != nil {
		return false, err
	}
	return e.editEnd(next), nil
}

func clockValue(text string) (func(cur int) int, error) {
	ms, hasFraction, err := timecode.ParseClock(text)
	if err != nil {
		return nil, err
	}
	return func(cur int) int {
		if hasFraction {
			return ms
		}
		return ms + timecode.SubMillis(cur)
	}, nil
}

// NudgeStart shifts the start bound by delta milliseconds.
func (e *Editor) NudgeStart(delta int) bool {
	return e.editStart(func(cur int) int { return cur + delta })
}

// NudgeEnd shifts the end bound by delta milliseconds.
func (e *Editor) NudgeEnd(delta int) bool {
	return e.editEnd(func(cur int) int { return cur + delta })
}

// mutate applies fn to the range under the lock. When fn accepts the edit
// the new range is rendered and a preview refresh is scheduled.
func (e *Editor) mutate(fn func() bool) bool {
	e.mu.Lock()
	if e.selected == nil {
		e.mu.Unlock()
		return false
	}
	if !fn() {
		e.mu.Unlock()
		e.metrics.IncRangeRejects()
		return false
	}

	gen := e.generation
	e.debouncer.Trigger(func() { e.publishPreview(gen) })
	rv, _ := e.rangeViewLocked()
	p := e.presenters
	e.mu.Unlock()

	p.RenderRange(rv)
	return true
}

func (e *Editor) publishPreview(gen uint64) {
	e.mu.Lock()
	if gen != e.generation || e.selected == nil {
		e.mu.Unlock()
		return
	}
	e.preview = e.buildPreviewLocked()
	pv := e.preview
	p := e.presenters
	e.mu.Unlock()

	e.metrics.IncPreviews()
	e.logger.Debug("preview updated", "url", pv.URL)
	p.RenderPreview(pv)
}

func (e *Editor) buildPreviewLocked() PreviewView {
	s := *e.selected
	return PreviewView{
		RatingKey: s.RatingKey,
		URL:       e.remote.PreviewURL(s, e.rng.StartMs, e.rng.EndMs),
		ClipURL:   e.remote.ClipURL(s, e.rng.StartMs, e.rng.EndMs),
	}
}

func (e *Editor) hasSelection() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected != nil
}

// Preview returns the last published preview links.
func (e *Editor) Preview() (PreviewView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selected == nil {
		return PreviewView{}, ErrNoSelection
	}
	return e.preview, nil
}

// Clip builds the download request for the current range. The link always
// reflects the latest bounds, even while a preview refresh is pending.
func (e *Editor) Clip() (ClipRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selected == nil {
		return ClipRequest{}, ErrNoSelection
	}
	s := *e.selected
	return ClipRequest{
		Session: s,
		StartMs: e.rng.StartMs,
		EndMs:   e.rng.EndMs,
		URL:     e.remote.ClipURL(s, e.rng.StartMs, e.rng.EndMs),
	}, nil
}

// Session looks up a loaded session by rating key.
func (e *Editor) Session(ratingKey media.ID) (media.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.sessions {
		if s.RatingKey == ratingKey {
			return s, true
		}
	}
	return media.Session{}, false
}

// State returns a copy of the editor state.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		Status:         e.status,
		AuthRequired:   e.status == StatusAuthRequired,
		AuthURL:        e.authURL,
		Sessions:       slices.Clone(e.sessions),
		PreviewPending: e.debouncer.Pending(),
	}
	if st.Sessions == nil {
		st.Sessions = []media.Session{}
	}
	if e.selected != nil {
		s := *e.selected
		r := e.rng
		st.Selected = &s
		st.Range = &r
		st.PreviewURL = e.preview.URL
		st.ClipURL = e.preview.ClipURL
	}
	return st
}

func (e *Editor) sessionsViewLocked() SessionsView {
	v := SessionsView{
		Status:       e.status,
		AuthRequired: e.status == StatusAuthRequired,
		AuthURL:      e.authURL,
		Sessions:     slices.Clone(e.sessions),
	}
	if e.selected != nil {
		v.SelectedKey = e.selected.RatingKey
	}
	return v
}

func (e *Editor) rangeViewLocked() (RangeView, bool) {
	if e.selected == nil {
		return RangeView{}, false
	}
	return RangeView{
		Session:    *e.selected,
		StartMs:    e.rng.StartMs,
		EndMs:      e.rng.EndMs,
		DurationMs: e.selected.Duration,
		Start:      timecode.Format(e.rng.StartMs),
		End:        timecode.Format(e.rng.EndMs),
	}, true
}
