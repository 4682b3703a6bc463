package editor

import (
	"github.com/cutscene/cutscene-client/internal/media"
)

// SessionsView is what a presenter needs to draw the session picker.
type SessionsView struct {
	Status       Status
	AuthRequired bool
	AuthURL      string
	Sessions     []media.Session
	SelectedKey  media.ID
}

// Empty reports whether the list loaded and holds no sessions, in which
// case presenters show the "no active sessions" placeholder.
func (v SessionsView) Empty() bool {
	return v.Status == StatusReady && len(v.Sessions) == 0
}

// RangeView describes the current selection and its bounds.
type RangeView struct {
	Session    media.Session
	StartMs    int
	EndMs      int
	DurationMs int
	Start      string
	End        string
}

// PreviewView carries the derived links for the current range.
type PreviewView struct {
	RatingKey media.ID
	URL       string
	ClipURL   string
}

// Presenter renders editor snapshots. Calls never happen while the editor
// holds its lock, so a presenter may call back into the editor.
type Presenter interface {
	RenderSessions(SessionsView)
	RenderRange(RangeView)
	RenderPreview(PreviewView)
}

// MultiPresenter fans every render out to each presenter in order.
type MultiPresenter []Presenter

func (m MultiPresenter) RenderSessions(v SessionsView) {
	for _, p := range m {
		p.RenderSessions(v)
	}
}

func (m MultiPresenter) RenderRange(v RangeView) {
	for _, p := range m {
		p.RenderRange(v)
	}
}

func (m MultiPresenter) RenderPreview(v PreviewView) {
	for _, p := range m {
		p.RenderPreview(v)
	}
}

// PresenterFuncs adapts plain functions to Presenter. Nil fields are skipped.
type PresenterFuncs struct {
	Sessions func(SessionsView)
	Range    func(RangeView)
	Preview  func(PreviewView)
}

func (f PresenterFuncs) RenderSessions(v SessionsView) {
	if f.Sessions != nil {
		f.Sessions(v)
	}
}

func (f PresenterFuncs) RenderRange(v RangeView) {
	if f.Range != nil {
		f.Range(v)
	}
}

func (f PresenterFuncs) RenderPreview(v PreviewView) {
	if f.Preview != nil {
		f.Preview(v)
	}
}
