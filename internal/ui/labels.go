package ui

import (
	"fmt"

	"github.com/cutscene/cutscene-client/internal/editor"
	"github.com/cutscene/cutscene-client/internal/media"
	"github.com/cutscene/cutscene-client/internal/timecode"
)

func statusLabel(v editor.SessionsView) string {
	switch {
	case v.AuthRequired:
		return "Login required: " + v.AuthURL
	case v.Status == editor.StatusLoading:
		return "Loading sessions..."
	case v.Empty():
		return "No active sessions"
	case len(v.Sessions) > maxSessionSlots:
		return fmt.Sprintf("%d sessions (showing %d)", len(v.Sessions), maxSessionSlots)
	case len(v.Sessions) == 1:
		return "1 session"
	default:
		return fmt.Sprintf("%d sessions", len(v.Sessions))
	}
}

func sessionLabel(s media.Session) string {
	label := s.DisplayName() + " @ " + timecode.Format(s.ViewOffset)
	if s.User.Title != "" {
		label += " (" + s.User.Title + ")"
	}
	return label
}

// lastWindow is the window ending at the playback position.
func lastWindow(s media.Session, windowMs int) (start, end int, ok bool) {
	end = s.ViewOffset
	start = max(0, end-windowMs)
	if end-start <= editor.MinGapMs {
		return 0, 0, false
	}
	return start, end, true
}
