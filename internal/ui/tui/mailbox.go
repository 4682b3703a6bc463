package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cutscene/cutscene-client/internal/editor"
)

// updateMsg carries the latest editor snapshots. Nil fields did not change.
type updateMsg struct {
	sessions *editor.SessionsView
	rng      *editor.RangeView
	preview  *editor.PreviewView
}

// mailbox is the editor presenter for the terminal UI. Renders never block:
// each kind keeps only its newest snapshot until the program drains it.
type mailbox struct {
	mu      sync.Mutex
	pending updateMsg
	notify  chan struct{}
	done    chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (b *mailbox) RenderSessions(v editor.SessionsView) {
	b.put(func(u *updateMsg) { u.sessions = &v })
}

func (b *mailbox) RenderRange(v editor.RangeView) {
	b.put(func(u *updateMsg) { u.rng = &v })
}

func (b *mailbox) RenderPreview(v editor.PreviewView) {
	b.put(func(u *updateMsg) { u.preview = &v })
}

func (b *mailbox) put(fn func(*updateMsg)) {
	b.mu.Lock()
	fn(&b.pending)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// take returns and clears everything queued so far.
func (b *mailbox) take() updateMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.pending
	b.pending = updateMsg{}
	return u
}

func (b *mailbox) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.notify:
			return b.take()
		case <-b.done:
			return nil
		}
	}
}

func (b *mailbox) close() {
	close(b.done)
}
