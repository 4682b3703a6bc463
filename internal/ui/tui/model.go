// Package tui is the terminal presenter: a session list, the start/end
// editor with a slider bar, and keys to play or download the range.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cutscene/cutscene-client/internal/downloads"
	"github.com/cutscene/cutscene-client/internal/editor"
	"github.com/cutscene/cutscene-client/internal/logging"
	"github.com/cutscene/cutscene-client/internal/media"
	"github.com/cutscene/cutscene-client/internal/timecode"
)

const (
	stepMs     = 1000
	bigStepMs  = 10000
	fineStepMs = 100
)

// Enqueuer queues clip downloads.
type Enqueuer interface {
	Enqueue(ctx context.Context, sess media.Session, startMs, endMs int, clipURL string) (*downloads.Download, error)
}

type Config struct {
	Editor    *editor.Editor
	Downloads Enqueuer
	// Play replays a preview URL on demand. Optional.
	Play   func(url string) error
	Logger *slog.Logger
}

type mode int

const (
	modeSessions mode = iota
	modeRange
	modeClock
	modeMillis
)

type bound int

const (
	boundStart bound = iota
	boundEnd
)

type downloadMsg struct {
	download *downloads.Download
	err      error
}

type Model struct {
	ed        *editor.Editor
	downloads Enqueuer
	play      func(string) error
	logger    *slog.Logger
	box       *mailbox

	keys    keyMap
	help    help.Model
	list    list.Model
	spinner spinner.Model
	input   textinput.Model

	mode     mode
	focus    bound
	sessions editor.SessionsView
	rng      *editor.RangeView
	preview  editor.PreviewView
	status   string
	width    int
}

func New(cfg Config) *Model {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	l := list.New(nil, list.NewDefaultDelegate(), 80, 20)
	l.Title = "Now playing"
	l.SetShowHelp(false)
	l.SetStatusBarItemName("session", "sessions")
	l.Styles.Title = titleStyle

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(accentColor)

	ti := textinput.New()
	ti.CharLimit = 16
	ti.Width = 16

	return &Model{
		ed:        cfg.Editor,
		downloads: cfg.Downloads,
		play:      cfg.Play,
		logger:    logging.WithComponent(cfg.Logger, "tui"),
		box:       newMailbox(),
		keys:      defaultKeyMap(),
		help:      help.New(),
		list:      l,
		spinner:   sp,
		input:     ti,
		sessions:  editor.SessionsView{Status: editor.StatusLoading},
		width:     80,
	}
}

// Presenter returns the editor presenter feeding this model.
func (m *Model) Presenter() editor.Presenter {
	return m.box
}

// Run attaches the model to the editor and blocks until the user quits or
// ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	m := New(cfg)
	cfg.Editor.Attach(m.box)
	defer m.box.close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.box.wait(), m.spinner.Tick)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.list.SetSize(msg.Width, max(msg.Height-4, 5))
		m.help.Width = msg.Width
		return m, nil

	case updateMsg:
		m.apply(msg)
		return m, m.box.wait()

	case downloadMsg:
		if msg.err != nil {
			m.status = "Download failed: " + msg.err.Error()
		} else {
			m.status = "Queued " + msg.download.Filename
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.mode == modeSessions {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(u updateMsg) {
	if u.sessions != nil {
		m.sessions = *u.sessions
		items := make([]list.Item, 0, len(m.sessions.Sessions))
		for _, s := range m.sessions.Sessions {
			items = append(items, sessionItem{s})
		}
		m.list.SetItems(items)
	}
	if u.rng != nil {
		r := *u.rng
		m.rng = &r
	}
	if u.preview != nil {
		m.preview = *u.preview
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.mode {
	case modeClock, modeMillis:
		return m.handleInputKey(msg)
	case modeRange:
		return m.handleRangeKey(msg)
	}

	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Select):
		item, ok := m.list.SelectedItem().(sessionItem)
		if !ok {
			return m, nil
		}
		if err := m.ed.Select(item.session.RatingKey); err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.mode = modeRange
		m.focus = boundStart
		m.status = ""
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleRangeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Back):
		m.mode = modeSessions
		m.status = ""
	case key.Matches(msg, m.keys.SwitchBound):
		m.focus = 1 - m.focus
	case key.Matches(msg, m.keys.Earlier):
		m.nudge(-stepMs)
	case key.Matches(msg, m.keys.Later):
		m.nudge(stepMs)
	case key.Matches(msg, m.keys.EarlierBig):
		m.nudge(-bigStepMs)
	case key.Matches(msg, m.keys.LaterBig):
		m.nudge(bigStepMs)
	case key.Matches(msg, m.keys.EarlierFine):
		m.nudge(-fineStepMs)
	case key.Matches(msg, m.keys.LaterFine):
		m.nudge(fineStepMs)
	case key.Matches(msg, m.keys.Clock):
		m.startInput(modeClock)
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Millis):
		m.startInput(modeMillis)
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Play):
		m.replay()
	case key.Matches(msg, m.keys.Download):
		return m, m.download()
	}
	return m, nil
}

func (m *Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.input.Blur()
		m.mode = modeRange
		return m, nil
	case tea.KeyEnter:
		m.commitInput()
		m.input.Blur()
		m.mode = modeRange
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) startInput(md mode) {
	m.mode = md
	m.input.Reset()
	if md == modeClock {
		m.input.Placeholder = "HH:MM:SS.mmm"
		if m.rng != nil {
			m.input.SetValue(m.boundText())
			m.input.CursorEnd()
		}
	} else {
		m.input.Placeholder = "0-999"
	}
	m.input.Focus()
}

func (m *Model) commitInput() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}

	var (
		applied bool
		err     error
	)
	if m.mode == modeClock {
		if m.focus == boundStart {
			applied, err = m.ed.SetStartClock(text)
		} else {
			applied, err = m.ed.SetEndClock(text)
		}
	} else {
		sub, convErr := strconv.Atoi(text)
		if convErr != nil {
			err = timecode.ErrInvalidTimecode
		} else if m.focus == boundStart {
			applied = m.ed.SetStartMillis(sub)
		} else {
			applied = m.ed.SetEndMillis(sub)
		}
	}

	// Rejected edits leave the range as it was; the next render snaps the
	// control back.
	m.status = ""
	if err != nil || !applied {
		m.logger.Debug("range edit rejected", "input", text, "error", err)
	}
}

func (m *Model) nudge(delta int) {
	var ok bool
	if m.focus == boundStart {
		ok = m.ed.NudgeStart(delta)
	} else {
		ok = m.ed.NudgeEnd(delta)
	}
	m.status = ""
	if !ok {
		m.logger.Debug("range nudge rejected", "delta_ms", delta)
	}
}

func (m *Model) replay() {
	if m.play == nil || m.preview.URL == "" {
		return
	}
	if err := m.play(m.preview.URL); err != nil {
		m.logger.Warn("preview playback failed", "error", err)
		m.status = "Player failed: " + err.Error()
	}
}

func (m *Model) download() tea.Cmd {
	clip, err := m.ed.Clip()
	if err != nil {
		m.status = err.Error()
		return nil
	}
	if m.downloads == nil {
		m.status = "Downloads unavailable"
		return nil
	}
	m.status = "Queueing download..."
	enq := m.downloads
	return func() tea.Msg {
		d, err := enq.Enqueue(context.Background(), clip.Session, clip.StartMs, clip.EndMs, clip.URL)
		return downloadMsg{download: d, err: err}
	}
}

func (m *Model) boundText() string {
	if m.focus == boundStart {
		return m.rng.Start
	}
	return m.rng.End
}

type sessionItem struct {
	session media.Session
}

func (i sessionItem) Title() string {
	return i.session.DisplayName()
}

func (i sessionItem) Description() string {
	s := i.session
	pos := timecode.Format(s.ViewOffset)
	if s.Duration > 0 {
		pos += " / " + timecode.Format(s.Duration)
	}
	if s.User.Title != "" {
		return s.User.Title + " · " + pos
	}
	return pos
}

func (i sessionItem) FilterValue() string {
	return i.session.DisplayName()
}
