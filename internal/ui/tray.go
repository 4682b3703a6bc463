// Package ui holds the system tray presenter: a quick-pick menu of the
// active sessions with one-click clipping.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/cutscene/cutscene-client/internal/downloads"
	"github.com/cutscene/cutscene-client/internal/editor"
	"github.com/cutscene/cutscene-client/internal/media"
)

// maxSessionSlots caps the session entries; systray items cannot be
// removed, so the slots are created up front and hidden when unused.
const maxSessionSlots = 10

type Tray struct {
	editor    *editor.Editor
	downloads *downloads.Service
	runner    *downloads.Runner
	windowMs  int
	logger    *slog.Logger

	statusItem   *systray.MenuItem
	rangeItem    *systray.MenuItem
	slots        []*systray.MenuItem
	clipItem     *systray.MenuItem
	downloadItem *systray.MenuItem
	pauseItem    *systray.MenuItem

	mu       sync.Mutex
	ready    bool
	sessions editor.SessionsView
	rng      *editor.RangeView
	slotKeys []media.ID

	onQuit func()
}

type TrayConfig struct {
	Editor    *editor.Editor
	Downloads *downloads.Service
	Runner    *downloads.Runner
	// ClipWindowMs is the length of "Clip last minute".
	ClipWindowMs int
	Logger       *slog.Logger
	OnQuit       func()
}

func NewTray(cfg TrayConfig) *Tray {
	if cfg.ClipWindowMs <= editor.MinGapMs {
		cfg.ClipWindowMs = 60000
	}
	return &Tray{
		editor:    cfg.Editor,
		downloads: cfg.Downloads,
		runner:    cfg.Runner,
		windowMs:  cfg.ClipWindowMs,
		logger:    cfg.Logger,
		sessions:  editor.SessionsView{Status: editor.StatusLoading},
		onQuit:    cfg.OnQuit,
	}
}

// Run blocks on the platform event loop until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("CutScene")
	systray.SetTooltip("CutScene clip editor")

	t.statusItem = systray.AddMenuItem("Loading sessions...", "Session list status")
	t.statusItem.Disable()

	t.rangeItem = systray.AddMenuItem("No selection", "Current clip range")
	t.rangeItem.Disable()

	systray.AddSeparator()

	slots := make([]*systray.MenuItem, maxSessionSlots)
	for i := range slots {
		slots[i] = systray.AddMenuItem("", "Select this session")
		slots[i].Hide()
		go t.watchSlot(i, slots[i])
	}

	systray.AddSeparator()

	t.clipItem = systray.AddMenuItem("Clip last minute", "Download the minute before the playback position")
	t.downloadItem = systray.AddMenuItem("Download selection", "Download the current range")
	t.pauseItem = systray.AddMenuItem("Pause downloads", "Pause the download queue")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit CutScene")

	t.mu.Lock()
	t.slots = slots
	t.ready = true
	t.mu.Unlock()
	t.refresh()

	go func() {
		for {
			select {
			case <-t.clipItem.ClickedCh:
				t.clipLastMinute()
			case <-t.downloadItem.ClickedCh:
				t.downloadSelection()
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) watchSlot(i int, item *systray.MenuItem) {
	for range item.ClickedCh {
		t.mu.Lock()
		var key media.ID
		if i < len(t.slotKeys) {
			key = t.slotKeys[i]
		}
		t.mu.Unlock()

		if key == "" {
			continue
		}
		if err := t.editor.Select(key); err != nil {
			t.logger.Warn("tray selection failed", "rating_key", key, "error", err)
		}
	}
}

// RenderSessions implements editor.Presenter.
func (t *Tray) RenderSessions(v editor.SessionsView) {
	t.mu.Lock()
	t.sessions = v
	t.mu.Unlock()
	t.refresh()
}

// RenderRange implements editor.Presenter.
func (t *Tray) RenderRange(v editor.RangeView) {
	t.mu.Lock()
	t.rng = &v
	t.mu.Unlock()
	t.refresh()
}

// RenderPreview implements editor.Presenter. Playback is handled by the
// player sink, so the tray has nothing to draw.
func (t *Tray) RenderPreview(editor.PreviewView) {}

func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return
	}

	t.statusItem.SetTitle(statusLabel(t.sessions))

	t.slotKeys = t.slotKeys[:0]
	for i, slot := range t.slots {
		if i >= len(t.sessions.Sessions) {
			slot.Hide()
			continue
		}
		s := t.sessions.Sessions[i]
		t.slotKeys = append(t.slotKeys, s.RatingKey)
		slot.SetTitle(sessionLabel(s))
		if s.RatingKey == t.sessions.SelectedKey {
			slot.Check()
		} else {
			slot.Uncheck()
		}
		slot.Show()
	}

	if t.rng != nil {
		t.rangeItem.SetTitle(fmt.Sprintf("%s: %s - %s", t.rng.Session.DisplayName(), t.rng.Start, t.rng.End))
		t.clipItem.Enable()
		t.downloadItem.Enable()
	} else {
		t.rangeItem.SetTitle("No selection")
		t.clipItem.Disable()
		t.downloadItem.Disable()
	}
}

func (t *Tray) clipLastMinute() {
	rng, ok := t.currentRange()
	if !ok {
		return
	}
	start, end, ok := lastWindow(rng.Session, t.windowMs)
	if !ok || !t.editor.SetRange(start, end) {
		t.logger.Warn("nothing to clip before playback position", "rating_key", rng.Session.RatingKey)
		return
	}
	t.downloadSelection()
}

func (t *Tray) downloadSelection() {
	clip, err := t.editor.Clip()
	if err != nil {
		t.logger.Warn("tray download without selection", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d, err := t.downloads.Enqueue(ctx, clip.Session, clip.StartMs, clip.EndMs, clip.URL)
	if err != nil {
		t.logger.Error("failed to queue clip", "error", err)
		return
	}
	t.logger.Info("clip queued from tray", "download_id", d.ID, "filename", d.Filename)
}

func (t *Tray) currentRange() (editor.RangeView, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rng == nil {
		return editor.RangeView{}, false
	}
	return *t.rng, true
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause downloads")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume downloads")
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}
