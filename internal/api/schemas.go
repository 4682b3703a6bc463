package api

import (
	"time"

	"github.com/cutscene/cutscene-client/internal/downloads"
	"github.com/cutscene/cutscene-client/internal/editor"
	"github.com/cutscene/cutscene-client/internal/media"
	"github.com/cutscene/cutscene-client/internal/timecode"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	ClientID string `json:"client_id"`
}

type StatusResponse struct {
	State          string            `json:"state"`
	AuthRequired   bool              `json:"auth_required"`
	AuthURL        string            `json:"auth_url,omitempty"`
	SessionsCount  int               `json:"sessions_count"`
	Selected       *SessionResponse  `json:"selected,omitempty"`
	Range          *RangeResponse    `json:"range,omitempty"`
	PreviewURL     string            `json:"preview_url,omitempty"`
	PreviewPending bool              `json:"preview_pending"`
	Downloads      *downloads.Counts `json:"downloads,omitempty"`
	RunnerPaused   bool              `json:"runner_paused"`
	RunnerActive   bool              `json:"runner_active"`
}

type SessionResponse struct {
	RatingKey    string `json:"rating_key"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	DisplayName  string `json:"display_name"`
	User         string `json:"user,omitempty"`
	ViewOffsetMs int    `json:"view_offset_ms"`
	ViewOffset   string `json:"view_offset"`
	DurationMs   int    `json:"duration_ms"`
	HasThumb     bool   `json:"has_thumb"`
}

type SessionsResponse struct {
	Status       string            `json:"status"`
	AuthRequired bool              `json:"auth_required"`
	AuthURL      string            `json:"auth_url,omitempty"`
	Sessions     []SessionResponse `json:"sessions"`
}

type RangeResponse struct {
	StartMs int    `json:"start_ms"`
	EndMs   int    `json:"end_ms"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// RangeEditRequest sets one bound. Exactly one field must be present.
type RangeEditRequest struct {
	Ms    *int    `json:"ms,omitempty"`
	Clock *string `json:"clock,omitempty"`
	SubMs *int    `json:"sub_ms,omitempty"`
}

type PreviewResponse struct {
	URL     string `json:"url"`
	ClipURL string `json:"clip_url"`
}

type SelectResponse struct {
	Session SessionResponse `json:"session"`
	Range   RangeResponse   `json:"range"`
	Preview PreviewResponse `json:"preview"`
}

type DownloadResponse struct {
	ID         string `json:"id"`
	RatingKey  string `json:"rating_key"`
	Title      string `json:"title"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Bytes      int64  `json:"bytes"`
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type DownloadsResponse struct {
	Downloads []DownloadResponse `json:"downloads"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func SessionToResponse(s media.Session) SessionResponse {
	return SessionResponse{
		RatingKey:    s.RatingKey.String(),
		Type:         s.Type,
		Title:        s.Title,
		DisplayName:  s.DisplayName(),
		User:         s.User.Title,
		ViewOffsetMs: s.ViewOffset,
		ViewOffset:   timecode.Format(s.ViewOffset),
		DurationMs:   s.Duration,
		HasThumb:     s.Thumb != "",
	}
}

func RangeToResponse(r editor.Range) RangeResponse {
	return RangeResponse{
		StartMs: r.StartMs,
		EndMs:   r.EndMs,
		Start:   timecode.Format(r.StartMs),
		End:     timecode.Format(r.EndMs),
	}
}

func DownloadToResponse(d *downloads.Download) DownloadResponse {
	return DownloadResponse{
		ID:         d.ID,
		RatingKey:  d.RatingKey,
		Title:      d.Title,
		Start:      timecode.Format(d.StartMs),
		End:        timecode.Format(d.EndMs),
		Filename:   d.Filename,
		Status:     d.Status,
		Bytes:      d.Bytes,
		OutputPath: d.OutputPath,
		Error:      d.Error,
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  d.UpdatedAt.Format(time.RFC3339),
	}
}
