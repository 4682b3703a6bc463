package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cutscene/cutscene-client/internal/config"
	"github.com/cutscene/cutscene-client/internal/downloads"
	"github.com/cutscene/cutscene-client/internal/editor"
	"github.com/cutscene/cutscene-client/internal/media"
	"github.com/cutscene/cutscene-client/internal/metrics"
	"github.com/cutscene/cutscene-client/internal/remote"
	"github.com/cutscene/cutscene-client/internal/timecode"
)

const maxRangeBody = 4096

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSMiddleware())

	r.Get("/health", healthHandler(cfg))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler(queueGauge(cfg)))
	}

	r.Group(func(r chi.Router) {
		r.Use(metrics.RequestMiddleware(cfg.Metrics))
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/sessions", listSessionsHandler(cfg))
		r.Post("/sessions/{ratingKey}/select", selectSessionHandler(cfg))
		r.Get("/thumb/{ratingKey}", thumbHandler(cfg))
		r.Put("/range/start", editRangeHandler(cfg, startBound))
		r.Put("/range/end", editRangeHandler(cfg, endBound))
		r.Get("/preview", previewHandler(cfg))
		r.Post("/downloads", createDownloadHandler(cfg))
		r.Get("/downloads", listDownloadsHandler(cfg))
		r.Post("/downloads/pause", pauseDownloadsHandler(cfg, true))
		r.Post("/downloads/resume", pauseDownloadsHandler(cfg, false))
		r.Get("/downloads/{id}", getDownloadHandler(cfg))
		r.Post("/downloads/{id}/retry", retryDownloadHandler(cfg))
		r.Get("/downloads/{id}/file", downloadFileHandler(cfg))
	})

	return r
}

func queueGauge(cfg ServerConfig) func() {
	return func() {
		if cfg.Downloads == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if counts, err := cfg.Downloads.Counts(ctx); err == nil {
			cfg.Metrics.SetQueuedDownloads(counts.Active())
		}
	}
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  config.Version,
			UptimeS:  uptime,
			ClientID: cfg.ClientID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := cfg.Editor.State()

		resp := StatusResponse{
			State:          string(st.Status),
			AuthRequired:   st.AuthRequired,
			AuthURL:        st.AuthURL,
			SessionsCount:  len(st.Sessions),
			PreviewURL:     st.PreviewURL,
			PreviewPending: st.PreviewPending,
		}
		if st.Selected != nil {
			s := SessionToResponse(*st.Selected)
			resp.Selected = &s
		}
		if st.Range != nil {
			rng := RangeToResponse(*st.Range)
			resp.Range = &rng
		}
		if cfg.Downloads != nil {
			if counts, err := cfg.Downloads.Counts(r.Context()); err == nil {
				resp.Downloads = &counts
			}
		}
		if cfg.Runner != nil {
			resp.RunnerPaused = cfg.Runner.IsPaused()
			resp.RunnerActive = cfg.Runner.IsRunning()
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listSessionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := cfg.Editor.State()

		resp := SessionsResponse{
			Status:       string(st.Status),
			AuthRequired: st.AuthRequired,
			AuthURL:      st.AuthURL,
			Sessions:     make([]SessionResponse, 0, len(st.Sessions)),
		}
		for _, s := range st.Sessions {
			resp.Sessions = append(resp.Sessions, SessionToResponse(s))
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func selectSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := media.ID(chi.URLParam(r, "ratingKey"))

		if err := cfg.Editor.Select(key); err != nil {
			if errors.Is(err, editor.ErrUnknownSession) {
				WriteError(w, http.StatusNotFound, "session not found", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		st := cfg.Editor.State()
		if st.Selected == nil || st.Range == nil {
			WriteError(w, http.StatusConflict, "selection changed", "CONFLICT")
			return
		}
		WriteJSON(w, http.StatusOK, SelectResponse{
			Session: SessionToResponse(*st.Selected),
			Range:   RangeToResponse(*st.Range),
			Preview: PreviewResponse{URL: st.PreviewURL, ClipURL: st.ClipURL},
		})
	}
}

type bound int

const (
	startBound bound = iota
	endBound
)

func editRangeHandler(cfg ServerConfig, b bound) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RangeEditRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRangeBody)).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		set := 0
		for _, present := range []bool{req.Ms != nil, req.Clock != nil, req.SubMs != nil} {
			if present {
				set++
			}
		}
		if set != 1 {
			WriteError(w, http.StatusBadRequest, "exactly one of ms, clock or sub_ms is required", "BAD_REQUEST")
			return
		}

		if _, err := cfg.Editor.Preview(); err != nil {
			WriteError(w, http.StatusConflict, "no session selected", "NO_SELECTION")
			return
		}

		var (
			applied bool
			err     error
		)
		switch {
		case req.Ms != nil && b == startBound:
			applied = cfg.Editor.SetStart(*req.Ms)
		case req.Ms != nil:
			applied = cfg.Editor.SetEnd(*req.Ms)
		case req.SubMs != nil && b == startBound:
			applied = cfg.Editor.SetStartMillis(*req.SubMs)
		case req.SubMs != nil:
			applied = cfg.Editor.SetEndMillis(*req.SubMs)
		case b == startBound:
			applied, err = cfg.Editor.SetStartClock(*req.Clock)
		default:
			applied, err = cfg.Editor.SetEndClock(*req.Clock)
		}

		if err != nil {
			if errors.Is(err, timecode.ErrInvalidTimecode) {
				WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_TIMECODE")
				return
			}
			WriteError(w, http.StatusConflict, err.Error(), "NO_SELECTION")
			return
		}

		st := cfg.Editor.State()
		if st.Range == nil {
			WriteError(w, http.StatusConflict, "no session selected", "NO_SELECTION")
			return
		}
		if !applied {
			WriteJSON(w, http.StatusConflict, struct {
				ErrorResponse
				Range RangeResponse `json:"range"`
			}{
				ErrorResponse: ErrorResponse{Error: "value out of bounds", Code: "RANGE_REJECTED"},
				Range:         RangeToResponse(*st.Range),
			})
			return
		}
		WriteJSON(w, http.StatusOK, RangeToResponse(*st.Range))
	}
}

func previewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := cfg.Editor.Preview()
		if err != nil {
			WriteError(w, http.StatusConflict, "no session selected", "NO_SELECTION")
			return
		}
		WriteJSON(w, http.StatusOK, PreviewResponse{URL: p.URL, ClipURL: p.ClipURL})
	}
}

func thumbHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := cfg.Editor.Session(media.ID(chi.URLParam(r, "ratingKey")))
		if !ok {
			WriteError(w, http.StatusNotFound, "session not found", "NOT_FOUND")
			return
		}
		if s.Thumb == "" || cfg.Thumbs == nil {
			WriteError(w, http.StatusNotFound, "session has no thumbnail", "NOT_FOUND")
			return
		}

		data, contentType, err := cfg.Thumbs.Thumb(r.Context(), s.Thumb)
		if err != nil {
			if errors.Is(err, remote.ErrAuthRequired) {
				WriteError(w, http.StatusUnauthorized, "media server login required", "AUTH_REQUIRED")
				return
			}
			cfg.Logger.Warn("thumbnail fetch failed", "rating_key", s.RatingKey, "error", err)
			WriteError(w, http.StatusBadGateway, "thumbnail unavailable", "UPSTREAM_ERROR")
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "private, max-age=300")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func createDownloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clip, err := cfg.Editor.Clip()
		if err != nil {
			WriteError(w, http.StatusConflict, "no session selected", "NO_SELECTION")
			return
		}

		d, err := cfg.Downloads.Enqueue(r.Context(), clip.Session, clip.StartMs, clip.EndMs, clip.URL)
		if err != nil {
			if errors.Is(err, downloads.ErrInvalidClip) {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusAccepted, DownloadToResponse(d))
	}
}

func listDownloadsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "invalid limit", "BAD_REQUEST")
				return
			}
			limit = min(n, 500)
		}

		list, err := cfg.Downloads.List(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		resp := DownloadsResponse{Downloads: make([]DownloadResponse, 0, len(list))}
		for _, d := range list {
			resp.Downloads = append(resp.Downloads, DownloadToResponse(d))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getDownloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := cfg.Downloads.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDownloadError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, DownloadToResponse(d))
	}
}

func retryDownloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := cfg.Downloads.Retry(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDownloadError(w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, DownloadToResponse(d))
	}
}

func pauseDownloadsHandler(cfg ServerConfig, pause bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "download runner not available", "UNAVAILABLE")
			return
		}
		if pause {
			cfg.Runner.Pause()
		} else {
			cfg.Runner.Resume()
		}
		WriteJSON(w, http.StatusOK, map[string]bool{"paused": cfg.Runner.IsPaused()})
	}
}

func downloadFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := cfg.Downloads.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDownloadError(w, err)
			return
		}
		if d.Status != downloads.StatusCompleted || d.OutputPath == "" {
			WriteError(w, http.StatusConflict, "download not completed", "NOT_READY")
			return
		}

		if err := cfg.Clips.ServeClip(w, r, d.OutputPath, d.Filename); err != nil {
			cfg.Logger.Error("serve clip failed", "download_id", d.ID, "error", err)
			WriteError(w, http.StatusNotFound, "clip file missing", "NOT_FOUND")
		}
	}
}

func writeDownloadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, downloads.ErrNotFound):
		WriteError(w, http.StatusNotFound, "download not found", "NOT_FOUND")
	case errors.Is(err, downloads.ErrNotRetryable):
		WriteError(w, http.StatusConflict, err.Error(), "NOT_RETRYABLE")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
