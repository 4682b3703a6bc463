// Package remote is the HTTP client for the CutScene media server: the
// session list, login target, preview/clip links and thumbnails.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cutscene/cutscene-client/internal/media"
	"github.com/cutscene/cutscene-client/internal/playback"
	"github.com/cutscene/cutscene-client/internal/timecode"
)

const (
	HeaderClientIdentifier = "X-CutScene-Client-Identifier"
	HeaderToken            = "X-Plex-Token"

	maxSessionsBody = 8 << 20
	maxErrorBody    = 4096
	maxThumbBody    = 16 << 20
)

// ErrAuthRequired is returned when the server answers /sessions with a
// redirect, which it does for clients that have not logged in.
var ErrAuthRequired = errors.New("authentication required")

// StatusError represents an unexpected HTTP status from the server.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Client talks to one CutScene server.
type Client struct {
	baseURL    *url.URL
	token      string
	clientID   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a client for baseURL. Redirects are never followed: a
// redirect from the server means "log in first".
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q must be absolute", baseURL)
	}

	return &Client{
		baseURL:  u,
		token:    token,
		clientID: uuid.NewString(),
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}, nil
}

// ClientID is the identifier sent with every request.
func (c *Client) ClientID() string {
	return c.clientID
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Sessions fetches the active playback sessions. Malformed entries are
// logged and dropped.
func (c *Client) Sessions(ctx context.Context) ([]media.Session, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.resolve("/sessions", nil))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		c.logger.Info("session list redirected, login required",
			"status", resp.StatusCode,
			"location", resp.Header.Get("Location"),
		)
		return nil, ErrAuthRequired
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Op: "list sessions", StatusCode: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSessionsBody))
	if err != nil {
		return nil, fmt.Errorf("read sessions body: %w", err)
	}

	sessions, rejected, err := media.DecodeSessions(body)
	if err != nil {
		return nil, err
	}
	for _, r := range rejected {
		c.logger.Warn("dropping malformed session", "error", r)
	}

	c.logger.Debug("sessions fetched", "count", len(sessions), "rejected", len(rejected))
	return sessions, nil
}

// AuthURL is the navigation target for logging in.
func (c *Client) AuthURL() string {
	return c.resolve("/authUrl", nil)
}

// PreviewURL builds the streamable preview link for a range.
func (c *Client) PreviewURL(s media.Session, startMs, endMs int) string {
	return c.rangeURL("preview", s, startMs, endMs)
}

// ClipURL builds the download link for a range.
func (c *Client) ClipURL(s media.Session, startMs, endMs int) string {
	return c.rangeURL("clip", s, startMs, endMs)
}

// ThumbURL builds the thumbnail link for a session thumb path.
func (c *Client) ThumbURL(thumbPath string) string {
	return c.resolve("/thumb", url.Values{"path": {thumbPath}})
}

func (c *Client) rangeURL(kind string, s media.Session, startMs, endMs int) string {
	p := fmt.Sprintf("/%s/%s/%s/%s",
		kind,
		url.PathEscape(s.RatingKey.String()),
		timecode.Format(startMs),
		timecode.Format(endMs),
	)

	q := url.Values{}
	if id := s.MediaID(); id != "" {
		q.Set("mediaId", id)
	}
	// External players cannot send headers, so the token rides in the query.
	if c.token != "" {
		q.Set(HeaderToken, c.token)
	}
	return c.resolve(p, q)
}

func (c *Client) resolve(p string, q url.Values) string {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, p)
	u.RawPath = ""
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	} else {
		u.RawQuery = ""
	}
	return u.String()
}

// Thumb fetches thumbnail bytes and their content type.
func (c *Client) Thumb(ctx context.Context, thumbPath string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.ThumbURL(thumbPath))
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, "", ErrAuthRequired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", &StatusError{Op: "fetch thumbnail", StatusCode: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbBody))
	if err != nil {
		return nil, "", fmt.Errorf("read thumbnail: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// Restartable is implemented by download destinations that can drop bytes
// already written when the server ignores a resume request.
type Restartable interface {
	Restart() error
}

// ClipInfo describes a clip response.
type ClipInfo struct {
	Filename    string
	ContentType string
	Written     int64
	Resumed     bool
}

// DownloadClip streams clipURL into w. When offset is positive the request
// asks for the remaining bytes; if the server sends the whole clip instead,
// w must implement Restartable so it can start over.
func (c *Client) DownloadClip(ctx context.Context, clipURL string, offset int64, w io.Writer) (*ClipInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, clipURL)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	// Clip extraction runs for as long as the server needs, so the client
	// timeout does not apply; ctx bounds the request instead.
	httpClient := *c.httpClient
	httpClient.Timeout = 0

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, ErrAuthRequired
	}

	info := &ClipInfo{
		Filename:    filenameFromDisposition(resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
	}

	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		start, err := playback.ParseContentRangeStart(resp.Header.Get("Content-Range"))
		if err != nil || start != offset {
			return nil, fmt.Errorf("server resumed at wrong offset: %q", resp.Header.Get("Content-Range"))
		}
		info.Resumed = true
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if offset > 0 {
			r, ok := w.(Restartable)
			if !ok {
				return nil, errors.New("server ignored resume request")
			}
			if err := r.Restart(); err != nil {
				return nil, fmt.Errorf("restart download: %w", err)
			}
		}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Op: "download clip", StatusCode: resp.StatusCode, Body: string(body)}
	}

	n, err := io.Copy(w, resp.Body)
	info.Written = n
	if err != nil {
		return info, fmt.Errorf("copy clip body: %w", err)
	}
	return info, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(HeaderClientIdentifier, c.clientID)
	if c.token != "" {
		req.Header.Set(HeaderToken, c.token)
	}
	return req, nil
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return path.Base(params["filename"])
}
