// Package media holds the typed records the CutScene server reports for
// active playback sessions, validated at the fetch boundary.
package media

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const TypeEpisode = "episode"

var ErrInvalidSession = errors.New("invalid session")

// ID accepts identifiers the server encodes either as JSON strings or numbers.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

type User struct {
	Title string `json:"title"`
}

type Part struct {
	ID  ID     `json:"id"`
	Key string `json:"key,omitempty"`
}

type Media struct {
	ID   ID     `json:"id"`
	Part []Part `json:"Part"`
}

// Session is one active playback instance. Offsets are in milliseconds.
type Session struct {
	RatingKey        ID      `json:"ratingKey"`
	Type             string  `json:"type"`
	Title            string  `json:"title"`
	GrandparentTitle string  `json:"grandparentTitle,omitempty"`
	ParentTitle      string  `json:"parentTitle,omitempty"`
	ParentIndex      int     `json:"parentIndex,omitempty"`
	Index            int     `json:"index,omitempty"`
	Year             int     `json:"year,omitempty"`
	ViewOffset       int     `json:"viewOffset"`
	Duration         int     `json:"duration"`
	User             User    `json:"User"`
	Media            []Media `json:"Media,omitempty"`
	Thumb            string  `json:"thumb,omitempty"`
}

// Validate checks the fields the editor relies on.
func (s Session) Validate() error {
	if s.RatingKey == "" {
		return fmt.Errorf("%w: missing ratingKey", ErrInvalidSession)
	}
	if s.Title == "" {
		return fmt.Errorf("%w: session %s missing title", ErrInvalidSession, s.RatingKey)
	}
	if s.ViewOffset < 0 {
		return fmt.Errorf("%w: session %s has negative viewOffset", ErrInvalidSession, s.RatingKey)
	}
	if s.Duration < 0 {
		return fmt.Errorf("%w: session %s has negative duration", ErrInvalidSession, s.RatingKey)
	}
	if s.Duration > 0 && s.ViewOffset > s.Duration {
		return fmt.Errorf("%w: session %s viewOffset %d beyond duration %d",
			ErrInvalidSession, s.RatingKey, s.ViewOffset, s.Duration)
	}
	return nil
}

// MediaID returns the primary part identifier used as the mediaId query
// parameter, or "" when the session carries no media parts.
func (s Session) MediaID() string {
	if len(s.Media) == 0 || len(s.Media[0].Part) == 0 {
		return ""
	}
	return s.Media[0].Part[0].ID.String()
}

func (s Session) IsEpisode() bool {
	return s.Type == TypeEpisode
}

// DisplayTitle is the heading shown for a session: the show name for
// episodes, "Title (Year)" otherwise.
func (s Session) DisplayTitle() string {
	if s.IsEpisode() {
		return s.GrandparentTitle
	}
	if s.Year == 0 {
		return s.Title
	}
	return fmt.Sprintf("%s (%d)", s.Title, s.Year)
}

// DisplaySubtitle is "S01E02 Title" for episodes and empty otherwise.
func (s Session) DisplaySubtitle() string {
	if !s.IsEpisode() {
		return ""
	}
	return fmt.Sprintf("S%02dE%02d %s", s.ParentIndex, s.Index, s.Title)
}

// DisplayName joins title and subtitle on one line.
func (s Session) DisplayName() string {
	if sub := s.DisplaySubtitle(); sub != "" {
		return s.DisplayTitle() + " " + sub
	}
	return s.DisplayTitle()
}

// DecodeSessions parses a JSON array of sessions. Entries that fail to decode
// or validate are skipped and reported in rejected; a body that is not an
// array is an error.
func DecodeSessions(data []byte) (sessions []Session, rejected []error, err error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode sessions: %w", err)
	}

	sessions = make([]Session, 0, len(raw))
	seen := make(map[ID]bool, len(raw))
	for i, entry := range raw {
		var s Session
		if err := json.Unmarshal(entry, &s); err != nil {
			rejected = append(rejected, fmt.Errorf("%w: entry %d: %v", ErrInvalidSession, i, err))
			continue
		}
		if err := s.Validate(); err != nil {
			rejected = append(rejected, err)
			continue
		}
		if seen[s.RatingKey] {
			rejected = append(rejected, fmt.Errorf("%w: duplicate ratingKey %s", ErrInvalidSession, s.RatingKey))
			continue
		}
		seen[s.RatingKey] = true
		sessions = append(sessions, s)
	}
	return sessions, rejected, nil
}
