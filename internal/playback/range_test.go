package playback

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		size    int64
		want    *Span
		wantErr error
	}{
		{"no header", "", 1000, nil, nil},
		{"whole file", "bytes=0-999", 1000, &Span{0, 999}, nil},
		{"open ended", "bytes=500-", 1000, &Span{500, 999}, nil},
		{"suffix", "bytes=-500", 1000, &Span{500, 999}, nil},
		{"suffix longer than file", "bytes=-2000", 500, &Span{0, 499}, nil},
		{"end clamped", "bytes=0-2000", 1000, &Span{0, 999}, nil},
		{"first of many", "bytes=0-99, 200-299", 1000, &Span{0, 99}, nil},
		{"start past end of file", "bytes=1000-", 1000, nil, ErrUnsatisfiable},
		{"reversed", "bytes=20-10", 1000, nil, ErrUnsatisfiable},
		{"wrong unit", "items=0-100", 1000, nil, ErrInvalidRange},
		{"garbage start", "bytes=abc-100", 1000, nil, ErrInvalidRange},
		{"zero suffix", "bytes=-0", 1000, nil, ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, tt.size)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.want == nil {
				if got != nil {
					t.Fatalf("got %+v, want nil", got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSpan(t *testing.T) {
	s := Span{Start: 500, End: 999}
	if s.Length() != 500 {
		t.Errorf("Length() = %d", s.Length())
	}
	if got := s.ContentRange(1000); got != "bytes 500-999/1000" {
		t.Errorf("ContentRange() = %q", got)
	}
}

func TestParseContentRangeStart(t *testing.T) {
	tests := []struct {
		header  string
		want    int64
		wantErr bool
	}{
		{"bytes 500-999/1000", 500, false},
		{"bytes 0-0/*", 0, false},
		{"bytes */1000", 0, true},
		{"bytes 10-5/100", 0, true},
		{"500-999/1000", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseContentRangeStart(tt.header)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseContentRangeStart(%q) error = %v", tt.header, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseContentRangeStart(%q) = %d, want %d", tt.header, got, tt.want)
		}
	}
}
