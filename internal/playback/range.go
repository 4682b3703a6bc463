// Package playback serves finished clip files to local players with HTTP
// byte-range support, and parses the range headers a resumed clip download
// receives.
package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Span is an inclusive byte interval of a clip file.
type Span struct {
	Start int64
	End   int64
}

func (s Span) Length() int64 {
	return s.End - s.Start + 1
}

// ContentRange renders the Content-Range header value for a file of total bytes.
func (s Span) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", s.Start, s.End, total)
}

// ParseRange interprets a Range request header against a file of size bytes.
// A nil span with a nil error means the whole file was requested. Only the
// first interval of a multi-range request is honored.
func ParseRange(header string, size int64) (*Span, error) {
	if header == "" {
		return nil, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	if first, _, multi := strings.Cut(spec, ","); multi {
		spec = strings.TrimSpace(first)
	}

	from, to, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, ErrInvalidRange
	}

	var span Span
	switch {
	case from == "":
		n, err := strconv.ParseInt(to, 10, 64)
		if err != nil || n <= 0 {
			return nil, ErrInvalidRange
		}
		span = Span{Start: max(size-n, 0), End: size - 1}
	default:
		start, err := strconv.ParseInt(from, 10, 64)
		if err != nil || start < 0 {
			return nil, ErrInvalidRange
		}
		end := size - 1
		if to != "" {
			end, err = strconv.ParseInt(to, 10, 64)
			if err != nil {
				return nil, ErrInvalidRange
			}
		}
		span = Span{Start: start, End: end}
	}

	if span.Start > span.End || span.Start >= size {
		return nil, ErrUnsatisfiable
	}
	span.End = min(span.End, size-1)
	return &span, nil
}

// ParseContentRangeStart returns the first byte position of a Content-Range
// response header such as "bytes 500-999/1000" or "bytes 500-999/*".
func ParseContentRangeStart(header string) (int64, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return 0, ErrInvalidRange
	}
	interval, _, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, ErrInvalidRange
	}
	from, to, ok := strings.Cut(interval, "-")
	if !ok {
		return 0, ErrInvalidRange
	}
	start, err := strconv.ParseInt(from, 10, 64)
	if err != nil || start < 0 {
		return 0, ErrInvalidRange
	}
	end, err := strconv.ParseInt(to, 10, 64)
	if err != nil || end < start {
		return 0, ErrInvalidRange
	}
	return start, nil
}
