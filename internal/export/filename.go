package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cutscene/cutscene-client/internal/media"
	"github.com/cutscene/cutscene-client/internal/timecode"
)

const clipExt = ".mp4"

// ClipFilename names a clip the way the server does: episodes as
// "Show S01E02 Title (from - to).mp4", everything else as
// "Title (Year) (from - to).mp4". The result is safe to use as a file name.
func ClipFilename(s media.Session, startMs, endMs int) string {
	from, to := timecode.Format(startMs), timecode.Format(endMs)

	var name string
	if s.IsEpisode() {
		name = fmt.Sprintf("%s S%02dE%02d %s (%s - %s)",
			s.GrandparentTitle, s.ParentIndex, s.Index, s.Title, from, to)
	} else {
		name = fmt.Sprintf("%s (%d) (%s - %s)", s.Title, s.Year, from, to)
	}
	return SanitizeName(name, MaxNameLen) + clipExt
}

// CleanServerFilename sanitizes a name suggested by the server. It returns
// "" when nothing usable remains.
func CleanServerFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == "" {
		return ""
	}

	ext := filepath.Ext(name)
	if ext == "" || len(ext) > 6 {
		ext = clipExt
	} else {
		name = strings.TrimSuffix(name, ext)
	}

	clean := SanitizeName(name, MaxNameLen)
	if strings.Trim(clean, "_. ") == "" {
		return ""
	}
	return clean + SanitizeName(ext, 0)
}

// SidecarPath returns the EDL path next to a clip.
func SidecarPath(clipPath string) string {
	return strings.TrimSuffix(clipPath, filepath.Ext(clipPath)) + ".edl"
}
