package export

import (
	"fmt"
	"math"
	"strings"
)

// GenerateEDL renders a CMX3600-style edit decision list. Record times are
// laid end to end starting at zero.
func GenerateEDL(events []Event, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	fcm := "FCM: NON-DROP FRAME"
	if isDropFrame(frameRate) {
		fcm = "FCM: DROP FRAME"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n%s\n\n", title, fcm)

	record := 0
	for i, ev := range events {
		length := ev.EndMs - ev.StartMs
		fmt.Fprintf(&b, "%03d  %-8s %-5s C        %s %s %s %s\n",
			i+1, "AX", "V",
			frameTimecode(ev.StartMs, fps),
			frameTimecode(ev.EndMs, fps),
			frameTimecode(record, fps),
			frameTimecode(record+length, fps),
		)
		fmt.Fprintf(&b, "* FROM CLIP NAME:  %s\n", ev.ClipName)
		fmt.Fprintf(&b, "* MEDIA PATH:  %s\n", ev.MediaPath)
		record += length
	}
	return b.String()
}

// ClipEDL describes a single downloaded clip cut from mediaPath.
func ClipEDL(clipName, mediaPath string, startMs, endMs int, frameRate float64) string {
	return GenerateEDL([]Event{{
		ClipName:  clipName,
		MediaPath: mediaPath,
		StartMs:   startMs,
		EndMs:     endMs,
	}}, clipName, frameRate)
}

func isDropFrame(rate float64) bool {
	return math.Abs(rate-29.97) < 0.01 || math.Abs(rate-59.94) < 0.01
}

// frameTimecode formats ms as HH:MM:SS:FF at fps.
func frameTimecode(ms int, fps int) string {
	frames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	secs := frames / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60, frames%fps)
}
