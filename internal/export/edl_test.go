package export

import (
	"strings"
	"testing"
)

func TestGenerateEDL_Events(t *testing.T) {
	events := []Event{
		{ClipName: "Clip A", MediaPath: "/a.mp4", StartMs: 0, EndMs: 1000},
		{ClipName: "Clip B", MediaPath: "/b.mp4", StartMs: 1000, EndMs: 2500},
	}

	edl := GenerateEDL(events, "Multi", 30.0)

	for _, want := range []string{
		"TITLE: Multi",
		"FCM: NON-DROP FRAME",
		"001  AX       V     C        00:00:00:00 00:00:01:00 00:00:00:00 00:00:01:00",
		"002  AX       V     C        00:00:01:00 00:00:02:15 00:00:01:00 00:00:02:15",
		"* FROM CLIP NAME:  Clip B",
		"* MEDIA PATH:  /b.mp4",
	} {
		if !strings.Contains(edl, want) {
			t.Errorf("EDL missing %q:\n%s", want, edl)
		}
	}
}

func TestClipEDL(t *testing.T) {
	edl := ClipEDL("Heat (1995)", "/library/metadata/42", 120000, 180000, 29.97)

	if !strings.Contains(edl, "FCM: DROP FRAME") {
		t.Errorf("expected drop frame header:\n%s", edl)
	}
	if !strings.Contains(edl, "00:02:00:00 00:03:00:00 00:00:00:00 00:01:00:00") {
		t.Errorf("event line mismatch:\n%s", edl)
	}
}

func TestFrameTimecode(t *testing.T) {
	tests := []struct {
		ms   int
		fps  int
		want string
	}{
		{0, 30, "00:00:00:00"},
		{500, 30, "00:00:00:15"},
		{60000, 30, "00:01:00:00"},
		{3600000, 25, "01:00:00:00"},
		{3661040, 25, "01:01:01:01"},
	}

	for _, tt := range tests {
		if got := frameTimecode(tt.ms, tt.fps); got != tt.want {
			t.Errorf("frameTimecode(%d, %d) = %q, want %q", tt.ms, tt.fps, got, tt.want)
		}
	}
}
