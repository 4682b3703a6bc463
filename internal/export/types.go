// Package export names clip files, keeps them inside the download
// directory and writes optional EDL sidecars describing where a clip was
// cut from.
package export

// Event is one cut in an edit decision list.
type Event struct {
	ClipName  string
	MediaPath string
	StartMs   int
	EndMs     int
}
