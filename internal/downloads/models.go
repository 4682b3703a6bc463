// Package downloads queues clip downloads, runs them in the background and
// keeps a ledger of finished clips in SQLite.
package downloads

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Download is one queued or finished clip download.
type Download struct {
	ID         string    `json:"id"`
	RatingKey  string    `json:"rating_key"`
	Title      string    `json:"title"`
	StartMs    int       `json:"start_ms"`
	EndMs      int       `json:"end_ms"`
	ClipURL    string    `json:"-"`
	Filename   string    `json:"filename"`
	OutputPath string    `json:"output_path,omitempty"`
	Status     string    `json:"status"`
	Bytes      int64     `json:"bytes"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Done reports whether the download reached a terminal state.
func (d *Download) Done() bool {
	return d.Status == StatusCompleted || d.Status == StatusFailed
}

// Counts summarizes the queue by status.
type Counts struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Active is the number of downloads waiting or in progress.
func (c Counts) Active() int {
	return c.Pending + c.Running
}

func NewID() string {
	return uuid.NewString()
}
