package downloads

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Repository interface {
	Create(ctx context.Context, d *Download) error
	Get(ctx context.Context, id string) (*Download, error)
	List(ctx context.Context, limit int) ([]*Download, error)
	ListPending(ctx context.Context) ([]*Download, error)
	UpdateStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateBytes(ctx context.Context, id string, bytes int64) error
	Complete(ctx context.Context, id, outputPath, filename string, bytes int64) error
	Counts(ctx context.Context) (Counts, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const downloadColumns = `id, rating_key, title, start_ms, end_ms, clip_url, filename, output_path, status, bytes, error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDownload(row rowScanner) (*Download, error) {
	var d Download
	var outputPath, errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&d.ID, &d.RatingKey, &d.Title, &d.StartMs, &d.EndMs, &d.ClipURL, &d.Filename,
		&outputPath, &d.Status, &d.Bytes, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.OutputPath = outputPath.String
	d.Error = errMsg.String
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, d *Download) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO downloads (`+downloadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.RatingKey, d.Title, d.StartMs, d.EndMs, d.ClipURL, d.Filename,
		nullString(d.OutputPath), d.Status, d.Bytes, nullString(d.Error),
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	return err
}

// Get returns nil without error when the download does not exist.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Download, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+downloadColumns+` FROM downloads WHERE id = ?`, id)
	d, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*Download, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+downloadColumns+` FROM downloads ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDownloads(rows)
}

func (r *SQLiteRepository) ListPending(ctx context.Context) ([]*Download, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+downloadColumns+` FROM downloads WHERE status = 'pending' ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDownloads(rows)
}

func scanDownloads(rows *sql.Rows) ([]*Download, error) {
	var out []*Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE downloads SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), now(), id)
	return err
}

func (r *SQLiteRepository) UpdateBytes(ctx context.Context, id string, bytes int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE downloads SET bytes = ?, updated_at = ? WHERE id = ?
	`, bytes, now(), id)
	return err
}

func (r *SQLiteRepository) Complete(ctx context.Context, id, outputPath, filename string, bytes int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE downloads
		SET status = 'completed', output_path = ?, filename = ?, bytes = ?, error = NULL, updated_at = ?
		WHERE id = ?
	`, outputPath, filename, bytes, now(), id)
	return err
}

func (r *SQLiteRepository) Counts(ctx context.Context) (Counts, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM downloads GROUP BY status`)
	if err != nil {
		return Counts{}, err
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, err
		}
		switch status {
		case StatusPending:
			c.Pending = n
		case StatusRunning:
			c.Running = n
		case StatusCompleted:
			c.Completed = n
		case StatusFailed:
			c.Failed = n
		}
	}
	return c, rows.Err()
}

// GetConfig returns "" without error for unknown keys.
func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func now() string {
	return formatTime(time.Now())
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
