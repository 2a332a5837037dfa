package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"picdrop/internal/config"
)

// ErrDuplicatePath is returned by Add when the folder is already queued.
var ErrDuplicatePath = errors.New("path already queued")

// Store manages queue persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database and applies any
// outstanding schema steps.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.DataDir, "queue.db"))
}

// OpenPath opens the queue database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Add inserts a gallery folder in the given initial status. The folder path
// is unique: re-adding an existing path returns ErrDuplicatePath.
func (s *Store) Add(ctx context.Context, path, host string, status Status) (*Item, error) {
	existing, err := s.GetByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("add %s: %w", path, ErrDuplicatePath)
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO queue_items (path, name, status, host, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		path,
		filepath.Base(path),
		status,
		host,
		timestamp,
		timestamp,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, fmt.Errorf("add %s: %w", path, ErrDuplicatePath)
		}
		return nil, fmt.Errorf("insert gallery: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetByPath fetches a queue item by its folder path.
func (s *Store) GetByPath(ctx context.Context, path string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE path = ?`, path)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by path: %w", err)
	}
	return item, nil
}

// List returns queue items filtered by status set (or all items when no
// status is provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM queue_items`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ClaimNextQueued atomically moves the oldest queued item to uploading and
// returns it. Returns nil when nothing is queued. The claim happens inside a
// transaction so two workers never receive the same gallery.
func (s *Store) ClaimNextQueued(ctx context.Context) (*Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	row := tx.QueryRowContext(
		ctx,
		`SELECT id FROM queue_items WHERE status = ? ORDER BY created_at, id LIMIT 1`,
		StatusQueued,
	)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select next queued: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(
		ctx,
		`UPDATE queue_items SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusUploading,
		now,
		now,
		id,
		StatusQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("claim item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Update persists changes to an existing queue item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	uploadedJSON, err := marshalResumeSet(item.UploadedFiles)
	if err != nil {
		return err
	}
	item.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE queue_items
         SET path = ?, name = ?, status = ?, host = ?, template_name = ?,
             cover_path = ?, total_images = ?, uploaded_images = ?, total_bytes = ?,
             gallery_id = ?, gallery_url = ?, uploaded_files = ?, error_message = ?,
             updated_at = ?, started_at = ?, completed_at = ?
         WHERE id = ?`,
		item.Path,
		item.Name,
		item.Status,
		item.Host,
		nullableString(item.TemplateName),
		nullableString(item.CoverPath),
		item.TotalImages,
		item.UploadedImages,
		item.TotalBytes,
		nullableString(item.GalleryID),
		nullableString(item.GalleryURL),
		nullableString(uploadedJSON),
		nullableString(item.ErrorMessage),
		item.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(item.StartedAt),
		nullableTime(item.CompletedAt),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// UpdateStatus sets the status (and error message, which may be empty) of a
// single item.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status Status, errorMessage string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var completedAt any
	if status == StatusCompleted {
		completedAt = now
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE queue_items
         SET status = ?, error_message = ?, updated_at = ?,
             completed_at = COALESCE(?, completed_at)
         WHERE id = ?`,
		status,
		nullableString(errorMessage),
		now,
		completedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// SetResumeSet replaces the persisted resume set and uploaded counter for an
// item. Called whenever a transfer pauses or partially fails so a later
// attempt skips files the host already has.
func (s *Store) SetResumeSet(ctx context.Context, id int64, uploaded []string) error {
	uploadedJSON, err := marshalResumeSet(uploaded)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE queue_items SET uploaded_files = ?, uploaded_images = ?, updated_at = ? WHERE id = ?`,
		nullableString(uploadedJSON),
		len(uploaded),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set resume set: %w", err)
	}
	return nil
}

// Requeue moves paused, incomplete, ready, or failed items back to queued.
// With no ids it requeues everything in those states.
func (s *Store) Requeue(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	fromStates := `status IN ('` + string(StatusPaused) + `', '` +
		string(StatusIncomplete) + `', '` + string(StatusReady) + `', '` +
		string(StatusFailed) + `')`

	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE queue_items SET status = ?, error_message = NULL, updated_at = ? WHERE `+fromStates,
			StatusQueued,
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("requeue items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusQueued, now)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE queue_items SET status = ?, error_message = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND ` + fromStates
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue selected items: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckUploading returns items left in uploading or scanning (by a
// crashed or killed daemon) back to a claimable state. Uploading items keep
// their resume set, so recovery re-sends nothing the host already accepted.
func (s *Store) ResetStuckUploading(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE queue_items SET status = ?, updated_at = ? WHERE status IN (?, ?)`,
		StatusQueued,
		now,
		StatusUploading,
		StatusScanning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Summary aggregates queue counts for status output.
func (s *Store) Summary(ctx context.Context) (StatsSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return StatsSummary{}, err
	}
	summary := StatsSummary{}
	for status, count := range stats {
		summary.Total += count
		switch status {
		case StatusQueued:
			summary.Queued += count
		case StatusScanning:
			summary.Scanning += count
		case StatusReady:
			summary.Ready += count
		case StatusUploading:
			summary.Uploading += count
		case StatusPaused:
			summary.Paused += count
		case StatusIncomplete:
			summary.Incomplete += count
		case StatusCompleted:
			summary.Completed += count
		case StatusFailed:
			summary.Failed += count
		}
	}
	return summary, nil
}

// Remove deletes an item by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed items from the queue.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_items WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all items from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_items`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

const itemColumns = "id, path, name, status, host, template_name, cover_path, total_images, uploaded_images, total_bytes, gallery_id, gallery_url, uploaded_files, error_message, created_at, updated_at, started_at, completed_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id             int64
		path           string
		name           string
		statusStr      string
		host           string
		templateName   sql.NullString
		coverPath      sql.NullString
		totalImages    int
		uploadedImages int
		totalBytes     int64
		galleryID      sql.NullString
		galleryURL     sql.NullString
		uploadedFiles  sql.NullString
		errorMessage   sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
		startedRaw     sql.NullString
		completedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&path,
		&name,
		&statusStr,
		&host,
		&templateName,
		&coverPath,
		&totalImages,
		&uploadedImages,
		&totalBytes,
		&galleryID,
		&galleryURL,
		&uploadedFiles,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:             id,
		Path:           path,
		Name:           name,
		Status:         Status(statusStr),
		Host:           host,
		TemplateName:   templateName.String,
		CoverPath:      coverPath.String,
		TotalImages:    totalImages,
		UploadedImages: uploadedImages,
		TotalBytes:     totalBytes,
		GalleryID:      galleryID.String,
		GalleryURL:     galleryURL.String,
		ErrorMessage:   errorMessage.String,
	}

	if uploadedFiles.Valid && uploadedFiles.String != "" {
		if err := json.Unmarshal([]byte(uploadedFiles.String), &item.UploadedFiles); err != nil {
			return nil, fmt.Errorf("decode resume set for item %d: %w", id, err)
		}
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			item.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			item.CompletedAt = &completed
		}
	}
	return item, nil
}

func marshalResumeSet(uploaded []string) (string, error) {
	if len(uploaded) == 0 {
		return "", nil
	}
	data, err := json.Marshal(uploaded)
	if err != nil {
		return "", fmt.Errorf("encode resume set: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
