package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/EchoMAV/PiStreamer/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid media status transition")
	ErrMediaNotFound     = errors.New("media not found")
)

const mediaColumns = `id, kind, path, status, gps, misc, url, created_at, uploaded_at`

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// AddMedia catalogues a finished recording or photo. An empty ID is generated.
func (d *Database) AddMedia(ctx context.Context, m *models.Media) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = models.MediaPending
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := d.querier(ctx).ExecContext(ctx,
		`INSERT INTO media (id, kind, path, status, gps, misc, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID,
		m.Kind,
		m.Path,
		m.Status,
		nullJSON(m.GPS),
		nullJSON(m.Misc),
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add media: %w", err)
	}
	return nil
}

func scanMedia(rows interface{ Scan(dest ...any) error }) (models.Media, error) {
	var (
		m          models.Media
		gps, misc  []byte
		uploadedAt sql.NullTime
	)
	if err := rows.Scan(&m.ID, &m.Kind, &m.Path, &m.Status, &gps, &misc, &m.URL, &m.CreatedAt, &uploadedAt); err != nil {
		return m, err
	}
	if len(gps) > 0 {
		m.GPS = json.RawMessage(gps)
	}
	if len(misc) > 0 {
		m.Misc = json.RawMessage(misc)
	}
	if uploadedAt.Valid {
		t := uploadedAt.Time
		m.UploadedAt = &t
	}
	return m, nil
}

func (d *Database) queryMedia(ctx context.Context, query string, args ...any) ([]models.Media, error) {
	rows, err := d.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var media []models.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		media = append(media, m)
	}
	return media, rows.Err()
}

// GetPendingMedia returns the oldest media waiting for upload.
func (d *Database) GetPendingMedia(ctx context.Context, limit int) ([]models.Media, error) {
	media, err := d.queryMedia(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE status = $1 ORDER BY created_at LIMIT $2`,
		models.MediaPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending media: %w", err)
	}
	return media, nil
}

// ListMedia returns the newest media first.
func (d *Database) ListMedia(ctx context.Context, limit int) ([]models.Media, error) {
	media, err := d.queryMedia(ctx,
		`SELECT `+mediaColumns+` FROM media ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	return media, nil
}

// FindStuckMedia returns media left in uploading for longer than olderThan,
// e.g. after the process died mid-upload.
func (d *Database) FindStuckMedia(ctx context.Context, olderThan time.Duration) ([]models.Media, error) {
	media, err := d.queryMedia(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`,
		models.MediaUploading, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("failed to find stuck media: %w", err)
	}
	return media, nil
}

func (d *Database) getStatus(ctx context.Context, id string) (models.MediaStatus, error) {
	var status models.MediaStatus
	err := d.querier(ctx).QueryRowContext(ctx, `SELECT status FROM media WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrMediaNotFound, id)
		}
		return "", err
	}
	return status, nil
}

// UpdateMediaStatus moves a media row to next if the transition is allowed.
// url is stored when non-empty; uploaded_at is set on MediaUploaded.
func (d *Database) UpdateMediaStatus(ctx context.Context, id string, next models.MediaStatus, url string) error {
	return d.InTx(ctx, func(ctx context.Context) error {
		current, err := d.getStatus(ctx, id)
		if err != nil {
			return err
		}
		if !models.IsValidMediaTransition(current, next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
		}

		var uploadedAt any
		if next == models.MediaUploaded {
			uploadedAt = time.Now().UTC()
		}
		_, err = d.querier(ctx).ExecContext(ctx,
			`UPDATE media SET status = $1, url = COALESCE(NULLIF($2, ''), url), uploaded_at = COALESCE($3, uploaded_at), updated_at = NOW() WHERE id = $4`,
			next, url, uploadedAt, id)
		if err != nil {
			return fmt.Errorf("failed to update media %s: %w", id, err)
		}
		return nil
	})
}
