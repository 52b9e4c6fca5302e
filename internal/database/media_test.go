package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoMAV/PiStreamer/internal/models"
)

func newMock(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Database{DB: db}, mock
}

func TestAddMediaGeneratesID(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectExec("INSERT INTO media").
		WithArgs(sqlmock.AnyArg(), "video", "/mnt/external/a.ts", "pending", []byte(`{"lat":1}`), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	m := &models.Media{Kind: models.MediaVideo, Path: "/mnt/external/a.ts", GPS: json.RawMessage(`{"lat":1}`)}
	require.NoError(t, d.AddMedia(context.Background(), m))

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, models.MediaPending, m.Status)
	assert.False(t, m.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddMediaError(t *testing.T) {
	d, mock := newMock(t)
	mock.ExpectExec("INSERT INTO media").WillReturnError(errors.New("boom"))

	err := d.AddMedia(context.Background(), &models.Media{ID: "m1", Kind: models.MediaPhoto, Path: "/p.jpg"})
	assert.ErrorContains(t, err, "failed to add media")
}

func TestGetPendingMedia(t *testing.T) {
	d, mock := newMock(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	uploaded := created.Add(time.Minute)

	rows := sqlmock.NewRows([]string{"id", "kind", "path", "status", "gps", "misc", "url", "created_at", "uploaded_at"}).
		AddRow("m1", "video", "/a.ts", "pending", []byte(`{"lat":1}`), nil, "", created, nil).
		AddRow("m2", "photo", "/b.jpg", "pending", nil, []byte(`"x"`), "http://u", created, uploaded)
	mock.ExpectQuery("SELECT (.+) FROM media WHERE status = \\$1").
		WithArgs("pending", 5).
		WillReturnRows(rows)

	media, err := d.GetPendingMedia(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, media, 2)

	assert.Equal(t, "m1", media[0].ID)
	assert.Equal(t, models.MediaVideo, media[0].Kind)
	assert.JSONEq(t, `{"lat":1}`, string(media[0].GPS))
	assert.Nil(t, media[0].Misc)
	assert.Nil(t, media[0].UploadedAt)

	assert.Equal(t, models.MediaPhoto, media[1].Kind)
	require.NotNil(t, media[1].UploadedAt)
	assert.Equal(t, uploaded, *media[1].UploadedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMediaQueryError(t *testing.T) {
	d, mock := newMock(t)
	mock.ExpectQuery("SELECT (.+) FROM media ORDER BY created_at DESC").WillReturnError(errors.New("down"))

	_, err := d.ListMedia(context.Background(), 10)
	assert.ErrorContains(t, err, "failed to list media")
}

func TestUpdateMediaStatus(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM media WHERE id = \\$1 FOR UPDATE").
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("uploading"))
	mock.ExpectExec("UPDATE media SET status").
		WithArgs("uploaded", "http://minio/media/a.ts", sqlmock.AnyArg(), "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := d.UpdateMediaStatus(context.Background(), "m1", models.MediaUploaded, "http://minio/media/a.ts")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMediaStatusRejectsInvalidTransition(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM media").
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("uploaded"))
	mock.ExpectRollback()

	err := d.UpdateMediaStatus(context.Background(), "m1", models.MediaPending, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMediaStatusNotFound(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM media").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	mock.ExpectRollback()

	err := d.UpdateMediaStatus(context.Background(), "missing", models.MediaUploading, "")
	assert.ErrorIs(t, err, ErrMediaNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxReusesOuterTransaction(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO media").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO media").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := d.InTx(context.Background(), func(ctx context.Context) error {
		if err := d.AddMedia(ctx, &models.Media{Kind: models.MediaPhoto, Path: "/a.jpg"}); err != nil {
			return err
		}
		return d.InTx(ctx, func(ctx context.Context) error {
			return d.AddMedia(ctx, &models.Media{Kind: models.MediaPhoto, Path: "/b.jpg"})
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindStuckMedia(t *testing.T) {
	d, mock := newMock(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "kind", "path", "status", "gps", "misc", "url", "created_at", "uploaded_at"}).
		AddRow("m1", "video", "/a.ts", "uploading", nil, nil, "", created, nil)
	mock.ExpectQuery("SELECT (.+) FROM media WHERE status = \\$1 AND updated_at < \\$2").
		WithArgs("uploading", sqlmock.AnyArg()).
		WillReturnRows(rows)

	media, err := d.FindStuckMedia(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, models.MediaUploading, media[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
