package offload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoMAV/PiStreamer/internal/models"
)

type transition struct {
	id   string
	next models.MediaStatus
	url  string
}

type fakeStore struct {
	mu          sync.Mutex
	pending     []models.Media
	fetchErr    error
	rejectID    string
	transitions []transition
}

func (s *fakeStore) GetPendingMedia(_ context.Context, limit int) ([]models.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	out := s.pending
	if len(out) > limit {
		out = out[:limit]
	}
	s.pending = nil
	return out, nil
}

func (s *fakeStore) UpdateMediaStatus(ctx context.Context, id string, next models.MediaStatus, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == s.rejectID {
		return errors.New("invalid media status transition")
	}
	s.transitions = append(s.transitions, transition{id: id, next: next, url: url})
	return nil
}

func (s *fakeStore) recorded() []transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transition(nil), s.transitions...)
}

type fakeUploader struct {
	failPath string
	objects  []string
}

func (u *fakeUploader) UploadFile(_ context.Context, bucket, objectName, path string) (string, error) {
	if path == u.failPath {
		return "", errors.New("upload error")
	}
	u.objects = append(u.objects, bucket+"/"+objectName)
	return "http://minio/" + bucket + "/" + objectName, nil
}

func TestProcessBatchUploadsPending(t *testing.T) {
	store := &fakeStore{pending: []models.Media{
		{ID: "v1", Kind: models.MediaVideo, Path: "/mnt/external/a.ts"},
		{ID: "p1", Kind: models.MediaPhoto, Path: "/mnt/external/b.jpg"},
	}}
	up := &fakeUploader{}
	d := NewDispatcher(store, up, "media", time.Second)

	d.processBatch(context.Background())

	assert.Equal(t, []string{"media/video/a.ts", "media/photo/b.jpg"}, up.objects)
	assert.Equal(t, []transition{
		{id: "v1", next: models.MediaUploading},
		{id: "v1", next: models.MediaUploaded, url: "http://minio/media/video/a.ts"},
		{id: "p1", next: models.MediaUploading},
		{id: "p1", next: models.MediaUploaded, url: "http://minio/media/photo/b.jpg"},
	}, store.recorded())
}

func TestProcessBatchMarksFailedUpload(t *testing.T) {
	store := &fakeStore{pending: []models.Media{{ID: "v1", Kind: models.MediaVideo, Path: "/broken.ts"}}}
	d := NewDispatcher(store, &fakeUploader{failPath: "/broken.ts"}, "media", time.Second)

	d.processBatch(context.Background())

	assert.Equal(t, []transition{
		{id: "v1", next: models.MediaUploading},
		{id: "v1", next: models.MediaFailed},
	}, store.recorded())
}

func TestProcessBatchSkipsClaimedMedia(t *testing.T) {
	store := &fakeStore{
		pending:  []models.Media{{ID: "v1", Kind: models.MediaVideo, Path: "/a.ts"}},
		rejectID: "v1",
	}
	up := &fakeUploader{}
	d := NewDispatcher(store, up, "media", time.Second)

	d.processBatch(context.Background())

	assert.Empty(t, up.objects)
	assert.Empty(t, store.recorded())
}

func TestProcessBatchFetchError(t *testing.T) {
	store := &fakeStore{fetchErr: errors.New("db down")}
	up := &fakeUploader{}
	d := NewDispatcher(store, up, "media", time.Second)

	d.processBatch(context.Background())
	assert.Empty(t, up.objects)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &fakeStore{pending: []models.Media{{ID: "v1", Kind: models.MediaVideo, Path: "/a.ts"}}}
	d := NewDispatcher(store, &fakeUploader{}, "media", 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(store.recorded()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

type blockingUploader struct {
	started chan struct{}
}

func (u *blockingUploader) UploadFile(ctx context.Context, _, _, _ string) (string, error) {
	close(u.started)
	<-ctx.Done()
	return "", ctx.Err()
}

func TestCancelDuringUploadMarksFailed(t *testing.T) {
	store := &fakeStore{pending: []models.Media{{ID: "v1", Kind: models.MediaVideo, Path: "/a.ts"}}}
	up := &blockingUploader{started: make(chan struct{})}
	d := NewDispatcher(store, up, "media", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.processBatch(ctx)
		close(done)
	}()

	<-up.started
	cancel()
	<-done

	assert.Equal(t, []transition{
		{id: "v1", next: models.MediaUploading},
		{id: "v1", next: models.MediaFailed},
	}, store.recorded())
}
