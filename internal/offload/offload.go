package offload

import (
	"context"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EchoMAV/PiStreamer/internal/logging"
	"github.com/EchoMAV/PiStreamer/internal/models"
)

const (
	batchSize   = 10
	markTimeout = 5 * time.Second
)

type Store interface {
	GetPendingMedia(ctx context.Context, limit int) ([]models.Media, error)
	UpdateMediaStatus(ctx context.Context, id string, next models.MediaStatus, url string) error
}

type Uploader interface {
	UploadFile(ctx context.Context, bucketName, objectName, path string) (string, error)
}

// Dispatcher periodically moves catalogued media from local storage into the bucket.
type Dispatcher struct {
	store    Store
	uploader Uploader
	bucket   string
	interval time.Duration
	log      *logrus.Entry
}

func NewDispatcher(store Store, uploader Uploader, bucket string, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		store:    store,
		uploader: uploader,
		bucket:   bucket,
		interval: interval,
		log:      logging.For("offload"),
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("offload dispatcher stopped")
			return
		case <-ticker.C:
			d.processBatch(ctx)
		}
	}
}

func (d *Dispatcher) processBatch(ctx context.Context) {
	// Читаем ожидающие выгрузки файлы
	media, err := d.store.GetPendingMedia(ctx, batchSize)
	if err != nil {
		d.log.Errorf("error fetching pending media: %v", err)
		return
	}

	for _, m := range media {
		if ctx.Err() != nil {
			return
		}
		d.upload(ctx, m)
	}
}

func (d *Dispatcher) upload(ctx context.Context, m models.Media) {
	// Захватываем запись, чтобы её не взял параллельный проход
	if err := d.store.UpdateMediaStatus(ctx, m.ID, models.MediaUploading, ""); err != nil {
		d.log.Warnf("skip media %s: %v", m.ID, err)
		return
	}

	objectName := string(m.Kind) + "/" + filepath.Base(m.Path)
	url, err := d.uploader.UploadFile(ctx, d.bucket, objectName, m.Path)

	// Итог выгрузки фиксируем даже если ctx уже отменён
	markCtx, cancel := context.WithTimeout(context.Background(), markTimeout)
	defer cancel()

	if err != nil {
		d.log.Errorf("failed to upload %s: %v", m.Path, err)
		if err := d.store.UpdateMediaStatus(markCtx, m.ID, models.MediaFailed, ""); err != nil {
			d.log.Errorf("failed to mark media %s as failed: %v", m.ID, err)
		}
		return
	}

	if err := d.store.UpdateMediaStatus(markCtx, m.ID, models.MediaUploaded, url); err != nil {
		d.log.Errorf("failed to mark media %s as uploaded: %v", m.ID, err)
		return
	}
	d.log.Infof("uploaded %s to %s", m.Path, url)
}
