package watchdog

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EchoMAV/PiStreamer/internal/logging"
	"github.com/EchoMAV/PiStreamer/internal/models"
)

const watchInterval = 30 * time.Second

type Store interface {
	FindStuckMedia(ctx context.Context, olderThan time.Duration) ([]models.Media, error)
	UpdateMediaStatus(ctx context.Context, id string, next models.MediaStatus, url string) error
}

// Watchdog returns uploads abandoned in uploading back to the offload queue.
type Watchdog struct {
	store      Store
	stuckAfter time.Duration
	interval   time.Duration
	log        *logrus.Entry
}

func New(store Store, stuckAfter time.Duration) *Watchdog {
	return &Watchdog{
		store:      store,
		stuckAfter: stuckAfter,
		interval:   watchInterval,
		log:        logging.For("watchdog"),
	}
}

func (w *Watchdog) Start(ctx context.Context) {
	// Проверяем сразу, чтобы подобрать записи, оставшиеся после рестарта
	w.checkMedia(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watchdog stopped")
			return
		case <-ticker.C:
			w.checkMedia(ctx)
		}
	}
}

func (w *Watchdog) checkMedia(ctx context.Context) {
	media, err := w.store.FindStuckMedia(ctx, w.stuckAfter)
	if err != nil {
		w.log.Errorf("failed to find stuck media: %v", err)
		return
	}

	for _, m := range media {
		w.log.Warnf("media %s stuck in %s, requeueing", m.ID, m.Status)
		if err := w.store.UpdateMediaStatus(ctx, m.ID, models.MediaPending, ""); err != nil {
			w.log.Errorf("failed to requeue media %s: %v", m.ID, err)
		}
	}
}
