package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/EchoMAV/PiStreamer/internal/models"
	"github.com/EchoMAV/PiStreamer/internal/runner"
)

type StatusSource interface {
	Status() runner.Status
}

type MediaStore interface {
	ListMedia(ctx context.Context, limit int) ([]models.Media, error)
	UpdateMediaStatus(ctx context.Context, id string, next models.MediaStatus, url string) error
}

type Handlers struct {
	status StatusSource
	// media is nil when the catalog is disabled.
	media MediaStore
}

func NewHandlers(status StatusSource, media MediaStore) *Handlers {
	return &Handlers{status: status, media: media}
}

// NewRouter регистрирует обработчики API
func NewRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", h.GetStatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/media", h.ListMediaHandler).Methods(http.MethodGet)
	r.HandleFunc("/media/{media_id}/retry", h.RetryMediaHandler).Methods(http.MethodPost)
	return r
}
