package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/EchoMAV/PiStreamer/internal/database"
	"github.com/EchoMAV/PiStreamer/internal/logging"
	"github.com/EchoMAV/PiStreamer/internal/models"
)

const (
	defaultMediaLimit = 50
	maxMediaLimit     = 500
)

// ListMediaHandler возвращает каталог записей и фото, новые первыми
func (h *Handlers) ListMediaHandler(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		http.Error(w, "Media catalog disabled", http.StatusServiceUnavailable)
		return
	}

	limit := defaultMediaLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxMediaLimit)
	}

	media, err := h.media.ListMedia(r.Context(), limit)
	if err != nil {
		logging.For("api").Errorf("list media: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if media == nil {
		media = []models.Media{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(media); err != nil {
		logging.For("api").Errorf("error writing response: %v", err)
	}
}

// RetryMediaHandler возвращает неудачную выгрузку в очередь
func (h *Handlers) RetryMediaHandler(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		http.Error(w, "Media catalog disabled", http.StatusServiceUnavailable)
		return
	}

	mediaID := mux.Vars(r)["media_id"]
	err := h.media.UpdateMediaStatus(r.Context(), mediaID, models.MediaPending, "")
	switch {
	case errors.Is(err, database.ErrMediaNotFound):
		http.Error(w, "Media not found", http.StatusNotFound)
		return
	case errors.Is(err, database.ErrInvalidTransition):
		http.Error(w, "Invalid transition", http.StatusConflict)
		return
	case err != nil:
		logging.For("api").Errorf("retry media %s: %v", mediaID, err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	response := map[string]string{"id": mediaID, "status": string(models.MediaPending)}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.For("api").Errorf("error writing response: %v", err)
	}
}
