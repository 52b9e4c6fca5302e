package api

import (
	"encoding/json"
	"net/http"

	"github.com/EchoMAV/PiStreamer/internal/logging"
)

// GetStatusHandler отдаёт последний снимок состояния движка
func (h *Handlers) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.status.Status()); err != nil {
		logging.For("api").Errorf("error writing response: %v", err)
	}
}
