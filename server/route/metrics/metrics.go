// metrics package serves the CO2 gauge to Prometheus scrapers. Every scrape
// triggers a fresh sensor read through the measurement channel.
package metrics

import (
	"net/http"

	"co2exporter/v0/pkg/co2"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Handler struct {
	rx       *co2.Receiver
	renderer *Renderer
	logger   *zap.Logger
}

// NewHandler creates the scrape handler. rx stays owned by the caller; the
// handler works on clones of it.
func NewHandler(rx *co2.Receiver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		rx:       rx,
		renderer: NewRenderer(),
		logger:   logger,
	}
}

// Measure triggers a read and waits for its outcome.
func (h *Handler) Measure(r *http.Request) (uint16, error) {
	rx := h.rx.Clone()
	defer rx.Close()

	return co2.Request(r.Context(), rx)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ppm, err := h.Measure(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	body, err := h.renderer.Render(ppm)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Debug("served co2 gauge", zap.Uint16("ppm", ppm))
	w.Header().Set("Content-Type", ContentType)
	w.Write(body)
}

// CreateRoute mounts the handler on a /metrics sub-router.
func CreateRoute(r *mux.Router, h *Handler) {
	r.Handle("", h).Methods(http.MethodGet)
}
