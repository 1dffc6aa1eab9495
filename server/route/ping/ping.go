package ping

import (
	"net/http"

	"github.com/gorilla/mux"
)

func pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("pong"))
}

// CreateRoute answers liveness probes. It does not touch the sensor.
func CreateRoute(r *mux.Router) {
	r.HandleFunc("", pingHandler).Methods(http.MethodGet)
}
