package route

import (
	"co2exporter/v0/server/route/metrics"
	"co2exporter/v0/server/route/ping"
	mux "github.com/gorilla/mux"
)

func InitRootRoute(r *mux.Router, metricsHandler *metrics.Handler) {
	// Ping endpoint.
	pingSubrouter := r.PathPrefix("/ping").Subrouter()
	ping.CreateRoute(pingSubrouter)

	// Scrape endpoint.
	metricsSubrouter := r.PathPrefix("/metrics").Subrouter()
	metrics.CreateRoute(metricsSubrouter, metricsHandler)
}
