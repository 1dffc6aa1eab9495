package metrics

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const (
	MetricName = "co2_ppm"
	MetricHelp = "CO2 concentration [ppm]"
)

// ContentType of the rendered document.
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// Renderer encodes the CO2 gauge in the Prometheus text exposition format.
type Renderer struct {
	mutex    sync.Mutex
	registry *prometheus.Registry
	gauge    prometheus.Gauge
}

func NewRenderer() *Renderer {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricName,
		Help: MetricHelp,
	})
	registry := prometheus.NewRegistry()
	registry.MustRegister(gauge)

	return &Renderer{
		registry: registry,
		gauge:    gauge,
	}
}

// Render returns the exposition document for a gauge value of ppm.
func (r *Renderer) Render(ppm uint16) ([]byte, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.gauge.Set(float64(ppm))
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, family); err != nil {
			return nil, fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	return buf.Bytes(), nil
}
