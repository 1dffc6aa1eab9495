// remotewrite package pushes CO2 readings to a Prometheus remote-write
// endpoint on a fixed interval.
package remotewrite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"co2exporter/v0/pkg/co2"
	"github.com/eryajf/promwrite"
	"go.uber.org/zap"
)

const (
	DefaultInterval = 15 * time.Second
	MetricName      = "co2_ppm"
)

type Pusher struct {
	client   *promwrite.Client
	rx       *co2.Receiver
	interval time.Duration
	instance string
	logger   *zap.Logger
}

type Option func(*Pusher)

// WithInterval sets the push interval. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(p *Pusher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithInstance sets the instance label. It defaults to the host name.
func WithInstance(instance string) Option {
	return func(p *Pusher) {
		if instance != "" {
			p.instance = instance
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pusher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pusher writing to url. It holds its own clone of rx, which
// Run closes on exit.
func New(url string, rx *co2.Receiver, opts ...Option) *Pusher {
	instance, err := os.Hostname()
	if err != nil {
		instance = "localhost"
	}
	p := &Pusher{
		client:   promwrite.NewClient(url),
		rx:       rx.Clone(),
		interval: DefaultInterval,
		instance: instance,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Push measures once, waiting at most one interval, and writes the reading.
func (p *Pusher) Push(ctx context.Context) error {
	measureCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	ppm, err := co2.Request(measureCtx, p.rx)
	if err != nil {
		return fmt.Errorf("measurement failed: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	req := &promwrite.WriteRequest{
		TimeSeries: []promwrite.TimeSeries{{
			Labels: []promwrite.Label{
				{Name: "__name__", Value: MetricName},
				{Name: "instance", Value: p.instance},
			},
			Sample: promwrite.Sample{
				Time:  time.Now(),
				Value: float64(ppm),
			},
		}},
	}
	if _, err := p.client.Write(writeCtx, req); err != nil {
		return fmt.Errorf("writing time series failed: %w", err)
	}

	p.logger.Debug("pushed co2 reading", zap.Uint16("ppm", ppm))
	return nil
}

// Run pushes every interval until ctx is done or the worker goes away.
// Failed pushes are logged and retried on the next tick.
func (p *Pusher) Run(ctx context.Context) {
	defer p.rx.Close()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("starting remote write", zap.Duration("interval", p.interval), zap.String("instance", p.instance))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := p.Push(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("remote write failed", zap.Error(err))
			if errors.Is(err, co2.ErrWorkerGone) {
				return
			}
		}
	}
}
