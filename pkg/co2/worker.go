// The co2 package contains the worker owning the CO2 sensor. It reads the
// sensor whenever a consumer triggers the measurement channel and publishes
// the outcome back to every waiting consumer.
package co2

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultReadTimeout bounds a single read cycle.
const DefaultReadTimeout = 200 * time.Millisecond

type Worker struct {
	sensor      Sensor
	tx          *Sender
	readTimeout time.Duration
	logger      *zap.Logger
}

type WorkerOption func(*Worker)

// WithReadTimeout sets the read deadline of a cycle. Non-positive values keep
// the default.
func WithReadTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.readTimeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWorker creates a worker which takes exclusive ownership of sensor until
// Run returns it.
func NewWorker(sensor Sensor, tx *Sender, opts ...WorkerOption) *Worker {
	worker := &Worker{
		sensor:      sensor,
		tx:          tx,
		readTimeout: DefaultReadTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(worker)
	}
	return worker
}

// Run serves measurement requests until every receiver is closed or ctx is
// done. It closes the sender on exit and hands the sensor back.
func (w *Worker) Run(ctx context.Context) Sensor {
	defer w.tx.Close()

	for {
		if err := w.tx.WaitForTrigger(ctx); err != nil {
			w.logger.Debug("co2 worker stopping", zap.Error(err))
			return w.sensor
		}

		outcome := w.Measure()
		if outcome.Err != nil {
			w.logger.Warn("co2 measurement failed", zap.Error(outcome.Err))
		} else {
			w.logger.Debug("co2 measurement", zap.Uint16("ppm", outcome.PPM))
		}

		if err := w.tx.Publish(outcome); err != nil {
			w.logger.Info("co2 worker stopping, nobody is listening", zap.Error(err))
			return w.sensor
		}
	}
}

// Measure performs one bounded read and classifies the result.
func (w *Worker) Measure() Outcome {
	if r, ok := w.sensor.(Resetter); ok {
		r.Reset()
	}
	ppm, err := blockWithTimeout(w.readTimeout, w.sensor.ReadCO2)
	switch {
	case err == nil:
		return Ok(ppm)
	case errors.Is(err, ErrWouldBlock):
		return Failed(ErrTimedOut)
	default:
		return Failed(&SensorError{Cause: err})
	}
}

// blockWithTimeout retries read without delay while it reports
// ErrWouldBlock, until timeout has elapsed.
func blockWithTimeout(timeout time.Duration, read func() (uint16, error)) (uint16, error) {
	abortAt := time.Now().Add(timeout)
	for time.Now().Before(abortAt) {
		v, err := read()
		if !errors.Is(err, ErrWouldBlock) {
			return v, err
		}
	}
	return 0, ErrWouldBlock
}
