package co2

import (
	"context"
	"errors"

	"co2exporter/v0/pkg/measurement"
)

var (
	// ErrWouldBlock is returned by a Sensor that has no answer yet.
	ErrWouldBlock = errors.New("sensor not ready")

	// ErrTimedOut means the sensor gave no definite answer before the read
	// deadline.
	ErrTimedOut = errors.New("communication timeout")

	// ErrWorkerGone means the worker has stopped and no measurement will come.
	ErrWorkerGone = errors.New("measurement worker is gone")
)

// Sensor reads the CO2 concentration. ReadCO2 must not wait for the sensor:
// it returns ErrWouldBlock until a value or a hard error is available. A
// single call may still spend a bounded time polling its device, and a
// sensing cycle can overrun the read deadline by at most one such call.
type Sensor interface {
	ReadCO2() (uint16, error)
}

// Resetter is implemented by sensors that keep state between ReadCO2 calls.
// The worker calls Reset at the start of every sensing cycle, so that nothing
// left over from an earlier cycle, such as a lost or late reply, leaks into
// the next one.
type Resetter interface {
	Reset()
}

// SensorError wraps a hard error reported by the sensor.
type SensorError struct {
	Cause error
}

func (e *SensorError) Error() string { return e.Cause.Error() }

func (e *SensorError) Unwrap() error { return e.Cause }

// Outcome is the result of one sensing cycle: a ppm value when Err is nil,
// otherwise ErrTimedOut or a *SensorError.
type Outcome struct {
	PPM uint16
	Err error
}

// Ok returns a successful outcome.
func Ok(ppm uint16) Outcome { return Outcome{PPM: ppm} }

// Failed returns an outcome carrying err.
func Failed(err error) Outcome { return Outcome{Err: err} }

// Value unpacks the outcome.
func (o Outcome) Value() (uint16, error) { return o.PPM, o.Err }

type (
	Sender   = measurement.Sender[Outcome]
	Receiver = measurement.Receiver[Outcome]
)

// NewChannel creates the measurement channel between a Worker and its
// consumers, seeded with initial.
func NewChannel(initial Outcome) (*Sender, *Receiver) {
	return measurement.New(initial)
}

// Request triggers a fresh read through rx and waits for its outcome.
func Request(ctx context.Context, rx *Receiver) (uint16, error) {
	rx.Trigger()
	outcome, err := rx.NextChange(ctx)
	if errors.Is(err, measurement.ErrClosed) {
		return 0, ErrWorkerGone
	}
	if err != nil {
		return 0, err
	}
	return outcome.Value()
}
