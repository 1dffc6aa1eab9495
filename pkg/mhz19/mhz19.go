// The mhz19 package speaks the UART protocol of the Winsen MH-Z19C CO2
// sensor.
//
// Reads are non-blocking: the first ReadCO2 call of a measurement sends the
// request and every call drains whatever reply bytes have arrived, returning
// co2.ErrWouldBlock until the 9 byte reply frame is complete. Reset abandons
// an unanswered request and discards unread input, so a reply that was lost
// or arrives late never stalls or pollutes the next measurement.
//
// tarm/serial cannot poll a port without waiting: the shortest read timeout
// is one decisecond. A ReadCO2 call with no data waiting therefore takes up
// to portReadTimeout, which bounds how far a cycle overruns its deadline.
package mhz19

import (
	"errors"
	"fmt"
	"io"
	"time"

	"co2exporter/v0/pkg/co2"
	"github.com/tarm/serial"
)

const (
	BaudRate = 9600

	frameLen    = 9
	startByte   = 0xFF
	cmdReadCO2  = 0x86
	sensorIndex = 0x01

	// tarm/serial rounds this to VTIME deciseconds and rejects anything
	// shorter; a read returns as soon as any byte arrives.
	portReadTimeout = 100 * time.Millisecond
)

var readCO2Request = [frameLen]byte{startByte, sensorIndex, cmdReadCO2, 0, 0, 0, 0, 0, 0x79}

// FrameError reports a reply frame that failed validation.
type FrameError struct {
	Frame  [frameLen]byte
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("mhz19: invalid reply % X: %s", e.Frame[:], e.Reason)
}

type Sensor struct {
	port    io.ReadWriter
	closer  io.Closer
	pending bool
	buf     []byte
}

// Open opens the sensor's UART at 9600 8N1.
func Open(path string) (*Sensor, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        BaudRate,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: portReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("mhz19: failed to open %s: %w", path, err)
	}
	return New(port), nil
}

// New wraps an already configured port.
func New(port io.ReadWriteCloser) *Sensor {
	return &Sensor{
		port:   port,
		closer: port,
		buf:    make([]byte, 0, frameLen),
	}
}

// flusher is implemented by ports that can discard buffered input, such as
// *serial.Port.
type flusher interface {
	Flush() error
}

// Reset implements co2.Resetter. The next ReadCO2 sends a fresh request.
func (s *Sensor) Reset() {
	s.pending = false
	s.buf = s.buf[:0]
	if f, ok := s.port.(flusher); ok {
		// A failed flush shows up as a bad frame at worst.
		_ = f.Flush()
	}
}

// ReadCO2 implements co2.Sensor.
func (s *Sensor) ReadCO2() (uint16, error) {
	if !s.pending {
		if _, err := s.port.Write(readCO2Request[:]); err != nil {
			return 0, fmt.Errorf("mhz19: failed to send request: %w", err)
		}
		s.pending = true
		s.buf = s.buf[:0]
	}

	var chunk [frameLen]byte
	n, err := s.port.Read(chunk[:frameLen-len(s.buf)])
	s.buf = append(s.buf, chunk[:n]...)
	if err != nil && !errors.Is(err, io.EOF) {
		s.pending = false
		return 0, fmt.Errorf("mhz19: failed to read reply: %w", err)
	}

	// Drop line noise in front of the frame.
	for len(s.buf) > 0 && s.buf[0] != startByte {
		s.buf = s.buf[1:]
	}
	if len(s.buf) < frameLen {
		return 0, co2.ErrWouldBlock
	}

	s.pending = false
	var frame [frameLen]byte
	copy(frame[:], s.buf)
	return decode(frame)
}

// Close releases the serial port.
func (s *Sensor) Close() error {
	return s.closer.Close()
}

func decode(frame [frameLen]byte) (uint16, error) {
	if frame[1] != cmdReadCO2 {
		return 0, &FrameError{Frame: frame, Reason: fmt.Sprintf("unexpected command 0x%02X", frame[1])}
	}
	if sum := checksum(frame); sum != frame[frameLen-1] {
		return 0, &FrameError{Frame: frame, Reason: fmt.Sprintf("checksum 0x%02X, want 0x%02X", frame[frameLen-1], sum)}
	}
	return uint16(frame[2])<<8 | uint16(frame[3]), nil
}

func checksum(frame [frameLen]byte) byte {
	var sum byte
	for _, b := range frame[1 : frameLen-1] {
		sum += b
	}
	return 0xFF - sum + 1
}
