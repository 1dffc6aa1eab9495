package mhz19

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"co2exporter/v0/pkg/co2"
)

// fakePort hands out one queued chunk per Read and records writes.
type fakePort struct {
	written bytes.Buffer
	chunks  [][]byte
	readErr error
	closed  bool
}

func (p *fakePort) Write(b []byte) (int, error) { return p.written.Write(b) }

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.chunks) == 0 {
		if p.readErr != nil {
			return 0, p.readErr
		}
		return 0, io.EOF
	}
	n := copy(b, p.chunks[0])
	if n == len(p.chunks[0]) {
		p.chunks = p.chunks[1:]
	} else {
		p.chunks[0] = p.chunks[0][n:]
	}
	return n, nil
}

// lossyPort answers every request written to it with reply(ppm), except for
// the first one, which is dropped. Flush discards whatever has not been read
// yet.
type lossyPort struct {
	fakePort
	ppm      uint16
	requests int
	flushes  int
}

func (p *lossyPort) Write(b []byte) (int, error) {
	p.requests++
	if p.requests > 1 {
		p.chunks = append(p.chunks, reply(p.ppm))
	}
	return p.fakePort.Write(b)
}

func (p *lossyPort) Flush() error {
	p.flushes++
	p.chunks = nil
	return nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func reply(ppm uint16) []byte {
	frame := [frameLen]byte{startByte, cmdReadCO2, byte(ppm >> 8), byte(ppm), 0x47, 0, 0, 0, 0}
	frame[frameLen-1] = checksum(frame)
	return frame[:]
}

func TestRequestChecksum(t *testing.T) {
	if got := checksum(readCO2Request); got != readCO2Request[frameLen-1] {
		t.Fatalf("request checksum = 0x%02X, want 0x%02X", got, readCO2Request[frameLen-1])
	}
}

func TestReadCO2CompleteFrame(t *testing.T) {
	port := &fakePort{chunks: [][]byte{reply(800)}}
	sensor := New(port)

	ppm, err := sensor.ReadCO2()
	if err != nil {
		t.Fatalf("ReadCO2: %v", err)
	}
	if ppm != 800 {
		t.Fatalf("got %d ppm, want 800", ppm)
	}
	if !bytes.Equal(port.written.Bytes(), readCO2Request[:]) {
		t.Fatalf("sent % X, want % X", port.written.Bytes(), readCO2Request[:])
	}
}

func TestReadCO2SplitFrame(t *testing.T) {
	frame := reply(1234)
	port := &fakePort{chunks: [][]byte{frame[:4]}}
	sensor := New(port)

	if _, err := sensor.ReadCO2(); !errors.Is(err, co2.ErrWouldBlock) {
		t.Fatalf("partial frame: got %v, want ErrWouldBlock", err)
	}
	if _, err := sensor.ReadCO2(); !errors.Is(err, co2.ErrWouldBlock) {
		t.Fatalf("no data: got %v, want ErrWouldBlock", err)
	}

	port.chunks = append(port.chunks, frame[4:])
	ppm, err := sensor.ReadCO2()
	if err != nil {
		t.Fatalf("ReadCO2: %v", err)
	}
	if ppm != 1234 {
		t.Fatalf("got %d ppm, want 1234", ppm)
	}
	if port.written.Len() != frameLen {
		t.Fatalf("request sent %d bytes, want a single %d byte request", port.written.Len(), frameLen)
	}
}

func TestReadCO2SkipsLineNoise(t *testing.T) {
	port := &fakePort{chunks: [][]byte{{0x00, 0x13}, reply(450)}}
	sensor := New(port)

	var (
		ppm uint16
		err error
	)
	for i := 0; i < 3; i++ {
		if ppm, err = sensor.ReadCO2(); !errors.Is(err, co2.ErrWouldBlock) {
			break
		}
	}
	if err != nil {
		t.Fatalf("ReadCO2: %v", err)
	}
	if ppm != 450 {
		t.Fatalf("got %d ppm, want 450", ppm)
	}
}

func TestReadCO2BadChecksum(t *testing.T) {
	frame := reply(800)
	frame[frameLen-1]++
	sensor := New(&fakePort{chunks: [][]byte{frame}})

	_, err := sensor.ReadCO2()
	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("got %v, want *FrameError", err)
	}
}

func TestReadCO2UnexpectedCommand(t *testing.T) {
	frame := reply(800)
	frame[1] = 0x99
	frame[frameLen-1] = checksum([frameLen]byte(frame))
	sensor := New(&fakePort{chunks: [][]byte{frame}})

	var frameErr *FrameError
	if _, err := sensor.ReadCO2(); !errors.As(err, &frameErr) {
		t.Fatalf("got %v, want *FrameError", err)
	}
}

func TestReadCO2PortError(t *testing.T) {
	errPort := errors.New("device unplugged")
	port := &fakePort{readErr: errPort}
	sensor := New(port)

	if _, err := sensor.ReadCO2(); !errors.Is(err, errPort) {
		t.Fatalf("got %v, want %v", err, errPort)
	}

	// The next read starts over with a new request.
	port.readErr = nil
	port.chunks = [][]byte{reply(500)}
	if ppm, err := sensor.ReadCO2(); err != nil || ppm != 500 {
		t.Fatalf("ReadCO2 = %d, %v; want 500, nil", ppm, err)
	}
	if port.written.Len() != 2*frameLen {
		t.Fatalf("expected two requests, got %d bytes written", port.written.Len())
	}
}

func TestSensorWithWorker(t *testing.T) {
	sensor := New(&fakePort{chunks: [][]byte{reply(800)}})
	tx, _ := co2.NewChannel(co2.Ok(0))

	outcome := co2.NewWorker(sensor, tx).Measure()
	if outcome.Err != nil || outcome.PPM != 800 {
		t.Fatalf("got %+v, want 800 ppm", outcome)
	}
}

func TestWorkerRecoversFromLostReply(t *testing.T) {
	port := &lossyPort{ppm: 800}
	tx, _ := co2.NewChannel(co2.Ok(0))
	worker := co2.NewWorker(New(port), tx, co2.WithReadTimeout(20*time.Millisecond))

	if outcome := worker.Measure(); !errors.Is(outcome.Err, co2.ErrTimedOut) {
		t.Fatalf("first cycle = %+v, want ErrTimedOut", outcome)
	}
	if outcome := worker.Measure(); outcome.Err != nil || outcome.PPM != 800 {
		t.Fatalf("second cycle = %+v, want 800 ppm", outcome)
	}
	if port.requests != 2 {
		t.Fatalf("sent %d requests, want one per cycle", port.requests)
	}
}

func TestWorkerDiscardsLateReply(t *testing.T) {
	port := &lossyPort{ppm: 800}
	tx, _ := co2.NewChannel(co2.Ok(0))
	worker := co2.NewWorker(New(port), tx, co2.WithReadTimeout(20*time.Millisecond))

	worker.Measure()
	// The reply to the first request shows up after its cycle gave up.
	port.chunks = append(port.chunks, reply(500))

	outcome := worker.Measure()
	if outcome.Err != nil || outcome.PPM != 800 {
		t.Fatalf("second cycle = %+v, want the fresh 800 ppm reading", outcome)
	}
	if port.flushes != 2 {
		t.Fatalf("port flushed %d times, want once per cycle", port.flushes)
	}
}

func TestResetDropsPartialFrame(t *testing.T) {
	frame := reply(500)
	port := &fakePort{chunks: [][]byte{frame[:5]}}
	sensor := New(port)

	if _, err := sensor.ReadCO2(); !errors.Is(err, co2.ErrWouldBlock) {
		t.Fatalf("partial frame: got %v, want ErrWouldBlock", err)
	}

	sensor.Reset()
	port.chunks = [][]byte{reply(900)}
	if ppm, err := sensor.ReadCO2(); err != nil || ppm != 900 {
		t.Fatalf("ReadCO2 = %d, %v; want 900, nil", ppm, err)
	}
	if port.written.Len() != 2*frameLen {
		t.Fatalf("expected a new request after Reset, got %d bytes written", port.written.Len())
	}
}

func TestClose(t *testing.T) {
	port := &fakePort{}
	if err := New(port).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !port.closed {
		t.Fatal("port was not closed")
	}
}
