//go:build !rp2040 && !rp2350

package platform

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.bug.st/serial"

	"sensoragent-go/x/logx"
	"sensoragent-go/x/shmring"
)

// hostSerialPort adapts a go.bug.st/serial port to halcore.UARTPort. A pump
// goroutine moves device reads into an SPSC ring so Buffered/Read never block.
type hostSerialPort struct {
	name string
	p    serial.Port
	rx   *shmring.Ring

	once sync.Once
	quit chan struct{}
}

const hostRxRing = 1024

func openHostSerial(path string, baud int) (*hostSerialPort, error) {
	if baud <= 0 {
		baud = 115200
	}
	p, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(100 * time.Millisecond); err != nil {
		_ = p.Close()
		return nil, err
	}
	s := &hostSerialPort{name: path, p: p, rx: shmring.New(hostRxRing), quit: make(chan struct{})}
	go s.pump()
	return s, nil
}

func (s *hostSerialPort) pump() {
	buf := make([]byte, 256)
	for {
		select {
		case <-s.quit:
			return
		default:
		}
		n, err := s.p.Read(buf)
		if n > 0 {
			if w := s.rx.TryWriteFrom(buf[:n]); w < n {
				logx.Warnf("serial %s: rx ring full, dropped %d bytes", s.name, n-w)
			}
		}
		if err != nil {
			var perr *serial.PortError
			if errors.As(err, &perr) && perr.Code() == serial.PortClosed {
				return
			}
			logx.Warnf("serial %s: read: %v", s.name, err)
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func (s *hostSerialPort) Write(p []byte) (int, error) { return s.p.Write(p) }
func (s *hostSerialPort) Buffered() int               { return s.rx.Available() }
func (s *hostSerialPort) Read(p []byte) (int, error)  { return s.rx.TryReadInto(p), nil }
func (s *hostSerialPort) Readable() <-chan struct{}   { return s.rx.Readable() }

func (s *hostSerialPort) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	for {
		if n := s.rx.TryReadInto(p); n > 0 {
			return n, nil
		}
		select {
		case <-s.rx.Readable():
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (s *hostSerialPort) SetBaudRate(br uint32) {
	if err := s.p.SetMode(&serial.Mode{BaudRate: int(br)}); err != nil {
		logx.Warnf("serial %s: set baud %d: %v", s.name, br, err)
	}
}

func (s *hostSerialPort) Close() error {
	s.once.Do(func() { close(s.quit) })
	return s.p.Close()
}
