// Package uartio moves bytes between serial ports and the agent: a bounded
// reader goroutine delivering raw RX chunks, and a CRLF line writer.
package uartio

import (
	"context"
	"time"

	"sensoragent-go/services/hal/halcore"
	"sensoragent-go/x/mathx"
)

// Chunk is one raw read from a port. Chunk boundaries carry no meaning.
type Chunk struct {
	Data []byte
	TS   time.Time
}

type ReaderCfg struct {
	Port     halcore.UARTPort
	MaxFrame int // clamp 16..256
}

type Reader struct {
	outQ chan Chunk
}

func New(outBuf int) *Reader {
	if outBuf <= 0 {
		outBuf = 16
	}
	return &Reader{outQ: make(chan Chunk, outBuf)}
}

func (r *Reader) Chunks() <-chan Chunk { return r.outQ }

// Register starts a reader goroutine for a port and returns its cancel.
// Unlike telemetry taps, command bytes are never dropped: delivery blocks
// until the consumer takes the chunk or the context ends.
func (r *Reader) Register(ctx context.Context, cfg ReaderCfg) func() {
	max := mathx.Clamp(cfg.MaxFrame, 16, 256)
	cctx, cancel := context.WithCancel(ctx)

	go func() {
		buf := make([]byte, max)
		for {
			select {
			case <-cctx.Done():
				return
			case <-cfg.Port.Readable():
			}
			// The readable edge is coalesced; drain everything buffered.
			for {
				rctx, rcancel := context.WithTimeout(cctx, 250*time.Millisecond)
				n, _ := cfg.Port.RecvSomeContext(rctx, buf)
				rcancel()
				if n <= 0 {
					break
				}
				payload := append([]byte(nil), buf[:n]...)
				select {
				case r.outQ <- Chunk{Data: payload, TS: time.Now()}:
				case <-cctx.Done():
					return
				}
				if cfg.Port.Buffered() == 0 {
					break
				}
			}
		}
	}()

	return cancel
}

// Poll performs one non-blocking read for cooperative loops. It returns nil
// when nothing is buffered.
func Poll(port halcore.UARTPort, buf []byte) []byte {
	if port.Buffered() == 0 {
		return nil
	}
	n, _ := port.Read(buf)
	if n <= 0 {
		return nil
	}
	return append([]byte(nil), buf[:n]...)
}
