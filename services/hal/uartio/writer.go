package uartio

import (
	"io"
	"sync"
)

// LineWriter writes CRLF-terminated lines. Safe for concurrent use: the
// sampling and command goroutines share one output port.
type LineWriter struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
	// OnError, when set, receives write failures; the line is dropped.
	OnError func(error)
}

func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// WriteLine sends s followed by CRLF as a single write.
func (l *LineWriter) WriteLine(s string) {
	l.mu.Lock()
	l.buf = append(l.buf[:0], s...)
	l.buf = append(l.buf, '\r', '\n')
	_, err := l.w.Write(l.buf)
	l.mu.Unlock()
	if err != nil && l.OnError != nil {
		l.OnError(err)
	}
}
