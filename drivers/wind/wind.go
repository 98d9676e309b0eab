// Package wind decodes the ASCII records of a serial anemometer/vane:
//
//	WS,<speed>,WD,<direction>\r\n
//
// Records are comma-separated key/value pairs; keys are case-insensitive and
// unknown keys are skipped. A malformed pair ends its record silently, so
// line noise never clears a good value.
package wind

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
)

// MaxRecord bounds a record without a terminator; longer input is dropped.
const MaxRecord = 256

// Sample is the latest speed and direction, in the sensor's units.
type Sample struct {
	Speed     float64
	Direction float64
}

// Parser accumulates sensor bytes. Feed and Latest may be called from
// different goroutines.
type Parser struct {
	mu      sync.Mutex
	buf     []byte
	speed   float64
	dir     float64
	haveSpd bool
	haveDir bool
	records uint64
}

// Feed consumes a chunk and decodes every record it completes.
func (p *Parser) Feed(chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = append(p.buf, chunk...)
	for {
		i := bytes.IndexAny(p.buf, "\r\n")
		if i < 0 {
			break
		}
		p.decodeLocked(string(p.buf[:i]))
		p.buf = p.buf[i+1:]
	}
	if len(p.buf) > MaxRecord {
		p.buf = p.buf[:0]
	}
}

func (p *Parser) decodeLocked(rec string) {
	rec = strings.TrimSpace(rec)
	if rec == "" {
		return
	}
	p.records++
	fields := strings.Split(rec, ",")
	for i := 0; i+1 < len(fields); i += 2 {
		key := strings.ToUpper(strings.TrimSpace(fields[i]))
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64)
		if err != nil {
			return
		}
		switch key {
		case "WS":
			p.speed, p.haveSpd = v, true
		case "WD":
			p.dir, p.haveDir = v, true
		}
	}
}

// Latest returns the most recent values once both have been seen.
func (p *Parser) Latest() (Sample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.haveSpd || !p.haveDir {
		return Sample{}, false
	}
	return Sample{Speed: p.speed, Direction: p.dir}, true
}

// Records counts non-empty records seen, decoded or not.
func (p *Parser) Records() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records
}

// Reset forgets the values and any partial record.
func (p *Parser) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = p.buf[:0]
	p.speed, p.dir = 0, 0
	p.haveSpd, p.haveDir = false, false
}
