package agent

import (
	"sync"
	"time"
)

// Reading is one decoded sample.
type Reading interface {
	// Telemetry renders the line sent on the output port.
	Telemetry() string
}

// DeviceState is the live configuration and last good sample. It is shared
// by the sampling and command goroutines; every access goes through the
// mutex so the interval is never observed half-written.
type DeviceState struct {
	mu       sync.Mutex
	interval time.Duration
	last     Reading
	samples  uint64
}

func (s *DeviceState) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// IntervalSeconds is the interval as reported on the wire.
func (s *DeviceState) IntervalSeconds() int {
	return int(s.Interval() / time.Second)
}

// SetInterval ignores non-positive values.
func (s *DeviceState) SetInterval(d time.Duration) bool {
	if d <= 0 {
		return false
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	return true
}

// LastSample returns the most recent reading, or nil before the first.
func (s *DeviceState) LastSample() Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Samples counts accepted readings since the last reset.
func (s *DeviceState) Samples() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

func (s *DeviceState) setSample(r Reading) {
	s.mu.Lock()
	s.last = r
	s.samples++
	s.mu.Unlock()
}

func (s *DeviceState) reset(interval time.Duration) {
	s.mu.Lock()
	s.interval = interval
	s.last = nil
	s.samples = 0
	s.mu.Unlock()
}
