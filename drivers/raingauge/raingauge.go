// Package raingauge counts tipping-bucket events from an analogue input.
// A tip shows as the ADC reading rising above a threshold; the caller
// debounces by not polling again until the bucket has settled.
package raingauge

import (
	"sync/atomic"

	"sensoragent-go/services/hal/halcore"
)

// DefaultThreshold is the reading (mV) above which a tip is counted.
const DefaultThreshold = 1000

type Gauge struct {
	adc       halcore.ADC
	Threshold uint16

	count atomic.Uint32
}

func New(adc halcore.ADC) *Gauge {
	return &Gauge{adc: adc, Threshold: DefaultThreshold}
}

// Poll samples the input once. On a tip the counter is incremented and the
// new total returned.
func (g *Gauge) Poll() (tipped bool, total uint32, err error) {
	v, err := g.adc.Read()
	if err != nil {
		return false, g.count.Load(), err
	}
	if v > g.Threshold {
		return true, g.count.Add(1), nil
	}
	return false, g.count.Load(), nil
}

// Count returns the tips seen since the last Reset. Safe from any goroutine.
func (g *Gauge) Count() uint32 { return g.count.Load() }

func (g *Gauge) Reset() { g.count.Store(0) }
