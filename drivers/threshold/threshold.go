// Package threshold turns an analogue input into a two-state reading, the
// way Hall-effect and infrared breakout boards expose their comparator
// output.
package threshold

import "sensoragent-go/services/hal/halcore"

// Detector compares one ADC channel against Level.
type Detector struct {
	adc halcore.ADC

	// Level is the switching point in mV.
	Level uint16
	// ActiveLow makes readings at or below Level active. Otherwise readings
	// at or above Level are active.
	ActiveLow bool
}

func New(adc halcore.ADC, level uint16, activeLow bool) *Detector {
	return &Detector{adc: adc, Level: level, ActiveLow: activeLow}
}

// Read samples the input once and returns the state with the raw value.
func (d *Detector) Read() (active bool, mv uint16, err error) {
	mv, err = d.adc.Read()
	if err != nil {
		return false, 0, err
	}
	return d.Active(mv), mv, nil
}

// Active classifies a reading.
func (d *Detector) Active(mv uint16) bool {
	if d.ActiveLow {
		return mv <= d.Level
	}
	return mv >= d.Level
}
