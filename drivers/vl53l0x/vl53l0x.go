// Package vl53l0x takes single-shot range readings from the ST VL53L0X
// time-of-flight sensor through a register cascade. It uses the sensor's
// power-on defaults and does not load ST's tuning settings, so readings are
// only as accurate as the factory configuration.
package vl53l0x

import (
	"errors"
	"fmt"
	"time"

	"sensoragent-go/drivers/regbus"
	"sensoragent-go/errcode"
)

const Address = 0x29

const (
	regSysRangeStart   = 0x00
	regInterruptClear  = 0x0B
	regResultRangeMSB  = 0x1E
	regModelID         = 0xC0
	modelID            = 0xEE
	rangeStartOneShot  = 0x01
	interruptClearFlag = 0x01
)

var (
	ErrNotConfigured = errors.New("vl53l0x: not configured")
	// ErrOutOfRange marks the sensor's "no target" code.
	ErrOutOfRange = &errcode.E{C: errcode.DecodeError, Op: "vl53l0x", Msg: "no target in range"}
)

// OutOfRangeMM is reported when nothing reflects the beam.
const OutOfRangeMM = 8190

type Config struct {
	// Measure is the wait between starting a range and reading it. Default
	// 50 ms.
	Measure time.Duration
}

type Device struct {
	regs       regbus.Registers
	Address    uint16
	measure    time.Duration
	configured bool
}

func New(regs regbus.Registers) *Device {
	return &Device{regs: regs, Address: Address, measure: 50 * time.Millisecond}
}

// Configure checks the model id.
func (d *Device) Configure(cfg Config) error {
	d.configured = false
	if cfg.Measure > 0 {
		d.measure = cfg.Measure
	}
	if _, err := regbus.Probe(d.regs, []uint16{d.Address}, regModelID, modelID); err != nil {
		return fmt.Errorf("VL53L0X not found on I2C bus: %w", err)
	}
	d.configured = true
	return nil
}

// RangeMM runs one measurement and returns the distance in millimetres.
func (d *Device) RangeMM() (uint16, error) {
	if !d.configured {
		return 0, ErrNotConfigured
	}
	if err := d.regs.WriteRegister(d.Address, regSysRangeStart, rangeStartOneShot); err != nil {
		return 0, err
	}
	time.Sleep(d.measure)
	var b [2]byte
	if err := d.regs.ReadRegisters(d.Address, regResultRangeMSB, b[:]); err != nil {
		return 0, err
	}
	if err := d.regs.WriteRegister(d.Address, regInterruptClear, interruptClearFlag); err != nil {
		return 0, err
	}
	mm := uint16(b[0])<<8 | uint16(b[1])
	if mm >= OutOfRangeMM {
		return mm, ErrOutOfRange
	}
	return mm, nil
}

// Centimetres runs one measurement and returns the distance in cm.
func (d *Device) Centimetres() (float64, error) {
	mm, err := d.RangeMM()
	if err != nil {
		return 0, err
	}
	return float64(mm) / 10, nil
}
