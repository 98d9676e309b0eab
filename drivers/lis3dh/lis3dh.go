// Package lis3dh reads the ST LIS3DH accelerometer in 12-bit high
// resolution mode. The device strap selects one of two addresses; Configure
// probes both on WHO_AM_I and binds the first that answers 0x33.
package lis3dh

import (
	"errors"
	"fmt"

	"sensoragent-go/drivers/regbus"
	"sensoragent-go/x/mathx"
)

// Candidate addresses in probe order.
var Addresses = []uint16{0x18, 0x19}

const (
	regWhoAmI = 0x0F
	whoAmI    = 0x33

	regCtrl1 = 0x20
	regCtrl4 = 0x23
	regOutX  = 0x28
	autoInc  = 0x80

	ctrl1Enable50Hz = 0x57 // ODR 50 Hz, X/Y/Z enabled
	ctrl4HighRes    = 0x08

	// StandardGravity converts g to m/s².
	StandardGravity = 9.80665
	milliG          = 0.001
)

var ErrNotConfigured = errors.New("lis3dh: not configured")

// Raw holds 12-bit counts (1 mg/LSB in high resolution at ±2 g).
type Raw struct{ X, Y, Z int16 }

// Sample is acceleration in m/s².
type Sample struct{ X, Y, Z float64 }

type Device struct {
	regs    regbus.Registers
	Address uint16 // bound by Configure; 0 until then

	buf [6]byte
}

func New(regs regbus.Registers) *Device { return &Device{regs: regs} }

// Configure probes the candidate addresses and writes the control registers.
// It may be called again to rebind after the bus changes.
func (d *Device) Configure() error {
	d.Address = 0
	addr, err := regbus.Probe(d.regs, Addresses, regWhoAmI, whoAmI)
	if err != nil {
		return fmt.Errorf("LIS3DH not found on I2C bus: %w", err)
	}
	if err := d.regs.WriteRegister(addr, regCtrl1, ctrl1Enable50Hz); err != nil {
		return err
	}
	if err := d.regs.WriteRegister(addr, regCtrl4, ctrl4HighRes); err != nil {
		return err
	}
	d.Address = addr
	return nil
}

// ReadRaw reads the three output registers in one auto-increment burst.
func (d *Device) ReadRaw() (Raw, error) {
	if d.Address == 0 {
		return Raw{}, ErrNotConfigured
	}
	if err := d.regs.ReadRegisters(d.Address, regOutX|autoInc, d.buf[:]); err != nil {
		return Raw{}, err
	}
	return Raw{
		X: axis(d.buf[0], d.buf[1]),
		Y: axis(d.buf[2], d.buf[3]),
		Z: axis(d.buf[4], d.buf[5]),
	}, nil
}

// Read returns acceleration in m/s².
func (d *Device) Read() (Sample, error) {
	r, err := d.ReadRaw()
	if err != nil {
		return Sample{}, err
	}
	return r.Scale(), nil
}

// left-justified 12-bit value in a little-endian word
func axis(lo, hi byte) int16 {
	return int16(mathx.SignExtend(uint16(hi)<<8|uint16(lo), 16) >> 4)
}

func (r Raw) Scale() Sample {
	k := milliG * StandardGravity
	return Sample{X: float64(r.X) * k, Y: float64(r.Y) * k, Z: float64(r.Z) * k}
}
