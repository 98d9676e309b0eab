// Package veml7700 reads the Vishay VEML7700 ambient light sensor through a
// register cascade. Registers are 16 bits wide, little-endian.
//
// The driver runs the sensor at gain x1 and 100 ms integration, which covers
// roughly 0..3775 lux at 0.0576 lux/count.
package veml7700

import (
	"errors"
	"time"

	"sensoragent-go/drivers/regbus"
)

const Address = 0x10

const (
	regConfig = 0x00
	regPower  = 0x03
	regALS    = 0x04
	regWhite  = 0x05

	// Gain x1, 100 ms, persistence 1, interrupt off, powered on.
	configDefault = 0x0000
	shutdown      = 0x0001

	// LuxPerCount at gain x1 and 100 ms integration.
	LuxPerCount = 0.0576
)

var ErrNotConfigured = errors.New("veml7700: not configured")

type Config struct {
	// Settle is the wait for the first conversion after power-on. Default
	// 110 ms.
	Settle time.Duration
}

type Device struct {
	regs       regbus.Registers
	Address    uint16
	configured bool
}

func New(regs regbus.Registers) *Device { return &Device{regs: regs, Address: Address} }

// Configure powers the sensor on with the fixed gain and integration time.
func (d *Device) Configure(cfg Config) error {
	if cfg.Settle <= 0 {
		cfg.Settle = 110 * time.Millisecond
	}
	d.configured = false
	if err := d.write16(regConfig, configDefault); err != nil {
		return err
	}
	if err := d.write16(regPower, 0); err != nil {
		return err
	}
	time.Sleep(cfg.Settle)
	d.configured = true
	return nil
}

// Shutdown stops conversions until the next Configure.
func (d *Device) Shutdown() error {
	d.configured = false
	return d.write16(regConfig, shutdown)
}

// RawALS reads the ambient light channel in counts.
func (d *Device) RawALS() (uint16, error) { return d.read16(regALS) }

// RawWhite reads the white channel in counts.
func (d *Device) RawWhite() (uint16, error) { return d.read16(regWhite) }

// Lux reads the ambient light level. Above 1000 lux the reading is
// corrected for the sensor's non-linearity.
func (d *Device) Lux() (float64, error) {
	raw, err := d.RawALS()
	if err != nil {
		return 0, err
	}
	return Lux(raw), nil
}

// Lux converts ALS counts to lux.
func Lux(raw uint16) float64 {
	l := float64(raw) * LuxPerCount
	if l > 1000 {
		l = ((6.0135e-13*l-9.3924e-9)*l+8.1488e-5)*l*l + 1.0023*l
	}
	return l
}

func (d *Device) read16(reg uint8) (uint16, error) {
	if !d.configured {
		return 0, ErrNotConfigured
	}
	var b [2]byte
	if err := d.regs.ReadRegisters(d.Address, reg, b[:]); err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func (d *Device) write16(reg uint8, v uint16) error {
	return d.regs.WriteRegister(d.Address, reg, byte(v), byte(v>>8))
}
