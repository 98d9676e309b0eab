// Package ltr390 reads the UV channel of the Lite-On LTR390.
//
//	d := ltr390.New(regbus.New(bus))
//	err := d.Configure(ltr390.Config{}) // UVS mode, 18-bit/100 ms, gain 3x
//	uv, err := d.ReadUV()               // ErrNotReady until a conversion lands
package ltr390

import (
	"errors"
	"time"

	"sensoragent-go/drivers/regbus"
	"sensoragent-go/errcode"
)

// I2C address.
const Address = 0x53

// Registers and values.
const (
	regMainCtrl   = 0x00
	regMeasRate   = 0x04
	regGain       = 0x05
	regMainStatus = 0x07
	regUVSData    = 0x10

	modeUVS        = 0x0A
	res18Bit100ms  = 0x20
	gain3x         = 0x01
	statusDataRdy  = 0x08
	uvsDataMask    = 0x0FFFFF // 20 significant bits
	defaultRetries = 20
)

var (
	ErrNotReady = errors.New("ltr390: not ready")
	ErrTimeout  = &errcode.E{C: errcode.Timeout, Op: "ltr390", Msg: "data never became ready"}
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x53 if zero.
	Address uint16
	// Settle follows the control writes. Default 100 ms.
	Settle time.Duration
	// PollInterval between status reads in WaitReady. Default 100 ms.
	PollInterval time.Duration
	// Retries bounds WaitReady. Default 20.
	Retries int
}

type Device struct {
	regs    regbus.Registers
	Address uint16

	cfg Config
	buf [3]byte
}

func New(regs regbus.Registers) *Device {
	return &Device{regs: regs, Address: Address}
}

// Configure writes the measurement setup, then waits for the first
// conversion. A timeout here is returned but the device stays usable; later
// reads report ErrNotReady until data arrives.
func (d *Device) Configure(cfg Config) error {
	if cfg.Address != 0 {
		d.Address = cfg.Address
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 100 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.Retries <= 0 {
		cfg.Retries = defaultRetries
	}
	d.cfg = cfg

	for _, w := range [...][2]byte{
		{regMainCtrl, modeUVS},
		{regMeasRate, res18Bit100ms},
		{regGain, gain3x},
	} {
		if err := d.regs.WriteRegister(d.Address, w[0], w[1]); err != nil {
			return err
		}
	}
	time.Sleep(cfg.Settle)
	return d.WaitReady()
}

// Ready reports whether a new UVS conversion is available.
func (d *Device) Ready() (bool, error) {
	if err := d.regs.ReadRegisters(d.Address, regMainStatus, d.buf[:1]); err != nil {
		return false, err
	}
	return d.buf[0]&statusDataRdy != 0, nil
}

// WaitReady polls Ready at most Retries times.
func (d *Device) WaitReady() error {
	var last error
	for i := 0; i < d.cfg.Retries; i++ {
		ok, err := d.Ready()
		if ok {
			return nil
		}
		last = err
		time.Sleep(d.cfg.PollInterval)
	}
	if last != nil {
		return errors.Join(ErrTimeout, last)
	}
	return ErrTimeout
}

// ReadUV returns the raw UVS count, or ErrNotReady when no conversion is
// pending.
func (d *Device) ReadUV() (uint32, error) {
	ok, err := d.Ready()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotReady
	}
	if err := d.regs.ReadRegisters(d.Address, regUVSData, d.buf[:]); err != nil {
		return 0, err
	}
	v := uint32(d.buf[2])<<16 | uint32(d.buf[1])<<8 | uint32(d.buf[0])
	return v & uvsDataMask, nil
}
