// Package tlv493d reads the Infineon TLV493D 3-axis magnetic sensor through a
// register cascade.
//
// Breakouts disagree on how the 12-bit channels are packed, so Read tries the
// 6-byte layout first and falls back to the 10-byte layout. An all-zero frame
// means the sensor has not converted yet and is never reported as a zero
// reading.
//
//	d := tlv493d.New(regbus.New(bus, regbus.WithReadStrategies(tlv493d.ReadStrategies()...)))
//	s, err := d.Read() // s.X, s.Y, s.Z in mT
package tlv493d

import (
	"errors"
	"fmt"
	"time"

	"sensoragent-go/drivers/regbus"
	"sensoragent-go/errcode"
	"sensoragent-go/x/logx"
	"sensoragent-go/x/mathx"
)

// I2C address.
const Address = 0x5E

const (
	regData        = 0x00
	regMode        = 0x10
	modeContinuous = 0x01

	// ScaleMilliTesla is the field per LSB.
	ScaleMilliTesla = 0.098
)

var (
	ErrReadFailed = errors.New("tlv493d: read failed")
	// ErrNoData marks an all-zero frame.
	ErrNoData = &errcode.E{C: errcode.DecodeError, Op: "tlv493d", Msg: "all-zero frame"}
)

// Raw holds sign-extended channel counts.
type Raw struct{ X, Y, Z int16 }

// Sample is a decoded reading in millitesla, rounded to 3 decimals.
type Sample struct{ X, Y, Z float64 }

// ReadStrategies is the default cascade plus a bare read: the data block
// starts at register 0 and the sensor auto-increments from there, so on
// buses that reject the pointer write a plain read still returns the frame.
func ReadStrategies() []regbus.ReadStrategy {
	return append(regbus.DefaultReadStrategies(), regbus.BareRead{})
}

// Layout is one on-wire frame packing.
type Layout struct {
	Name   string
	Len    int
	Decode func(frame []byte) (Raw, error)
}

// Layouts lists the frame packings in the order Read tries them.
var Layouts = []Layout{
	{Name: "6-byte", Len: 6, Decode: Decode6},
	{Name: "10-byte", Len: 10, Decode: Decode10},
}

// Decode6 unpacks x, y and z from little-endian byte pairs, the high nibble
// of each channel in the low nibble of the second byte.
func Decode6(b []byte) (Raw, error) {
	if len(b) < 6 {
		return Raw{}, errcode.Wrap(errcode.DecodeError, "tlv493d", fmt.Errorf("short frame: %d bytes", len(b)))
	}
	if allZero(b[:6]) {
		return Raw{}, ErrNoData
	}
	return Raw{
		X: ch12(uint16(b[1]&0x0F)<<8 | uint16(b[0])),
		Y: ch12(uint16(b[3]&0x0F)<<8 | uint16(b[2])),
		Z: ch12(uint16(b[5]&0x0F)<<8 | uint16(b[4])),
	}, nil
}

// Decode10 unpacks the register-map layout: the top 8 bits of each channel
// in bytes 0..2, low nibbles interleaved in bytes 4 and 5.
func Decode10(b []byte) (Raw, error) {
	if len(b) < 10 {
		return Raw{}, errcode.Wrap(errcode.DecodeError, "tlv493d", fmt.Errorf("short frame: %d bytes", len(b)))
	}
	if allZero(b[:10]) {
		return Raw{}, ErrNoData
	}
	return Raw{
		X: ch12(uint16(b[0])<<4 | uint16(b[4]&0x0F)),
		Y: ch12(uint16(b[1])<<4 | uint16(b[4]>>4)),
		Z: ch12(uint16(b[2])<<4 | uint16(b[5]&0x0F)),
	}, nil
}

func ch12(v uint16) int16 { return int16(mathx.SignExtend(v, 12)) }

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Scale converts raw counts to millitesla.
func (r Raw) Scale() Sample {
	return Sample{
		X: mathx.Round(float64(r.X)*ScaleMilliTesla, 3),
		Y: mathx.Round(float64(r.Y)*ScaleMilliTesla, 3),
		Z: mathx.Round(float64(r.Z)*ScaleMilliTesla, 3),
	}
}

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x5E if zero.
	Address uint16
	// Settle is the wait after the continuous-mode write. Default 20 ms.
	Settle time.Duration
	// Report receives per-step diagnostics (enable or layout failures).
	// Defaults to the warning log.
	Report func(msg string)
}

// Device is a TLV493D bound to one address.
type Device struct {
	regs    regbus.Registers
	Address uint16

	settle time.Duration
	report func(string)
	buf    [10]byte
}

// New returns a device at the default address. It does not touch the bus.
func New(regs regbus.Registers) *Device {
	d := &Device{regs: regs}
	d.Configure(Config{})
	return d
}

// Configure applies cfg, filling defaults.
func (d *Device) Configure(cfg Config) {
	d.Address = cfg.Address
	if d.Address == 0 {
		d.Address = Address
	}
	d.settle = cfg.Settle
	if d.settle <= 0 {
		d.settle = 20 * time.Millisecond
	}
	d.report = cfg.Report
	if d.report == nil {
		d.report = func(msg string) { logx.Warnf("%s", msg) }
	}
}

// EnableContinuous puts the sensor in continuous measurement mode. Repeating
// it is harmless.
func (d *Device) EnableContinuous() error {
	if err := d.regs.WriteRegister(d.Address, regMode, modeContinuous); err != nil {
		return err
	}
	time.Sleep(d.settle)
	return nil
}

// Read enables continuous mode, then decodes the first layout that yields a
// non-zero frame. A failed enable is reported and the read goes ahead.
func (d *Device) Read() (Sample, error) {
	if err := d.EnableContinuous(); err != nil {
		d.report(fmt.Sprintf("TLV493D: enable_cont failed: %v", err))
	}

	var last error
	for _, l := range Layouts {
		frame := d.buf[:l.Len]
		if err := d.regs.ReadRegisters(d.Address, regData, frame); err != nil {
			d.report(fmt.Sprintf("TLV493D: %s read failed: %v", l.Name, err))
			last = err
			continue
		}
		raw, err := l.Decode(frame)
		if err != nil {
			last = err
			continue
		}
		return raw.Scale(), nil
	}
	return Sample{}, fmt.Errorf("%w: %w", ErrReadFailed, last)
}
