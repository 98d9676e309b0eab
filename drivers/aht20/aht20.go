// Package aht20 drives the AHT20 temperature/humidity sensor. A measurement
// is two-phase:
//
//	d.Trigger()            // start a conversion
//	s, err := d.Collect()  // ErrNotReady while the device is busy
//
// Read does both with bounded polling.
//
// The AHT20 has no register map: commands are raw writes and a measurement
// is a bare 7-byte read, so the driver talks to the bus transaction directly.
package aht20

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"

	"sensoragent-go/errcode"
)

const Address = 0x38

const (
	cmdTrigger    = 0xAC
	cmdInitialize = 0xBE
	cmdSoftReset  = 0xBA
	cmdStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08
)

var (
	ErrNotReady = errors.New("aht20: not ready")
	ErrTimeout  = &errcode.E{C: errcode.Timeout, Op: "aht20", Msg: "measurement timeout"}
)

type Config struct {
	Address        uint16        // default 0x38
	PollInterval   time.Duration // between Collect attempts in Read; default 15 ms
	CollectTimeout time.Duration // bound on Read's wait; default 250 ms
}

type Device struct {
	bus drivers.I2C
	cfg Config
	buf [7]byte
}

func New(bus drivers.I2C) *Device {
	d := &Device{bus: bus}
	d.setConfig(Config{})
	return d
}

func (d *Device) setConfig(c Config) {
	if c.Address == 0 {
		c.Address = Address
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Millisecond
	}
	if c.CollectTimeout <= 0 {
		c.CollectTimeout = 250 * time.Millisecond
	}
	d.cfg = c
}

// Configure applies cfg and calibrates the device unless its status already
// reports calibration.
func (d *Device) Configure(cfg Config) error {
	d.setConfig(cfg)
	st, err := d.Status()
	if err != nil {
		return err
	}
	if st&statusCalibrated != 0 {
		return nil
	}
	if err := d.bus.Tx(d.cfg.Address, []byte{cmdInitialize, 0x08, 0x00}, nil); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

// Reset issues a soft reset; allow ~20 ms before the next command.
func (d *Device) Reset() error {
	return d.bus.Tx(d.cfg.Address, []byte{cmdSoftReset}, nil)
}

func (d *Device) Status() (byte, error) {
	var st [1]byte
	if err := d.bus.Tx(d.cfg.Address, []byte{cmdStatus}, st[:]); err != nil {
		return 0, err
	}
	return st[0], nil
}

func (d *Device) Trigger() error {
	return d.bus.Tx(d.cfg.Address, []byte{cmdTrigger, 0x33, 0x00}, nil)
}

// Collect fetches a finished conversion.
func (d *Device) Collect() (Sample, error) {
	data := d.buf[:]
	if err := d.bus.Tx(d.cfg.Address, nil, data); err != nil {
		return Sample{}, err
	}
	if data[0]&statusCalibrated == 0 || data[0]&statusBusy != 0 {
		return Sample{}, ErrNotReady
	}
	return Sample{
		RawHumidity: uint32(data[1])<<12 | uint32(data[2])<<4 | uint32(data[3])>>4,
		RawTemp:     uint32(data[3]&0x0F)<<16 | uint32(data[4])<<8 | uint32(data[5]),
	}, nil
}

// Read triggers a conversion and polls until it completes or the collect
// timeout passes.
func (d *Device) Read() (Sample, error) {
	if err := d.Trigger(); err != nil {
		return Sample{}, err
	}
	deadline := time.Now().Add(d.cfg.CollectTimeout)
	for {
		s, err := d.Collect()
		if !errors.Is(err, ErrNotReady) {
			return s, err
		}
		if time.Now().After(deadline) {
			return Sample{}, ErrTimeout
		}
		time.Sleep(d.cfg.PollInterval)
	}
}

// Sample holds 20-bit raw readings.
type Sample struct {
	RawHumidity uint32
	RawTemp     uint32
}

func (s Sample) Celsius() float64 { return float64(s.RawTemp)*200/0x100000 - 50 }

func (s Sample) RelHumidity() float64 { return float64(s.RawHumidity) * 100 / 0x100000 }

// DeciCelsius is tenths of °C without floating point.
func (s Sample) DeciCelsius() int32 { return int32(s.RawTemp)*2000/0x100000 - 500 }

// DeciRelHumidity is tenths of %RH without floating point.
func (s Sample) DeciRelHumidity() int32 { return int32(s.RawHumidity) * 1000 / 0x100000 }
