//go:build !rp2040 && !rp2350

package platform

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"sensoragent-go/services/hal/halcore"
	"sensoragent-go/x/logx"
)

// HostConfig maps logical resource ids ("i2c0", "uart0", "adc0") to host
// device names.
type HostConfig struct {
	I2C  map[string]string // id -> periph bus name, e.g. "1" for /dev/i2c-1
	UART map[string]string // id -> serial device path
	Baud int
	ADC  map[string]string // id -> IIO sysfs raw file, e.g. .../in_voltage0_raw
	// ADCScaleMilli converts raw IIO counts to millivolts (mV per count x1000).
	ADCScaleMilli int
}

// Open initialises periph host drivers and opens every configured resource.
// The returned closer releases all of them.
func Open(cfg HostConfig) (halcore.Platform, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return halcore.Platform{}, nil, fmt.Errorf("periph host init: %w", err)
	}
	cl := &closers{}

	i2cs := &hostI2CFactory{buses: map[string]halcore.I2C{}}
	for id, name := range cfg.I2C {
		b, err := i2creg.Open(name)
		if err != nil {
			cl.Close()
			return halcore.Platform{}, nil, fmt.Errorf("open i2c %s (%s): %w", id, name, err)
		}
		cl.add(b)
		i2cs.buses[id] = b
		logx.Infof("i2c %s bound to %s", id, b)
	}

	uarts := &hostUARTFactory{ports: map[string]halcore.UARTPort{}}
	byPath := map[string]*hostSerialPort{} // two ids on one path share the port
	for id, path := range cfg.UART {
		sp := byPath[path]
		if sp == nil {
			var err error
			if sp, err = openHostSerial(path, cfg.Baud); err != nil {
				cl.Close()
				return halcore.Platform{}, nil, fmt.Errorf("open uart %s (%s): %w", id, path, err)
			}
			cl.add(sp)
			byPath[path] = sp
		}
		uarts.ports[id] = sp
	}

	adcs := &hostADCFactory{adcs: map[string]halcore.ADC{}}
	for id, path := range cfg.ADC {
		adcs.adcs[id] = &iioADC{path: path, scaleMilli: cfg.ADCScaleMilli}
	}

	return halcore.Platform{I2C: i2cs, UART: uarts, ADC: adcs}, cl, nil
}

// Compile-time check: periph buses satisfy the transaction primitive.
var _ halcore.I2C = (i2c.Bus)(nil)

type hostI2CFactory struct{ buses map[string]halcore.I2C }

func (f *hostI2CFactory) ByID(id string) (halcore.I2C, bool) {
	b, ok := f.buses[id]
	return b, ok
}

type hostUARTFactory struct{ ports map[string]halcore.UARTPort }

func (f *hostUARTFactory) ByID(id string) (halcore.UARTPort, bool) {
	p, ok := f.ports[id]
	return p, ok
}

type hostADCFactory struct{ adcs map[string]halcore.ADC }

func (f *hostADCFactory) ByID(id string) (halcore.ADC, bool) {
	a, ok := f.adcs[id]
	return a, ok
}

// iioADC reads a Linux IIO sysfs channel.
type iioADC struct {
	path       string
	scaleMilli int
}

func (a *iioADC) Read() (uint16, error) {
	b, err := os.ReadFile(a.path)
	if err != nil {
		return 0, err
	}
	raw, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("iio %s: %w", a.path, err)
	}
	scale := a.scaleMilli
	if scale <= 0 {
		scale = 1000
	}
	mv := raw * scale / 1000
	if mv < 0 {
		mv = 0
	}
	if mv > 0xFFFF {
		mv = 0xFFFF
	}
	return uint16(mv), nil
}

type closers struct{ list []io.Closer }

func (c *closers) add(x io.Closer) { c.list = append(c.list, x) }

func (c *closers) Close() error {
	var first error
	for i := len(c.list) - 1; i >= 0; i-- {
		if err := c.list[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	c.list = nil
	return first
}
