// services/hal/platform/factories_rp2xxx.go
//go:build rp2040 || rp2350

package platform

import (
	"context"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"sensoragent-go/services/hal/halcore"
)

// -----------------------------------------------------------------------------
// Defaults used on Raspberry Pi Pico / Pico 2 (RP2 family)
// -----------------------------------------------------------------------------

// Default configures i2c0/i2c1 at 400 kHz, uart0/uart1 at baud on board
// default pins, and adc0..adc2 on GP26..GP28.
func Default(baud uint32) halcore.Platform {
	return halcore.Platform{
		I2C:  defaultI2CFactory(),
		UART: defaultUARTFactory(baud),
		ADC:  defaultADCFactory(),
	}
}

// ---- I²C ----

type rp2I2CFactory struct {
	buses map[string]halcore.I2C
}

func (f *rp2I2CFactory) ByID(id string) (halcore.I2C, bool) {
	b, ok := f.buses[id]
	return b, ok
}

// machine.I2C also provides ReadRegister/WriteRegister, so regbus can use
// its register-helper strategies.
var (
	_ halcore.RegisterReader = (*machine.I2C)(nil)
	_ halcore.RegisterWriter = (*machine.I2C)(nil)
)

func defaultI2CFactory() halcore.I2CBusFactory {
	f := &rp2I2CFactory{buses: make(map[string]halcore.I2C)}

	b0 := machine.I2C0
	_ = b0.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	})
	f.buses["i2c0"] = b0

	b1 := machine.I2C1
	_ = b1.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C1_SDA_PIN,
		SCL:       machine.I2C1_SCL_PIN,
	})
	f.buses["i2c1"] = b1

	return f
}

// ---- UART ----

// rp2SerialPort adapts uartx to halcore.UARTPort.
type rp2SerialPort struct{ u *uartx.UART }

func (p *rp2SerialPort) Write(b []byte) (int, error) { return p.u.Write(b) }
func (p *rp2SerialPort) Buffered() int               { return p.u.Buffered() }
func (p *rp2SerialPort) Read(b []byte) (int, error)  { return p.u.Read(b) }
func (p *rp2SerialPort) Readable() <-chan struct{}   { return p.u.Readable() }
func (p *rp2SerialPort) RecvSomeContext(ctx context.Context, buf []byte) (int, error) {
	return p.u.RecvSomeContext(ctx, buf)
}
func (p *rp2SerialPort) SetBaudRate(br uint32) { p.u.SetBaudRate(br) }

type rp2UARTFactory struct {
	ports map[string]halcore.UARTPort
}

func (f *rp2UARTFactory) ByID(id string) (halcore.UARTPort, bool) {
	p, ok := f.ports[id]
	return p, ok
}

func defaultUARTFactory(baud uint32) halcore.UARTFactory {
	f := &rp2UARTFactory{ports: make(map[string]halcore.UARTPort)}

	_ = uartx.UART0.Configure(uartx.UARTConfig{
		BaudRate: baud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	f.ports["uart0"] = &rp2SerialPort{u: uartx.UART0}

	_ = uartx.UART1.Configure(uartx.UARTConfig{
		BaudRate: baud,
		TX:       machine.UART1_TX_PIN,
		RX:       machine.UART1_RX_PIN,
	})
	f.ports["uart1"] = &rp2SerialPort{u: uartx.UART1}

	return f
}

// ---- ADC ----

type rp2ADC struct{ a machine.ADC }

// Read converts the 16-bit scaled sample to millivolts against a 3.3 V reference.
func (r rp2ADC) Read() (uint16, error) {
	return uint16(uint32(r.a.Get()) * 3300 / 0xFFFF), nil
}

type rp2ADCFactory struct {
	adcs map[string]halcore.ADC
}

func (f *rp2ADCFactory) ByID(id string) (halcore.ADC, bool) {
	a, ok := f.adcs[id]
	return a, ok
}

func defaultADCFactory() halcore.ADCFactory {
	machine.InitADC()
	f := &rp2ADCFactory{adcs: make(map[string]halcore.ADC)}
	for id, pin := range map[string]machine.Pin{
		"adc0": machine.ADC0,
		"adc1": machine.ADC1,
		"adc2": machine.ADC2,
	} {
		a := machine.ADC{Pin: pin}
		a.Configure(machine.ADCConfig{})
		f.adcs[id] = rp2ADC{a: a}
	}
	return f
}
