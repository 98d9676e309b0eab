// Package halcore holds the platform-neutral bus and port contracts shared by
// drivers, the agent and the platform factories.
package halcore

import (
	"context"

	"tinygo.org/x/drivers"
)

// ---- Buses ----

// I2C is the raw transaction primitive (compatible with tinygo.org/x/drivers.I2C
// and periph.io i2c.Bus). Tx performs a write followed by a repeated-start
// read when both w and r are non-empty.
type I2C = drivers.I2C

// RegisterReader is implemented by buses with a native register helper
// (TinyGo machine.I2C).
type RegisterReader interface {
	ReadRegister(address uint8, register uint8, data []byte) error
}

// RegisterWriter is the write-side counterpart of RegisterReader.
type RegisterWriter interface {
	WriteRegister(address uint8, register uint8, data []byte) error
}

// I2CBusFactory injects configured I²C instances by id.
type I2CBusFactory interface {
	ByID(id string) (I2C, bool)
}

// ADC is one analog input. Read returns millivolts.
type ADC interface {
	Read() (uint16, error)
}

type ADCFactory interface {
	ByID(id string) (ADC, bool)
}

// ---------------- UART abstractions ----------------

type UARTPort interface {
	// TX
	Write(p []byte) (int, error)

	// RX
	Buffered() int
	Read(p []byte) (int, error)
	Readable() <-chan struct{}
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
}

type UARTFactory interface {
	ByID(id string) (UARTPort, bool)
}

// UARTFormatter is optional: formatting where the platform supports it.
type UARTFormatter interface {
	SetBaudRate(br uint32)
}

// Platform bundles the factories an agent needs.
type Platform struct {
	I2C  I2CBusFactory
	UART UARTFactory
	ADC  ADCFactory
}
