package regbus

import (
	"time"

	"sensoragent-go/services/hal/halcore"
)

// DefaultReadStrategies returns the read order: combined write-read,
// bus register helper, two-step write then read. BareRead is left out: it
// ignores the register and would hand back the wrong bytes for any device
// that does not start its map at the requested address. Drivers that need
// it append it themselves.
func DefaultReadStrategies() []ReadStrategy {
	return []ReadStrategy{WriteRead{}, HelperRead{}, TwoStepRead{Settle: time.Millisecond}}
}

// DefaultWriteStrategies returns the write order: single write of
// register+payload, bus register helper, register then payload.
func DefaultWriteStrategies() []WriteStrategy {
	return []WriteStrategy{Write{}, HelperWrite{}, SplitWrite{}}
}

// WriteRead sends the register address and reads back in one transaction
// with a repeated start.
type WriteRead struct{}

func (WriteRead) Name() string { return "write-read" }

func (WriteRead) ReadRegisters(bus halcore.I2C, addr uint16, reg uint8, buf []byte) error {
	return bus.Tx(addr, []byte{reg}, buf)
}

// HelperRead uses the bus's own register read when it has one.
type HelperRead struct{}

func (HelperRead) Name() string { return "register-helper" }

func (HelperRead) ReadRegisters(bus halcore.I2C, addr uint16, reg uint8, buf []byte) error {
	rr, ok := bus.(halcore.RegisterReader)
	if !ok {
		return ErrUnsupported
	}
	return rr.ReadRegister(uint8(addr), reg, buf)
}

// TwoStepRead writes the register pointer, then reads in a separate
// transaction after Settle.
type TwoStepRead struct {
	Settle time.Duration
}

func (TwoStepRead) Name() string { return "two-step" }

func (s TwoStepRead) ReadRegisters(bus halcore.I2C, addr uint16, reg uint8, buf []byte) error {
	if err := bus.Tx(addr, []byte{reg}, nil); err != nil {
		return err
	}
	if s.Settle > 0 {
		time.Sleep(s.Settle)
	}
	return bus.Tx(addr, nil, buf)
}

// BareRead reads without addressing a register. Devices that auto-increment
// from register 0 (TLV493D) answer this.
type BareRead struct{}

func (BareRead) Name() string { return "bare" }

func (BareRead) ReadRegisters(bus halcore.I2C, addr uint16, _ uint8, buf []byte) error {
	return bus.Tx(addr, nil, buf)
}

// Write sends register and payload as one message.
type Write struct{}

func (Write) Name() string { return "write" }

func (Write) WriteRegister(bus halcore.I2C, addr uint16, reg uint8, data []byte) error {
	w := make([]byte, 0, 1+len(data))
	w = append(w, reg)
	w = append(w, data...)
	return bus.Tx(addr, w, nil)
}

// HelperWrite uses the bus's own register write when it has one.
type HelperWrite struct{}

func (HelperWrite) Name() string { return "register-helper" }

func (HelperWrite) WriteRegister(bus halcore.I2C, addr uint16, reg uint8, data []byte) error {
	rw, ok := bus.(halcore.RegisterWriter)
	if !ok {
		return ErrUnsupported
	}
	return rw.WriteRegister(uint8(addr), reg, data)
}

// SplitWrite sends the register byte and the payload as two messages.
type SplitWrite struct{}

func (SplitWrite) Name() string { return "split" }

func (SplitWrite) WriteRegister(bus halcore.I2C, addr uint16, reg uint8, data []byte) error {
	if err := bus.Tx(addr, []byte{reg}, nil); err != nil {
		return err
	}
	return bus.Tx(addr, data, nil)
}
