// Package regbus issues register-level transactions against I2C devices
// whose bus primitive may not support every call shape.
//
// Each operation is an ordered cascade of strategies. The first strategy that
// completes without error supplies the result; later strategies are never
// attempted. If every strategy fails the operation returns a *BusError
// carrying the last underlying failure:
//
//	c := regbus.New(bus)
//	buf := make([]byte, 6)
//	err := c.ReadRegisters(0x5E, 0x00, buf)
//
// The order is fixed at construction so failures are reproducible.
package regbus

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"sensoragent-go/errcode"
	"sensoragent-go/services/hal/halcore"
)

// ErrUnsupported is returned by a strategy whose call shape the bus lacks.
// The cascade treats it like any other failure and moves on.
var ErrUnsupported = errors.New("regbus: call shape not supported by bus")

// ReadStrategy reads len(buf) bytes starting at reg.
type ReadStrategy interface {
	Name() string
	ReadRegisters(bus halcore.I2C, addr uint16, reg uint8, buf []byte) error
}

// WriteStrategy writes data starting at reg.
type WriteStrategy interface {
	Name() string
	WriteRegister(bus halcore.I2C, addr uint16, reg uint8, data []byte) error
}

// Registers is the register access surface drivers depend on. *Cascade
// implements it.
type Registers interface {
	ReadRegisters(addr uint16, reg uint8, buf []byte) error
	WriteRegister(addr uint16, reg uint8, value ...byte) error
}

var _ Registers = (*Cascade)(nil)

// BusError reports an exhausted cascade.
type BusError struct {
	Op       string // "read" | "write" | "probe"
	Addr     uint16
	Reg      uint8
	Attempts []string // strategy names tried, in order
	Err      error    // last underlying failure
}

func (e *BusError) Error() string {
	return fmt.Sprintf("regbus: %s addr=0x%02X reg=0x%02X failed after [%s]: %v",
		e.Op, e.Addr, e.Reg, strings.Join(e.Attempts, ","), e.Err)
}

func (e *BusError) Unwrap() error        { return e.Err }
func (e *BusError) Code() errcode.Code   { return errcode.BusError }
func (e *BusError) Is(target error) bool { return target == errcode.BusError }

// Cascade runs strategies against one bus. Methods are safe for concurrent
// use; transactions are serialized.
type Cascade struct {
	bus    halcore.I2C
	reads  []ReadStrategy
	writes []WriteStrategy

	mu      sync.Mutex
	scratch []byte
}

// Option customises a Cascade.
type Option func(*Cascade)

// WithReadStrategies replaces the default read order.
func WithReadStrategies(s ...ReadStrategy) Option {
	return func(c *Cascade) { c.reads = append([]ReadStrategy(nil), s...) }
}

// WithWriteStrategies replaces the default write order.
func WithWriteStrategies(s ...WriteStrategy) Option {
	return func(c *Cascade) { c.writes = append([]WriteStrategy(nil), s...) }
}

// New builds a cascade with the default strategy orders.
func New(bus halcore.I2C, opts ...Option) *Cascade {
	c := &Cascade{
		bus:    bus,
		reads:  DefaultReadStrategies(),
		writes: DefaultWriteStrategies(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Bus returns the underlying transaction primitive.
func (c *Cascade) Bus() halcore.I2C { return c.bus }

// Order lists the read and write strategy names in attempt order.
func (c *Cascade) Order() (reads, writes []string) {
	for _, s := range c.reads {
		reads = append(reads, s.Name())
	}
	for _, s := range c.writes {
		writes = append(writes, s.Name())
	}
	return reads, writes
}

// ReadRegisters fills buf from consecutive registers starting at reg.
// buf is only modified when a strategy succeeds.
func (c *Cascade) ReadRegisters(addr uint16, reg uint8, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cap(c.scratch) < len(buf) {
		c.scratch = make([]byte, len(buf))
	}
	tmp := c.scratch[:len(buf)]

	be := &BusError{Op: "read", Addr: addr, Reg: reg}
	for _, s := range c.reads {
		be.Attempts = append(be.Attempts, s.Name())
		clear(tmp)
		err := s.ReadRegisters(c.bus, addr, reg, tmp)
		if err == nil {
			copy(buf, tmp)
			return nil
		}
		be.Err = err
	}
	if be.Err == nil {
		be.Err = ErrUnsupported
	}
	return be
}

// ReadRegister reads one byte.
func (c *Cascade) ReadRegister(addr uint16, reg uint8) (byte, error) {
	var b [1]byte
	if err := c.ReadRegisters(addr, reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteRegister writes value bytes starting at reg.
func (c *Cascade) WriteRegister(addr uint16, reg uint8, value ...byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	be := &BusError{Op: "write", Addr: addr, Reg: reg}
	for _, s := range c.writes {
		be.Attempts = append(be.Attempts, s.Name())
		err := s.WriteRegister(c.bus, addr, reg, value)
		if err == nil {
			return nil
		}
		be.Err = err
	}
	if be.Err == nil {
		be.Err = ErrUnsupported
	}
	return be
}

// Probe returns the first address in addrs whose identity register idReg
// reads back as want.
func (c *Cascade) Probe(addrs []uint16, idReg uint8, want byte) (uint16, error) {
	return Probe(c, addrs, idReg, want)
}

// Probe runs the identity check against any register surface.
func Probe(r Registers, addrs []uint16, idReg uint8, want byte) (uint16, error) {
	be := &BusError{Op: "probe", Reg: idReg}
	var id [1]byte
	for _, a := range addrs {
		be.Addr = a
		be.Attempts = append(be.Attempts, fmt.Sprintf("0x%02X", a))
		if err := r.ReadRegisters(a, idReg, id[:]); err != nil {
			be.Err = err
			continue
		}
		if id[0] == want {
			return a, nil
		}
		be.Err = fmt.Errorf("%w: id 0x%02X at 0x%02X, want 0x%02X", errcode.NotFound, id[0], a, want)
	}
	if be.Err == nil {
		be.Err = errcode.NotFound
	}
	return 0, be
}
