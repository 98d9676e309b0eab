// Package stts751 reads the ST STTS751 digital temperature sensor. The
// address strap gives one of several addresses; Configure probes them on the
// manufacturer id and sets 12-bit resolution (0.0625 °C/LSB).
package stts751

import (
	"errors"
	"fmt"

	"sensoragent-go/drivers/regbus"
)

// Candidate addresses in probe order.
var Addresses = []uint16{0x48, 0x4A, 0x49, 0x4B}

const (
	regTempHigh  = 0x00
	regStatus    = 0x01
	regTempLow   = 0x02
	regConfig    = 0x03
	regConvRate  = 0x04
	regManufID   = 0xFE
	manufacturer = 0x53

	config12Bit = 0x0C
	convRate1Hz = 0x04

	statusBusy = 0x80
)

var (
	ErrNotConfigured = errors.New("stts751: not configured")
	ErrBusy          = errors.New("stts751: conversion in progress")
)

type Device struct {
	regs    regbus.Registers
	Address uint16
}

func New(regs regbus.Registers) *Device { return &Device{regs: regs} }

func (d *Device) Configure() error {
	d.Address = 0
	addr, err := regbus.Probe(d.regs, Addresses, regManufID, manufacturer)
	if err != nil {
		return fmt.Errorf("STTS751 not found on I2C bus: %w", err)
	}
	if err := d.regs.WriteRegister(addr, regConfig, config12Bit); err != nil {
		return err
	}
	if err := d.regs.WriteRegister(addr, regConvRate, convRate1Hz); err != nil {
		return err
	}
	d.Address = addr
	return nil
}

// Raw reads the temperature as 1/16 °C counts. The high byte is read first;
// it latches the low byte.
func (d *Device) Raw() (int16, error) {
	if d.Address == 0 {
		return 0, ErrNotConfigured
	}
	var st, hi, lo [1]byte
	if err := d.regs.ReadRegisters(d.Address, regStatus, st[:]); err != nil {
		return 0, err
	}
	if st[0]&statusBusy != 0 {
		return 0, ErrBusy
	}
	if err := d.regs.ReadRegisters(d.Address, regTempHigh, hi[:]); err != nil {
		return 0, err
	}
	if err := d.regs.ReadRegisters(d.Address, regTempLow, lo[:]); err != nil {
		return 0, err
	}
	return int16(int8(hi[0]))<<4 | int16(lo[0]>>4), nil
}

// Celsius reads the temperature in °C.
func (d *Device) Celsius() (float64, error) {
	r, err := d.Raw()
	if err != nil {
		return 0, err
	}
	return float64(r) / 16, nil
}
