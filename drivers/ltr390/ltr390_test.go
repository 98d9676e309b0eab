package ltr390

import (
	"errors"
	"testing"

	"sensoragent-go/errcode"
)

type fakeRegs struct {
	regs        [0x20]byte
	readyAfter  int // status reads before the ready bit appears
	statusReads int
	writes      [][2]byte
	failStatus  bool
}

func (f *fakeRegs) ReadRegisters(_ uint16, reg uint8, buf []byte) error {
	if reg == regMainStatus {
		f.statusReads++
		if f.failStatus {
			return errors.New("nack")
		}
		if f.statusReads > f.readyAfter {
			f.regs[regMainStatus] |= statusDataRdy
		}
	}
	copy(buf, f.regs[reg:])
	return nil
}

func (f *fakeRegs) WriteRegister(_ uint16, reg uint8, v ...byte) error {
	f.writes = append(f.writes, [2]byte{reg, v[0]})
	f.regs[reg] = v[0]
	return nil
}

var fast = Config{Settle: 1, PollInterval: 1, Retries: 5}

func TestConfigureWritesSetup(t *testing.T) {
	f := &fakeRegs{readyAfter: 2}
	d := New(f)
	if err := d.Configure(fast); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	want := [][2]byte{{0x00, 0x0A}, {0x04, 0x20}, {0x05, 0x01}}
	if len(f.writes) != len(want) {
		t.Fatalf("writes = %v", f.writes)
	}
	for i := range want {
		if f.writes[i] != want[i] {
			t.Fatalf("write[%d] = %v, want %v", i, f.writes[i], want[i])
		}
	}
	if f.statusReads != 3 {
		t.Fatalf("status reads = %d, want 3", f.statusReads)
	}
}

func TestWaitReadyIsBounded(t *testing.T) {
	f := &fakeRegs{readyAfter: 1 << 30}
	d := New(f)
	err := d.Configure(fast)
	if !errors.Is(err, ErrTimeout) || errcode.Of(err) != errcode.Timeout {
		t.Fatalf("err = %v", err)
	}
	if f.statusReads != fast.Retries {
		t.Fatalf("status reads = %d, want %d", f.statusReads, fast.Retries)
	}
}

func TestWaitReadyCarriesBusError(t *testing.T) {
	f := &fakeRegs{failStatus: true}
	d := New(f)
	err := d.Configure(fast)
	if !errors.Is(err, ErrTimeout) || err.Error() == ErrTimeout.Error() {
		t.Fatalf("err = %v", err)
	}
}

func TestReadUV(t *testing.T) {
	f := &fakeRegs{}
	f.regs[regUVSData] = 0x34
	f.regs[regUVSData+1] = 0x12
	f.regs[regUVSData+2] = 0xF1 // upper nibble is not data
	d := New(f)
	if err := d.Configure(fast); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	uv, err := d.ReadUV()
	if err != nil {
		t.Fatalf("ReadUV: %v", err)
	}
	if uv != 0x011234 {
		t.Fatalf("uv = %#x", uv)
	}
}

func TestReadUVNotReady(t *testing.T) {
	f := &fakeRegs{readyAfter: 1 << 30}
	d := New(f)
	_ = d.Configure(fast)
	if _, err := d.ReadUV(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v", err)
	}
}
