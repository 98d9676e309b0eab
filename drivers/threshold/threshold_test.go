package threshold

import (
	"errors"
	"testing"
)

type fixedADC struct {
	v   uint16
	err error
}

func (a *fixedADC) Read() (uint16, error) { return a.v, a.err }

func TestActiveLow(t *testing.T) {
	d := New(&fixedADC{}, 2000, true)
	for mv, want := range map[uint16]bool{0: true, 1999: true, 2000: true, 2001: false, 3300: false} {
		if got := d.Active(mv); got != want {
			t.Fatalf("Active(%d) = %v, want %v", mv, got, want)
		}
	}
}

func TestActiveHigh(t *testing.T) {
	d := New(&fixedADC{}, 1500, false)
	for mv, want := range map[uint16]bool{0: false, 1499: false, 1500: true, 3300: true} {
		if got := d.Active(mv); got != want {
			t.Fatalf("Active(%d) = %v, want %v", mv, got, want)
		}
	}
}

func TestReadReturnsRaw(t *testing.T) {
	adc := &fixedADC{v: 2500}
	d := New(adc, 2000, true)
	active, mv, err := d.Read()
	if err != nil || active || mv != 2500 {
		t.Fatalf("Read = %v, %d, %v", active, mv, err)
	}

	adc.err = errors.New("adc busy")
	if _, _, err := d.Read(); err == nil {
		t.Fatal("want error")
	}
}
