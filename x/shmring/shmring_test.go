package shmring

import (
	"testing"
)

// fakeIO models partial producer progress (accept up to k bytes).
type fakeIO struct{ k int }

func (f fakeIO) write(p []byte) int {
	if len(p) > f.k {
		return f.k
	}
	return len(p)
}

func TestOrderAcrossWrapWithPartialProgress(t *testing.T) {
	r := New(64)
	prod := fakeIO{k: 7}

	const N = 2000
	src := make([]byte, N)
	for i := range src {
		src[i] = byte(i)
	}

	p := src
	dst := make([]byte, N)
	off := 0
	for off < N {
		if len(p) > 0 {
			if step := prod.write(p); step > 0 {
				step = r.TryWriteFrom(p[:step])
				p = p[step:]
			}
		}
		var tmp [17]byte
		if n := r.TryReadInto(tmp[:]); n > 0 {
			copy(dst[off:], tmp[:n])
			off += n
		}
	}

	for i := 0; i < N; i++ {
		if dst[i] != src[i] {
			t.Fatalf("mismatch at %d: got=%d want=%d", i, dst[i], src[i])
		}
	}
}

func TestReadableWritableEdges(t *testing.T) {
	r := New(8)
	select {
	case <-r.Readable():
		t.Fatal("unexpected Readable on empty ring")
	default:
	}
	if n := r.TryWriteFrom([]byte{1, 2, 3}); n != 3 {
		t.Fatalf("write 3 -> %d", n)
	}
	select {
	case <-r.Readable():
	default:
		t.Fatal("expected Readable")
	}
	select {
	case <-r.Readable():
		t.Fatal("unexpected extra Readable")
	default:
	}

	// Fill to capacity, then free space: Writable must fire once.
	if n := r.TryWriteFrom(make([]byte, 10)); n != 5 {
		t.Fatalf("fill -> %d, want 5", n)
	}
	if r.Space() != 0 || r.Available() != 8 {
		t.Fatalf("space=%d avail=%d", r.Space(), r.Available())
	}
	if r.Dropped() != 5 {
		t.Fatalf("dropped=%d, want 5", r.Dropped())
	}
	r.TryReadInto(make([]byte, 2))
	select {
	case <-r.Writable():
	default:
		t.Fatal("expected Writable after full -> non-full")
	}
}

func TestNewRejectsBadSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for size 6")
		}
	}()
	New(6)
}
