// Package shmring is a single-producer, single-consumer byte ring with edge
// notifications. The host serial port uses it to decouple the blocking
// device read from the non-blocking Buffered/Read calls made by the agent.
package shmring

import "sync/atomic"

// Ring is a single-producer, single-consumer byte ring.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	dropped atomic.Uint32 // bytes refused because the ring was full

	readable chan struct{} // empty -> non-empty edge
	writable chan struct{} // full -> non-full edge
}

// New allocates a ring. size must be a power of two >= 2.
func New(size int) *Ring {
	if size < 2 || (size&(size-1)) != 0 {
		panic("shmring: size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]byte, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

func (r *Ring) size() uint32 { return uint32(len(r.buf)) }

// Space returns the number of bytes the producer may write.
func (r *Ring) Space() int {
	return int(r.size() - (r.wr.Load() - r.rd.Load()))
}

// Available returns the number of bytes the consumer may read.
func (r *Ring) Available() int {
	return int(r.wr.Load() - r.rd.Load())
}

// Dropped returns the count of bytes TryWriteFrom could not store.
func (r *Ring) Dropped() uint32 { return r.dropped.Load() }

// TryWriteFrom copies as much of src as fits and returns the count.
// Producer side only.
func (r *Ring) TryWriteFrom(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	before := wr - rd
	n := int(r.size() - before)
	if n > len(src) {
		n = len(src)
	}
	if n < len(src) {
		r.dropped.Add(uint32(len(src) - n))
	}
	if n <= 0 {
		return 0
	}

	idx := wr & r.mask
	first := int(r.size() - idx)
	if first > n {
		first = n
	}
	copy(r.buf[idx:idx+uint32(first)], src[:first])
	copy(r.buf[:n-first], src[first:n])
	r.wr.Store(wr + uint32(n))

	if before == 0 {
		select {
		case r.readable <- struct{}{}:
		default:
		}
	}
	return n
}

// TryReadInto copies up to len(dst) buffered bytes and returns the count.
// Consumer side only.
func (r *Ring) TryReadInto(dst []byte) int {
	if len(dst) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	n := int(wr - rd)
	if n <= 0 {
		return 0
	}
	if n > len(dst) {
		n = len(dst)
	}

	idx := rd & r.mask
	first := int(r.size() - idx)
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[idx:idx+uint32(first)])
	copy(dst[first:n], r.buf[:n-first])
	r.rd.Store(rd + uint32(n))

	if wr-rd == r.size() {
		select {
		case r.writable <- struct{}{}:
		default:
		}
	}
	return n
}

// Readable fires (coalesced) when the ring goes from empty to non-empty.
func (r *Ring) Readable() <-chan struct{} { return r.readable }

// Writable fires (coalesced) when the ring goes from full to non-full.
func (r *Ring) Writable() <-chan struct{} { return r.writable }
