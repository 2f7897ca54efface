// Package pool provides the pooled byte-buffer and lease fabric shared by the
// command ingress, snapshot serializer, and outbound queues.
//
// Pools are plain stacks behind a single mutex. Releases are idempotent: a
// lease carries a disposed flag flipped by compare-and-set, so double release
// is a counted no-op rather than a corruption.
package pool

import (
	"sync"
	"sync/atomic"
)

// Lease is a rented byte buffer. The holder owns the buffer until Release;
// after Release the contents must not be touched.
type Lease struct {
	pool     *BufferPool
	buf      []byte
	length   int
	disposed atomic.Bool
}

// Bytes returns the leased payload. Valid only before Release.
func (l *Lease) Bytes() []byte {
	return l.buf[:l.length]
}

// Len returns the payload length in bytes.
func (l *Lease) Len() int { return l.length }

// Disposed reports whether the lease has already been released.
func (l *Lease) Disposed() bool { return l.disposed.Load() }

// Release returns the buffer to its pool. Idempotent: the second and later
// calls do nothing beyond bumping the double-release counter.
func (l *Lease) Release() {
	if !l.disposed.CompareAndSwap(false, true) {
		if l.pool != nil {
			l.pool.doubleReleases.Add(1)
		}
		return
	}
	if l.pool != nil {
		l.pool.giveBack(l.buf)
	}
}

// BufferPool is a stack of reusable byte buffers.
type BufferPool struct {
	mu   sync.Mutex
	free [][]byte

	// bufCap is the capacity every pooled buffer is allocated with. Rents
	// larger than bufCap allocate a one-off buffer that is still pooled on
	// return (the stack holds whatever capacity comes back).
	bufCap int

	rented         atomic.Int64
	returned       atomic.Int64
	doubleReleases atomic.Int64
}

// NewBufferPool creates a pool whose buffers default to bufCap bytes.
func NewBufferPool(bufCap int) *BufferPool {
	if bufCap <= 0 {
		bufCap = 4096
	}
	return &BufferPool{bufCap: bufCap}
}

// RentCopy rents a lease holding a copy of data. The caller may recycle data
// immediately after the call returns.
func (p *BufferPool) RentCopy(data []byte) *Lease {
	buf := p.take(len(data))
	copy(buf, data)
	p.rented.Add(1)
	return &Lease{pool: p, buf: buf, length: len(data)}
}

// Rent rents a lease over an uninitialized buffer of exactly n bytes.
func (p *BufferPool) Rent(n int) *Lease {
	buf := p.take(n)
	p.rented.Add(1)
	return &Lease{pool: p, buf: buf, length: n}
}

func (p *BufferPool) take(n int) []byte {
	p.mu.Lock()
	for len(p.free) > 0 {
		last := len(p.free) - 1
		buf := p.free[last]
		p.free = p.free[:last]
		if cap(buf) >= n {
			p.mu.Unlock()
			return buf[:n]
		}
		// Too small for this rent; drop it and keep looking.
	}
	p.mu.Unlock()

	capacity := p.bufCap
	if n > capacity {
		capacity = n
	}
	return make([]byte, n, capacity)
}

func (p *BufferPool) giveBack(buf []byte) {
	// Payload buffers are cleared on return so a later tenant can never
	// observe another session's bytes.
	full := buf[:cap(buf)]
	for i := range full {
		full[i] = 0
	}
	p.returned.Add(1)
	p.mu.Lock()
	p.free = append(p.free, full)
	p.mu.Unlock()
}

// Stats is a point-in-time view of pool activity.
type Stats struct {
	Rented         int64
	Returned       int64
	Outstanding    int64
	DoubleReleases int64
	FreeBuffers    int
}

// Snapshot returns current pool counters.
func (p *BufferPool) Snapshot() Stats {
	p.mu.Lock()
	free := len(p.free)
	p.mu.Unlock()
	rented := p.rented.Load()
	returned := p.returned.Load()
	return Stats{
		Rented:         rented,
		Returned:       returned,
		Outstanding:    rented - returned,
		DoubleReleases: p.doubleReleases.Load(),
		FreeBuffers:    free,
	}
}
