package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRentCopyHoldsIndependentCopy(t *testing.T) {
	p := NewBufferPool(64)
	src := []byte("payload")

	lease := p.RentCopy(src)
	src[0] = 'X'

	assert.Equal(t, []byte("payload"), lease.Bytes())
	assert.Equal(t, 7, lease.Len())
	lease.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	p := NewBufferPool(64)
	lease := p.RentCopy([]byte("x"))

	lease.Release()
	lease.Release()
	lease.Release()

	stats := p.Snapshot()
	assert.Equal(t, int64(1), stats.Rented)
	assert.Equal(t, int64(1), stats.Returned)
	assert.Equal(t, int64(2), stats.DoubleReleases)
	assert.Equal(t, int64(0), stats.Outstanding)
	assert.True(t, lease.Disposed())
}

func TestBuffersAreClearedOnReturn(t *testing.T) {
	p := NewBufferPool(8)

	lease := p.RentCopy([]byte{1, 2, 3, 4})
	lease.Release()

	// The recycled buffer must never leak the previous tenant's bytes.
	next := p.Rent(4)
	assert.Equal(t, []byte{0, 0, 0, 0}, next.Bytes())
	next.Release()
}

func TestPoolReusesBuffers(t *testing.T) {
	p := NewBufferPool(32)

	lease := p.Rent(16)
	lease.Release()
	require.Equal(t, 1, p.Snapshot().FreeBuffers)

	again := p.Rent(16)
	assert.Equal(t, 0, p.Snapshot().FreeBuffers)
	again.Release()
}

func TestOversizedRentStillPools(t *testing.T) {
	p := NewBufferPool(8)

	big := p.Rent(100)
	assert.Equal(t, 100, big.Len())
	big.Release()

	// The oversized buffer came back and can serve a matching rent.
	next := p.Rent(64)
	assert.Equal(t, 64, next.Len())
	next.Release()
}
