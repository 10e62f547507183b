package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntPoolAllocFreeReuse(t *testing.T) {
	p := NewIntPool(4)
	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		v := p.Alloc()
		assert.False(t, seen[v], "duplicate handle %d", v)
		seen[v] = true
	}

	p.Free(2)
	v := p.Alloc()
	assert.Equal(t, 2, v)
}

func TestIntPoolGrowsOnExhaustion(t *testing.T) {
	p := NewIntPool(1)
	p.Alloc()
	v := p.Alloc() // must grow rather than fail
	assert.GreaterOrEqual(t, v, 0)
}

func TestIntPoolClearReusesAllocatedTail(t *testing.T) {
	p := NewIntPool(3)
	a, b, c := p.Alloc(), p.Alloc(), p.Alloc()
	_ = a
	_ = b
	_ = c
	p.Clear()
	assert.Equal(t, 3, p.Capacity())
	assert.Equal(t, a, p.Alloc())
	assert.Equal(t, b, p.Alloc())
	assert.Equal(t, c, p.Alloc())
}
