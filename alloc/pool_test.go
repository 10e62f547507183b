package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertPartition checks the §8 "Pool partition" invariant: blocks tile
// [0, size) exactly, in order, with no two adjacent empty blocks.
func assertPartition(t *testing.T, p *Pool) {
	t.Helper()
	blocks := p.Blocks()
	require.NotEmpty(t, blocks)
	assert.EqualValues(t, 0, blocks[0].Begin)
	assert.EqualValues(t, p.Size(), blocks[len(blocks)-1].End)

	for i := 1; i < len(blocks); i++ {
		assert.Equal(t, blocks[i-1].End, blocks[i].Begin, "gap/overlap between block %d and %d", i-1, i)
		if !blocks[i-1].Allocated && !blocks[i].Allocated {
			t.Fatalf("adjacent empty blocks at index %d, %d", i-1, i)
		}
	}
}

func TestPoolTriFillAndMiddleRealloc(t *testing.T) {
	p := NewPool(1000, 5, 1)

	b1, ok := p.Allocate(700, 1)
	require.True(t, ok)
	assert.EqualValues(t, 0, b1.Offset)
	assert.EqualValues(t, 700, b1.Size)

	b2, ok := p.Allocate(200, 1)
	require.True(t, ok)
	assert.EqualValues(t, 700, b2.Offset)

	b3, ok := p.Allocate(100, 1)
	require.True(t, ok)
	assert.EqualValues(t, 900, b3.Offset)
	assertPartition(t, p)

	p.Free(b2.Index)
	b2, ok = p.Allocate(150, 1)
	require.True(t, ok)
	assert.EqualValues(t, 700, b2.Offset)
	assert.EqualValues(t, 150, b2.Size)

	p.Free(b1.Index)
	b1, ok = p.Allocate(650, 1)
	require.True(t, ok)
	assert.EqualValues(t, 0, b1.Offset)
	assert.EqualValues(t, 650, b1.Size)

	p.Free(b3.Index)
	b3, ok = p.Allocate(80, 1)
	require.True(t, ok)
	assert.EqualValues(t, 850, b3.Offset)
	assert.EqualValues(t, 80, b3.Size)
	assertPartition(t, p)

	p.Free(b1.Index)
	p.Free(b2.Index)
	p.Free(b3.Index)

	// Pool idempotence (§8): after freeing everything, one alloc(size) -> 0.
	b1, ok = p.Allocate(1000, 1)
	require.True(t, ok)
	assert.EqualValues(t, 0, b1.Offset)
	assertPartition(t, p)
}

func TestPoolAlignmentChain(t *testing.T) {
	p := NewPool(1000, 5, 1)

	b0, ok := p.Allocate(5, 1)
	require.True(t, ok)
	assert.EqualValues(t, 0, b0.Offset)

	b1, ok := p.Allocate(19, 4)
	require.True(t, ok)
	assert.EqualValues(t, 8, b1.Offset)

	b2, ok := p.Allocate(39, 16)
	require.True(t, ok)
	assert.EqualValues(t, 32, b2.Offset)

	b3, ok := p.Allocate(200, 128)
	require.True(t, ok)
	assert.EqualValues(t, 128, b3.Offset)

	b4, ok := p.Allocate(488, 512)
	require.True(t, ok)
	assert.EqualValues(t, 512, b4.Offset)

	_, ok = p.Allocate(200, 256)
	assert.False(t, ok, "expected FAILED: no 256-aligned hole of 200 bytes left")

	p.Free(b3.Index)

	b5, ok := p.Allocate(200, 256)
	require.True(t, ok)
	assert.EqualValues(t, 256, b5.Offset)
	assert.EqualValues(t, 200, b5.Size)

	assertPartition(t, p)
}

func TestPoolAlignmentFloor(t *testing.T) {
	p := NewPool(1000, 5, 16)
	b, ok := p.Allocate(5, 1)
	require.True(t, ok)
	assert.Zero(t, b.Offset%16)
}

func TestPoolManySmallBlocksAndHoleReuse(t *testing.T) {
	p := NewPool(1000, 5, 1)

	var blocks [10]Allocation
	for i := 0; i < 10; i++ {
		b, ok := p.Allocate(100, 1)
		require.True(t, ok)
		assert.EqualValues(t, 100*i, b.Offset)
		blocks[i] = b
	}

	_, ok := p.Allocate(100, 1)
	assert.False(t, ok)

	p.Free(blocks[2].Index)
	p.Free(blocks[4].Index)
	p.Free(blocks[3].Index)

	b, ok := p.Allocate(300, 1)
	require.True(t, ok)
	assert.EqualValues(t, 200, b.Offset)

	p.Free(blocks[7].Index)
	p.Free(blocks[6].Index)
	p.Free(blocks[5].Index)

	b2, ok := p.Allocate(300, 1)
	require.True(t, ok)
	assert.EqualValues(t, 500, b2.Offset)

	p.Free(b2.Index)
	p.Free(blocks[8].Index)
	p.Free(blocks[9].Index)
	p.Free(b.Index)

	b3, ok := p.Allocate(800, 1)
	require.True(t, ok)
	assert.EqualValues(t, 200, b3.Offset)

	p.Free(blocks[0].Index)
	p.Free(blocks[1].Index)
	p.Free(b3.Index)

	b4, ok := p.Allocate(1000, 1)
	require.True(t, ok)
	assert.EqualValues(t, 0, b4.Offset)
	assertPartition(t, p)
}
