package gpubuf

import (
	"testing"

	"github.com/NOT-REAL-GAMES/vkrt/alloc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDEBuffer(staticSize, dynamicSize uint32) *DEBuffer {
	return &DEBuffer{
		staticSize:  staticSize,
		dynamicSize: dynamicSize,
		dynamic:     alloc.NewFlipping(dynamicSize),
	}
}

func TestDEBufferStaticBumpNeverReused(t *testing.T) {
	d := newTestDEBuffer(256, 128)

	a, err := d.Alloc(LifetimeStatic, 64, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, a)

	b, err := d.Alloc(LifetimeStatic, 64, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 64, b)

	_, err = d.Alloc(LifetimeStatic, 256, 1)
	assert.Error(t, err, "static region must not exceed staticSize")
}

func TestDEBufferDynamicOffsetsIntoSecondHalf(t *testing.T) {
	d := newTestDEBuffer(256, 128)

	off, err := d.Alloc(LifetimeDynamic, 64, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 256, off, "dynamic allocations start at staticSize")

	d.Flip()
	off2, err := d.Alloc(LifetimeDynamic, 64, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 256+64, off2)
}
