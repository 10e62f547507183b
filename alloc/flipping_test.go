package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlippingRetiresFrameTwoFlipsLater(t *testing.T) {
	f := NewFlipping(128)

	a := f.Alloc(64, 1)
	assert.EqualValues(t, 0, a)
	f.Flip() // frame 0 -> prev; frame 1 starts empty, ring still holds [0,64)

	b := f.Alloc(32, 1)
	assert.EqualValues(t, 64, b)
	f.Flip() // frees up to frame 0's first alloc (0): nothing retired, [0,96) still live

	assert.Equal(t, RingFailed, f.Alloc(64, 1), "frame 0 is still the previous frame's data")
	f.Flip() // frees up to frame 1's first alloc (64): retires frame 0's span [0,64)

	c := f.Alloc(64, 1)
	assert.EqualValues(t, 0, c, "frame 0's span should have been retired")
}
