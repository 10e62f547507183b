package accel

import (
	"testing"

	vk "github.com/NOT-REAL-GAMES/vkrt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocAccelsRangeReusesFreedRangeBeforeBumping(t *testing.T) {
	b := &Builder{accelsCap: 4096}

	a, err := b.allocAccelsRange(100)
	require.NoError(t, err)
	assert.EqualValues(t, 0, a.offset)
	assert.EqualValues(t, 256, a.size) // rounded up to AccelsAlignment

	c, err := b.allocAccelsRange(100)
	require.NoError(t, err)
	assert.EqualValues(t, 256, c.offset)

	b.freeAccelsRange(a)
	d, err := b.allocAccelsRange(100)
	require.NoError(t, err)
	assert.EqualValues(t, a.offset, d.offset, "freed range should be reused instead of bumping further")
}

func TestAllocAccelsRangeExhaustion(t *testing.T) {
	b := &Builder{accelsCap: 256}

	_, err := b.allocAccelsRange(256)
	require.NoError(t, err)

	_, err = b.allocAccelsRange(1)
	assert.Error(t, err)
}

func TestInstanceFlagsOpaqueForcesCullDisableWhenNotCullBackFace(t *testing.T) {
	inst := Instance{Mode: MaterialOpaque, CullBackFace: false}
	assert.NotZero(t, inst.flags()&vk.GEOMETRY_INSTANCE_TRIANGLE_FACING_CULL_DISABLE_BIT)
}

func TestInstanceMaskByMaterialMode(t *testing.T) {
	assert.EqualValues(t, 0xFF, Instance{Mode: MaterialOpaque}.mask())
	assert.EqualValues(t, 0x01, Instance{Mode: MaterialTranslucent}.mask())
}
