package combuf

import (
	"testing"

	vk "github.com/NOT-REAL-GAMES/vkrt"
	"github.com/stretchr/testify/assert"
)

// TestBarrierInferenceSequence is the §8 "Combuf barrier minimality" scenario:
// same buffer, same cmdbuf, write -> read -> read(same stage) -> write.
func TestBarrierInferenceSequence(t *testing.T) {
	c := &Combuf{tag: 1}
	sync := &Sync{}

	stageCompute := vk.PIPELINE_STAGE_COMPUTE_SHADER_BIT

	_, need1 := c.track(sync, vk.ACCESS_SHADER_WRITE_BIT, stageCompute)
	assert.False(t, need1, "first write in a fresh cmdbuf must not barrier")

	_, need2 := c.track(sync, vk.ACCESS_SHADER_READ_BIT, stageCompute)
	assert.True(t, need2, "read after write must barrier, sourcing the write")

	_, need3 := c.track(sync, vk.ACCESS_SHADER_READ_BIT, stageCompute)
	assert.False(t, need3, "redundant read at the same stage must not re-barrier")

	_, need4 := c.track(sync, vk.ACCESS_SHADER_WRITE_BIT, stageCompute)
	assert.True(t, need4, "write after read must barrier, sourcing the merged read+write set")
}

// TestBarrierInferenceFirstUseAcrossTags verifies that a tag refresh (new
// cmdbuf) resets tracking: the first declaration against a fresh tag never
// barriers even if sync previously held state from an older generation.
func TestBarrierInferenceFirstUseAcrossTags(t *testing.T) {
	c := &Combuf{tag: 5}
	sync := &Sync{CombufTag: 4, Write: AccessState{Access: vk.ACCESS_SHADER_WRITE_BIT, Stage: vk.PIPELINE_STAGE_COMPUTE_SHADER_BIT}}

	_, need := c.track(sync, vk.ACCESS_SHADER_READ_BIT, vk.PIPELINE_STAGE_FRAGMENT_SHADER_BIT)
	assert.False(t, need, "first use against the current tag must not barrier, even with stale sync state")
	assert.Equal(t, uint64(5), sync.CombufTag)
}

// TestMixedAccessPanics verifies declaring both a write and read bit in one
// access value is rejected (the spec: "mixed read+write... is disallowed").
func TestMixedAccessPanics(t *testing.T) {
	defer func() {
		assert.NotNil(t, recover(), "mixed read+write access should panic")
	}()
	c := &Combuf{tag: 1}
	mixed := vk.ACCESS_SHADER_WRITE_BIT | vk.ACCESS_SHADER_READ_BIT
	// The mixed-access check panics before anything is recorded into cmd.
	c.IssueBarrier(vk.CommandBuffer{}, vk.PIPELINE_STAGE_COMPUTE_SHADER_BIT, []BufferDecl{{Sync: &Sync{}, Access: mixed}}, nil)
}

// TestTagNeverZeroAcrossWrap verifies the §8 "Combuf tag uniqueness"
// invariant holds across a manual wraparound.
func TestTagNeverZeroAcrossWrap(t *testing.T) {
	c := &Combuf{tag: ^uint64(0), current: 0}
	c.tag++
	if c.tag == 0 {
		c.tag = 1
	}
	assert.NotZero(t, c.tag)
}
