package resources

import (
	"testing"

	"github.com/NOT-REAL-GAMES/vkrt/combuf"
	"github.com/NOT-REAL-GAMES/vkrt/gpuimage"
	vk "github.com/NOT-REAL-GAMES/vkrt"
	"github.com/stretchr/testify/assert"
)

// newTestGraph builds a graph with two paired slots, bypassing New/Register
// (which call into the device) for pure white-box testing of the swap and
// barrier-collation logic.
func newTestGraph() (*Graph, *Slot, *Slot) {
	g := &Graph{byName: make(map[string]int)}
	cur := &Slot{Name: "gi_current", DescriptorType: DescriptorStorageImage, Image: &gpuimage.Image{Handle: vk.Image{}}}
	prev := &Slot{Name: "gi_prev", DescriptorType: DescriptorStorageImage, Image: &gpuimage.Image{Handle: vk.Image{}}}
	cur.Sync.Write = combuf.AccessState{Access: vk.ACCESS_SHADER_WRITE_BIT, Stage: vk.PIPELINE_STAGE_COMPUTE_SHADER_BIT}

	g.slots = []*Slot{cur, prev}
	g.byName["gi_current"] = 0
	g.byName["gi_prev"] = 1
	cur.sourceIndexPlus1 = 2 // partner is prev, slot index 1, offset by 1

	return g, cur, prev
}

func TestPrevFrameSwapExchangesImagesAndSync(t *testing.T) {
	g, cur, prev := newTestGraph()
	curImage := cur.Image
	prevImage := prev.Image

	g.FrameBeginStateChange(nil, vk.CommandBuffer{}, false)

	assert.Same(t, curImage, prev.Image, "current frame's image becomes the previous-frame slot's image")
	assert.Same(t, prevImage, cur.Image, "previous frame's image becomes the current slot's image")
	assert.EqualValues(t, vk.PIPELINE_STAGE_COMPUTE_SHADER_BIT, prev.Sync.Write.Stage, "current frame's sync state moves to the previous-frame slot")
	assert.Zero(t, cur.Sync, "previous frame's (untouched) sync state moves to the current slot")
}

func TestPrevFrameSwapClearsOnDiscontinuity(t *testing.T) {
	g, cur, _ := newTestGraph()
	cur.Image = nil // skip the real clear-image barrier path; verify Sync reset only

	g.FrameBeginStateChange(nil, vk.CommandBuffer{}, true)

	assert.Zero(t, g.slots[1].Sync, "discontinuity clears the new previous-frame slot's sync state")
}

func TestPrevFrameSwapClearsOnFirstUse(t *testing.T) {
	g, cur, _ := newTestGraph()
	// The current half was read but never written, so after the swap the
	// partner's Sync.Write.Stage is zero.
	cur.Image = nil
	cur.Sync = combuf.Sync{Read: combuf.AccessState{Access: vk.ACCESS_SHADER_READ_BIT, Stage: vk.PIPELINE_STAGE_COMPUTE_SHADER_BIT}}

	g.FrameBeginStateChange(nil, vk.CommandBuffer{}, false)

	assert.Zero(t, g.slots[1].Sync, "a partner never written to is cleared even without a discontinuity")
}

func TestAddToBarrierRoutesByDescriptorType(t *testing.T) {
	var bufs []combuf.BufferDecl
	var imgs []combuf.ImageDecl
	g := &Graph{}

	storageImage := &Slot{DescriptorType: DescriptorStorageImage, Image: &gpuimage.Image{Handle: vk.Image{}}}
	storageBuffer := &Slot{DescriptorType: DescriptorStorageBuffer, Buffer: vk.Buffer{}}
	sampler := &Slot{DescriptorType: DescriptorSampler}
	ubo := &Slot{DescriptorType: DescriptorUniformBuffer}

	g.AddToBarrier(storageImage, &bufs, &imgs)
	g.AddToBarrier(storageBuffer, &bufs, &imgs)
	g.AddToBarrier(sampler, &bufs, &imgs)
	g.AddToBarrier(ubo, &bufs, &imgs)

	assert.Len(t, imgs, 1)
	assert.Len(t, bufs, 1)
	assert.EqualValues(t, vk.ACCESS_SHADER_WRITE_BIT, imgs[0].Access)
	assert.EqualValues(t, vk.ACCESS_SHADER_READ_BIT, bufs[0].Access)
}
