package gpuimage

import (
	"testing"
	"unsafe"

	"github.com/NOT-REAL-GAMES/vkrt/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUploadQueueAtomicity is the §8 "Upload queue atomicity" invariant:
// after upload_end, cursor must equal the reserved image size and the slice
// index must equal the declared slice count.
func TestUploadQueueAtomicity(t *testing.T) {
	backing := make([]byte, 128)
	img := &Image{Layers: 1, Mips: 2, uploadSlot: 0}
	slot := &uploadSlot{
		image:      img,
		imageSize:  128,
		sliceBegin: 0,
		sliceEnd:   2,
	}
	slot.region.Ptr = unsafe.Pointer(&backing[0])

	q := &Queue{slots: []*uploadSlot{slot}}

	require.NoError(t, q.Slice(img, 0, 0, 8, 8, 1, make([]byte, 64)))
	require.NoError(t, q.Slice(img, 0, 1, 4, 4, 1, make([]byte, 64)))

	require.NoError(t, q.End(img))
	assert.EqualValues(t, 128, slot.cursor)
	assert.Equal(t, slot.sliceEnd-slot.sliceBegin, slot.sliceIdx)
}

// TestUploadEndRejectsShortWrite verifies upload_end refuses to close a slot
// whose cursor hasn't reached the reserved size.
func TestUploadEndRejectsShortWrite(t *testing.T) {
	backing := make([]byte, 64)
	img := &Image{Layers: 1, Mips: 1, uploadSlot: 0}
	slot := &uploadSlot{image: img, imageSize: 64, sliceBegin: 0, sliceEnd: 1}
	slot.region.Ptr = unsafe.Pointer(&backing[0])

	q := &Queue{slots: []*uploadSlot{slot}}
	require.NoError(t, q.Slice(img, 0, 0, 4, 4, 1, make([]byte, 32)))

	assert.Error(t, q.End(img))
}

// TestUploadSliceRejectsOverflow verifies a slice write that would exceed
// the reserved staging region is rejected rather than corrupting memory.
func TestUploadSliceRejectsOverflow(t *testing.T) {
	backing := make([]byte, 32)
	img := &Image{Layers: 1, Mips: 1, uploadSlot: 0}
	slot := &uploadSlot{image: img, imageSize: 32, sliceBegin: 0, sliceEnd: 1}
	slot.region.Ptr = unsafe.Pointer(&backing[0])

	q := &Queue{slots: []*uploadSlot{slot}}
	assert.Error(t, q.Slice(img, 0, 0, 8, 8, 1, make([]byte, 64)))
}

// TestCancelClearsSlotWithoutRecordingCopy verifies upload_cancel drops the
// slot and leaves the image with no open upload.
func TestCancelClearsSlotWithoutRecordingCopy(t *testing.T) {
	backing := make([]byte, 16)
	imgA := &Image{Layers: 1, Mips: 1, uploadSlot: 0}
	imgB := &Image{Layers: 1, Mips: 1, uploadSlot: 1}
	slotA := &uploadSlot{image: imgA, imageSize: 16, sliceBegin: 0, sliceEnd: 1}
	slotA.region.Ptr = unsafe.Pointer(&backing[0])
	slotB := &uploadSlot{image: imgB, imageSize: 16, sliceBegin: 0, sliceEnd: 1}
	slotB.region.Ptr = unsafe.Pointer(&backing[0])

	q := &Queue{arena: &staging.Arena{}, slots: []*uploadSlot{slotA, slotB}}
	q.Cancel(imgA)

	assert.Equal(t, -1, imgA.uploadSlot)
	assert.Len(t, q.slots, 1)
	assert.Equal(t, 0, imgB.uploadSlot)
}
