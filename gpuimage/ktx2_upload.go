package gpuimage

import (
	"fmt"

	"github.com/NOT-REAL-GAMES/vkrt/ktx2"
)

// UploadFromKTX2 drives one upload_begin/upload_slice/upload_end cycle from
// a parsed KTX2 descriptor: one slice per mip level, each read directly out
// of the source file bytes at its declared byteOffset/byteLength. Layer and
// face arrays beyond layer 0/face 0 are out of scope here (the core only
// needs width/height, per-level byte ranges, and format per spec).
func (q *Queue) UploadFromKTX2(img *Image, file []byte, desc *ktx2.Descriptor) error {
	var total uint32
	for _, lvl := range desc.Levels {
		total += uint32(lvl.ByteLength)
	}

	if err := q.Begin(img, total); err != nil {
		return fmt.Errorf("gpuimage: upload_from_ktx2: %w", err)
	}

	width, height := desc.Width, desc.Height
	for mip, lvl := range desc.Levels {
		end := lvl.ByteOffset + lvl.ByteLength
		if end > uint64(len(file)) {
			q.Cancel(img)
			return fmt.Errorf("gpuimage: upload_from_ktx2: level %d out of bounds (end %d, file %d bytes)", mip, end, len(file))
		}
		data := file[lvl.ByteOffset:end]
		if err := q.Slice(img, 0, uint32(mip), width, height, 1, data); err != nil {
			q.Cancel(img)
			return fmt.Errorf("gpuimage: upload_from_ktx2: %w", err)
		}
		if width > 1 {
			width /= 2
		}
		if height > 1 {
			height /= 2
		}
	}

	return q.End(img)
}
