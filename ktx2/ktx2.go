// Package ktx2 parses the KTX2 container format far enough to drive an
// image upload: identifier, fixed header, index block, and level array.
// Pixel data itself is never decoded here — only sliced out of the file by
// the offsets the format already carries, matching the core's choice to
// delegate image decoding to a caller-supplied rgbdata collaborator.
package ktx2

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrSupercompressionUnsupported is returned for any file whose
// supercompressionScheme is non-zero. img_ktx2.c in the original bails with
// an engine error string rather than silently dropping the file; this keeps
// that behavior as a named sentinel instead of a generic parse error.
var ErrSupercompressionUnsupported = errors.New("ktx2: supercompression schemes are unsupported")

var identifier = [12]byte{0xAB, 'K', 'T', 'X', ' ', '2', '0', 0xBB, 0x0D, 0x0A, 0x1A, 0x0A}

const (
	identifierSize = 12
	headerFields   = 9
	headerSize     = headerFields * 4 // vkFormat..supercompressionScheme, all uint32

	indexFields     = 6
	indexSize       = indexFields * 8 // dfd/kvd/sgd offset+length pairs, as uint64
	levelRecordSize = 3 * 8           // byteOffset, byteLength, uncompressedByteLength
)

// header is the fixed KTX2 header this core reads.
type header struct {
	vkFormat               uint32
	typeSize               uint32
	pixelWidth             uint32
	pixelHeight            uint32
	pixelDepth             uint32
	layerCount             uint32
	faceCount              uint32
	levelCount             uint32
	supercompressionScheme uint32
}

// Level is one mip level's location in the file.
type Level struct {
	ByteOffset             uint64
	ByteLength             uint64
	UncompressedByteLength uint64
}

// Descriptor is the parsed-out subset of a KTX2 file this core needs:
// width/height, format, and per-level byte ranges.
type Descriptor struct {
	Width, Height uint32
	VkFormat      uint32
	Levels        []Level
}

// Parse reads the identifier, header, index block, and level array from
// data and rejects supercompressed files. Pixel payload bytes are read
// later by the caller via Level.ByteOffset/ByteLength into the same data
// slice.
func Parse(data []byte) (*Descriptor, error) {
	minSize := identifierSize + headerSize + indexSize + levelRecordSize
	if len(data) < minSize {
		return nil, fmt.Errorf("ktx2: file too small: %d bytes, need at least %d", len(data), minSize)
	}
	var id [12]byte
	copy(id[:], data[:identifierSize])
	if id != identifier {
		return nil, fmt.Errorf("ktx2: bad identifier bytes")
	}

	le := binary.LittleEndian
	hOff := identifierSize
	h := header{
		vkFormat:               le.Uint32(data[hOff+0:]),
		typeSize:               le.Uint32(data[hOff+4:]),
		pixelWidth:             le.Uint32(data[hOff+8:]),
		pixelHeight:            le.Uint32(data[hOff+12:]),
		pixelDepth:             le.Uint32(data[hOff+16:]),
		layerCount:             le.Uint32(data[hOff+20:]),
		faceCount:              le.Uint32(data[hOff+24:]),
		levelCount:             le.Uint32(data[hOff+28:]),
		supercompressionScheme: le.Uint32(data[hOff+32:]),
	}

	if h.supercompressionScheme != 0 {
		return nil, ErrSupercompressionUnsupported
	}
	if h.levelCount == 0 {
		return nil, fmt.Errorf("ktx2: levelCount must be >= 1")
	}

	levelArrayOffset := identifierSize + headerSize + indexSize
	levelArrayEnd := levelArrayOffset + int(h.levelCount)*levelRecordSize
	if len(data) < levelArrayEnd {
		return nil, fmt.Errorf("ktx2: file truncated before level array end (%d bytes, need %d)", len(data), levelArrayEnd)
	}

	levels := make([]Level, h.levelCount)
	for i := 0; i < int(h.levelCount); i++ {
		rec := data[levelArrayOffset+i*levelRecordSize:]
		levels[i] = Level{
			ByteOffset:             le.Uint64(rec[0:]),
			ByteLength:             le.Uint64(rec[8:]),
			UncompressedByteLength: le.Uint64(rec[16:]),
		}
	}

	return &Descriptor{
		Width:    h.pixelWidth,
		Height:   h.pixelHeight,
		VkFormat: h.vkFormat,
		Levels:   levels,
	}, nil
}
