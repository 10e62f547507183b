package ktx2

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFile assembles a minimal single-level KTX2 file: identifier, header,
// a zeroed index block, one level record, then the payload bytes.
func buildFile(vkFormat, width, height uint32, payload []byte) []byte {
	le := binary.LittleEndian
	buf := make([]byte, identifierSize+headerSize+indexSize+levelRecordSize+len(payload))
	copy(buf, identifier[:])

	hOff := identifierSize
	le.PutUint32(buf[hOff+0:], vkFormat)
	le.PutUint32(buf[hOff+4:], 1) // typeSize
	le.PutUint32(buf[hOff+8:], width)
	le.PutUint32(buf[hOff+12:], height)
	le.PutUint32(buf[hOff+16:], 0) // pixelDepth
	le.PutUint32(buf[hOff+20:], 0) // layerCount
	le.PutUint32(buf[hOff+24:], 1) // faceCount
	le.PutUint32(buf[hOff+28:], 1) // levelCount
	le.PutUint32(buf[hOff+32:], 0) // supercompressionScheme

	levelOff := identifierSize + headerSize + indexSize
	payloadOff := levelOff + levelRecordSize
	le.PutUint64(buf[levelOff+0:], uint64(payloadOff))
	le.PutUint64(buf[levelOff+8:], uint64(len(payload)))
	le.PutUint64(buf[levelOff+16:], uint64(len(payload)))

	copy(buf[payloadOff:], payload)
	return buf
}

const vkFormatUnormR8G8B8A8 = 37

func TestParseSingleLevelFile(t *testing.T) {
	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}
	file := buildFile(vkFormatUnormR8G8B8A8, 4, 4, payload)

	desc, err := Parse(file)
	require.NoError(t, err)

	assert.EqualValues(t, 4, desc.Width)
	assert.EqualValues(t, 4, desc.Height)
	assert.EqualValues(t, vkFormatUnormR8G8B8A8, desc.VkFormat)
	require.Len(t, desc.Levels, 1)
	assert.EqualValues(t, 64, desc.Levels[0].ByteLength)

	start := desc.Levels[0].ByteOffset
	end := start + desc.Levels[0].ByteLength
	assert.Equal(t, payload, file[start:end])
}

func TestParseRejectsSupercompression(t *testing.T) {
	file := buildFile(vkFormatUnormR8G8B8A8, 4, 4, make([]byte, 64))
	le := binary.LittleEndian
	le.PutUint32(file[identifierSize+32:], 2) // non-zero supercompressionScheme

	_, err := Parse(file)
	assert.ErrorIs(t, err, ErrSupercompressionUnsupported)
}

func TestParseRejectsBadIdentifier(t *testing.T) {
	file := buildFile(vkFormatUnormR8G8B8A8, 4, 4, make([]byte, 64))
	file[0] = 0x00

	_, err := Parse(file)
	assert.Error(t, err)
}

func TestParseRejectsTruncatedFile(t *testing.T) {
	file := buildFile(vkFormatUnormR8G8B8A8, 4, 4, make([]byte, 64))
	_, err := Parse(file[:identifierSize+headerSize])
	assert.Error(t, err)
}
