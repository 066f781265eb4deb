package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestU16LE(t *testing.T) {
	assert.Equal(t, uint16(0x0201), U16LE([]byte{0x01, 0x02}))
	assert.Equal(t, uint16(0), U16LE([]byte{0x01}))
}

func TestU32LE(t *testing.T) {
	assert.Equal(t, uint32(0x04030201), U32LE([]byte{0x01, 0x02, 0x03, 0x04}))
	assert.Equal(t, uint32(0), U32LE([]byte{0x01, 0x02, 0x03}))
}

func TestI32LE(t *testing.T) {
	assert.Equal(t, int32(-1), I32LE([]byte{0xFF, 0xFF, 0xFF, 0xFF}))
	assert.Equal(t, int32(0), I32LE(nil))
}

func TestPutRoundTrip(t *testing.T) {
	b := make([]byte, 10)
	PutU16(b, 0, 0xBEEF)
	PutU32(b, 2, 0xDEADBEEF)
	PutI32(b, 6, -42)
	assert.Equal(t, uint16(0xBEEF), U16LE(b[0:]))
	assert.Equal(t, uint32(0xDEADBEEF), U32LE(b[2:]))
	assert.Equal(t, int32(-42), I32LE(b[6:]))
}
