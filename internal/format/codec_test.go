package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHeaderRoundTrip(t *testing.T) {
	c, err := CodecForVersion(VersionNum)
	require.NoError(t, err)

	b := c.EncodeFileHeader()
	require.Len(t, b, FileHeaderSize)

	parsed, err := ParseFileHeader(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(VersionNum), parsed.Version())
}

func TestParseFileHeaderBadMagic(t *testing.T) {
	c, _ := CodecForVersion(VersionNum)
	b := c.EncodeFileHeader()
	b[0] = 'X'

	_, err := ParseFileHeader(b)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestParseFileHeaderVersionMismatch(t *testing.T) {
	c, _ := CodecForVersion(VersionNum)
	b := c.EncodeFileHeader()
	b[FileVersionOffset] = 9

	_, err := ParseFileHeader(b)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestParseFileHeaderTruncated(t *testing.T) {
	_, err := ParseFileHeader([]byte{'T', 'L'})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestCodecForUnknownVersion(t *testing.T) {
	_, err := CodecForVersion(1)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestHeaderRoundTrip(t *testing.T) {
	c, _ := CodecForVersion(VersionNum)
	h := Header{
		Type:         EntryWrite,
		ClientID:     7,
		ClientDataID: 12,
		ServerDataID: 900,
		TranID:       -3,
		DataLen:      128,
	}

	b := c.EncodeHeader(nil, h)
	require.Len(t, b, HeaderSize)

	got, err := c.ParseHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestParseHeaderBadType(t *testing.T) {
	c, _ := CodecForVersion(VersionNum)
	b := c.EncodeHeader(nil, Header{Type: EntryStart})
	b[EntryTypeOffset] = 0xFF

	_, err := c.ParseHeader(b)
	assert.ErrorIs(t, err, ErrBadEntryType)
}

func TestTrailerInvariant(t *testing.T) {
	c, _ := CodecForVersion(VersionNum)
	h := Header{Type: EntryAppend, DataLen: 40}

	b := c.PutTrailer(nil, h)
	v, err := c.ParseTrailer(b)
	require.NoError(t, err)
	assert.Equal(t, uint32(HeaderSize+40), v)
	assert.Equal(t, int64(HeaderSize+40+TrailerSize), h.EntryLen())
}

func TestParseShortBuffers(t *testing.T) {
	c, _ := CodecForVersion(VersionNum)

	_, err := c.ParseHeader(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = c.ParseTrailer(make([]byte, TrailerSize-1))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestEntryTypeNames(t *testing.T) {
	assert.Equal(t, "CommitPhaseOne", EntryCommitPhaseOne.String())
	assert.Equal(t, "Unknown", EntryType(99).String())
	assert.True(t, EntryRollback.Terminal())
	assert.True(t, EntryCommitPhaseTwo.Terminal())
	assert.False(t, EntryCommitPhaseOne.Terminal())
}
