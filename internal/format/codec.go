package format

import (
	"bytes"
	"fmt"

	"github.com/tablekit/tranlog/internal/buf"
)

// Codec encodes and decodes log structures for one format version. Format
// differences are resolved once, when a file is created or opened, by
// selecting a Codec; call sites never branch on version.
type Codec interface {
	// Version returns the format version this codec reads and writes.
	Version() uint16

	// EncodeFileHeader writes the file-level header block into a fresh
	// FileHeaderSize buffer.
	EncodeFileHeader() []byte

	// EncodeHeader appends the encoded entry header to dst.
	EncodeHeader(dst []byte, h Header) []byte

	// ParseHeader decodes an entry header from b.
	ParseHeader(b []byte) (Header, error)

	// PutTrailer appends the encoded trailer for h to dst.
	PutTrailer(dst []byte, h Header) []byte

	// ParseTrailer decodes a trailer value from b.
	ParseTrailer(b []byte) (uint32, error)
}

// CodecForVersion returns the Codec for a format version.
func CodecForVersion(version uint16) (Codec, error) {
	if version != VersionNum {
		return nil, fmt.Errorf("version %d: %w", version, ErrVersionMismatch)
	}
	return codecV2{}, nil
}

// ParseFileHeader validates a file-level header block and returns the Codec
// matching its recorded version.
func ParseFileHeader(b []byte) (Codec, error) {
	if !buf.Has(b, 0, FileHeaderSize) {
		return nil, fmt.Errorf("file header: %w", ErrTruncated)
	}
	if !bytes.Equal(b[FileSignatureOffset:FileSignatureOffset+len(LogSignature)], LogSignature) {
		return nil, fmt.Errorf("file header: %w", ErrBadMagic)
	}
	version := buf.U16LE(b[FileVersionOffset:])
	return CodecForVersion(version)
}

// codecV2 is the version-2 little-endian codec, the only dialect currently
// written. Older version-1 files predate the trailer invariant and are
// rejected by CodecForVersion.
type codecV2 struct{}

func (codecV2) Version() uint16 { return VersionNum }

func (c codecV2) EncodeFileHeader() []byte {
	b := make([]byte, FileHeaderSize)
	copy(b[FileSignatureOffset:], LogSignature)
	buf.PutU16(b, FileVersionOffset, c.Version())
	buf.PutU16(b, FileCodecOffset, c.Version())
	return b
}

func (codecV2) EncodeHeader(dst []byte, h Header) []byte {
	var b [HeaderSize]byte
	buf.PutU16(b[:], EntryTypeOffset, uint16(h.Type))
	buf.PutI32(b[:], ClientIDOffset, h.ClientID)
	buf.PutU32(b[:], ClientDataIDOffset, h.ClientDataID)
	buf.PutU32(b[:], ServerDataIDOffset, h.ServerDataID)
	buf.PutI32(b[:], TranIDOffset, h.TranID)
	buf.PutU32(b[:], DataLenOffset, h.DataLen)
	return append(dst, b[:]...)
}

func (codecV2) ParseHeader(b []byte) (Header, error) {
	if !buf.Has(b, 0, HeaderSize) {
		return Header{}, fmt.Errorf("entry header: %w", ErrTruncated)
	}
	h := Header{
		Type:         EntryType(buf.U16LE(b[EntryTypeOffset:])),
		ClientID:     buf.I32LE(b[ClientIDOffset:]),
		ClientDataID: buf.U32LE(b[ClientDataIDOffset:]),
		ServerDataID: buf.U32LE(b[ServerDataIDOffset:]),
		TranID:       buf.I32LE(b[TranIDOffset:]),
		DataLen:      buf.U32LE(b[DataLenOffset:]),
	}
	if !h.Type.Valid() {
		return Header{}, fmt.Errorf("entry type %d: %w", uint16(h.Type), ErrBadEntryType)
	}
	return h, nil
}

func (codecV2) PutTrailer(dst []byte, h Header) []byte {
	var b [TrailerSize]byte
	buf.PutU32(b[:], 0, h.Trailer())
	return append(dst, b[:]...)
}

func (codecV2) ParseTrailer(b []byte) (uint32, error) {
	if !buf.Has(b, 0, TrailerSize) {
		return 0, fmt.Errorf("entry trailer: %w", ErrTruncated)
	}
	return buf.U32LE(b), nil
}
