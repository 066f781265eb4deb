package format

// Header captures the fixed per-entry header preceding every payload in the
// log file. The diagram below gives the on-disk offsets.
//
//	Offset  Size  Description
//	------  ----  ----------------------------------------------------------
//	 0x00    2    Entry type (EntryType)
//	 0x02    2    Reserved, zero
//	 0x04    4    Client id (signed; session identity of the writer)
//	 0x08    4    Client data id (client-side table handle)
//	 0x0C    4    Server data id (server-side table identity)
//	 0x10    4    Transaction id (signed)
//	 0x14    4    Payload length in bytes
//
// Every entry is followed by DataLen payload bytes and a 4-byte trailer
// holding HeaderSize+DataLen. All fields are little-endian.
type Header struct {
	Type         EntryType
	ClientID     int32
	ClientDataID uint32
	ServerDataID uint32
	TranID       int32
	DataLen      uint32
}

// EntryLen returns the total on-disk size of the entry described by h,
// header and trailer included.
func (h Header) EntryLen() int64 {
	return int64(HeaderSize) + int64(h.DataLen) + int64(TrailerSize)
}

// Trailer returns the trailing length value the entry must carry. The
// invariant trailer == HeaderSize+DataLen is what backward navigation and
// corruption detection both rest on.
func (h Header) Trailer() uint32 {
	return uint32(HeaderSize) + h.DataLen
}
