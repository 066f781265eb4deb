package table

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// ErrCodepage indicates an unknown or unsupported language driver id.
var ErrCodepage = errors.New("table: unsupported codepage")

// Codepage is the xBASE language driver id stored in the table header. It
// names the single-byte character set of the table's text fields.
type Codepage uint8

// Language driver ids shared with other xBASE implementations reading the
// same files; the values are part of the format.
const (
	CodepageUSDOS   Codepage = 0x01 // U.S. MS-DOS, cp437
	CodepageIntl    Codepage = 0x02 // International MS-DOS, cp850
	CodepageANSI    Codepage = 0x03 // Windows ANSI, cp1252
	CodepageNordic  Codepage = 0x66 // Nordic MS-DOS, cp865
	CodepageRussian Codepage = 0x65 // Russian MS-DOS, cp866
)

var codepageInfo = map[Codepage]struct {
	name string
	enc  encoding.Encoding
}{
	CodepageUSDOS:   {"U.S. MS-DOS", charmap.CodePage437},
	CodepageIntl:    {"International MS-DOS", charmap.CodePage850},
	CodepageANSI:    {"Windows ANSI", charmap.Windows1252},
	CodepageNordic:  {"Nordic MS-DOS", charmap.CodePage865},
	CodepageRussian: {"Russian MS-DOS", charmap.CodePage866},
}

// Supported reports whether the codepage can be decoded.
func (c Codepage) Supported() bool {
	_, ok := codepageInfo[c]
	return ok
}

// Name returns the codepage's display name.
func (c Codepage) Name() string {
	if info, ok := codepageInfo[c]; ok {
		return info.name
	}
	return "unknown codepage"
}

func (c Codepage) String() string { return c.Name() }

// Decode converts field bytes from the table's character set to UTF-8.
func (c Codepage) Decode(b []byte) (string, error) {
	info, ok := codepageInfo[c]
	if !ok {
		return "", fmt.Errorf("id 0x%02X: %w", uint8(c), ErrCodepage)
	}
	out, err := info.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode field: %w", err)
	}
	return string(out), nil
}

// Encode converts a UTF-8 string into the table's character set.
func (c Codepage) Encode(s string) ([]byte, error) {
	info, ok := codepageInfo[c]
	if !ok {
		return nil, fmt.Errorf("id 0x%02X: %w", uint8(c), ErrCodepage)
	}
	out, err := info.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode field: %w", err)
	}
	return out, nil
}
