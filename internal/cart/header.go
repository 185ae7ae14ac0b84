package cart

import (
	"encoding/binary"
	"errors"
	"strings"
)

// The cartridge header occupies 0x0100-0x014F; everything this package
// cares about sits in the tail of that window, 0x0134-0x014F.
const (
	headerFieldsStart = 0x0134
	headerFieldsEnd   = 0x014F
)

// nintendoLogoRef is the 48-byte bitmap the boot ROM would have compared
// against before unlocking the LCD. Nothing in this emulator enforces a
// match (test ROMs routinely omit it); it exists for this package's test
// fixtures and for a possible future logo-mismatch warning.
var nintendoLogoRef = [48]byte{
	0xCE, 0xED, 0x66, 0x66, 0xCC, 0x0D, 0x00, 0x0B, 0x03, 0x73, 0x00, 0x83, 0x00, 0x0C, 0x00, 0x0D,
	0x00, 0x08, 0x11, 0x1F, 0x88, 0x89, 0x00, 0x0E, 0xDC, 0xCC, 0x6E, 0xE6, 0xDD, 0xDD, 0xD9, 0x99,
	0xBB, 0xBB, 0x67, 0x63, 0x6E, 0x0E, 0xEC, 0xCC, 0xDD, 0xDC, 0x99, 0x9F, 0xBB, 0xB9, 0x33, 0x3E,
}

// Header holds the fields of a parsed cartridge header plus a handful of
// decoded conveniences (ROMBanks, CartTypeStr) that every caller of
// ParseHeader ends up wanting rather than re-deriving.
type Header struct {
	Title          string
	CGBFlag        byte
	NewLicensee    string
	SGBFlag        byte
	CartType       byte
	ROMSizeCode    byte
	RAMSizeCode    byte
	Destination    byte
	OldLicensee    byte
	ROMVersion     byte
	HeaderChecksum byte
	GlobalChecksum uint16

	ROMSizeBytes int
	ROMBanks     int
	RAMSizeBytes int
	CartTypeStr  string
}

// ParseHeader reads the header fields out of rom. It does not validate the
// Nintendo logo or either checksum; callers that care use HeaderChecksumOK
// separately, and Load treats an unrecognized CartType as fatal on its own.
func ParseHeader(rom []byte) (*Header, error) {
	if len(rom) < headerFieldsEnd+1 {
		return nil, errors.New("cart: rom too short to contain a header")
	}

	h := &Header{
		Title:          strings.TrimRight(string(rom[0x0134:0x0144]), "\x00"),
		CGBFlag:        rom[0x0143],
		NewLicensee:    string(rom[0x0144:0x0146]),
		SGBFlag:        rom[0x0146],
		CartType:       rom[0x0147],
		ROMSizeCode:    rom[0x0148],
		RAMSizeCode:    rom[0x0149],
		Destination:    rom[0x014A],
		OldLicensee:    rom[0x014B],
		ROMVersion:     rom[0x014C],
		HeaderChecksum: rom[0x014D],
		GlobalChecksum: binary.BigEndian.Uint16(rom[0x014E:0x0150]),
	}
	h.ROMSizeBytes, h.ROMBanks = romBanksForCode(h.ROMSizeCode)
	h.RAMSizeBytes = ramBytesForCode(h.RAMSizeCode)
	h.CartTypeStr = describeCartType(h.CartType)
	return h, nil
}

// HeaderChecksumOK recomputes the header checksum (0x0134-0x014C, Pan Docs'
// algorithm) and compares it against the byte stored at 0x014D.
func HeaderChecksumOK(rom []byte) bool {
	if len(rom) < 0x014E {
		return false
	}
	var sum byte
	for addr := 0x0134; addr <= 0x014C; addr++ {
		sum = sum - rom[addr] - 1
	}
	return sum == rom[0x014D]
}

// romBankSizes maps the ROM size byte to (total size, number of 16 KiB
// banks). Codes 0x52-0x54 describe the three odd, non-power-of-two sizes
// used by a handful of real cartridges; everything else doubles from 32 KiB.
var romBankSizes = map[byte]struct{ bytes, banks int }{
	0x00: {32 * 1024, 2},
	0x01: {64 * 1024, 4},
	0x02: {128 * 1024, 8},
	0x03: {256 * 1024, 16},
	0x04: {512 * 1024, 32},
	0x05: {1024 * 1024, 64},
	0x06: {2 * 1024 * 1024, 128},
	0x07: {4 * 1024 * 1024, 256},
	0x08: {8 * 1024 * 1024, 512},
	0x52: {1152 * 1024, 72},
	0x53: {1280 * 1024, 80},
	0x54: {1536 * 1024, 96},
}

func romBanksForCode(code byte) (size, banks int) {
	if e, ok := romBankSizes[code]; ok {
		return e.bytes, e.banks
	}
	return 0, 0
}

var ramSizesBytes = map[byte]int{
	0x00: 0,
	0x02: 8 * 1024,
	0x03: 32 * 1024,
	0x04: 128 * 1024,
	0x05: 64 * 1024,
}

func ramBytesForCode(code byte) int {
	return ramSizesBytes[code]
}

// describeCartType gives a short human-readable label for logging; Load
// is what actually decides whether the type is playable.
func describeCartType(code byte) string {
	switch {
	case code == 0x00:
		return "ROM ONLY"
	case code >= 0x01 && code <= 0x03:
		return "MBC1 (variants)"
	default:
		return "unsupported"
	}
}
