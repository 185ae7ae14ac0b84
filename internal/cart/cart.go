package cart

import "errors"

// ErrFileTooShort is returned by Load when the image is smaller than one ROM bank.
var ErrFileTooShort = errors.New("cart: file too short (< 16384 bytes)")

// ErrUnsupportedCartridge is returned by Load when the header's cartridge type
// is neither ROM-only (0x00) nor an MBC1 variant (0x01-0x03).
var ErrUnsupportedCartridge = errors.New("cart: unsupported cartridge type")

// Cartridge is the minimal interface the memory bus needs for ROM/RAM banking.
// Addresses are CPU addresses; implementations never see anything outside
// 0x0000-0x7FFF and 0xA000-0xBFFF.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000-0x7FFF) and external RAM (0xA000-0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000-0x7FFF) and external RAM writes (0xA000-0xBFFF).
	Write(addr uint16, value byte)
	// SaveState/LoadState serialize banking registers and external RAM for save states.
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is implemented by cartridges with external RAM worth persisting
// to a .sav file across sessions.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// Load parses the header at the front of rom and returns the matching
// Cartridge implementation. It fails closed: a too-short image or an
// unsupported MBC type is an error rather than a silent fallback.
func Load(rom []byte) (Cartridge, *Header, error) {
	if len(rom) < 16384 {
		return nil, nil, ErrFileTooShort
	}
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, nil, err
	}
	switch h.CartType {
	case 0x00:
		return NewROMOnly(rom), h, nil
	case 0x01, 0x02, 0x03:
		return NewMBC1(rom, h.RAMSizeBytes), h, nil
	default:
		return nil, nil, ErrUnsupportedCartridge
	}
}
