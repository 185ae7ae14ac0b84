// Package bus implements the DMG memory map: it owns WRAM, VRAM, OAM and
// HRAM directly, routes cartridge-window accesses to the loaded cartridge,
// and forwards the I/O register window to the I/O dispatcher.
package bus

import (
	"bytes"
	"encoding/gob"

	"github.com/dmgcore/dmgboy/internal/cart"
)

// IODispatcher is the subset of the I/O dispatcher the bus needs. Addresses
// passed in are absolute CPU addresses in 0xFF00-0xFF7F or 0xFFFF.
type IODispatcher interface {
	Read(addr uint16) byte
	Write(addr uint16, value byte)
}

// Bus routes 16-bit CPU addresses to the owning component.
type Bus struct {
	cart cart.Cartridge
	io   IODispatcher

	vram [0x2000]byte // 0x8000-0x9FFF
	wram [0x2000]byte // 0xC000-0xDFFF (0xE000-0xFDFF mirrors the first 0x1E00 of it)
	oam  [0x00A0]byte // 0xFE00-0xFE9F
	hram [0x007F]byte // 0xFF80-0xFFFE
}

// New creates a bus over the given cartridge and I/O dispatcher.
func New(c cart.Cartridge, io IODispatcher) *Bus {
	return &Bus{cart: c, io: io}
}

// SetCartridge swaps the loaded cartridge, e.g. when loading a new ROM.
func (b *Bus) SetCartridge(c cart.Cartridge) { b.cart = c }

// Read performs an 8-bit read, checked in the order documented for the
// memory map: cartridge windows, I/O window, WRAM mirror, OAM, VRAM, WRAM,
// HRAM. Unmapped ranges return 0xFF.
func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr <= 0x7FFF, addr >= 0xA000 && addr <= 0xBFFF:
		if b.cart != nil {
			return b.cart.Read(addr)
		}
		return 0xFF
	case addr >= 0xFF00 && addr <= 0xFF7F, addr == 0xFFFF:
		if b.io != nil {
			return b.io.Read(addr)
		}
		return 0xFF
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.wram[addr-0x2000-0xC000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return b.oam[addr-0xFE00]
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.vram[addr-0x8000]
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	default: // 0xFEA0-0xFEFF, unusable
		return 0xFF
	}
}

// ReadWord reads a little-endian 16-bit value as two sequential 8-bit reads.
func (b *Bus) ReadWord(addr uint16) uint16 {
	lo := uint16(b.Read(addr))
	hi := uint16(b.Read(addr + 1))
	return lo | hi<<8
}

// Write performs an 8-bit write. A write to 0xFF46 (DMA) triggers an
// immediate 160-byte OAM transfer before the register write itself is
// forwarded to the I/O dispatcher.
func (b *Bus) Write(addr uint16, value byte) {
	if addr == 0xFF46 {
		b.doOAMDMA(value)
	}
	switch {
	case addr <= 0x7FFF, addr >= 0xA000 && addr <= 0xBFFF:
		if b.cart != nil {
			b.cart.Write(addr, value)
		}
	case addr >= 0xFF00 && addr <= 0xFF7F, addr == 0xFFFF:
		if b.io != nil {
			b.io.Write(addr, value)
		}
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.wram[addr-0x2000-0xC000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		b.oam[addr-0xFE00] = value
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.vram[addr-0x8000] = value
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	}
}

// WriteWord writes a little-endian 16-bit value as two sequential 8-bit writes.
func (b *Bus) WriteWord(addr uint16, v uint16) {
	b.Write(addr, byte(v))
	b.Write(addr+1, byte(v>>8))
}

// Peek is a non-observing read used by disassemblers/debuggers. The DMG bus
// has no access-restriction or auto-increment side effects on plain reads,
// so Peek is Read by another name; it exists so callers make their intent
// explicit and so future access-timing restrictions have one place to skip.
func (b *Bus) Peek(addr uint16) byte {
	return b.Read(addr)
}

// doOAMDMA copies 160 bytes from (value<<8) to 0xFE00-0xFE9F. A fully
// cycle-accurate model would block bus access to OAM for 160 T-cycles;
// this completes the copy synchronously, which is sufficient because the
// CPU makes no further accesses between the triggering write and the next
// fetch.
func (b *Bus) doOAMDMA(value byte) {
	src := uint16(value) << 8
	for i := uint16(0); i < 0xA0; i++ {
		b.oam[i] = b.Read(src + i)
	}
}

// RawOAM returns a byte from OAM without CPU access restrictions, for PPU
// rendering use during mode 2/3.
func (b *Bus) RawOAM(addr uint16) byte {
	if addr >= 0xFE00 && addr <= 0xFE9F {
		return b.oam[addr-0xFE00]
	}
	return 0xFF
}

// RawVRAM returns a byte from VRAM without CPU access restrictions, for PPU
// rendering use during mode 3.
func (b *Bus) RawVRAM(addr uint16) byte {
	if addr >= 0x8000 && addr <= 0x9FFF {
		return b.vram[addr-0x8000]
	}
	return 0xFF
}

type busState struct {
	VRAM [0x2000]byte
	WRAM [0x2000]byte
	OAM  [0x00A0]byte
	HRAM [0x007F]byte
}

// SaveState serializes WRAM/VRAM/OAM/HRAM. Cartridge and I/O state are
// serialized separately by their owners.
func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	s := busState{VRAM: b.vram, WRAM: b.wram, OAM: b.oam, HRAM: b.hram}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	var s busState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	b.vram, b.wram, b.oam, b.hram = s.VRAM, s.WRAM, s.OAM, s.HRAM
}
