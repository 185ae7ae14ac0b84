// Package io implements the DMG I/O register window: joypad matrix, the
// DIV/TIMA/TMA/TAC timer, the IF/IE interrupt registers, and forwarding of
// the video and audio register ranges to the PPU and APU.
package io

import (
	"bytes"
	"encoding/gob"
)

// Button bits for SetButtons, matching the P14/P15 matrix groupings.
const (
	ButtonA      = 1 << 0
	ButtonB      = 1 << 1
	ButtonSelect = 1 << 2
	ButtonStart  = 1 << 3
	ButtonRight  = 1 << 4
	ButtonLeft   = 1 << 5
	ButtonUp     = 1 << 6
	ButtonDown   = 1 << 7
)

// Interrupt bits, matching IF/IE bit positions 0-4.
const (
	IntVBlank  = 1 << 0
	IntLCDSTAT = 1 << 1
	IntTimer   = 1 << 2
	IntSerial  = 1 << 3
	IntJoypad  = 1 << 4
)

// Interrupt vectors, indexed by bit position.
var Vectors = [5]uint16{0x0040, 0x0048, 0x0050, 0x0058, 0x0060}

var timerThreshold = [4]int{1024, 16, 64, 256}

// VideoRegs is the subset of the PPU the dispatcher forwards LCDC..WX to.
type VideoRegs interface {
	CPURead(addr uint16) byte
	CPUWrite(addr uint16, value byte)
}

// AudioRegs is the subset of the APU the dispatcher forwards NR10..wave RAM to.
type AudioRegs interface {
	CPURead(addr uint16) byte
	CPUWrite(addr uint16, value byte)
}

// SerialWriter receives bytes shifted out over the serial port when a
// transfer with the internal clock completes. A real link cable is a
// non-goal; this exists so test ROMs that report results over serial
// (e.g. blargg's test suite) can be observed.
type SerialWriter interface {
	Write(p []byte) (int, error)
}

// Dispatcher owns the 128-byte I/O register window (0xFF00-0xFF7F) and the
// IE register at 0xFFFF, and forwards register sub-ranges to the PPU/APU.
type Dispatcher struct {
	regs [0x80]byte
	ie   byte

	ppu VideoRegs
	apu AudioRegs

	buttons byte // active-high bitmask of currently held buttons
	p1Sel   byte // bits 4-5 of P1 as last written

	divCounter  int
	timaCounter int

	serial SerialWriter
}

// New creates a dispatcher. ppu and apu may be nil (e.g. in CPU-only tests);
// forwarded reads then return 0xFF and writes are dropped.
func New(ppu VideoRegs, apu AudioRegs) *Dispatcher {
	d := &Dispatcher{ppu: ppu, apu: apu}
	d.p1Sel = 0x30
	return d
}

// SetSerialWriter installs the sink for completed serial transfers.
func (d *Dispatcher) SetSerialWriter(w SerialWriter) { d.serial = w }

// SetButtons replaces the held-button bitmask (1 = pressed) sampled on the
// next P1 read. Transitioning a selected line from released to pressed
// raises the Joypad interrupt, matching real hardware's P10-P13 latches.
func (d *Dispatcher) SetButtons(mask byte) byte {
	before := d.joypadNibble()
	d.buttons = mask
	after := d.joypadNibble()
	// A falling edge (1->0, active-low) on any bit requests the interrupt.
	if before&^after != 0 {
		return IntJoypad
	}
	return 0
}

// joypadNibble computes the active-low lower nibble visible at P1 for the
// currently selected line(s).
func (d *Dispatcher) joypadNibble() byte {
	var n byte = 0x0F
	if d.p1Sel&0x10 == 0 { // P14 selects D-Pad
		n &= ^((d.buttons >> 4) & 0x0F) & 0x0F
	}
	if d.p1Sel&0x20 == 0 { // P15 selects buttons
		n &= ^(d.buttons & 0x0F) & 0x0F
	}
	return n
}

// Read returns the byte visible at addr, which must be in 0xFF00-0xFF7F or
// 0xFFFF.
func (d *Dispatcher) Read(addr uint16) byte {
	if addr == 0xFFFF {
		return d.ie
	}
	switch {
	case addr == 0xFF00:
		return 0xC0 | d.p1Sel | d.joypadNibble()
	case addr >= 0xFF40 && addr <= 0xFF4B:
		if d.ppu != nil {
			return d.ppu.CPURead(addr)
		}
		return 0xFF
	case addr >= 0xFF10 && addr <= 0xFF3F:
		if d.apu != nil {
			return d.apu.CPURead(addr)
		}
		return 0xFF
	default:
		return d.regs[addr-0xFF00]
	}
}

// Write stores the byte at addr, which must be in 0xFF00-0xFF7F or 0xFFFF.
// A write that starts a serial transfer completes it at once and sets the
// serial bit in IF directly.
func (d *Dispatcher) Write(addr uint16, value byte) {
	switch {
	case addr == 0xFFFF:
		d.ie = value
	case addr == 0xFF00:
		d.p1Sel = value & 0x30
	case addr == 0xFF04: // DIV
		d.regs[0x04] = 0
		d.divCounter = 0
	case addr == 0xFF0F: // IF: only bits 0-4 are meaningful
		d.regs[0x0F] = value & 0x1F
	case addr == 0xFF02: // SC: bit7 set + internal clock triggers an immediate transfer
		d.regs[0x02] = value & 0x7F
		if value&0x81 == 0x81 {
			d.doSerialTransfer()
		}
	case addr >= 0xFF40 && addr <= 0xFF4B:
		if d.ppu != nil {
			d.ppu.CPUWrite(addr, value)
		}
	case addr >= 0xFF10 && addr <= 0xFF3F:
		if d.apu != nil {
			d.apu.CPUWrite(addr, value)
		}
	default:
		d.regs[addr-0xFF00] = value
	}
}

func (d *Dispatcher) doSerialTransfer() {
	if d.serial != nil {
		_, _ = d.serial.Write([]byte{d.regs[0x01]})
	}
	d.regs[0x02] &^= 0x80
	d.regs[0x0F] |= IntSerial
}

// Tick advances DIV and TIMA by cycles T-cycles and returns any interrupt
// bits raised (Timer only; Serial is raised synchronously on write, Joypad
// on SetButtons).
func (d *Dispatcher) Tick(cycles int) byte {
	var ifBits byte

	d.divCounter += cycles
	for d.divCounter >= 256 {
		d.divCounter -= 256
		d.regs[0x04]++
	}

	tac := d.regs[0x07]
	if tac&0x04 != 0 {
		threshold := timerThreshold[tac&0x03]
		d.timaCounter += cycles
		for d.timaCounter >= threshold {
			d.timaCounter -= threshold
			if d.regs[0x05] == 0xFF {
				d.regs[0x05] = d.regs[0x06]
				d.regs[0x0F] |= IntTimer
				ifBits |= IntTimer
			} else {
				d.regs[0x05]++
			}
		}
	}

	return ifBits
}

// IF returns the current interrupt-flag register (bits 0-4 meaningful).
func (d *Dispatcher) IF() byte { return d.regs[0x0F] & 0x1F }

// RequestInterrupt ORs bits into the interrupt-flag register, for
// components (PPU, the joypad edge detector) outside the dispatcher's own
// Tick.
func (d *Dispatcher) RequestInterrupt(bits byte) { d.regs[0x0F] |= bits & 0x1F }

// PendingIRQ returns the lowest-indexed bit set in IF&IE (0-4) and true, or
// (0, false) if none is pending.
func (d *Dispatcher) PendingIRQ() (bit byte, ok bool) {
	pending := d.regs[0x0F] & d.ie & 0x1F
	if pending == 0 {
		return 0, false
	}
	for n := byte(0); n < 5; n++ {
		if pending&(1<<n) != 0 {
			return n, true
		}
	}
	return 0, false
}

// ClearIF clears bit n (0-4) of the interrupt-flag register.
func (d *Dispatcher) ClearIF(n byte) { d.regs[0x0F] &^= 1 << n }

type dispatcherState struct {
	Regs        [0x80]byte
	IE          byte
	Buttons     byte
	P1Sel       byte
	DivCounter  int
	TimaCounter int
}

// SaveState serializes the I/O register window, IE, joypad, and timer
// sub-counters. PPU/APU register windows are serialized by their own
// owners, not duplicated here.
func (d *Dispatcher) SaveState() []byte {
	var buf bytes.Buffer
	s := dispatcherState{
		Regs: d.regs, IE: d.ie, Buttons: d.buttons, P1Sel: d.p1Sel,
		DivCounter: d.divCounter, TimaCounter: d.timaCounter,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (d *Dispatcher) LoadState(data []byte) {
	var s dispatcherState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	d.regs, d.ie, d.buttons, d.p1Sel = s.Regs, s.IE, s.Buttons, s.P1Sel
	d.divCounter, d.timaCounter = s.DivCounter, s.TimaCounter
}
