// Package emu wires the bus, CPU, PPU, APU and I/O dispatcher into a
// runnable DMG machine and drives the per-frame scheduler loop.
package emu

import (
	"bytes"
	"encoding/gob"
	"os"

	"github.com/dmgcore/dmgboy/internal/apu"
	"github.com/dmgcore/dmgboy/internal/bus"
	"github.com/dmgcore/dmgboy/internal/cart"
	"github.com/dmgcore/dmgboy/internal/cpu"
	"github.com/dmgcore/dmgboy/internal/io"
	"github.com/dmgcore/dmgboy/internal/ppu"
)

// cyclesPerFrame is the DMG's T-cycle budget for one 154-line frame
// (456 dots/line * 154 lines).
const cyclesPerFrame = 70224

// Buttons is the instantaneous joypad state the host polls each frame.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Machine owns one loaded cartridge and the wired bus/cpu/ppu/apu/io stack
// that runs it, and drives the scheduler loop described for StepFrame.
type Machine struct {
	cfg Config
	fb  []byte // RGBA8888, 160x144x4

	cart    cart.Cartridge
	header  *cart.Header
	bus     *bus.Bus
	cpu     *cpu.CPU
	ppu     *ppu.PPU
	apu     *apu.APU
	io      *io.Dispatcher
	romPath string
}

// New creates a Machine with no cartridge loaded; call LoadCartridge or
// LoadROMFromFile before stepping it.
func New(cfg Config) *Machine {
	return &Machine{
		cfg: cfg,
		fb:  make([]byte, 160*144*4),
	}
}

// LoadCartridge parses rom's header, picks the matching cartridge mapper,
// and wires a fresh bus/cpu/ppu/apu/io stack over it at the documented
// no-boot-ROM post-boot register state.
func (m *Machine) LoadCartridge(rom []byte) error {
	c, header, err := cart.Load(rom)
	if err != nil {
		return err
	}

	p := ppu.New()
	a := apu.New(m.cfg.SampleRate)
	dispatcher := io.New(p, a)
	b := bus.New(c, dispatcher)
	p.SetMemory(b)
	cc := cpu.New(b)
	cc.ResetNoBoot()
	cc.SetPC(0x0100)

	m.cart = c
	m.header = header
	m.bus = b
	m.cpu = cc
	m.ppu = p
	m.apu = a
	m.io = dispatcher
	m.applyPostBootIO()
	return nil
}

// applyPostBootIO sets the I/O register window to the documented DMG
// no-boot-ROM defaults: LCD on with BG/window at their power-on map/tile
// selections, timer stopped, APU powered with every channel routed to
// both speakers at full volume, and no interrupts enabled.
func (m *Machine) applyPostBootIO() {
	b := m.bus
	b.Write(0xFF00, 0xCF)
	b.Write(0xFF05, 0x00)
	b.Write(0xFF06, 0x00)
	b.Write(0xFF07, 0x00)
	b.Write(0xFF40, 0x91)
	b.Write(0xFF42, 0x00)
	b.Write(0xFF43, 0x00)
	b.Write(0xFF45, 0x00)
	b.Write(0xFF47, 0xFC)
	b.Write(0xFF48, 0xFF)
	b.Write(0xFF49, 0xFF)
	b.Write(0xFF4A, 0x00)
	b.Write(0xFF4B, 0x00)
	b.Write(0xFFFF, 0x00)
	b.Write(0xFF26, 0x80)
	b.Write(0xFF24, 0x77)
	b.Write(0xFF25, 0xFF)
}

// LoadROMFromFile replaces the current cartridge with the ROM image at path.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := m.LoadCartridge(data); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the currently loaded ROM file path, if any.
func (m *Machine) ROMPath() string { return m.romPath }

// SetROMPath records path for save/battery file association without
// reloading the ROM; callers use this after a successful LoadCartridge
// that did not go through LoadROMFromFile.
func (m *Machine) SetROMPath(path string) { m.romPath = path }

// SaveBattery returns the cartridge's external RAM if it is battery-backed.
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m.cart == nil {
		return nil, false
	}
	bb, ok := m.cart.(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	data := bb.SaveRAM()
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

// LoadBattery restores external RAM into the cartridge if it is
// battery-backed, reporting whether the cartridge accepted it.
func (m *Machine) LoadBattery(data []byte) bool {
	if m.cart == nil {
		return false
	}
	bb, ok := m.cart.(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	return true
}

// StepFrame runs the scheduler for one ~70224-cycle frame, presenting a new
// frame buffer each time the PPU completes line 154's wrap.
func (m *Machine) StepFrame() { m.runFrame(true) }

// StepFrameNoRender runs the same scheduler loop but skips the RGBA
// conversion, for throughput-bound uses (test-ROM runners) that never read
// Framebuffer.
func (m *Machine) StepFrameNoRender() { m.runFrame(false) }

func (m *Machine) runFrame(present bool) {
	acc := 0
	for acc < cyclesPerFrame {
		cycles := m.cpu.Step()
		acc += cycles

		if bits := m.io.Tick(cycles); bits != 0 {
			m.io.RequestInterrupt(bits)
		}
		if bits := m.ppu.Tick(cycles); bits != 0 {
			m.io.RequestInterrupt(bits)
		}
		m.apu.Tick(cycles)

		if m.ppu.RenderFlagAndReset() && present {
			m.presentFrame()
		}
	}
}

// presentFrame converts the PPU's ARGB8888 frame buffer into the RGBA8888
// byte buffer hosts (ebiten images) expect.
func (m *Machine) presentFrame() {
	src := m.ppu.FrameBuffer()
	for i, px := range src {
		a := byte(px >> 24)
		r := byte(px >> 16)
		g := byte(px >> 8)
		b := byte(px)
		o := i * 4
		m.fb[o+0] = r
		m.fb[o+1] = g
		m.fb[o+2] = b
		m.fb[o+3] = a
	}
}

// Framebuffer returns the 160x144 RGBA8888 pixel buffer from the most
// recently presented frame.
func (m *Machine) Framebuffer() []byte { return m.fb }

// SetSerialWriter connects a sink for bytes shifted out over the serial
// port (FF01/FF02), e.g. to observe blargg-style test ROMs.
func (m *Machine) SetSerialWriter(w io.SerialWriter) {
	if m.io != nil {
		m.io.SetSerialWriter(w)
	}
}

// APUPullSamples returns up to max mono int16 samples from the APU ring buffer.
func (m *Machine) APUPullSamples(max int) []int16 {
	if m.apu == nil {
		return nil
	}
	return m.apu.PullSamples(max)
}

// APUPullStereo returns up to max stereo frames as interleaved int16 L,R pairs.
func (m *Machine) APUPullStereo(max int) []int16 {
	if m.apu == nil {
		return nil
	}
	return m.apu.PullStereo(max)
}

// APUBufferedStereo returns the number of stereo frames ready in the APU buffer.
func (m *Machine) APUBufferedStereo() int {
	if m.apu == nil {
		return 0
	}
	return m.apu.StereoAvailable()
}

// APUClearAudioLatency drops all buffered stereo frames to re-sync audio with video.
func (m *Machine) APUClearAudioLatency() {
	if m.apu != nil {
		m.apu.ClearStereoBuffer()
	}
}

// APUCapBufferedStereo trims the buffered frames to at most target frames.
func (m *Machine) APUCapBufferedStereo(target int) {
	if m.apu != nil {
		m.apu.TrimStereoTo(target)
	}
}

// SetButtons maps the host's button state onto the joypad matrix, raising
// the Joypad interrupt on any newly-pressed, currently-selected line.
func (m *Machine) SetButtons(b Buttons) {
	if m.io == nil {
		return
	}
	var mask byte
	if b.Right {
		mask |= io.ButtonRight
	}
	if b.Left {
		mask |= io.ButtonLeft
	}
	if b.Up {
		mask |= io.ButtonUp
	}
	if b.Down {
		mask |= io.ButtonDown
	}
	if b.A {
		mask |= io.ButtonA
	}
	if b.B {
		mask |= io.ButtonB
	}
	if b.Select {
		mask |= io.ButtonSelect
	}
	if b.Start {
		mask |= io.ButtonStart
	}
	if bits := m.io.SetButtons(mask); bits != 0 {
		m.io.RequestInterrupt(bits)
	}
}

type machineState struct {
	Bus  []byte
	CPU  []byte
	PPU  []byte
	APU  []byte
	IO   []byte
	Cart []byte
}

// SaveState serializes the full machine: bus-owned memory, CPU registers,
// PPU/APU/IO register windows, and the cartridge's banking state and
// external RAM. Each component serializes only what it owns.
func (m *Machine) SaveState() []byte {
	if m.bus == nil {
		return nil
	}
	var buf bytes.Buffer
	s := machineState{
		Bus: m.bus.SaveState(),
		CPU: m.cpu.SaveState(),
		PPU: m.ppu.SaveState(),
		APU: m.apu.SaveState(),
		IO:  m.io.SaveState(),
	}
	if m.cart != nil {
		s.Cart = m.cart.SaveState()
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

// LoadState restores a snapshot produced by SaveState onto the currently
// loaded cartridge's machine. The cartridge itself must already be loaded.
func (m *Machine) LoadState(data []byte) error {
	if m.bus == nil {
		return nil
	}
	var s machineState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	m.bus.LoadState(s.Bus)
	m.cpu.LoadState(s.CPU)
	m.io.LoadState(s.IO)
	m.ppu.LoadState(s.PPU)
	m.apu.LoadState(s.APU)
	if m.cart != nil && len(s.Cart) > 0 {
		m.cart.LoadState(s.Cart)
	}
	return nil
}

// SaveStateToFile writes SaveState's output to path.
func (m *Machine) SaveStateToFile(path string) error {
	data := m.SaveState()
	if len(data) == 0 {
		return nil
	}
	return os.WriteFile(path, data, 0644)
}

// LoadStateFromFile reads and applies a snapshot written by SaveStateToFile.
func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.LoadState(data)
}
