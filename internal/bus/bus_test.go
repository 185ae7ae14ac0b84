package bus

import "testing"

type stubCart struct {
	rom []byte
	ram [0x2000]byte
}

func (c *stubCart) Read(addr uint16) byte {
	if addr < 0x8000 {
		if int(addr) < len(c.rom) {
			return c.rom[addr]
		}
		return 0xFF
	}
	return c.ram[addr-0xA000]
}
func (c *stubCart) Write(addr uint16, value byte) {
	if addr >= 0xA000 && addr <= 0xBFFF {
		c.ram[addr-0xA000] = value
	}
}
func (c *stubCart) SaveState() []byte     { return nil }
func (c *stubCart) LoadState(data []byte) {}

type stubIO struct {
	regs map[uint16]byte
}

func newStubIO() *stubIO { return &stubIO{regs: map[uint16]byte{}} }

func (s *stubIO) Read(addr uint16) byte     { return s.regs[addr] }
func (s *stubIO) Write(addr uint16, v byte) { s.regs[addr] = v }

func TestBus_ROMAndCartridgeRAM(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0100] = 0x42
	b := New(&stubCart{rom: rom}, newStubIO())

	if got := b.Read(0x0100); got != 0x42 {
		t.Fatalf("ROM read got %02x, want 42", got)
	}

	b.Write(0xA000, 0x99)
	if got := b.Read(0xA000); got != 0x99 {
		t.Fatalf("cart RAM read got %02x, want 99", got)
	}
}

func TestBus_WRAMAndEchoMirror(t *testing.T) {
	b := New(&stubCart{rom: make([]byte, 0x8000)}, newStubIO())

	b.Write(0xC000, 0x99)
	if got := b.Read(0xC000); got != 0x99 {
		t.Fatalf("WRAM read got %02x, want 99", got)
	}

	b.Write(0xE000, 0x55)
	if got := b.Read(0xC000); got != 0x55 {
		t.Fatalf("echo write did not mirror to WRAM: got %02x", got)
	}
	b.Write(0xC010, 0x66)
	if got := b.Read(0xE010); got != 0x66 {
		t.Fatalf("WRAM write did not mirror to echo: got %02x", got)
	}
}

func TestBus_VRAM_OAM_HRAM(t *testing.T) {
	b := New(&stubCart{rom: make([]byte, 0x8000)}, newStubIO())

	b.Write(0x8000, 0x11)
	if got := b.Read(0x8000); got != 0x11 {
		t.Fatalf("VRAM read got %02x, want 11", got)
	}

	b.Write(0xFE00, 0x22)
	if got := b.Read(0xFE00); got != 0x22 {
		t.Fatalf("OAM read got %02x, want 22", got)
	}

	b.Write(0xFF80, 0xAB)
	if got := b.Read(0xFF80); got != 0xAB {
		t.Fatalf("HRAM read got %02x, want AB", got)
	}
}

func TestBus_UnusableRangeReadsFF(t *testing.T) {
	b := New(&stubCart{rom: make([]byte, 0x8000)}, newStubIO())
	if got := b.Read(0xFEA0); got != 0xFF {
		t.Fatalf("unusable range got %02x, want FF", got)
	}
}

func TestBus_IOWindowAndIEForwarded(t *testing.T) {
	b := New(&stubCart{rom: make([]byte, 0x8000)}, newStubIO())

	b.Write(0xFF0F, 0x1F)
	if got := b.Read(0xFF0F); got != 0x1F {
		t.Fatalf("IF forward got %02x, want 1F", got)
	}
	b.Write(0xFFFF, 0x1B)
	if got := b.Read(0xFFFF); got != 0x1B {
		t.Fatalf("IE forward got %02x, want 1B", got)
	}
}

func TestBus_OAMDMA_CopiesFromSourcePage(t *testing.T) {
	rom := make([]byte, 0x10000)
	b := New(&stubCart{rom: rom}, newStubIO())

	// Source page in WRAM at 0xC100; fill with a ramp.
	for i := 0; i < 0xA0; i++ {
		b.Write(0xC100+uint16(i), byte(i))
	}
	b.Write(0xFF46, 0xC1) // trigger DMA from 0xC100

	for i := 0; i < 0xA0; i++ {
		if got := b.Read(0xFE00 + uint16(i)); got != byte(i) {
			t.Fatalf("OAM[%02x] got %02x want %02x", i, got, byte(i))
		}
	}
}

func TestBus_WordReadWrite_LittleEndian(t *testing.T) {
	b := New(&stubCart{rom: make([]byte, 0x8000)}, newStubIO())
	b.WriteWord(0xC000, 0xBEEF)
	if got := b.Read(0xC000); got != 0xEF {
		t.Fatalf("low byte got %02x want EF", got)
	}
	if got := b.Read(0xC001); got != 0xBE {
		t.Fatalf("high byte got %02x want BE", got)
	}
	if got := b.ReadWord(0xC000); got != 0xBEEF {
		t.Fatalf("ReadWord got %04x want BEEF", got)
	}
}

func TestBus_SaveLoadStateRoundTrip(t *testing.T) {
	b := New(&stubCart{rom: make([]byte, 0x8000)}, newStubIO())
	b.Write(0x8000, 0x11)
	b.Write(0xC000, 0x22)
	b.Write(0xFE00, 0x33)
	b.Write(0xFF80, 0x44)

	data := b.SaveState()

	b2 := New(&stubCart{rom: make([]byte, 0x8000)}, newStubIO())
	b2.LoadState(data)
	if got := b2.Read(0x8000); got != 0x11 {
		t.Fatalf("restored VRAM got %02x want 11", got)
	}
	if got := b2.Read(0xC000); got != 0x22 {
		t.Fatalf("restored WRAM got %02x want 22", got)
	}
	if got := b2.Read(0xFE00); got != 0x33 {
		t.Fatalf("restored OAM got %02x want 33", got)
	}
	if got := b2.Read(0xFF80); got != 0x44 {
		t.Fatalf("restored HRAM got %02x want 44", got)
	}
}
