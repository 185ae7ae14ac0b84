package main

import (
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmgcore/dmgboy/internal/cart"
	"github.com/dmgcore/dmgboy/internal/emu"
	"github.com/dmgcore/dmgboy/internal/ui"
)

// cliOptions holds every flag gbemu accepts, split informally into
// always-applicable options and the ones that only matter in -headless mode.
type cliOptions struct {
	ROMPath string
	Scale   int
	Title   string
	Trace   bool
	SaveRAM bool // persist battery RAM next to ROM (.sav)

	Headless bool
	Frames   int
	PNGOut   string
	Expect   string // expected framebuffer CRC32 hex (e.g., "1a2b3c4d")
}

func parseCLIOptions() cliOptions {
	var o cliOptions
	flag.StringVar(&o.ROMPath, "rom", "", "path to ROM (.gb)")
	flag.IntVar(&o.Scale, "scale", 3, "window scale")
	flag.StringVar(&o.Title, "title", "gbemu", "window title")
	flag.BoolVar(&o.Trace, "trace", false, "accepted but has no effect: no CPU trace log is written")
	flag.BoolVar(&o.SaveRAM, "save", true, "persist battery RAM to ROM.sav on exit and load on start")

	flag.BoolVar(&o.Headless, "headless", false, "run without a window")
	flag.IntVar(&o.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&o.PNGOut, "outpng", "", "write last framebuffer to PNG at path")
	flag.StringVar(&o.Expect, "expect", "", "assert framebuffer CRC32 (hex)")
	flag.Parse()
	return o
}

func runHeadless(m *emu.Machine, frames int, pngPath, expectCRC string) error {
	if frames <= 0 {
		frames = 1
	}

	start := time.Now()
	for i := 0; i < frames; i++ {
		m.StepFrame()
	}
	dur := time.Since(start)

	fb := m.Framebuffer() // RGBA 160x144*4
	crc := crc32.ChecksumIEEE(fb)
	fps := float64(frames) / dur.Seconds()

	log.Printf("headless: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), fps, crc)

	if pngPath != "" {
		if err := saveFramePNG(fb, 160, 144, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}

	if expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func saveFramePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{
		Pix:    make([]byte, len(pix)),
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	copy(img.Pix, pix)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func mustRead(path string) []byte {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return b
}

// savPathFor derives a .sav path from a ROM path, or "" if romPath doesn't
// look like a ROM file.
func savPathFor(romPath string) string {
	if romPath == "" || !strings.HasSuffix(strings.ToLower(romPath), ".gb") {
		return ""
	}
	return strings.TrimSuffix(romPath, ".gb") + ".sav"
}

func loadBatteryIfPresent(m *emu.Machine, savPath string) {
	data, err := os.ReadFile(savPath)
	if err != nil {
		return
	}
	if m.LoadBattery(data) {
		log.Printf("loaded save RAM: %s (%d bytes)", savPath, len(data))
	}
}

func persistBattery(m *emu.Machine, savPath string) {
	if savPath == "" {
		return
	}
	data, ok := m.SaveBattery()
	if !ok {
		return
	}
	if err := os.WriteFile(savPath, data, 0644); err == nil {
		log.Printf("wrote %s", savPath)
	}
}

func logHeaderInfo(rom []byte) {
	if len(rom) < 0x150 {
		return
	}
	h, err := cart.ParseHeader(rom)
	if err != nil {
		return
	}
	log.Printf("ROM: %q type=%s banks=%d ram=%dB", h.Title, h.CartTypeStr, h.ROMBanks, h.RAMSizeBytes)
}

func main() {
	opts := parseCLIOptions()
	rom := mustRead(opts.ROMPath)
	logHeaderInfo(rom)

	m := emu.New(emu.Config{Trace: opts.Trace})
	savPath := ""
	if len(rom) > 0 {
		if err := m.LoadCartridge(rom); err != nil {
			log.Fatalf("load cart: %v", err)
		}
		if abs, err := filepath.Abs(opts.ROMPath); err == nil {
			m.SetROMPath(abs)
		} else {
			m.SetROMPath(opts.ROMPath)
		}
		if opts.SaveRAM {
			savPath = savPathFor(opts.ROMPath)
			loadBatteryIfPresent(m, savPath)
		}
	}

	if opts.Headless {
		if err := runHeadless(m, opts.Frames, opts.PNGOut, opts.Expect); err != nil {
			log.Fatal(err)
		}
		if opts.SaveRAM {
			persistBattery(m, savPath)
		}
		return
	}

	app := ui.NewApp(ui.Config{Title: opts.Title, Scale: opts.Scale}, m)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}

	if opts.SaveRAM {
		if savPath == "" {
			savPath = savPathFor(m.ROMPath())
		}
		persistBattery(m, savPath)
	}
}
