package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace      bool // stored only; Machine does not read it and logs no instructions
	LimitFPS   bool // stored only; Machine does not read it and applies no throttling
	SampleRate int  // APU output sample rate in Hz; 0 defaults to 48000
}
