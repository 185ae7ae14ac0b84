// Package apu implements the DMG sound unit: two pulse channels (one with
// frequency sweep), a 4-bit wave channel, a noise channel driven by an LFSR,
// the 512 Hz frame sequencer that clocks their length/envelope/sweep units,
// and a stereo mixer driven by NR50/NR51.
package apu

// dmgClockHz is the DMG system clock; every channel's frequency timer and
// the frame sequencer are derived from it.
const dmgClockHz = 4194304

// pulseChannel models channel 1 (with sweep) and channel 2 (without); the
// sweep fields are simply left at their zero value for channel 2.
type pulseChannel struct {
	enabled bool
	duty    byte // 0..3, indexes pulseDutyTable
	length  int  // 0..64
	lenEn   bool
	vol     byte // 0..15 initial envelope volume
	envDir  int8 // +1 rising, -1 falling
	envPer  byte // 0..7 (0 disables envelope clocking)
	curVol  byte
	envTmr  byte
	freq    uint16
	timer   int // frequency timer, counts down in CPU cycles
	phase   int // 0..7 index into the duty pattern

	// Sweep unit (channel 1 only).
	sweepPer    byte
	sweepNeg    bool
	sweepShift  byte
	sweepTmr    byte
	sweepEn     bool
	sweepShadow uint16
}

// waveChannel models channel 3, which plays back the 32-sample 4-bit
// waveform held in its RAM window (0xFF30-0xFF3F) rather than a duty table.
type waveChannel struct {
	enabled bool
	dacEn   bool
	length  int // 0..256
	lenEn   bool
	volCode byte // 0..3: 0 mute, 1 full, 2 half, 3 quarter
	freq    uint16
	timer   int
	pos     int      // 0..31, current sample index
	ram     [16]byte // 32 four-bit samples, two per byte
}

// noiseChannel models channel 4: a volume-envelope output gated by the
// output bit of a 15-bit (or, in 7-bit mode, 7-bit) LFSR.
type noiseChannel struct {
	enabled bool
	length  int
	lenEn   bool
	vol     byte
	envDir  int8
	envPer  byte
	curVol  byte
	envTmr  byte
	shift   byte // NR43 clock shift
	width7  bool // true selects the 7-bit LFSR width
	divSel  byte // NR43 dividing ratio code
	timer   int
	lfsr    uint16
}

// pulseDutyTable holds each duty cycle's 8-step high/low pattern.
var pulseDutyTable = [4][8]byte{
	{0, 0, 0, 0, 0, 0, 0, 1}, // 12.5%
	{1, 0, 0, 0, 0, 0, 0, 1}, // 25%
	{1, 0, 0, 0, 0, 1, 1, 1}, // 50%
	{0, 1, 1, 1, 1, 1, 1, 0}, // 75%
}

// noiseDivisorTable holds NR43's eight dividing-ratio codes.
var noiseDivisorTable = [8]int{8, 16, 32, 48, 64, 80, 96, 112}

// APU is a DMG sound unit producing a stereo int16 sample stream at a
// host-chosen sample rate.
type APU struct {
	power bool

	sampleRate      int
	cyclesPerSample float64
	cycAccum        float64
	masterGain      float64 // extra headroom applied after NR50, to avoid clipping when channels sum

	// frame sequencer, stepped at 512 Hz
	fsCounter int
	fsStep    int // 0..7

	// stereo output ring buffer, power-of-two sized
	stereoL, stereoR       []int16
	stereoHead, stereoTail int

	nr50 byte // 0xFF24 master volume / VIN
	nr51 byte // 0xFF25 channel-to-terminal routing
	// NR52 (0xFF26) is not stored directly: power is a.power and the
	// per-channel status bits are derived by channelStatusBits.

	pulse1 pulseChannel
	pulse2 pulseChannel
	wave   waveChannel
	noise  noiseChannel
}

// New creates an APU that mixes into a ring buffer sized for sampleRate; a
// non-positive sampleRate falls back to 48000.
func New(sampleRate int) *APU {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	a := &APU{
		power:           true,
		sampleRate:      sampleRate,
		cyclesPerSample: float64(dmgClockHz) / float64(sampleRate),
		masterGain:      0.20,
		fsCounter:       dmgClockHz / 512,
		stereoL:         make([]int16, 16384),
		stereoR:         make([]int16, 16384),
	}
	// Power-up default: route every channel to both terminals at max volume.
	a.nr50 = 0x77
	a.nr51 = 0xFF
	return a
}

func (a *APU) triggerPulse1() {
	a.pulse1.enabled = !(a.pulse1.vol == 0 && a.pulse1.envDir < 0)
	if a.pulse1.length == 0 {
		a.pulse1.length = 64
	}
	a.pulse1.phase = 0
	a.reloadPulse1Timer()
	a.pulse1.curVol = a.pulse1.vol
	per := a.pulse1.envPer
	if per == 0 {
		per = 8
	}
	a.pulse1.envTmr = per

	a.pulse1.sweepShadow = a.pulse1.freq & 0x7FF
	a.pulse1.sweepEn = a.pulse1.sweepPer != 0 || a.pulse1.sweepShift != 0
	st := a.pulse1.sweepPer
	if st == 0 {
		st = 8
	}
	a.pulse1.sweepTmr = st
	if a.pulse1.sweepShift != 0 && a.sweptFrequency() > 2047 {
		a.pulse1.enabled = false
	}
}

func (a *APU) triggerPulse2() {
	if a.pulse2.vol == 0 && a.pulse2.envDir < 0 {
		a.pulse2.enabled = false
		return
	}
	a.pulse2.enabled = true
	if a.pulse2.length == 0 {
		a.pulse2.length = 64
	}
	a.pulse2.phase = 0
	a.reloadPulse2Timer()
	a.pulse2.curVol = a.pulse2.vol
	per := a.pulse2.envPer
	if per == 0 {
		per = 8
	}
	a.pulse2.envTmr = per
}

func (a *APU) triggerWave() {
	a.wave.enabled = a.wave.dacEn
	if a.wave.length == 0 {
		a.wave.length = 256
	}
	a.wave.pos = 0
	a.reloadWaveTimer()
}

func (a *APU) triggerNoise() {
	a.noise.enabled = !(a.noise.vol == 0 && a.noise.envDir < 0)
	if a.noise.length == 0 {
		a.noise.length = 64
	}
	a.noise.curVol = a.noise.vol
	per := a.noise.envPer
	if per == 0 {
		per = 8
	}
	a.noise.envTmr = per
	a.noise.lfsr = 0x7FFF
	a.reloadNoiseTimer()
}

func (a *APU) reloadPulse1Timer() { a.pulse1.timer = pulsePeriod(a.pulse1.freq) }
func (a *APU) reloadPulse2Timer() { a.pulse2.timer = pulsePeriod(a.pulse2.freq) }

func pulsePeriod(freq uint16) int {
	period := int(4 * (2048 - (freq & 0x7FF)))
	if period < 8 {
		period = 8
	}
	return period
}

func (a *APU) reloadWaveTimer() {
	period := int(2 * (2048 - (a.wave.freq & 0x7FF)))
	if period < 2 {
		period = 2
	}
	a.wave.timer = period
}

func (a *APU) reloadNoiseTimer() {
	div := noiseDivisorTable[a.noise.divSel&7]
	period := div << (int(a.noise.shift) + 4)
	if period < 2 {
		period = 2
	}
	a.noise.timer = period
}

// Tick advances the APU by cycles CPU cycles: the frame sequencer, each
// channel's frequency timer, and sample generation into the stereo buffer.
func (a *APU) Tick(cycles int) {
	if cycles <= 0 || !a.power {
		return
	}
	for i := 0; i < cycles; i++ {
		a.fsCounter--
		if a.fsCounter <= 0 {
			a.fsCounter += dmgClockHz / 512
			a.fsStep = (a.fsStep + 1) & 7
			if a.fsStep%2 == 0 {
				a.clockLength()
			}
			if a.fsStep == 2 || a.fsStep == 6 {
				a.clockSweep()
			}
			if a.fsStep == 7 {
				a.clockEnvelope()
			}
		}

		if a.pulse1.enabled {
			a.pulse1.timer--
			if a.pulse1.timer <= 0 {
				a.reloadPulse1Timer()
				a.pulse1.phase = (a.pulse1.phase + 1) & 7
			}
		}
		if a.pulse2.enabled {
			a.pulse2.timer--
			if a.pulse2.timer <= 0 {
				a.reloadPulse2Timer()
				a.pulse2.phase = (a.pulse2.phase + 1) & 7
			}
		}
		if a.wave.enabled {
			a.wave.timer--
			if a.wave.timer <= 0 {
				a.reloadWaveTimer()
				a.wave.pos = (a.wave.pos + 1) & 31
			}
		}
		if a.noise.enabled {
			a.noise.timer--
			if a.noise.timer <= 0 {
				a.reloadNoiseTimer()
				bit := (a.noise.lfsr ^ (a.noise.lfsr >> 1)) & 1
				a.noise.lfsr >>= 1
				a.noise.lfsr |= bit << 14
				if a.noise.width7 {
					a.noise.lfsr &^= 1 << 6
					a.noise.lfsr |= bit << 6
				}
			}
		}

		a.cycAccum++
		for a.cycAccum >= a.cyclesPerSample {
			a.cycAccum -= a.cyclesPerSample
			l, r := a.mixStereo()
			a.pushStereo(l, r)
		}
	}
}

func (a *APU) clockLength() {
	clockOne := func(en bool, length *int, enabled *bool) {
		if en && *length > 0 {
			*length--
			if *length <= 0 {
				*enabled = false
			}
		}
	}
	clockOne(a.pulse1.lenEn, &a.pulse1.length, &a.pulse1.enabled)
	clockOne(a.pulse2.lenEn, &a.pulse2.length, &a.pulse2.enabled)
	clockOne(a.wave.lenEn, &a.wave.length, &a.wave.enabled)
	clockOne(a.noise.lenEn, &a.noise.length, &a.noise.enabled)
}

func (a *APU) clockEnvelope() {
	clockOne := func(enabled bool, envPer byte, envTmr *byte, envDir int8, curVol *byte) {
		if !enabled || envPer == 0 {
			return
		}
		if *envTmr > 0 {
			*envTmr--
		}
		if *envTmr == 0 {
			*envTmr = envPer
			if envDir > 0 && *curVol < 15 {
				*curVol++
			} else if envDir < 0 && *curVol > 0 {
				*curVol--
			}
		}
	}
	clockOne(a.pulse1.enabled, a.pulse1.envPer, &a.pulse1.envTmr, a.pulse1.envDir, &a.pulse1.curVol)
	clockOne(a.pulse2.enabled, a.pulse2.envPer, &a.pulse2.envTmr, a.pulse2.envDir, &a.pulse2.curVol)
	clockOne(a.noise.enabled, a.noise.envPer, &a.noise.envTmr, a.noise.envDir, &a.noise.curVol)
}

func (a *APU) clockSweep() {
	if !a.pulse1.enabled || !a.pulse1.sweepEn || a.pulse1.sweepPer == 0 {
		return
	}
	if a.pulse1.sweepTmr > 0 {
		a.pulse1.sweepTmr--
	}
	if a.pulse1.sweepTmr != 0 {
		return
	}
	a.pulse1.sweepTmr = a.pulse1.sweepPer
	nf := a.sweptFrequency()
	if nf > 2047 {
		a.pulse1.enabled = false
		return
	}
	a.pulse1.sweepShadow = uint16(nf)
	a.pulse1.freq = (a.pulse1.freq &^ 0x07FF) | (uint16(nf) & 0x07FF)
	a.reloadPulse1Timer()
	if a.sweptFrequency() > 2047 {
		a.pulse1.enabled = false
	}
}

// sweptFrequency computes the sweep unit's next candidate frequency from the
// shadow register, called once at trigger/reload time and again to re-check
// overflow after the shadow register has been updated.
func (a *APU) sweptFrequency() int {
	base := int(a.pulse1.sweepShadow)
	if a.pulse1.sweepShift == 0 {
		return base
	}
	delta := base >> a.pulse1.sweepShift
	if a.pulse1.sweepNeg {
		return base - delta
	}
	return base + delta
}
