package apu

// CPURead returns the byte visible at addr within the NR10-NR52 and wave
// RAM windows (0xFF10-0xFF3F) plus NR50-NR52 (0xFF24-0xFF26). Unmapped
// addresses read back 0xFF.
func (a *APU) CPURead(addr uint16) byte {
	switch addr {
	case 0xFF10: // NR10: sweep period/direction/shift
		n := (a.pulse1.sweepPer & 7) << 4
		if a.pulse1.sweepNeg {
			n |= 1 << 3
		}
		n |= a.pulse1.sweepShift & 7
		return 0x80 | n
	case 0xFF11: // NR11: duty / length load (write-only length, reads back inverted)
		return (a.pulse1.duty << 6) | byte(0x3F-(a.pulse1.length&0x3F))
	case 0xFF12: // NR12: envelope
		return envelopeByte(a.pulse1.vol, a.pulse1.envDir, a.pulse1.envPer)
	case 0xFF13:
		return byte(a.pulse1.freq & 0xFF)
	case 0xFF14:
		return (boolToByte(a.pulse1.lenEn) << 6) | byte((a.pulse1.freq>>8)&7)
	case 0xFF16: // NR21
		return (a.pulse2.duty << 6) | byte(0x3F-(a.pulse2.length&0x3F))
	case 0xFF17: // NR22
		return envelopeByte(a.pulse2.vol, a.pulse2.envDir, a.pulse2.envPer)
	case 0xFF18:
		return byte(a.pulse2.freq & 0xFF)
	case 0xFF19:
		return (boolToByte(a.pulse2.lenEn) << 6) | byte((a.pulse2.freq>>8)&7)
	case 0xFF1A: // NR30: DAC enable
		if a.wave.dacEn {
			return 0x80
		}
		return 0x00
	case 0xFF1B: // NR31
		return byte(0xFF - (a.wave.length & 0xFF))
	case 0xFF1C: // NR32: output level code
		return (a.wave.volCode << 5) | 0x9F
	case 0xFF1D:
		return byte(a.wave.freq & 0xFF)
	case 0xFF1E:
		return (boolToByte(a.wave.lenEn) << 6) | byte((a.wave.freq>>8)&7)
	case 0xFF30, 0xFF31, 0xFF32, 0xFF33, 0xFF34, 0xFF35, 0xFF36, 0xFF37,
		0xFF38, 0xFF39, 0xFF3A, 0xFF3B, 0xFF3C, 0xFF3D, 0xFF3E, 0xFF3F:
		return a.wave.ram[addr-0xFF30]
	case 0xFF20: // NR41
		return byte(0x3F - (a.noise.length & 0x3F))
	case 0xFF21: // NR42
		return envelopeByte(a.noise.vol, a.noise.envDir, a.noise.envPer)
	case 0xFF22: // NR43: polynomial counter
		w := byte(0)
		if a.noise.width7 {
			w = 1
		}
		return (a.noise.shift << 4) | (w << 3) | (a.noise.divSel & 7)
	case 0xFF23: // NR44
		return boolToByte(a.noise.lenEn) << 6
	case 0xFF24:
		return a.nr50
	case 0xFF25:
		return a.nr51
	case 0xFF26:
		return 0x70 | (boolToByte(a.power) << 7) | a.channelStatusBits()
	default:
		return 0xFF
	}
}

// CPUWrite handles a write to the NR10-NR52/wave-RAM window (0xFF10-0xFF3F,
// 0xFF24-0xFF26).
func (a *APU) CPUWrite(addr uint16, v byte) {
	switch addr {
	case 0xFF10:
		a.pulse1.sweepPer = (v >> 4) & 7
		a.pulse1.sweepNeg = v&(1<<3) != 0
		a.pulse1.sweepShift = v & 7
	case 0xFF11:
		a.pulse1.duty = (v >> 6) & 3
		a.pulse1.length = 64 - int(v&0x3F)
	case 0xFF12:
		a.pulse1.vol, a.pulse1.envDir, a.pulse1.envPer = decodeEnvelope(v)
		if v&0xF8 == 0 { // DAC off disables the channel
			a.pulse1.enabled = false
		}
	case 0xFF13:
		a.pulse1.freq = (a.pulse1.freq & 0x0700) | uint16(v)
		a.reloadPulse1Timer()
	case 0xFF14:
		a.pulse1.lenEn = v&(1<<6) != 0
		a.pulse1.freq = (a.pulse1.freq & 0x00FF) | (uint16(v&7) << 8)
		if v&(1<<7) != 0 {
			a.triggerPulse1()
		}
	case 0xFF16:
		a.pulse2.duty = (v >> 6) & 3
		a.pulse2.length = 64 - int(v&0x3F)
	case 0xFF17:
		a.pulse2.vol, a.pulse2.envDir, a.pulse2.envPer = decodeEnvelope(v)
		if v&0xF8 == 0 {
			a.pulse2.enabled = false
		}
	case 0xFF18:
		a.pulse2.freq = (a.pulse2.freq & 0x0700) | uint16(v)
		a.reloadPulse2Timer()
	case 0xFF19:
		a.pulse2.lenEn = v&(1<<6) != 0
		a.pulse2.freq = (a.pulse2.freq & 0x00FF) | (uint16(v&7) << 8)
		if v&(1<<7) != 0 {
			a.triggerPulse2()
		}
	case 0xFF1A:
		a.wave.dacEn = v&0x80 != 0
		if !a.wave.dacEn {
			a.wave.enabled = false
		}
	case 0xFF1B:
		a.wave.length = 256 - int(v)
	case 0xFF1C:
		a.wave.volCode = (v >> 5) & 3
	case 0xFF1D:
		a.wave.freq = (a.wave.freq & 0x0700) | uint16(v)
		a.reloadWaveTimer()
	case 0xFF1E:
		a.wave.lenEn = v&(1<<6) != 0
		a.wave.freq = (a.wave.freq & 0x00FF) | (uint16(v&7) << 8)
		if v&(1<<7) != 0 {
			a.triggerWave()
		}
	case 0xFF30, 0xFF31, 0xFF32, 0xFF33, 0xFF34, 0xFF35, 0xFF36, 0xFF37,
		0xFF38, 0xFF39, 0xFF3A, 0xFF3B, 0xFF3C, 0xFF3D, 0xFF3E, 0xFF3F:
		a.wave.ram[addr-0xFF30] = v
	case 0xFF24:
		a.nr50 = v
	case 0xFF25:
		a.nr51 = v
	case 0xFF26:
		if v&(1<<7) == 0 {
			sampleRate := a.sampleRate
			*a = *New(sampleRate)
			a.power = false
		} else {
			a.power = true
		}
	case 0xFF20:
		a.noise.length = 64 - int(v&0x3F)
	case 0xFF21:
		a.noise.vol, a.noise.envDir, a.noise.envPer = decodeEnvelope(v)
		if v&0xF8 == 0 {
			a.noise.enabled = false
		}
	case 0xFF22:
		a.noise.shift = (v >> 4) & 0x0F
		a.noise.width7 = v&(1<<3) != 0
		a.noise.divSel = v & 7
		a.reloadNoiseTimer()
	case 0xFF23:
		a.noise.lenEn = v&(1<<6) != 0
		if v&(1<<7) != 0 {
			a.triggerNoise()
		}
	}
}

// decodeEnvelope splits an NRx2-shaped byte into initial volume, direction
// (+1 rising / -1 falling), and period, shared by all three envelope-bearing
// channels.
func decodeEnvelope(v byte) (vol byte, dir int8, per byte) {
	vol = (v >> 4) & 0x0F
	if v&(1<<3) != 0 {
		dir = 1
	} else {
		dir = -1
	}
	per = v & 7
	return
}

// envelopeByte is decodeEnvelope's inverse, used by CPURead.
func envelopeByte(vol byte, dir int8, per byte) byte {
	d := byte(0)
	if dir > 0 {
		d = 1
	}
	return (vol << 4) | (d << 3) | (per & 7)
}

// channelStatusBits reports which channels are currently enabled, for
// NR52's low nibble.
func (a *APU) channelStatusBits() byte {
	var bits byte
	if a.pulse1.enabled {
		bits |= 1 << 0
	}
	if a.pulse2.enabled {
		bits |= 1 << 1
	}
	if a.wave.enabled {
		bits |= 1 << 2
	}
	if a.noise.enabled {
		bits |= 1 << 3
	}
	return bits
}

func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
