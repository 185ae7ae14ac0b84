package apu

// channelLevels returns the instantaneous, unrouted output of all four
// channels in [-1, +1], before NR50/NR51 routing and master volume.
func (a *APU) channelLevels() (c1, c2, c3, c4 float64) {
	if a.pulse1.enabled {
		c1 = pulseLevel(a.pulse1.duty, a.pulse1.phase, a.pulse1.curVol)
	}
	if a.pulse2.enabled {
		c2 = pulseLevel(a.pulse2.duty, a.pulse2.phase, a.pulse2.curVol)
	}
	if a.wave.enabled && a.wave.dacEn && a.wave.volCode != 0 {
		c3 = a.waveLevel()
	}
	if a.noise.enabled {
		on := (^a.noise.lfsr)&1 != 0
		amp := float64(a.noise.curVol) / 15.0
		if on {
			c4 = amp
		} else {
			c4 = -amp
		}
	}
	return
}

func pulseLevel(duty byte, phase int, curVol byte) float64 {
	amp := float64(curVol) / 15.0
	if pulseDutyTable[duty][phase] != 0 {
		return amp
	}
	return -amp
}

// waveLevel reads the wave channel's current 4-bit sample and scales it to
// [-1, +1] per its output-level code (full/half/quarter).
func (a *APU) waveLevel() float64 {
	b := a.wave.ram[a.wave.pos>>1]
	var nibble byte
	if a.wave.pos&1 == 0 {
		nibble = (b >> 4) & 0x0F
	} else {
		nibble = b & 0x0F
	}
	shift := a.wave.volCode - 1
	level := (float64(nibble)/15.0)*2.0 - 1.0
	return level / float64(int(1)<<shift)
}

// mixStereo routes the four channels' current levels to left/right per
// NR51, applies NR50's per-terminal volume, and returns one int16 frame.
func (a *APU) mixStereo() (int16, int16) {
	c1, c2, c3, c4 := a.channelLevels()

	rMask := a.nr51 & 0x0F
	lMask := (a.nr51 >> 4) & 0x0F
	if rMask == 0 && lMask == 0 {
		// NR51=0 briefly during some boot sequences; route everywhere
		// rather than go silent.
		rMask, lMask = 0x0F, 0x0F
	}

	route := func(mask byte) float64 {
		var v float64
		if mask&0x1 != 0 {
			v += c1
		}
		if mask&0x2 != 0 {
			v += c2
		}
		if mask&0x4 != 0 {
			v += c3
		}
		if mask&0x8 != 0 {
			v += c4
		}
		return v
	}
	l, r := route(lMask), route(rMask)

	l *= float64((a.nr50>>4)&0x07) / 7.0 * a.masterGain
	r *= float64(a.nr50&0x07) / 7.0 * a.masterGain
	return int16(clamp(l) * 32767), int16(clamp(r) * 32767)
}

func clamp(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}

// pushStereo appends a stereo frame to the ring buffer, dropping it if full.
func (a *APU) pushStereo(l, r int16) {
	next := (a.stereoHead + 1) & (len(a.stereoL) - 1)
	if next == a.stereoTail {
		return
	}
	a.stereoL[a.stereoHead] = l
	a.stereoR[a.stereoHead] = r
	a.stereoHead = next
}

// PullStereo returns up to max buffered stereo frames, interleaved as
// [L0,R0,L1,R1,...].
func (a *APU) PullStereo(max int) []int16 {
	if max <= 0 || a.stereoHead == a.stereoTail {
		return nil
	}
	count := 0
	for i := a.stereoTail; i != a.stereoHead && count < max; i = (i + 1) & (len(a.stereoL) - 1) {
		count++
	}
	out := make([]int16, 0, count*2)
	for i := 0; i < count; i++ {
		out = append(out, a.stereoL[a.stereoTail], a.stereoR[a.stereoTail])
		a.stereoTail = (a.stereoTail + 1) & (len(a.stereoL) - 1)
	}
	return out
}

// PullSamples returns up to max mono samples, folded from the stereo buffer
// by averaging each frame's two channels.
func (a *APU) PullSamples(max int) []int16 {
	frames := a.PullStereo(max)
	if len(frames) == 0 {
		return nil
	}
	out := make([]int16, 0, len(frames)/2)
	for i := 0; i+1 < len(frames); i += 2 {
		out = append(out, int16((int32(frames[i])+int32(frames[i+1]))/2))
	}
	return out
}

// ClearStereoBuffer drops all buffered stereo frames, for resyncing audio
// with video after a stall (e.g. the host pausing to load a save state).
func (a *APU) ClearStereoBuffer() { a.stereoHead, a.stereoTail = 0, 0 }

// TrimStereoTo discards the oldest buffered frames until at most target
// remain, keeping buffered audio latency bounded.
func (a *APU) TrimStereoTo(target int) {
	if target < 0 {
		target = 0
	}
	for a.StereoAvailable() > target {
		a.stereoTail = (a.stereoTail + 1) & (len(a.stereoL) - 1)
	}
}

// StereoAvailable returns the number of stereo frames currently buffered.
func (a *APU) StereoAvailable() int {
	if a.stereoHead == a.stereoTail {
		return 0
	}
	if a.stereoHead >= a.stereoTail {
		return a.stereoHead - a.stereoTail
	}
	return (len(a.stereoL) - a.stereoTail) + a.stereoHead
}
