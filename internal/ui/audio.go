package ui

import (
	"encoding/binary"
	"time"

	"github.com/dmgcore/dmgboy/internal/emu"
)

// bufferMsNormal/bufferMsLowLatency are the two buffer sizes offered to
// ebiten's audio.Player: a larger one for steady-state playback, a smaller
// one when the user asked for low latency or the emulator is fast-forwarding.
const (
	bufferMsNormal     = 40
	bufferMsLowLatency = 20
)

func (a *App) applyPlayerBufferSize() {
	if a.audioPlayer == nil {
		return
	}
	ms := bufferMsNormal
	if a.cfg.AudioLowLatency || a.fast {
		ms = bufferMsLowLatency
	}
	a.audioPlayer.SetBufferSize(time.Duration(ms) * time.Millisecond)
}

// apuStream adapts the emulator's stereo frame buffer to io.Reader, the
// shape ebiten's audio.Player wants its source in. It never blocks for
// long: a short underrun wait is followed by a silence frame rather than
// stalling the audio callback.
type apuStream struct {
	m          *emu.Machine
	foldToMono bool
	muted      *bool
	lowLatency bool

	underruns  int
	lastWanted int
	lastFilled int
}

const bytesPerFrame = 4 // one int16 left sample + one int16 right sample

func (s *apuStream) Read(p []byte) (int, error) {
	if len(p) == 0 || s == nil || s.m == nil {
		return 0, nil
	}
	if len(p) < bytesPerFrame {
		zeroFill(p)
		return len(p), nil
	}
	if s.muted != nil && *s.muted {
		zeroFill(p)
		time.Sleep(5 * time.Millisecond)
		return len(p), nil
	}

	capFrames := 2048 // ~42.7ms at 48kHz
	waitFor := 15 * time.Millisecond
	if s.lowLatency {
		capFrames = 1024 // ~21.3ms
		waitFor = 8 * time.Millisecond
	}
	want := len(p) / bytesPerFrame
	if want > capFrames {
		want = capFrames
	}
	want = s.waitForFrames(want, waitFor)
	if want <= 0 {
		return s.fillSilence(p, 256), nil
	}

	filled := s.fillFromAPU(p, want)
	if filled == 0 {
		return s.fillSilence(p, 128), nil
	}
	s.lastWanted, s.lastFilled = filled, filled
	return filled * bytesPerFrame, nil
}

// waitForFrames caps req to what's already buffered, waiting briefly for
// at least one frame to arrive if the buffer is currently empty.
func (s *apuStream) waitForFrames(req int, waitFor time.Duration) int {
	if buf := s.m.APUBufferedStereo(); buf > 0 {
		if buf < req {
			return buf
		}
		return req
	}
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if buf := s.m.APUBufferedStereo(); buf > 0 {
			if buf < req {
				return buf
			}
			return req
		}
		time.Sleep(time.Millisecond)
	}
	return 0
}

// fillFromAPU pulls up to want stereo frames from the APU and writes them
// into p as little-endian int16 pairs, folding to mono if configured.
func (s *apuStream) fillFromAPU(p []byte, want int) int {
	filled := 0
	offset := 0
	for filled < want {
		frames := s.m.APUPullStereo(want - filled)
		if len(frames) == 0 {
			break
		}
		for j := 0; j+1 < len(frames) && offset+bytesPerFrame-1 < len(p); j += 2 {
			l, r := frames[j], frames[j+1]
			if s.foldToMono {
				mid := int16((int32(l) + int32(r)) / 2)
				l, r = mid, mid
			}
			binary.LittleEndian.PutUint16(p[offset:], uint16(l))
			binary.LittleEndian.PutUint16(p[offset+2:], uint16(r))
			offset += bytesPerFrame
			filled++
		}
	}
	return filled
}

// fillSilence writes up to n silent frames (capped by p's capacity),
// records it as an underrun, and returns the byte count written.
func (s *apuStream) fillSilence(p []byte, n int) int {
	frameBytes := n * bytesPerFrame
	if frameBytes > len(p) {
		frameBytes = (len(p) / bytesPerFrame) * bytesPerFrame
	}
	for i := 0; i < frameBytes; i += bytesPerFrame {
		binary.LittleEndian.PutUint16(p[i:], 0)
		binary.LittleEndian.PutUint16(p[i+2:], 0)
	}
	s.underruns++
	filled := frameBytes / bytesPerFrame
	s.lastWanted, s.lastFilled = filled, filled
	return frameBytes
}

func zeroFill(p []byte) {
	for i := range p {
		p[i] = 0
	}
}
