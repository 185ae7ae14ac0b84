package apu

import (
	"bytes"
	"encoding/gob"
)

type apuState struct {
	Power      bool
	NR50, NR51 byte
	FSCounter  int
	FSStep     int
	Pulse1     pulseState
	Pulse2     pulseState
	Wave       waveState
	Noise      noiseState
	CycAccum   float64
}

type pulseState struct {
	Enabled     bool
	Duty        byte
	Length      int
	LenEn       bool
	Vol         byte
	EnvDir      int8
	EnvPer      byte
	CurVol      byte
	EnvTmr      byte
	Freq        uint16
	Timer       int
	Phase       int
	SweepPer    byte
	SweepNeg    bool
	SweepShift  byte
	SweepTmr    byte
	SweepEn     bool
	SweepShadow uint16
}

type waveState struct {
	Enabled bool
	DACEn   bool
	Length  int
	LenEn   bool
	VolCode byte
	Freq    uint16
	Timer   int
	Pos     int
	RAM     [16]byte
}

type noiseState struct {
	Enabled bool
	Length  int
	LenEn   bool
	Vol     byte
	EnvDir  int8
	EnvPer  byte
	CurVol  byte
	EnvTmr  byte
	Shift   byte
	Width7  bool
	DivSel  byte
	Timer   int
	LFSR    uint16
}

func savePulse(p pulseChannel) pulseState {
	return pulseState{
		Enabled: p.enabled, Duty: p.duty, Length: p.length, LenEn: p.lenEn,
		Vol: p.vol, EnvDir: p.envDir, EnvPer: p.envPer, CurVol: p.curVol, EnvTmr: p.envTmr,
		Freq: p.freq, Timer: p.timer, Phase: p.phase,
		SweepPer: p.sweepPer, SweepNeg: p.sweepNeg, SweepShift: p.sweepShift,
		SweepTmr: p.sweepTmr, SweepEn: p.sweepEn, SweepShadow: p.sweepShadow,
	}
}

func loadPulse(p *pulseChannel, s pulseState) {
	p.enabled, p.duty, p.length, p.lenEn = s.Enabled, s.Duty, s.Length, s.LenEn
	p.vol, p.envDir, p.envPer, p.curVol, p.envTmr = s.Vol, s.EnvDir, s.EnvPer, s.CurVol, s.EnvTmr
	p.freq, p.timer, p.phase = s.Freq, s.Timer, s.Phase
	p.sweepPer, p.sweepNeg, p.sweepShift = s.SweepPer, s.SweepNeg, s.SweepShift
	p.sweepTmr, p.sweepEn, p.sweepShadow = s.SweepTmr, s.SweepEn, s.SweepShadow
}

// SaveState serializes every channel's generator/envelope/sweep state plus
// the frame sequencer and mixing registers.
func (a *APU) SaveState() []byte {
	var buf bytes.Buffer
	s := apuState{
		Power: a.power,
		NR50:  a.nr50, NR51: a.nr51,
		FSCounter: a.fsCounter, FSStep: a.fsStep,
		Pulse1: savePulse(a.pulse1),
		Pulse2: savePulse(a.pulse2),
		Wave: waveState{
			Enabled: a.wave.enabled, DACEn: a.wave.dacEn, Length: a.wave.length, LenEn: a.wave.lenEn,
			VolCode: a.wave.volCode, Freq: a.wave.freq, Timer: a.wave.timer, Pos: a.wave.pos,
			RAM: a.wave.ram,
		},
		Noise: noiseState{
			Enabled: a.noise.enabled, Length: a.noise.length, LenEn: a.noise.lenEn,
			Vol: a.noise.vol, EnvDir: a.noise.envDir, EnvPer: a.noise.envPer,
			CurVol: a.noise.curVol, EnvTmr: a.noise.envTmr,
			Shift: a.noise.shift, Width7: a.noise.width7, DivSel: a.noise.divSel,
			Timer: a.noise.timer, LFSR: a.noise.lfsr,
		},
		CycAccum: a.cycAccum,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

// LoadState restores state previously produced by SaveState. A decode
// failure leaves the APU unchanged.
func (a *APU) LoadState(data []byte) {
	var s apuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	a.power = s.Power
	a.nr50, a.nr51 = s.NR50, s.NR51
	a.fsCounter, a.fsStep = s.FSCounter, s.FSStep
	loadPulse(&a.pulse1, s.Pulse1)
	loadPulse(&a.pulse2, s.Pulse2)

	a.wave.enabled, a.wave.dacEn, a.wave.length, a.wave.lenEn = s.Wave.Enabled, s.Wave.DACEn, s.Wave.Length, s.Wave.LenEn
	a.wave.volCode, a.wave.freq, a.wave.timer, a.wave.pos = s.Wave.VolCode, s.Wave.Freq, s.Wave.Timer, s.Wave.Pos
	a.wave.ram = s.Wave.RAM

	a.noise.enabled, a.noise.length, a.noise.lenEn = s.Noise.Enabled, s.Noise.Length, s.Noise.LenEn
	a.noise.vol, a.noise.envDir, a.noise.envPer = s.Noise.Vol, s.Noise.EnvDir, s.Noise.EnvPer
	a.noise.curVol, a.noise.envTmr = s.Noise.CurVol, s.Noise.EnvTmr
	a.noise.shift, a.noise.width7, a.noise.divSel = s.Noise.Shift, s.Noise.Width7, s.Noise.DivSel
	a.noise.timer, a.noise.lfsr = s.Noise.Timer, s.Noise.LFSR

	a.cycAccum = s.CycAccum
}
