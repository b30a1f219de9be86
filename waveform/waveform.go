// PDRADAR - A software-defined pulse-Doppler radar processor.
// Copyright (C) 2015 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package waveform

import (
	"math"
	"math/cmplx"

	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/radar"
)

// Generator builds reference pulses annotated under its Keys.
type Generator struct {
	Keys radar.Keys
}

// NewGenerator returns a generator using the default metadata keys.
func NewGenerator() Generator {
	return Generator{Keys: radar.DefaultKeys()}
}

// PhaseCoded modulates a unit amplitude carrier with the given chip
// phases, holding each chip for samplesPerChip samples.
func (g Generator) PhaseCoded(phases []float64, samplesPerChip int, sampleRate float64) *radar.Pulse {
	if samplesPerChip < 1 {
		samplesPerChip = 1
	}

	signal := Upsample(phases, samplesPerChip)
	p := &radar.Pulse{Meta: radar.Metadata{}, Samples: make([]complex128, len(signal))}
	for idx, phi := range signal {
		p.Samples[idx] = cmplx.Rect(1, phi)
	}

	p.Meta[g.Keys.SampleRate] = sampleRate
	p.Meta[g.Keys.Duration] = float64(len(signal)) / sampleRate
	p.Meta[g.Keys.Bandwidth] = sampleRate / float64(samplesPerChip)
	p.Meta[g.Keys.Label] = "phase-code"

	return p
}

// LFM returns a linear FM chirp sweeping bandwidth Hz, centered at DC,
// over pulseWidth seconds.
func (g Generator) LFM(bandwidth, pulseWidth, sampleRate float64) (*radar.Pulse, error) {
	if bandwidth <= 0 || pulseWidth <= 0 || sampleRate <= 0 {
		return nil, xerrors.Errorf("lfm: bandwidth, pulse width and sample rate must be positive")
	}
	if bandwidth > sampleRate {
		return nil, xerrors.Errorf("lfm: bandwidth %g exceeds sample rate %g", bandwidth, sampleRate)
	}

	n := int(math.Round(pulseWidth * sampleRate))
	if n < 1 {
		return nil, xerrors.Errorf("lfm: pulse width %g shorter than one sample", pulseWidth)
	}

	slope := bandwidth / pulseWidth
	p := &radar.Pulse{Meta: radar.Metadata{}, Samples: make([]complex128, n)}
	for idx := range p.Samples {
		t := float64(idx) / sampleRate
		p.Samples[idx] = cmplx.Rect(1, math.Pi*slope*t*t-math.Pi*bandwidth*t)
	}

	p.Meta[g.Keys.SampleRate] = sampleRate
	p.Meta[g.Keys.Duration] = float64(n) / sampleRate
	p.Meta[g.Keys.Bandwidth] = bandwidth
	p.Meta[g.Keys.Label] = "lfm"

	return p, nil
}

// Pulsed zero pads p to one pulse repetition interval of round(fs/prf)
// samples and records the PRF, sample rate and the number of non-zero
// samples. A PRF or sample rate present in p's metadata overrides the
// arguments.
func (g Generator) Pulsed(p *radar.Pulse, prf, sampleRate float64) (*radar.Pulse, error) {
	if v, ok := p.Meta.Float(g.Keys.PRF); ok {
		prf = v
	}
	if v, ok := p.Meta.Float(g.Keys.SampleRate); ok {
		sampleRate = v
	}
	if prf <= 0 || sampleRate <= 0 {
		return nil, xerrors.Errorf("pulsed: prf and sample rate must be positive")
	}

	pri := int(math.Round(sampleRate / prf))
	if pri < len(p.Samples) {
		return nil, xerrors.Errorf("pulsed: pulse of %d samples exceeds pri of %d samples", len(p.Samples), pri)
	}

	out := &radar.Pulse{Meta: p.Meta.Clone(), Samples: make([]complex128, pri)}
	copy(out.Samples, p.Samples)

	out.Meta[g.Keys.SampleRate] = sampleRate
	out.Meta[g.Keys.PRF] = prf
	out.Meta[g.Keys.NonZero] = len(p.Samples)

	return out, nil
}

// Unpadded returns the transmitted part of a pulse built by Pulsed, the
// first NonZero samples, for use as a matched filter reference. The
// samples are shared. Pulses without a valid NonZero annotation are
// returned unchanged.
func (g Generator) Unpadded(p *radar.Pulse) *radar.Pulse {
	n, ok := p.Meta.Int(g.Keys.NonZero)
	if !ok || n <= 0 || n >= len(p.Samples) {
		return p
	}
	return &radar.Pulse{Meta: p.Meta.Clone(), Samples: p.Samples[:n]}
}

// Annotate returns a copy of p whose metadata carries the given PRF. The
// samples are shared.
func (g Generator) Annotate(p *radar.Pulse, prf float64) *radar.Pulse {
	meta := p.Meta.Clone()
	meta[g.Keys.PRF] = prf
	return &radar.Pulse{Meta: meta, Samples: p.Samples}
}

// PhaseCoded builds a phase coded pulse with the default keys.
func PhaseCoded(phases []float64, samplesPerChip int, sampleRate float64) *radar.Pulse {
	return NewGenerator().PhaseCoded(phases, samplesPerChip, sampleRate)
}
