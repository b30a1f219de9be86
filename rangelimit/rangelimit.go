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

// Package rangelimit trims the fast-time samples of a pulse to a window of
// physical ranges.
package rangelimit

import (
	"math"

	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/radar"
)

var (
	ErrInvalidRange = xerrors.New("invalid range window")
	ErrEmptyWindow  = xerrors.New("empty sample window")
)

// indexEpsilon absorbs floating point error when converting a range that
// lies exactly on a sample boundary back to an index.
const indexEpsilon = 1e-6

// Slice returns samples [min, max] of p inclusive. When absMax is set, or
// max is past the end of p, the window extends to the last sample. The
// returned max is the last index actually kept.
func Slice(p *radar.Pulse, min, max int, absMax bool) (*radar.Pulse, int, error) {
	n := len(p.Samples)
	if absMax || max > n-1 {
		max = n - 1
	}
	if min < 0 || min > max {
		return nil, max, xerrors.Errorf("[%d, %d] of %d samples: %w", min, max, n, ErrEmptyWindow)
	}

	out := &radar.Pulse{Meta: p.Meta.Clone(), Samples: make([]complex128, max-min+1)}
	copy(out.Samples, p.Samples[min:max+1])

	return out, max, nil
}

// Config describes the window in meters. SampleRate is used when the pulse
// metadata does not carry one.
type Config struct {
	MinRange   float64 `mapstructure:"min"`
	MaxRange   float64 `mapstructure:"max"`
	AbsMax     bool    `mapstructure:"abs_max"`
	Multiplier float64 `mapstructure:"multiplier"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

func (cfg Config) Validate() error {
	switch {
	case cfg.MinRange < 0 || cfg.MaxRange < 0:
		return xerrors.Errorf("negative range: %w", ErrInvalidRange)
	case cfg.MinRange > cfg.MaxRange && !cfg.AbsMax:
		return xerrors.Errorf("min %g > max %g: %w", cfg.MinRange, cfg.MaxRange, ErrInvalidRange)
	case cfg.Multiplier < 0:
		return xerrors.Errorf("negative multiplier: %w", ErrInvalidRange)
	case cfg.SampleRate < 0:
		return xerrors.Errorf("negative sample rate: %w", ErrInvalidRange)
	}
	return nil
}

// Limiter applies a Config to pulses. It holds no mutable state.
type Limiter struct {
	cfg  Config
	keys radar.Keys
}

func New(cfg Config, keys radar.Keys) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{cfg: cfg, keys: keys}, nil
}

// Window holds the sample indices of a range window and the ranges they
// correspond to.
type Window struct {
	Min, Max           int
	MinRange, MaxRange float64
	Tail               int
}

// RangeToIndex converts a two way range in meters to a sample index.
func RangeToIndex(r, sampleRate float64) int {
	return int(math.Floor(2*r/radar.SpeedOfLight*sampleRate + indexEpsilon))
}

// IndexToRange is the inverse of RangeToIndex for whole indices.
func IndexToRange(idx int, sampleRate float64) float64 {
	return float64(idx) * radar.SpeedOfLight / (2 * sampleRate)
}

// Window computes the index window for a pulse of n samples whose
// transmitted waveform lasted duration seconds. The maximum index is
// extended by duration*sampleRate*multiplier samples so echoes starting
// near the maximum range are kept whole.
func (l *Limiter) Window(n int, sampleRate, duration float64) (w Window) {
	w.Tail = int(math.Floor(duration * sampleRate * l.cfg.Multiplier))
	w.Min = RangeToIndex(l.cfg.MinRange, sampleRate)
	w.Max = RangeToIndex(l.cfg.MaxRange, sampleRate) + w.Tail

	w.MinRange = IndexToRange(w.Min, sampleRate)
	w.MaxRange = l.cfg.MaxRange
	if l.cfg.AbsMax || w.Max > n-1 {
		w.Max = n - 1
		w.MaxRange = IndexToRange(w.Max-w.Tail, sampleRate)
	}

	return w
}

// Limit trims p to the configured window. The transmitted waveform
// duration must be present in p's metadata.
func (l *Limiter) Limit(p *radar.Pulse) (*radar.Pulse, error) {
	duration, err := p.Meta.RequireFloat(l.keys.Duration)
	if err != nil {
		return nil, xerrors.Errorf("range limit: %w", err)
	}

	sampleRate, ok := p.Meta.Float(l.keys.SampleRate)
	if !ok {
		sampleRate = l.cfg.SampleRate
	}
	if sampleRate <= 0 {
		return nil, xerrors.Errorf("range limit: %q: %w", l.keys.SampleRate, radar.ErrMissingMetadata)
	}

	w := l.Window(len(p.Samples), sampleRate, duration)
	out, _, err := Slice(p, w.Min, w.Max, false)
	if err != nil {
		return nil, xerrors.Errorf("range limit: %w", err)
	}

	out.Meta[l.keys.MinRange] = w.MinRange
	out.Meta[l.keys.MaxRange] = w.MaxRange
	out.Meta[l.keys.RangeMultiplier] = l.cfg.Multiplier

	return out, nil
}
