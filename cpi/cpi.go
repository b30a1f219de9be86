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

// Package cpi groups consecutive pulses into coherent processing
// intervals.
package cpi

import (
	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/radar"
)

var (
	ErrLengthMismatch = xerrors.New("pulse length mismatch")
	ErrInvalidLength  = xerrors.New("invalid cpi length")
)

// Accumulator collects pulses until it holds one CPI. It is not safe for
// concurrent use; a stage runner calls it from a single goroutine.
type Accumulator struct {
	keys   radar.Keys
	pulses int

	fastTime int
	count    int
	meta     radar.Metadata
	data     []complex128
}

// New returns an accumulator publishing every pulses pulses.
func New(pulses int, keys radar.Keys) (*Accumulator, error) {
	if pulses < 1 {
		return nil, xerrors.Errorf("%d: %w", pulses, ErrInvalidLength)
	}
	return &Accumulator{keys: keys, pulses: pulses, meta: radar.Metadata{}}, nil
}

// Len returns the configured number of pulses per CPI.
func (a *Accumulator) Len() int {
	return a.pulses
}

// Count returns the number of pulses buffered toward the next CPI.
func (a *Accumulator) Count() int {
	return a.count
}

// Reset discards buffered pulses.
func (a *Accumulator) Reset() {
	a.count = 0
	a.fastTime = 0
	a.meta = radar.Metadata{}
	a.data = nil
}

// Accumulate appends p as the next column. It returns the completed CPI when
// p fills it, and nil otherwise. A pulse whose length differs from the
// first pulse of the interval is rejected with ErrLengthMismatch and leaves
// the accumulator unchanged. Metadata of later pulses overwrites earlier
// values key by key.
func (a *Accumulator) Accumulate(p *radar.Pulse) (*radar.CPI, error) {
	n := len(p.Samples)
	if n == 0 {
		return nil, xerrors.Errorf("empty pulse: %w", ErrLengthMismatch)
	}

	if a.count == 0 {
		a.fastTime = n
		a.data = make([]complex128, n*a.pulses)
	} else if n != a.fastTime {
		return nil, xerrors.Errorf("pulse %d has %d samples, cpi has %d: %w", a.count, n, a.fastTime, ErrLengthMismatch)
	}

	copy(a.data[a.count*n:], p.Samples)
	a.meta.Merge(p.Meta)
	a.count++

	if a.count < a.pulses {
		return nil, nil
	}

	c := &radar.CPI{
		Meta:     a.meta,
		FastTime: a.fastTime,
		Pulses:   a.pulses,
		Data:     a.data,
	}
	c.Meta[a.keys.NumPulseCPI] = a.pulses
	c.Meta[a.keys.CPIID] = uuid.NewString()

	a.Reset()

	return c, nil
}
