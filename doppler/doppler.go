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

// Package doppler transforms each range bin of a CPI across slow time,
// producing a range-Doppler map with zero Doppler in the center column.
package doppler

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/fft"
	"github.com/bemasher/pdradar/radar"
)

var ErrInvalidSize = xerrors.New("invalid doppler fft size")

// Processor is safe for concurrent use. Process and Resize serialize on an
// internal lock, so a resize never runs during an in-flight transform.
type Processor struct {
	backend fft.Backend
	keys    radar.Keys
	log     logrus.FieldLogger

	mu    sync.Mutex
	size  int
	plan  fft.Plan
	row   []complex128
	freq  []complex128
	shift []complex128
}

func New(backend fft.Backend, size int, keys radar.Keys, log logrus.FieldLogger) (*Processor, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	p := &Processor{backend: backend, keys: keys, log: log}
	if err := p.Resize(size); err != nil {
		return nil, err
	}
	return p, nil
}

// Size returns the slow time transform length.
func (p *Processor) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Resize changes the transform length. CPIs with fewer pulses are zero
// padded, CPIs with more are truncated.
func (p *Processor) Resize(size int) error {
	if size < 1 {
		return xerrors.Errorf("%d: %w", size, ErrInvalidSize)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if size == p.size && p.plan != nil {
		return nil
	}

	plan, err := p.backend.NewPlan(size)
	if err != nil {
		return xerrors.Errorf("doppler: plan %d: %w", size, err)
	}

	p.log.WithFields(logrus.Fields{"size": size, "prev": p.size}).Debug("resizing doppler transform")

	p.size = size
	p.plan = plan
	p.row = make([]complex128, size)
	p.freq = make([]complex128, size)
	p.shift = make([]complex128, size)

	return nil
}

// Process returns the range-Doppler map of c. Values are unnormalized
// transform outputs.
func (p *Processor) Process(c *radar.CPI) (*radar.RangeDopplerMap, error) {
	if c.FastTime < 1 || c.Pulses < 1 || len(c.Data) != c.FastTime*c.Pulses {
		return nil, xerrors.Errorf("doppler: cpi shape %dx%d with %d samples: %w",
			c.FastTime, c.Pulses, len(c.Data), radar.ErrMalformed)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	m := radar.NewRangeDopplerMap(c.FastTime, p.size)
	m.Meta = c.Meta.Clone()
	m.Meta[p.keys.DopplerFFTSize] = p.size

	pulses := c.Pulses
	if pulses > p.size {
		pulses = p.size
	}

	for r := 0; r < c.FastTime; r++ {
		for idx := 0; idx < pulses; idx++ {
			p.row[idx] = c.Data[idx*c.FastTime+r]
		}
		for idx := pulses; idx < p.size; idx++ {
			p.row[idx] = 0
		}

		p.plan.Forward(p.freq, p.row)
		fft.Shift(p.shift, p.freq)

		for d, v := range p.shift {
			m.Data[d*c.FastTime+r] = v
		}
	}

	return m, nil
}
