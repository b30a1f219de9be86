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

// Package compress implements matched filter pulse compression by fast
// convolution with the conjugated, time reversed reference waveform.
package compress

import (
	"math/cmplx"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/fft"
	"github.com/bemasher/pdradar/radar"
)

var ErrNoReference = xerrors.New("no reference waveform")

// Mode selects which part of the linear convolution is published.
type Mode int

const (
	// Aligned publishes one sample per input sample, starting at zero lag,
	// so an echo delayed by k samples peaks at output index k.
	Aligned Mode = iota

	// Full publishes the whole len(input)+len(reference)-1 sample linear
	// convolution. An echo delayed by k samples peaks at k+len(reference)-1.
	Full
)

func (m Mode) String() string {
	if m == Full {
		return "full"
	}
	return "aligned"
}

type kernel struct {
	gen  uint64
	taps []complex128
}

// Compressor is safe for concurrent use. SetReference may be called at any
// time; the next compression observes the new reference.
type Compressor struct {
	backend fft.Backend
	mode    Mode
	keys    radar.Keys
	log     logrus.FieldLogger

	ref atomic.Pointer[kernel]
	gen atomic.Uint64

	// mu guards everything below: the plan, the frequency domain kernel
	// and the work buffer are rebuilt when the transform size or the
	// reference changes.
	mu     sync.Mutex
	size   int
	refGen uint64
	plan   fft.Plan
	kfreq  []complex128
	work   []complex128
	freq   []complex128
}

func New(backend fft.Backend, mode Mode, keys radar.Keys, log logrus.FieldLogger) *Compressor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Compressor{backend: backend, mode: mode, keys: keys, log: log}
}

// SetReference replaces the reference waveform. The samples are copied.
func (c *Compressor) SetReference(ref []complex128) {
	k := &kernel{gen: c.gen.Add(1), taps: make([]complex128, len(ref))}
	for idx, v := range ref {
		k.taps[len(ref)-1-idx] = cmplx.Conj(v)
	}
	c.ref.Store(k)
}

// HasReference reports whether a non-empty reference has been set.
func (c *Compressor) HasReference() bool {
	k := c.ref.Load()
	return k != nil && len(k.taps) > 0
}

// Size returns the current transform length, 0 before the first
// compression.
func (c *Compressor) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Compress matched filters p. Before a reference is set it returns
// ErrNoReference and publishes nothing.
func (c *Compressor) Compress(p *radar.Pulse) (*radar.Pulse, error) {
	k := c.ref.Load()
	if k == nil || len(k.taps) == 0 {
		return nil, ErrNoReference
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.prepare(k, len(p.Samples)); err != nil {
		return nil, err
	}

	out := &radar.Pulse{Meta: p.Meta.Clone()}
	out.Samples = c.convolve(k, p.Samples, nil)
	c.annotate(out.Meta, k)

	return out, nil
}

// CompressCPI matched filters every pulse of a CPI with a single plan.
func (c *Compressor) CompressCPI(in *radar.CPI) (*radar.CPI, error) {
	k := c.ref.Load()
	if k == nil || len(k.taps) == 0 {
		return nil, ErrNoReference
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.prepare(k, in.FastTime); err != nil {
		return nil, err
	}

	out := radar.NewCPI(c.outputLen(k, in.FastTime), in.Pulses)
	out.Meta = in.Meta.Clone()
	for p := 0; p < in.Pulses; p++ {
		c.convolve(k, in.Column(p), out.Column(p))
	}
	c.annotate(out.Meta, k)

	return out, nil
}

func (c *Compressor) outputLen(k *kernel, n int) int {
	if c.mode == Full {
		return n + len(k.taps) - 1
	}
	return n
}

// prepare rebuilds the plan when the required transform length changes and
// the frequency domain kernel when either the length or the reference
// changes. Buffers only grow.
func (c *Compressor) prepare(k *kernel, n int) error {
	size := fft.NextPowerOf2(n + len(k.taps) - 1)

	if size != c.size || c.plan == nil {
		plan, err := c.backend.NewPlan(size)
		if err != nil {
			return xerrors.Errorf("compress: plan %d: %w", size, err)
		}

		c.log.WithFields(logrus.Fields{
			"backend": c.backend.Name(),
			"size":    size,
			"prev":    c.size,
		}).Debug("rebuilding compression plan")

		c.plan = plan
		c.size = size
		c.refGen = 0
		if cap(c.work) < size {
			c.work = make([]complex128, size)
			c.freq = make([]complex128, size)
			c.kfreq = make([]complex128, size)
		}
		c.work = c.work[:size]
		c.freq = c.freq[:size]
		c.kfreq = c.kfreq[:size]
	}

	if c.refGen != k.gen {
		for idx := range c.work {
			c.work[idx] = 0
		}
		copy(c.work, k.taps)
		c.plan.Forward(c.kfreq, c.work)
		c.refGen = k.gen
	}

	return nil
}

func (c *Compressor) convolve(k *kernel, in, dst []complex128) []complex128 {
	copy(c.work, in)
	for idx := len(in); idx < c.size; idx++ {
		c.work[idx] = 0
	}

	c.plan.Forward(c.freq, c.work)
	c.backend.Multiply(c.freq, c.freq, c.kfreq)
	c.plan.Inverse(c.work, c.freq)
	fft.Scale(c.work, 1/float64(c.size))

	offset := 0
	if c.mode == Aligned {
		offset = len(k.taps) - 1
	}

	n := c.outputLen(k, len(in))
	if dst == nil {
		dst = make([]complex128, n)
	}
	copy(dst, c.work[offset:offset+n])

	return dst
}

func (c *Compressor) annotate(meta radar.Metadata, k *kernel) {
	if c.mode == Full && c.keys.LagOffset != "" {
		meta[c.keys.LagOffset] = len(k.taps) - 1
	}
}
