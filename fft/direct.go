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

package fft

import (
	"math"
	"math/cmplx"

	"golang.org/x/xerrors"
)

// Direct evaluates the DFT sum directly. It is O(n^2) and exists to
// validate the other backends.
type Direct struct{}

func (Direct) Name() string { return "direct" }

func (Direct) NewPlan(n int) (Plan, error) {
	if n < 1 {
		return nil, xerrors.Errorf("direct: invalid transform length %d", n)
	}

	p := &directPlan{twiddle: make([]complex128, n), work: make([]complex128, n)}
	for k := range p.twiddle {
		p.twiddle[k] = cmplx.Exp(complex(0, -2*math.Pi*float64(k)/float64(n)))
	}
	return p, nil
}

func (Direct) Multiply(dst, a, b []complex128) {
	multiply(dst, a, b)
}

type directPlan struct {
	twiddle []complex128
	work    []complex128
}

func (p *directPlan) Len() int { return len(p.twiddle) }

func (p *directPlan) Forward(dst, src []complex128) []complex128 {
	return p.execute(dst, src, false)
}

func (p *directPlan) Inverse(dst, src []complex128) []complex128 {
	return p.execute(dst, src, true)
}

func (p *directPlan) execute(dst, src []complex128, inverse bool) []complex128 {
	n := len(p.twiddle)
	if len(src) != n {
		panic("direct: src length mismatch")
	}
	if dst == nil {
		dst = make([]complex128, n)
	} else if len(dst) != n {
		panic("direct: dst length mismatch")
	}

	for k := range p.work {
		var sum complex128
		for j, v := range src {
			w := p.twiddle[(j*k)%n]
			if inverse {
				w = cmplx.Conj(w)
			}
			sum += v * w
		}
		p.work[k] = sum
	}
	copy(dst, p.work)

	return dst
}
