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
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Gonum computes transforms on the CPU with gonum's mixed radix FFT.
type Gonum struct{}

func (Gonum) Name() string { return "gonum" }

func (Gonum) NewPlan(n int) (Plan, error) {
	if n < 1 {
		return nil, xerrors.Errorf("gonum: invalid transform length %d", n)
	}
	return &gonumPlan{fourier.NewCmplxFFT(n)}, nil
}

func (Gonum) Multiply(dst, a, b []complex128) {
	multiply(dst, a, b)
}

type gonumPlan struct {
	fft *fourier.CmplxFFT
}

func (p *gonumPlan) Len() int {
	return p.fft.Len()
}

func (p *gonumPlan) Forward(dst, src []complex128) []complex128 {
	return p.fft.Coefficients(dst, src)
}

func (p *gonumPlan) Inverse(dst, src []complex128) []complex128 {
	return p.fft.Sequence(dst, src)
}
