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
	"testing"

	"golang.org/x/xerrors"
)

const epsilon = 1e-9

func autocorrelation(x []complex128, lag int) (sum complex128) {
	for idx := lag; idx < len(x); idx++ {
		sum += x[idx] * cmplx.Conj(x[idx-lag])
	}
	return sum
}

func TestBarkerSidelobes(t *testing.T) {
	for n := range barkerBits {
		code, err := Barker(n)
		if err != nil {
			t.Fatalf("%+v\n", err)
		}
		t.Logf("barker %d: %s\n", n, formatPhases(code))

		p := PhaseCoded(code, 1, 1)
		if peak := cmplx.Abs(autocorrelation(p.Samples, 0)); math.Abs(peak-float64(n)) > epsilon {
			t.Fatalf("barker %d: mainlobe %f\n", n, peak)
		}
		for lag := 1; lag < n; lag++ {
			if side := cmplx.Abs(autocorrelation(p.Samples, lag)); side > 1+epsilon {
				t.Fatalf("barker %d: sidelobe %f at lag %d\n", n, side, lag)
			}
		}
	}
}

func TestInvalidLengths(t *testing.T) {
	for _, n := range []int{0, 1, 6, 8, 12, 14} {
		if _, err := Barker(n); !xerrors.Is(err, ErrInvalidLength) {
			t.Fatalf("Barker(%d): expected ErrInvalidLength, got %v\n", n, err)
		}
	}
	for _, m := range []int{0, 2, 8, 15} {
		if _, err := Frank(m); !xerrors.Is(err, ErrInvalidLength) {
			t.Fatalf("Frank(%d): expected ErrInvalidLength, got %v\n", m, err)
		}
	}
	if _, err := P4(0); !xerrors.Is(err, ErrInvalidLength) {
		t.Fatalf("P4(0): expected ErrInvalidLength, got %v\n", err)
	}
}

func TestWrapToPi(t *testing.T) {
	x := []float64{0, math.Pi, -math.Pi, 3 * math.Pi, 2.5 * math.Pi, -0.5 * math.Pi}
	WrapToPi(x)
	for idx, v := range x {
		if v < -math.Pi-epsilon || v > math.Pi+epsilon {
			t.Fatalf("phase %d out of range: %f\n", idx, v)
		}
	}
	if math.Abs(x[4]-0.5*math.Pi) > epsilon {
		t.Fatalf("2.5pi wrapped to %f\n", x[4])
	}
}

func TestFrank(t *testing.T) {
	code, err := Frank(16)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	if len(code) != 16 {
		t.Fatalf("length %d\n", len(code))
	}

	// Row n of the 4x4 Frank matrix advances phase by n*pi/2 per chip.
	expected := math.Pi / 2
	if d := math.Remainder(code[5]-code[4], 2*math.Pi); math.Abs(d-expected) > epsilon {
		t.Fatalf("row 1 step %f, expected %f\n", d, expected)
	}
}

func TestGenerate(t *testing.T) {
	for _, name := range []string{"barker", "frank", "p4"} {
		c, err := ParseCode(name)
		if err != nil {
			t.Fatalf("%+v\n", err)
		}
		if c.String() != name {
			t.Fatalf("round trip %q -> %q\n", name, c)
		}
		if _, err := Generate(c, 16); c != BarkerCode && err != nil {
			t.Fatalf("%s: %+v\n", name, err)
		}
	}
	if _, err := ParseCode("costas"); err == nil {
		t.Fatalf("expected error for unknown code\n")
	}
}

func TestPhaseCodedMetadata(t *testing.T) {
	code, _ := Barker(7)
	g := NewGenerator()
	p := g.PhaseCoded(code, 4, 1e6)

	if p.Len() != 28 {
		t.Fatalf("length %d, expected 28\n", p.Len())
	}
	if d, _ := p.Meta.Float(g.Keys.Duration); math.Abs(d-28e-6) > epsilon {
		t.Fatalf("duration %g\n", d)
	}
	if b, _ := p.Meta.Float(g.Keys.Bandwidth); b != 250e3 {
		t.Fatalf("bandwidth %g\n", b)
	}
}

func TestLFM(t *testing.T) {
	g := NewGenerator()
	p, err := g.LFM(10e6, 20e-6, 20e6)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	if p.Len() != 400 {
		t.Fatalf("length %d, expected 400\n", p.Len())
	}
	for idx, v := range p.Samples {
		if math.Abs(cmplx.Abs(v)-1) > epsilon {
			t.Fatalf("sample %d not unit amplitude: %v\n", idx, v)
		}
	}

	if _, err := g.LFM(30e6, 20e-6, 20e6); err == nil {
		t.Fatalf("expected error for bandwidth above sample rate\n")
	}
}

func TestPulsed(t *testing.T) {
	g := NewGenerator()
	code, _ := Barker(13)
	p := g.PhaseCoded(code, 1, 1e6)

	out, err := g.Pulsed(p, 10e3, 1e6)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	if out.Len() != 100 {
		t.Fatalf("pri length %d, expected 100\n", out.Len())
	}
	if nz, _ := out.Meta.Int(g.Keys.NonZero); nz != 13 {
		t.Fatalf("nonzero %d\n", nz)
	}
	for idx := 13; idx < out.Len(); idx++ {
		if out.Samples[idx] != 0 {
			t.Fatalf("sample %d not zero padded\n", idx)
		}
	}
	if _, ok := p.Meta.Float(g.Keys.PRF); ok {
		t.Fatalf("input metadata was mutated\n")
	}

	// PRF from metadata takes precedence.
	a := g.Annotate(p, 20e3)
	if out, err = g.Pulsed(a, 10e3, 1e6); err != nil || out.Len() != 50 {
		t.Fatalf("metadata prf ignored: %d, %v\n", out.Len(), err)
	}

	if _, err := g.Pulsed(p, 1e6, 1e6); err == nil {
		t.Fatalf("expected error when the pulse exceeds the pri\n")
	}
}

func TestUnpadded(t *testing.T) {
	g := NewGenerator()
	code, _ := Barker(13)
	p := g.PhaseCoded(code, 2, 1e6)

	pulsed, err := g.Pulsed(p, 10e3, 1e6)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}

	ref := g.Unpadded(pulsed)
	if ref.Len() != p.Len() {
		t.Fatalf("unpadded length %d, expected %d\n", ref.Len(), p.Len())
	}
	for idx := range ref.Samples {
		if ref.Samples[idx] != p.Samples[idx] {
			t.Fatalf("sample %d differs\n", idx)
		}
	}
	if prf, _ := ref.Meta.Float(g.Keys.PRF); prf != 10e3 {
		t.Fatalf("prf annotation lost: %f\n", prf)
	}

	if g.Unpadded(p) != p {
		t.Fatalf("pulse without padding should be returned unchanged\n")
	}
}
