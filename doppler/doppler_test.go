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

package doppler

import (
	"math"
	"math/cmplx"
	"sync"
	"testing"

	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/fft"
	"github.com/bemasher/pdradar/radar"
)

const epsilon = 1e-9

// toneCPI returns a CPI whose range bin r holds a slow time tone advancing
// by 2*pi*bin/size radians per pulse.
func toneCPI(fastTime, pulses, r int, bin, size int) *radar.CPI {
	c := radar.NewCPI(fastTime, pulses)
	for p := 0; p < pulses; p++ {
		phase := 2 * math.Pi * float64(bin) * float64(p) / float64(size)
		c.Data[p*fastTime+r] = cmplx.Rect(1, phase)
	}
	return c
}

func peak(m *radar.RangeDopplerMap) (r, d int) {
	max := -1.0
	for idx, v := range m.Data {
		if a := cmplx.Abs(v); a > max {
			max = a
			r, d = idx%m.RangeBins, idx/m.RangeBins
		}
	}
	return r, d
}

func TestZeroDopplerCentered(t *testing.T) {
	for _, size := range []int{8, 16, 5} {
		p, err := New(fft.Gonum{}, size, radar.DefaultKeys(), nil)
		if err != nil {
			t.Fatalf("%+v\n", err)
		}

		c := toneCPI(32, 8, 12, 0, 8)
		m, err := p.Process(c)
		if err != nil {
			t.Fatalf("%+v\n", err)
		}

		if m.RangeBins != 32 || m.DopplerBins != size {
			t.Fatalf("shape %dx%d\n", m.RangeBins, m.DopplerBins)
		}
		if r, d := peak(m); r != 12 || d != size/2 {
			t.Fatalf("size %d: peak at (%d, %d), expected (12, %d)\n", size, r, d, size/2)
		}
		if v, _ := m.Meta.Int(radar.DefaultKeys().DopplerFFTSize); v != size {
			t.Fatalf("fft size annotation %d\n", v)
		}
	}
}

func TestConstantSlowTime(t *testing.T) {
	p, _ := New(fft.Gonum{}, 8, radar.DefaultKeys(), nil)
	c := toneCPI(4, 8, 2, 0, 8)

	m, err := p.Process(c)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	for d := 0; d < 8; d++ {
		v := cmplx.Abs(m.At(2, d))
		if d == 4 && math.Abs(v-8) > epsilon {
			t.Fatalf("center bin %f, expected 8\n", v)
		}
		if d != 4 && v > epsilon {
			t.Fatalf("bin %d leaked %g\n", d, v)
		}
	}
}

func TestDopplerBin(t *testing.T) {
	p, _ := New(fft.Gonum{}, 16, radar.DefaultKeys(), nil)
	for _, bin := range []int{1, 3, -2, 7} {
		m, err := p.Process(toneCPI(8, 16, 5, bin, 16))
		if err != nil {
			t.Fatalf("%+v\n", err)
		}
		if r, d := peak(m); r != 5 || d != 8+bin {
			t.Fatalf("bin %d: peak at (%d, %d), expected (5, %d)\n", bin, r, d, 8+bin)
		}
	}
}

func TestTruncate(t *testing.T) {
	p, _ := New(fft.Gonum{}, 4, radar.DefaultKeys(), nil)
	m, err := p.Process(toneCPI(4, 16, 0, 0, 16))
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	if v := cmplx.Abs(m.At(0, 2)); math.Abs(v-4) > epsilon {
		t.Fatalf("truncated sum %f, expected 4\n", v)
	}
}

func TestResize(t *testing.T) {
	if _, err := New(fft.Gonum{}, 0, radar.DefaultKeys(), nil); !xerrors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v\n", err)
	}

	p, _ := New(fft.Gonum{}, 8, radar.DefaultKeys(), nil)
	c := toneCPI(16, 8, 3, 0, 8)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(2)
		go func(size int) {
			defer wg.Done()
			if err := p.Resize(size); err != nil {
				t.Errorf("%+v\n", err)
			}
		}(8 << uint(g))
		go func() {
			defer wg.Done()
			m, err := p.Process(c)
			if err != nil {
				t.Errorf("%+v\n", err)
				return
			}
			if r, d := peak(m); r != 3 || d != m.DopplerBins/2 {
				t.Errorf("peak at (%d, %d) with %d bins\n", r, d, m.DopplerBins)
			}
		}()
	}
	wg.Wait()

	if err := p.Resize(32); err != nil || p.Size() != 32 {
		t.Fatalf("Resize(32): %v, size %d\n", err, p.Size())
	}
}

func TestMalformedCPI(t *testing.T) {
	p, _ := New(fft.Gonum{}, 8, radar.DefaultKeys(), nil)
	bad := &radar.CPI{FastTime: 4, Pulses: 2, Data: make([]complex128, 3)}
	if _, err := p.Process(bad); !xerrors.Is(err, radar.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v\n", err)
	}
}
