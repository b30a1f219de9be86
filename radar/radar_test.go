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

package radar

import (
	"testing"

	"golang.org/x/xerrors"
)

func TestMetadataMerge(t *testing.T) {
	m := Metadata{"a": 1.0, "b": "x"}
	m.Merge(Metadata{"b": "y", "c": true})

	if v, _ := m.String("b"); v != "y" {
		t.Fatalf("expected later value to win, got %q\n", v)
	}
	if v, ok := m.Bool("c"); !ok || !v {
		t.Fatalf("missing merged key: %s\n", m.Format())
	}
	if v, ok := m.Float("a"); !ok || v != 1.0 {
		t.Fatalf("lost existing key: %s\n", m.Format())
	}
}

func TestMetadataNumeric(t *testing.T) {
	m := Metadata{"i": 8, "f": 2.5, "whole": 16.0, "s": "nope"}

	if v, ok := m.Float("i"); !ok || v != 8 {
		t.Fatalf("Float(int) = %v, %v\n", v, ok)
	}
	if _, ok := m.Int("f"); ok {
		t.Fatalf("Int accepted fractional value\n")
	}
	if v, ok := m.Int("whole"); !ok || v != 16 {
		t.Fatalf("Int(16.0) = %v, %v\n", v, ok)
	}
	if _, err := m.RequireFloat("s"); !xerrors.Is(err, ErrMissingMetadata) {
		t.Fatalf("expected ErrMissingMetadata, got %v\n", err)
	}
}

func TestCloneIsolated(t *testing.T) {
	m := Metadata{"a": 1}
	c := m.Clone()
	c["a"] = 2

	if v, _ := m.Int("a"); v != 1 {
		t.Fatalf("clone aliases original\n")
	}
	if c := Metadata(nil).Clone(); c == nil {
		t.Fatalf("nil clone should be empty, not nil\n")
	}
}

func TestAsPulse(t *testing.T) {
	p, err := AsPulse(Samples{1, 2, 3})
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	if p.Len() != 3 || p.Meta == nil || len(p.Meta) != 0 {
		t.Fatalf("bare samples not promoted: %+v\n", p)
	}

	ref := &Reference{Pulse{Meta: Metadata{"k": 1}, Samples: []complex128{1}}}
	if p, err = AsPulse(ref); err != nil || p.Len() != 1 {
		t.Fatalf("reference not accepted: %v\n", err)
	}

	for _, msg := range []Message{nil, NewCPI(2, 2), (*Pulse)(nil)} {
		if _, err := AsPulse(msg); !xerrors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed for %T, got %v\n", msg, err)
		}
	}
}

func TestCPILayout(t *testing.T) {
	c := NewCPI(3, 2)
	for idx := range c.Data {
		c.Data[idx] = complex(float64(idx), 0)
	}

	if c.At(1, 1) != 4 {
		t.Fatalf("At(1,1) = %v\n", c.At(1, 1))
	}
	if col := c.Column(1); len(col) != 3 || col[0] != 3 {
		t.Fatalf("Column(1) = %v\n", col)
	}
}

func TestReportCell(t *testing.T) {
	r := DetectionReport{RangeBins: 100, DopplerBins: 8, Indices: []int{4*100 + 50, 7}, Count: 2}

	if rIdx, dIdx := r.Cell(0); rIdx != 50 || dIdx != 4 {
		t.Fatalf("Cell(0) = (%d, %d)\n", rIdx, dIdx)
	}
	if rIdx, dIdx := r.Cell(1); rIdx != 7 || dIdx != 0 {
		t.Fatalf("Cell(1) = (%d, %d)\n", rIdx, dIdx)
	}
}

func TestPower(t *testing.T) {
	m := NewRangeDopplerMap(2, 1)
	m.Data[1] = 3 + 4i

	if p := m.Power(); p[0] != 0 || p[1] != 25 {
		t.Fatalf("Power() = %v\n", p)
	}
}
