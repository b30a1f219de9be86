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
	"fmt"

	"golang.org/x/xerrors"
)

// ErrMalformed is returned when a message does not carry the payload a
// stage expects.
var ErrMalformed = xerrors.New("malformed message")

// Message is the tagged variant exchanged between stages. The set of
// implementations is closed: Samples, Pulse, Reference, CPI,
// RangeDopplerMap and DetectionReport.
type Message interface {
	Kind() string
	isMessage()
}

// Samples is a bare sample sequence with no metadata.
type Samples []complex128

func (Samples) Kind() string { return "samples" }
func (Samples) isMessage()   {}

// A Pulse is one pulse repetition interval of complex baseband samples.
type Pulse struct {
	Meta    Metadata
	Samples []complex128
}

func (*Pulse) Kind() string { return "pulse" }
func (*Pulse) isMessage()   {}

func (p *Pulse) Len() int { return len(p.Samples) }

// Reference carries the transmitted waveform used for matched filtering.
type Reference struct {
	Pulse
}

func (*Reference) Kind() string { return "reference" }
func (*Reference) isMessage()   {}

// AsPulse extracts a pulse from msg. Bare samples are promoted to a pulse
// with empty metadata.
func AsPulse(msg Message) (*Pulse, error) {
	switch m := msg.(type) {
	case *Pulse:
		if m == nil {
			break
		}
		if m.Meta == nil {
			return &Pulse{Meta: Metadata{}, Samples: m.Samples}, nil
		}
		return m, nil
	case *Reference:
		if m == nil {
			break
		}
		return AsPulse(&m.Pulse)
	case Samples:
		return &Pulse{Meta: Metadata{}, Samples: m}, nil
	}
	return nil, xerrors.Errorf("%s: expected pulse: %w", kindOf(msg), ErrMalformed)
}

func kindOf(msg Message) string {
	if msg == nil {
		return "nil"
	}
	return msg.Kind()
}

// CPI is a coherent processing interval: FastTime samples by Pulses
// pulses, stored column-major so each pulse is contiguous.
type CPI struct {
	Meta     Metadata
	FastTime int
	Pulses   int
	Data     []complex128
}

func (*CPI) Kind() string { return "cpi" }
func (*CPI) isMessage()   {}

func NewCPI(fastTime, pulses int) *CPI {
	return &CPI{
		Meta:     Metadata{},
		FastTime: fastTime,
		Pulses:   pulses,
		Data:     make([]complex128, fastTime*pulses),
	}
}

// At returns the sample at fast-time index i of pulse p.
func (c *CPI) At(i, p int) complex128 {
	return c.Data[p*c.FastTime+i]
}

// Column returns pulse p. The slice aliases Data.
func (c *CPI) Column(p int) []complex128 {
	return c.Data[p*c.FastTime : (p+1)*c.FastTime]
}

// RangeDopplerMap holds one complex value per range bin and Doppler bin,
// column-major: Data[d*RangeBins+r].
type RangeDopplerMap struct {
	Meta        Metadata
	RangeBins   int
	DopplerBins int
	Data        []complex128
}

func (*RangeDopplerMap) Kind() string { return "range-doppler" }
func (*RangeDopplerMap) isMessage()   {}

func NewRangeDopplerMap(rangeBins, dopplerBins int) *RangeDopplerMap {
	return &RangeDopplerMap{
		Meta:        Metadata{},
		RangeBins:   rangeBins,
		DopplerBins: dopplerBins,
		Data:        make([]complex128, rangeBins*dopplerBins),
	}
}

func (m *RangeDopplerMap) At(r, d int) complex128 {
	return m.Data[d*m.RangeBins+r]
}

// Power returns |x|^2 for every cell, in the same layout as Data.
func (m *RangeDopplerMap) Power() []float64 {
	power := make([]float64, len(m.Data))
	for idx, v := range m.Data {
		power[idx] = real(v)*real(v) + imag(v)*imag(v)
	}
	return power
}

// DetectionReport lists the cells of a range-Doppler map that exceeded
// their detection threshold. Indices are linear column-major cell
// indices in ascending order.
type DetectionReport struct {
	Meta        Metadata
	RangeBins   int
	DopplerBins int
	Indices     []int
	Count       int
}

func (*DetectionReport) Kind() string { return "detections" }
func (*DetectionReport) isMessage()   {}

// Cell decodes the i'th detection into its range and Doppler bin.
func (r *DetectionReport) Cell(i int) (rangeIdx, dopplerIdx int) {
	idx := r.Indices[i]
	return idx % r.RangeBins, idx / r.RangeBins
}

func (r *DetectionReport) String() string {
	return fmt.Sprintf("{Detections:%d RangeBins:%d DopplerBins:%d}", r.Count, r.RangeBins, r.DopplerBins)
}
