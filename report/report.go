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

// Package report converts detection reports to physical units and
// delivers them to consumers.
package report

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/radar"
)

// Detection is one detected cell in physical units.
type Detection struct {
	CPIID      string  `json:"-"`
	Time       float64 `json:"-"`
	RangeBin   int     `json:"range_bin"`
	DopplerBin int     `json:"doppler_bin"`
	Range      float64 `json:"range"`
	Doppler    float64 `json:"doppler"`
	Velocity   float64 `json:"velocity"`
}

func (d Detection) String() string {
	return fmt.Sprintf("{Range:%.1fm Doppler:%.1fHz Velocity:%.2fm/s Cell:(%d,%d)}",
		d.Range, d.Doppler, d.Velocity, d.RangeBin, d.DopplerBin)
}

// Record implements Recorder.
func (d Detection) Record() []string {
	return []string{
		d.CPIID,
		strconv.FormatFloat(d.Time, 'f', -1, 64),
		strconv.Itoa(d.RangeBin),
		strconv.Itoa(d.DopplerBin),
		strconv.FormatFloat(d.Range, 'f', 3, 64),
		strconv.FormatFloat(d.Doppler, 'f', 3, 64),
		strconv.FormatFloat(d.Velocity, 'f', 3, 64),
	}
}

// Frame holds the detections of one CPI.
type Frame struct {
	CPIID      string      `json:"cpi_id,omitempty"`
	Time       float64     `json:"time"`
	Count      int         `json:"count"`
	Detections []Detection `json:"detections"`
}

// Converter maps cell indices to range, Doppler frequency and radial
// velocity using the metadata of a report.
type Converter struct {
	Keys radar.Keys
}

// Convert requires the sample rate and PRF in r's metadata. The carrier
// frequency is optional; without it velocities are zero. Range accounts
// for any minimum range removed by the range limiter and for the lag
// offset of full length compression.
func (c Converter) Convert(r *radar.DetectionReport) (*Frame, error) {
	fs, err := r.Meta.RequireFloat(c.Keys.SampleRate)
	if err != nil {
		return nil, xerrors.Errorf("convert: %w", err)
	}
	prf, err := r.Meta.RequireFloat(c.Keys.PRF)
	if err != nil {
		return nil, xerrors.Errorf("convert: %w", err)
	}
	if r.DopplerBins <= 0 || r.RangeBins <= 0 {
		return nil, xerrors.Errorf("convert: %w: empty map", radar.ErrMalformed)
	}

	minRange, _ := r.Meta.Float(c.Keys.MinRange)
	lagOffset, _ := r.Meta.Int(c.Keys.LagOffset)
	fc, _ := r.Meta.Float(c.Keys.Frequency)

	f := &Frame{Count: r.Count, Detections: make([]Detection, 0, len(r.Indices))}
	f.CPIID, _ = r.Meta.String(c.Keys.CPIID)
	f.Time, _ = r.Meta.Float(c.Keys.Time)

	binRange := radar.SpeedOfLight / (2 * fs)
	binDoppler := prf / float64(r.DopplerBins)
	center := r.DopplerBins / 2

	for i := range r.Indices {
		rangeBin, dopplerBin := r.Cell(i)

		d := Detection{
			CPIID:      f.CPIID,
			Time:       f.Time,
			RangeBin:   rangeBin,
			DopplerBin: dopplerBin,
			Range:      minRange + float64(rangeBin-lagOffset)*binRange,
			Doppler:    float64(dopplerBin-center) * binDoppler,
		}
		if fc > 0 {
			d.Velocity = d.Doppler * radar.SpeedOfLight / (2 * fc)
		}
		f.Detections = append(f.Detections, d)
	}

	return f, nil
}

// A Sink consumes frames.
type Sink interface {
	Write(f *Frame) error
	Close() error
}

// Multi writes every frame to each of its sinks.
type Multi []Sink

// Write returns the first error encountered after offering f to all sinks.
func (m Multi) Write(f *Frame) (err error) {
	for _, s := range m {
		if serr := s.Write(f); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

func (m Multi) Close() (err error) {
	for _, s := range m {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Log writes frames to a logger at Info, one line per detection.
type Log struct {
	Log logrus.FieldLogger
}

func (l Log) Write(f *Frame) error {
	entry := l.Log.WithFields(logrus.Fields{"cpi": f.CPIID, "count": f.Count})
	if f.Count == 0 {
		entry.Debug("no detections")
		return nil
	}
	for _, d := range f.Detections {
		entry.Info(d)
	}
	return nil
}

func (Log) Close() error { return nil }
