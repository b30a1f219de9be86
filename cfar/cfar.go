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

// Package cfar implements a two dimensional cell averaging constant false
// alarm rate detector over range-Doppler power maps.
package cfar

import (
	"math"
	"runtime"
	"sync"

	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/radar"
)

var ErrInvalidConfig = xerrors.New("invalid cfar configuration")

// Config sets the window half-widths in cells. Training cells extend Train
// cells beyond the guard region on each side of the cell under test.
type Config struct {
	GuardRange   int     `mapstructure:"guard_range"`
	GuardDoppler int     `mapstructure:"guard_doppler"`
	TrainRange   int     `mapstructure:"train_range"`
	TrainDoppler int     `mapstructure:"train_doppler"`
	Pfa          float64 `mapstructure:"pfa"`

	// NoiseFloor bounds the training average from below. Zero disables it.
	NoiseFloor float64 `mapstructure:"noise_floor"`
}

func (cfg Config) outer() (r, d int) {
	return cfg.GuardRange + cfg.TrainRange, cfg.GuardDoppler + cfg.TrainDoppler
}

// NumTrain returns the number of training cells in the window.
func (cfg Config) NumTrain() int {
	or, od := cfg.outer()
	outer := (2*or + 1) * (2*od + 1)
	inner := (2*cfg.GuardRange + 1) * (2*cfg.GuardDoppler + 1)
	return outer - inner
}

func (cfg Config) Validate() error {
	switch {
	case cfg.Pfa <= 0 || cfg.Pfa >= 1:
		return xerrors.Errorf("pfa %g outside (0, 1): %w", cfg.Pfa, ErrInvalidConfig)
	case cfg.GuardRange < 0 || cfg.GuardDoppler < 0:
		return xerrors.Errorf("negative guard width: %w", ErrInvalidConfig)
	case cfg.TrainRange < 0 || cfg.TrainDoppler < 0:
		return xerrors.Errorf("negative training width: %w", ErrInvalidConfig)
	case cfg.NumTrain() == 0:
		return xerrors.Errorf("window has no training cells: %w", ErrInvalidConfig)
	case cfg.NoiseFloor < 0:
		return xerrors.Errorf("negative noise floor: %w", ErrInvalidConfig)
	}
	return nil
}

// Detector is immutable after construction and safe for concurrent use.
type Detector struct {
	cfg     Config
	alpha   float64
	workers int
}

func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := float64(cfg.NumTrain())
	return &Detector{
		cfg:     cfg,
		alpha:   n * (math.Pow(cfg.Pfa, -1/n) - 1),
		workers: runtime.GOMAXPROCS(0),
	}, nil
}

func (d *Detector) Config() Config { return d.cfg }

// Alpha returns the threshold scale N*(Pfa^(-1/N) - 1).
func (d *Detector) Alpha() float64 { return d.alpha }

// DetectMap runs the detector on |x|^2 of a range-Doppler map. The report
// carries a copy of the map's metadata.
func (d *Detector) DetectMap(m *radar.RangeDopplerMap) *radar.DetectionReport {
	report := d.Detect(m.Power(), m.RangeBins, m.DopplerBins)
	report.Meta = m.Meta.Clone()
	return report
}

// Detect flags every cell of a column-major power map whose power exceeds
// alpha times the mean of its training cells. Cells whose window does not
// fit inside the map are never flagged. Indices are returned in ascending
// order.
func (d *Detector) Detect(power []float64, rows, cols int) *radar.DetectionReport {
	report := &radar.DetectionReport{Meta: radar.Metadata{}, RangeBins: rows, DopplerBins: cols}

	or, od := d.cfg.outer()
	if rows < 2*or+1 || cols < 2*od+1 || len(power) != rows*cols {
		return report
	}

	// Columns are split into contiguous spans so concatenating the spans in
	// order keeps indices ascending.
	first, last := od, cols-od
	workers := d.workers
	if span := last - first; workers > span {
		workers = span
	}

	spans := make([][]int, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := first + (last-first)*w/workers
		hi := first + (last-first)*(w+1)/workers

		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			for col := lo; col < hi; col++ {
				for row := or; row < rows-or; row++ {
					if d.test(power, rows, row, col) {
						spans[w] = append(spans[w], col*rows+row)
					}
				}
			}
		}(w, lo, hi)
	}
	wg.Wait()

	for _, span := range spans {
		report.Indices = append(report.Indices, span...)
	}
	report.Count = len(report.Indices)

	return report
}

// test compares a cell against the mean of its training window, summed
// cell by cell.
func (d *Detector) test(power []float64, rows, row, col int) bool {
	or, od := d.cfg.outer()
	gr, gd := d.cfg.GuardRange, d.cfg.GuardDoppler

	var sum float64
	for c := col - od; c <= col+od; c++ {
		guardCol := c >= col-gd && c <= col+gd
		for r := row - or; r <= row+or; r++ {
			if guardCol && r >= row-gr && r <= row+gr {
				continue
			}
			sum += power[c*rows+r]
		}
	}

	avg := sum / float64(d.cfg.NumTrain())
	if avg < d.cfg.NoiseFloor {
		avg = d.cfg.NoiseFloor
	}

	return power[col*rows+row] > d.alpha*avg
}
