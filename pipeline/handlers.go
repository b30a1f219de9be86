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

package pipeline

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/cfar"
	"github.com/bemasher/pdradar/compress"
	"github.com/bemasher/pdradar/cpi"
	"github.com/bemasher/pdradar/doppler"
	"github.com/bemasher/pdradar/radar"
	"github.com/bemasher/pdradar/rangelimit"
	"github.com/bemasher/pdradar/report"
)

// ReferencePort receives reference waveforms on stages that compress.
const ReferencePort = "reference"

func unexpected(port string, msg radar.Message) error {
	kind := "nil"
	if msg != nil {
		kind = msg.Kind()
	}
	return xerrors.Errorf("unexpected %s on port %q: %w", kind, port, radar.ErrMalformed)
}

// Limit trims pulses to a range window.
type Limit struct {
	Limiter *rangelimit.Limiter
}

func (h Limit) Handle(port string, msg radar.Message) (radar.Message, error) {
	p, err := radar.AsPulse(msg)
	if err != nil {
		return nil, err
	}

	out, err := h.Limiter.Limit(p)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Accumulate collects pulses into CPIs.
type Accumulate struct {
	Accumulator *cpi.Accumulator
}

func (h Accumulate) Handle(port string, msg radar.Message) (radar.Message, error) {
	p, err := radar.AsPulse(msg)
	if err != nil {
		return nil, err
	}

	c, err := h.Accumulator.Accumulate(p)
	if err != nil || c == nil {
		return nil, err
	}
	return c, nil
}

// Compress matched filters pulses or CPIs against the reference received
// on ReferencePort. Until a reference arrives nothing is published.
type Compress struct {
	Compressor *compress.Compressor
	Log        logrus.FieldLogger
}

func (h Compress) Handle(port string, msg radar.Message) (radar.Message, error) {
	if port == ReferencePort {
		return nil, setReference(h.Compressor, h.Log, port, msg)
	}

	var (
		out radar.Message
		err error
	)
	switch m := msg.(type) {
	case *radar.CPI:
		var c *radar.CPI
		if c, err = h.Compressor.CompressCPI(m); c != nil {
			out = c
		}
	default:
		p, perr := radar.AsPulse(msg)
		if perr != nil {
			return nil, perr
		}
		var c *radar.Pulse
		if c, err = h.Compressor.Compress(p); c != nil {
			out = c
		}
	}

	if xerrors.Is(err, compress.ErrNoReference) {
		h.Log.Debug("no reference, discarding input")
		return nil, nil
	}
	return out, err
}

func setReference(c *compress.Compressor, log logrus.FieldLogger, port string, msg radar.Message) error {
	p, err := radar.AsPulse(msg)
	if err != nil {
		return unexpected(port, msg)
	}

	c.SetReference(p.Samples)
	log.WithField("samples", len(p.Samples)).Debug("reference updated")
	return nil
}

// Doppler transforms CPIs into range-Doppler maps.
type Doppler struct {
	Processor *doppler.Processor
}

func (h Doppler) Handle(port string, msg radar.Message) (radar.Message, error) {
	c, ok := msg.(*radar.CPI)
	if !ok {
		return nil, unexpected(port, msg)
	}

	m, err := h.Processor.Process(c)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// PulseDoppler compresses a CPI and transforms it into a range-Doppler map
// in one stage.
type PulseDoppler struct {
	Compress
	Processor *doppler.Processor
}

func (h PulseDoppler) Handle(port string, msg radar.Message) (radar.Message, error) {
	if port == ReferencePort {
		return h.Compress.Handle(port, msg)
	}

	c, ok := msg.(*radar.CPI)
	if !ok {
		return nil, unexpected(port, msg)
	}

	out, err := h.Compress.Handle(port, c)
	if err != nil || out == nil {
		return nil, err
	}
	return Doppler{h.Processor}.Handle(port, out)
}

// Detect runs CFAR over range-Doppler maps.
type Detect struct {
	Detector *cfar.Detector
}

func (h Detect) Handle(port string, msg radar.Message) (radar.Message, error) {
	m, ok := msg.(*radar.RangeDopplerMap)
	if !ok {
		return nil, unexpected(port, msg)
	}
	return h.Detector.DetectMap(m), nil
}

// Publish converts detection reports and writes them to a sink. Sink
// failures are logged and do not stop the pipeline.
type Publish struct {
	Converter report.Converter
	Sink      report.Sink
	Log       logrus.FieldLogger
}

func (h Publish) Handle(port string, msg radar.Message) (radar.Message, error) {
	r, ok := msg.(*radar.DetectionReport)
	if !ok {
		return nil, unexpected(port, msg)
	}

	f, err := h.Converter.Convert(r)
	if err != nil {
		return nil, err
	}

	if err := h.Sink.Write(f); err != nil {
		h.Log.Warnf("publish: %v", err)
	}
	return r, nil
}
