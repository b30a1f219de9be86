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

// Package pipeline assembles the processing chain that turns received
// pulses into published detections:
//
//	[limit] -> accumulate -> compress -> doppler -> detect -> publish
//
// Each stage runs on its own stage.Runner. Compression and Doppler
// processing may be combined into a single stage.
package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bemasher/pdradar/cfar"
	"github.com/bemasher/pdradar/compress"
	"github.com/bemasher/pdradar/cpi"
	"github.com/bemasher/pdradar/doppler"
	"github.com/bemasher/pdradar/fft"
	"github.com/bemasher/pdradar/radar"
	"github.com/bemasher/pdradar/rangelimit"
	"github.com/bemasher/pdradar/report"
	"github.com/bemasher/pdradar/stage"
)

const DefaultDepth = 16

type Config struct {
	// Backend defaults to gonum.
	Backend fft.Backend
	Keys    radar.Keys
	Mode    compress.Mode

	Pulses      int
	DopplerSize int
	CFAR        cfar.Config

	// Range enables the range limiter ahead of accumulation.
	Range *rangelimit.Config

	// Combined runs compression and Doppler processing in one stage.
	Combined bool

	// Depth is the queue depth of every input port.
	Depth int

	// Sink defaults to logging detections.
	Sink report.Sink

	Log     logrus.FieldLogger
	Metrics *stage.Metrics
}

type Pipeline struct {
	runners []*stage.Runner
	input   stage.Inbox
	ref     stage.Inbox
	last    *stage.Runner
}

// Build constructs every stage and connects them. Configuration errors of
// any stage are returned before anything runs.
func Build(cfg Config) (*Pipeline, error) {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = stage.NewMetrics(nil)
	}
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultDepth
	}
	if cfg.Sink == nil {
		cfg.Sink = report.Log{Log: cfg.Log.WithField("sink", "log")}
	}
	if cfg.Backend == nil {
		backend, err := fft.New("gonum")
		if err != nil {
			return nil, err
		}
		cfg.Backend = backend
	}

	p := &Pipeline{}
	runner := func(name string, h stage.Handler, ports ...string) *stage.Runner {
		r := stage.NewRunner(stage.Config{
			Name:    name,
			Depth:   cfg.Depth,
			Ports:   ports,
			Log:     cfg.Log,
			Metrics: cfg.Metrics,
		}, h)
		if p.last != nil {
			p.last.Connect(r)
		} else {
			p.input = r.Port(stage.DefaultPort)
		}
		p.runners = append(p.runners, r)
		p.last = r
		return r
	}

	if cfg.Range != nil {
		l, err := rangelimit.New(*cfg.Range, cfg.Keys)
		if err != nil {
			return nil, err
		}
		runner("limit", Limit{l})
	}

	acc, err := cpi.New(cfg.Pulses, cfg.Keys)
	if err != nil {
		return nil, err
	}
	runner("accumulate", Accumulate{acc})

	proc, err := doppler.New(cfg.Backend, cfg.DopplerSize, cfg.Keys, cfg.Log)
	if err != nil {
		return nil, err
	}
	comp := Compress{
		Compressor: compress.New(cfg.Backend, cfg.Mode, cfg.Keys, cfg.Log),
		Log:        cfg.Log.WithField("stage", "compress"),
	}

	if cfg.Combined {
		r := runner("pulse-doppler", PulseDoppler{comp, proc}, ReferencePort, stage.DefaultPort)
		p.ref = r.Port(ReferencePort)
	} else {
		r := runner("compress", comp, ReferencePort, stage.DefaultPort)
		p.ref = r.Port(ReferencePort)
		runner("doppler", Doppler{proc})
	}

	det, err := cfar.New(cfg.CFAR)
	if err != nil {
		return nil, err
	}
	runner("detect", Detect{det})

	runner("publish", Publish{
		Converter: report.Converter{Keys: cfg.Keys},
		Sink:      cfg.Sink,
		Log:       cfg.Log.WithField("stage", "publish"),
	})

	return p, nil
}

// Input accepts received pulses.
func (p *Pipeline) Input() stage.Inbox { return p.input }

// SetReference queues a new reference waveform for pulse compression.
func (p *Pipeline) SetReference(ref *radar.Pulse) bool {
	return p.ref.Post(&radar.Reference{Pulse: *ref})
}

// Connect forwards every published detection report to dst.
func (p *Pipeline) Connect(dst stage.Inbox) {
	p.last.Connect(dst)
}

// Stages returns the names of the stages in processing order.
func (p *Pipeline) Stages() (names []string) {
	for _, r := range p.runners {
		names = append(names, r.Name())
	}
	return names
}

// Run runs every stage until ctx is done or a stage fails. The first
// failure stops the remaining stages and is returned.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range p.runners {
		r := r
		g.Go(func() error { return r.Run(gctx) })
	}
	return g.Wait()
}
