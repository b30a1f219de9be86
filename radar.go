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

package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/acquire"
	"github.com/bemasher/pdradar/calib"
	"github.com/bemasher/pdradar/compress"
	"github.com/bemasher/pdradar/fft"
	"github.com/bemasher/pdradar/pipeline"
	"github.com/bemasher/pdradar/radar"
	"github.com/bemasher/pdradar/rangelimit"
	"github.com/bemasher/pdradar/report"
	"github.com/bemasher/pdradar/sdr"
	"github.com/bemasher/pdradar/sdr/rtltcp"
	"github.com/bemasher/pdradar/sdr/sim"
	"github.com/bemasher/pdradar/stage"
	"github.com/bemasher/pdradar/waveform"
)

// Radar ties a radio to the processing pipeline.
type Radar struct {
	cfg Config
	log logrus.FieldLogger
	reg *prometheus.Registry

	dev     sdr.Device
	store   *calib.Store
	backend fft.Backend
	ref     *radar.Pulse

	sinks  report.Multi
	hub    *report.Hub
	pipe   *pipeline.Pipeline
	engine *acquire.Engine
}

func openDevice(cfg Config, log logrus.FieldLogger) (sdr.Device, error) {
	switch *device {
	case "sim":
		return sim.New(sim.Config{
			HardwareDelay: cfg.Sim.HardwareDelay,
			Targets:       simTargets(cfg.Sim),
			Noise:         cfg.Sim.Noise,
			Seed:          cfg.Sim.Seed,
		}, log), nil
	case "rtltcp":
		dev, err := rtltcp.Dial(*serverAddr, log)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
	return nil, xerrors.Errorf("unknown device %q", *device)
}

// NewRadar opens the radio, calibration table and sinks and builds the
// pipeline. Close releases everything NewRadar opened.
func NewRadar(cfg Config, log logrus.FieldLogger) (r *Radar, err error) {
	r = &Radar{cfg: cfg, log: log, reg: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	keys := radar.DefaultKeys()
	if r.ref, err = makeWaveform(cfg, keys); err != nil {
		return r, xerrors.Errorf("waveform: %w", err)
	}
	if r.backend, err = fft.New(cfg.Compress.Backend); err != nil {
		return r, err
	}
	if r.store, err = calib.Load(*calibFilename); err != nil {
		return r, err
	}
	if r.dev, err = openDevice(cfg, log); err != nil {
		return r, err
	}

	info := r.dev.Info()
	log.WithFields(logrus.Fields{
		"radio":       info.Radio,
		"mcr":         info.MasterClockRate,
		"sample_rate": cfg.Radar.SampleRate,
		"frequency":   cfg.Radar.Frequency,
		"prf":         cfg.Radar.PRF,
		"waveform":    cfg.Waveform.Type,
		"pulse":       r.ref.Len(),
	}).Info("radio")

	if *calibrate {
		return r, nil
	}

	if r.sinks, r.hub, err = openSinks(cfg, log); err != nil {
		return r, err
	}

	mode := compress.Aligned
	if cfg.Compress.Full {
		mode = compress.Full
	}

	var limits *rangelimit.Config
	if cfg.Range.Enabled {
		limits = &cfg.Range.Config
	}

	r.pipe, err = pipeline.Build(pipeline.Config{
		Backend:     r.backend,
		Keys:        keys,
		Mode:        mode,
		Pulses:      cfg.CPI.Pulses,
		DopplerSize: cfg.Doppler.Size,
		CFAR:        cfg.CFAR,
		Range:       limits,
		Combined:    cfg.Doppler.Combined,
		Depth:       cfg.Report.Depth,
		Sink:        r.sinks,
		Log:         log,
		Metrics:     stage.NewMetrics(r.reg),
	})
	if err != nil {
		return r, err
	}
	r.pipe.SetReference(waveform.Generator{Keys: keys}.Unpadded(r.ref))

	r.engine = acquire.New(r.dev, r.acquireConfig(keys), r.store, r.pipe.Input())
	r.engine.SetReference(r.ref)

	return r, nil
}

func (r *Radar) acquireConfig(keys radar.Keys) acquire.Config {
	return acquire.Config{
		Radio: sdr.Config{
			SampleRate: r.cfg.Radar.SampleRate,
			Frequency:  r.cfg.Radar.Frequency,
			TxGain:     r.cfg.Radar.TxGain,
			RxGain:     r.cfg.Radar.RxGain,
		},
		StartDelay:     r.cfg.Radar.StartDelay,
		Timeout:        r.cfg.Radar.Timeout,
		ReportInterval: 10 * time.Second,
		Keys:           keys,
		Log:            r.log,
		Registerer:     r.reg,
	}
}

// serve exposes metrics, pprof and the detection websocket on addr until
// ctx is done.
func (r *Radar) serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	if r.hub != nil {
		mux.Handle("/detections", r.hub)
	}

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.log.WithError(err).Warn("metrics server")
		}
	}()
}

// Run streams until interrupted, the time limit expires or either the
// engine or pipeline fails.
func (r *Radar) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal channel for interruption.
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigint)

	// Setup time limit channel
	tLimit := make(<-chan time.Time, 1)
	if *timeLimit != 0 {
		tLimit = time.After(*timeLimit)
	}

	if *metricsAddr != "" {
		r.serve(ctx, *metricsAddr)
	}

	if *calibrate {
		return r.calibrate(ctx, sigint, tLimit)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pipe.Run(gctx)
	})
	g.Go(func() error {
		// The pipeline keeps running until the engine returns.
		defer cancel()
		return r.engine.Run(gctx)
	})

	go func() {
		select {
		case <-sigint:
			r.log.Info("interrupted")
		case <-tLimit:
			r.log.WithField("elapsed", time.Since(start)).Info("time limit reached")
		case <-gctx.Done():
		}
		r.engine.Stop()
	}()

	err := g.Wait()
	r.log.WithFields(r.engine.Stats().Fields()).Info("stopped")

	return err
}

func (r *Radar) calibrate(ctx context.Context, sigint <-chan os.Signal, tLimit <-chan time.Time) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-sigint:
		case <-tLimit:
		case <-ctx.Done():
		}
		cancel()
	}()

	_, err := acquire.Calibrate(ctx, r.dev, r.store, r.backend, r.ref, r.acquireConfig(radar.DefaultKeys()))
	return err
}

// Close saves the calibration table and releases the radio and sinks.
func (r *Radar) Close() error {
	var errs []error
	if r.store != nil {
		if err := r.store.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.sinks != nil {
		if err := r.sinks.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.dev != nil {
		if err := r.dev.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) != 0 {
		return xerrors.Errorf("close: %v", errs)
	}
	return nil
}
