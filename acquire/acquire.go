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

// Package acquire drives a radio's transmit and receive chains from a
// shared hardware clock and emits one received pulse per transmitted
// reference waveform.
package acquire

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/calib"
	"github.com/bemasher/pdradar/radar"
	"github.com/bemasher/pdradar/sdr"
	"github.com/bemasher/pdradar/stage"
)

var (
	ErrNoReference = xerrors.New("no reference waveform")
	ErrRunning     = xerrors.New("engine already running")
)

const (
	DefaultTimeout    = 100 * time.Millisecond
	DefaultStartDelay = 100 * time.Millisecond
)

type Config struct {
	Radio sdr.Config

	// StartDelay is added to the hardware clock when scheduling the first
	// transmit and receive. The first call of each loop also waits this
	// much longer than Timeout.
	StartDelay time.Duration
	Timeout    time.Duration

	// NumSamples is the length of each received pulse. Zero uses the
	// length of the reference waveform.
	NumSamples int

	// ReportInterval controls the periodic statistics log line. Zero
	// disables it.
	ReportInterval time.Duration

	Keys radar.Keys
	Log  logrus.FieldLogger

	// Registerer receives the engine's collectors. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
}

// refSnapshot is an immutable copy of the reference waveform shared by
// the transmit and receive loops.
type refSnapshot struct {
	gen     uint64
	samples []complex128
	meta    radar.Metadata
}

// Engine is the acquisition engine. The reference waveform may be replaced
// at any time, including while Run is transmitting.
type Engine struct {
	dev   sdr.Device
	cfg   Config
	store *calib.Store
	out   stage.Inbox
	log   logrus.FieldLogger

	metrics *metrics
	stats   counters

	gen      uint64
	ref      atomic.Value // *refSnapshot
	txMeta   atomic.Value // radar.Metadata
	finished int32
	running  int32
}

// New returns an engine for dev. Received pulses are posted to out. The
// calibration store may be nil, in which case no delay is applied.
func New(dev sdr.Device, cfg Config, store *calib.Store, out stage.Inbox) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StartDelay < 0 {
		cfg.StartDelay = 0
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if out == nil {
		out = stage.InboxFunc(func(radar.Message) bool { return true })
	}

	return &Engine{
		dev:     dev,
		cfg:     cfg,
		store:   store,
		out:     out,
		log:     cfg.Log.WithField("component", "acquire"),
		metrics: newMetrics(cfg.Registerer),
	}
}

// SetReference replaces the transmitted waveform. The transmit loop picks
// it up before its next send, so a pulse is never partially overwritten.
func (e *Engine) SetReference(p *radar.Pulse) {
	w := &refSnapshot{
		gen:     atomic.AddUint64(&e.gen, 1),
		samples: append([]complex128(nil), p.Samples...),
		meta:    p.Meta.Clone(),
	}
	e.ref.Store(w)
	e.log.WithFields(logrus.Fields{
		"generation": w.gen,
		"samples":    len(w.samples),
	}).Debug("reference updated")
}

func (e *Engine) reference() *refSnapshot {
	w, _ := e.ref.Load().(*refSnapshot)
	return w
}

// Stop asks both loops to finish. Run returns once they have.
func (e *Engine) Stop() {
	atomic.StoreInt32(&e.finished, 1)
}

func (e *Engine) isFinished() bool {
	return atomic.LoadInt32(&e.finished) != 0
}

// Stats returns the engine's counters.
func (e *Engine) Stats() Stats {
	return e.stats.snapshot()
}

// Run configures the device and streams until ctx is done, Stop is called
// or either loop fails. Devices without a transmit stream are run receive
// only. Run returns nil after a clean shutdown.
func (e *Engine) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&e.running, 0, 1) {
		return ErrRunning
	}
	defer atomic.StoreInt32(&e.running, 0)
	atomic.StoreInt32(&e.finished, 0)

	if err := e.dev.Configure(e.cfg.Radio); err != nil {
		return errors.Wrap(err, "acquire: configure")
	}

	tx, err := e.dev.TxStream()
	switch {
	case xerrors.Is(err, sdr.ErrNotSupported):
		e.log.Info("device cannot transmit, running receive only")
		tx = nil
	case err != nil:
		return errors.Wrap(err, "acquire: transmit stream")
	}

	rx, err := e.dev.RxStream()
	if err != nil {
		return errors.Wrap(err, "acquire: receive stream")
	}

	ref := e.reference()
	if tx != nil && ref == nil {
		return ErrNoReference
	}

	n := e.cfg.NumSamples
	if n <= 0 && ref != nil {
		n = len(ref.samples)
	}
	if n <= 0 {
		return xerrors.Errorf("acquire: %w: pulse length unknown", ErrNoReference)
	}

	start := e.dev.Now() + e.cfg.StartDelay
	e.log.WithFields(logrus.Fields{
		"start":       start,
		"num_samples": n,
		"sample_rate": e.cfg.Radio.SampleRate,
		"frequency":   e.cfg.Radio.Frequency,
	}).Info("starting acquisition")

	g, gctx := errgroup.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			e.Stop()
		case <-done:
		}
	}()

	if tx != nil {
		g.Go(func() error { return e.transmit(tx, start) })
	}
	g.Go(func() error { return e.receive(rx, start, n) })

	if e.cfg.ReportInterval > 0 {
		go e.report(done)
	}

	err = g.Wait()
	close(done)

	e.log.WithFields(e.stats.snapshot().Fields()).Info("acquisition finished")
	return err
}

// transmit sends the reference waveform as one continuous burst. Only the
// first send is timed.
func (e *Engine) transmit(tx sdr.TxStream, start time.Duration) error {
	md := sdr.TxMetadata{HasTime: true, Time: start, StartOfBurst: true}
	timeout := e.cfg.Timeout + e.cfg.StartDelay

	var gen uint64
	for !e.isFinished() {
		w := e.reference()
		if w.gen != gen {
			gen = w.gen
			e.txMeta.Store(w.meta)
		}

		for sent := 0; sent < len(w.samples) && !e.isFinished(); {
			n, err := tx.Send(w.samples[sent:], md, timeout)
			if xerrors.Is(err, sdr.ErrTimeout) {
				e.stats.txTimeouts.add(1)
				e.metrics.txTimeouts.Inc()
				continue
			}
			if err != nil {
				e.Stop()
				return errors.Wrap(err, "acquire: transmit")
			}

			sent += n
			e.stats.txSamples.add(int64(n))
			e.metrics.txSamples.Add(float64(n))

			md = sdr.TxMetadata{}
			timeout = e.cfg.Timeout
		}
	}

	if _, err := tx.Send(nil, sdr.TxMetadata{EndOfBurst: true}, e.cfg.Timeout); err != nil {
		return errors.Wrap(err, "acquire: end of burst")
	}
	return nil
}

// receive reads fixed length pulses starting at start, shifted by the
// calibrated loopback delay of the radio.
func (e *Engine) receive(rx sdr.RxStream, start time.Duration, n int) error {
	fs := e.cfg.Radio.SampleRate
	info := e.dev.Info()

	delay := 0
	if e.store != nil {
		var ok bool
		delay, ok = e.store.Lookup(info.Radio, info.MasterClockRate, fs)
		if !ok {
			e.log.WithField("radio", info).Warn("no delay calibration for this configuration")
		}
	}

	// Positive delays are skipped after streaming starts, negative delays
	// start streaming early.
	cmdTime, skip := start, delay
	if delay < 0 {
		cmdTime -= sdr.SamplesToTime(int64(-delay), fs)
		skip = 0
	}

	if err := rx.Issue(sdr.StreamCommand{Mode: sdr.StartContinuous, Time: cmdTime}); err != nil {
		e.Stop()
		return errors.Wrap(err, "acquire: start streaming")
	}
	e.log.WithFields(logrus.Fields{"delay": delay, "time": cmdTime}).Debug("streaming")

	r := &reader{rx: rx, timeout: e.cfg.Timeout + e.cfg.StartDelay, engine: e}

	discard := make([]complex128, 4096)
	for skip > 0 && !e.isFinished() {
		chunk := discard
		if skip < len(chunk) {
			chunk = chunk[:skip]
		}
		got, _, err := r.fill(chunk)
		if err != nil {
			e.Stop()
			return err
		}
		skip -= got
	}

	var index int
	for !e.isFinished() {
		samples := make([]complex128, n)
		got, md, err := r.fill(samples)
		if err != nil {
			e.Stop()
			return err
		}
		if got < n {
			break
		}

		meta := radar.Metadata{}
		if m, ok := e.txMeta.Load().(radar.Metadata); ok {
			meta.Merge(m)
		} else if w := e.reference(); w != nil {
			meta.Merge(w.meta)
		}
		meta[e.cfg.Keys.SampleRate] = fs
		meta[e.cfg.Keys.Frequency] = e.cfg.Radio.Frequency
		meta[e.cfg.Keys.Time] = md.Time.Seconds()
		meta[e.cfg.Keys.PulseIndex] = index
		meta[e.cfg.Keys.StartOfBurst] = index == 0
		index++

		e.stats.pulses.add(1)
		e.metrics.pulses.Inc()
		if !e.out.Post(&radar.Pulse{Meta: meta, Samples: samples}) {
			e.stats.dropped.add(1)
			e.metrics.dropped.Inc()
		}
	}

	return e.drain(rx)
}

// drain stops streaming and reads until the radio reports the end of the
// burst or a bounded read times out.
func (e *Engine) drain(rx sdr.RxStream) error {
	if err := rx.Issue(sdr.StreamCommand{Mode: sdr.StopContinuous}); err != nil {
		return errors.Wrap(err, "acquire: stop streaming")
	}

	buf := make([]complex128, 4096)
	for {
		_, md, err := rx.Recv(buf, e.cfg.Timeout)
		if xerrors.Is(err, sdr.ErrTimeout) {
			e.log.Warn("timed out draining receive stream")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "acquire: drain")
		}
		if md.EndOfBurst {
			return nil
		}
	}
}

// reader fills buffers from a receive stream, counting timeouts.
type reader struct {
	rx      sdr.RxStream
	timeout time.Duration
	engine  *Engine
}

// fill reads until buf is full or the engine is stopped, returning the
// metadata of the first read.
func (r *reader) fill(buf []complex128) (int, sdr.RxMetadata, error) {
	e := r.engine

	var (
		got   int
		first sdr.RxMetadata
	)
	for got < len(buf) && !e.isFinished() {
		n, md, err := r.rx.Recv(buf[got:], r.timeout)
		if xerrors.Is(err, sdr.ErrTimeout) {
			e.stats.rxTimeouts.add(1)
			e.metrics.rxTimeouts.Inc()
			r.timeout = e.cfg.Timeout
			continue
		}
		if err != nil {
			return got, first, errors.Wrap(err, "acquire: receive")
		}

		if got == 0 {
			first = md
		}
		got += n
		r.timeout = e.cfg.Timeout

		e.stats.rxSamples.add(int64(n))
		e.metrics.rxSamples.Add(float64(n))
	}
	return got, first, nil
}

func (e *Engine) report(done <-chan struct{}) {
	tick := time.NewTicker(e.cfg.ReportInterval)
	defer tick.Stop()

	for {
		select {
		case <-done:
			return
		case <-tick.C:
			e.log.WithFields(e.stats.snapshot().Fields()).Info("acquisition statistics")
		}
	}
}

type counter struct {
	n int64
}

func (c *counter) add(n int64) { atomic.AddInt64(&c.n, n) }

func (c *counter) load() int64 { return atomic.LoadInt64(&c.n) }
