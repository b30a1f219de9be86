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

// Package sim implements a sample accurate loopback radio. Transmitted
// bursts are placed on a shared sample timeline and the receive stream
// returns echoes of that timeline from configurable point targets.
package sim

import (
	"math"
	"math/cmplx"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/sdr"
)

var ErrClosed = xerrors.New("device closed")

// Target is a point scatterer. Delay is in samples and adds to the
// hardware delay of the device.
type Target struct {
	Delay     int
	Doppler   float64
	Amplitude complex128
}

type Config struct {
	Info sdr.Info

	// HardwareDelay is the loopback latency of the radio in samples, the
	// quantity delay calibration measures.
	HardwareDelay int

	// Targets defaults to a single unit amplitude target at zero delay.
	Targets []Target

	// Noise is the standard deviation of each component of the additive
	// complex Gaussian noise.
	Noise float64
	Seed  int64

	// Lead bounds how many samples the transmit timeline may run ahead of
	// the hardware clock before Send blocks.
	Lead int
}

// Device is safe for concurrent use by one transmit and one receive
// goroutine.
type Device struct {
	cfg   Config
	epoch time.Time
	log   logrus.FieldLogger

	minDelay, maxDelay int

	mu      sync.Mutex
	radio   sdr.Config
	changed chan struct{}
	closed  bool

	// Transmit timeline: txBuf holds samples [txStart, txEnd).
	txStarted bool
	txDone    bool
	txStart   int64
	txEnd     int64
	txBuf     []complex128

	rxStreaming bool
	rxCursor    int64

	rx *rxStream
	tx *txStream
}

func New(cfg Config, log logrus.FieldLogger) *Device {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Info.Radio == "" {
		cfg.Info.Radio = "sim"
	}
	if cfg.Info.MasterClockRate == 0 {
		cfg.Info.MasterClockRate = 100e6
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = []Target{{Amplitude: 1}}
	}
	if cfg.Lead <= 0 {
		cfg.Lead = 1 << 18
	}

	d := &Device{
		cfg:      cfg,
		epoch:    time.Now(),
		log:      log.WithField("device", cfg.Info.Radio),
		changed:  make(chan struct{}),
		minDelay: math.MaxInt32,
	}
	for _, t := range cfg.Targets {
		delay := cfg.HardwareDelay + t.Delay
		if delay < d.minDelay {
			d.minDelay = delay
		}
		if delay > d.maxDelay {
			d.maxDelay = delay
		}
	}

	d.rx = &rxStream{dev: d, rng: rand.New(rand.NewSource(cfg.Seed))}
	d.tx = &txStream{dev: d}

	return d
}

func (d *Device) Now() time.Duration {
	return time.Since(d.epoch)
}

func (d *Device) Info() sdr.Info {
	return d.cfg.Info
}

func (d *Device) Configure(cfg sdr.Config) error {
	if cfg.SampleRate <= 0 {
		return xerrors.Errorf("sim: invalid sample rate %g", cfg.SampleRate)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.radio = cfg
	d.log.WithFields(logrus.Fields{
		"sample_rate": cfg.SampleRate,
		"frequency":   cfg.Frequency,
	}).Debug("configured")

	return nil
}

func (d *Device) TxStream() (sdr.TxStream, error) {
	return d.tx, nil
}

func (d *Device) RxStream() (sdr.RxStream, error) {
	return d.rx, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.closed = true
		d.notify()
	}
	return nil
}

// notify wakes every goroutine blocked in wait. Callers hold mu.
func (d *Device) notify() {
	close(d.changed)
	d.changed = make(chan struct{})
}

// wait releases mu until the timeline changes or the deadline passes and
// reports whether it was woken before the deadline. Callers hold mu.
func (d *Device) wait(deadline time.Time) bool {
	ch := d.changed
	d.mu.Unlock()
	defer d.mu.Lock()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

// txAt returns the transmitted sample at index idx. Samples outside the
// recorded timeline are zero. Callers hold mu.
func (d *Device) txAt(idx int64) complex128 {
	if !d.txStarted || idx < d.txStart || idx >= d.txEnd {
		return 0
	}
	return d.txBuf[idx-d.txStart]
}

func (d *Device) index(t time.Duration) int64 {
	return sdr.TimeToSamples(t, d.radio.SampleRate)
}

// trim discards transmitted samples no receive sample can reference.
// Callers hold mu.
func (d *Device) trim() {
	keep := d.index(d.Now()) - int64(d.cfg.Lead) - int64(d.maxDelay)
	if d.rxStreaming {
		keep = d.rxCursor - int64(d.maxDelay)
	}
	if keep <= d.txStart {
		return
	}

	n := keep - d.txStart
	if n > int64(len(d.txBuf)) {
		n = int64(len(d.txBuf))
	}
	d.txBuf = append(d.txBuf[:0], d.txBuf[n:]...)
	d.txStart += n
}

type txStream struct {
	dev *Device
}

func (s *txStream) Send(buf []complex128, md sdr.TxMetadata, timeout time.Duration) (int, error) {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	if d.radio.SampleRate <= 0 {
		return 0, xerrors.New("sim: send before configure")
	}

	if md.HasTime {
		idx := d.index(md.Time)
		switch {
		case !d.txStarted:
			d.txStarted = true
			d.txStart, d.txEnd = idx, idx
		case idx > d.txEnd:
			d.txBuf = append(d.txBuf, make([]complex128, idx-d.txEnd)...)
			d.txEnd = idx
		case idx < d.txEnd:
			d.log.WithField("late", d.txEnd-idx).Warn("late transmit, sending immediately")
		}
	} else if !d.txStarted {
		d.txStarted = true
		idx := d.index(d.Now())
		d.txStart, d.txEnd = idx, idx
	}
	d.txDone = false

	// Block while the timeline is more than Lead samples ahead of the
	// hardware clock, as a radio does once its transmit buffers fill.
	lead := int64(d.cfg.Lead)
	deadline := time.Now().Add(timeout)
	for ahead := d.txEnd - d.index(d.Now()) - lead; len(buf) > 0 && ahead > 0; ahead = d.txEnd - d.index(d.Now()) - lead {
		if !time.Now().Before(deadline) {
			return 0, sdr.ErrTimeout
		}

		wake := time.Now().Add(sdr.SamplesToTime(ahead, d.radio.SampleRate))
		if wake.After(deadline) {
			wake = deadline
		}
		d.wait(wake)

		if d.closed {
			return 0, ErrClosed
		}
	}

	d.txBuf = append(d.txBuf, buf...)
	d.txEnd += int64(len(buf))
	d.txDone = md.EndOfBurst
	d.trim()
	d.notify()

	return len(buf), nil
}

type rxStream struct {
	dev *Device
	rng *rand.Rand

	remaining int
	stop      bool
}

func (s *rxStream) Issue(cmd sdr.StreamCommand) error {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.radio.SampleRate <= 0 {
		return xerrors.New("sim: stream command before configure")
	}

	switch cmd.Mode {
	case sdr.StartContinuous, sdr.NumSamplesAndDone:
		t := cmd.Time
		if cmd.Now {
			t = d.Now()
		}
		d.rxCursor = sdr.TimeToSamples(t, d.radio.SampleRate)
		d.rxStreaming = true
		s.stop = false
		s.remaining = -1
		if cmd.Mode == sdr.NumSamplesAndDone {
			s.remaining = cmd.NumSamples
		}
	case sdr.StopContinuous:
		s.stop = d.rxStreaming
	default:
		return xerrors.Errorf("sim: unsupported stream mode %s", cmd.Mode)
	}
	d.notify()

	return nil
}

// available returns how many samples starting at the receive cursor depend
// only on transmitted samples already known. Callers hold mu.
func (s *rxStream) available() int64 {
	d := s.dev
	if !d.txStarted {
		return 0
	}
	if d.txDone {
		return math.MaxInt32
	}
	return d.txEnd + int64(d.minDelay) - d.rxCursor
}

func (s *rxStream) Recv(buf []complex128, timeout time.Duration) (int, sdr.RxMetadata, error) {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, sdr.RxMetadata{}, ErrClosed
	}

	if s.stop {
		s.stop = false
		d.rxStreaming = false
		d.notify()
		return 0, sdr.RxMetadata{Time: sdr.SamplesToTime(d.rxCursor, d.radio.SampleRate), EndOfBurst: true}, nil
	}

	n := int64(len(buf))
	if s.remaining >= 0 && int64(s.remaining) < n {
		n = int64(s.remaining)
	}

	deadline := time.Now().Add(timeout)
	for !d.rxStreaming || s.available() < n {
		if !d.wait(deadline) {
			break
		}
		if d.closed {
			return 0, sdr.RxMetadata{}, ErrClosed
		}
	}

	if !d.rxStreaming {
		return 0, sdr.RxMetadata{}, sdr.ErrTimeout
	}
	if avail := s.available(); avail < n {
		n = avail
	}
	if n <= 0 {
		return 0, sdr.RxMetadata{}, sdr.ErrTimeout
	}

	md := sdr.RxMetadata{Time: sdr.SamplesToTime(d.rxCursor, d.radio.SampleRate)}
	for i := int64(0); i < n; i++ {
		buf[i] = s.sample(d.rxCursor + i)
	}
	d.rxCursor += n

	if s.remaining >= 0 {
		s.remaining -= int(n)
		if s.remaining == 0 {
			d.rxStreaming = false
			md.EndOfBurst = true
		}
	}

	d.trim()
	d.notify()

	return int(n), md, nil
}

// sample synthesizes receive sample idx. Callers hold mu.
func (s *rxStream) sample(idx int64) (v complex128) {
	d := s.dev
	for _, t := range d.cfg.Targets {
		echo := d.txAt(idx - int64(d.cfg.HardwareDelay+t.Delay))
		if echo == 0 {
			continue
		}
		if t.Doppler != 0 {
			phase := 2 * math.Pi * t.Doppler * float64(idx) / d.radio.SampleRate
			echo *= cmplx.Rect(1, phase)
		}
		v += t.Amplitude * echo
	}

	if d.cfg.Noise > 0 {
		v += complex(s.rng.NormFloat64()*d.cfg.Noise, s.rng.NormFloat64()*d.cfg.Noise)
	}
	return v
}
