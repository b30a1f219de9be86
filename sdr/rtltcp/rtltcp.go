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

// Package rtltcp adapts an rtl_tcp spectrum server to the sdr.Device
// interface. The dongle cannot transmit, so the device is receive only and
// its clock counts samples read from the server.
package rtltcp

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bemasher/rtltcp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/sdr"
)

// XtalFreq is the reference oscillator of RTL2832U dongles, reported as the
// master clock rate.
const XtalFreq = 28.8e6

// minBlock is the smallest read buffer in bytes.
const minBlock = 1 << 14

// lut maps an unsigned 8-bit IQ component to [-1, 1].
var lut [256]float64

func init() {
	for idx := range lut {
		lut[idx] = (float64(idx) - 127.5) / 127.5
	}
}

// Device is an rtl_tcp connection. Recv must not be called concurrently.
type Device struct {
	sdr rtltcp.SDR
	log logrus.FieldLogger

	mu         sync.Mutex
	sampleRate float64

	// count is the number of samples read from the server.
	count int64

	rx *rxStream
}

// Dial connects to the rtl_tcp server at addr, "127.0.0.1:1234" if empty.
func Dial(addr string, log logrus.FieldLogger) (*Device, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	d := &Device{log: log.WithField("device", "rtltcp")}
	d.sdr.Flags.ServerAddr = addr
	if err := d.sdr.Connect(nil); err != nil {
		return nil, errors.Wrap(err, "rtltcp: connect")
	}
	d.rx = &rxStream{dev: d}

	d.log.WithFields(logrus.Fields{
		"tuner":      d.sdr.Info.Tuner,
		"gain_count": d.sdr.Info.GainCount,
	}).Info("connected")

	return d, nil
}

func (d *Device) Now() time.Duration {
	d.mu.Lock()
	fs := d.sampleRate
	d.mu.Unlock()

	if fs <= 0 {
		return 0
	}
	return sdr.SamplesToTime(atomic.LoadInt64(&d.count), fs)
}

func (d *Device) Info() sdr.Info {
	return sdr.Info{
		Radio:           "rtl_tcp " + d.sdr.Info.Tuner.String(),
		MasterClockRate: XtalFreq,
	}
}

// Configure tunes the dongle. An RxGain of zero selects automatic gain,
// otherwise RxGain is in dB. TxGain is ignored.
func (d *Device) Configure(cfg sdr.Config) error {
	if cfg.SampleRate <= 0 {
		return xerrors.Errorf("rtltcp: invalid sample rate %g", cfg.SampleRate)
	}

	if err := d.sdr.SetSampleRate(uint32(cfg.SampleRate)); err != nil {
		return errors.Wrap(err, "rtltcp: set sample rate")
	}
	if err := d.sdr.SetCenterFreq(uint32(cfg.Frequency)); err != nil {
		return errors.Wrap(err, "rtltcp: set center frequency")
	}

	if cfg.RxGain == 0 {
		if err := d.sdr.SetGainMode(true); err != nil {
			return errors.Wrap(err, "rtltcp: set gain mode")
		}
	} else {
		if err := d.sdr.SetGainMode(false); err != nil {
			return errors.Wrap(err, "rtltcp: set gain mode")
		}
		if err := d.sdr.SetGain(uint32(cfg.RxGain * 10)); err != nil {
			return errors.Wrap(err, "rtltcp: set gain")
		}
	}

	d.mu.Lock()
	d.sampleRate = cfg.SampleRate
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{
		"sample_rate": cfg.SampleRate,
		"frequency":   cfg.Frequency,
		"gain":        cfg.RxGain,
	}).Debug("configured")

	return nil
}

func (d *Device) TxStream() (sdr.TxStream, error) {
	return nil, sdr.ErrNotSupported
}

func (d *Device) RxStream() (sdr.RxStream, error) {
	return d.rx, nil
}

func (d *Device) Close() error {
	if d.sdr.TCPConn == nil {
		return nil
	}
	return d.sdr.Close()
}

type rxStream struct {
	dev *Device

	mu        sync.Mutex
	streaming bool
	stop      bool
	start     int64
	remaining int

	raw   []byte
	carry []byte
}

func (s *rxStream) Issue(cmd sdr.StreamCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.dev
	d.mu.Lock()
	fs := d.sampleRate
	d.mu.Unlock()
	if fs <= 0 {
		return xerrors.New("rtltcp: stream command before configure")
	}

	switch cmd.Mode {
	case sdr.StartContinuous, sdr.NumSamplesAndDone:
		s.start = atomic.LoadInt64(&d.count)
		if !cmd.Now {
			s.start = sdr.TimeToSamples(cmd.Time, fs)
		}
		s.streaming = true
		s.stop = false
		s.remaining = -1
		if cmd.Mode == sdr.NumSamplesAndDone {
			s.remaining = cmd.NumSamples
		}
	case sdr.StopContinuous:
		s.stop = s.streaming
	default:
		return xerrors.Errorf("rtltcp: unsupported stream mode %s", cmd.Mode)
	}

	return nil
}

// read fills dst with whole IQ pairs from the server, returning the number
// of bytes available in dst. A partial pair is carried to the next call.
func (s *rxStream) read(dst []byte) (int, error) {
	n := copy(dst, s.carry)
	s.carry = append(s.carry[:0], s.carry[n:]...)

	m, err := io.ReadFull(s.dev.sdr, dst[n:])
	n += m

	if odd := n & 1; odd != 0 {
		s.carry = append(s.carry, dst[n-1])
		n--
	}
	atomic.AddInt64(&s.dev.count, int64(n>>1))

	return n, err
}

func (s *rxStream) Recv(buf []complex128, timeout time.Duration) (int, sdr.RxMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.dev
	d.mu.Lock()
	fs := d.sampleRate
	d.mu.Unlock()

	if s.stop {
		s.stop = false
		s.streaming = false
		return 0, sdr.RxMetadata{Time: d.Now(), EndOfBurst: true}, nil
	}
	if !s.streaming {
		time.Sleep(timeout)
		return 0, sdr.RxMetadata{}, sdr.ErrTimeout
	}

	want := len(buf)
	if s.remaining >= 0 && s.remaining < want {
		want = s.remaining
	}
	if cap(s.raw) < want<<1 || cap(s.raw) == 0 {
		size := want << 1
		if size < minBlock {
			size = minBlock
		}
		s.raw = make([]byte, size)
	}

	if err := d.sdr.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, sdr.RxMetadata{}, errors.Wrap(err, "rtltcp: set read deadline")
	}

	// Discard samples preceding the commanded start time.
	for skip := s.start - atomic.LoadInt64(&d.count); skip > 0; skip = s.start - atomic.LoadInt64(&d.count) {
		chunk := s.raw[:cap(s.raw)]
		if int64(len(chunk)) > skip<<1 {
			chunk = chunk[:skip<<1]
		}
		if _, err := s.read(chunk); err != nil {
			return 0, sdr.RxMetadata{}, s.classify(err)
		}
	}

	first := atomic.LoadInt64(&d.count)
	n, err := s.read(s.raw[:want<<1])
	n >>= 1

	for idx := 0; idx < n; idx++ {
		buf[idx] = complex(lut[s.raw[idx<<1]], lut[s.raw[idx<<1+1]])
	}

	md := sdr.RxMetadata{Time: sdr.SamplesToTime(first, fs)}
	if s.remaining >= 0 {
		s.remaining -= n
		if s.remaining == 0 {
			s.streaming = false
			md.EndOfBurst = true
		}
	}

	if err != nil && n == 0 {
		return 0, md, s.classify(err)
	}
	if err != nil {
		if cerr := s.classify(err); !xerrors.Is(cerr, sdr.ErrTimeout) {
			return n, md, cerr
		}
	}

	return n, md, nil
}

// classify maps read deadline expiry to sdr.ErrTimeout.
func (s *rxStream) classify(err error) error {
	var netErr net.Error
	if xerrors.As(err, &netErr) && netErr.Timeout() {
		return sdr.ErrTimeout
	}
	return errors.Wrap(err, "rtltcp: read samples")
}
