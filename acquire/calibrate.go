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

package acquire

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/calib"
	"github.com/bemasher/pdradar/fft"
	"github.com/bemasher/pdradar/radar"
	"github.com/bemasher/pdradar/sdr"
)

// Calibrate transmits ref once in loopback, estimates the receive delay of
// the radio from the capture and records it in store. The capture spans
// cfg.NumSamples, at least twice the reference length.
func Calibrate(ctx context.Context, dev sdr.Device, store *calib.Store, backend fft.Backend, ref *radar.Pulse, cfg Config) (int, error) {
	if ref == nil || len(ref.Samples) == 0 {
		return 0, ErrNoReference
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	log := cfg.Log.WithField("component", "calibrate")

	if err := dev.Configure(cfg.Radio); err != nil {
		return 0, errors.Wrap(err, "calibrate: configure")
	}
	tx, err := dev.TxStream()
	if err != nil {
		return 0, errors.Wrap(err, "calibrate: transmit stream")
	}
	rx, err := dev.RxStream()
	if err != nil {
		return 0, errors.Wrap(err, "calibrate: receive stream")
	}

	n := cfg.NumSamples
	if n < 2*len(ref.Samples) {
		n = 2 * len(ref.Samples)
	}

	start := dev.Now() + cfg.StartDelay
	if err := rx.Issue(sdr.StreamCommand{Mode: sdr.NumSamplesAndDone, NumSamples: n, Time: start}); err != nil {
		return 0, errors.Wrap(err, "calibrate: start streaming")
	}

	capture := make([]complex128, n)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		md := sdr.TxMetadata{HasTime: true, Time: start, StartOfBurst: true}
		if _, err := tx.Send(ref.Samples, md, cfg.Timeout+cfg.StartDelay); err != nil {
			return errors.Wrap(err, "calibrate: transmit")
		}
		if _, err := tx.Send(nil, sdr.TxMetadata{EndOfBurst: true}, cfg.Timeout); err != nil {
			return errors.Wrap(err, "calibrate: end of burst")
		}
		return nil
	})
	g.Go(func() error {
		timeout := cfg.Timeout + cfg.StartDelay
		for got := 0; got < n; {
			if err := gctx.Err(); err != nil {
				return err
			}

			k, md, err := rx.Recv(capture[got:], timeout)
			if xerrors.Is(err, sdr.ErrTimeout) {
				timeout = cfg.Timeout
				continue
			}
			if err != nil {
				return errors.Wrap(err, "calibrate: receive")
			}
			got += k
			if md.EndOfBurst {
				capture = capture[:got]
				break
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}

	delay, err := calib.Estimate(backend, ref.Samples, capture)
	if err != nil {
		return 0, err
	}

	info := dev.Info()
	store.Update(info.Radio, info.MasterClockRate, cfg.Radio.SampleRate, delay)
	log.WithFields(logrus.Fields{
		"radio":             info.Radio,
		"master_clock_rate": info.MasterClockRate,
		"sample_rate":       cfg.Radio.SampleRate,
		"delay":             delay,
	}).Info("calibrated")

	return delay, nil
}
