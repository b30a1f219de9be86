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

package sim

import (
	"math/cmplx"
	"testing"
	"time"

	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/sdr"
)

const sampleRate = 1e6

func newDevice(t *testing.T, cfg Config) (*Device, sdr.TxStream, sdr.RxStream) {
	t.Helper()
	d := New(cfg, nil)
	if err := d.Configure(sdr.Config{SampleRate: sampleRate}); err != nil {
		t.Fatalf("%+v\n", err)
	}
	tx, _ := d.TxStream()
	rx, _ := d.RxStream()
	return d, tx, rx
}

func TestLoopbackDelay(t *testing.T) {
	d, tx, rx := newDevice(t, Config{HardwareDelay: 5})
	defer d.Close()

	start := d.Now() + 10*time.Millisecond
	pulse := []complex128{1, 2, 3}

	if _, err := tx.Send(pulse, sdr.TxMetadata{HasTime: true, Time: start}, time.Second); err != nil {
		t.Fatalf("%+v\n", err)
	}
	if _, err := tx.Send(nil, sdr.TxMetadata{EndOfBurst: true}, time.Second); err != nil {
		t.Fatalf("%+v\n", err)
	}

	if err := rx.Issue(sdr.StreamCommand{Mode: sdr.NumSamplesAndDone, NumSamples: 16, Time: start}); err != nil {
		t.Fatalf("%+v\n", err)
	}

	buf := make([]complex128, 16)
	n, md, err := rx.Recv(buf, time.Second)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	if n != 16 || !md.EndOfBurst {
		t.Fatalf("received %d samples, eob %v\n", n, md.EndOfBurst)
	}
	for idx, v := range buf {
		expected := complex128(0)
		if idx >= 5 && idx < 8 {
			expected = pulse[idx-5]
		}
		if v != expected {
			t.Fatalf("sample %d = %v, expected %v\n", idx, v, expected)
		}
	}
}

func TestTargets(t *testing.T) {
	d, tx, rx := newDevice(t, Config{
		Targets: []Target{
			{Delay: 2, Amplitude: 0.5},
			{Delay: 6, Amplitude: 1i, Doppler: 1e3},
		},
	})
	defer d.Close()

	start := d.Now() + 10*time.Millisecond
	tx.Send([]complex128{1}, sdr.TxMetadata{HasTime: true, Time: start}, time.Second)
	tx.Send(nil, sdr.TxMetadata{EndOfBurst: true}, time.Second)

	rx.Issue(sdr.StreamCommand{Mode: sdr.NumSamplesAndDone, NumSamples: 8, Time: start})
	buf := make([]complex128, 8)
	if _, _, err := rx.Recv(buf, time.Second); err != nil {
		t.Fatalf("%+v\n", err)
	}

	if buf[2] != 0.5 {
		t.Fatalf("first target %v\n", buf[2])
	}
	if m := cmplx.Abs(buf[6]); m < 0.999 || m > 1.001 {
		t.Fatalf("second target magnitude %f\n", m)
	}
}

func TestContinuousAndStop(t *testing.T) {
	d, tx, rx := newDevice(t, Config{})
	defer d.Close()

	start := d.Now() + 5*time.Millisecond
	rx.Issue(sdr.StreamCommand{Mode: sdr.StartContinuous, Time: start})

	pulse := make([]complex128, 32)
	pulse[0] = 1
	md := sdr.TxMetadata{HasTime: true, Time: start}
	for i := 0; i < 4; i++ {
		if _, err := tx.Send(pulse, md, time.Second); err != nil {
			t.Fatalf("%+v\n", err)
		}
		md = sdr.TxMetadata{}
	}

	buf := make([]complex128, 32)
	for i := 0; i < 4; i++ {
		n, _, err := rx.Recv(buf, time.Second)
		if err != nil || n != 32 {
			t.Fatalf("pulse %d: %d samples, %v\n", i, n, err)
		}
		if buf[0] != 1 {
			t.Fatalf("pulse %d misaligned: %v\n", i, buf[:4])
		}
	}

	// Nothing more has been transmitted.
	if _, _, err := rx.Recv(buf, 10*time.Millisecond); !xerrors.Is(err, sdr.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v\n", err)
	}

	rx.Issue(sdr.StreamCommand{Mode: sdr.StopContinuous})
	n, rmd, err := rx.Recv(buf, time.Second)
	if err != nil || n != 0 || !rmd.EndOfBurst {
		t.Fatalf("stop: %d samples, eob %v, %v\n", n, rmd.EndOfBurst, err)
	}
}

func TestRecvBeforeTransmit(t *testing.T) {
	d, _, rx := newDevice(t, Config{})
	defer d.Close()

	rx.Issue(sdr.StreamCommand{Mode: sdr.StartContinuous, Now: true})
	if _, _, err := rx.Recv(make([]complex128, 8), 5*time.Millisecond); !xerrors.Is(err, sdr.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v\n", err)
	}
}

func TestClosed(t *testing.T) {
	d, tx, rx := newDevice(t, Config{})
	d.Close()

	if _, err := tx.Send([]complex128{1}, sdr.TxMetadata{}, time.Millisecond); !xerrors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v\n", err)
	}
	if _, _, err := rx.Recv(make([]complex128, 1), time.Millisecond); !xerrors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v\n", err)
	}
}

func TestSendPacing(t *testing.T) {
	d, tx, _ := newDevice(t, Config{Lead: 100})
	defer d.Close()

	buf := make([]complex128, 100)
	if _, err := tx.Send(buf, sdr.TxMetadata{HasTime: true, Time: d.Now()}, time.Second); err != nil {
		t.Fatalf("%+v\n", err)
	}
	if _, err := tx.Send(buf, sdr.TxMetadata{}, time.Second); err != nil {
		t.Fatalf("%+v\n", err)
	}

	// The third buffer must wait for the clock to consume the first.
	if _, err := tx.Send(buf, sdr.TxMetadata{}, time.Second); err != nil {
		t.Fatalf("%+v\n", err)
	}

	if _, err := tx.Send(make([]complex128, 1e6), sdr.TxMetadata{}, time.Millisecond); err != nil {
		t.Fatalf("%+v\n", err)
	}
	if _, err := tx.Send(buf, sdr.TxMetadata{}, time.Millisecond); !xerrors.Is(err, sdr.ErrTimeout) {
		t.Fatalf("expected ErrTimeout with a full buffer, got %v\n", err)
	}
}
