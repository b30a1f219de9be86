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

package rtltcp

import (
	"encoding/binary"
	"io"
	"io/ioutil"
	"net"
	"testing"
	"time"

	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/sdr"
)

const sampleRate = 2.4e6

// serve runs a minimal rtl_tcp server that writes the dongle header
// followed by stream, then holds the connection open until the test ends.
func serve(t *testing.T, stream []byte) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("%+v\n", err)
	}

	done := make(chan struct{})
	t.Cleanup(func() {
		close(done)
		l.Close()
	})

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		header := struct {
			Magic     [4]byte
			Tuner     uint32
			GainCount uint32
		}{[4]byte{'R', 'T', 'L', '0'}, 5, 29}
		binary.Write(conn, binary.BigEndian, header)

		go io.Copy(ioutil.Discard, conn)

		conn.Write(stream)
		<-done
	}()

	return l.Addr().String()
}

func ramp(n int) []byte {
	b := make([]byte, n)
	for idx := range b {
		b[idx] = byte(idx)
	}
	return b
}

func dial(t *testing.T, stream []byte) (*Device, sdr.RxStream) {
	t.Helper()

	d, err := Dial(serve(t, stream), nil)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	t.Cleanup(func() { d.Close() })

	if err := d.Configure(sdr.Config{SampleRate: sampleRate, Frequency: 915e6}); err != nil {
		t.Fatalf("%+v\n", err)
	}
	rx, err := d.RxStream()
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	return d, rx
}

func TestLUT(t *testing.T) {
	if lut[0] != -1 || lut[255] != 1 {
		t.Fatalf("lut endpoints %f %f\n", lut[0], lut[255])
	}
	for idx := 1; idx < len(lut); idx++ {
		if lut[idx] <= lut[idx-1] {
			t.Fatalf("lut not increasing at %d\n", idx)
		}
	}
	if lut[127] != -lut[128] {
		t.Fatalf("lut not symmetric: %f %f\n", lut[127], lut[128])
	}
}

func TestInfo(t *testing.T) {
	d, _ := dial(t, nil)

	info := d.Info()
	if info.Radio != "rtl_tcp R820T" || info.MasterClockRate != XtalFreq {
		t.Fatalf("unexpected info %s\n", info)
	}
	if _, err := d.TxStream(); !xerrors.Is(err, sdr.ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v\n", err)
	}
}

func TestTimedStart(t *testing.T) {
	d, rx := dial(t, ramp(200))

	start := sdr.SamplesToTime(10, sampleRate)
	if err := rx.Issue(sdr.StreamCommand{Mode: sdr.NumSamplesAndDone, NumSamples: 8, Time: start}); err != nil {
		t.Fatalf("%+v\n", err)
	}

	buf := make([]complex128, 16)
	n, md, err := rx.Recv(buf, time.Second)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	if n != 8 || !md.EndOfBurst {
		t.Fatalf("received %d samples, eob %v\n", n, md.EndOfBurst)
	}
	if md.Time != start {
		t.Fatalf("first sample at %s, expected %s\n", md.Time, start)
	}

	for idx := 0; idx < n; idx++ {
		k := 2 * (10 + idx)
		expected := complex(lut[k], lut[k+1])
		if buf[idx] != expected {
			t.Fatalf("sample %d = %v, expected %v\n", idx, buf[idx], expected)
		}
	}

	if now := d.Now(); now != sdr.SamplesToTime(18, sampleRate) {
		t.Fatalf("clock at %s after 18 samples\n", now)
	}
}

func TestTimeoutAndStop(t *testing.T) {
	_, rx := dial(t, ramp(9))

	rx.Issue(sdr.StreamCommand{Mode: sdr.StartContinuous, Now: true})

	buf := make([]complex128, 8)
	n, _, err := rx.Recv(buf, 50*time.Millisecond)
	if err != nil || n != 4 {
		t.Fatalf("expected 4 samples before timeout, got %d %v\n", n, err)
	}

	// The odd byte is carried until its pair arrives.
	if _, _, err := rx.Recv(buf, 10*time.Millisecond); !xerrors.Is(err, sdr.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v\n", err)
	}

	rx.Issue(sdr.StreamCommand{Mode: sdr.StopContinuous})
	n, md, err := rx.Recv(buf, time.Second)
	if err != nil || n != 0 || !md.EndOfBurst {
		t.Fatalf("stop: %d samples, eob %v, %v\n", n, md.EndOfBurst, err)
	}
}
