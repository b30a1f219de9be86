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

package report

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/radar"
)

const tolerance = 1e-9

func testReport() *radar.DetectionReport {
	keys := radar.DefaultKeys()
	return &radar.DetectionReport{
		Meta: radar.Metadata{
			keys.SampleRate: 10e6,
			keys.PRF:        10e3,
			keys.Frequency:  5e9,
			keys.CPIID:      "cpi-1",
			keys.Time:       1.5,
		},
		RangeBins:   128,
		DopplerBins: 8,
		// (50, 4) and (10, 6)
		Indices: []int{4*128 + 50, 6*128 + 10},
		Count:   2,
	}
}

func TestConvert(t *testing.T) {
	c := Converter{Keys: radar.DefaultKeys()}

	f, err := c.Convert(testReport())
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	if f.CPIID != "cpi-1" || f.Time != 1.5 || f.Count != 2 || len(f.Detections) != 2 {
		t.Fatalf("unexpected frame %+v\n", f)
	}

	binRange := radar.SpeedOfLight / 20e6

	d := f.Detections[0]
	if d.RangeBin != 50 || d.DopplerBin != 4 {
		t.Fatalf("unexpected cell %s\n", d)
	}
	if math.Abs(d.Range-50*binRange) > tolerance || d.Doppler != 0 || d.Velocity != 0 {
		t.Fatalf("unexpected detection %s\n", d)
	}

	d = f.Detections[1]
	if d.Doppler != 2500 {
		t.Fatalf("doppler %f, expected 2500\n", d.Doppler)
	}
	if v := 2500 * radar.SpeedOfLight / 10e9; math.Abs(d.Velocity-v) > tolerance {
		t.Fatalf("velocity %f, expected %f\n", d.Velocity, v)
	}
}

func TestConvertOffsets(t *testing.T) {
	keys := radar.DefaultKeys()
	r := testReport()
	r.Meta[keys.MinRange] = 1000.0
	r.Meta[keys.LagOffset] = 12

	f, err := Converter{Keys: keys}.Convert(r)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}

	expected := 1000 + 38*radar.SpeedOfLight/20e6
	if math.Abs(f.Detections[0].Range-expected) > tolerance {
		t.Fatalf("range %f, expected %f\n", f.Detections[0].Range, expected)
	}
}

func TestConvertMissingMetadata(t *testing.T) {
	keys := radar.DefaultKeys()
	r := testReport()
	delete(r.Meta, keys.PRF)

	_, err := Converter{Keys: keys}.Convert(r)
	if !xerrors.Is(err, radar.ErrMissingMetadata) {
		t.Fatalf("expected ErrMissingMetadata, got %v\n", err)
	}
}

func TestCSV(t *testing.T) {
	f, _ := Converter{Keys: radar.DefaultKeys()}.Convert(testReport())

	buf := &bytes.Buffer{}
	sink, err := NewCSV(buf)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	if err := sink.Write(f); err != nil {
		t.Fatalf("%+v\n", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 records, got %q\n", lines)
	}
	if lines[0] != strings.Join(Header, ",") {
		t.Fatalf("unexpected header %q\n", lines[0])
	}
	if !strings.HasPrefix(lines[1], "cpi-1,1.5,50,4,") {
		t.Fatalf("unexpected record %q\n", lines[1])
	}
}

type nonRecorder struct{}

func TestEncoderNonRecorder(t *testing.T) {
	enc := NewEncoder(&bytes.Buffer{})

	err := enc.Encode(nonRecorder{})

	var runtimeErr runtime.Error
	if !xerrors.As(err, &runtimeErr) {
		t.Fatalf("%+v\n", err)
	}
}

type failing struct {
	closed bool
}

func (f *failing) Write(*Frame) error {
	return xerrors.New("sink failed")
}

func (f *failing) Close() error {
	f.closed = true
	return nil
}

type counting struct {
	frames int
}

func (c *counting) Write(*Frame) error {
	c.frames++
	return nil
}

func (c *counting) Close() error { return nil }

func TestMulti(t *testing.T) {
	bad, good := &failing{}, &counting{}
	m := Multi{bad, good}

	if err := m.Write(&Frame{}); err == nil {
		t.Fatal("expected error from failing sink")
	}
	if good.frames != 1 {
		t.Fatalf("healthy sink received %d frames\n", good.frames)
	}
	if m.Close(); !bad.closed {
		t.Fatal("sink not closed")
	}
}

func TestHub(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for hub.Len() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	f, _ := Converter{Keys: radar.DefaultKeys()}.Convert(testReport())
	if err := hub.Write(f); err != nil {
		t.Fatalf("%+v\n", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("%+v\n", err)
	}

	var got Frame
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("%+v\n", err)
	}
	if got.CPIID != "cpi-1" || len(got.Detections) != 2 || got.Detections[1].DopplerBin != 6 {
		t.Fatalf("unexpected frame %+v\n", got)
	}

	hub.Close()
	if hub.Len() != 0 {
		t.Fatalf("%d clients after close\n", hub.Len())
	}
}

type token struct{}

func (token) Wait() bool                     { return true }
func (token) WaitTimeout(time.Duration) bool { return true }
func (token) Error() error                   { return nil }

func (token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type client struct {
	mqtt.Client
	topic   string
	payload []byte
}

func (c *client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic = topic
	c.payload = payload.([]byte)
	return token{}
}

func (c *client) Disconnect(uint) {}

func TestMQTT(t *testing.T) {
	c := &client{}
	sink := NewMQTT(c, MQTTConfig{}, nil)
	defer sink.Close()

	f, _ := Converter{Keys: radar.DefaultKeys()}.Convert(testReport())
	if err := sink.Write(f); err != nil {
		t.Fatalf("%+v\n", err)
	}

	if c.topic != "pdradar/detections" {
		t.Fatalf("published to %q\n", c.topic)
	}

	var got Frame
	if err := json.Unmarshal(c.payload, &got); err != nil {
		t.Fatalf("%+v\n", err)
	}
	if got.Count != 2 || got.Detections[0].RangeBin != 50 {
		t.Fatalf("unexpected payload %s\n", c.payload)
	}
}
