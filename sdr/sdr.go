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

// Package sdr abstracts the radio hardware driven by the acquisition
// engine: a hardware clock, a transmit stream and a receive stream.
package sdr

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/xerrors"
)

var (
	// ErrTimeout is returned by Send and Recv when the timeout expires
	// before any sample was transferred. Callers treat it as transient.
	ErrTimeout = xerrors.New("stream timeout")

	// ErrNotSupported is returned by devices lacking a capability, such as
	// receive only radios asked for a transmit stream.
	ErrNotSupported = xerrors.New("not supported")
)

// Clock reports hardware time as the duration since the device's epoch.
type Clock interface {
	Now() time.Duration
}

// Info identifies a radio for calibration lookups.
type Info struct {
	Radio           string
	MasterClockRate float64
}

func (i Info) String() string {
	return fmt.Sprintf("{Radio:%s MasterClockRate:%g}", i.Radio, i.MasterClockRate)
}

// Config holds the RF parameters applied to both chains.
type Config struct {
	SampleRate float64
	Frequency  float64
	TxGain     float64
	RxGain     float64
}

// TxMetadata accompanies a Send. When HasTime is set the first sample is
// transmitted at Time; otherwise samples follow the previous send
// contiguously.
type TxMetadata struct {
	HasTime      bool
	Time         time.Duration
	StartOfBurst bool
	EndOfBurst   bool
}

type TxStream interface {
	// Send transmits buf and returns the number of samples accepted. A
	// zero length buf with EndOfBurst set terminates the burst.
	Send(buf []complex128, md TxMetadata, timeout time.Duration) (int, error)
}

type StreamMode int

const (
	StartContinuous StreamMode = iota
	StopContinuous
	NumSamplesAndDone
)

func (m StreamMode) String() string {
	switch m {
	case StartContinuous:
		return "start-continuous"
	case StopContinuous:
		return "stop-continuous"
	case NumSamplesAndDone:
		return "num-samples-and-done"
	}
	return fmt.Sprintf("StreamMode(%d)", int(m))
}

// StreamCommand starts or stops receive streaming. Streaming begins at Time
// unless Now is set.
type StreamCommand struct {
	Mode       StreamMode
	NumSamples int
	Now        bool
	Time       time.Duration
}

// RxMetadata describes the samples returned by one Recv. Time is the
// hardware time of the first sample.
type RxMetadata struct {
	Time       time.Duration
	EndOfBurst bool
}

type RxStream interface {
	Issue(cmd StreamCommand) error

	// Recv fills buf with up to len(buf) samples.
	Recv(buf []complex128, timeout time.Duration) (int, RxMetadata, error)
}

// Device is a full duplex radio sharing one hardware clock between its
// streams.
type Device interface {
	Clock
	Info() Info
	Configure(cfg Config) error
	TxStream() (TxStream, error)
	RxStream() (RxStream, error)
	Close() error
}

// TimeToSamples converts a hardware time to a sample index at rate fs.
func TimeToSamples(t time.Duration, fs float64) int64 {
	return int64(math.Round(t.Seconds() * fs))
}

// SamplesToTime converts a sample index at rate fs to hardware time.
func SamplesToTime(n int64, fs float64) time.Duration {
	return time.Duration(math.Round(float64(n) / fs * float64(time.Second)))
}
