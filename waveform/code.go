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

// Package waveform generates reference pulses: binary and polyphase codes,
// linear FM chirps, and the zero padding that turns a pulse into one full
// pulse repetition interval.
package waveform

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/xerrors"
)

var ErrInvalidLength = xerrors.New("invalid code length")

type Code int

const (
	BarkerCode Code = iota
	FrankCode
	P4Code
)

func (c Code) String() string {
	switch c {
	case BarkerCode:
		return "barker"
	case FrankCode:
		return "frank"
	case P4Code:
		return "p4"
	}
	return "generic"
}

// ParseCode is the inverse of Code.String.
func ParseCode(s string) (Code, error) {
	switch strings.ToLower(s) {
	case "barker":
		return BarkerCode, nil
	case "frank":
		return FrankCode, nil
	case "p4":
		return P4Code, nil
	}
	return 0, xerrors.Errorf("unknown phase code: %q", s)
}

// Generate returns the phases of an n chip code wrapped to [-pi, pi).
func Generate(c Code, n int) ([]float64, error) {
	switch c {
	case BarkerCode:
		return Barker(n)
	case FrankCode:
		return Frank(n)
	case P4Code:
		return P4(n)
	}
	return nil, xerrors.Errorf("invalid phase code: %d", int(c))
}

var barkerBits = map[int]string{
	2:  "01",
	3:  "001",
	4:  "0001",
	5:  "00010",
	7:  "0001101",
	11: "00011101101",
	13: "0000011001010",
}

// Barker returns the binary phases (0 or pi) of the length n Barker code.
func Barker(n int) ([]float64, error) {
	bits, ok := barkerBits[n]
	if !ok {
		return nil, xerrors.Errorf("barker %d: %w", n, ErrInvalidLength)
	}

	code := make([]float64, n)
	for idx, bit := range bits {
		if bit == '1' {
			code[idx] = math.Pi
		}
	}
	WrapToPi(code)

	return code, nil
}

// Frank returns the Frank polyphase code of length m, which must be a
// perfect square.
func Frank(m int) ([]float64, error) {
	l := int(math.Round(math.Sqrt(float64(m))))
	if m < 1 || l*l != m {
		return nil, xerrors.Errorf("frank %d: not a perfect square: %w", m, ErrInvalidLength)
	}

	code := make([]float64, m)
	for n := 0; n < l; n++ {
		for k := 0; k < l; k++ {
			code[n*l+k] = math.Mod(2*math.Pi/float64(l)*float64(n*k), 2*math.Pi)
		}
	}
	WrapToPi(code)

	return code, nil
}

// P4 returns the length m P4 polyphase code.
func P4(m int) ([]float64, error) {
	if m < 1 {
		return nil, xerrors.Errorf("p4 %d: %w", m, ErrInvalidLength)
	}

	code := make([]float64, m)
	for idx := range code {
		i := float64(idx)
		code[idx] = math.Pi / float64(m) * i * (i - float64(m))
	}
	WrapToPi(code)

	return code, nil
}

// WrapToPi maps every phase into [-pi, pi) in place.
func WrapToPi(x []float64) {
	for idx, v := range x {
		x[idx] = -math.Pi + math.Mod(2*math.Pi+math.Mod(v+math.Pi, 2*math.Pi), 2*math.Pi)
	}
}

// Upsample repeats each chip factor times.
func Upsample(chips []float64, factor int) []float64 {
	signal := make([]float64, len(chips)*factor)

	for idx, c := range chips {
		offset := idx * factor
		for i := 0; i < factor; i++ {
			signal[offset+i] = c
		}
	}

	return signal
}

func formatPhases(code []float64) string {
	var parts []string
	for _, v := range code {
		parts = append(parts, fmt.Sprintf("%+.3f", v))
	}
	return "[" + strings.Join(parts, " ") + "]"
}
