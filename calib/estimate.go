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

package calib

import (
	"math/cmplx"

	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/compress"
	"github.com/bemasher/pdradar/fft"
	"github.com/bemasher/pdradar/radar"
)

// Estimate returns the number of samples by which the loopback capture rx
// lags the transmitted waveform tx, taken from the peak of their matched
// filter output. A negative delay means rx leads tx.
func Estimate(backend fft.Backend, tx, rx []complex128) (int, error) {
	if len(tx) == 0 || len(rx) == 0 {
		return 0, xerrors.New("estimate: empty waveform")
	}

	c := compress.New(backend, compress.Full, radar.Keys{}, nil)
	c.SetReference(tx)

	out, err := c.Compress(&radar.Pulse{Meta: radar.Metadata{}, Samples: rx})
	if err != nil {
		return 0, err
	}

	argmax, max := 0, 0.0
	for idx, v := range out.Samples {
		if m := cmplx.Abs(v); m > max {
			argmax, max = idx, m
		}
	}
	if max == 0 {
		return 0, xerrors.New("estimate: no correlation peak")
	}

	return argmax - (len(tx) - 1), nil
}
