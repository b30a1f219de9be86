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
	"encoding/csv"
	"io"

	"golang.org/x/xerrors"
)

// Header names the columns of Detection.Record.
var Header = []string{"cpi_id", "time", "range_bin", "doppler_bin", "range", "doppler", "velocity"}

// Recorder is implemented by values that can be written as one CSV record.
type Recorder interface {
	Record() []string
}

// An Encoder writes CSV records to an output stream.
type Encoder struct {
	w *csv.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: csv.NewWriter(w)}
}

// Encode writes the record of v followed by a newline and flushes. v must
// implement Recorder.
func (enc *Encoder) Encode(v interface{}) (err error) {
	defer func() {
		if r, _ := recover().(error); r != nil {
			err = xerrors.Errorf("recovered: %w", r)
		}
	}()

	if err = enc.w.Write(v.(Recorder).Record()); err != nil {
		return err
	}
	enc.w.Flush()

	return enc.w.Error()
}

// CSV writes one record per detection.
type CSV struct {
	enc    *Encoder
	closer io.Closer
}

// NewCSV writes a header row followed by detections to w. If w is an
// io.Closer it is closed by Close.
func NewCSV(w io.Writer) (*CSV, error) {
	c := &CSV{enc: NewEncoder(w)}
	if closer, ok := w.(io.Closer); ok {
		c.closer = closer
	}

	if err := c.enc.Encode(header{}); err != nil {
		return nil, err
	}
	return c, nil
}

type header struct{}

func (header) Record() []string { return Header }

func (c *CSV) Write(f *Frame) error {
	for _, d := range f.Detections {
		if err := c.enc.Encode(d); err != nil {
			return err
		}
	}
	return nil
}

func (c *CSV) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
