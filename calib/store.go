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

// Package calib persists the per radio sample delay between the transmit
// and receive chains, keyed by radio identity, master clock rate and
// sample rate.
package calib

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Record is one calibrated configuration of a radio.
type Record struct {
	MasterClockRate float64 `yaml:"master_clock_rate" json:"master_clock_rate"`
	SampleRate      float64 `yaml:"samp_rate" json:"samp_rate"`
	Delay           int     `yaml:"delay" json:"delay"`
}

// Store is a calibration table backed by a file. The file is YAML, which
// also accepts the JSON tables written by older tools. Store is safe for
// concurrent use.
type Store struct {
	path string

	mu     sync.RWMutex
	radios map[string][]Record
}

// NewStore returns an empty store that saves to path.
func NewStore(path string) *Store {
	return &Store{path: path, radios: make(map[string][]Record)}
}

// Load reads the table at path. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	s := NewStore(path)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open calibration")
	}
	defer f.Close()

	if err := s.Decode(f); err != nil {
		return nil, errors.Wrapf(err, "decode calibration %s", path)
	}

	return s, nil
}

// Decode merges the table read from r into the store.
func (s *Store) Decode(r io.Reader) error {
	buf, err := ioutil.ReadAll(r)
	if err != nil {
		return errors.WithStack(err)
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return nil
	}

	table := make(map[string][]Record)
	if err := yaml.Unmarshal(buf, &table); err != nil {
		return errors.WithStack(err)
	}

	for radio, records := range table {
		for _, rec := range records {
			s.Update(radio, rec.MasterClockRate, rec.SampleRate, rec.Delay)
		}
	}

	return nil
}

// Lookup returns the delay recorded for an exact match of all three keys.
// ok is false when no record matches.
func (s *Store) Lookup(radio string, masterClockRate, sampleRate float64) (delay int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.radios[radio] {
		if rec.MasterClockRate == masterClockRate && rec.SampleRate == sampleRate {
			return rec.Delay, true
		}
	}
	return 0, false
}

// Update overwrites the matching record in place or appends a new one.
func (s *Store) Update(radio string, masterClockRate, sampleRate float64, delay int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.radios[radio]
	for idx := range records {
		if records[idx].MasterClockRate == masterClockRate && records[idx].SampleRate == sampleRate {
			records[idx].Delay = delay
			return
		}
	}
	s.radios[radio] = append(records, Record{masterClockRate, sampleRate, delay})
}

// Radios lists radio identities with at least one record.
func (s *Store) Radios() (radios []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for radio := range s.radios {
		radios = append(radios, radio)
	}
	sort.Strings(radios)
	return radios
}

// Records returns a copy of the records of one radio in insertion order.
func (s *Store) Records(radio string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Record(nil), s.radios[radio]...)
}

// Encode writes the table to w.
func (s *Store) Encode(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s.radios); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(enc.Close())
}

// Save rewrites the backing file. The table is written to a temporary file
// in the same directory and renamed over the original.
func (s *Store) Save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create calibration directory")
	}

	tmp, err := ioutil.TempFile(dir, ".calibration-*")
	if err != nil {
		return errors.Wrap(err, "create calibration file")
	}
	defer os.Remove(tmp.Name())

	if err := s.Encode(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.WithStack(err)
	}

	return errors.Wrap(os.Rename(tmp.Name(), s.path), "replace calibration file")
}

func (s *Store) Path() string {
	return s.path
}
