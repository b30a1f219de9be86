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

// Package radar defines the data model shared by every processing stage:
// pulses, coherent processing intervals, range-Doppler maps, detection
// reports and the metadata dictionaries that travel with them.
package radar

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/xerrors"
)

// SpeedOfLight in meters per second.
const SpeedOfLight = 299792458.0

var ErrMissingMetadata = xerrors.New("missing metadata")

// Metadata maps string keys to scalar or array values. Published metadata
// is never mutated; stages that annotate a message work on a Clone.
type Metadata map[string]interface{}

// Clone returns a shallow copy of m. A nil map clones to an empty one.
func (m Metadata) Clone() Metadata {
	c := make(Metadata, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Merge copies every entry of other into m. Keys present in both take the
// value from other.
func (m Metadata) Merge(other Metadata) {
	for k, v := range other {
		m[k] = v
	}
}

// Float returns the value at key as a float64. Any numeric type is accepted.
func (m Metadata) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case uint32:
		return float64(v), true
	}
	return 0, false
}

// Int returns the value at key as an int. Floating point values are
// accepted only when they hold an integer.
func (m Metadata) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case uint:
		return int(v), true
	case uint64:
		return int(v), true
	case uint32:
		return int(v), true
	}

	f, ok := m.Float(key)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func (m Metadata) Bool(key string) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// RequireFloat is Float but reports a missing or non-numeric key as an
// error wrapping ErrMissingMetadata.
func (m Metadata) RequireFloat(key string) (float64, error) {
	v, ok := m.Float(key)
	if !ok {
		return 0, xerrors.Errorf("%q: %w", key, ErrMissingMetadata)
	}
	return v, nil
}

// Format renders the metadata with sorted keys for logging.
func (m Metadata) Format() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for idx, k := range keys {
		if idx > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s:%v", k, m[k])
	}
	b.WriteByte('}')
	return b.String()
}
