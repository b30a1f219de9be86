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

// Package fft provides the transform backends used by the pulse compressor,
// Doppler processor and delay estimator. Backends are chosen by name when a
// stage is constructed; processing code only sees the Backend interface.
package fft

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/xerrors"
)

// A Plan computes transforms of one fixed length. Plans are not safe for
// concurrent use.
type Plan interface {
	Len() int

	// Forward writes the DFT of src to dst and returns dst. A nil dst is
	// allocated.
	Forward(dst, src []complex128) []complex128

	// Inverse writes the unnormalized inverse DFT of src to dst: the result
	// of Inverse(Forward(x)) is Len()*x.
	Inverse(dst, src []complex128) []complex128
}

// Backend creates plans and performs element-wise arithmetic.
type Backend interface {
	Name() string
	NewPlan(n int) (Plan, error)

	// Multiply sets dst[i] = a[i]*b[i]. All three slices have equal length.
	Multiply(dst, a, b []complex128)
}

var ErrUnknownBackend = xerrors.New("unknown fft backend")

var (
	backendMutex sync.Mutex
	backends     = make(map[string]NewBackendFunc)
)

type NewBackendFunc func() Backend

// Register makes a backend available by name. It panics on nil or
// duplicate registrations.
func Register(name string, fn NewBackendFunc) {
	backendMutex.Lock()
	defer backendMutex.Unlock()

	if fn == nil {
		panic("fft: new backend func is nil")
	}
	if _, dup := backends[name]; dup {
		panic(fmt.Sprintf("fft: backend already registered (%s)", name))
	}
	backends[name] = fn
}

// New returns the backend registered under name.
func New(name string) (Backend, error) {
	backendMutex.Lock()
	defer backendMutex.Unlock()

	fn, exists := backends[name]
	if !exists {
		return nil, xerrors.Errorf("%q: %w", name, ErrUnknownBackend)
	}
	return fn(), nil
}

// Backends lists registered backend names.
func Backends() (names []string) {
	backendMutex.Lock()
	defer backendMutex.Unlock()

	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("gonum", func() Backend { return Gonum{} })
	Register("direct", func() Backend { return Direct{} })
}

// NextPowerOf2 returns the smallest power of two >= v, and 1 for v < 1.
func NextPowerOf2(v int) int {
	n := 1
	for n < v {
		n <<= 1
	}
	return n
}

// Shift circularly rotates src by len(src)/2 into dst so the zero
// frequency bin lands at index len(src)/2. dst and src must not overlap.
func Shift(dst, src []complex128) {
	n := len(src)
	half := n / 2
	copy(dst[half:], src[:n-half])
	copy(dst[:half], src[n-half:])
}

// Scale multiplies every element of x by s in place.
func Scale(x []complex128, s float64) {
	c := complex(s, 0)
	for idx := range x {
		x[idx] *= c
	}
}

func multiply(dst, a, b []complex128) {
	if len(a) != len(dst) || len(b) != len(dst) {
		panic(fmt.Sprintf("fft: multiply length mismatch (%d, %d, %d)", len(dst), len(a), len(b)))
	}
	for idx := range dst {
		dst[idx] = a[idx] * b[idx]
	}
}
