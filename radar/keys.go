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

package radar

// Keys names every metadata entry a stage reads or writes. Each stage is
// constructed with its own copy so deployments can rename keys without
// touching processing code.
type Keys struct {
	SampleRate      string
	Frequency       string
	Label           string
	StartOfBurst    string
	PRF             string
	Duration        string
	Bandwidth       string
	NumPulseCPI     string
	DopplerFFTSize  string
	MinRange        string
	MaxRange        string
	RangeMultiplier string
	Time            string
	PulseIndex      string
	CPIID           string
	NonZero         string
	LagOffset       string
}

// DefaultKeys returns the SigMF style names used throughout pdradar.
func DefaultKeys() Keys {
	return Keys{
		SampleRate:      "core:sample_rate",
		Frequency:       "core:frequency",
		Label:           "core:label",
		StartOfBurst:    "radar:sob",
		PRF:             "radar:prf",
		Duration:        "radar:duration",
		Bandwidth:       "radar:bandwidth",
		NumPulseCPI:     "radar:num_pulse_cpi",
		DopplerFFTSize:  "radar:doppler_fft_size",
		MinRange:        "radar:min_range",
		MaxRange:        "radar:max_range",
		RangeMultiplier: "radar:range_multiplier",
		Time:            "radar:time",
		PulseIndex:      "radar:pulse_index",
		CPIID:           "radar:cpi_id",
		NonZero:         "radar:nonzero",
		LagOffset:       "radar:lag_offset",
	}
}
