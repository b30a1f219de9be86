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

package main

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/cfar"
	"github.com/bemasher/pdradar/radar"
	"github.com/bemasher/pdradar/rangelimit"
	"github.com/bemasher/pdradar/report"
	"github.com/bemasher/pdradar/sdr/sim"
	"github.com/bemasher/pdradar/waveform"
)

type RadarConfig struct {
	SampleRate float64       `mapstructure:"sample_rate"`
	Frequency  float64       `mapstructure:"frequency"`
	TxGain     float64       `mapstructure:"tx_gain"`
	RxGain     float64       `mapstructure:"rx_gain"`
	PRF        float64       `mapstructure:"prf"`
	StartDelay time.Duration `mapstructure:"start_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type WaveformConfig struct {
	// Type is barker, frank, p4 or lfm.
	Type           string  `mapstructure:"type"`
	Length         int     `mapstructure:"length"`
	SamplesPerChip int     `mapstructure:"samples_per_chip"`
	Bandwidth      float64 `mapstructure:"bandwidth"`
	PulseWidth     float64 `mapstructure:"pulse_width"`
}

type CPIConfig struct {
	Pulses int `mapstructure:"pulses"`
}

type DopplerConfig struct {
	Size     int  `mapstructure:"size"`
	Combined bool `mapstructure:"combined"`
}

type CompressConfig struct {
	Backend string `mapstructure:"backend"`
	Full    bool   `mapstructure:"full"`
}

type RangeConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	rangelimit.Config `mapstructure:",squash"`
}

type ReportConfig struct {
	Depth int               `mapstructure:"depth"`
	MQTT  report.MQTTConfig `mapstructure:"mqtt"`
}

type TargetConfig struct {
	Delay     int     `mapstructure:"delay"`
	Doppler   float64 `mapstructure:"doppler"`
	Amplitude float64 `mapstructure:"amplitude"`
}

type SimConfig struct {
	HardwareDelay int            `mapstructure:"hardware_delay"`
	Noise         float64        `mapstructure:"noise"`
	Seed          int64          `mapstructure:"seed"`
	Targets       []TargetConfig `mapstructure:"targets"`
}

// Config is the processing configuration read from pdradar.{toml,yaml,json}.
type Config struct {
	Radar    RadarConfig    `mapstructure:"radar"`
	Waveform WaveformConfig `mapstructure:"waveform"`
	Compress CompressConfig `mapstructure:"compress"`
	CPI      CPIConfig      `mapstructure:"cpi"`
	Doppler  DopplerConfig  `mapstructure:"doppler"`
	CFAR     cfar.Config    `mapstructure:"cfar"`
	Range    RangeConfig    `mapstructure:"range"`
	Report   ReportConfig   `mapstructure:"report"`
	Sim      SimConfig      `mapstructure:"sim"`
}

// setDefaultConfig fills cfg with a configuration that runs against the
// simulated radio: a 13 chip Barker code in a 128 sample PRI with a single
// target at range bin 50.
func setDefaultConfig(cfg *Config) {
	cfg.Radar = RadarConfig{
		SampleRate: 10e6,
		Frequency:  5e9,
		PRF:        10e6 / 128,
		StartDelay: 100 * time.Millisecond,
		Timeout:    100 * time.Millisecond,
	}
	cfg.Waveform = WaveformConfig{Type: "barker", Length: 13, SamplesPerChip: 1}
	cfg.Compress = CompressConfig{Backend: "gonum"}
	cfg.CPI = CPIConfig{Pulses: 8}
	cfg.Doppler = DopplerConfig{Size: 8}
	cfg.CFAR = cfar.Config{
		GuardRange:   2,
		GuardDoppler: 1,
		TrainRange:   4,
		TrainDoppler: 2,
		Pfa:          1e-6,
	}
	cfg.Report = ReportConfig{Depth: 16}
	cfg.Sim = SimConfig{
		Noise:   0.01,
		Seed:    1,
		Targets: []TargetConfig{{Delay: 50, Amplitude: 1}},
	}
}

// loadConfig overlays the config file onto cfg. An empty path searches for
// pdradar.* in /etc/pdradar and the working directory. It reports whether
// a file was read; a missing file is not an error unless path was given.
func loadConfig(v *viper.Viper, path string, cfg *Config) (bool, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pdradar")
		v.AddConfigPath("/etc/pdradar")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && xerrors.As(err, &notFound) {
			return false, nil
		}
		return false, xerrors.Errorf("reading config: %w", err)
	}

	sections := []struct {
		key string
		val interface{}
	}{
		{"radar", &cfg.Radar},
		{"waveform", &cfg.Waveform},
		{"compress", &cfg.Compress},
		{"cpi", &cfg.CPI},
		{"doppler", &cfg.Doppler},
		{"cfar", &cfg.CFAR},
		{"range", &cfg.Range},
		{"report", &cfg.Report},
		{"sim", &cfg.Sim},
	}
	for _, s := range sections {
		if !v.IsSet(s.key) {
			continue
		}
		if err := v.UnmarshalKey(s.key, s.val); err != nil {
			return true, xerrors.Errorf("config section %q: %w", s.key, err)
		}
	}

	return true, nil
}

// makeWaveform builds the reference pulse described by cfg. The returned
// pulse spans one full PRI.
func makeWaveform(cfg Config, keys radar.Keys) (*radar.Pulse, error) {
	g := waveform.Generator{Keys: keys}
	fs := cfg.Radar.SampleRate

	var (
		p   *radar.Pulse
		err error
	)
	switch strings.ToLower(cfg.Waveform.Type) {
	case "lfm":
		p, err = g.LFM(cfg.Waveform.Bandwidth, cfg.Waveform.PulseWidth, fs)
	default:
		code, perr := waveform.ParseCode(cfg.Waveform.Type)
		if perr != nil {
			return nil, perr
		}
		phases, gerr := waveform.Generate(code, cfg.Waveform.Length)
		if gerr != nil {
			return nil, gerr
		}
		p = g.PhaseCoded(phases, cfg.Waveform.SamplesPerChip, fs)
	}
	if err != nil {
		return nil, err
	}

	return g.Pulsed(p, cfg.Radar.PRF, fs)
}

// simTargets converts configured targets for the simulated radio.
func simTargets(cfg SimConfig) (targets []sim.Target) {
	for _, t := range cfg.Targets {
		targets = append(targets, sim.Target{
			Delay:     t.Delay,
			Doppler:   t.Doppler,
			Amplitude: complex(t.Amplitude, 0),
		})
	}
	return targets
}
