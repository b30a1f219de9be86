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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/bemasher/pdradar/radar"
	"github.com/bemasher/pdradar/waveform"
)

const testConfig = `
radar:
  sample_rate: 2000000
  prf: 15625
  timeout: 250ms
waveform:
  type: frank
  length: 16
  samples_per_chip: 2
cfar:
  guard_range: 1
  guard_doppler: 1
  train_range: 8
  train_doppler: 2
  pfa: 0.001
range:
  enabled: true
  min: 150
  max: 3000
  multiplier: 1
report:
  mqtt:
    topic: radar/test
sim:
  hardware_delay: 12
  targets:
    - delay: 20
      amplitude: 0.5
    - delay: 40
      doppler: 1000
      amplitude: 0.25
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pdradar.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0644); err != nil {
		t.Fatal(err)
	}

	var cfg Config
	setDefaultConfig(&cfg)

	found, err := loadConfig(viper.New(), path, &cfg)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	if !found {
		t.Fatalf("config file not found\n")
	}

	if cfg.Radar.SampleRate != 2e6 || cfg.Radar.PRF != 15625 {
		t.Fatalf("radar: %+v\n", cfg.Radar)
	}
	if cfg.Radar.Timeout != 250*time.Millisecond {
		t.Fatalf("timeout: %s\n", cfg.Radar.Timeout)
	}
	if cfg.Waveform.Type != "frank" || cfg.Waveform.Length != 16 || cfg.Waveform.SamplesPerChip != 2 {
		t.Fatalf("waveform: %+v\n", cfg.Waveform)
	}
	if cfg.CFAR.TrainRange != 8 || cfg.CFAR.Pfa != 1e-3 {
		t.Fatalf("cfar: %+v\n", cfg.CFAR)
	}
	if !cfg.Range.Enabled || cfg.Range.MinRange != 150 || cfg.Range.MaxRange != 3000 {
		t.Fatalf("range: %+v\n", cfg.Range)
	}
	if cfg.Report.MQTT.Topic != "radar/test" {
		t.Fatalf("mqtt: %+v\n", cfg.Report.MQTT)
	}

	// Sections absent from the file keep their defaults.
	if cfg.CPI.Pulses != 8 || cfg.Doppler.Size != 8 || cfg.Compress.Backend != "gonum" {
		t.Fatalf("defaults overwritten: %+v %+v %+v\n", cfg.CPI, cfg.Doppler, cfg.Compress)
	}

	targets := simTargets(cfg.Sim)
	if len(targets) != 2 || targets[1].Delay != 40 || targets[1].Doppler != 1000 || targets[1].Amplitude != 0.25 {
		t.Fatalf("targets: %+v\n", targets)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	var cfg Config
	if _, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"), &cfg); err == nil {
		t.Fatalf("expected error for missing config file\n")
	}
}

func TestMakeWaveform(t *testing.T) {
	var cfg Config
	setDefaultConfig(&cfg)
	keys := radar.DefaultKeys()

	p, err := makeWaveform(cfg, keys)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	if p.Len() != 128 {
		t.Fatalf("expected 128 sample pri, got %d\n", p.Len())
	}
	if n, _ := p.Meta.Int(keys.NonZero); n != 13 {
		t.Fatalf("expected 13 non-zero samples, got %d\n", n)
	}
	if ref := (waveform.Generator{Keys: keys}).Unpadded(p); ref.Len() != 13 {
		t.Fatalf("expected 13 sample matched filter reference, got %d\n", ref.Len())
	}

	cfg.Waveform = WaveformConfig{Type: "lfm", Bandwidth: 1e6, PulseWidth: 4e-6}
	if p, err = makeWaveform(cfg, keys); err != nil {
		t.Fatalf("%+v\n", err)
	}
	if n, _ := p.Meta.Int(keys.NonZero); n != 40 {
		t.Fatalf("expected 40 non-zero samples, got %d\n", n)
	}

	cfg.Waveform = WaveformConfig{Type: "costas", Length: 7}
	if _, err := makeWaveform(cfg, keys); err == nil {
		t.Fatalf("expected error for unknown waveform\n")
	}
}

func TestEnvOverride(t *testing.T) {
	defer func(prev string) { *device = prev }(*device)

	t.Setenv("PDRADAR_DEVICE", "rtltcp")
	EnvOverride()

	if *device != "rtltcp" {
		t.Fatalf("expected rtltcp, got %q\n", *device)
	}
}
