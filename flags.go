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
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bemasher/rtltcp/si"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/pdradar/report"
)

var configFilename = flag.String("config", "", "processing config file, searches /etc/pdradar and . for pdradar.{toml,yaml,json} if empty")
var calibFilename = flag.String("calibration", "calibration.yaml", "delay calibration table")
var calibrate = flag.Bool("calibrate", false, "measure the loopback delay of the radio, save it and exit")

var device = flag.String("device", "sim", "radio to use: sim or rtltcp")
var serverAddr = flag.String("server", "127.0.0.1:1234", "address or hostname of rtl_tcp instance")

var sampleRate si.ScientificNotation
var centerFreq si.ScientificNotation

var timeLimit = flag.Duration("duration", 0, "time to run for, 0 for infinite, ex. 1h5m10s")

var metricsAddr = flag.String("metrics", ":6060", "listen address for /metrics, /detections and pprof, empty to disable")
var websocket = flag.Bool("websocket", false, "stream detections to websocket clients on /detections")
var mqttBroker = flag.String("mqtt", "", "mqtt broker url to publish detections to, ex. tcp://localhost:1883")
var csvFilename = flag.String("csv", "", "csv file to append detections to, - for stdout")

var logLevel = flag.String("loglevel", "info", "log level: debug, info, warn or error")
var version = flag.Bool("version", false, "display build date and commit hash")

func RegisterFlags() {
	flag.Var(&sampleRate, "samplerate", "sample rate, overrides radar.sample_rate")
	flag.Var(&centerFreq, "centerfreq", "center frequency, overrides radar.frequency")

	deviceFlags := map[string]bool{
		"server": true,
	}

	printDefaults := func(validFlags map[string]bool, inclusion bool) {
		flag.CommandLine.VisitAll(func(f *flag.Flag) {
			if validFlags[f.Name] != inclusion {
				return
			}

			format := "  -%s=%s: %s\n"
			fmt.Fprintf(os.Stderr, format, f.Name, f.Value, f.Usage)
		})
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		printDefaults(deviceFlags, false)

		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "rtltcp specific:")
		printDefaults(deviceFlags, true)
	}
}

// EnvOverride sets flags from PDRADAR_<FLAG> environment variables.
func EnvOverride() {
	flag.VisitAll(func(f *flag.Flag) {
		envName := "PDRADAR_" + strings.ToUpper(f.Name)
		flagValue := os.Getenv(envName)
		if flagValue != "" {
			if err := flag.Set(f.Name, flagValue); err != nil {
				logrus.Warnf(
					"Environment variable %q failed to override flag %q with value %q: %q\n",
					envName, f.Name, flagValue, err,
				)
			} else {
				logrus.Infof("Environment variable %q overrides flag %q with %q\n", envName, f.Name, flagValue)
			}
		}
	})
}

// HandleFlags applies flags that override the config file and configures
// logging.
func HandleFlags(cfg *Config) error {
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "samplerate":
			cfg.Radar.SampleRate = float64(sampleRate)
		case "centerfreq":
			cfg.Radar.Frequency = float64(centerFreq)
		}
	})

	return nil
}

// nopCloser keeps sinks from closing stdout.
type nopCloser struct {
	io.Writer
}

// openSinks builds the detection sinks selected by flags.
func openSinks(cfg Config, log logrus.FieldLogger) (sinks report.Multi, hub *report.Hub, err error) {
	defer func() {
		if err != nil {
			sinks.Close()
		}
	}()

	sinks = append(sinks, report.Log{Log: log.WithField("sink", "log")})

	switch *csvFilename {
	case "":
	case "-":
		c, err := report.NewCSV(nopCloser{os.Stdout})
		if err != nil {
			return sinks, nil, err
		}
		sinks = append(sinks, c)
	default:
		f, err := os.OpenFile(*csvFilename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return sinks, nil, err
		}
		c, err := report.NewCSV(f)
		if err != nil {
			f.Close()
			return sinks, nil, err
		}
		sinks = append(sinks, c)
	}

	if *mqttBroker != "" {
		mqttCfg := cfg.Report.MQTT
		mqttCfg.Broker = *mqttBroker
		m, err := report.DialMQTT(mqttCfg, log)
		if err != nil {
			return sinks, nil, err
		}
		sinks = append(sinks, m)
	}

	if *websocket {
		hub = report.NewHub(log)
		sinks = append(sinks, hub)
	}

	return sinks, hub, nil
}
