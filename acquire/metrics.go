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

package acquire

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

type metrics struct {
	txSamples  prometheus.Counter
	rxSamples  prometheus.Counter
	txTimeouts prometheus.Counter
	rxTimeouts prometheus.Counter
	pulses     prometheus.Counter
	dropped    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pdradar",
			Subsystem: "acquire",
			Name:      name,
			Help:      help,
		})
	}

	return &metrics{
		txSamples:  counter("tx_samples_total", "Samples accepted by the transmit stream"),
		rxSamples:  counter("rx_samples_total", "Samples read from the receive stream"),
		txTimeouts: counter("tx_timeouts_total", "Transmit calls that timed out"),
		rxTimeouts: counter("rx_timeouts_total", "Receive calls that timed out"),
		pulses:     counter("pulses_total", "Pulses emitted"),
		dropped:    counter("pulses_dropped_total", "Pulses dropped by a full downstream queue"),
	}
}

// Stats summarizes an engine's activity.
type Stats struct {
	TxSamples  int64
	RxSamples  int64
	TxTimeouts int64
	RxTimeouts int64
	Pulses     int64
	Dropped    int64
}

func (s Stats) Fields() logrus.Fields {
	return logrus.Fields{
		"tx_samples":  s.TxSamples,
		"rx_samples":  s.RxSamples,
		"tx_timeouts": s.TxTimeouts,
		"rx_timeouts": s.RxTimeouts,
		"pulses":      s.Pulses,
		"dropped":     s.Dropped,
	}
}

type counters struct {
	txSamples, rxSamples   counter
	txTimeouts, rxTimeouts counter
	pulses, dropped        counter
}

func (c *counters) snapshot() Stats {
	return Stats{
		TxSamples:  c.txSamples.load(),
		RxSamples:  c.rxSamples.load(),
		TxTimeouts: c.txTimeouts.load(),
		RxTimeouts: c.rxTimeouts.load(),
		Pulses:     c.pulses.load(),
		Dropped:    c.dropped.load(),
	}
}
