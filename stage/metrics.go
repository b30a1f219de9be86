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

package stage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts messages flowing through stage runners. One Metrics value
// is shared by every runner of a pipeline; series are labelled by stage
// and port.
type Metrics struct {
	handled   *prometheus.CounterVec
	published *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	malformed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	queued    *prometheus.GaugeVec
	latency   *prometheus.HistogramVec
}

// NewMetrics registers the stage collectors with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		handled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdradar_stage_messages_handled_total",
				Help: "Messages passed to a stage handler",
			},
			[]string{"stage", "port"},
		),
		published: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdradar_stage_messages_published_total",
				Help: "Messages published by a stage",
			},
			[]string{"stage"},
		),
		dropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdradar_stage_messages_dropped_total",
				Help: "Messages dropped because an input queue was full",
			},
			[]string{"stage", "port"},
		),
		malformed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdradar_stage_messages_malformed_total",
				Help: "Messages rejected as malformed",
			},
			[]string{"stage", "port"},
		),
		failed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdradar_stage_failures_total",
				Help: "Fatal stage errors",
			},
			[]string{"stage"},
		),
		queued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pdradar_stage_queue_length",
				Help: "Messages waiting in a stage input queue",
			},
			[]string{"stage", "port"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdradar_stage_handle_seconds",
				Help:    "Time spent in a stage handler",
				Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
			},
			[]string{"stage"},
		),
	}
}
