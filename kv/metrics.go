// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package kv

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors for engine operations. The bolt
// and pebble engines increment FlushRetries; no engine observes OpLatency.
// Callers register Metrics.Registry() with their own exporter;
// internal/debughttp does not serve it.
type Metrics struct {
	OpLatency    *prometheus.HistogramVec
	FlushRetries prometheus.Counter
	registry     *prometheus.Registry
}

// NewMetrics builds a fresh, unregistered-with-default-registry metrics
// bundle, so multiple Engine instances in the same process (e.g. in tests)
// don't collide on prometheus's global registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		OpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vsdb",
			Subsystem: "engine",
			Name:      "op_latency_seconds",
			Help:      "Latency of engine operations by op name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		FlushRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsdb",
			Subsystem: "engine",
			Name:      "flush_retries_total",
			Help:      "Number of times a Flush call was retried after a transient backend error.",
		}),
		registry: reg,
	}
	reg.MustRegister(m.OpLatency, m.FlushRetries)
	return m
}

// Registry returns the Prometheus registry backing this metrics bundle.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
