// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package streamhop

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type proxyMetrics struct {
	sessions prometheus.Counter
	active   prometheus.Gauge
	rejected prometheus.Counter
	errors   *prometheus.CounterVec
	dnsHits  prometheus.Counter
	dnsMiss  prometheus.Counter
	bytes    *prometheus.CounterVec
	spurious *prometheus.CounterVec
}

func newProxyMetrics(r prometheus.Registerer, namespace string) *proxyMetrics {
	if r == nil {
		r = prometheus.NewRegistry() // This registry will be discarded.
	}
	f := promauto.With(r)

	return &proxyMetrics{
		sessions: f.NewCounter(prometheus.CounterOpts{
			Name:      "sessions_total",
			Namespace: namespace,
			Help:      "Number of accepted proxy sessions",
		}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Name:      "sessions_active",
			Namespace: namespace,
			Help:      "Number of sessions currently live",
		}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Name:      "sessions_rejected_total",
			Namespace: namespace,
			Help:      "Number of connections dropped because the session pool was exhausted",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name:      "errors_total",
			Namespace: namespace,
			Help:      "Number of session errors",
		}, []string{"reason"}),
		dnsHits: f.NewCounter(prometheus.CounterOpts{
			Name:      "dns_cache_hits_total",
			Namespace: namespace,
			Help:      "Number of name cache hits",
		}),
		dnsMiss: f.NewCounter(prometheus.CounterOpts{
			Name:      "dns_cache_misses_total",
			Namespace: namespace,
			Help:      "Number of name cache misses",
		}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Name:      "bytes_transferred_total",
			Namespace: namespace,
			Help:      "Bytes moved through the proxy",
		}, []string{"direction"}),
		spurious: f.NewCounterVec(prometheus.CounterOpts{
			Name:      "spurious_wakeups_total",
			Namespace: namespace,
			Help:      "Readiness callbacks that found no work to do",
		}, []string{"kind"}),
	}
}

func (m *proxyMetrics) error(reason string) {
	m.errors.WithLabelValues(reason).Inc()
}
