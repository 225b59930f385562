// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the daemon's process-wide counters as
// Prometheus collectors: connections accepted, requests dispatched per
// opcode, and the live instance-pool occupancy spec.md section 8's
// scenarios assert on as "native client count".
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the daemon's collectors under one registerer so a
// test can spin up an isolated set without colliding with
// prometheus.DefaultRegisterer.
type Registry struct {
	reg *prometheus.Registry

	Connections      prometheus.Gauge
	ActiveInstances  prometheus.Gauge
	SharedInstances  prometheus.Gauge
	RequestsTotal    *prometheus.CounterVec
	RequestErrors    *prometheus.CounterVec
}

// New builds a Registry with its own prometheus.Registry, so multiple
// daemons (or tests) in one process never collide on metric names.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cephfsproxyd",
			Name:      "connections_open",
			Help:      "Number of currently open client connections.",
		}),
		ActiveInstances: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cephfsproxyd",
			Name:      "instances_active",
			Help:      "Number of distinct mounted native client instances (primaries).",
		}),
		SharedInstances: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cephfsproxyd",
			Name:      "instances_shared",
			Help:      "Number of sessions currently sharing an existing primary instance.",
		}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cephfsproxyd",
			Name:      "requests_total",
			Help:      "Requests dispatched, by opcode.",
		}, []string{"opcode"}),
		RequestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cephfsproxyd",
			Name:      "request_errors_total",
			Help:      "Requests that returned a non-zero errno, by opcode.",
		}, []string{"opcode"}),
	}
}

// Handler serves the registry's collectors in the Prometheus text
// exposition format, suitable for mounting at e.g. /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
