// accessd - authenticated, time-bounded network access control
// Copyright (C) 2026 accessd-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package metrics exposes Prometheus series for the access daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all accessd collectors.
var Registry = prometheus.NewRegistry()

var (
	// RequestsTotal counts processed datagrams by outcome.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessd_requests_total",
			Help: "Session requests processed, by outcome.",
		},
		[]string{"outcome"},
	)

	// ActiveLeases tracks the current lease table size.
	ActiveLeases = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "accessd_active_leases",
			Help: "Leases currently present in the lease table.",
		},
	)

	// HookRunsTotal counts hook executions by action and result.
	HookRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessd_hook_runs_total",
			Help: "Hook executions, by action (grant/revoke) and result.",
		},
		[]string{"action", "result"},
	)

	// HookDuration observes hook wall-clock time by action.
	HookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accessd_hook_duration_seconds",
			Help:    "Hook execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// StateWriteFailures counts failed replay-state persistence attempts.
	StateWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accessd_state_write_failures_total",
			Help: "Failed writes of the replay state file.",
		},
	)

	// DroppedDatagrams counts datagrams no trusted peer key could open.
	DroppedDatagrams = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accessd_dropped_datagrams_total",
			Help: "Datagrams dropped before authentication succeeded.",
		},
	)
)

func init() {
	Registry.MustRegister(
		RequestsTotal,
		ActiveLeases,
		HookRunsTotal,
		HookDuration,
		StateWriteFailures,
		DroppedDatagrams,
	)
}

// ObserveHook records one hook run.
func ObserveHook(action string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	HookRunsTotal.WithLabelValues(action, result).Inc()
	HookDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// Handler returns the HTTP handler for the accessd registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
