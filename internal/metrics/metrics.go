// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics provides Prometheus metrics for the aidev server and stores.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidev_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aidev_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	fileOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidev_file_operations_total",
			Help: "File operations applied to projects",
		},
		[]string{"op"},
	)

	previewHandlesLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aidev_preview_handles_live",
			Help: "Preview documents currently published",
		},
	)

	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidev_tool_calls_total",
			Help: "Tool calls dispatched from assistant output",
		},
		[]string{"tool", "outcome"},
	)

	chatExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidev_chat_exchanges_total",
			Help: "Completed chat exchanges by provider",
		},
		[]string{"provider", "outcome"},
	)

	kvOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aidev_kv_operation_duration_seconds",
			Help:    "Key-value substrate operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	kvOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidev_kv_operations_total",
			Help: "Key-value substrate operations",
		},
		[]string{"backend", "op", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordFileOperation counts one applied create, update, delete or mkdir.
func RecordFileOperation(op string) {
	fileOperationsTotal.WithLabelValues(op).Inc()
}

// SetPreviewHandles reports the number of live preview handles.
func SetPreviewHandles(n int) {
	previewHandlesLive.Set(float64(n))
}

// RecordToolCall counts a dispatched tool call.
func RecordToolCall(tool string, ok bool) {
	toolCallsTotal.WithLabelValues(tool, outcome(ok)).Inc()
}

// RecordChatExchange counts a finished exchange with a provider.
func RecordChatExchange(provider string, ok bool) {
	chatExchangesTotal.WithLabelValues(provider, outcome(ok)).Inc()
}

// RecordKVOperation records latency and outcome of a substrate call.
func RecordKVOperation(backend, op string, duration time.Duration, err error) {
	kvOperationDuration.WithLabelValues(backend, op).Observe(duration.Seconds())
	kvOperationsTotal.WithLabelValues(backend, op, outcome(err == nil)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request metrics. The path label is the matched route
// pattern so ids do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
	})
}
