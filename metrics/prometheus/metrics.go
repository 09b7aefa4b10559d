// Package prometheus exposes the FTP server's metrics hook as
// Prometheus collectors.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label names used by the collectors.
const (
	labelCommand   = "command"
	labelSuccess   = "success"
	labelOperation = "operation"
	labelReason    = "reason"
	labelAccepted  = "accepted"
	labelUser      = "user"
)

// Collector implements server.MetricsCollector on Prometheus
// primitives.
type Collector struct {
	registry *prometheus.Registry

	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	transferBytes    *prometheus.CounterVec
	transferDuration *prometheus.HistogramVec
	connectionsTotal *prometheus.CounterVec
	authTotal        *prometheus.CounterVec
}

// NewCollector builds a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftpkit",
			Name:      "commands_total",
			Help:      "FTP commands dispatched, by verb and outcome.",
		}, []string{labelCommand, labelSuccess}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ftpkit",
			Name:      "command_duration_seconds",
			Help:      "Latency of FTP command handling.",
			Buckets:   prometheus.DefBuckets,
		}, []string{labelCommand}),
		transferBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftpkit",
			Name:      "transfer_bytes_total",
			Help:      "Bytes moved over data connections, by operation.",
		}, []string{labelOperation}),
		transferDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ftpkit",
			Name:      "transfer_duration_seconds",
			Help:      "Duration of data transfers.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{labelOperation}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftpkit",
			Name:      "connections_total",
			Help:      "Connection attempts, by acceptance and reason.",
		}, []string{labelAccepted, labelReason}),
		authTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftpkit",
			Name:      "authentications_total",
			Help:      "Authentication attempts, by outcome and user.",
		}, []string{labelSuccess, labelUser}),
	}

	registry.MustRegister(
		c.commandsTotal,
		c.commandDuration,
		c.transferBytes,
		c.transferDuration,
		c.connectionsTotal,
		c.authTotal,
	)
	return c
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (c *Collector) RecordCommand(cmd string, success bool, duration time.Duration) {
	c.commandsTotal.WithLabelValues(cmd, boolLabel(success)).Inc()
	c.commandDuration.WithLabelValues(cmd).Observe(duration.Seconds())
}

func (c *Collector) RecordTransfer(operation string, bytes int64, duration time.Duration) {
	c.transferBytes.WithLabelValues(operation).Add(float64(bytes))
	c.transferDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (c *Collector) RecordConnection(accepted bool, reason string) {
	c.connectionsTotal.WithLabelValues(boolLabel(accepted), reason).Inc()
}

func (c *Collector) RecordAuthentication(success bool, user string) {
	c.authTotal.WithLabelValues(boolLabel(success), user).Inc()
}

// Handler serves the collector's registry over HTTP.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
