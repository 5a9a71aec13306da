// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes transport and registry counters to
// Prometheus. Collectors read their sources at scrape time, so the
// hot path pays only the atomic increments the transports already do.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blisspixel/deepr/mcp"
	"github.com/blisspixel/deepr/toolindex"
)

var (
	descMessagesSent = prometheus.NewDesc(
		"deepr_transport_messages_sent_total",
		"Messages written by the transport.",
		[]string{"transport"}, nil)
	descMessagesReceived = prometheus.NewDesc(
		"deepr_transport_messages_received_total",
		"Messages read by the transport.",
		[]string{"transport"}, nil)
	descRequestsSent = prometheus.NewDesc(
		"deepr_transport_requests_sent_total",
		"Outbound messages that were requests.",
		[]string{"transport"}, nil)
	descRequestsReceived = prometheus.NewDesc(
		"deepr_transport_requests_received_total",
		"Inbound messages that were requests.",
		[]string{"transport"}, nil)
	descBytesSent = prometheus.NewDesc(
		"deepr_transport_bytes_sent_total",
		"Payload bytes written by the transport.",
		[]string{"transport"}, nil)
	descBytesReceived = prometheus.NewDesc(
		"deepr_transport_bytes_received_total",
		"Payload bytes read by the transport.",
		[]string{"transport"}, nil)
	descErrors = prometheus.NewDesc(
		"deepr_transport_errors_total",
		"Protocol and handler errors observed by the transport.",
		[]string{"transport"}, nil)
	descActiveStreams = prometheus.NewDesc(
		"deepr_transport_active_streams",
		"Currently connected push subscribers.",
		[]string{"transport"}, nil)
	descUptime = prometheus.NewDesc(
		"deepr_transport_uptime_seconds",
		"Seconds since the transport started.",
		[]string{"transport"}, nil)

	descToolsRegistered = prometheus.NewDesc(
		"deepr_registry_tools",
		"Tools currently registered.",
		nil, nil)
	descRegistryTokens = prometheus.NewDesc(
		"deepr_registry_schema_tokens",
		"Estimated token size of all registered tool schemas.",
		nil, nil)
)

// TransportCollector exports one transport's counters. The source
// function is called at scrape time; both [mcp.StdioTransport.Stats]
// and [mcp.StreamableHTTPHandler.Stats] fit.
type TransportCollector struct {
	transport string
	source    func() mcp.StatsSnapshot
}

var _ prometheus.Collector = (*TransportCollector)(nil)

// NewTransportCollector labels every metric with the given transport
// name ("stdio", "http").
func NewTransportCollector(transport string, source func() mcp.StatsSnapshot) *TransportCollector {
	return &TransportCollector{transport: transport, source: source}
}

func (c *TransportCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descMessagesSent
	ch <- descMessagesReceived
	ch <- descRequestsSent
	ch <- descRequestsReceived
	ch <- descBytesSent
	ch <- descBytesReceived
	ch <- descErrors
	ch <- descActiveStreams
	ch <- descUptime
}

func (c *TransportCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source()
	counter := func(desc *prometheus.Desc, value int64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value), c.transport)
	}
	counter(descMessagesSent, snapshot.MessagesSent)
	counter(descMessagesReceived, snapshot.MessagesReceived)
	counter(descRequestsSent, snapshot.RequestsSent)
	counter(descRequestsReceived, snapshot.RequestsReceived)
	counter(descBytesSent, snapshot.BytesSent)
	counter(descBytesReceived, snapshot.BytesReceived)
	counter(descErrors, snapshot.Errors)
	ch <- prometheus.MustNewConstMetric(descActiveStreams, prometheus.GaugeValue, float64(snapshot.ActiveStreams), c.transport)
	ch <- prometheus.MustNewConstMetric(descUptime, prometheus.GaugeValue, snapshot.Uptime.Seconds(), c.transport)
}

// RegistryCollector exports tool-registry gauges.
type RegistryCollector struct {
	registry *toolindex.Registry
}

var _ prometheus.Collector = (*RegistryCollector)(nil)

func NewRegistryCollector(registry *toolindex.Registry) *RegistryCollector {
	return &RegistryCollector{registry: registry}
}

func (c *RegistryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descToolsRegistered
	ch <- descRegistryTokens
}

func (c *RegistryCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(descToolsRegistered, prometheus.GaugeValue, float64(c.registry.Count()))
	ch <- prometheus.MustNewConstMetric(descRegistryTokens, prometheus.GaugeValue, float64(c.registry.EstimateAllTokens()))
}
