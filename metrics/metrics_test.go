// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package metrics

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/blisspixel/deepr/mcp"
	"github.com/blisspixel/deepr/toolindex"
)

func TestTransportCollector(t *testing.T) {
	snapshot := mcp.StatsSnapshot{
		MessagesSent:     10,
		MessagesReceived: 12,
		RequestsSent:     3,
		RequestsReceived: 9,
		BytesSent:        2048,
		BytesReceived:    4096,
		Errors:           1,
		ActiveStreams:    2,
		Uptime:           90 * time.Second,
	}
	collector := NewTransportCollector("http", func() mcp.StatsSnapshot { return snapshot })

	expected := `
# HELP deepr_transport_active_streams Currently connected push subscribers.
# TYPE deepr_transport_active_streams gauge
deepr_transport_active_streams{transport="http"} 2
# HELP deepr_transport_bytes_received_total Payload bytes read by the transport.
# TYPE deepr_transport_bytes_received_total counter
deepr_transport_bytes_received_total{transport="http"} 4096
# HELP deepr_transport_bytes_sent_total Payload bytes written by the transport.
# TYPE deepr_transport_bytes_sent_total counter
deepr_transport_bytes_sent_total{transport="http"} 2048
# HELP deepr_transport_errors_total Protocol and handler errors observed by the transport.
# TYPE deepr_transport_errors_total counter
deepr_transport_errors_total{transport="http"} 1
# HELP deepr_transport_messages_received_total Messages read by the transport.
# TYPE deepr_transport_messages_received_total counter
deepr_transport_messages_received_total{transport="http"} 12
# HELP deepr_transport_messages_sent_total Messages written by the transport.
# TYPE deepr_transport_messages_sent_total counter
deepr_transport_messages_sent_total{transport="http"} 10
# HELP deepr_transport_requests_received_total Inbound messages that were requests.
# TYPE deepr_transport_requests_received_total counter
deepr_transport_requests_received_total{transport="http"} 9
# HELP deepr_transport_requests_sent_total Outbound messages that were requests.
# TYPE deepr_transport_requests_sent_total counter
deepr_transport_requests_sent_total{transport="http"} 3
# HELP deepr_transport_uptime_seconds Seconds since the transport started.
# TYPE deepr_transport_uptime_seconds gauge
deepr_transport_uptime_seconds{transport="http"} 90
`
	if err := testutil.CollectAndCompare(collector, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics:\n%v", err)
	}
	if got := testutil.CollectAndCount(collector); got != 9 {
		t.Errorf("collector produced %d metrics, want 9", got)
	}
}

func TestTransportCollectorReadsAtScrapeTime(t *testing.T) {
	var snapshot mcp.StatsSnapshot
	collector := NewTransportCollector("stdio", func() mcp.StatsSnapshot { return snapshot })

	errorsAt := func(want int) error {
		expected := `
# HELP deepr_transport_errors_total Protocol and handler errors observed by the transport.
# TYPE deepr_transport_errors_total counter
deepr_transport_errors_total{transport="stdio"} ` + strconv.Itoa(want) + `
`
		return testutil.CollectAndCompare(collector, strings.NewReader(expected), "deepr_transport_errors_total")
	}

	if err := errorsAt(0); err != nil {
		t.Fatalf("initial scrape:\n%v", err)
	}
	snapshot.Errors = 5
	if err := errorsAt(5); err != nil {
		t.Errorf("scrape after update:\n%v", err)
	}
}

func TestRegistryCollector(t *testing.T) {
	registry := toolindex.NewRegistry()
	registry.Register(toolindex.NewSchema("web_search", "Search the web.", nil, "search", toolindex.CostLow))
	registry.Register(toolindex.NewSchema("fetch_page", "Fetch a page.", nil, "fetch", toolindex.CostFree))

	collector := NewRegistryCollector(registry)
	expected := `
# HELP deepr_registry_tools Tools currently registered.
# TYPE deepr_registry_tools gauge
deepr_registry_tools 2
`
	if err := testutil.CollectAndCompare(collector, strings.NewReader(expected), "deepr_registry_tools"); err != nil {
		t.Errorf("unexpected metrics:\n%v", err)
	}
	if got := testutil.CollectAndCount(collector, "deepr_registry_schema_tokens"); got != 1 {
		t.Errorf("schema token gauge count = %d, want 1", got)
	}
}
