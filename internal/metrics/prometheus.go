package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPrometheus formats metrics in Prometheus text format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func FormatPrometheus(snap Snapshot) string {
	var sb strings.Builder

	sb.WriteString("# HELP agenthub_uptime_seconds Time since the hub started\n")
	sb.WriteString("# TYPE agenthub_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("agenthub_uptime_seconds %d\n", snap.Uptime))
	sb.WriteString("\n")

	sb.WriteString("# HELP agenthub_requests_total Total number of requests by endpoint\n")
	sb.WriteString("# TYPE agenthub_requests_total counter\n")
	for _, endpoint := range sortedKeys(snap.TotalRequests) {
		sb.WriteString(fmt.Sprintf("agenthub_requests_total{endpoint=%q} %d\n", endpoint, snap.TotalRequests[endpoint]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP agenthub_request_errors_total Total number of request errors by endpoint\n")
	sb.WriteString("# TYPE agenthub_request_errors_total counter\n")
	for _, endpoint := range sortedKeys(snap.RequestErrors) {
		sb.WriteString(fmt.Sprintf("agenthub_request_errors_total{endpoint=%q} %d\n", endpoint, snap.RequestErrors[endpoint]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP agenthub_requests_in_progress Current number of requests being processed\n")
	sb.WriteString("# TYPE agenthub_requests_in_progress gauge\n")
	for _, endpoint := range sortedKeys(snap.RequestsInProgress) {
		if snap.RequestsInProgress[endpoint] > 0 {
			sb.WriteString(fmt.Sprintf("agenthub_requests_in_progress{endpoint=%q} %d\n", endpoint, snap.RequestsInProgress[endpoint]))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP agenthub_request_duration_ms_total Total request duration in milliseconds\n")
	sb.WriteString("# TYPE agenthub_request_duration_ms_total counter\n")
	for _, endpoint := range sortedKeys(snap.TotalRequestsDur) {
		sb.WriteString(fmt.Sprintf("agenthub_request_duration_ms_total{endpoint=%q} %d\n", endpoint, snap.TotalRequestsDur[endpoint]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP agenthub_payment_required_total Calls rejected for missing or invalid payment evidence\n")
	sb.WriteString("# TYPE agenthub_payment_required_total counter\n")
	sb.WriteString(fmt.Sprintf("agenthub_payment_required_total %d\n", snap.PaymentRequired))
	sb.WriteString("\n")

	sb.WriteString("# HELP agenthub_upstream_responses_total Forwarded calls by upstream status code\n")
	sb.WriteString("# TYPE agenthub_upstream_responses_total counter\n")
	for _, status := range sortedKeys(snap.UpstreamStatuses) {
		sb.WriteString(fmt.Sprintf("agenthub_upstream_responses_total{status=%q} %d\n", status, snap.UpstreamStatuses[status]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP agenthub_upstream_errors_total Upstream transport failures and timeouts\n")
	sb.WriteString("# TYPE agenthub_upstream_errors_total counter\n")
	sb.WriteString(fmt.Sprintf("agenthub_upstream_errors_total %d\n", snap.UpstreamErrors))
	sb.WriteString("\n")

	sb.WriteString("# HELP agenthub_billed_calls_total Completed billable calls\n")
	sb.WriteString("# TYPE agenthub_billed_calls_total counter\n")
	sb.WriteString(fmt.Sprintf("agenthub_billed_calls_total %d\n", snap.BilledCalls))
	sb.WriteString("\n")

	sb.WriteString("# HELP agenthub_revenue_units_total Accumulated revenue in micro-units\n")
	sb.WriteString("# TYPE agenthub_revenue_units_total counter\n")
	sb.WriteString(fmt.Sprintf("agenthub_revenue_units_total %d\n", snap.RevenueUnits))
	sb.WriteString("\n")

	sb.WriteString("# HELP agenthub_billed_calls_by_service_total Completed billable calls by service\n")
	sb.WriteString("# TYPE agenthub_billed_calls_by_service_total counter\n")
	for _, id := range sortedKeys(snap.CallsByService) {
		sb.WriteString(fmt.Sprintf("agenthub_billed_calls_by_service_total{service=%q} %d\n", id, snap.CallsByService[id]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP agenthub_rate_limit_hits_total Total number of rate limit rejections\n")
	sb.WriteString("# TYPE agenthub_rate_limit_hits_total counter\n")
	sb.WriteString(fmt.Sprintf("agenthub_rate_limit_hits_total %d\n", snap.RateLimitHits))

	return sb.String()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
