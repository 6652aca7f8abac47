// Package telemetry keeps in-process counters for dispatched
// operations and remote API failures, rendered in Prometheus text
// format.
package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var defaultRegistry = newRegistry()

type registry struct {
	mu                  sync.Mutex
	toolCalls           map[string]map[string]int64
	toolDurationBuckets map[string][]int64
	remoteAPIErrors     map[string]map[int]int64
	auditWriteFailures  int64
}

func newRegistry() *registry {
	return &registry{
		toolCalls:           make(map[string]map[string]int64),
		toolDurationBuckets: make(map[string][]int64),
		remoteAPIErrors:     make(map[string]map[int]int64),
	}
}

// IncToolCall counts one dispatched operation by outcome status
// ("ok" or an error kind).
func IncToolCall(operation, status string) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.toolCalls[operation]; !ok {
		defaultRegistry.toolCalls[operation] = make(map[string]int64)
	}
	defaultRegistry.toolCalls[operation][status]++
}

// ObserveToolDuration records the wall time of one dispatched
// operation.
func ObserveToolDuration(operation string, d time.Duration) {
	buckets := []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}
	sec := d.Seconds()

	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.toolDurationBuckets[operation]; !ok {
		defaultRegistry.toolDurationBuckets[operation] = make([]int64, len(buckets)+1)
	}
	idx := len(buckets)
	for i, b := range buckets {
		if sec <= b {
			idx = i
			break
		}
	}
	defaultRegistry.toolDurationBuckets[operation][idx]++
}

// IncRemoteAPIError counts a failed remote call by service ("drive",
// "weather") and HTTP status; status 0 means the transport failed
// before any response.
func IncRemoteAPIError(service string, statusCode int) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.remoteAPIErrors[service]; !ok {
		defaultRegistry.remoteAPIErrors[service] = make(map[int]int64)
	}
	defaultRegistry.remoteAPIErrors[service][statusCode]++
}

// IncAuditWriteFailure counts a tool-call audit record that could not
// be persisted.
func IncAuditWriteFailure() {
	defaultRegistry.mu.Lock()
	defaultRegistry.auditWriteFailures++
	defaultRegistry.mu.Unlock()
}

func RenderPrometheus() string {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()

	var sb strings.Builder

	sb.WriteString("# TYPE planhub_tool_calls_total counter\n")
	for _, op := range sortedKeys(defaultRegistry.toolCalls) {
		for _, status := range sortedKeys(defaultRegistry.toolCalls[op]) {
			sb.WriteString(fmt.Sprintf("planhub_tool_calls_total{operation=\"%s\",status=\"%s\"} %d\n", op, status, defaultRegistry.toolCalls[op][status]))
		}
	}

	sb.WriteString("# TYPE planhub_tool_duration_seconds_bucket counter\n")
	bucketLabels := []string{"0.1", "0.5", "1", "2", "5", "10", "30", "60", "+Inf"}
	for _, op := range sortedKeys(defaultRegistry.toolDurationBuckets) {
		for i, v := range defaultRegistry.toolDurationBuckets[op] {
			sb.WriteString(fmt.Sprintf("planhub_tool_duration_seconds_bucket{operation=\"%s\",le=\"%s\"} %d\n", op, bucketLabels[i], v))
		}
	}

	sb.WriteString("# TYPE planhub_remote_api_errors_total counter\n")
	for _, service := range sortedKeys(defaultRegistry.remoteAPIErrors) {
		statusCodes := make([]int, 0, len(defaultRegistry.remoteAPIErrors[service]))
		for sc := range defaultRegistry.remoteAPIErrors[service] {
			statusCodes = append(statusCodes, sc)
		}
		sort.Ints(statusCodes)
		for _, sc := range statusCodes {
			sb.WriteString(fmt.Sprintf("planhub_remote_api_errors_total{service=\"%s\",status_code=\"%d\"} %d\n", service, sc, defaultRegistry.remoteAPIErrors[service][sc]))
		}
	}

	sb.WriteString("# TYPE planhub_audit_write_failures_total counter\n")
	sb.WriteString(fmt.Sprintf("planhub_audit_write_failures_total %d\n", defaultRegistry.auditWriteFailures))

	return sb.String()
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
