package telemetry

import (
	"strings"
	"testing"
	"time"
)

func TestRenderPrometheusLabelOrderingStable(t *testing.T) {
	defaultRegistry = newRegistry()

	IncToolCall("participant_add", "ok")
	IncToolCall("participant_add", "duplicate_identity")
	IncToolCall("gdrive_upload_file", "ok")
	ObserveToolDuration("participant_add", 50*time.Millisecond)
	IncRemoteAPIError("drive", 503)
	IncRemoteAPIError("drive", 404)
	IncRemoteAPIError("weather", 0)
	IncAuditWriteFailure()

	out := RenderPrometheus()

	dup := strings.Index(out, `planhub_tool_calls_total{operation="participant_add",status="duplicate_identity"} 1`)
	ok := strings.Index(out, `planhub_tool_calls_total{operation="participant_add",status="ok"} 1`)
	if dup < 0 || ok < 0 {
		t.Fatal("tool call metrics missing from output")
	}
	if dup >= ok {
		t.Fatal("tool call statuses are not rendered in stable lexical order")
	}

	if !strings.Contains(out, `planhub_tool_duration_seconds_bucket{operation="participant_add",le="0.1"} 1`) {
		t.Fatal("duration bucket missing from output")
	}

	drive404 := strings.Index(out, `planhub_remote_api_errors_total{service="drive",status_code="404"} 1`)
	drive503 := strings.Index(out, `planhub_remote_api_errors_total{service="drive",status_code="503"} 1`)
	if drive404 < 0 || drive503 < 0 {
		t.Fatal("remote api error metrics missing from output")
	}
	if drive404 >= drive503 {
		t.Fatal("status codes are not rendered in ascending order")
	}
	if !strings.Contains(out, `planhub_remote_api_errors_total{service="weather",status_code="0"} 1`) {
		t.Fatal("transport failure counter missing from output")
	}

	if !strings.Contains(out, "planhub_audit_write_failures_total 1") {
		t.Fatal("audit write failure counter missing from output")
	}
}
