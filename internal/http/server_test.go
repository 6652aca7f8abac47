package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/planhub/planhub/internal/auth"
	"github.com/planhub/planhub/internal/core"
	"github.com/planhub/planhub/internal/db"
	"github.com/planhub/planhub/internal/drive"
	"github.com/planhub/planhub/internal/localfs"
	"github.com/planhub/planhub/internal/memo"
	"github.com/planhub/planhub/internal/registry"
	"github.com/planhub/planhub/internal/tools"
	"github.com/planhub/planhub/internal/weather"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]*db.Participant
}

func (m *memStore) InsertParticipant(_ context.Context, p *db.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[p.Identity]; ok {
		return db.ErrDuplicateIdentity
	}
	cp := *p
	m.records[p.Identity] = &cp
	return nil
}

func (m *memStore) GetParticipant(_ context.Context, identity string) (*db.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[identity]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListParticipants(_ context.Context) ([]*db.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*db.Participant, 0, len(m.records))
	for _, p := range m.records {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (m *memStore) DeleteParticipant(_ context.Context, identity string) (*db.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[identity]
	if !ok {
		return nil, nil
	}
	delete(m.records, identity)
	return p, nil
}

type memAudit struct {
	mu      sync.Mutex
	records []*db.ToolCall
}

func (a *memAudit) InsertToolCall(_ context.Context, tc *db.ToolCall) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, tc)
	return nil
}

func (a *memAudit) ListToolCalls(_ context.Context, limit int) ([]*db.ToolCall, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.records
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func newTestServer(t *testing.T, verifier auth.TokenVerifier) (*Server, *memAudit) {
	t.Helper()

	docs, err := localfs.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("localfs: %v", err)
	}
	memos, err := memo.NewStore(filepath.Join(t.TempDir(), "memory.json"), 0)
	if err != nil {
		t.Fatalf("memo: %v", err)
	}

	audit := &memAudit{}
	dispatcher := tools.New(tools.Config{
		Registry:  registry.NewService(&memStore{records: make(map[string]*db.Participant)}),
		Drive:     drive.NewClient(drive.Config{Tokens: drive.NewStaticTokenSource("")}),
		Documents: docs,
		Memos:     memos,
		Weather:   weather.NewClient(weather.Config{}),
		Audit:     audit,
	})

	return NewServer(Config{
		Addr:       "127.0.0.1:0",
		Dispatcher: dispatcher,
		Audit:      audit,
		Verifier:   verifier,
	}), audit
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/metricsz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "planhub_") {
		t.Fatalf("metrics body missing planhub metrics: %q", rec.Body.String())
	}
}

func TestOperationsCatalogEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/operations", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Operations []tools.Operation `json:"operations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Operations) != 18 {
		t.Fatalf("want 18 operations, got %d", len(body.Operations))
	}
}

func TestDispatchReturnsEnvelopeWith200(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	// Success and tool-level failure both surface as HTTP 200 with an
	// envelope; only transport faults change the status code.
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/dispatch",
		`{"operation":"participant_add","arguments":{"identity":"a@example.com","name":"A"}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var env core.ToolEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.OK || env.Meta.Operation != "participant_add" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/dispatch",
		`{"operation":"participant_lookup","arguments":{"identity":"nobody@example.com"}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.OK || env.Error.Kind != core.KindNotFound {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestDispatchRejectsMalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "not-json"},
		{name: "unknown transport field", body: `{"operation":"participant_list","extra":true}`},
		{name: "trailing object", body: `{"operation":"participant_list"}{"again":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/dispatch", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
		})
	}
}

func TestDispatchPropagatesTraceID(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	header := http.Header{"X-Trace-Id": []string{"trace-abc"}}
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/dispatch",
		`{"operation":"participant_list"}`, header)

	var env core.ToolEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Meta.TraceID != "trace-abc" {
		t.Fatalf("trace id = %q", env.Meta.TraceID)
	}
}

func TestToolCallsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/dispatch",
		`{"operation":"participant_list"}`, nil)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/tool_calls", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 {
		t.Fatalf("want one audited call, got %d", body.Count)
	}

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/tool_calls?limit=0", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit=0 status = %d", rec.Code)
	}
}

func TestBearerAuthGuardsAPI(t *testing.T) {
	verifier := auth.NewJWTVerifier([]byte("planhub-test-secret"))
	srv, _ := newTestServer(t, verifier)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/dispatch",
		`{"operation":"participant_list"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}

	header := http.Header{"Authorization": []string{"Bearer bogus"}}
	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/dispatch",
		`{"operation":"participant_list"}`, header)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", rec.Code)
	}

	token, err := verifier.Generate("agent-planner", time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	header = http.Header{"Authorization": []string{"Bearer " + token}}
	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/dispatch",
		`{"operation":"participant_list"}`, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Health stays open for probes.
	rec = doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}
