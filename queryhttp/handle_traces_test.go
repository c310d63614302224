package queryhttp

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/ingest"
)

func seedTrace(t *testing.T, s *Server, traceId string, n int) {
	t.Helper()
	events := make([]*raceway.Event, 0, n)
	for i := 0; i < n; i++ {
		e := newValidEvent(string(raceway.NewEventId()), traceId, "inst-1")
		e.Timestamp = time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC)
		events = append(events, e)
	}
	if _, err := s.Pipeline.Ingest(context.Background(), events, ingest.Propagation{}); err != nil {
		t.Fatalf("seed ingest: %v", err)
	}
}

func TestHandleListTracesFiltersByMinEvents(t *testing.T) {
	s := newTestServer()
	seedTrace(t, s, string(raceway.NewTraceId()), 1)
	seedTrace(t, s, string(raceway.NewTraceId()), 5)

	req := httptest.NewRequest("GET", "/traces?min_events=3", nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	var env struct {
		Data struct {
			Total  int            `json:"total"`
			Traces []traceSummary `json:"traces"`
		}
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Total != 1 || len(env.Data.Traces) != 1 {
		t.Fatalf("got %+v, want exactly 1 trace with >= 3 events", env.Data)
	}
	if env.Data.Traces[0].EventCount != 5 {
		t.Errorf("event count = %d, want 5", env.Data.Traces[0].EventCount)
	}
}

func TestHandleListTracesPaginates(t *testing.T) {
	s := newTestServer()
	for i := 0; i < 3; i++ {
		seedTrace(t, s, string(raceway.NewTraceId()), 1)
	}

	req := httptest.NewRequest("GET", "/traces?page=1&page_size=2", nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	var env struct {
		Data struct {
			Total  int            `json:"total"`
			Traces []traceSummary `json:"traces"`
		}
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Total != 3 {
		t.Errorf("total = %d, want 3", env.Data.Total)
	}
	if len(env.Data.Traces) != 2 {
		t.Errorf("page length = %d, want 2", len(env.Data.Traces))
	}
}

func TestHandleGetTraceUnknownIdIsNotFound(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest("GET", "/traces/"+string(raceway.NewTraceId()), nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	if rr.Code != 404 {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestHandleGetTraceReturnsEventsAndCriticalPath(t *testing.T) {
	s := newTestServer()
	traceId := string(raceway.NewTraceId())
	seedTrace(t, s, traceId, 4)

	req := httptest.NewRequest("GET", "/traces/"+traceId, nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200; body=%s", rr.Code, rr.Body.String())
	}

	var env struct {
		Data traceDetail
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data.Events) != 4 {
		t.Errorf("events = %d, want 4", len(env.Data.Events))
	}
	if _, ok := env.Data.AuditTrails["balance"]; !ok {
		t.Errorf("expected an audit trail for 'balance', got %v", env.Data.AuditTrails)
	}
}
