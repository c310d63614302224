package queryhttp

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Mode7Labs/raceway-sub002"
)

func newValidEvent(id, traceId, instance string) *raceway.Event {
	return &raceway.Event{
		Id:        raceway.EventId(id),
		TraceId:   raceway.TraceId(traceId),
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Kind: raceway.EventKind{
			StateChange: &raceway.StateChangeData{Variable: "balance", AccessType: raceway.AccessWrite},
		},
		Metadata: raceway.EventMetadata{InstanceId: raceway.InstanceId(instance), ServiceName: "ledger"},
	}
}

func encodeBatch(t *testing.T, events ...*raceway.Event) []byte {
	t.Helper()
	raws := make([]json.RawMessage, 0, len(events))
	for _, e := range events {
		b, err := raceway.Encode(e)
		if err != nil {
			t.Fatalf("encode event: %v", err)
		}
		raws = append(raws, b)
	}
	body, err := json.Marshal(raceway.Batch{Events: raws})
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}
	return body
}

func TestHandleIngestAcceptsValidBatch(t *testing.T) {
	s := newTestServer()

	traceId := string(raceway.NewTraceId())
	body := encodeBatch(t, newValidEvent(string(raceway.NewEventId()), traceId, "inst-1"))

	req := httptest.NewRequest("POST", "/events", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200; body=%s", rr.Code, rr.Body.String())
	}

	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !env.Success {
		t.Fatalf("expected success, got error %v", env.Error)
	}
}

func TestHandleIngestReportsRejectionWithOriginalBatchIndex(t *testing.T) {
	s := newTestServer()

	traceId := string(raceway.NewTraceId())
	goodEvent := newValidEvent(string(raceway.NewEventId()), traceId, "inst-1")
	goodRaw, err := raceway.Encode(goodEvent)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Position 0 is malformed JSON (fails Decode); position 1 is valid. The
	// rejected entry for position 0 must report index 0, not an index
	// shifted by the earlier decode failure.
	body, err := json.Marshal(raceway.Batch{
		Events: []json.RawMessage{json.RawMessage(`{not valid json`), goodRaw},
	})
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}

	req := httptest.NewRequest("POST", "/events", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	var env struct {
		Success bool `json:"success"`
		Data    ingestResponse
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}

	if env.Data.Accepted != 1 {
		t.Fatalf("accepted = %d, want 1", env.Data.Accepted)
	}
	if len(env.Data.Rejected) != 1 || env.Data.Rejected[0].Index != 0 {
		t.Fatalf("rejected = %+v, want one entry at index 0", env.Data.Rejected)
	}
}

// TestHandleIngestTranslatesPipelineRejectionIndex covers the case a
// pipeline-level rejection (as opposed to a decode failure) must still be
// reported against its position in the original request batch, even when an
// earlier item in that batch failed to decode.
func TestHandleIngestTranslatesPipelineRejectionIndex(t *testing.T) {
	s := newTestServer()

	traceId := string(raceway.NewTraceId())
	parentId := string(raceway.NewEventId())
	parent := newValidEvent(parentId, traceId, "inst-a")

	// child references parent but advances only its own instance's clock
	// component, so the parent/child causality comparison is concurrent,
	// not less-than: the graph refuses it as a would-be cycle.
	child := newValidEvent(string(raceway.NewEventId()), traceId, "inst-b")
	pid := raceway.EventId(parentId)
	child.ParentId = &pid

	parentRaw, err := raceway.Encode(parent)
	if err != nil {
		t.Fatalf("encode parent: %v", err)
	}
	childRaw, err := raceway.Encode(child)
	if err != nil {
		t.Fatalf("encode child: %v", err)
	}

	body, err := json.Marshal(raceway.Batch{
		Events: []json.RawMessage{json.RawMessage(`{not valid json`), parentRaw, childRaw},
	})
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}

	req := httptest.NewRequest("POST", "/events", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	var env struct {
		Success bool `json:"success"`
		Data    ingestResponse
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}

	if env.Data.Accepted != 1 {
		t.Fatalf("accepted = %d, want 1 (parent only)", env.Data.Accepted)
	}
	if len(env.Data.Rejected) != 2 {
		t.Fatalf("rejected = %+v, want 2 entries", env.Data.Rejected)
	}

	byIndex := map[int]ingestRejection{}
	for _, rej := range env.Data.Rejected {
		byIndex[rej.Index] = rej
	}
	if _, ok := byIndex[0]; !ok {
		t.Errorf("expected a rejection at original batch index 0 (decode failure), got %+v", env.Data.Rejected)
	}
	if _, ok := byIndex[2]; !ok {
		t.Errorf("expected the cycle rejection at original batch index 2, got %+v", env.Data.Rejected)
	}
}

func TestHandleIngestRejectsEventMissingInstanceId(t *testing.T) {
	s := newTestServer()

	traceId := string(raceway.NewTraceId())
	e := newValidEvent(string(raceway.NewEventId()), traceId, "")
	body := encodeBatch(t, e)

	req := httptest.NewRequest("POST", "/events", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	var env struct {
		Success bool `json:"success"`
		Data    ingestResponse
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Data.Accepted != 0 || len(env.Data.Rejected) != 1 {
		t.Fatalf("got accepted=%d rejected=%v, want 0 accepted and 1 rejection", env.Data.Accepted, env.Data.Rejected)
	}
}

func TestHandleIngestMalformedBodyIsBadRequest(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest("POST", "/events", bytes.NewReader([]byte("not json at all")))
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	if rr.Code != 400 {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}
