package queryhttp

import (
	"fmt"
	"io"
	"net/http"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/analysis"
	"github.com/Mode7Labs/raceway-sub002/ingest"
	"github.com/Mode7Labs/raceway-sub002/internal/util"
	"github.com/Mode7Labs/raceway-sub002/propagation"
)

// ingestRejection mirrors ingest.Rejection's wire shape for the batch
// response (spec.md §4.6: `{accepted, rejected: [{index, reason}]}`). Index
// always refers to the event's position in the original request batch, even
// for events that failed to decode before reaching the pipeline.
type ingestRejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

type ingestResponse struct {
	Accepted int               `json:"accepted"`
	Rejected []ingestRejection `json:"rejected"`
}

// handleIngest implements `POST /events`: spec.md §4.6's ingest operation.
// Ingestion is fire-and-forget from the client's perspective — a
// structurally valid request always gets 200 OK, with per-event validation
// outcomes reported inline, except when the pipeline's bounded queue is
// full, which surfaces as 503 with Retry-After (spec.md §5).
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}

	batch, err := raceway.DecodeBatch(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	parentPayload, err := parentPayloadFromHeaders(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	hasParent := parentPayload.ParentSpanId != "" || len(parentPayload.ParentVC) > 0

	// batchIndex[i] maps events[i] back to its position in batch.Events, so
	// rejections the pipeline reports (indexed into events) and decode
	// failures (indexed into batch.Events) share one index space in the
	// response.
	events := make([]*raceway.Event, 0, len(batch.Events))
	batchIndex := make([]int, 0, len(batch.Events))
	rejected := make([]ingestRejection, 0)
	prop := ingest.Propagation{}

	for i, raw := range batch.Events {
		e, err := raceway.Decode(raw)
		if err != nil {
			rejected = append(rejected, ingestRejection{Index: i, Reason: "DecodeError", Detail: err.Error()})
			continue
		}
		if hasParent {
			prop[len(events)] = parentPayload
		}
		batchIndex = append(batchIndex, i)
		events = append(events, e)
	}

	res, err := s.Pipeline.Ingest(r.Context(), events, prop)
	if err == ingest.ErrOverloaded {
		w.Header().Set("retry-after", "1")
		if s.Metrics != nil {
			s.Metrics.ObserveOverloaded()
		}
		respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	rejectedSet := make(map[int]struct{}, len(res.Rejected))
	for _, rej := range res.Rejected {
		rejectedSet[rej.Index] = struct{}{}
		rejected = append(rejected, ingestRejection{
			Index:  batchIndex[rej.Index],
			Reason: string(rej.Reason),
			Detail: rej.Detail,
		})
		if s.Metrics != nil {
			s.Metrics.ObserveRejected(string(rej.Reason))
		}
	}

	for i, e := range events {
		if _, wasRejected := rejectedSet[i]; wasRejected {
			continue
		}
		s.publishIngested(newStreamEvent(*e))
		if s.Metrics != nil {
			s.Metrics.ObserveIngested(e.Kind.Name())
		}
	}

	if len(rejected) > 0 {
		decodeErrs := make([]error, 0, len(rejected))
		for _, rej := range rejected {
			if rej.Reason == "DecodeError" {
				decodeErrs = append(decodeErrs, fmt.Errorf("event %d: %s", rej.Index, rej.Detail))
			}
		}
		if len(decodeErrs) > 0 {
			s.Log.WithField("decode_errors", util.FlattenErrors(decodeErrs...)).
				WithFields(logrus.Fields{
					"accepted":   res.Accepted,
					"rejected":   len(rejected),
					"batch_size": util.HumanizeBytes(len(body)),
				}).
				Debug("batch ingested with decode failures")
		}
	}

	respondJSON(w, http.StatusOK, ingestResponse{Accepted: res.Accepted, Rejected: rejected})
}

// readBody reads the request body, transparently decompressing a gzip
// payload when Content-Encoding says so.
func readBody(r *http.Request) ([]byte, error) {
	body := io.Reader(http.MaxBytesReader(nil, r.Body, maxRequestBodySizeBytes))

	if r.Header.Get("content-encoding") == "gzip" {
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		body = zr
	}

	return io.ReadAll(body)
}

// parentPayloadFromHeaders extracts the distributed-trace propagation
// payload from the W3C/raceway-clock headers, per spec.md §6.2. Applied
// uniformly to every event in the batch, since the headers describe the
// single HTTP call the batch arrived on.
func parentPayloadFromHeaders(r *http.Request) (analysis.ParentPayload, error) {
	tc, err := propagation.FromHeaders(
		r.Header.Get("traceparent"),
		r.Header.Get("tracestate"),
		r.Header.Get("raceway-clock"),
	)
	if err != nil {
		return analysis.ParentPayload{}, err
	}
	return analysis.ParentPayload{
		ParentSpanId: tc.SpanIdHex,
		ParentVC:     tc.Clock,
	}, nil
}
