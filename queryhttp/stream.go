package queryhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bernerdschaefer/eventsource"

	"github.com/Mode7Labs/raceway-sub002"
)

// streamEvent is the lightweight projection of an ingested Event published
// over `GET /events/stream` (spec.md §4.6's ambient SSE feed). It carries
// enough to render a live feed without shipping a whole event's payload
// bytes out over the wire a second time.
type streamEvent struct {
	EventId     raceway.EventId    `json:"event_id"`
	TraceId     raceway.TraceId    `json:"trace_id"`
	Kind        string             `json:"kind"`
	ServiceName string             `json:"service_name,omitempty"`
	InstanceId  raceway.InstanceId `json:"instance_id"`
	Timestamp   time.Time          `json:"timestamp"`
}

func newStreamEvent(e raceway.Event) streamEvent {
	return streamEvent{
		EventId:     e.Id,
		TraceId:     e.TraceId,
		Kind:        e.Kind.Name(),
		ServiceName: e.Metadata.ServiceName,
		InstanceId:  e.Metadata.InstanceId,
		Timestamp:   e.Timestamp,
	}
}

// streamSendBuffer bounds how many events a subscriber can lag behind
// before Publish starts dropping values for it.
const streamSendBuffer = 1000

// handleStream implements `GET /events/stream`: every event accepted by the
// ingestion pipeline, replayed from the recent-history ring buffer and then
// followed live, optionally filtered to one trace by `?trace_id=`.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	filterTraceId := raceway.TraceId(r.URL.Query().Get("trace_id"))
	allow := func(se streamEvent) bool {
		return filterTraceId == "" || se.TraceId == filterTraceId
	}

	eventsource.Handler(func(lastId string, encoder *eventsource.Encoder, stop <-chan bool) {
		for _, se := range s.replay.Recent(streamSendBuffer) {
			if !allow(se) {
				continue
			}
			if !encodeStreamEvent(encoder, se) {
				return
			}
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		ch := make(chan streamEvent, streamSendBuffer)
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.feed.Subscribe(ctx, allow, ch)
		}()

		for {
			select {
			case se := <-ch:
				if !encodeStreamEvent(encoder, se) {
					cancel()
					<-done
					return
				}
			case <-stop:
				cancel()
				<-done
				return
			case <-ctx.Done():
				<-done
				return
			}
		}
	}).ServeHTTP(w, r)
}

func encodeStreamEvent(encoder *eventsource.Encoder, se streamEvent) bool {
	data, err := json.Marshal(se)
	if err != nil {
		return true
	}
	return encoder.Encode(eventsource.Event{Type: "event", Data: data}) == nil
}
