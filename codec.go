package raceway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mode7Labs/raceway-sub002/vectorclock"
)

// DecodeReason enumerates the closed set of wire-decode failures from
// spec.md §4.1.
type DecodeReason string

const (
	MalformedJson        DecodeReason = "MalformedJson"
	MissingRequiredField  DecodeReason = "MissingRequiredField"
	UnknownEventKind      DecodeReason = "UnknownEventKind"
	InvalidIdFormat       DecodeReason = "InvalidIdFormat"
	InvalidTimestamp      DecodeReason = "InvalidTimestamp"
	DurationOutOfRange    DecodeReason = "DurationOutOfRange"
)

// DecodeError is returned by Decode when an event envelope cannot be turned
// into a valid Event.
type DecodeError struct {
	Reason DecodeReason
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// wireEvent is the JSON shadow of Event, per spec.md §6.1.
type wireEvent struct {
	Id              string            `json:"id"`
	TraceId         string            `json:"trace_id"`
	ParentId        *string           `json:"parent_id,omitempty"`
	Timestamp       string            `json:"timestamp"`
	Kind            EventKind         `json:"kind"`
	Metadata        wireMetadata      `json:"metadata"`
	CausalityVector [][2]any          `json:"causality_vector,omitempty"`
	LockSet         []string          `json:"lock_set,omitempty"`
}

type wireMetadata struct {
	ThreadId    string            `json:"thread_id,omitempty"`
	InstanceId  string            `json:"instance_id"`
	ServiceName string            `json:"service_name,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	DurationNs  *uint64           `json:"duration_ns,omitempty"`
	Location    *string           `json:"location,omitempty"`

	DistributedSpanId string `json:"distributed_span_id,omitempty"`
	UpstreamSpanId    string `json:"upstream_span_id,omitempty"`
}

// maxDurationNs bounds metadata.duration_ns to reject clearly corrupt values
// (spec.md's DurationOutOfRange). A duration longer than 24h on a single
// event is not plausible instrumentation data.
const maxDurationNs = uint64(24 * time.Hour / time.Nanosecond)

// Decode parses a single wire event envelope.
func Decode(data []byte) (*Event, error) {
	var we wireEvent
	if err := json.Unmarshal(data, &we); err != nil {
		if de, ok := err.(*DecodeError); ok {
			return nil, de
		}
		return nil, &DecodeError{Reason: MalformedJson, Detail: err.Error()}
	}
	return we.toEvent()
}

func (we *wireEvent) toEvent() (*Event, error) {
	if we.Id == "" {
		return nil, &DecodeError{Reason: MissingRequiredField, Detail: "id"}
	}
	if we.TraceId == "" {
		return nil, &DecodeError{Reason: MissingRequiredField, Detail: "trace_id"}
	}
	if !EventId(we.Id).Valid() {
		return nil, &DecodeError{Reason: InvalidIdFormat, Detail: "id=" + we.Id}
	}
	if !TraceId(we.TraceId).Valid() {
		return nil, &DecodeError{Reason: InvalidIdFormat, Detail: "trace_id=" + we.TraceId}
	}

	var parentId *EventId
	if we.ParentId != nil && *we.ParentId != "" {
		if !EventId(*we.ParentId).Valid() {
			return nil, &DecodeError{Reason: InvalidIdFormat, Detail: "parent_id=" + *we.ParentId}
		}
		pid := EventId(*we.ParentId)
		parentId = &pid
	}

	if we.Metadata.InstanceId == "" {
		return nil, &DecodeError{Reason: MissingRequiredField, Detail: "metadata.instance_id"}
	}

	if we.Timestamp == "" {
		return nil, &DecodeError{Reason: MissingRequiredField, Detail: "timestamp"}
	}
	ts, err := time.Parse(time.RFC3339Nano, we.Timestamp)
	if err != nil {
		return nil, &DecodeError{Reason: InvalidTimestamp, Detail: we.Timestamp}
	}

	if we.Kind.Name() == "" {
		return nil, &DecodeError{Reason: MissingRequiredField, Detail: "kind"}
	}

	if we.Metadata.DurationNs != nil && *we.Metadata.DurationNs > maxDurationNs {
		return nil, &DecodeError{Reason: DurationOutOfRange, Detail: fmt.Sprintf("%d", *we.Metadata.DurationNs)}
	}

	clock, err := decodeCausalityVector(we.CausalityVector)
	if err != nil {
		return nil, err
	}

	location := ""
	if we.Metadata.Location != nil {
		location = *we.Metadata.Location
	}

	return &Event{
		Id:        EventId(we.Id),
		TraceId:   TraceId(we.TraceId),
		ParentId:  parentId,
		Timestamp: ts,
		Kind:      we.Kind,
		Metadata: EventMetadata{
			ThreadId:          we.Metadata.ThreadId,
			InstanceId:        InstanceId(we.Metadata.InstanceId),
			ServiceName:       we.Metadata.ServiceName,
			Environment:       we.Metadata.Environment,
			Tags:              we.Metadata.Tags,
			DurationNs:        we.Metadata.DurationNs,
			Location:          location,
			DistributedSpanId: we.Metadata.DistributedSpanId,
			UpstreamSpanId:    we.Metadata.UpstreamSpanId,
		},
		Causality: clock,
		LockSet:   we.LockSet,
	}, nil
}

func decodeCausalityVector(pairs [][2]any) (vectorclock.Clock, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	clock := vectorclock.New()
	for _, pair := range pairs {
		instance, ok := pair[0].(string)
		if !ok {
			return nil, &DecodeError{Reason: MalformedJson, Detail: "causality_vector: instance must be a string"}
		}
		count, ok := toUint64(pair[1])
		if !ok {
			return nil, &DecodeError{Reason: MalformedJson, Detail: "causality_vector: counter must be a non-negative integer"}
		}
		clock[instance] = count
	}
	return clock, nil
}

func toUint64(v any) (uint64, bool) {
	f, ok := v.(float64)
	if !ok || f < 0 {
		return 0, false
	}
	return uint64(f), true
}

// Encode renders an event back to its wire form. decode(encode(e)) = e for
// every event that decode can produce.
func Encode(e *Event) ([]byte, error) {
	we := wireEvent{
		Id:        string(e.Id),
		TraceId:   string(e.TraceId),
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		Kind:      e.Kind,
		Metadata: wireMetadata{
			ThreadId:          e.Metadata.ThreadId,
			InstanceId:        string(e.Metadata.InstanceId),
			ServiceName:       e.Metadata.ServiceName,
			Environment:       e.Metadata.Environment,
			Tags:              e.Metadata.Tags,
			DurationNs:        e.Metadata.DurationNs,
			DistributedSpanId: e.Metadata.DistributedSpanId,
			UpstreamSpanId:    e.Metadata.UpstreamSpanId,
		},
		LockSet: e.LockSet,
	}
	if e.ParentId != nil {
		pid := string(*e.ParentId)
		we.ParentId = &pid
	}
	if e.Metadata.Location != "" {
		loc := e.Metadata.Location
		we.Metadata.Location = &loc
	}
	if len(e.Causality) > 0 {
		we.CausalityVector = encodeCausalityVector(e.Causality)
	}
	return json.Marshal(we)
}

func encodeCausalityVector(clock vectorclock.Clock) [][2]any {
	pairs := make([][2]any, 0, len(clock))
	for instance, count := range clock {
		pairs = append(pairs, [2]any{instance, count})
	}
	return pairs
}

// Batch is the `POST /events` request envelope. Events are unordered within
// the batch; ordering is established by vector clocks, not array index.
type Batch struct {
	Events []json.RawMessage `json:"events"`
}

// DecodeBatch parses the batch envelope. Individual event decode failures are
// not reported here; callers decode each raw event themselves via Decode so
// that one malformed event doesn't prevent the rest of the batch from being
// processed (spec.md §4.4's per-event failure isolation).
func DecodeBatch(data []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &DecodeError{Reason: MalformedJson, Detail: err.Error()}
	}
	return &b, nil
}
