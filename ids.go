package raceway

import (
	"fmt"

	"github.com/google/uuid"
)

// EventId uniquely identifies an Event. The wire format is a UUID string.
type EventId string

// TraceId identifies all events belonging to one logical request. The wire
// format is a UUID string.
type TraceId string

// SpanId identifies a work unit within a trace, in W3C traceparent form: 16
// lowercase hex characters (8 bytes).
type SpanId string

// InstanceId identifies a process instance (service+host+pid), assigned by the
// SDK. It is an opaque string as far as the engine is concerned.
type InstanceId string

// NewEventId returns a randomly generated EventId.
func NewEventId() EventId { return EventId(uuid.NewString()) }

// NewTraceId returns a randomly generated TraceId.
func NewTraceId() TraceId { return TraceId(uuid.NewString()) }

// Valid reports whether id is a well-formed UUID.
func (id EventId) Valid() bool { return id != "" && validUUID(string(id)) }

// Valid reports whether id is a well-formed UUID.
func (id TraceId) Valid() bool { return id != "" && validUUID(string(id)) }

// Valid reports whether id is 16 lowercase hex characters, per W3C span-id.
func (id SpanId) Valid() bool {
	if len(id) != 16 {
		return false
	}
	for _, r := range string(id) {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func (id EventId) String() string    { return string(id) }
func (id TraceId) String() string    { return string(id) }
func (id SpanId) String() string     { return string(id) }
func (id InstanceId) String() string { return string(id) }

// InvalidIdFormatError reports a malformed id encountered while decoding.
type InvalidIdFormatError struct {
	Field string
	Value string
}

func (e *InvalidIdFormatError) Error() string {
	return fmt.Sprintf("invalid id format: %s=%q", e.Field, e.Value)
}
