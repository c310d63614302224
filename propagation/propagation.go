// Package propagation parses the headers SDKs use to carry causal context
// across process boundaries: W3C traceparent/tracestate, and the engine's
// own raceway-clock vector-clock header.
package propagation

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/Mode7Labs/raceway-sub002/vectorclock"
)

// TraceContext is the decoded form of the W3C traceparent/tracestate pair
// plus the engine's raceway-clock header, per spec.md §6.2.
type TraceContext struct {
	Version    string
	TraceIdHex string
	SpanIdHex  string
	Flags      string
	TraceState string
	Clock      vectorclock.Clock
}

var traceparentPattern = regexp.MustCompile(`^([0-9a-f]{2})-([0-9a-f]{32})-([0-9a-f]{16})-([0-9a-f]{2})$`)

// ErrMalformedTraceparent is returned when the traceparent header doesn't
// match the W3C `version-traceid-spanid-flags` shape.
var ErrMalformedTraceparent = errors.New("propagation: malformed traceparent header")

// ParseTraceparent parses the W3C traceparent header value.
func ParseTraceparent(value string) (version, traceIdHex, spanIdHex, flags string, err error) {
	m := traceparentPattern.FindStringSubmatch(value)
	if m == nil {
		return "", "", "", "", ErrMalformedTraceparent
	}
	return m[1], m[2], m[3], m[4], nil
}

// ParseClockHeader decodes the raceway-clock header, accepting either a bare
// JSON object or base64-encoded JSON, per spec.md §6.2.
func ParseClockHeader(value string) (vectorclock.Clock, error) {
	if value == "" {
		return nil, nil
	}

	raw := []byte(value)
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		raw = decoded
	}

	var m map[string]uint64
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("propagation: invalid raceway-clock header: %w", err)
	}

	clock := vectorclock.New()
	for k, v := range m {
		clock[k] = v
	}
	return clock, nil
}

// FromHeaders builds a TraceContext from the three propagation headers. Any
// header may be empty; a fully empty set of headers yields a zero-value,
// no-error TraceContext (a request simply wasn't part of a propagated
// trace).
func FromHeaders(traceparent, tracestate, racewayClock string) (TraceContext, error) {
	var tc TraceContext
	if traceparent != "" {
		version, traceIdHex, spanIdHex, flags, err := ParseTraceparent(traceparent)
		if err != nil {
			return TraceContext{}, err
		}
		tc.Version, tc.TraceIdHex, tc.SpanIdHex, tc.Flags = version, traceIdHex, spanIdHex, flags
	}
	tc.TraceState = tracestate

	clock, err := ParseClockHeader(racewayClock)
	if err != nil {
		return TraceContext{}, err
	}
	tc.Clock = clock

	return tc, nil
}

// EncodeClockHeader renders a vector clock as the raceway-clock header
// value, the inverse of ParseClockHeader's JSON form.
func EncodeClockHeader(clock vectorclock.Clock) (string, error) {
	data, err := json.Marshal(map[string]uint64(clock))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
