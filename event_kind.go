package raceway

import (
	"encoding/json"
	"fmt"
)

// AccessType classifies a StateChange access.
type AccessType string

const (
	AccessRead       AccessType = "Read"
	AccessWrite      AccessType = "Write"
	AccessAtomicRead AccessType = "AtomicRead"
	AccessAtomicWrite AccessType = "AtomicWrite"
	AccessAtomicRMW  AccessType = "AtomicRMW"
)

// IsWrite reports whether the access type mutates the variable.
func (a AccessType) IsWrite() bool {
	switch a {
	case AccessWrite, AccessAtomicWrite, AccessAtomicRMW:
		return true
	default:
		return false
	}
}

// StateChangeData is the payload of a StateChange event.
type StateChangeData struct {
	Variable   string          `json:"variable"`
	OldValue   json.RawMessage `json:"old_value,omitempty"`
	NewValue   json.RawMessage `json:"new_value,omitempty"`
	Location   string          `json:"location,omitempty"`
	AccessType AccessType      `json:"access_type"`
}

// FunctionCallData is the payload of a FunctionCall event.
type FunctionCallData struct {
	FunctionName string          `json:"function_name"`
	Module       string          `json:"module,omitempty"`
	Args         json.RawMessage `json:"args,omitempty"`
	File         string          `json:"file,omitempty"`
	Line         int             `json:"line,omitempty"`
}

// AsyncSpawnData is the payload of an AsyncSpawn event.
type AsyncSpawnData struct {
	TaskId    string `json:"task_id"`
	SpawnedBy string `json:"spawned_by,omitempty"`
}

// AsyncAwaitData is the payload of an AsyncAwait event.
type AsyncAwaitData struct {
	FutureId string `json:"future_id"`
	AwaitedAt string `json:"awaited_at,omitempty"`
}

// LockData is the shared payload of LockAcquire and LockRelease events.
type LockData struct {
	LockId   string `json:"lock_id"`
	LockType string `json:"lock_type,omitempty"`
	Location string `json:"location,omitempty"`
}

// HTTPRequestData is the payload of an HttpRequest event.
type HTTPRequestData struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// HTTPResponseData is the payload of an HttpResponse event.
type HTTPResponseData struct {
	Status     int               `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       json.RawMessage   `json:"body,omitempty"`
	DurationMs uint64            `json:"duration_ms,omitempty"`
}

// ErrorData is the payload of an Error event.
type ErrorData struct {
	ErrorType  string `json:"error_type"`
	Message    string `json:"message"`
	StackTrace string `json:"stack_trace,omitempty"`
}

// CustomData is the payload of a Custom event. The engine never introspects
// Data; it is opaque as far as analysis is concerned.
type CustomData struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EventKind is the closed tagged variant of spec.md §3.2. Exactly one field is
// set for any valid, decoded Kind.
type EventKind struct {
	StateChange  *StateChangeData  `json:"-"`
	FunctionCall *FunctionCallData `json:"-"`
	AsyncSpawn   *AsyncSpawnData   `json:"-"`
	AsyncAwait   *AsyncAwaitData   `json:"-"`
	LockAcquire  *LockData         `json:"-"`
	LockRelease  *LockData         `json:"-"`
	HTTPRequest  *HTTPRequestData  `json:"-"`
	HTTPResponse *HTTPResponseData `json:"-"`
	Error        *ErrorData        `json:"-"`
	Custom       *CustomData       `json:"-"`
}

// Name returns the wire name of whichever variant is set, or "" if none is.
func (k EventKind) Name() string {
	switch {
	case k.StateChange != nil:
		return "StateChange"
	case k.FunctionCall != nil:
		return "FunctionCall"
	case k.AsyncSpawn != nil:
		return "AsyncSpawn"
	case k.AsyncAwait != nil:
		return "AsyncAwait"
	case k.LockAcquire != nil:
		return "LockAcquire"
	case k.LockRelease != nil:
		return "LockRelease"
	case k.HTTPRequest != nil:
		return "HttpRequest"
	case k.HTTPResponse != nil:
		return "HttpResponse"
	case k.Error != nil:
		return "Error"
	case k.Custom != nil:
		return "Custom"
	default:
		return ""
	}
}

// IsStateChange reports whether this is a StateChange event, which is the
// only kind analysis considers for race detection and audit trails.
func (k EventKind) IsStateChange() bool { return k.StateChange != nil }

// IsLockAcquire reports whether this is a LockAcquire event.
func (k EventKind) IsLockAcquire() bool { return k.LockAcquire != nil }

// IsLockRelease reports whether this is a LockRelease event.
func (k EventKind) IsLockRelease() bool { return k.LockRelease != nil }

// MarshalJSON implements the `{ "<EventKind>": {...} }` wire shape.
func (k EventKind) MarshalJSON() ([]byte, error) {
	name := k.Name()
	if name == "" {
		return nil, fmt.Errorf("event kind: no variant set")
	}

	var payload any
	switch name {
	case "StateChange":
		payload = k.StateChange
	case "FunctionCall":
		payload = k.FunctionCall
	case "AsyncSpawn":
		payload = k.AsyncSpawn
	case "AsyncAwait":
		payload = k.AsyncAwait
	case "LockAcquire":
		payload = k.LockAcquire
	case "LockRelease":
		payload = k.LockRelease
	case "HttpRequest":
		payload = k.HTTPRequest
	case "HttpResponse":
		payload = k.HTTPResponse
	case "Error":
		payload = k.Error
	case "Custom":
		payload = k.Custom
	}

	return json.Marshal(map[string]any{name: payload})
}

// UnmarshalJSON implements the `{ "<EventKind>": {...} }` wire shape.
// Unknown kind names produce an UnknownEventKind decode error; Custom is
// always accepted regardless of its Name field.
func (k *EventKind) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return &DecodeError{Reason: MalformedJson, Detail: err.Error()}
	}
	if len(raw) != 1 {
		return &DecodeError{Reason: MissingRequiredField, Detail: "kind: expected exactly one variant"}
	}

	for name, body := range raw {
		switch name {
		case "StateChange":
			var v StateChangeData
			if err := json.Unmarshal(body, &v); err != nil {
				return &DecodeError{Reason: MalformedJson, Detail: "StateChange: " + err.Error()}
			}
			k.StateChange = &v
		case "FunctionCall":
			var v FunctionCallData
			if err := json.Unmarshal(body, &v); err != nil {
				return &DecodeError{Reason: MalformedJson, Detail: "FunctionCall: " + err.Error()}
			}
			k.FunctionCall = &v
		case "AsyncSpawn":
			var v AsyncSpawnData
			if err := json.Unmarshal(body, &v); err != nil {
				return &DecodeError{Reason: MalformedJson, Detail: "AsyncSpawn: " + err.Error()}
			}
			k.AsyncSpawn = &v
		case "AsyncAwait":
			var v AsyncAwaitData
			if err := json.Unmarshal(body, &v); err != nil {
				return &DecodeError{Reason: MalformedJson, Detail: "AsyncAwait: " + err.Error()}
			}
			k.AsyncAwait = &v
		case "LockAcquire":
			var v LockData
			if err := json.Unmarshal(body, &v); err != nil {
				return &DecodeError{Reason: MalformedJson, Detail: "LockAcquire: " + err.Error()}
			}
			k.LockAcquire = &v
		case "LockRelease":
			var v LockData
			if err := json.Unmarshal(body, &v); err != nil {
				return &DecodeError{Reason: MalformedJson, Detail: "LockRelease: " + err.Error()}
			}
			k.LockRelease = &v
		case "HttpRequest":
			var v HTTPRequestData
			if err := json.Unmarshal(body, &v); err != nil {
				return &DecodeError{Reason: MalformedJson, Detail: "HttpRequest: " + err.Error()}
			}
			k.HTTPRequest = &v
		case "HttpResponse":
			var v HTTPResponseData
			if err := json.Unmarshal(body, &v); err != nil {
				return &DecodeError{Reason: MalformedJson, Detail: "HttpResponse: " + err.Error()}
			}
			k.HTTPResponse = &v
		case "Error":
			var v ErrorData
			if err := json.Unmarshal(body, &v); err != nil {
				return &DecodeError{Reason: MalformedJson, Detail: "Error: " + err.Error()}
			}
			k.Error = &v
		case "Custom":
			var v CustomData
			if err := json.Unmarshal(body, &v); err != nil {
				return &DecodeError{Reason: MalformedJson, Detail: "Custom: " + err.Error()}
			}
			k.Custom = &v
		default:
			return &DecodeError{Reason: UnknownEventKind, Detail: name}
		}
	}

	return nil
}
