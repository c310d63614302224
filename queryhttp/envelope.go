package queryhttp

import (
	"encoding/json"
	"net/http"
)

// envelope is the `{success, data?, error?}` wire shape of spec.md §6.3.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// respondJSON writes data wrapped in a successful envelope.
func respondJSON(w http.ResponseWriter, code int, data any) {
	writeEnvelope(w, code, envelope{Success: true, Data: data})
}

// respondError writes an error message wrapped in a failed envelope.
func respondError(w http.ResponseWriter, code int, err error) {
	writeEnvelope(w, code, envelope{Success: false, Error: err.Error()})
}

func writeEnvelope(w http.ResponseWriter, code int, env envelope) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.Encode(env)
}
