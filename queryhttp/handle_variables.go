package queryhttp

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/analysis"
)

// handleAuditTrail implements `GET /variables/{name}/audit`: a supplement to
// the operation list of spec.md §4.6 that exposes analysis.AuditTrail
// (§4.5.4) directly, rather than only folded into getTrace. An optional
// `?trace_id=` query param restricts the trail to one trace.
func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	variable := mux.Vars(r)["name"]
	traceId := raceway.TraceId(r.URL.Query().Get("trace_id"))

	trail := analysis.AuditTrail(s.Graph, s.Index, variable, traceId)
	respondJSON(w, http.StatusOK, trail)
}
