package queryhttp

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/analysis"
	"github.com/Mode7Labs/raceway-sub002/graph"
	"github.com/Mode7Labs/raceway-sub002/index"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

// traceSummary is the listTraces row shape of spec.md §4.6.
type traceSummary struct {
	TraceId      raceway.TraceId `json:"trace_id"`
	EventCount   int             `json:"event_count"`
	RootCount    int             `json:"root_count"`
	ServiceNames []string        `json:"service_names"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
}

func summarizeTrace(s *Server, traceId raceway.TraceId) traceSummary {
	events := s.Graph.TraceEvents(traceId)

	sum := traceSummary{TraceId: traceId, EventCount: len(events)}
	sum.RootCount = len(s.Graph.TraceRoots(traceId))

	services := map[string]struct{}{}
	for i, e := range events {
		if e.Metadata.ServiceName != "" {
			services[e.Metadata.ServiceName] = struct{}{}
		}
		if i == 0 || e.Timestamp.Before(sum.StartTime) {
			sum.StartTime = e.Timestamp
		}
		if i == 0 || e.Timestamp.After(sum.EndTime) {
			sum.EndTime = e.Timestamp
		}
	}
	for name := range services {
		sum.ServiceNames = append(sum.ServiceNames, name)
	}
	sort.Strings(sum.ServiceNames)

	return sum
}

// handleListTraces implements `GET /traces`: spec.md §4.6's listTraces,
// paginated and optionally filtered by a minimum event count.
func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := queryInt(q, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(q, "page_size", defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	minEvents := queryInt(q, "min_events", 0)

	var summaries []traceSummary
	for _, traceId := range s.Graph.TraceIds() {
		sum := summarizeTrace(s, traceId)
		if sum.EventCount < minEvents {
			continue
		}
		summaries = append(summaries, sum)
	}

	start := (page - 1) * pageSize
	if start > len(summaries) {
		start = len(summaries)
	}
	end := start + pageSize
	if end > len(summaries) {
		end = len(summaries)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"page":       page,
		"page_size":  pageSize,
		"total":      len(summaries),
		"traces":     summaries[start:end],
	})
}

// traceDetail is the getTrace response shape of spec.md §4.6: everything
// pre-computed and bundled in one call so a front-end doesn't need to chase
// several round-trips to render a trace view.
type traceDetail struct {
	TraceId      raceway.TraceId            `json:"trace_id"`
	Events       []raceway.Event            `json:"events"`
	Races        []analysis.RacePair        `json:"races"`
	CriticalPath analysis.CriticalPath      `json:"critical_path"`
	Anomalies    []analysis.Anomaly         `json:"anomalies"`
	Dependencies []serviceCallEdge          `json:"dependencies"`
	AuditTrails  map[string][]analysis.VariableAccess `json:"audit_trails"`
}

// handleGetTrace implements `GET /traces/{id}`.
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	traceId := raceway.TraceId(mux.Vars(r)["id"])

	events := s.Graph.TraceEvents(traceId)
	if len(events) == 0 {
		respondError(w, http.StatusNotFound, fmt.Errorf("trace not found: %s", traceId))
		return
	}

	sigma := queryFloat(r.URL.Query(), "sigma", 0)

	races := analysis.DetectRaces(s.Graph, traceId)
	anomalies := analysis.Anomalies(s.Graph, s.Baselines, traceId, sigma)

	if s.Metrics != nil {
		var critical, warning int
		for _, race := range races {
			switch race.Severity {
			case analysis.Critical:
				critical++
			case analysis.Warning:
				warning++
			}
		}
		s.Metrics.ObserveRaces(critical, warning)
		s.Metrics.ObserveAnomalies(len(anomalies))
	}

	detail := traceDetail{
		TraceId:      traceId,
		Events:       events,
		Races:        races,
		CriticalPath: analysis.ComputeCriticalPath(s.Graph, traceId),
		Anomalies:    anomalies,
		Dependencies: serviceCallEdgesForTrace(s.Graph, traceId, events),
		AuditTrails:  auditTrailsForTrace(s.Graph, s.Index, traceId, events),
	}

	respondJSON(w, http.StatusOK, detail)
}

// auditTrailsForTrace computes one audit trail per variable touched by the
// trace, per spec.md §4.6's "audit_trails (keyed by variable)".
func auditTrailsForTrace(g *graph.Graph, idx *index.Index, traceId raceway.TraceId, events []raceway.Event) map[string][]analysis.VariableAccess {
	variables := map[string]struct{}{}
	for _, e := range events {
		if e.Kind.IsStateChange() {
			variables[e.Kind.StateChange.Variable] = struct{}{}
		}
	}

	out := make(map[string][]analysis.VariableAccess, len(variables))
	for variable := range variables {
		out[variable] = analysis.AuditTrail(g, idx, variable, traceId)
	}
	return out
}

func queryInt(q map[string][]string, key string, fallback int) int {
	vs, ok := q[key]
	if !ok || len(vs) == 0 || vs[0] == "" {
		return fallback
	}
	n, err := strconv.Atoi(vs[0])
	if err != nil {
		return fallback
	}
	return n
}

func queryFloat(q map[string][]string, key string, fallback float64) float64 {
	vs, ok := q[key]
	if !ok || len(vs) == 0 || vs[0] == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(vs[0], 64)
	if err != nil {
		return fallback
	}
	return f
}
