package queryhttp

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/graph"
)

// serviceCallEdge is one directed service-to-service call inferred from
// causal edges whose endpoints carry different metadata.service_name
// values — a ProgramOrder/Causal/Distributed edge crossing a service
// boundary is evidence of one service calling another.
type serviceCallEdge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	CallCount int    `json:"call_count"`
}

// serviceSummary is one row of getServices(), per spec.md §4.6.
type serviceSummary struct {
	Name       string `json:"name"`
	EventCount int    `json:"event_count"`
	TraceCount int    `json:"trace_count"`
}

// handleGetServices implements `GET /services`.
func (s *Server) handleGetServices(w http.ResponseWriter, r *http.Request) {
	eventCounts := map[string]int{}
	traceSets := map[string]map[raceway.TraceId]struct{}{}

	for _, traceId := range s.Graph.TraceIds() {
		for _, e := range s.Graph.TraceEvents(traceId) {
			name := e.Metadata.ServiceName
			if name == "" {
				continue
			}
			eventCounts[name]++
			if traceSets[name] == nil {
				traceSets[name] = map[raceway.TraceId]struct{}{}
			}
			traceSets[name][traceId] = struct{}{}
		}
	}

	summaries := make([]serviceSummary, 0, len(eventCounts))
	for name, count := range eventCounts {
		summaries = append(summaries, serviceSummary{
			Name:       name,
			EventCount: count,
			TraceCount: len(traceSets[name]),
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })

	respondJSON(w, http.StatusOK, summaries)
}

// handleServiceDependencies implements `GET /services/{name}/dependencies`.
func (s *Server) handleServiceDependencies(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	edges := serviceCallEdgesAcrossGraph(s.Graph)

	var dependencies, dependents []serviceCallEdge
	callCount := 0
	for _, edge := range edges {
		switch name {
		case edge.From:
			dependencies = append(dependencies, edge)
			callCount += edge.CallCount
		case edge.To:
			dependents = append(dependents, edge)
			callCount += edge.CallCount
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"service":      name,
		"dependencies": dependencies,
		"dependents":   dependents,
		"call_count":   callCount,
	})
}

// serviceCallEdgesAcrossGraph aggregates cross-service causal edges over
// every trace currently in the graph.
func serviceCallEdgesAcrossGraph(g *graph.Graph) []serviceCallEdge {
	counts := map[[2]string]int{}
	for _, traceId := range g.TraceIds() {
		for _, e := range g.TraceEvents(traceId) {
			tallyServiceCallEdges(g, e, counts)
		}
	}
	return flattenServiceCallEdges(counts)
}

// serviceCallEdgesForTrace restricts the same aggregation to one trace's
// events, for `GET /traces/{id}`'s "dependencies" field.
func serviceCallEdgesForTrace(g *graph.Graph, traceId raceway.TraceId, events []raceway.Event) []serviceCallEdge {
	counts := map[[2]string]int{}
	for _, e := range events {
		tallyServiceCallEdges(g, e, counts)
	}
	return flattenServiceCallEdges(counts)
}

func tallyServiceCallEdges(g *graph.Graph, e raceway.Event, counts map[[2]string]int) {
	from := e.Metadata.ServiceName
	if from == "" {
		return
	}
	for _, edge := range g.Successors(e.Id) {
		succ, err := g.GetEvent(edge.To)
		if err != nil {
			continue
		}
		to := succ.Metadata.ServiceName
		if to == "" || to == from {
			continue
		}
		counts[[2]string{from, to}]++
	}
}

func flattenServiceCallEdges(counts map[[2]string]int) []serviceCallEdge {
	edges := make([]serviceCallEdge, 0, len(counts))
	for pair, count := range counts {
		edges = append(edges, serviceCallEdge{From: pair[0], To: pair[1], CallCount: count})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}
