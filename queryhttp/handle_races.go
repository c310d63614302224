package queryhttp

import (
	"net/http"
	"sort"

	"github.com/Mode7Labs/raceway-sub002/analysis"
	"github.com/Mode7Labs/raceway-sub002/internal/util"
)

// handleGlobalRaces implements `GET /races`: spec.md §4.6's globalRaces.
func (s *Server) handleGlobalRaces(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, analysis.DetectGlobalRaces(s.Index))
}

// hotspotVariable is one row of systemHotspots' top_variables. AccessCountHuman
// is a compact K/M-suffixed rendering of AccessCount for dashboards that
// display it directly rather than reformatting it client-side.
type hotspotVariable struct {
	Variable         string `json:"variable"`
	AccessCount      int    `json:"access_count"`
	AccessCountHuman string `json:"access_count_human"`
}

// hotspotServiceCall is one row of systemHotspots' top_service_calls: a
// directed service-to-service edge ranked by how often it was observed.
type hotspotServiceCall struct {
	From      string `json:"from"`
	To        string `json:"to"`
	CallCount int    `json:"call_count"`
}

// topHotspotsLimit bounds both ranked lists returned by systemHotspots.
const topHotspotsLimit = 20

// handleSystemHotspots implements `GET /hotspots`.
func (s *Server) handleSystemHotspots(w http.ResponseWriter, r *http.Request) {
	variables := make([]hotspotVariable, 0, len(s.Index.Variables()))
	for _, v := range s.Index.Variables() {
		count := s.Index.Count(v)
		variables = append(variables, hotspotVariable{
			Variable:         v,
			AccessCount:      count,
			AccessCountHuman: util.HumanizeFloat(float64(count)),
		})
	}
	sort.Slice(variables, func(i, j int) bool {
		if variables[i].AccessCount != variables[j].AccessCount {
			return variables[i].AccessCount > variables[j].AccessCount
		}
		return variables[i].Variable < variables[j].Variable
	})
	if len(variables) > topHotspotsLimit {
		variables = variables[:topHotspotsLimit]
	}

	edges := serviceCallEdgesAcrossGraph(s.Graph)
	calls := make([]hotspotServiceCall, 0, len(edges))
	for _, edge := range edges {
		calls = append(calls, hotspotServiceCall{From: edge.From, To: edge.To, CallCount: edge.CallCount})
	}
	sort.Slice(calls, func(i, j int) bool {
		if calls[i].CallCount != calls[j].CallCount {
			return calls[i].CallCount > calls[j].CallCount
		}
		if calls[i].From != calls[j].From {
			return calls[i].From < calls[j].From
		}
		return calls[i].To < calls[j].To
	})
	if len(calls) > topHotspotsLimit {
		calls = calls[:topHotspotsLimit]
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"top_variables":     variables,
		"top_service_calls": calls,
	})
}
