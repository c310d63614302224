package queryhttp

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Mode7Labs/raceway-sub002/internal/idgen"
	"github.com/Mode7Labs/raceway-sub002/internal/util"
)

// loggingMiddleware stamps every request with a request id and logs its
// method, path, status, and duration once it completes.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()
		requestId := idgen.NewRequestId()
		w.Header().Set("x-request-id", requestId)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(begin)
		if s.Metrics != nil {
			s.Metrics.ObserveQueryDuration(routeOperation(r), elapsed.Seconds())
		}

		s.Log.WithFields(logrus.Fields{
			"request_id": requestId,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     sw.status,
			"duration":   util.HumanizeDuration(elapsed),
		}).Info("request handled")
	})
}

// statusWriter captures the status code written by a handler so the
// logging middleware can report it after the fact.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// routeOperation names the query-surface operation a request was routed to,
// for the queryDuration histogram's "operation" label. Falls back to the raw
// path for requests mux couldn't match to a registered route.
func routeOperation(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.draining.Get() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
