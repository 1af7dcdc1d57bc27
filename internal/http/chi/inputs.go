package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/tower-poller/metrics"
	"github.com/marcelsud/tower-poller/runner"
)

/* HTTP layer DTOs for the admin API
 * Separate from runner.Status so the wire format can stay stable
 */

type inputResponse struct {
	Input          string `json:"input"`
	Category       string `json:"category"`
	Schedule       string `json:"schedule"`
	State          string `json:"state"`
	Cursor         int64  `json:"cursor"`
	Failures       int    `json:"consecutive_failures"`
	BackoffLevel   int    `json:"backoff_level"`
	NextRun        string `json:"next_run"`
	LastSuccess    string `json:"last_success,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	LastErrorKind  string `json:"last_error_kind,omitempty"`
	RecordsEmitted int64  `json:"records_emitted"`
	StoppedError   string `json:"stopped_error,omitempty"`
}

func newInputResponse(st runner.Status, stopErr error) inputResponse {
	resp := inputResponse{
		Input:          st.Input,
		Category:       st.Category,
		Schedule:       st.Schedule,
		State:          st.State,
		Cursor:         st.Cursor,
		Failures:       st.Failures,
		BackoffLevel:   st.BackoffLevel,
		NextRun:        st.NextRun.UTC().Format(time.RFC3339),
		LastError:      st.LastError,
		LastErrorKind:  st.LastErrorKind,
		RecordsEmitted: st.RecordsEmitted,
	}
	if st.LastSuccess != nil {
		resp.LastSuccess = st.LastSuccess.UTC().Format(time.RFC3339)
	}
	if stopErr != nil {
		resp.StoppedError = stopErr.Error()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// getInputs handles GET /v1/inputs
func getInputs(inputs StatusProvider) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		statuses := inputs.Statuses()

		responses := make([]inputResponse, 0, len(statuses))
		for _, st := range statuses {
			responses = append(responses, newInputResponse(st, inputs.Err(st.Input)))
		}
		writeJSON(w, responses)
	})
}

// getInput handles GET /v1/inputs/:name
func getInput(inputs StatusProvider) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		st, ok := inputs.Status(name)
		if !ok {
			http.Error(w, fmt.Sprintf("input not found: %s", name), http.StatusNotFound)
			return
		}
		writeJSON(w, newInputResponse(st, inputs.Err(name)))
	})
}

// getMetrics handles GET /v1/metrics
func getMetrics(collector metrics.Collector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m, err := collector.Collect(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, m)
	})
}
