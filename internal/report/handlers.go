package report

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/hidrodata/aquarisk/internal/database"
	"github.com/hidrodata/aquarisk/internal/log"
	"github.com/hidrodata/aquarisk/internal/types"
)

// Handlers contains all HTTP handlers for the report server
type Handlers struct {
	controller *Controller
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{controller: ctrl}
}

// GetRuns handles requests for recorded pipeline runs, newest first
func (h *Handlers) GetRuns(w http.ResponseWriter, req *http.Request) {
	limit, err := limitParam(req, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runs, err := h.controller.store.ListRuns(limit)
	if err != nil {
		log.Errorf("error listing runs: %v", err)
		http.Error(w, "error fetching runs", http.StatusInternalServerError)
		return
	}

	out := make([]RunResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, toRunResponse(r))
	}
	writeJSON(w, out)
}

// GetRun handles requests for a single run record
func (h *Handlers) GetRun(w http.ResponseWriter, req *http.Request) {
	run, ok := h.resolveRun(w, req)
	if !ok {
		return
	}
	writeJSON(w, toRunResponse(*run))
}

// GetRunScores handles requests for a run's ranked scores
func (h *Handlers) GetRunScores(w http.ResponseWriter, req *http.Request) {
	limit, err := limitParam(req, 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, ok := h.resolveRun(w, req)
	if !ok {
		return
	}

	scores, err := h.controller.store.GetTopScores(run.RunID, limit)
	if err != nil {
		log.Errorf("error fetching scores for run %s: %v", run.RunID, err)
		http.Error(w, "error fetching scores", http.StatusInternalServerError)
		return
	}

	resp := ScoresResponse{RunID: run.RunID, Scores: make([]ScoreResponse, 0, len(scores))}
	for _, s := range scores {
		resp.Scores = append(resp.Scores, toScoreResponse(s))
	}
	writeJSON(w, resp)
}

// GetRunCohorts handles requests for a run's cohort summaries
func (h *Handlers) GetRunCohorts(w http.ResponseWriter, req *http.Request) {
	run, ok := h.resolveRun(w, req)
	if !ok {
		return
	}

	stats, err := h.controller.store.GetCohortStats(run.RunID)
	if err != nil {
		log.Errorf("error fetching cohorts for run %s: %v", run.RunID, err)
		http.Error(w, "error fetching cohorts", http.StatusInternalServerError)
		return
	}

	resp := CohortsResponse{RunID: run.RunID, Cohorts: make([]CohortResponse, 0, len(stats))}
	for _, c := range stats {
		resp.Cohorts = append(resp.Cohorts, toCohortResponse(c))
	}
	writeJSON(w, resp)
}

// GetMeterRisk handles requests for a meter's score from its most recent
// scored run
func (h *Handlers) GetMeterRisk(w http.ResponseWriter, req *http.Request) {
	meterID := mux.Vars(req)["id"]

	score, err := h.controller.store.GetMeterRisk(meterID)
	if err != nil {
		if database.IsNotFound(err) {
			http.Error(w, "meter not found in any scored run", http.StatusNotFound)
			return
		}
		log.Errorf("error fetching risk for meter %s: %v", meterID, err)
		http.Error(w, "error fetching meter risk", http.StatusInternalServerError)
		return
	}

	writeJSON(w, MeterRiskResponse{RunID: score.RunID, Score: toScoreResponse(*score)})
}

// GetHealth reports server liveness
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// resolveRun loads the run named in the request path, with "latest"
// resolving to the most recently started run. It writes the error response
// itself and reports whether the caller may proceed.
func (h *Handlers) resolveRun(w http.ResponseWriter, req *http.Request) (*types.PipelineRun, bool) {
	id := mux.Vars(req)["id"]

	var run *types.PipelineRun
	var err error
	if id == "latest" {
		run, err = h.controller.store.GetLatestRun("")
	} else {
		run, err = h.controller.store.GetRun(id)
	}
	if err != nil {
		if database.IsNotFound(err) {
			http.Error(w, "run not found", http.StatusNotFound)
			return nil, false
		}
		log.Errorf("error fetching run %s: %v", id, err)
		http.Error(w, "error fetching run", http.StatusInternalServerError)
		return nil, false
	}
	return run, true
}

func limitParam(req *http.Request, def int) (int, error) {
	raw := req.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("error encoding response to JSON: %v", err)
	}
}
