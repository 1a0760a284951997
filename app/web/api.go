package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
)

// APIStatus is the JSON document served by /api/v1/status
type APIStatus struct {
	Jobs      []APIJob  `json:"jobs"`
	Stats     APIStats  `json:"stats"`
	BackendUp bool      `json:"backend_up"`
	LastPoll  time.Time `json:"last_poll,omitzero"`
	Timestamp time.Time `json:"timestamp"`
}

// APIJob is one job in the status document
type APIJob struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	DB        string    `json:"db,omitempty"`
	Schedule  string    `json:"schedule"`
	Status    string    `json:"status"`
	NextRun   time.Time `json:"next_run,omitzero"`
	AutoStart bool      `json:"auto_start"`
}

// APIStats summarizes the job list
type APIStats struct {
	Total   int `json:"total"`
	Running int `json:"running"`
	Idle    int `json:"idle"`
}

// APIHistoryEntry is one audit record in the history document
type APIHistoryEntry struct {
	ID      int64     `json:"id"`
	TS      time.Time `json:"ts"`
	Surface string    `json:"surface"`
	Kind    string    `json:"kind"`
	JobID   string    `json:"job_id,omitempty"`
	JobName string    `json:"job_name,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Outcome string    `json:"outcome"`
}

// handleAPIStatus serves the current console state as JSON
func (s *Server) handleAPIStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.state.Snapshot()
	views := buildJobViews(snap.Jobs)

	jobs := make([]APIJob, 0, len(views))
	running := 0
	for _, v := range views {
		if v.Running() {
			running++
		}
		jobs = append(jobs, APIJob{
			ID:        v.ID,
			Name:      v.Name,
			Type:      v.Type,
			DB:        v.DB,
			Schedule:  v.Summary,
			Status:    v.Status,
			NextRun:   v.NextRunAt,
			AutoStart: v.AutoStart,
		})
	}

	resp := APIStatus{
		Jobs:      jobs,
		Stats:     APIStats{Total: len(jobs), Running: running, Idle: len(jobs) - running},
		BackendUp: snap.BackendUp,
		LastPoll:  snap.LastPoll,
		Timestamp: time.Now(),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleAPIHistory serves the audit trail as JSON
func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, 500)
		}
	}

	entries, err := s.store.List(r.Context(), limit)
	if err != nil {
		log.Printf("[WARN] failed to list audit entries: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, rest.JSON{"error": err.Error()})
		return
	}

	res := make([]APIHistoryEntry, 0, len(entries))
	for _, e := range entries {
		res = append(res, APIHistoryEntry{
			ID:      e.ID,
			TS:      e.TS,
			Surface: e.Surface,
			Kind:    e.Kind,
			JobID:   e.JobID,
			JobName: e.JobName,
			Detail:  e.Detail,
			Outcome: e.Outcome,
		})
	}
	s.writeJSON(w, http.StatusOK, res)
}

// writeJSON writes a JSON response with the given status
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] failed to encode json response: %v", err)
	}
}
