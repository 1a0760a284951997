package web

import (
	"net/http"
	"strconv"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/syncview/app/backend"
	"github.com/umputun/syncview/app/sysinfo"
)

// page handlers

// handleDashboard renders the main page with the job list and activity feed
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats := s.jobsWithStats(s.getSortMode(r), s.getFilterMode(r), "")
	snap := s.state.Snapshot()

	data := s.newTemplateData(r)
	data.Title = "Dashboard"
	data.Active = "dashboard"
	data.Jobs = stats.jobs
	data.JobsLoaded = stats.loaded
	data.TotalCount = stats.totalCount
	data.RunningCount = stats.runningCount
	data.NextRunTime = stats.nextRunTime
	data.Activity = snap.Activity
	data.Databases = s.state.Databases(r.Context())
	data.Form = defaultJobForm()

	s.render(w, "dashboard", "base", data)
}

// handleRunnerPage renders manual run controls, master selection and the
// runner log tail
func (s *Server) handleRunnerPage(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()

	data := s.newTemplateData(r)
	data.Title = "Runner"
	data.Active = "runner"
	data.RunnerLines = snap.Runner
	data.LastRun = snap.LastRun
	data.Databases = s.state.Databases(r.Context())
	data.Masters = s.profile.Masters

	s.render(w, "runner", "base", data)
}

// handleDownloadsPage renders the manual download trigger and history
func (s *Server) handleDownloadsPage(w http.ResponseWriter, r *http.Request) {
	data := s.newTemplateData(r)
	data.Title = "Downloads"
	data.Active = "downloads"
	data.Databases = s.state.Databases(r.Context())

	s.render(w, "downloads", "base", data)
}

// handleHistoryPage renders the panel-side audit trail
func (s *Server) handleHistoryPage(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, 500)
		}
	}

	entries, err := s.store.List(r.Context(), limit)
	if err != nil {
		log.Printf("[WARN] failed to list audit entries: %v", err)
	}

	data := s.newTemplateData(r)
	data.Title = "History"
	data.Active = "history"
	data.History = entries

	s.render(w, "history", "base", data)
}

// handleConnectionsPage renders the connectivity probes and database admin
func (s *Server) handleConnectionsPage(w http.ResponseWriter, r *http.Request) {
	data := s.newTemplateData(r)
	data.Title = "Connections"
	data.Active = "connections"

	s.render(w, "connections", "base", data)
}

// HTMX fragment handlers

// handleJobsFragment serves the polled job list with OOB stats updates
func (s *Server) handleJobsFragment(w http.ResponseWriter, r *http.Request) {
	stats := s.jobsWithStats(s.getSortMode(r), s.getFilterMode(r), r.FormValue("search"))

	data := s.newTemplateData(r)
	data.Jobs = stats.jobs
	data.JobsLoaded = stats.loaded
	data.TotalCount = stats.totalCount
	data.RunningCount = stats.runningCount
	data.NextRunTime = stats.nextRunTime
	data.IsOOB = true

	s.renderFragments(w, http.StatusOK, data, "jobs-fragment")
}

// handleActivityFragment serves the polled activity feed
func (s *Server) handleActivityFragment(w http.ResponseWriter, r *http.Request) {
	data := s.newTemplateData(r)
	data.Activity = s.state.Snapshot().Activity
	s.renderFragments(w, http.StatusOK, data, "activity-feed")
}

// handleRunnerLogFragment serves the fast-polled runner tail with an OOB
// run status update
func (s *Server) handleRunnerLogFragment(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	data := s.newTemplateData(r)
	data.RunnerLines = snap.Runner
	data.LastRun = snap.LastRun
	data.IsOOB = true
	s.renderFragments(w, http.StatusOK, data, "runner-feed")
}

// handleDatabasesFragment serves the options for the database dropdowns
func (s *Server) handleDatabasesFragment(w http.ResponseWriter, r *http.Request) {
	data := s.newTemplateData(r)
	data.Databases = s.state.Databases(r.Context())
	s.renderFragments(w, http.StatusOK, data, "databases-options")
}

// handleDownloadsFragment serves the download history table
func (s *Server) handleDownloadsFragment(w http.ResponseWriter, r *http.Request) {
	data := s.newTemplateData(r)

	entries, err := s.client.DownloadHistory(r.Context())
	if err != nil {
		log.Printf("[WARN] failed to fetch download history: %v", err)
		data.DownloadsErr = err.Error()
		s.renderFragments(w, http.StatusOK, data, "downloads-table")
		return
	}
	data.Downloads = entries
	s.renderFragments(w, http.StatusOK, data, "downloads-table")
}

// probeData is what the probe-result partial renders
type probeData struct {
	Probe     string
	OK        bool
	Msg       string
	CheckedAt string
}

// handleProbeFragment runs an on-demand connectivity check
func (s *Server) handleProbeFragment(w http.ResponseWriter, r *http.Request) {
	probe := r.PathValue("probe")

	ctx, cancel := s.actionCtx(r)
	defer cancel()

	var res backend.CheckResult
	var err error
	switch probe {
	case "sql":
		res, err = s.client.CheckSQL(ctx)
	case "tally":
		res, err = s.client.CheckTally(ctx)
	default:
		http.Error(w, "unknown probe", http.StatusBadRequest)
		return
	}
	if err != nil {
		res = backend.CheckResult{OK: false, Msg: err.Error()}
	}

	data := probeData{
		Probe:     probe,
		OK:        res.OK,
		Msg:       res.Msg,
		CheckedAt: s.humanTime(time.Now()),
	}
	s.render(w, "partials", "probe-result", data)
}

// handleEditModal serves the prefilled edit form for a job
func (s *Server) handleEditModal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var job *backend.Job
	snap := s.state.Snapshot()
	for i := range snap.Jobs {
		if snap.Jobs[i].ID == id {
			job = &snap.Jobs[i]
			break
		}
	}
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	data := s.newTemplateData(r)
	data.Form = formFromJob(*job)
	data.Databases = s.state.Databases(r.Context())
	s.render(w, "partials", "edit-modal", data)
}

// settingsData is what the settings modal renders
type settingsData struct {
	Info SettingsInfo
	Host sysinfo.Info
}

// handleSettingsModal serves runtime configuration and host health
func (s *Server) handleSettingsModal(w http.ResponseWriter, r *http.Request) {
	data := settingsData{
		Info: s.settingsInfo,
		Host: sysinfo.Collect("/"),
	}
	s.render(w, "partials", "settings-modal", data)
}
