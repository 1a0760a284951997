package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/syncview/app/backend"
	"github.com/umputun/syncview/app/web/enums"
	"github.com/umputun/syncview/app/web/persistence"
)

// actionCtx derives a per-dispatch deadline from the request context
func (s *Server) actionCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.actionTimeout)
}

// audit records an operator action in the history store, failures only logged
func (s *Server) audit(ctx context.Context, kind, jobID, jobName, detail, outcome string) {
	e := persistence.Entry{
		TS:      time.Now(),
		Surface: "web",
		Kind:    kind,
		JobID:   jobID,
		JobName: jobName,
		Detail:  detail,
		Outcome: outcome,
	}
	if err := s.store.Record(ctx, e); err != nil {
		log.Printf("[WARN] failed to record audit entry: %v", err)
	}
}

// handleCreateJob dispatches the create form to the backend. Success
// re-renders the cleared form and nudges the job list, failure re-renders
// the form with the error kept alongside the entered values.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	form := parseJobForm(r)

	ctx, cancel := s.actionCtx(r)
	defer cancel()

	created, err := s.client.CreateJob(ctx, form.request())
	name := created.Name
	if errors.Is(err, backend.ErrUnexpectedShape) {
		// backend accepted the job but the response shape was off
		name = "unknown"
		err = nil
	}

	if err != nil {
		log.Printf("[WARN] failed to create job: %v", err)
		s.state.Note(fmt.Sprintf("warning: failed to create job: %v", err))
		s.audit(r.Context(), persistence.KindAction, "", form.Name, "create", err.Error())

		form.Error = err.Error()
		data := s.newTemplateData(r)
		data.Form = form
		data.Databases = s.state.Databases(r.Context())
		s.renderFragments(w, http.StatusBadGateway, data, "create-form")
		return
	}

	s.state.Note(fmt.Sprintf("job %q created", name))
	s.audit(r.Context(), persistence.KindAction, created.ID, name, "create", "ok")
	s.state.Kick()

	data := s.newTemplateData(r)
	data.Form = defaultJobForm()
	data.Databases = s.state.Databases(r.Context())
	w.Header().Set("HX-Trigger", "refresh-jobs, refresh-activity")
	s.renderFragments(w, http.StatusOK, data, "create-form")
}

// handleUpdateJob saves the edit modal back to the backend. Success closes
// the modal, failure keeps it open with the error shown.
func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "job id is required", http.StatusBadRequest)
		return
	}

	form := parseJobForm(r)
	form.ID = id

	ctx, cancel := s.actionCtx(r)
	defer cancel()

	if err := s.client.UpdateJob(ctx, id, form.request()); err != nil {
		log.Printf("[WARN] failed to update job %s: %v", id, err)
		s.state.Note(fmt.Sprintf("warning: failed to update job %q: %v", s.jobName(id), err))
		s.audit(r.Context(), persistence.KindAction, id, form.Name, "update", err.Error())

		form.Error = err.Error()
		data := s.newTemplateData(r)
		data.Form = form
		data.Databases = s.state.Databases(r.Context())
		s.renderFragments(w, http.StatusBadGateway, data, "edit-modal")
		return
	}

	s.state.Note(fmt.Sprintf("job %q updated", form.Name))
	s.audit(r.Context(), persistence.KindAction, id, form.Name, "update", "ok")
	s.state.Kick()

	// empty body replaces the modal, OOB-free
	w.Header().Set("HX-Trigger", "refresh-jobs, refresh-activity")
	w.WriteHeader(http.StatusOK)
}

// handleJobAction dispatches start, stop or delete for a job
func (s *Server) handleJobAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	action := r.PathValue("action")
	if id == "" {
		http.Error(w, "job id is required", http.StatusBadRequest)
		return
	}
	if action != "start" && action != "stop" && action != "delete" {
		http.Error(w, "unknown job action", http.StatusBadRequest)
		return
	}

	// double-click protection, one in-flight dispatch per job+action
	key := id + "/" + action
	if !s.guard.Begin(key) {
		http.Error(w, "action already in flight", http.StatusConflict)
		return
	}
	defer s.guard.End(key)

	name := s.jobName(id)

	ctx, cancel := s.actionCtx(r)
	defer cancel()

	var err error
	switch action {
	case "start":
		err = s.client.StartJob(ctx, id)
	case "stop":
		err = s.client.StopJob(ctx, id)
	case "delete":
		err = s.client.DeleteJob(ctx, id)
	}

	if err != nil {
		log.Printf("[WARN] failed to %s job %s: %v", action, id, err)
		s.state.Note(fmt.Sprintf("warning: failed to %s job %q: %v", action, name, err))
		s.audit(r.Context(), persistence.KindAction, id, name, action, err.Error())
		http.Error(w, fmt.Sprintf("failed to %s job: %v", action, err), http.StatusBadGateway)
		return
	}

	s.state.Note(fmt.Sprintf("job %q %s requested", name, action))
	s.audit(r.Context(), persistence.KindAction, id, name, action, "ok")
	s.state.Kick()

	w.Header().Set("HX-Trigger", "refresh-jobs, refresh-activity")
	w.WriteHeader(http.StatusAccepted)
	if _, werr := w.Write([]byte("accepted")); werr != nil {
		log.Printf("[WARN] failed to write response: %v", werr)
	}
}

// handleRun triggers a manual backend run in the requested mode
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	mode, err := backend.ParseRunMode(r.PathValue("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	db := r.FormValue("db")

	// optimistic, the status label flips before the backend confirms
	s.state.RunStarted(mode)

	ctx, cancel := s.actionCtx(r)
	defer cancel()

	if rerr := s.client.Run(ctx, mode, db); rerr != nil {
		log.Printf("[WARN] failed to trigger %s run: %v", mode, rerr)
		s.state.RunFailed(mode, rerr)
		s.audit(r.Context(), persistence.KindRun, "", "", string(mode), rerr.Error())

		data := s.newTemplateData(r)
		data.LastRun = s.state.Snapshot().LastRun
		s.renderFragments(w, http.StatusBadGateway, data, "runner-status")
		return
	}

	s.audit(r.Context(), persistence.KindRun, "", "", string(mode), "ok")

	data := s.newTemplateData(r)
	data.LastRun = s.state.Snapshot().LastRun
	s.renderFragments(w, http.StatusOK, data, "runner-status")
}

// actionMessage is what the action-message partial renders
type actionMessage struct {
	Text   string
	Failed bool
}

// handleDownloadNow triggers a manual download on the backend
func (s *Server) handleDownloadNow(w http.ResponseWriter, r *http.Request) {
	note := strings.TrimSpace(r.FormValue("note"))
	db := r.FormValue("db")

	ctx, cancel := s.actionCtx(r)
	defer cancel()

	receipt, err := s.client.DownloadNow(ctx, note, db)
	if err != nil {
		log.Printf("[WARN] failed to trigger download: %v", err)
		s.state.Note(fmt.Sprintf("warning: failed to trigger download: %v", err))
		s.audit(r.Context(), persistence.KindDownload, "", "", note, err.Error())
		s.renderStatus(w, http.StatusBadGateway, "partials", "action-message", actionMessage{Text: err.Error(), Failed: true})
		return
	}

	s.state.Note(fmt.Sprintf("download requested, %s", receipt.Status))
	s.audit(r.Context(), persistence.KindDownload, "", "", note, "ok")

	w.Header().Set("HX-Trigger", "refresh-downloads")
	s.render(w, "partials", "action-message", actionMessage{Text: receipt.Status})
}

// handleSaveMasters pushes the checked master selection to the backend
func (s *Server) handleSaveMasters(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	masters := r.Form["masters"]

	ctx, cancel := s.actionCtx(r)
	defer cancel()

	msg, err := s.client.SaveMasters(ctx, masters)
	if err != nil {
		log.Printf("[WARN] failed to save masters: %v", err)
		s.audit(r.Context(), persistence.KindAction, "", "", "save_masters", err.Error())
		s.renderStatus(w, http.StatusBadGateway, "partials", "action-message", actionMessage{Text: err.Error(), Failed: true})
		return
	}

	s.audit(r.Context(), persistence.KindAction, "", "", fmt.Sprintf("save_masters (%d)", len(masters)), "ok")
	s.render(w, "partials", "action-message", actionMessage{Text: msg})
}

// handleCreateDatabase creates a database on the backend and refreshes the
// dropdowns everywhere
func (s *Server) handleCreateDatabase(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		http.Error(w, "database name is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := s.actionCtx(r)
	defer cancel()

	msg, err := s.client.CreateDatabase(ctx, name)
	if err != nil {
		log.Printf("[WARN] failed to create database %q: %v", name, err)
		s.state.Note(fmt.Sprintf("warning: failed to create database %q: %v", name, err))
		s.audit(r.Context(), persistence.KindAction, "", "", "create_database "+name, err.Error())
		s.renderStatus(w, http.StatusBadGateway, "partials", "action-message", actionMessage{Text: err.Error(), Failed: true})
		return
	}

	s.state.InvalidateDatabases()
	s.state.Note(fmt.Sprintf("database %q created", name))
	s.audit(r.Context(), persistence.KindAction, "", "", "create_database "+name, "ok")

	w.Header().Set("HX-Trigger", "refresh-databases")
	s.render(w, "partials", "action-message", actionMessage{Text: msg})
}

// preference toggles

// handleThemeToggle flips the theme cookie and reloads the page
func (s *Server) handleThemeToggle(w http.ResponseWriter, r *http.Request) {
	next := enums.ThemeDark
	if s.getTheme(r) == enums.ThemeDark {
		next = enums.ThemeLight
	}
	s.setModeCookie(w, "theme", next.String())
	w.Header().Set("HX-Refresh", "true")
	w.WriteHeader(http.StatusOK)
}

// handleSortToggle cycles the sort mode and re-renders the job list
func (s *Server) handleSortToggle(w http.ResponseWriter, r *http.Request) {
	next := s.cycleSortMode(s.getSortMode(r))
	s.setModeCookie(w, "sort-mode", next.String())

	stats := s.jobsWithStats(next, s.getFilterMode(r), r.FormValue("search"))
	data := s.newTemplateData(r)
	data.SortMode = next
	data.Jobs = stats.jobs
	data.JobsLoaded = stats.loaded
	data.TotalCount = stats.totalCount
	data.RunningCount = stats.runningCount
	data.NextRunTime = stats.nextRunTime
	data.IsOOB = true

	s.renderFragments(w, http.StatusOK, data, "jobs-fragment", "sort-button")
}

// handleFilterToggle cycles the filter mode and re-renders the job list
func (s *Server) handleFilterToggle(w http.ResponseWriter, r *http.Request) {
	next := s.cycleFilterMode(s.getFilterMode(r))
	s.setModeCookie(w, "filter-mode", next.String())

	stats := s.jobsWithStats(s.getSortMode(r), next, r.FormValue("search"))
	data := s.newTemplateData(r)
	data.FilterMode = next
	data.Jobs = stats.jobs
	data.JobsLoaded = stats.loaded
	data.TotalCount = stats.totalCount
	data.RunningCount = stats.runningCount
	data.NextRunTime = stats.nextRunTime
	data.IsOOB = true

	s.renderFragments(w, http.StatusOK, data, "jobs-fragment", "filter-button")
}

// jobName resolves a job id to its display name from the last snapshot,
// falls back to the id when unknown
func (s *Server) jobName(id string) string {
	for _, j := range s.state.Snapshot().Jobs {
		if j.ID == id {
			if j.Name != "" {
				return j.Name
			}
			break
		}
	}
	return id
}
