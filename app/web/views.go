package web

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/umputun/syncview/app/backend"
	"github.com/umputun/syncview/app/schedule"
	"github.com/umputun/syncview/app/web/enums"
)

// JobView is a backend job prepared for rendering. Schedule summary and next
// run are resolved once here so templates stay dumb.
type JobView struct {
	backend.Job
	Summary     string    // human schedule, raw type string when unknown
	NextRunAt   time.Time // zero when the next run is unknown
	NextRunText string    // formatted stamp, "~" prefix for panel-side estimates
	KnownType   bool
	KnownStatus bool
	OrderIndex  int // position in the backend response, for stable sorting
}

// newJobView resolves display fields for a single job
func newJobView(j backend.Job, idx int, now time.Time) JobView {
	v := JobView{Job: j, OrderIndex: idx}

	spec, err := schedule.FromJob(j)
	v.KnownType = err == nil
	if v.KnownType {
		v.Summary = spec.Summary()
	} else {
		// unknown types render verbatim, never dropped
		v.Summary = j.Type
	}

	v.KnownStatus = j.Status == "idle" || j.Status == "running"

	switch {
	case j.NextRun != "":
		if ts, ok := j.NextRunTime(); ok {
			v.NextRunAt = ts
			v.NextRunText = ts.Format("Jan 2, 15:04")
		} else {
			v.NextRunText = j.NextRun // unparseable stamps render as-is
		}
	case v.KnownType:
		// backend has not reported next_run yet, estimate panel-side
		if next, nerr := spec.Next(now); nerr == nil {
			v.NextRunAt = next
			v.NextRunText = "~" + next.Format("Jan 2, 15:04")
		} else {
			v.NextRunText = "not scheduled"
		}
	default:
		v.NextRunText = "not scheduled"
	}

	return v
}

// buildJobViews converts the polled jobs preserving backend order
func buildJobViews(jobs []backend.Job) []JobView {
	now := time.Now()
	views := make([]JobView, 0, len(jobs))
	for i, j := range jobs {
		views = append(views, newJobView(j, i, now))
	}
	return views
}

// jobsStats holds the prepared job list and the numbers for the stats bar
type jobsStats struct {
	jobs         []JobView
	totalCount   int // before filtering
	runningCount int
	nextRunTime  string
	loaded       bool
}

// jobsWithStats prepares the job list for rendering with the current list
// preferences applied. Stats are computed over all jobs, not the filtered
// subset.
func (s *Server) jobsWithStats(sortMode enums.SortMode, filterMode enums.FilterMode, searchTerm string) jobsStats {
	snap := s.state.Snapshot()
	views := buildJobViews(snap.Jobs)

	running := 0
	var nearest time.Time
	for _, v := range views {
		if v.Running() {
			running++
		}
		if !v.NextRunAt.IsZero() && (nearest.IsZero() || v.NextRunAt.Before(nearest)) {
			nearest = v.NextRunAt
		}
	}

	res := jobsStats{
		totalCount:   len(views),
		runningCount: running,
		nextRunTime:  s.humanTime(nearest),
		loaded:       snap.JobsLoaded,
	}
	if nearest.IsZero() {
		res.nextRunTime = "-"
	}

	views = searchJobs(views, searchTerm)
	views = filterJobs(views, filterMode)
	sortJobs(views, sortMode)
	res.jobs = views
	return res
}

// sortJobs sorts in place according to the sort mode
func sortJobs(views []JobView, mode enums.SortMode) {
	switch mode {
	case enums.SortModeName:
		sort.Slice(views, func(i, j int) bool {
			ni, nj := strings.ToLower(views[i].Name), strings.ToLower(views[j].Name)
			if ni != nj {
				return ni < nj
			}
			return views[i].OrderIndex < views[j].OrderIndex
		})
	case enums.SortModeNextrun:
		sort.Slice(views, func(i, j int) bool {
			ti, tj := views[i].NextRunAt, views[j].NextRunAt
			switch {
			case ti.IsZero() && tj.IsZero():
				return views[i].OrderIndex < views[j].OrderIndex
			case ti.IsZero():
				return false // unknown next run sinks to the bottom
			case tj.IsZero():
				return true
			case !ti.Equal(tj):
				return ti.Before(tj)
			}
			return views[i].OrderIndex < views[j].OrderIndex
		})
	default: // SortModeDefault keeps backend order
		sort.Slice(views, func(i, j int) bool { return views[i].OrderIndex < views[j].OrderIndex })
	}
}

// filterJobs returns the subset matching the filter mode
func filterJobs(views []JobView, mode enums.FilterMode) []JobView {
	if mode == enums.FilterModeAll {
		return views
	}
	res := make([]JobView, 0, len(views))
	for _, v := range views {
		switch mode {
		case enums.FilterModeRunning:
			if v.Running() {
				res = append(res, v)
			}
		case enums.FilterModeIdle:
			if !v.Running() {
				res = append(res, v)
			}
		}
	}
	return res
}

// searchJobs returns jobs whose name or database contains the term,
// case-insensitive. Empty term matches everything.
func searchJobs(views []JobView, term string) []JobView {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return views
	}
	res := make([]JobView, 0, len(views))
	for _, v := range views {
		if strings.Contains(strings.ToLower(v.Name), term) || strings.Contains(strings.ToLower(v.DB), term) {
			res = append(res, v)
		}
	}
	return res
}

// JobForm carries create/edit form state between renders
type JobForm struct {
	ID          string
	Name        string
	DB          string
	Type        string
	UnknownType bool // type not one of the recognized kinds, render extra radio
	Interval    int
	Time        string
	Day         string
	Date        string
	AutoStart   bool
	Error       string
}

// defaultJobForm returns the create form defaults matching what the backend
// applies when fields are omitted
func defaultJobForm() JobForm {
	return JobForm{Type: string(schedule.Interval), Interval: 15, Time: "02:00"}
}

// formFromJob prefills the edit form from a job record
func formFromJob(j backend.Job) JobForm {
	f := JobForm{
		ID:        j.ID,
		Name:      j.Name,
		DB:        j.DB,
		Type:      j.Type,
		Interval:  int(j.Interval),
		Time:      j.Time,
		Day:       string(j.Day),
		Date:      j.Date,
		AutoStart: j.AutoStart,
	}
	if _, err := schedule.ParseKind(j.Type); err != nil {
		f.UnknownType = j.Type != ""
	}
	if f.Interval == 0 {
		f.Interval = 15
	}
	if f.Time == "" {
		f.Time = "02:00"
	}
	return f
}

// parseJobForm extracts the job form from a request, tolerant of junk values
func parseJobForm(r *http.Request) JobForm {
	interval, err := strconv.Atoi(r.FormValue("interval"))
	if err != nil || interval < 0 {
		interval = 0 // backend applies its own default
	}
	f := JobForm{
		Name:      strings.TrimSpace(r.FormValue("name")),
		DB:        r.FormValue("db"),
		Type:      strings.TrimSpace(r.FormValue("type")),
		Interval:  interval,
		Time:      r.FormValue("time"),
		Day:       r.FormValue("day"),
		Date:      r.FormValue("date"),
		AutoStart: r.FormValue("auto_start") == "true" || r.FormValue("auto_start") == "on",
	}
	if f.Type == "" {
		f.Type = string(schedule.Interval)
	}
	return f
}

// request converts the form to the backend wire shape
func (f JobForm) request() backend.JobRequest {
	return backend.JobRequest{
		Name:      f.Name,
		DB:        f.DB,
		Type:      f.Type,
		Interval:  backend.Minutes(f.Interval),
		Time:      f.Time,
		Day:       backend.Day(f.Day),
		Date:      f.Date,
		AutoStart: f.AutoStart,
	}
}

// jobKinds lists the schedule kinds for the type radio group
func jobKinds() []string {
	kinds := schedule.Kinds()
	res := make([]string, 0, len(kinds))
	for _, k := range kinds {
		res = append(res, string(k))
	}
	return res
}

// previewNext estimates the next run for the form's schedule, panel-side
func (s *Server) previewNext(f JobForm) string {
	kind, err := schedule.ParseKind(f.Type)
	if err != nil {
		return "not scheduled"
	}
	spec := schedule.Spec{Kind: kind, Interval: f.Interval, Time: f.Time, Day: f.Day, Date: f.Date}
	next, err := spec.Next(time.Now())
	if err != nil {
		return "not scheduled"
	}
	return "~" + next.Format("Jan 2, 15:04")
}
