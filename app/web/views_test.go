package web

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/syncview/app/backend"
	"github.com/umputun/syncview/app/poller"
	"github.com/umputun/syncview/app/web/enums"
)

func TestNewJobView(t *testing.T) {
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local)

	t.Run("interval job with reported next run", func(t *testing.T) {
		j := backend.Job{ID: "1", Name: "sync", Type: "interval", Interval: 15, Status: "idle",
			NextRun: "2024-03-05 10:15:00"}
		v := newJobView(j, 0, now)
		assert.True(t, v.KnownType)
		assert.True(t, v.KnownStatus)
		assert.Equal(t, "every 15m", v.Summary)
		assert.Equal(t, "Mar 5, 10:15", v.NextRunText)
		assert.False(t, v.NextRunAt.IsZero())
	})

	t.Run("unknown type renders verbatim", func(t *testing.T) {
		j := backend.Job{ID: "2", Name: "odd", Type: "lunar", Status: "idle"}
		v := newJobView(j, 0, now)
		assert.False(t, v.KnownType)
		assert.Equal(t, "lunar", v.Summary)
		assert.Equal(t, "not scheduled", v.NextRunText)
	})

	t.Run("unknown status marked", func(t *testing.T) {
		j := backend.Job{ID: "3", Name: "weird", Type: "daily", Time: "02:00", Status: "paused"}
		v := newJobView(j, 0, now)
		assert.False(t, v.KnownStatus)
		assert.Equal(t, "paused", v.Status)
	})

	t.Run("missing next run estimated locally", func(t *testing.T) {
		j := backend.Job{ID: "4", Name: "fresh", Type: "daily", Time: "02:00", Status: "running"}
		v := newJobView(j, 0, now)
		assert.True(t, strings.HasPrefix(v.NextRunText, "~"), "estimate carries the marker: %s", v.NextRunText)
		assert.False(t, v.NextRunAt.IsZero())
	})

	t.Run("unparseable next run rendered as-is", func(t *testing.T) {
		j := backend.Job{ID: "5", Name: "junk", Type: "interval", Interval: 5, Status: "idle", NextRun: "soonish"}
		v := newJobView(j, 0, now)
		assert.Equal(t, "soonish", v.NextRunText)
		assert.True(t, v.NextRunAt.IsZero())
	})
}

func TestSortJobs(t *testing.T) {
	mk := func(name string, idx int, next time.Time) JobView {
		return JobView{Job: backend.Job{Name: name}, OrderIndex: idx, NextRunAt: next}
	}
	now := time.Now()

	t.Run("default keeps backend order", func(t *testing.T) {
		views := []JobView{mk("b", 1, now), mk("a", 0, now.Add(time.Hour))}
		sortJobs(views, enums.SortModeDefault)
		assert.Equal(t, "a", views[0].Name)
		assert.Equal(t, "b", views[1].Name)
	})

	t.Run("name sort case-insensitive", func(t *testing.T) {
		views := []JobView{mk("Zeta", 0, now), mk("alpha", 1, now), mk("Beta", 2, now)}
		sortJobs(views, enums.SortModeName)
		assert.Equal(t, []string{"alpha", "Beta", "Zeta"},
			[]string{views[0].Name, views[1].Name, views[2].Name})
	})

	t.Run("nextrun sort sinks unknown", func(t *testing.T) {
		views := []JobView{
			mk("later", 0, now.Add(2*time.Hour)),
			mk("never", 1, time.Time{}),
			mk("soon", 2, now.Add(time.Minute)),
		}
		sortJobs(views, enums.SortModeNextrun)
		assert.Equal(t, []string{"soon", "later", "never"},
			[]string{views[0].Name, views[1].Name, views[2].Name})
	})
}

func TestFilterJobs(t *testing.T) {
	views := []JobView{
		{Job: backend.Job{Name: "r1", Status: "running"}},
		{Job: backend.Job{Name: "i1", Status: "idle"}},
		{Job: backend.Job{Name: "r2", Status: "running"}},
	}

	assert.Len(t, filterJobs(views, enums.FilterModeAll), 3)

	running := filterJobs(views, enums.FilterModeRunning)
	require.Len(t, running, 2)
	assert.Equal(t, "r1", running[0].Name)

	idle := filterJobs(views, enums.FilterModeIdle)
	require.Len(t, idle, 1)
	assert.Equal(t, "i1", idle[0].Name)
}

func TestSearchJobs(t *testing.T) {
	views := []JobView{
		{Job: backend.Job{Name: "Nightly sync", DB: "acme"}},
		{Job: backend.Job{Name: "Weekly report", DB: "other"}},
	}

	assert.Len(t, searchJobs(views, ""), 2)
	assert.Len(t, searchJobs(views, "  "), 2)

	res := searchJobs(views, "nightly")
	require.Len(t, res, 1)
	assert.Equal(t, "Nightly sync", res[0].Name)

	res = searchJobs(views, "ACME")
	require.Len(t, res, 1)
	assert.Equal(t, "acme", res[0].DB)

	assert.Empty(t, searchJobs(views, "nomatch"))
}

func TestServer_jobsWithStats(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	st.setJobs([]backend.Job{
		{ID: "1", Name: "a", Type: "interval", Interval: 5, Status: "running"},
		{ID: "2", Name: "b", Type: "interval", Interval: 5, Status: "idle"},
		{ID: "3", Name: "c", Type: "interval", Interval: 5, Status: "running"},
	})

	t.Run("stats over unfiltered set", func(t *testing.T) {
		stats := srv.jobsWithStats(enums.SortModeDefault, enums.FilterModeIdle, "")
		assert.Equal(t, 3, stats.totalCount, "total ignores the filter")
		assert.Equal(t, 2, stats.runningCount)
		assert.Len(t, stats.jobs, 1, "list respects the filter")
		assert.True(t, stats.loaded)
	})

	t.Run("search narrows the list", func(t *testing.T) {
		stats := srv.jobsWithStats(enums.SortModeDefault, enums.FilterModeAll, "b")
		require.Len(t, stats.jobs, 1)
		assert.Equal(t, "b", stats.jobs[0].Name)
		assert.Equal(t, 3, stats.totalCount)
	})

	t.Run("not loaded yet", func(t *testing.T) {
		srv2, st2, _, _ := newTestServer(t)
		st2.mu.Lock()
		st2.snap = poller.Snapshot{}
		st2.mu.Unlock()
		stats := srv2.jobsWithStats(enums.SortModeDefault, enums.FilterModeAll, "")
		assert.False(t, stats.loaded)
		assert.Equal(t, "-", stats.nextRunTime)
	})
}

func TestParseJobForm(t *testing.T) {
	t.Run("all fields", func(t *testing.T) {
		form := "name=Nightly&db=acme&type=weekly&interval=30&time=03%3A15&day=friday&date=2024-06-01&auto_start=true"
		req := httptest.NewRequest("POST", "/jobs/create", strings.NewReader(form))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		f := parseJobForm(req)
		assert.Equal(t, "Nightly", f.Name)
		assert.Equal(t, "acme", f.DB)
		assert.Equal(t, "weekly", f.Type)
		assert.Equal(t, 30, f.Interval)
		assert.Equal(t, "03:15", f.Time)
		assert.Equal(t, "friday", f.Day)
		assert.Equal(t, "2024-06-01", f.Date)
		assert.True(t, f.AutoStart)
	})

	t.Run("junk interval tolerated", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/jobs/create", strings.NewReader("name=x&type=interval&interval=abc"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		f := parseJobForm(req)
		assert.Equal(t, 0, f.Interval, "backend applies its own default")
	})

	t.Run("empty type defaults to interval", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/jobs/create", strings.NewReader("name=x"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		f := parseJobForm(req)
		assert.Equal(t, "interval", f.Type)
	})
}

func TestFormFromJob(t *testing.T) {
	t.Run("known type", func(t *testing.T) {
		f := formFromJob(backend.Job{ID: "7", Name: "sync", Type: "weekly", Day: "friday", Time: "04:00", Interval: 20})
		assert.Equal(t, "7", f.ID)
		assert.Equal(t, "weekly", f.Type)
		assert.False(t, f.UnknownType)
		assert.Equal(t, 20, f.Interval)
	})

	t.Run("unknown type keeps raw value", func(t *testing.T) {
		f := formFromJob(backend.Job{ID: "8", Name: "odd", Type: "lunar"})
		assert.Equal(t, "lunar", f.Type)
		assert.True(t, f.UnknownType)
	})

	t.Run("empty schedule fields filled with defaults", func(t *testing.T) {
		f := formFromJob(backend.Job{ID: "9", Name: "bare", Type: "interval"})
		assert.Equal(t, 15, f.Interval)
		assert.Equal(t, "02:00", f.Time)
	})
}

func TestDefaultJobForm(t *testing.T) {
	f := defaultJobForm()
	assert.Equal(t, "interval", f.Type)
	assert.Equal(t, 15, f.Interval)
	assert.Equal(t, "02:00", f.Time)
	assert.Empty(t, f.Name)
}

func TestServer_previewNext(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	t.Run("interval preview", func(t *testing.T) {
		got := srv.previewNext(JobForm{Type: "interval", Interval: 15})
		assert.True(t, strings.HasPrefix(got, "~"), "got %q", got)
	})

	t.Run("unknown type", func(t *testing.T) {
		assert.Equal(t, "not scheduled", srv.previewNext(JobForm{Type: "lunar"}))
	})

	t.Run("invalid time", func(t *testing.T) {
		assert.Equal(t, "not scheduled", srv.previewNext(JobForm{Type: "daily", Time: "25:99"}))
	})
}

func TestJobKinds(t *testing.T) {
	assert.Equal(t, []string{"interval", "daily", "weekly", "monthly", "yearly"}, jobKinds())
}
