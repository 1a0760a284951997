package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/syncview/app/backend"
	"github.com/umputun/syncview/app/web/persistence"
)

func TestServer_handleAPIStatus(t *testing.T) {
	t.Run("reports jobs and stats", func(t *testing.T) {
		srv, st, _, _ := newTestServer(t)
		st.setJobs([]backend.Job{
			{ID: "1", Name: "nightly sync", Type: "interval", Interval: 15, DB: "alpha",
				Status: "running", NextRun: "2026-03-05 10:15:00", AutoStart: true},
			{ID: "2", Name: "weekly report", Type: "weekly", Day: "friday", Time: "03:15", Status: "idle"},
		})

		req := httptest.NewRequest("GET", "/api/v1/status", http.NoBody)
		rec := httptest.NewRecorder()
		srv.handleAPIStatus(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

		var resp APIStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		assert.Equal(t, 2, resp.Stats.Total)
		assert.Equal(t, 1, resp.Stats.Running)
		assert.Equal(t, 1, resp.Stats.Idle)
		assert.True(t, resp.BackendUp)
		assert.False(t, resp.LastPoll.IsZero())
		assert.WithinDuration(t, time.Now(), resp.Timestamp, 5*time.Second)

		require.Len(t, resp.Jobs, 2)
		first := resp.Jobs[0]
		assert.Equal(t, "1", first.ID)
		assert.Equal(t, "nightly sync", first.Name)
		assert.Equal(t, "interval", first.Type)
		assert.Equal(t, "alpha", first.DB)
		assert.Equal(t, "every 15m", first.Schedule)
		assert.Equal(t, "running", first.Status)
		assert.True(t, first.AutoStart)
		assert.Equal(t, 2026, first.NextRun.Year())

		second := resp.Jobs[1]
		assert.Equal(t, "weekly report", second.Name)
		assert.True(t, second.NextRun.IsZero(), "backend reported no next run")
	})

	t.Run("empty job list serves empty array", func(t *testing.T) {
		srv, st, _, _ := newTestServer(t)
		st.setJobs(nil)

		req := httptest.NewRequest("GET", "/api/v1/status", http.NoBody)
		rec := httptest.NewRecorder()
		srv.handleAPIStatus(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"jobs":[]`)
		assert.NotContains(t, rec.Body.String(), `"jobs":null`)
	})

	t.Run("backend down reflected", func(t *testing.T) {
		srv, st, _, _ := newTestServer(t)
		st.mu.Lock()
		st.snap.BackendUp = false
		st.mu.Unlock()

		req := httptest.NewRequest("GET", "/api/v1/status", http.NoBody)
		rec := httptest.NewRecorder()
		srv.handleAPIStatus(rec, req)

		var resp APIStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.BackendUp)
	})
}

func TestServer_handleAPIHistory(t *testing.T) {
	t.Run("serves audit entries", func(t *testing.T) {
		srv, _, _, au := newTestServer(t)
		au.entries = []persistence.Entry{
			{ID: 2, TS: time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC), Surface: "web",
				Kind: persistence.KindAction, JobID: "1", JobName: "nightly sync", Detail: "start", Outcome: "ok"},
			{ID: 1, TS: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), Surface: "web",
				Kind: persistence.KindRun, Detail: "runonce", Outcome: "connect refused"},
		}

		req := httptest.NewRequest("GET", "/api/v1/history", http.NoBody)
		rec := httptest.NewRecorder()
		srv.handleAPIHistory(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var entries []APIHistoryEntry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, int64(2), entries[0].ID)
		assert.Equal(t, "nightly sync", entries[0].JobName)
		assert.Equal(t, "ok", entries[0].Outcome)
		assert.Equal(t, persistence.KindRun, entries[1].Kind)
		assert.Equal(t, "connect refused", entries[1].Outcome)
	})

	t.Run("limit passed through and capped", func(t *testing.T) {
		srv, _, _, au := newTestServer(t)
		var gotLimit int
		au.listFn = func(_ context.Context, limit int) ([]persistence.Entry, error) {
			gotLimit = limit
			return nil, nil
		}

		req := httptest.NewRequest("GET", "/api/v1/history?limit=25", http.NoBody)
		rec := httptest.NewRecorder()
		srv.handleAPIHistory(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 25, gotLimit)

		req = httptest.NewRequest("GET", "/api/v1/history?limit=9000", http.NoBody)
		rec = httptest.NewRecorder()
		srv.handleAPIHistory(rec, req)
		assert.Equal(t, 500, gotLimit, "limit capped")

		req = httptest.NewRequest("GET", "/api/v1/history?limit=junk", http.NoBody)
		rec = httptest.NewRecorder()
		srv.handleAPIHistory(rec, req)
		assert.Equal(t, 100, gotLimit, "bad limit falls back to default")
	})

	t.Run("store failure returns 500", func(t *testing.T) {
		srv, _, _, au := newTestServer(t)
		au.listFn = func(_ context.Context, _ int) ([]persistence.Entry, error) {
			return nil, errors.New("db locked")
		}

		req := httptest.NewRequest("GET", "/api/v1/history", http.NoBody)
		rec := httptest.NewRecorder()
		srv.handleAPIHistory(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "db locked")
	})
}
