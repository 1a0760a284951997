//go:build e2e

package e2e

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- navigation tests ---

func TestNav_AllPagesReachable(t *testing.T) {
	page := newPage(t)
	navigateToDashboard(t, page)

	pages := []struct {
		link    string
		heading string
	}{
		{"Runner", "Runner"},
		{"Downloads", "Downloads"},
		{"History", "History"},
		{"Connections", "Connections"},
		{"Dashboard", "Jobs"},
	}

	for _, p := range pages {
		require.NoError(t, page.Locator(".nav a:has-text('"+p.link+"')").Click())
		waitVisible(t, page, ".header")

		heading, err := page.Locator("h1").TextContent()
		require.NoError(t, err)
		assert.Equal(t, p.heading, heading, "%s page should render its heading", p.link)

		// the current page's nav link is marked active
		cls, err := page.Locator(".nav a:has-text('" + p.link + "')").GetAttribute("class")
		require.NoError(t, err)
		assert.Contains(t, cls, "active", "%s nav link should be active", p.link)
	}
}

func TestLayout_BackendDotUp(t *testing.T) {
	page := newPage(t)
	navigateToDashboard(t, page)

	// stub backend is reachable, the indicator shows up
	cls, err := page.Locator("#backend-dot").GetAttribute("class")
	require.NoError(t, err)
	assert.Contains(t, cls, "up", "backend dot should show the backend as reachable")
}

// --- footer tests ---

func TestFooter_ShowsVersionAndBackend(t *testing.T) {
	page := newPage(t)
	navigateToDashboard(t, page)

	visible, err := page.Locator(".footer").IsVisible()
	require.NoError(t, err)
	assert.True(t, visible, "footer should be visible")

	text, err := page.Locator(".footer").TextContent()
	require.NoError(t, err)
	assert.Contains(t, text, "syncview")
	assert.Contains(t, text, "backend "+backendURL)
	assert.Contains(t, text, "Umputun")
}

func TestFooter_UsesFlexboxForCentering(t *testing.T) {
	page := newPage(t)
	navigateToDashboard(t, page)

	// verify footer uses flexbox for cross-browser centering
	result, err := page.Evaluate("() => getComputedStyle(document.querySelector('.footer')).display")
	require.NoError(t, err)
	assert.Equal(t, "flex", result, "footer should use flexbox")

	result, err = page.Evaluate("() => getComputedStyle(document.querySelector('.footer')).justifyContent")
	require.NoError(t, err)
	assert.Equal(t, "center", result, "footer should center its items")
}

// --- htmx polling tests ---

func TestHTMX_AutoRefreshIsConfigured(t *testing.T) {
	page := newPage(t)
	navigateToDashboard(t, page)
	waitForJobsLoaded(t, page)

	// jobs container polls and also listens for post-action refreshes
	trigger, err := page.Locator("#jobs-container").GetAttribute("hx-trigger")
	require.NoError(t, err)
	assert.Contains(t, trigger, "every 6s", "jobs container should poll every 6s")
	assert.Contains(t, trigger, "refresh-jobs", "jobs container should listen for refresh-jobs")

	trigger, err = page.Locator("#activity-log").GetAttribute("hx-trigger")
	require.NoError(t, err)
	assert.Contains(t, trigger, "every 6s", "activity log should poll every 6s")
}

func TestHTMX_RunnerLogPollsFast(t *testing.T) {
	page := newPage(t)
	navigateTo(t, page, "/runner")

	trigger, err := page.Locator("#runner-log").GetAttribute("hx-trigger")
	require.NoError(t, err)
	assert.Contains(t, trigger, "every 1s", "runner log should poll every second")
}

// --- log feed tests ---

func TestLayout_LogPanelsShowFeeds(t *testing.T) {
	page := newPage(t)
	navigateToDashboard(t, page)

	// activity feed carries the stub's activity lines
	assert.Eventually(t, func() bool {
		text, terr := page.Locator("#activity-log").TextContent()
		return terr == nil && strings.Contains(text, "backend started")
	}, 10*time.Second, 200*time.Millisecond, "activity feed should show backend lines")

	navigateTo(t, page, "/runner")

	assert.Eventually(t, func() bool {
		text, terr := page.Locator("#runner-log").TextContent()
		return terr == nil && strings.Contains(text, "runner ready")
	}, 10*time.Second, 200*time.Millisecond, "runner log should show the stub's runner lines")
}

// --- responsive tests ---

func TestResponsive_MobileLayout(t *testing.T) {
	page := newPage(t)

	// set mobile viewport before navigation
	err := page.SetViewportSize(375, 667)
	require.NoError(t, err)

	navigateToDashboard(t, page)
	waitForJobsLoaded(t, page)

	// verify page loads on mobile
	visible, err := page.Locator(".header").IsVisible()
	require.NoError(t, err)
	assert.True(t, visible, "header should be visible on mobile")

	// verify jobs container is visible
	visible, err = page.Locator("#jobs-container").IsVisible()
	require.NoError(t, err)
	assert.True(t, visible, "jobs container should be visible on mobile")
}

// --- connections page tests ---

func TestConnections_ProbesReport(t *testing.T) {
	page := newPage(t)
	navigateTo(t, page, "/connections")

	// SQL probe succeeds against the stub
	require.NoError(t, page.Locator(".probe-card:has-text('SQL Server') button:has-text('Check')").Click())
	assert.Eventually(t, func() bool {
		text, terr := page.Locator("#probe-sql").TextContent()
		return terr == nil && strings.Contains(text, "SQL server reachable")
	}, 5*time.Second, 100*time.Millisecond, "sql probe should report reachable")

	cls, err := page.Locator("#probe-sql").GetAttribute("class")
	require.NoError(t, err)
	assert.Contains(t, cls, "ok")

	// tally probe reports the stub's failure
	require.NoError(t, page.Locator(".probe-card:has-text('Tally gateway') button:has-text('Check')").Click())
	assert.Eventually(t, func() bool {
		text, terr := page.Locator("#probe-tally").TextContent()
		return terr == nil && strings.Contains(text, "gateway not responding")
	}, 5*time.Second, 100*time.Millisecond, "tally probe should report the failure")

	cls, err = page.Locator("#probe-tally").GetAttribute("class")
	require.NoError(t, err)
	assert.Contains(t, cls, "fail")
}

func TestConnections_CreateDatabase(t *testing.T) {
	page := newPage(t)
	navigateTo(t, page, "/connections")

	require.NoError(t, page.Locator(".create-db-panel input[name='name']").Fill("tau"))
	require.NoError(t, page.Locator(".create-db-panel button:has-text('Create')").Click())

	assert.Eventually(t, func() bool {
		text, terr := page.Locator("#create-db-status").TextContent()
		return terr == nil && strings.Contains(text, "database tau created")
	}, 5*time.Second, 100*time.Millisecond, "create database should confirm")
}
