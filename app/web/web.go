// Package web implements the server-rendered operator console for the sync
// backend. Pages are html/template, live sections poll HTMX fragments at the
// cadences the old browser panel used, and every operator action is
// dispatched through the typed backend client and recorded in the audit
// store.
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/didip/tollbooth/v8"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/syncview/app/backend"
	"github.com/umputun/syncview/app/config"
	"github.com/umputun/syncview/app/poller"
	"github.com/umputun/syncview/app/web/enums"
	"github.com/umputun/syncview/app/web/persistence"
)

//go:embed templates/*.html templates/partials/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// StateProvider is the poller surface the console renders from and nudges
// after mutations.
type StateProvider interface {
	Snapshot() poller.Snapshot
	Databases(ctx context.Context) []string
	InvalidateDatabases()
	Note(line string)
	Kick()
	RunStarted(mode backend.RunMode)
	RunFailed(mode backend.RunMode, err error)
}

// Dispatcher is the slice of the backend client operator actions go through.
type Dispatcher interface {
	Run(ctx context.Context, mode backend.RunMode, db string) error
	CreateJob(ctx context.Context, req backend.JobRequest) (backend.Job, error)
	StartJob(ctx context.Context, id string) error
	StopJob(ctx context.Context, id string) error
	DeleteJob(ctx context.Context, id string) error
	UpdateJob(ctx context.Context, id string, req backend.JobRequest) error
	CheckSQL(ctx context.Context) (backend.CheckResult, error)
	CheckTally(ctx context.Context) (backend.CheckResult, error)
	CreateDatabase(ctx context.Context, name string) (string, error)
	SaveMasters(ctx context.Context, masters []string) (string, error)
	DownloadNow(ctx context.Context, note, db string) (backend.DownloadReceipt, error)
	DownloadHistory(ctx context.Context) ([]backend.DownloadEntry, error)
}

// Auditor records operator actions and serves the history page.
type Auditor interface {
	Record(ctx context.Context, e persistence.Entry) error
	List(ctx context.Context, limit int) ([]persistence.Entry, error)
}

// Server represents the web console server
type Server struct {
	state          StateProvider
	client         Dispatcher
	store          Auditor
	profile        *config.File
	guard          *ActionGuard
	templates      map[string]*template.Template
	baseURL        string // base URL path for reverse proxy (e.g., /syncview), empty for root
	hostname       string // hostname to display in UI
	backendURL     string
	version        string
	passwordHash   string                      // bcrypt hash for operator login
	loginTTL       time.Duration               // auth cookie lifetime
	actionTimeout  time.Duration               // per-dispatch deadline
	csrfProtection *http.CrossOriginProtection // csrf protection for POST endpoints
	settingsInfo   SettingsInfo                // runtime configuration for settings modal
}

// Config holds server configuration
type Config struct {
	State         StateProvider
	Client        Dispatcher
	Store         Auditor
	Profile       *config.File // master catalogs for the runner page, nil for defaults
	BaseURL       string       // base URL path for reverse proxy, empty for root
	Hostname      string       // hostname to display in UI
	BackendURL    string
	Version       string
	PasswordHash  string        // bcrypt hash for operator login (empty to disable)
	LoginTTL      time.Duration // session TTL, defaults to 24h if not set
	ActionTimeout time.Duration // per-dispatch deadline, defaults to 10s
	Settings      SettingsInfo  // runtime configuration for settings modal
}

// SettingsInfo holds safe-to-display runtime configuration for the settings modal
type SettingsInfo struct {
	Version   string
	StartTime time.Time

	BackendURL     string
	PollInterval   time.Duration
	RunnerInterval time.Duration
	RefreshDelay   time.Duration
	MaxLogLines    int
	DownAfter      int

	WebAddress  string
	AuthEnabled bool

	AuditPath      string
	AuditRetention time.Duration

	NotifyDestCount int

	LoggingEnabled bool
	DebugMode      bool
	LogFilePath    string
}

// TemplateData holds data for page and fragment templates
type TemplateData struct {
	Title       string
	Active      string // current nav item
	BaseURL     string // base URL path for reverse proxy
	Hostname    string // hostname to display in UI
	BackendURL  string
	Theme       enums.Theme
	SortMode    enums.SortMode
	FilterMode  enums.FilterMode
	AuthEnabled bool
	Version     string // short version for the footer
	FullVersion string
	CurrentYear int
	BackendUp   bool
	LastPoll    time.Time

	Jobs         []JobView
	JobsLoaded   bool
	TotalCount   int // total jobs before filtering
	RunningCount int
	NextRunTime  string // formatted nearest next run for stats
	IsOOB        bool   // for OOB template rendering

	Databases    []string
	Activity     []string
	RunnerLines  []string
	LastRun      poller.RunState
	Masters      []config.MasterGroup
	History      []persistence.Entry
	Downloads    []backend.DownloadEntry
	DownloadsErr string

	Form JobForm
}

// newTemplateData creates a TemplateData with common fields populated from request
func (s *Server) newTemplateData(r *http.Request) TemplateData {
	snap := s.state.Snapshot()
	return TemplateData{
		BaseURL:     s.baseURL,
		Hostname:    s.hostname,
		BackendURL:  s.backendURL,
		Theme:       s.getTheme(r),
		SortMode:    s.getSortMode(r),
		FilterMode:  s.getFilterMode(r),
		AuthEnabled: s.passwordHash != "",
		Version:     shortVersion(s.version),
		FullVersion: s.version,
		CurrentYear: time.Now().Year(),
		BackendUp:   snap.BackendUp,
		LastPoll:    snap.LastPoll,
	}
}

// New creates a new web console server
func New(cfg Config) (*Server, error) {
	if cfg.State == nil {
		return nil, fmt.Errorf("web server initialization failed: State is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("web server initialization failed: Client is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("web server initialization failed: Store is required")
	}

	profile := cfg.Profile
	if profile == nil {
		profile = config.Default()
	}

	loginTTL := cfg.LoginTTL
	if loginTTL == 0 {
		loginTTL = 24 * time.Hour
	}
	actionTimeout := cfg.ActionTimeout
	if actionTimeout == 0 {
		actionTimeout = 10 * time.Second
	}

	s := &Server{
		state:          cfg.State,
		client:         cfg.Client,
		store:          cfg.Store,
		profile:        profile,
		guard:          NewActionGuard(),
		baseURL:        cfg.BaseURL,
		hostname:       cfg.Hostname,
		backendURL:     cfg.BackendURL,
		version:        cfg.Version,
		passwordHash:   cfg.PasswordHash,
		loginTTL:       loginTTL,
		actionTimeout:  actionTimeout,
		csrfProtection: http.NewCrossOriginProtection(),
		settingsInfo:   cfg.Settings,
	}

	templates, err := s.parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("web server initialization failed: failed to parse HTML templates: %w", err)
	}
	s.templates = templates

	return s, nil
}

// Run starts the web server
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web console on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// handler returns the http.Handler with base URL wrapping applied
func (s *Server) handler() http.Handler {
	routes := s.routes()
	if s.baseURL == "" {
		return routes
	}

	// handle base URL without trailing slash, then the stripped routes
	mux := http.NewServeMux()
	mux.HandleFunc(s.baseURL, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.baseURL+"/", http.StatusMovedPermanently)
	})
	mux.Handle(s.baseURL+"/", http.StripPrefix(s.baseURL, routes))
	return mux
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	// global middleware - applied to all routes
	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("syncview", "umputun", s.version),
		rest.Ping,
		rest.Trace,
		rest.SizeLimit(64*1024), // 64KB max request size
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	// auth must be wired before any routes are defined
	if s.passwordHash != "" {
		log.Printf("[INFO] authentication enabled for web console")
		router.Use(s.authMiddleware)
		router.HandleFunc("GET /login", s.handleLoginForm)
		router.With(s.csrfProtection.Handler, tollbooth.HTTPMiddleware(loginLimiter)).HandleFunc("POST /login", s.handleLogin)
		router.HandleFunc("GET /logout", s.handleLogout)
	}

	// pages
	router.HandleFunc("GET /", s.handleDashboard)
	router.HandleFunc("GET /runner", s.handleRunnerPage)
	router.HandleFunc("GET /downloads", s.handleDownloadsPage)
	router.HandleFunc("GET /history", s.handleHistoryPage)
	router.HandleFunc("GET /connections", s.handleConnectionsPage)

	// HTMX fragments polled by the pages
	router.Mount("/fragments").Route(func(f *routegroup.Bundle) {
		f.Use(rest.NoCache) // fragments must never be cached
		f.HandleFunc("GET /jobs", s.handleJobsFragment)
		f.HandleFunc("GET /activity", s.handleActivityFragment)
		f.HandleFunc("GET /runner-log", s.handleRunnerLogFragment)
		f.HandleFunc("GET /databases", s.handleDatabasesFragment)
		f.HandleFunc("GET /downloads", s.handleDownloadsFragment)
		f.HandleFunc("GET /check/{probe}", s.handleProbeFragment)
		f.HandleFunc("GET /jobs/{id}/edit", s.handleEditModal)
		f.HandleFunc("GET /settings", s.handleSettingsModal)
	})

	// action dispatchers, panel-side routes mirroring the backend ones
	actions := router.Group()
	actions.Use(rest.NoCache, s.csrfProtection.Handler)
	actions.HandleFunc("POST /jobs/create", s.handleCreateJob)
	actions.HandleFunc("POST /jobs/{id}/update", s.handleUpdateJob)
	actions.HandleFunc("POST /jobs/{id}/{action}", s.handleJobAction)
	actions.HandleFunc("POST /run/{mode}", s.handleRun)
	actions.HandleFunc("POST /download_now", s.handleDownloadNow)
	actions.HandleFunc("POST /save_masters", s.handleSaveMasters)
	actions.HandleFunc("POST /create_database", s.handleCreateDatabase)
	actions.HandleFunc("POST /theme", s.handleThemeToggle)
	actions.HandleFunc("POST /sort-mode", s.handleSortToggle)
	actions.HandleFunc("POST /filter-mode", s.handleFilterToggle)

	// JSON API for CLI/programmatic access
	router.Mount("/api/v1").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.HandleFunc("GET /status", s.handleAPIStatus)
		api.HandleFunc("GET /history", s.handleAPIHistory)
	})

	// static files with proper error handling
	fsys, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Printf("[ERROR] failed to create static file system: %v", err)
		router.Handle("GET /static/", http.FileServer(http.FS(staticFS)))
	} else {
		router.HandleFiles("/static/", http.FS(fsys))
	}

	return router
}

// render renders a template with a 200 status
func (s *Server) render(w http.ResponseWriter, page, tmplName string, data any) {
	s.renderStatus(w, http.StatusOK, page, tmplName, data)
}

// renderStatus renders a template with an explicit status code
func (s *Server) renderStatus(w http.ResponseWriter, status int, page, tmplName string, data any) {
	tmpl, ok := s.templates[page]
	if !ok {
		log.Printf("[WARN] template %s not found", page)
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, tmplName, data); err != nil {
		log.Printf("[WARN] failed to execute template: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}

// renderFragments renders several partial templates into one response, used
// for fragment responses that carry OOB updates.
func (s *Server) renderFragments(w http.ResponseWriter, status int, data TemplateData, names ...string) {
	tmpl, ok := s.templates["partials"]
	if !ok {
		log.Printf("[WARN] partials template not found")
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	buf := new(bytes.Buffer)
	for _, name := range names {
		if err := tmpl.ExecuteTemplate(buf, name, data); err != nil {
			log.Printf("[WARN] failed to execute template %s: %v", name, err)
			http.Error(w, "Template error", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}

// parseTemplates parses page and partial templates
func (s *Server) parseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)

	funcMap := template.FuncMap{
		"humanTime":     s.humanTime,
		"humanDuration": s.humanDuration,
		"timeUntil":     s.timeUntil,
		"since":         s.since,
		"truncate":      s.truncate,
		"url":           s.url,
		"jobKinds":      jobKinds,
		"warnLine":      warnLine,
		"runStatus":     s.runStatus,
		"previewNext":   s.previewNext,
		"pct":           pct,
		"loadAvg":       loadAvg,
	}

	// each page is parsed with the base layout and all partials
	for _, page := range []string{"dashboard", "runner", "downloads", "history", "connections"} {
		tmpl, err := template.New("base.html").Funcs(funcMap).ParseFS(templatesFS,
			"templates/base.html", "templates/"+page+".html", "templates/partials/*.html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", page, err)
		}
		templates[page] = tmpl
	}

	// parse partials separately for HTMX requests
	partials, err := template.New("partials").Funcs(funcMap).ParseFS(templatesFS,
		"templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse partials: %w", err)
	}
	templates["partials"] = partials

	// parse login template (standalone, doesn't use base)
	login, err := template.New("login.html").Funcs(funcMap).ParseFS(templatesFS, "templates/login.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse login template: %w", err)
	}
	templates["login"] = login

	return templates, nil
}

func (s *Server) getTheme(r *http.Request) enums.Theme {
	cookie, err := r.Cookie("theme")
	if err != nil {
		return enums.ThemeDark // default to dark when no cookie
	}
	theme, err := enums.ParseTheme(cookie.Value)
	if err != nil {
		log.Printf("[WARN] invalid theme %q: %v", cookie.Value, err)
		return enums.ThemeDark
	}
	return theme
}

// getSortMode gets the sort mode from cookie or defaults to "default"
func (s *Server) getSortMode(r *http.Request) enums.SortMode {
	cookie, err := r.Cookie("sort-mode")
	if err != nil || cookie.Value == "" {
		return enums.SortModeDefault
	}
	mode, err := enums.ParseSortMode(cookie.Value)
	if err != nil {
		log.Printf("[WARN] invalid sort mode cookie %q: %v", cookie.Value, err)
		return enums.SortModeDefault
	}
	return mode
}

// getFilterMode gets the filter mode from cookie or defaults to "all"
func (s *Server) getFilterMode(r *http.Request) enums.FilterMode {
	cookie, err := r.Cookie("filter-mode")
	if err != nil {
		return enums.FilterModeAll
	}
	mode, err := enums.ParseFilterMode(cookie.Value)
	if err != nil {
		log.Printf("[WARN] invalid filter mode %q: %v", cookie.Value, err)
		return enums.FilterModeAll
	}
	return mode
}

// cycleSortMode cycles through sort modes: default -> name -> nextrun -> default
func (s *Server) cycleSortMode(current enums.SortMode) enums.SortMode {
	switch current {
	case enums.SortModeDefault:
		return enums.SortModeName
	case enums.SortModeName:
		return enums.SortModeNextrun
	case enums.SortModeNextrun:
		return enums.SortModeDefault
	default:
		return enums.SortModeDefault
	}
}

// cycleFilterMode cycles through filter modes: all -> running -> idle -> all
func (s *Server) cycleFilterMode(current enums.FilterMode) enums.FilterMode {
	switch current {
	case enums.FilterModeAll:
		return enums.FilterModeRunning
	case enums.FilterModeRunning:
		return enums.FilterModeIdle
	case enums.FilterModeIdle:
		return enums.FilterModeAll
	default:
		return enums.FilterModeAll
	}
}

// setModeCookie stores a list preference cookie for a year
func (s *Server) setModeCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     s.cookiePath(),
		MaxAge:   365 * 24 * 60 * 60, // 1 year
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// template helper functions

func (s *Server) humanTime(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.Format("Jan 2, 15:04:05")
}

func (s *Server) humanDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

func (s *Server) timeUntil(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	d := time.Until(t)
	if d < 0 {
		return "Overdue"
	}
	return s.humanDuration(d)
}

func (s *Server) since(t time.Time) time.Duration {
	return time.Since(t)
}

func (s *Server) truncate(str string, n int) string {
	if len(str) <= n {
		return str
	}
	return str[:n] + "..."
}

// url prepends the base URL to a path for reverse proxy support
func (s *Server) url(path string) string {
	return s.baseURL + path
}

// cookiePath returns the cookie path with base URL support
func (s *Server) cookiePath() string {
	if s.baseURL == "" {
		return "/"
	}
	return s.baseURL + "/"
}

// runStatus renders the last manual trigger for the runner status label
func (s *Server) runStatus(st poller.RunState) string {
	if st.Mode == "" {
		return "idle"
	}
	if st.Failed {
		return fmt.Sprintf("%s failed: %s", st.Mode, st.Err)
	}
	return fmt.Sprintf("%s started %s", st.Mode, st.At.Format("15:04:05"))
}

// warnLine reports whether a log line should render highlighted
func warnLine(line string) bool {
	return strings.Contains(line, "warning:") || strings.Contains(line, "⚠")
}

// pct formats a percentage sampled by sysinfo, -1 means unavailable
func pct(v int) string {
	if v < 0 {
		return "n/a"
	}
	return fmt.Sprintf("%d%%", v)
}

// loadAvg formats a load average, negative means unavailable
func loadAvg(v float64) string {
	if v < 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

// shortVersion extracts a short version string from full version
// for version like "v1.7.0-abc1234-20241225", returns "v1.7.0"
func shortVersion(fullVer string) string {
	if fullVer == "" || fullVer == "unknown" {
		return fullVer
	}
	if idx := strings.Index(fullVer, "-"); idx > 0 {
		return fullVer[:idx]
	}
	return fullVer
}
