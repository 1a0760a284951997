// Package tui implements the terminal flavor of the operator console. It
// renders the same poller state the web console serves and drives the same
// backend dispatchers, with keyboard-driven job actions and run triggers.
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/go-pkgz/lgr"

	"github.com/umputun/syncview/app/backend"
	"github.com/umputun/syncview/app/poller"
	"github.com/umputun/syncview/app/web/persistence"
)

// StateProvider is the poller surface the console renders from and nudges
// after mutations.
type StateProvider interface {
	Snapshot() poller.Snapshot
	Note(line string)
	Kick()
	RunStarted(mode backend.RunMode)
	RunFailed(mode backend.RunMode, err error)
}

// Dispatcher is the slice of the backend client the console drives.
type Dispatcher interface {
	Run(ctx context.Context, mode backend.RunMode, db string) error
	StartJob(ctx context.Context, id string) error
	StopJob(ctx context.Context, id string) error
	DeleteJob(ctx context.Context, id string) error
}

// Auditor records operator actions in the history store.
type Auditor interface {
	Record(ctx context.Context, e persistence.Entry) error
}

// Config holds console configuration
type Config struct {
	State         StateProvider
	Client        Dispatcher
	Store         Auditor
	Version       string
	ActionTimeout time.Duration // per-dispatch deadline, defaults to 10s
}

// Console is the bubbletea model for the terminal console
type Console struct {
	state         StateProvider
	client        Dispatcher
	store         Auditor
	version       string
	actionTimeout time.Duration

	snap   poller.Snapshot
	rows   []jobRow
	cursor int

	width  int
	height int

	status  string
	pending string // "id/action" while a job dispatch is in flight
	confirm string // job id armed for delete confirmation
}

// messages driving the update loop
type (
	tickMsg       time.Time
	actionDoneMsg struct {
		action, id, name string
		err              error
	}
	runDoneMsg struct {
		mode backend.RunMode
		err  error
	}
)

// New creates a console model
func New(cfg Config) (*Console, error) {
	if cfg.State == nil {
		return nil, fmt.Errorf("console initialization failed: State is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("console initialization failed: Client is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("console initialization failed: Store is required")
	}

	actionTimeout := cfg.ActionTimeout
	if actionTimeout == 0 {
		actionTimeout = 10 * time.Second
	}

	return &Console{
		state:         cfg.State,
		client:        cfg.Client,
		store:         cfg.Store,
		version:       cfg.Version,
		actionTimeout: actionTimeout,
		width:         100,
		height:        30,
		status:        "loading jobs...",
	}, nil
}

// Run starts the console and blocks until quit or ctx cancellation
func Run(ctx context.Context, cfg Config) error {
	c, err := New(cfg)
	if err != nil {
		return err
	}

	log.Printf("[INFO] starting terminal console")
	p := tea.NewProgram(c, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return nil // external shutdown, not a console failure
		}
		return fmt.Errorf("console terminated: %w", err)
	}
	return nil
}

// Init schedules the first redraw tick
func (c *Console) Init() tea.Cmd {
	c.refresh()
	return tick()
}

// tick drives the redraw loop. The poller refreshes jobs and the runner log
// on its own cadences, a one second tick is enough to surface both.
func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// refresh pulls the latest snapshot and rebuilds the table rows
func (c *Console) refresh() {
	c.snap = c.state.Snapshot()
	c.rows = buildRows(c.snap.Jobs)
	if c.cursor >= len(c.rows) {
		c.cursor = len(c.rows) - 1
	}
	if c.cursor < 0 {
		c.cursor = 0
	}
}

// Update handles messages
func (c *Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height

	case tickMsg:
		c.refresh()
		return c, tick()

	case tea.KeyMsg:
		return c.handleKey(msg)

	case actionDoneMsg:
		c.pending = ""
		if msg.err != nil {
			c.state.Note(fmt.Sprintf("warning: failed to %s job %q: %v", msg.action, msg.name, msg.err))
			c.status = fmt.Sprintf("failed to %s %q: %v", msg.action, msg.name, msg.err)
			return c, nil
		}
		c.state.Note(fmt.Sprintf("job %q %s requested", msg.name, msg.action))
		c.state.Kick()
		c.status = fmt.Sprintf("job %q %s requested", msg.name, msg.action)

	case runDoneMsg:
		if msg.err != nil {
			c.state.RunFailed(msg.mode, msg.err)
			c.status = fmt.Sprintf("%s run failed: %v", msg.mode, msg.err)
			return c, nil
		}
		c.status = fmt.Sprintf("%s run started", msg.mode)
	}

	return c, nil
}

// handleKey handles a key press
func (c *Console) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// any key other than the second d drops the armed delete
	if c.confirm != "" && key != "d" {
		c.confirm = ""
	}

	switch key {
	case "q", "ctrl+c":
		return c, tea.Quit

	case "up", "k":
		if c.cursor > 0 {
			c.cursor--
		}

	case "down", "j":
		if c.cursor < len(c.rows)-1 {
			c.cursor++
		}

	case "r":
		c.state.Kick()
		c.status = "refresh requested"

	case "1":
		return c, c.triggerRun(backend.ModeRunOnce)
	case "2":
		return c, c.triggerRun(backend.ModeScheduler)
	case "3":
		return c, c.triggerRun(backend.ModeInteractive)

	case "s":
		row, ok := c.selected()
		if !ok {
			return c, nil
		}
		if row.running {
			c.status = fmt.Sprintf("%q is already running", row.name)
			return c, nil
		}
		return c, c.dispatch("start", row)

	case "x":
		row, ok := c.selected()
		if !ok {
			return c, nil
		}
		if !row.running {
			c.status = fmt.Sprintf("%q is not running", row.name)
			return c, nil
		}
		return c, c.dispatch("stop", row)

	case "d":
		row, ok := c.selected()
		if !ok {
			return c, nil
		}
		if c.confirm != row.id {
			c.confirm = row.id
			c.status = fmt.Sprintf("press d again to delete %q", row.name)
			return c, nil
		}
		c.confirm = ""
		return c, c.dispatch("delete", row)

	case "esc":
		c.status = ""
	}

	return c, nil
}

// selected returns the row under the cursor
func (c *Console) selected() (jobRow, bool) {
	if c.cursor < 0 || c.cursor >= len(c.rows) {
		return jobRow{}, false
	}
	return c.rows[c.cursor], true
}

// triggerRun flips the runner status optimistically and dispatches the mode
func (c *Console) triggerRun(mode backend.RunMode) tea.Cmd {
	c.state.RunStarted(mode)
	c.status = fmt.Sprintf("%s run requested", mode)

	client := c.client
	timeout := c.actionTimeout
	audit := c.audit
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := client.Run(ctx, mode, "")
		audit(persistence.KindRun, "", "", string(mode), outcome(err))
		return runDoneMsg{mode: mode, err: err}
	}
}

// dispatch issues a job action, one at a time
func (c *Console) dispatch(action string, row jobRow) tea.Cmd {
	key := row.id + "/" + action
	if c.pending != "" {
		c.status = "another action is in flight"
		return nil
	}
	c.pending = key
	c.status = fmt.Sprintf("%s %q...", action, row.name)

	client := c.client
	timeout := c.actionTimeout
	audit := c.audit
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var err error
		switch action {
		case "start":
			err = client.StartJob(ctx, row.id)
		case "stop":
			err = client.StopJob(ctx, row.id)
		case "delete":
			err = client.DeleteJob(ctx, row.id)
		}
		audit(persistence.KindAction, row.id, row.name, action, outcome(err))
		return actionDoneMsg{action: action, id: row.id, name: row.name, err: err}
	}
}

// audit records an operator action, failures only logged. Called from
// command goroutines, uses its own deadline.
func (c *Console) audit(kind, jobID, jobName, detail, outcome string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e := persistence.Entry{
		TS:      time.Now(),
		Surface: "tui",
		Kind:    kind,
		JobID:   jobID,
		JobName: jobName,
		Detail:  detail,
		Outcome: outcome,
	}
	if err := c.store.Record(ctx, e); err != nil {
		log.Printf("[WARN] failed to record audit entry: %v", err)
	}
}

func outcome(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
