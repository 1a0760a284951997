// Package poller keeps a live snapshot of the backend, jobs, log feeds,
// databases and reachability. Two timer loops drive it, jobs plus activity
// log on the main interval and the runner log on a faster one. Every fetch
// carries a monotonic sequence number and a late response never overwrites
// a newer one. Mutations elsewhere call Kick to schedule a single delayed
// refresh outside the regular cadence.
package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
	"github.com/patrickmn/go-cache"

	"github.com/umputun/syncview/app/backend"
)

// SyncClient is the backend surface the poller needs.
type SyncClient interface {
	Jobs(ctx context.Context) ([]backend.Job, error)
	GetLogs(ctx context.Context) ([]string, error)
	Logs(ctx context.Context) ([]string, error)
	Databases(ctx context.Context) ([]string, error)
}

// Alerter gets backend health transitions. Implementations must not block
// for long, they are called from the poll loop.
type Alerter interface {
	BackendDown(ctx context.Context, failures int, lastErr error)
	BackendRecovered(ctx context.Context, downFor time.Duration)
}

// Params configures a Poller, zero values pick the defaults the panel
// always used.
type Params struct {
	Client         SyncClient
	Alerter        Alerter       // optional
	Interval       time.Duration // jobs+activity cadence, default 6s
	RunnerInterval time.Duration // runner log cadence, default 1s
	RefreshDelay   time.Duration // post-mutation one-shot delay, default 800ms
	MaxLogLines    int           // per feed, default 150
	DownAfter      int           // consecutive failures before down alert, default 3
	DBCacheTTL     time.Duration // databases cache, default 5m
}

// RunState is the last manual run trigger for the status label.
type RunState struct {
	Mode   string
	At     time.Time
	Failed bool
	Err    string
}

// Snapshot is a point-in-time copy of everything the consoles render.
type Snapshot struct {
	Jobs       []backend.Job
	JobsLoaded bool
	Activity   []string
	Runner     []string
	Databases  []string
	BackendUp  bool
	LastPoll   time.Time
	LastRun    RunState
}

// Poller owns the polling loops and the state they feed.
type Poller struct {
	client  SyncClient
	alerter Alerter

	interval       time.Duration
	runnerInterval time.Duration
	refreshDelay   time.Duration
	downAfter      int

	activity *Feed
	runner   *Feed

	dbCache *cache.Cache

	mu         sync.RWMutex
	jobs       []backend.Job
	jobsLoaded bool
	databases  []string
	lastPoll   time.Time
	lastRun    RunState
	up         bool
	failures   int
	downSince  time.Time

	jobsGate     seqGate
	activityGate seqGate
	runnerGate   seqGate

	refreshCh   chan struct{}
	kickPending atomic.Bool
}

const dbCacheKey = "databases"

// New creates a Poller, the client is required.
func New(p Params) *Poller {
	if p.Interval <= 0 {
		p.Interval = 6 * time.Second
	}
	if p.RunnerInterval <= 0 {
		p.RunnerInterval = time.Second
	}
	if p.RefreshDelay <= 0 {
		p.RefreshDelay = 800 * time.Millisecond
	}
	if p.MaxLogLines <= 0 {
		p.MaxLogLines = 150
	}
	if p.DownAfter <= 0 {
		p.DownAfter = 3
	}
	if p.DBCacheTTL <= 0 {
		p.DBCacheTTL = 5 * time.Minute
	}

	return &Poller{
		client:         p.Client,
		alerter:        p.Alerter,
		interval:       p.Interval,
		runnerInterval: p.RunnerInterval,
		refreshDelay:   p.RefreshDelay,
		downAfter:      p.DownAfter,
		activity:       NewFeed(p.MaxLogLines),
		runner:         NewFeed(p.MaxLogLines),
		dbCache:        cache.New(p.DBCacheTTL, 2*p.DBCacheTTL),
		up:             true,
		refreshCh:      make(chan struct{}, 1),
	}
}

// Run blocks polling the backend until the context is canceled. The first
// cycle of each loop fires immediately so consoles have data to render.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("[INFO] poller started, jobs every %v, runner log every %v", p.interval, p.runnerInterval)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runnerLoop(ctx)
	}()

	p.pollMain(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			log.Printf("[INFO] poller terminated")
			return
		case <-ticker.C:
			p.pollMain(ctx)
		case <-p.refreshCh:
			p.pollMain(ctx)
		}
	}
}

// Kick schedules a single jobs+activity refresh after the configured delay.
// Repeated calls while one is pending coalesce into a single refresh.
func (p *Poller) Kick() {
	if !p.kickPending.CompareAndSwap(false, true) {
		return
	}
	time.AfterFunc(p.refreshDelay, func() {
		p.kickPending.Store(false)
		select {
		case p.refreshCh <- struct{}{}:
		default:
		}
	})
}

// Snapshot returns a copy of the current state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		Jobs:       append([]backend.Job(nil), p.jobs...),
		JobsLoaded: p.jobsLoaded,
		Activity:   p.activity.Lines(),
		Runner:     p.runner.Lines(),
		Databases:  append([]string(nil), p.databases...),
		BackendUp:  p.up,
		LastPoll:   p.lastPoll,
		LastRun:    p.lastRun,
	}
}

// Note appends a line to the activity feed. It survives until the next
// successful activity poll replaces the feed.
func (p *Poller) Note(line string) {
	p.activity.Append(line)
}

// RunStarted records a manual run trigger before the request is made, the
// status label updates optimistically like the portal always did.
func (p *Poller) RunStarted(mode backend.RunMode) {
	p.mu.Lock()
	p.lastRun = RunState{Mode: string(mode), At: time.Now()}
	p.mu.Unlock()
	p.runner.Append(fmt.Sprintf("starting %s sync", mode))
}

// RunFailed marks the last trigger failed and surfaces the error in the
// runner feed.
func (p *Poller) RunFailed(mode backend.RunMode, err error) {
	p.mu.Lock()
	if p.lastRun.Mode == string(mode) {
		p.lastRun.Failed = true
		p.lastRun.Err = err.Error()
	}
	p.mu.Unlock()
	p.runner.Append(fmt.Sprintf("warning: failed to start %s sync: %v", mode, err))
}

// Databases returns the database list through a TTL cache. A failed fetch
// appends exactly one warning line to the activity feed and returns the
// last known list unchanged.
func (p *Poller) Databases(ctx context.Context) []string {
	if v, ok := p.dbCache.Get(dbCacheKey); ok {
		if dbs, castOK := v.([]string); castOK {
			return dbs
		}
	}

	dbs, err := p.client.Databases(ctx)
	if err != nil {
		log.Printf("[WARN] failed to load databases: %v", err)
		p.activity.Append(fmt.Sprintf("warning: failed to load databases: %v", err))
		p.mu.RLock()
		defer p.mu.RUnlock()
		return append([]string(nil), p.databases...)
	}

	p.dbCache.Set(dbCacheKey, dbs, cache.DefaultExpiration)
	p.mu.Lock()
	p.databases = append([]string(nil), dbs...)
	p.mu.Unlock()
	return dbs
}

// InvalidateDatabases drops the cached list, used after a database is
// created so the next dropdown render shows it.
func (p *Poller) InvalidateDatabases() {
	p.dbCache.Delete(dbCacheKey)
}

// pollMain fetches jobs and the activity log concurrently and applies
// whichever results are still the newest. The jobs warning is appended
// after both fetches so the same cycle's activity replace can't wipe it.
func (p *Poller) pollMain(ctx context.Context) {
	jobsSeq := p.jobsGate.begin()
	activitySeq := p.activityGate.begin()

	var jobsErr error
	var jobsStale bool
	gr := syncs.NewSizedGroup(2, syncs.Context(ctx))
	gr.Go(func(ctx context.Context) { jobsStale, jobsErr = p.fetchJobs(ctx, jobsSeq) })
	gr.Go(func(ctx context.Context) { p.fetchActivity(ctx, activitySeq) })
	gr.Wait()

	if jobsErr != nil && !jobsStale {
		log.Printf("[WARN] failed to fetch jobs: %v", jobsErr)
		p.activity.Append(fmt.Sprintf("warning: failed to refresh jobs: %v", jobsErr))
	}

	p.mu.Lock()
	p.lastPoll = time.Now()
	p.mu.Unlock()
}

func (p *Poller) fetchJobs(ctx context.Context, seq uint64) (stale bool, err error) {
	jobs, err := p.client.Jobs(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.jobsGate.tryApply(seq) {
		log.Printf("[DEBUG] stale jobs response %d discarded", seq)
		return true, err
	}
	if err != nil {
		p.noteFailureLocked(ctx, err)
		return false, err
	}
	p.jobs = jobs
	p.jobsLoaded = true
	p.noteSuccessLocked(ctx)
	return false, nil
}

func (p *Poller) fetchActivity(ctx context.Context, seq uint64) {
	lines, err := p.client.GetLogs(ctx)
	if err != nil {
		// jobs fetch drives health accounting, here only the feed reacts
		if p.activityGate.tryApply(seq) {
			log.Printf("[WARN] failed to fetch activity log: %v", err)
			p.activity.Append(fmt.Sprintf("warning: failed to refresh logs: %v", err))
		}
		return
	}
	if !p.activityGate.tryApply(seq) {
		log.Printf("[DEBUG] stale activity response %d discarded", seq)
		return
	}
	p.activity.Replace(lines)
}

func (p *Poller) runnerLoop(ctx context.Context) {
	p.fetchRunner(ctx, p.runnerGate.begin())

	ticker := time.NewTicker(p.runnerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetchRunner(ctx, p.runnerGate.begin())
		}
	}
}

func (p *Poller) fetchRunner(ctx context.Context, seq uint64) {
	lines, err := p.client.Logs(ctx)
	if err != nil {
		if p.runnerGate.tryApply(seq) {
			p.runner.Append(fmt.Sprintf("warning: failed to refresh runner log: %v", err))
		}
		return
	}
	if !p.runnerGate.tryApply(seq) {
		log.Printf("[DEBUG] stale runner response %d discarded", seq)
		return
	}
	p.runner.Replace(lines)
}

// noteFailureLocked counts a failed cycle and flips health down past the
// threshold. Callers hold p.mu.
func (p *Poller) noteFailureLocked(ctx context.Context, err error) {
	p.failures++
	if p.up && p.failures >= p.downAfter {
		p.up = false
		p.downSince = time.Now()
		log.Printf("[ERROR] backend is down after %d failed polls: %v", p.failures, err)
		if p.alerter != nil {
			failures := p.failures
			go p.alerter.BackendDown(ctx, failures, err)
		}
	}
}

// noteSuccessLocked resets the failure count and reports recovery when the
// backend was down. Callers hold p.mu.
func (p *Poller) noteSuccessLocked(ctx context.Context) {
	if !p.up {
		downFor := time.Since(p.downSince)
		log.Printf("[INFO] backend recovered after %v", downFor.Round(time.Second))
		if p.alerter != nil {
			go p.alerter.BackendRecovered(ctx, downFor)
		}
	}
	p.up = true
	p.failures = 0
}

// seqGate hands out monotonically increasing sequence numbers and lets
// only the newest one apply its result.
type seqGate struct {
	next    atomic.Uint64
	applied atomic.Uint64
}

func (g *seqGate) begin() uint64 { return g.next.Add(1) }

// tryApply reports whether seq is newer than everything applied so far and
// claims it when so.
func (g *seqGate) tryApply(seq uint64) bool {
	for {
		cur := g.applied.Load()
		if seq <= cur {
			return false
		}
		if g.applied.CompareAndSwap(cur, seq) {
			return true
		}
	}
}
