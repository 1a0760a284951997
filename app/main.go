package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/syncview/app/alerts"
	"github.com/umputun/syncview/app/backend"
	"github.com/umputun/syncview/app/config"
	"github.com/umputun/syncview/app/poller"
	"github.com/umputun/syncview/app/tui"
	"github.com/umputun/syncview/app/web"
	"github.com/umputun/syncview/app/web/persistence"
)

var opts struct {
	Console bool   `long:"console" env:"SYNCVIEW_CONSOLE" description:"run the terminal console instead of the web server"`
	Config  string `short:"f" long:"config" env:"SYNCVIEW_CONFIG" description:"profile file with master catalogs and alert destinations"`
	Dbg     bool   `long:"dbg" env:"SYNCVIEW_DEBUG" description:"debug mode"`

	Backend struct {
		URL     string        `long:"url" env:"URL" default:"http://localhost:8080" description:"sync backend base URL"`
		Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"per-request timeout"`
	} `group:"backend" namespace:"backend" env-namespace:"SYNCVIEW_BACKEND"`

	Poll struct {
		Interval       time.Duration `long:"interval" env:"INTERVAL" default:"6s" description:"jobs and activity poll cadence"`
		RunnerInterval time.Duration `long:"runner-interval" env:"RUNNER_INTERVAL" default:"1s" description:"runner log poll cadence"`
		RefreshDelay   time.Duration `long:"refresh-delay" env:"REFRESH_DELAY" default:"800ms" description:"one-shot refresh delay after mutations"`
		MaxLogLines    int           `long:"max-log" env:"MAX_LOG" default:"150" description:"max lines kept per log feed"`
	} `group:"poll" namespace:"poll" env-namespace:"SYNCVIEW_POLL"`

	Web struct {
		Address      string        `long:"address" env:"ADDRESS" default:":8081" description:"web console listen address"`
		BaseURL      string        `long:"base-url" env:"BASE_URL" description:"base URL path when behind a reverse proxy, e.g. /syncview"`
		PasswordHash string        `long:"password-hash" env:"PASSWORD_HASH" description:"bcrypt hash of the operator password, empty disables auth"`
		LoginTTL     time.Duration `long:"login-ttl" env:"LOGIN_TTL" default:"24h" description:"auth cookie lifetime"`
		HostName     string        `long:"hostname" env:"HOSTNAME" description:"host name shown in the console"`
	} `group:"web" namespace:"web" env-namespace:"SYNCVIEW_WEB"`

	Audit struct {
		File      string        `long:"file" env:"FILE" default:"syncview.db" description:"audit database file"`
		Retention time.Duration `long:"retention" env:"RETENTION" default:"720h" description:"prune audit entries older than this"`
	} `group:"audit" namespace:"audit" env-namespace:"SYNCVIEW_AUDIT"`

	Probe struct {
		Attempts int           `long:"attempts" env:"ATTEMPTS" default:"5" description:"startup probe attempts before giving up"`
		Duration time.Duration `long:"duration" env:"DURATION" default:"1s" description:"initial backoff duration"`
		Factor   float64       `long:"factor" env:"FACTOR" default:"2" description:"backoff factor"`
		Jitter   bool          `long:"jitter" env:"JITTER" description:"jitter"`
	} `group:"probe" namespace:"probe" env-namespace:"SYNCVIEW_PROBE"`

	Notify struct {
		TelegramToken string        `long:"telegram-token" env:"TELEGRAM_TOKEN" description:"telegram bot token for telegram: destinations"`
		SMTPHost      string        `long:"smtp-host" env:"SMTP_HOST" description:"SMTP host for mailto: destinations"`
		SMTPPort      int           `long:"smtp-port" env:"SMTP_PORT" default:"587" description:"SMTP port"`
		SMTPUsername  string        `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP user name"`
		SMTPPassword  string        `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`
		SMTPTLS       bool          `long:"smtp-tls" env:"SMTP_TLS" description:"enable SMTP TLS"`
		Timeout       time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"per-destination send timeout"`
	} `group:"notify" namespace:"notify" env-namespace:"SYNCVIEW_NOTIFY"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable file logging"`
		Filename        string `long:"file" env:"FILE" default:"syncview.log" description:"log file name"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"maximum log file size in megabytes"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"maximum number of rotated files"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"maximum days to retain old files"`
		EnabledCompress bool   `long:"enabled-compress" env:"ENABLED_COMPRESS" description:"gzip rotated files"`
	} `group:"log" namespace:"log" env-namespace:"SYNCVIEW_LOG"`
}

var revision = "unknown"

func main() {
	fmt.Printf("syncview %s\n", revision)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("failed to load .env file: %v\n", err)
	}
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT and SIGTERM

	if err := run(ctx); err != nil {
		log.Printf("[ERROR] syncview failed, %v", err)
		os.Exit(1)
	}
}

// run wires the client, poller, audit store and the selected front-end,
// blocks until ctx is canceled or the front-end quits.
func run(ctx context.Context) error {
	client, err := backend.New(opts.Backend.URL, opts.Backend.Timeout)
	if err != nil {
		return fmt.Errorf("failed to make backend client: %w", err)
	}

	profile, err := loadProfile()
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	store, err := persistence.NewSQLiteStore(opts.Audit.File)
	if err != nil {
		return fmt.Errorf("failed to open audit store %s: %w", opts.Audit.File, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("[WARN] failed to close audit store: %v", err)
		}
	}()
	if err := store.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize audit store: %w", err)
	}

	if err := probeBackend(ctx, client); err != nil {
		log.Printf("[WARN] backend %s unreachable, starting anyway: %v", opts.Backend.URL, err)
	}

	p := poller.New(poller.Params{
		Client:         client,
		Alerter:        &auditedAlerter{sender: makeAlerter(profile), store: store},
		Interval:       opts.Poll.Interval,
		RunnerInterval: opts.Poll.RunnerInterval,
		RefreshDelay:   opts.Poll.RefreshDelay,
		MaxLogLines:    opts.Poll.MaxLogLines,
		DownAfter:      profile.Notify.DownAfter,
	})
	go p.Run(ctx)

	pruner := startAuditPrune(store)
	defer pruner.Stop()

	if opts.Console {
		return tui.Run(ctx, tui.Config{
			State:         p,
			Client:        client,
			Store:         store,
			Version:       revision,
			ActionTimeout: opts.Backend.Timeout,
		})
	}

	srv, err := web.New(web.Config{
		State:         p,
		Client:        client,
		Store:         store,
		Profile:       profile,
		BaseURL:       validateBaseURL(opts.Web.BaseURL),
		Hostname:      makeHostName(),
		BackendURL:    opts.Backend.URL,
		Version:       revision,
		PasswordHash:  opts.Web.PasswordHash,
		LoginTTL:      opts.Web.LoginTTL,
		ActionTimeout: opts.Backend.Timeout,
		Settings: web.SettingsInfo{
			Version:         revision,
			StartTime:       time.Now(),
			BackendURL:      opts.Backend.URL,
			PollInterval:    opts.Poll.Interval,
			RunnerInterval:  opts.Poll.RunnerInterval,
			RefreshDelay:    opts.Poll.RefreshDelay,
			MaxLogLines:     opts.Poll.MaxLogLines,
			DownAfter:       profile.Notify.DownAfter,
			WebAddress:      opts.Web.Address,
			AuthEnabled:     opts.Web.PasswordHash != "",
			AuditPath:       opts.Audit.File,
			AuditRetention:  opts.Audit.Retention,
			NotifyDestCount: len(profile.Notify.Destinations),
			LoggingEnabled:  opts.Log.Enabled,
			DebugMode:       opts.Dbg,
			LogFilePath:     opts.Log.Filename,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to make web server: %w", err)
	}
	return srv.Run(ctx, opts.Web.Address)
}

// probeBackend pings the backend with backoff retries. Failure is not fatal,
// the caller starts anyway and the dashboard shows the down state.
func probeBackend(ctx context.Context, client *backend.Client) error {
	rptr := repeater.New(&strategy.Backoff{Repeats: opts.Probe.Attempts, Duration: opts.Probe.Duration,
		Factor: opts.Probe.Factor, Jitter: opts.Probe.Jitter})
	return rptr.Do(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, opts.Backend.Timeout)
		defer cancel()
		_, err := client.Jobs(reqCtx)
		return err
	})
}

// startAuditPrune schedules the nightly retention cleanup.
func startAuditPrune(store *persistence.SQLiteStore) *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc("0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		removed, err := store.Prune(ctx, opts.Audit.Retention)
		if err != nil {
			log.Printf("[WARN] audit prune failed: %v", err)
			return
		}
		log.Printf("[INFO] audit prune removed %d entries older than %v", removed, opts.Audit.Retention)
	})
	if err != nil {
		log.Printf("[WARN] failed to schedule audit prune: %v", err)
	}
	c.Start()
	return c
}

func loadProfile() (*config.File, error) {
	if opts.Config == "" {
		return config.Default(), nil
	}
	return config.Load(opts.Config)
}

func makeAlerter(profile *config.File) *alerts.Sender {
	return alerts.New(alerts.Params{
		Destinations:  profile.Notify.Destinations,
		BackendURL:    opts.Backend.URL,
		TelegramToken: opts.Notify.TelegramToken,
		SMTPHost:      opts.Notify.SMTPHost,
		SMTPPort:      opts.Notify.SMTPPort,
		SMTPUsername:  opts.Notify.SMTPUsername,
		SMTPPassword:  opts.Notify.SMTPPassword,
		SMTPTLS:       opts.Notify.SMTPTLS,
		Timeout:       opts.Notify.Timeout,
	})
}

// auditedAlerter records backend health transitions in the audit store
// before fanning them out to the configured destinations.
type auditedAlerter struct {
	sender *alerts.Sender
	store  *persistence.SQLiteStore
}

func (a *auditedAlerter) BackendDown(ctx context.Context, failures int, lastErr error) {
	a.record(ctx, fmt.Sprintf("backend down after %d failed polls", failures), lastErr.Error())
	a.sender.BackendDown(ctx, failures, lastErr)
}

func (a *auditedAlerter) BackendRecovered(ctx context.Context, downFor time.Duration) {
	a.record(ctx, fmt.Sprintf("backend recovered after %s", downFor.Round(time.Second)), "ok")
	a.sender.BackendRecovered(ctx, downFor)
}

func (a *auditedAlerter) record(ctx context.Context, detail, outcome string) {
	e := persistence.Entry{TS: time.Now(), Surface: "poller", Kind: persistence.KindAlert, Detail: detail, Outcome: outcome}
	if err := a.store.Record(ctx, e); err != nil {
		log.Printf("[WARN] failed to record alert entry: %v", err)
	}
}

func makeHostName() string {
	if opts.Web.HostName != "" {
		return opts.Web.HostName
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// validateBaseURL normalizes the reverse-proxy base path, root and empty
// both mean "no prefix".
func validateBaseURL(baseURL string) string {
	if baseURL == "" || baseURL == "/" {
		return ""
	}
	if !strings.HasPrefix(baseURL, "/") {
		baseURL = "/" + baseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// setupLogs configures lgr and returns the writer logs go to, stdout unless
// file logging is enabled. The terminal console owns the screen, so console
// mode without a log file discards log output.
func setupLogs() io.Writer {
	logOpts := []log.Option{log.Msec, log.LevelBraces}
	if opts.Dbg {
		logOpts = append(logOpts, log.Debug, log.CallerFunc, log.CallerPkg, log.CallerFile)
	}

	if opts.Log.Enabled {
		fileWriter := &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxBackups: opts.Log.MaxBackups,
			MaxAge:     opts.Log.MaxAge,
			Compress:   opts.Log.EnabledCompress,
		}
		log.Setup(append(logOpts, log.Out(fileWriter))...)
		return fileWriter
	}

	if opts.Console {
		log.Setup(append(logOpts, log.Out(io.Discard), log.Err(io.Discard))...)
		return io.Discard
	}

	log.Setup(logOpts...)
	return os.Stdout
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			cancel() // terminate on SIGTERM or SIGINT
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
}
