package backend

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Job is the backend's job record as returned by /jobs and /jobs/create.
// Type and Status are kept as raw strings so unknown values coming from
// newer backends survive round-tripping and still render.
type Job struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	DB        string  `json:"db"`
	Interval  Minutes `json:"interval"`
	Time      string  `json:"time"`
	Day       Day     `json:"day"`
	Date      string  `json:"date"`
	AutoStart bool    `json:"auto_start"`
	Status    string  `json:"status"`
	NextRun   string  `json:"next_run"`
}

// Running reports whether the backend marked the job as running.
func (j Job) Running() bool { return j.Status == "running" }

// NextRunTime parses the backend's next_run stamp in the local zone.
// The second return is false when the field is empty or unparseable.
func (j Job) NextRunTime() (time.Time, bool) {
	if j.NextRun == "" {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", j.NextRun, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// JobRequest is the body for /jobs/create and /jobs/{id}/update.
// Name and DB may be empty, the backend fills defaults on create.
type JobRequest struct {
	Name      string  `json:"name,omitempty"`
	DB        string  `json:"db,omitempty"`
	Type      string  `json:"type"`
	Interval  Minutes `json:"interval"`
	Time      string  `json:"time"`
	Day       Day     `json:"day"`
	Date      string  `json:"date"`
	AutoStart bool    `json:"auto_start"`
}

// Minutes tolerates both numeric and quoted values on the wire. The backend
// echoes update payloads verbatim, so a job updated with "15" comes back as
// a string even though create always returns a number.
type Minutes int

// UnmarshalJSON accepts 15, "15", "" and null.
func (m *Minutes) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = 0
		return nil
	}
	v, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("invalid minutes value %q: %w", b, err)
	}
	*m = Minutes(v)
	return nil
}

// Day holds a weekday name for weekly jobs or a day-of-month for monthly
// ones. Numeric wire values are converted to their decimal string form.
type Day string

// UnmarshalJSON accepts "monday", 5, "5" and null.
func (d *Day) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}
	if len(b) >= 2 && b[0] == '"' {
		var s string
		if err := unquote(b, &s); err != nil {
			return err
		}
		*d = Day(s)
		return nil
	}
	if _, err := strconv.Atoi(string(b)); err != nil {
		return fmt.Errorf("invalid day value %q", b)
	}
	*d = Day(b)
	return nil
}

func unquote(b []byte, out *string) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("invalid day value %q: %w", b, err)
	}
	*out = s
	return nil
}

// RunMode selects what /run/{mode} triggers on the backend.
type RunMode string

// run modes understood by the backend
const (
	ModeInteractive RunMode = "interactive"
	ModeRunOnce     RunMode = "runonce"
	ModeScheduler   RunMode = "scheduler"
	ModeSelected    RunMode = "selected"
)

// ParseRunMode validates a mode string coming from a route or key press.
func ParseRunMode(s string) (RunMode, error) {
	switch m := RunMode(s); m {
	case ModeInteractive, ModeRunOnce, ModeScheduler, ModeSelected:
		return m, nil
	}
	return "", fmt.Errorf("unknown run mode %q", s)
}

// CheckResult is the outcome of /api/check_sql and /api/check_tally probes.
type CheckResult struct {
	OK  bool   `json:"ok"`
	Msg string `json:"msg"`
}

// DownloadReceipt acknowledges a /download_now trigger.
type DownloadReceipt struct {
	Status string `json:"status"`
	TS     string `json:"ts"`
}

// DownloadEntry is one row of /get_download_history.
type DownloadEntry struct {
	TS     string `json:"ts"`
	DB     string `json:"db"`
	Note   string `json:"note"`
	Status string `json:"status"`
}
