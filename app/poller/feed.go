package poller

import "sync"

// Feed is a bounded log feed. Each successful poll replaces the content
// wholesale keeping the newest max lines, locally appended notes live only
// until the next replace. Thread safe.
type Feed struct {
	max   int
	lines []string
	mu    sync.Mutex
}

// NewFeed creates a feed limited to max lines, zero or negative disables
// trimming.
func NewFeed(maximum int) *Feed {
	return &Feed{max: maximum}
}

// Replace swaps the feed content with the newest max lines of the given
// slice, order preserved.
func (f *Feed) Replace(lines []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.max > 0 && len(lines) > f.max {
		lines = lines[len(lines)-f.max:]
	}
	f.lines = append([]string(nil), lines...)
}

// Append adds a single line at the tail, trimming the oldest when over
// the limit.
func (f *Feed) Append(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.max > 0 && len(f.lines) >= f.max {
		f.lines = f.lines[1:]
	}
	f.lines = append(f.lines, line)
}

// Lines returns a copy of the current content, oldest first.
func (f *Feed) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// Len returns the current number of lines.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lines)
}
