// Package scrape turns external sources into normalized record streams.
//
// Three scrapers share one contract: a fresh call re-scrapes from the
// beginning, emits each external ID at most once per invocation, stays
// inside the caller's item and wall-clock limits, and never lets one
// failed target abort the rest. Per-target retries go through the
// shared retry.Policy; errors are classified as TransientError
// (retryable) or PermanentError (mark and skip).
package scrape

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Limits bounds a single scraper invocation.
type Limits struct {
	// MaxItems caps the number of records emitted. Default: 100.
	MaxItems int
	// MaxDuration is the wall-clock budget for the whole invocation.
	// Default: 5m.
	MaxDuration time.Duration
	// PageDelay is the courtesy wait between scrolls/pages and between
	// targets. Default: 2s.
	PageDelay time.Duration
	// MaxScrolls caps scroll iterations on infinite-scroll pages.
	// Default: 10.
	MaxScrolls int
}

func (l Limits) defaults() Limits {
	if l.MaxItems <= 0 {
		l.MaxItems = 100
	}
	if l.MaxDuration <= 0 {
		l.MaxDuration = 5 * time.Minute
	}
	if l.PageDelay <= 0 {
		l.PageDelay = 2 * time.Second
	}
	if l.MaxScrolls <= 0 {
		l.MaxScrolls = 10
	}
	return l
}

// seen is the per-invocation dedup set keyed by external ID.
type seen map[string]bool

// add reports true when the ID is new to this invocation.
func (s seen) add(id string) bool {
	if id == "" || s[id] {
		return false
	}
	s[id] = true
	return true
}

// Retryable reports whether an error is worth another attempt under
// the shared retry policy: transient failures are, permanent are not.
func Retryable(err error) bool {
	var perm *PermanentError
	return !errors.As(err, &perm)
}

var countPattern = regexp.MustCompile(`^([0-9]+(?:[.,][0-9]+)?)\s*([KkMmBb]?)$`)

// parseCount parses engagement counters as platforms render them:
// "1234", "1.2K", "3,4M". Unparseable input yields 0; engagement is
// best-effort metadata, not worth failing a record over.
func parseCount(s string) int64 {
	s = strings.TrimSpace(s)
	m := countPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	num, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		num *= 1_000
	case "M":
		num *= 1_000_000
	case "B":
		num *= 1_000_000_000
	}
	return int64(num)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
