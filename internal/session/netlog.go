package session

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

// networkLog accumulates response events while the page settles.
type networkLog struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *networkLog) add(entry LogEntry) {
	if len(entry.Headers) == 0 {
		return
	}
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

func (l *networkLog) snapshot() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

func (l *networkLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// settle waits up to window for both tokens to appear, checking every poll.
// The last extraction result is returned when the window closes.
func (l *networkLog) settle(ctx context.Context, window, poll time.Duration) (crawler.Credential, error) {
	if poll <= 0 || poll > window {
		poll = window
	}
	deadline := time.NewTimer(window)
	defer deadline.Stop()
	var tick <-chan time.Time
	if poll > 0 {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if cred, err := ExtractCredential(l.snapshot()); err == nil {
			return cred, nil
		}
		select {
		case <-ctx.Done():
			return crawler.Credential{}, &crawler.AcquisitionError{Cause: ctx.Err()}
		case <-deadline.C:
			return ExtractCredential(l.snapshot())
		case <-tick:
		}
	}
}
