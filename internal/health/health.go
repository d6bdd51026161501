// Package health tracks decoder liveness: whether the ingest loop has seen
// TS traffic recently enough to call the stream healthy, surfaced over
// HTTP for container/orchestrator probes.
package health

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Tracker records the wall-clock time of the most recently processed TS
// packet and answers liveness checks against it. Safe for concurrent use;
// the ingest loop is single-threaded but the HTTP handler runs on its own
// goroutine.
type Tracker struct {
	lastSeenUnixNano atomic.Int64
	staleAfter       time.Duration
}

// NewTracker builds a Tracker that considers the stream stale once
// staleAfter has elapsed since the last recorded packet.
func NewTracker(staleAfter time.Duration) *Tracker {
	return &Tracker{staleAfter: staleAfter}
}

// Touch records that a TS packet was just processed.
func (t *Tracker) Touch(now time.Time) {
	t.lastSeenUnixNano.Store(now.UnixNano())
}

// Check returns nil if a packet was seen within staleAfter, otherwise an
// error describing how long the feed has been silent.
func (t *Tracker) Check(now time.Time) error {
	last := t.lastSeenUnixNano.Load()
	if last == 0 {
		return fmt.Errorf("no packets received yet")
	}
	since := now.Sub(time.Unix(0, last))
	if since > t.staleAfter {
		return fmt.Errorf("no packets received in %s (stale after %s)", since.Round(time.Second), t.staleAfter)
	}
	return nil
}

// Handler returns an http.HandlerFunc suitable for mounting at /healthz: 200
// when the feed is live, 503 with the failure reason otherwise.
func (t *Tracker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := t.Check(time.Now()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "unhealthy: %v\n", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}
}
