// Package ratelimit implements the per-direction byte-rate meter described
// in spec.md §4.1 (C1): a sliding-window sample ring that answers rate()
// queries, paired with a golang.org/x/time/rate token bucket that actually
// gates BelowCap (via a Reserve/Cancel peek, spent for real by Add's
// AllowN as bytes go out) the way the teacher's own
// Client.Config.{Upload,Download}RateLimiter does (see issue211_test.go,
// which swaps in a rate.Limiter for tests).
//
// The Session Supervisor holds two instances, one for upload and one for
// download (UploadLimiter/DownloadLimiter), matching
// globals.upload_limiter / globals.download_limiter in the original
// tacozmq.clients/server modules.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Window is the number of seconds of history rate() averages over.
const Window = 5 * time.Second

type sample struct {
	at    time.Time
	bytes int64
}

// Limiter tracks bytes added over a sliding window and gates throughput
// against a configured cap.
type Limiter struct {
	mu      sync.Mutex
	samples []sample
	total   int64

	capBytesPerSec int64
	gate           *rate.Limiter

	now func() time.Time // overridable for tests
}

// New creates a Limiter with no cap (gate always allows). Call SetCap to
// impose one once settings are loaded.
func New() *Limiter {
	return &Limiter{now: time.Now}
}

// SetCap sets the enforced byte/sec cap. A cap of 0 means unlimited.
func (l *Limiter) SetCap(bytesPerSec int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.capBytesPerSec = bytesPerSec
	if bytesPerSec <= 0 {
		l.gate = nil
		return
	}
	l.gate = rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
}

// Add records n bytes transferred right now.
func (l *Limiter) Add(n int64) {
	if n <= 0 {
		return
	}
	now := l.now()
	l.mu.Lock()
	l.samples = append(l.samples, sample{now, n})
	l.total += n
	l.expire(now)
	l.mu.Unlock()
	if g := l.gate; g != nil {
		g.AllowN(now, int(n))
	}
}

// expire drops samples older than Window and adjusts the running total.
// Must be called with mu held.
func (l *Limiter) expire(now time.Time) {
	cut := now.Add(-Window)
	i := 0
	for i < len(l.samples) && l.samples[i].at.Before(cut) {
		l.total -= l.samples[i].bytes
		i++
	}
	if i > 0 {
		l.samples = l.samples[i:]
	}
}

// Rate returns the average bytes/sec measured over the last Window of
// history.
func (l *Limiter) Rate() float64 {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expire(now)
	if l.total <= 0 {
		return 0
	}
	return float64(l.total) / Window.Seconds()
}

// BelowCap reports whether the measured rate is currently under the
// configured cap. With no cap set, it always returns true. The token
// bucket is consulted with a non-consuming Reserve/Cancel peek (one
// token, refilled at capBytesPerSec/sec): if it has nothing to give
// right now, callers must not send, regardless of what the sliding
// window reports. Add's AllowN call is what actually spends tokens as
// bytes go out; BelowCap only peeks.
func (l *Limiter) BelowCap() bool {
	l.mu.Lock()
	cap := l.capBytesPerSec
	gate := l.gate
	l.mu.Unlock()
	if cap <= 0 {
		return true
	}
	if gate != nil {
		now := l.now()
		r := gate.ReserveN(now, 1)
		if !r.OK() {
			return false
		}
		if r.DelayFrom(now) > 0 {
			r.CancelAt(now)
			return false
		}
		r.CancelAt(now)
	}
	return l.Rate() < float64(cap)
}
