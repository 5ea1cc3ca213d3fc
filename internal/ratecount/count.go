// Package ratecount provides a small atomic byte counter, adapted from the
// teacher's Count type (used there for per-torrent ConnStats fields).
package ratecount

import (
	"strconv"
	"sync/atomic"
)

// Count is a concurrency-safe monotonic byte tally.
type Count struct {
	n int64
}

func (c *Count) Add(n int64) {
	atomic.AddInt64(&c.n, n)
}

func (c *Count) Int64() int64 {
	return atomic.LoadInt64(&c.n)
}

func (c *Count) String() string {
	return strconv.FormatInt(c.Int64(), 10)
}
