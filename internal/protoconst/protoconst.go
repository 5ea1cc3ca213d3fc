// Package protoconst holds the wire-level constants that are
// implementation-defined by spec.md but fixed by the original program's
// taco/constants.py, shared between the command layer and the transfer
// coordinator so neither has to import the other.
package protoconst

import "time"

const (
	// FileChunkSize is the byte size of one file-transfer chunk
	// (FILESYSTEM_CHUNK_SIZE in the original: 128 KiB).
	FileChunkSize = 128 * 1024

	// CreditMax bounds outstanding chunk requests per peer
	// (FILESYSTEM_CREDIT_MAX).
	CreditMax = 35

	// ListingCacheTTL bounds how long a directory listing is cached
	// (FILESYSTEM_LISTING_TIMEOUT).
	ListingCacheTTL = 300 * time.Second

	// FileHandleCacheTTL is the original's idle file-handle timeout
	// (FILESYSTEM_CACHE_TIMEOUT). Nothing applies it: the transfer
	// coordinator's read and write handle caches are bounded only by
	// entry count (64 each), and idle handles stay open until evicted
	// or Close.
	FileHandleCacheTTL = 120 * time.Second

	// DataTimeout is the stall-detection window: if no chunk arrives
	// for a peer's active transfer within this window, it is marked
	// stalled (DOWNLOAD_Q_WAIT_FOR_DATA in the original).
	DataTimeout = 300 * time.Second

	// RollcallTimeout bounds how long since a peer's last inbound byte
	// it is still considered reachable (ROLLCALL_TIMEOUT in the
	// original: ROLLCALL_MAX * 2), per spec.md §4.6/§4.8.
	RollcallTimeout = 10 * time.Second

	// RollcallMin/RollcallMax bound the randomized heartbeat interval,
	// per spec.md §4.6 ("next_rollcall = now + rand[ROLLCALL_MIN,
	// ROLLCALL_MAX]").
	RollcallMin = 2 * time.Second
	RollcallMax = 5 * time.Second
)
