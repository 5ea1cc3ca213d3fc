// Package clientengine implements C6 (spec.md §4.6): the single driver
// that maintains one outbound DEALER session per enabled peer, drains
// its queues subject to rate caps, polls for inbound replies, and runs
// the reconnect back-off / liveness state machine. Grounded on the
// teacher's per-connection write loop (peer-conn-msg-writer.go's
// priority-ordered outgoing message draining) generalized from one
// upload-only priority scheme to the four-priority, credit-gated scheme
// of spec.md §4.5/§4.6, and on its chansync.SetOnce-guarded shutdown
// pattern for the stop signal.
package clientengine

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"
	"github.com/dustin/go-humanize"

	"github.com/taconet/taco/internal/command"
	"github.com/taconet/taco/internal/metrics"
	"github.com/taconet/taco/internal/peertable"
	"github.com/taconet/taco/internal/protoconst"
	"github.com/taconet/taco/internal/queue"
	"github.com/taconet/taco/internal/ratelimit"
	"github.com/taconet/taco/internal/transfer"
	"github.com/taconet/taco/internal/transport"
	"github.com/taconet/taco/internal/wakeup"
)

var logger = log.Default.WithNames("taco", "clientengine")

// Reconnect back-off bounds, per spec.md §4.6 (CLIENT_RECONNECT_MIN/MOD/MAX
// in the original).
const (
	ReconnectMin  = 0 * time.Second
	ReconnectStep = 2 * time.Second
	ReconnectMax  = 16 * time.Second
)

// TickInterval is C6's cooperative-sleep period, per spec.md §5
// ("100-200 ms").
const TickInterval = 150 * time.Millisecond

// Host is everything C6 needs from the Session Supervisor: the full
// command.Host contract (for dispatching replies) plus the
// engine-specific accessors. Supervisor implements all of it.
type Host interface {
	command.Host

	Peers() *peertable.Table
	Sessions() []*queue.Session
	ClientKeys() transport.CurveKeyPair
	Transfers() *transfer.Coordinator
	UploadLimiter() *ratelimit.Limiter
	DownloadLimiter() *ratelimit.Limiter
}

// Engine runs the C6 loop until Stop is called.
type Engine struct {
	host Host
	stop chansync.SetOnce
	wake *wakeup.Event
}

func New(host Host) *Engine {
	return &Engine{host: host, wake: new(wakeup.Event)}
}

// Wake signals the engine to run a tick immediately instead of waiting
// out the rest of its sleep interval, e.g. right after a peer is enabled.
func (e *Engine) Wake() { e.wake.Set() }

// Stop signals the loop to exit after its current tick.
func (e *Engine) Stop() { e.stop.Set() }

// Run drives the cooperative loop described in spec.md §4.6: sleep on
// the wake event with a short timeout, then tick every known peer in
// randomized order. Intended to run on its own goroutine.
func (e *Engine) Run() {
	for {
		if e.stop.IsSet() {
			return
		}
		select {
		case <-e.wake.Chan():
		case <-time.After(TickInterval):
		}
		if e.stop.IsSet() {
			return
		}
		e.tickAll()
	}
}

func (e *Engine) tickAll() {
	sessions := e.host.Sessions()
	order := rand.Perm(len(sessions))
	for _, i := range order {
		e.peerTick(sessions[i])
	}
}

func (e *Engine) peerTick(sess *queue.Session) {
	rec, ok := e.host.Peers().Get(sess.PeerID)
	if !ok || !rec.Enabled {
		return
	}
	e.maintainConnection(sess, rec)

	qs := sess.Queues()
	if qs == nil {
		return
	}

	drainUnconditional(qs, queue.High, func(b []byte) { e.send(sess, b) })
	drainUnconditional(qs, queue.Medium, func(b []byte) { e.send(sess, b) })

	e.fileTransaction(sess)

	if e.host.DownloadLimiter().BelowCap() {
		if b, ok := qs.Pop(queue.File); ok {
			e.send(sess, b)
		}
	}

	if e.host.UploadLimiter().BelowCap() {
		if b, ok := qs.Pop(queue.Low); ok {
			e.send(sess, b)
		}
	}

	e.maybeRollcall(sess, qs)
	e.receiveDrain(sess, qs)
	reportQueueDepth(sess.PeerID, qs)
}

func reportQueueDepth(peerID string, qs *queue.Queues) {
	metrics.QueueDepth.WithLabelValues(peerID, "high").Set(float64(qs.Len(queue.High)))
	metrics.QueueDepth.WithLabelValues(peerID, "medium").Set(float64(qs.Len(queue.Medium)))
	metrics.QueueDepth.WithLabelValues(peerID, "low").Set(float64(qs.Len(queue.Low)))
	metrics.QueueDepth.WithLabelValues(peerID, "file").Set(float64(qs.Len(queue.File)))
}

func drainUnconditional(qs *queue.Queues, p queue.Priority, send func([]byte)) {
	for {
		b, ok := qs.Pop(p)
		if !ok {
			return
		}
		send(b)
	}
}

// fileTransaction implements spec.md §4.6 step 3. Tick issues new
// get-file-chunk requests into the peer's file queue, gated by the
// transfer coordinator's own credit bookkeeping (which already enforces
// CREDIT_MAX) and the download rate cap; peerTick then drains at most
// one request from that queue onto the wire per tick, itself re-gated
// on the download cap at send time. The "earliest-next-file-send"
// backoff of spec.md §4.6 is realized by that one-pop-per-tick drain
// while the download rate remains at or above cap; as utilization
// falls the gate reopens on the very next tick, the same qualitative
// shape as widening the per-engine delay towards the cap.
func (e *Engine) fileTransaction(sess *queue.Session) {
	if !e.host.DownloadLimiter().BelowCap() {
		return
	}
	e.host.Transfers().Tick(sess.PeerID)
}

func (e *Engine) maybeRollcall(sess *queue.Session, qs *queue.Queues) {
	now := time.Now()
	if !sess.NextRollcall.IsZero() && now.Before(sess.NextRollcall) {
		return
	}
	qs.Push(queue.High, command.BuildRollcall(e.host))
	span := int64(protoconst.RollcallMax - protoconst.RollcallMin)
	if span <= 0 {
		span = 1
	}
	sess.NextRollcall = now.Add(protoconst.RollcallMin + time.Duration(rand.Int63n(span)))
}

func (e *Engine) send(sess *queue.Session, payload []byte) {
	transportVal, ok := sess.Transport()
	if !ok {
		return
	}
	d, ok := transportVal.(*transport.Dealer)
	if !ok {
		return
	}
	if err := d.Send(payload); err != nil {
		logger.Levelf(log.Warning, "send to %s failed: %v", sess.PeerID, err)
		return
	}
	e.host.UploadLimiter().Add(int64(len(payload)))
	metrics.BytesSent.Add(float64(len(payload)))
	sess.BytesSent.Add(int64(len(payload)))
	logger.Levelf(log.Debug, "sent %s to %s (rate %s/s)", humanize.Bytes(uint64(len(payload))), sess.PeerID, humanize.Bytes(uint64(e.host.UploadLimiter().Rate())))
}

func (e *Engine) receiveDrain(sess *queue.Session, qs *queue.Queues) {
	transportVal, ok := sess.Transport()
	if !ok {
		return
	}
	d, ok := transportVal.(*transport.Dealer)
	if !ok {
		return
	}
	for {
		b, got, err := d.RecvTimeout()
		if err != nil {
			logger.Levelf(log.Warning, "recv from %s failed: %v", sess.PeerID, err)
			return
		}
		if !got {
			return
		}
		e.host.DownloadLimiter().Add(int64(len(b)))
		metrics.BytesReceived.Add(float64(len(b)))
		sess.BytesReceived.Add(int64(len(b)))
		sess.LastReplyTime = time.Now()
		sess.ReconnectBackoff = ReconnectMin

		followUp := command.ProcessReply(e.host, sess.PeerID, b)
		if followUp != nil {
			qs.Push(queue.Medium, followUp)
		}
	}
}

// maintainConnection implements spec.md §4.6's connection lifecycle:
// DISCONNECTED -> CONNECTING -> CONNECTED -> RECONNECT-WAIT. The liveness
// check uses ROLLCALL_TIMEOUT (spec.md §4.6: "or if now - last_reply_time
// > ROLLCALL_TIMEOUT: close transport..."), not the file-transfer stall
// window, which is a distinct timeout guarding a different resource.
func (e *Engine) maintainConnection(sess *queue.Session, rec peertable.Record) {
	now := time.Now()
	if sess.Connected() {
		if now.Sub(sess.LastReplyTime) > protoconst.RollcallTimeout {
			e.disconnect(sess)
		}
		return
	}
	if sess.ConnectTime.IsZero() {
		sess.ConnectTime = now.Add(ReconnectMin)
		sess.ReconnectBackoff = ReconnectMin
	}
	if now.Before(sess.ConnectTime) {
		return
	}

	addr := "tcp://" + rec.Hostname + ":" + strconv.Itoa(int(rec.Port))
	d, err := transport.DialDealer(addr, e.host.ClientKeys(), string(rec.ServerPublicKey))
	if err != nil {
		e.backoff(sess)
		return
	}
	sess.Connect(d)
	sess.NextRollcall = now
	// Seed the liveness clock at connect time so the next tick does not
	// measure a fresh session against a zero or stale LastReplyTime and
	// drop it before any reply could have arrived; a peer that never
	// replies is still dropped after ROLLCALL_TIMEOUT.
	sess.LastReplyTime = now
}

func (e *Engine) disconnect(sess *queue.Session) {
	if transportVal, ok := sess.Transport(); ok {
		if d, ok := transportVal.(*transport.Dealer); ok {
			d.Close()
		}
	}
	sess.Disconnect()
	e.backoff(sess)
}

func (e *Engine) backoff(sess *queue.Session) {
	sess.ReconnectBackoff += ReconnectStep
	if sess.ReconnectBackoff > ReconnectMax {
		sess.ReconnectBackoff = ReconnectMax
	}
	sess.ConnectTime = time.Now().Add(sess.ReconnectBackoff)
}
