// Package supervisor implements C9 (spec.md §4.9): it owns the peer
// table, every per-peer session and its queues, the chat log, the share
// and download-queue state, and the key store, and exposes the UI
// boundary operations of spec.md §6. It implements command.Host so C4
// can call back into node state without an import cycle. Grounded on
// taco/core.go's TacoCore god-object (settings + peers + queues + chat +
// downloads, all behind one set of locks) per spec.md §10's "Global
// mutable state -> owned state" redesign note, and on the teacher's
// torrent.Client as the idiomatic Go analogue of one struct owning every
// subsystem's lifetime.
package supervisor

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/anacrolix/log"
	"github.com/anacrolix/sync"
	"github.com/google/uuid"

	"github.com/taconet/taco/internal/chatlog"
	"github.com/taconet/taco/internal/command"
	"github.com/taconet/taco/internal/keystore"
	"github.com/taconet/taco/internal/peertable"
	"github.com/taconet/taco/internal/protoconst"
	"github.com/taconet/taco/internal/queue"
	"github.com/taconet/taco/internal/ratelimit"
	"github.com/taconet/taco/internal/settings"
	"github.com/taconet/taco/internal/shares"
	"github.com/taconet/taco/internal/transfer"
	"github.com/taconet/taco/internal/transport"
)

var logger = log.Default.WithNames("taco", "supervisor")

// RollcallTimeout, RollcallMin and RollcallMax re-export protoconst's
// rollcall timing constants under the names this package's callers
// already use.
const (
	RollcallTimeout = protoconst.RollcallTimeout
	RollcallMin     = protoconst.RollcallMin
	RollcallMax     = protoconst.RollcallMax
)

// Supervisor is the single owner of all node-level mutable state.
type Supervisor struct {
	localIdentity string
	nicknameMu    sync.Mutex
	localNickname string

	peers *peertable.Table

	sessionsMu sync.RWMutex
	sessions   map[string]*queue.Session

	chat   *chatlog.Log
	shares *shares.Table
	keys   *keystore.Store
	xfer   *transfer.Coordinator

	uploadLimiter   *ratelimit.Limiter
	downloadLimiter *ratelimit.Limiter

	settingsStore *settings.Store

	inboundMu   sync.Mutex
	inboundSeen map[string]time.Time // client_last_request_time, server-side

	restartMu   sync.Mutex
	restartHook func()

	browseMu    sync.Mutex
	browseCache map[string]browseEntry
}

// browseEntry is one directory listing awaiting a browse_result() pickup,
// per spec.md §3's "Directory-listing cache" note. A remote peerID entry
// starts pending (no listing yet) until the matching share-listing reply
// arrives and StoreShareListingResult/StoreShareListingError fills it in.
type browseEntry struct {
	listing shares.Listing
	peerID  string
	pending bool
	errMsg  string
	expires time.Time
}

// New constructs a Supervisor. downloadDir and the share table backing
// store, the key store, and settings are all supplied by the caller
// (cmd/taco's wiring), since their construction involves filesystem
// side effects the supervisor itself should not hide.
func New(localIdentity, localNickname string, keys *keystore.Store, settingsStore *settings.Store, downloadDir string) *Supervisor {
	s := &Supervisor{
		localIdentity:   localIdentity,
		localNickname:   localNickname,
		peers:           peertable.New(),
		sessions:        make(map[string]*queue.Session),
		chat:            chatlog.New(),
		shares:          shares.New(),
		keys:            keys,
		uploadLimiter:   ratelimit.New(),
		downloadLimiter: ratelimit.New(),
		settingsStore:   settingsStore,
		inboundSeen:     make(map[string]time.Time),
		browseCache:     make(map[string]browseEntry),
	}
	s.xfer = transfer.New(downloadDir, s.buildGetFileChunk, s.sendFile, s.peerLive)
	return s
}

func (s *Supervisor) buildGetFileChunk(shareDir, fileName string, offset int64, chunkUUID string) []byte {
	return command.BuildGetFileChunk(s, shareDir, fileName, offset, chunkUUID)
}

func (s *Supervisor) sendFile(peerID string, payload []byte) {
	s.EnqueueFile(peerID, payload)
}

// peerLive implements spec.md §4.8's "Peer liveness gate": both the
// peer's server-seen-incoming and client-seen-outgoing timestamps must
// be within ROLLCALL_TIMEOUT.
func (s *Supervisor) peerLive(peerID string) bool {
	sess := s.session(peerID)
	if sess == nil || !sess.Connected() {
		return false
	}
	if time.Since(sess.LastReplyTime) > RollcallTimeout {
		return false
	}
	s.inboundMu.Lock()
	seen, ok := s.inboundSeen[peerID]
	s.inboundMu.Unlock()
	return ok && time.Since(seen) <= RollcallTimeout
}

// RecordInboundActivity implements C7's client_last_request_time
// tracking (spec.md §4.7).
func (s *Supervisor) RecordInboundActivity(peerID string, at time.Time) {
	s.inboundMu.Lock()
	s.inboundSeen[peerID] = at
	s.inboundMu.Unlock()
}

// --- peer table & session management -------------------------------------

func (s *Supervisor) session(peerID string) *queue.Session {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return s.sessions[peerID]
}

// Sessions returns every currently tracked session, for C6's per-tick
// traversal.
func (s *Supervisor) Sessions() []*queue.Session {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	out := make([]*queue.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// SyncSessions brings the session map in line with the enabled peer set:
// adds a fresh Session for newly enabled peers, drops sessions for
// peers that became disabled or were removed. Called after every
// peer-table mutation, alongside C2.Reconcile. Spec.md §4.9.
func (s *Supervisor) SyncSessions() error {
	enabled := map[string]bool{}
	for _, p := range s.peers.Enabled() {
		enabled[p.Identity] = true
	}

	s.sessionsMu.Lock()
	for id := range enabled {
		if _, ok := s.sessions[id]; !ok {
			s.sessions[id] = queue.NewSession(id)
		}
	}
	for id := range s.sessions {
		if !enabled[id] {
			delete(s.sessions, id)
		}
	}
	s.sessionsMu.Unlock()

	if err := s.keys.Reconcile(s.peers); err != nil {
		return err
	}
	return nil
}

// AddPeer adds or replaces a peer record and resyncs sessions/keys.
func (s *Supervisor) AddPeer(rec peertable.Record) error {
	s.peers.Put(rec)
	return s.SyncSessions()
}

// SetPeerEnabled toggles a peer's enabled flag and resyncs.
func (s *Supervisor) SetPeerEnabled(identity string, enabled bool) error {
	if !s.peers.SetEnabled(identity, enabled) {
		return fmt.Errorf("supervisor: unknown peer %s", identity)
	}
	return s.SyncSessions()
}

// RemovePeer removes a peer and resyncs.
func (s *Supervisor) RemovePeer(identity string) error {
	s.peers.Remove(identity)
	return s.SyncSessions()
}

func (s *Supervisor) Peers() *peertable.Table        { return s.peers }
func (s *Supervisor) Shares() *shares.Table           { return s.shares }
func (s *Supervisor) Chat() *chatlog.Log              { return s.chat }
func (s *Supervisor) Transfers() *transfer.Coordinator { return s.xfer }
func (s *Supervisor) Keys() *keystore.Store           { return s.keys }
func (s *Supervisor) UploadLimiter() *ratelimit.Limiter   { return s.uploadLimiter }
func (s *Supervisor) DownloadLimiter() *ratelimit.Limiter { return s.downloadLimiter }

// ClientKeys and ServerKeys expose this node's long-term CURVE key pairs
// in the shape the transport package expects, for C6/C7 to dial/bind
// with.
func (s *Supervisor) ClientKeys() transport.CurveKeyPair {
	kp := s.keys.ClientKeyPair()
	return transport.CurveKeyPair{Public: kp.Public, Secret: kp.Secret}
}

func (s *Supervisor) ServerKeys() transport.CurveKeyPair {
	kp := s.keys.ServerKeyPair()
	return transport.CurveKeyPair{Public: kp.Public, Secret: kp.Secret}
}

func (s *Supervisor) PublicKeyDir() string    { return s.keys.PublicDir() }
func (s *Supervisor) KeyStoreVersion() int64  { return s.keys.Version() }

// NextRollcallDelay returns a randomized interval in [RollcallMin,
// RollcallMax], per spec.md §4.6.
func NextRollcallDelay() time.Duration {
	span := RollcallMax - RollcallMin
	return RollcallMin + time.Duration(rand.Int63n(int64(span)))
}

// --- command.Host implementation ------------------------------------------

func (s *Supervisor) LocalIdentity() string { return s.localIdentity }

func (s *Supervisor) LocalNickname() string {
	s.nicknameMu.Lock()
	defer s.nicknameMu.Unlock()
	return s.localNickname
}

func (s *Supervisor) SetRemoteNickname(peerID, nickname string) {
	rec, ok := s.peers.Get(peerID)
	if !ok {
		return
	}
	if rec.RemoteNickname == nickname {
		return
	}
	rec.RemoteNickname = nickname
	s.peers.Put(rec)
}

func (s *Supervisor) ReachablePeerIDs() []string {
	var out []string
	for _, sess := range s.Sessions() {
		if sess.Connected() && time.Since(sess.LastReplyTime) <= RollcallTimeout {
			out = append(out, sess.PeerID)
		}
	}
	return out
}

func (s *Supervisor) KnownPeer(identity string) bool { return s.peers.Has(identity) }

func (s *Supervisor) PeerRecord(identity string) (peertable.Record, bool) {
	return s.peers.Get(identity)
}

func (s *Supervisor) AddDiscoveredPeer(rec peertable.Record) {
	if s.peers.Has(rec.Identity) {
		return
	}
	s.peers.Put(rec)
}

func (s *Supervisor) AppendChatLocal(text string) (string, int64) {
	ts := time.Now().Unix()
	s.chat.Append(s.localIdentity, ts, text)
	return s.localIdentity, ts
}

func (s *Supervisor) AppendChatRemote(peerID string, ts int64, text string) {
	s.chat.Append(peerID, ts, text)
}

func (s *Supervisor) ResolveShareListing(shareDir string) (shares.Listing, error) {
	return shares.Resolve(s.shares, shareDir)
}

// StoreShareListingResult completes a pending remote browse() handle with
// the listing reported back by peerID, per spec.md §6's browse_result().
func (s *Supervisor) StoreShareListingResult(handle, peerID string, listing shares.Listing) {
	s.browseMu.Lock()
	defer s.browseMu.Unlock()
	entry, ok := s.browseCache[handle]
	if !ok || !entry.pending || entry.peerID != peerID {
		return
	}
	entry.listing = listing
	entry.pending = false
	entry.expires = time.Now().Add(protoconst.ListingCacheTTL)
	s.browseCache[handle] = entry
}

// StoreShareListingError records a remote share-listing failure (e.g. a
// share not found or a path-traversal rejection, per spec.md §4.4/§8) so
// BrowseResult can surface it instead of hanging pending forever.
func (s *Supervisor) StoreShareListingError(handle, peerID, message string) {
	s.browseMu.Lock()
	defer s.browseMu.Unlock()
	entry, ok := s.browseCache[handle]
	if !ok || !entry.pending || entry.peerID != peerID {
		return
	}
	entry.pending = false
	entry.errMsg = message
	entry.expires = time.Now().Add(protoconst.ListingCacheTTL)
	s.browseCache[handle] = entry
}

func (s *Supervisor) EnqueueMedium(peerID string, payload []byte) {
	s.enqueue(peerID, payload, queue.Medium)
}

func (s *Supervisor) EnqueueAllMedium(payload []byte) {
	for _, sess := range s.Sessions() {
		s.enqueue(sess.PeerID, payload, queue.Medium)
	}
}

func (s *Supervisor) EnqueueLow(peerID string, payload []byte) {
	s.enqueue(peerID, payload, queue.Low)
}

func (s *Supervisor) EnqueueFile(peerID string, payload []byte) {
	s.enqueue(peerID, payload, queue.File)
}

// enqueue implements spec.md §4.5's "messages enqueued for an absent peer
// are dropped with a logged error".
func (s *Supervisor) enqueue(peerID string, payload []byte, p queue.Priority) {
	sess := s.session(peerID)
	if sess == nil {
		logger.Levelf(log.Warning, "dropping message for unknown peer %s", peerID)
		return
	}
	qs := sess.Queues()
	if qs == nil {
		logger.Levelf(log.Warning, "dropping message for disconnected peer %s", peerID)
		return
	}
	qs.Push(p, payload)
}

func (s *Supervisor) HandleChunkAck(peerID, chunkUUID string, ok bool) {
	s.xfer.HandleAck(peerID, chunkUUID, ok)
}

func (s *Supervisor) HandleChunkData(peerID, chunkUUID string, data []byte) {
	s.xfer.HandleData(peerID, chunkUUID, data)
}

func (s *Supervisor) OpenShareChunk(shareDir, fileName string, offset int64, length int) ([]byte, error) {
	path, err := shares.ResolveFile(s.shares, shareDir, fileName)
	if err != nil {
		return nil, err
	}
	f, err := s.xfer.ReadHandle(path)
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		length = protoconst.FileChunkSize
	}
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if n == 0 && err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (s *Supervisor) RollcallTimeout() time.Duration { return RollcallTimeout }

// --- UI boundary: status/speed (spec.md §6) --------------------------------

// Speed returns the current upload/download byte rates.
func (s *Supervisor) Speed() (upBps, downBps float64) {
	return s.uploadLimiter.Rate(), s.downloadLimiter.Rate()
}

// PeerStatus summarizes one peer's session for the UI.
type PeerStatus struct {
	Identity      string
	Enabled       bool
	Connected     bool
	LastReplyTime time.Time
	Backoff       time.Duration
	BytesSent     int64
	BytesReceived int64
}

func (s *Supervisor) PeerStatusAll() []PeerStatus {
	var out []PeerStatus
	for _, rec := range s.peers.All() {
		st := PeerStatus{Identity: rec.Identity, Enabled: rec.Enabled}
		if sess := s.session(rec.Identity); sess != nil {
			st.Connected = sess.Connected()
			st.LastReplyTime = sess.LastReplyTime
			st.Backoff = sess.ReconnectBackoff
			st.BytesSent = sess.BytesSent.Int64()
			st.BytesReceived = sess.BytesReceived.Int64()
		}
		out = append(out, st)
	}
	return out
}

// ThreadStatus is the shape of the UI's thread_status() answer: whether
// C6/C7/C8 are currently running. The Supervisor does not track engine
// liveness (that would be an import cycle back onto clientengine/
// serverengine), and no code in this repository fills one in.
type ThreadStatus struct {
	ClientEngineRunning bool
	ServerEngineRunning bool
	CoordinatorRunning  bool
}

// --- UI boundary: settings/shares/peers/restart (spec.md §6) ---------------

// SetRestartHook installs the callback SavePeers invokes after persisting a
// new peer set. cmd/taco wires this to stop and recreate C6/C7 so the
// client/server engines pick up the new peer table and key material.
func (s *Supervisor) SetRestartHook(fn func()) {
	s.restartMu.Lock()
	s.restartHook = fn
	s.restartMu.Unlock()
}

// Restart invokes the installed restart hook, if any. Exposed directly so
// the UI boundary's restart() operation (spec.md §6) can also be triggered
// on its own, not just as SavePeers' side effect.
func (s *Supervisor) Restart() {
	s.restartMu.Lock()
	fn := s.restartHook
	s.restartMu.Unlock()
	if fn != nil {
		fn()
	}
}

// SaveSettings applies the recognized key/value pairs from spec.md §6's
// save_settings(kv-pairs) and persists them. Unrecognized keys are ignored
// rather than rejected, matching the original's permissive dict-merge.
func (s *Supervisor) SaveSettings(fields map[string]string) error {
	return s.settingsStore.Update(func(d *settings.Document) {
		for k, v := range fields {
			switch k {
			case "Nickname":
				d.Nickname = v
				s.nicknameMu.Lock()
				s.localNickname = v
				s.nicknameMu.Unlock()
			case "Application IP":
				d.ApplicationIP = v
			case "Web IP":
				d.WebIP = v
			case "Download Location":
				d.DownloadLocation = v
			}
		}
	})
}

// SaveShares replaces the declared share set, per spec.md §6's
// save_shares(list). names and localPaths must be the same length and in
// the order shares should be declared/listed in.
func (s *Supervisor) SaveShares(names, localPaths []string) error {
	if err := s.shares.Replace(names, localPaths); err != nil {
		return err
	}
	pairs := make([][2]string, len(names))
	for i := range names {
		pairs[i] = [2]string{names[i], localPaths[i]}
	}
	return s.settingsStore.Update(func(d *settings.Document) { d.Shares = pairs })
}

// SavePeers replaces the peer table wholesale and triggers restart(), per
// spec.md §6: "save_peers(list) ... the last triggers restart()".
func (s *Supervisor) SavePeers(records []peertable.Record) error {
	fresh := peertable.New()
	entries := make(map[string]settings.PeerEntry, len(records))
	for _, rec := range records {
		fresh.Put(rec)
		entries[rec.Identity] = settings.PeerEntry{
			Hostname:        rec.Hostname,
			Port:            rec.Port,
			Enabled:         rec.Enabled,
			Dynamic:         rec.Dynamic,
			LocalNickname:   rec.LocalNickname,
			RemoteNickname:  rec.RemoteNickname,
			ClientPublicKey: string(rec.ClientPublicKey),
			ServerPublicKey: string(rec.ServerPublicKey),
		}
	}
	s.peers = fresh
	if err := s.SyncSessions(); err != nil {
		return err
	}
	if err := s.settingsStore.Update(func(d *settings.Document) { d.Peers = entries }); err != nil {
		return err
	}
	s.Restart()
	return nil
}

// Browse resolves shareDir locally when peerID is "", or sends a
// share-listing request to peerID and registers a pending handle the
// eventual reply fills in via StoreShareListingResult/Error. Either way it
// returns a handle for a follow-up BrowseResult call. Mirrors spec.md §3's
// directory-listing cache and §6's browse()/browse_result() pair.
func (s *Supervisor) Browse(peerID, shareDir string) (string, error) {
	handle := uuid.NewString()

	if peerID == "" {
		listing, err := shares.Resolve(s.shares, shareDir)
		if err != nil {
			return "", err
		}
		s.browseMu.Lock()
		s.browseCache[handle] = browseEntry{
			listing: listing,
			expires: time.Now().Add(protoconst.ListingCacheTTL),
		}
		s.pruneBrowseCacheLocked()
		s.browseMu.Unlock()
		return handle, nil
	}

	if s.session(peerID) == nil {
		return "", fmt.Errorf("supervisor: no session for peer %s", peerID)
	}
	s.browseMu.Lock()
	s.browseCache[handle] = browseEntry{
		peerID:  peerID,
		pending: true,
		expires: time.Now().Add(protoconst.ListingCacheTTL),
	}
	s.pruneBrowseCacheLocked()
	s.browseMu.Unlock()

	s.EnqueueMedium(peerID, command.BuildShareListing(s, shareDir, handle))
	return handle, nil
}

// BrowseResult retrieves a previously resolved listing by handle.
// ok=false covers three cases the caller can't tell apart without polling
// again: the handle is unknown, still pending a remote reply, or expired.
// err is non-nil only once a remote peer has reported a listing error.
func (s *Supervisor) BrowseResult(handle string) (listing shares.Listing, ok bool, err error) {
	s.browseMu.Lock()
	defer s.browseMu.Unlock()
	entry, found := s.browseCache[handle]
	if !found || time.Now().After(entry.expires) {
		delete(s.browseCache, handle)
		return shares.Listing{}, false, nil
	}
	if entry.pending {
		return shares.Listing{}, false, nil
	}
	if entry.errMsg != "" {
		return shares.Listing{}, false, fmt.Errorf("%s", entry.errMsg)
	}
	return entry.listing, true, nil
}

// pruneBrowseCacheLocked evicts expired entries. Called opportunistically
// from Browse rather than on a timer, since the cache is small and
// short-lived by construction.
func (s *Supervisor) pruneBrowseCacheLocked() {
	now := time.Now()
	for h, e := range s.browseCache {
		if now.After(e.expires) {
			delete(s.browseCache, h)
		}
	}
}
