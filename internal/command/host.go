// Package command implements C4 (spec.md §4.4): for each command kind, a
// request builder (caller side), a reply builder (callee side) and a
// reply processor (caller side), dispatched over the wire codec. Grounded
// on taco/commands/__init__.py's TacoCommands.request_map/reply_map
// dispatch table and the one-file-per-command layout of
// taco/commands/{rollcall,certs,chat,share,get_file_chunk,give_file_chunk}.py.
package command

import (
	"time"

	"github.com/taconet/taco/internal/peertable"
	"github.com/taconet/taco/internal/shares"
)

// Host is everything the command layer needs from the Session Supervisor
// (C9), kept as an interface so command has no import-cycle dependency on
// supervisor. Supervisor implements this directly.
type Host interface {
	LocalIdentity() string
	LocalNickname() string
	SetRemoteNickname(peerID, nickname string)

	// ReachablePeerIDs lists peers this node can currently reach (inbound
	// traffic seen within the rollcall timeout) for the rollcall reply.
	ReachablePeerIDs() []string

	// KnownPeer reports whether identity is already in the peer table.
	KnownPeer(identity string) bool
	PeerRecord(identity string) (peertable.Record, bool)
	// AddDiscoveredPeer adds a newly learned peer, disabled by default,
	// per spec.md §4.4's certs semantics.
	AddDiscoveredPeer(rec peertable.Record)

	AppendChatLocal(text string) (senderID string, ts int64)
	AppendChatRemote(peerID string, ts int64, text string)

	ResolveShareListing(shareDir string) (shares.Listing, error)

	// StoreShareListingResult/StoreShareListingError complete a pending
	// browse() handle (spec.md §6) once a remote peer's share-listing
	// reply arrives, correlated by the resultsuuid the caller generated
	// for that handle and BuildShareListing carried.
	StoreShareListingResult(handle, peerID string, listing shares.Listing)
	StoreShareListingError(handle, peerID, message string)

	EnqueueMedium(peerID string, payload []byte)
	EnqueueAllMedium(payload []byte)
	EnqueueLow(peerID string, payload []byte)

	// HandleChunkAck/HandleChunkData feed C8 (the transfer coordinator).
	HandleChunkAck(peerID, chunkUUID string, ok bool)
	HandleChunkData(peerID, chunkUUID string, data []byte)

	// OpenShareChunk serves an outgoing file chunk read for give-file-chunk,
	// resolving shareDir/fileName under the declared share root.
	OpenShareChunk(shareDir, fileName string, offset int64, length int) ([]byte, error)

	RollcallTimeout() time.Duration
}
