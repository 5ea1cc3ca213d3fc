package command

import (
	"github.com/anacrolix/log"

	"github.com/taconet/taco/internal/wire"
)

var logger = log.Default.WithNames("taco", "command")

func buildRequest(localID string, tag wire.CommandTag, payload wire.Value) []byte {
	return wire.EncodeRecord(wire.Record{
		Identity: localID,
		Kind:     wire.Request,
		Tag:      tag,
		Payload:  payload,
	})
}

func buildReply(localID string, tag wire.CommandTag, payload wire.Value) []byte {
	return wire.EncodeRecord(wire.Record{
		Identity: localID,
		Kind:     wire.Reply,
		Tag:      tag,
		Payload:  payload,
	})
}

// NoIdentity is returned by ProcessRequest when the frame was too
// malformed to even learn who sent it, per spec.md §7.
const NoIdentity = ""

// ProcessRequest decodes a request frame, dispatches it to the matching
// reply builder, and returns the sender's identity plus the encoded
// reply. A decode failure, unknown command tag, or malformed payload
// never panics: it logs a warning and returns (NoIdentity, nil), per
// spec.md §4.4 and §7.
func ProcessRequest(host Host, raw []byte) (identity string, reply []byte) {
	rec, err := wire.DecodeRecord(raw)
	if err != nil {
		logger.Levelf(log.Warning, "dropping malformed request: %v", err)
		return NoIdentity, nil
	}
	if rec.Kind != wire.Request {
		logger.Levelf(log.Warning, "dropping frame with non-request kind %q from %s", rec.Kind, rec.Identity)
		return NoIdentity, nil
	}

	var payload wire.Value
	switch rec.Tag {
	case wire.TagRollcall:
		payload, err = replyRollcall(host)
	case wire.TagCerts:
		payload, err = replyCerts(host, rec)
	case wire.TagChat:
		payload, err = replyChat(host, rec)
	case wire.TagShareListing:
		payload, err = replyShareListing(host, rec)
	case wire.TagGetFileChunk:
		payload, err = replyGetFileChunk(host, rec)
	case wire.TagGiveFileChunk:
		payload, err = replyGiveFileChunk(host, rec)
	default:
		logger.Levelf(log.Warning, "dropping request with unknown tag %q from %s", rec.Tag, rec.Identity)
		return NoIdentity, nil
	}
	if err != nil {
		logger.Levelf(log.Warning, "command %q from %s failed: %v", rec.Tag, rec.Identity, err)
		return NoIdentity, nil
	}

	replyTag := wire.CommandTag(upper(byte(rec.Tag)))
	return rec.Identity, buildReply(host.LocalIdentity(), replyTag, payload)
}

// ProcessReply decodes a reply frame and routes it to the matching reply
// processor, which may return a follow-up request to enqueue (e.g.
// rollcall's discovery-driven certs request). A decode or dispatch
// failure logs a warning and returns nil, never an error the caller must
// handle specially.
func ProcessReply(host Host, peerID string, raw []byte) (followUp []byte) {
	rec, err := wire.DecodeRecord(raw)
	if err != nil {
		logger.Levelf(log.Warning, "dropping malformed reply from %s: %v", peerID, err)
		return nil
	}
	if rec.Kind != wire.Reply {
		logger.Levelf(log.Warning, "dropping frame with non-reply kind %q from %s", rec.Kind, peerID)
		return nil
	}

	switch rec.Tag {
	case upperTag(wire.TagRollcall):
		followUp, err = processReplyRollcall(host, peerID, rec)
	case upperTag(wire.TagCerts):
		err = processReplyCerts(host, peerID, rec)
	case upperTag(wire.TagChat):
		// empty reply payload, nothing to do
	case upperTag(wire.TagShareListing):
		err = processReplyShareListing(host, peerID, rec)
	case upperTag(wire.TagGetFileChunk):
		err = processReplyGetFileChunk(host, peerID, rec)
	case upperTag(wire.TagGiveFileChunk):
		// empty reply payload, nothing to do
	default:
		logger.Levelf(log.Warning, "dropping reply with unknown tag %q from %s", rec.Tag, peerID)
		return nil
	}
	if err != nil {
		logger.Levelf(log.Warning, "processing reply %q from %s failed: %v", rec.Tag, peerID, err)
		return nil
	}
	return followUp
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func upperTag(t wire.CommandTag) wire.CommandTag { return wire.CommandTag(upper(byte(t))) }
