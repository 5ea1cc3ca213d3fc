package command

import (
	"github.com/taconet/taco/internal/protoconst"
	"github.com/taconet/taco/internal/wire"
)

// BuildGetFileChunk requests a chunk at offset from a peer's share. C8
// enqueues these onto the file priority queue under credit control.
// Spec.md §4.4 and §4's "Credit-based issuing".
func BuildGetFileChunk(host Host, shareDir, fileName string, offset int64, chunkUUID string) []byte {
	payload := wire.Map().
		Set("sharedir", wire.Str(shareDir)).
		Set("filename", wire.Str(fileName)).
		Set("offset", wire.Int(offset)).
		Set("chunkuuid", wire.Str(chunkUUID))
	return buildRequest(host.LocalIdentity(), wire.TagGetFileChunk, payload)
}

// replyGetFileChunk is the callee side. It reads the chunk inline, in the
// server loop, and enqueues the bytes as an independent give-file-chunk
// request on the peer's low-priority queue before returning the ack;
// there is no separate worker. A failed read yields status=error and no
// give-file-chunk. Spec.md §4.4's "asymmetric" note.
func replyGetFileChunk(host Host, rec wire.Record) (wire.Value, error) {
	shareDirV, err := rec.Payload.Get("sharedir")
	if err != nil {
		return wire.Value{}, err
	}
	shareDir, err := shareDirV.AsString()
	if err != nil {
		return wire.Value{}, err
	}
	fileNameV, err := rec.Payload.Get("filename")
	if err != nil {
		return wire.Value{}, err
	}
	fileName, err := fileNameV.AsString()
	if err != nil {
		return wire.Value{}, err
	}
	offsetV, err := rec.Payload.Get("offset")
	if err != nil {
		return wire.Value{}, err
	}
	chunkUUIDV, err := rec.Payload.Get("chunkuuid")
	if err != nil {
		return wire.Value{}, err
	}
	chunkUUID, err := chunkUUIDV.AsString()
	if err != nil {
		return wire.Value{}, err
	}

	data, err := host.OpenShareChunk(shareDir, fileName, offsetV.Int, protoconst.FileChunkSize)
	if err != nil {
		return wire.Map().
			Set("chunkuuid", wire.Str(chunkUUID)).
			Set("status", wire.Str("error")), nil
	}

	give := BuildGiveFileChunk(host, data, chunkUUID)
	host.EnqueueLow(rec.Identity, give)

	return wire.Map().
		Set("chunkuuid", wire.Str(chunkUUID)).
		Set("status", wire.Str("ok")), nil
}

// processReplyGetFileChunk handles the synchronous ack: status=ok marks
// the chunk's ack_time; status=error is treated as a chunk failure, per
// spec.md §4's "Ack handling" (implementation choice: the coordinator
// aborts the active transfer; the item stays queued and is rebuilt on the
// next tick).
func processReplyGetFileChunk(host Host, peerID string, rec wire.Record) error {
	chunkUUIDV, err := rec.Payload.Get("chunkuuid")
	if err != nil {
		return err
	}
	chunkUUID, err := chunkUUIDV.AsString()
	if err != nil {
		return err
	}
	statusV, err := rec.Payload.Get("status")
	if err != nil {
		return err
	}
	status, err := statusV.AsString()
	if err != nil {
		return err
	}
	host.HandleChunkAck(peerID, chunkUUID, status == "ok")
	return nil
}

// BuildGiveFileChunk is built by the callee's replyGetFileChunk once it
// has read the bytes; it is itself a request (carrying
// the payload), whose reply is the empty acknowledgement, per spec.md
// §4.4's give-file-chunk row.
func BuildGiveFileChunk(host Host, data []byte, chunkUUID string) []byte {
	payload := wire.Map().
		Set("data", wire.Bin(data)).
		Set("chunkuuid", wire.Str(chunkUUID))
	return buildRequest(host.LocalIdentity(), wire.TagGiveFileChunk, payload)
}

// replyGiveFileChunk forwards the bytes to C8 and acknowledges with an
// empty payload.
func replyGiveFileChunk(host Host, rec wire.Record) (wire.Value, error) {
	dataV, err := rec.Payload.Get("data")
	if err != nil {
		return wire.Value{}, err
	}
	chunkUUIDV, err := rec.Payload.Get("chunkuuid")
	if err != nil {
		return wire.Value{}, err
	}
	chunkUUID, err := chunkUUIDV.AsString()
	if err != nil {
		return wire.Value{}, err
	}
	host.HandleChunkData(rec.Identity, chunkUUID, dataV.Bytes)
	return wire.Nil(), nil
}
