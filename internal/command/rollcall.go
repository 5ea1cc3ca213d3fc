package command

import (
	"github.com/taconet/taco/internal/validate"
	"github.com/taconet/taco/internal/wire"
)

// BuildRollcall constructs the heart-beat request: empty payload.
// Spec.md §4.4.
func BuildRollcall(host Host) []byte {
	return buildRequest(host.LocalIdentity(), wire.TagRollcall, wire.Nil())
}

func replyRollcall(host Host) (wire.Value, error) {
	peers := wire.List()
	for _, id := range host.ReachablePeerIDs() {
		peers.List = append(peers.List, wire.Str(id))
	}
	return wire.Map().
		Set("nickname", wire.Str(host.LocalNickname())).
		Set("peers", peers), nil
}

// processReplyRollcall implements spec.md §4.4's discovery mechanism: the
// caller accepts the nickname if valid, and filters the returned peer-id
// list down to ids that are syntactically valid, not our own, and not
// already known — those become a follow-up certs request.
func processReplyRollcall(host Host, peerID string, rec wire.Record) ([]byte, error) {
	nickV, err := rec.Payload.Get("nickname")
	if err != nil {
		return nil, err
	}
	nickname, err := nickV.AsString()
	if err != nil {
		return nil, err
	}
	if validate.Nickname(nickname) {
		host.SetRemoteNickname(peerID, nickname)
	}

	peersV, err := rec.Payload.Get("peers")
	if err != nil {
		return nil, err
	}

	var discovered []string
	for _, idV := range peersV.List {
		id, err := idV.AsString()
		if err != nil {
			continue
		}
		if !validate.Identity(id) {
			continue
		}
		if id == host.LocalIdentity() {
			continue
		}
		if host.KnownPeer(id) {
			continue
		}
		discovered = append(discovered, id)
	}
	if len(discovered) == 0 {
		return nil, nil
	}
	return BuildCerts(host, discovered), nil
}
