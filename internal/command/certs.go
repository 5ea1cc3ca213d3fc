package command

import (
	"github.com/anacrolix/log"

	"github.com/taconet/taco/internal/peertable"
	"github.com/taconet/taco/internal/wire"
)

// BuildCerts constructs a request for the peer records behind the given
// identities. Spec.md §4.4.
func BuildCerts(host Host, ids []string) []byte {
	list := wire.List()
	for _, id := range ids {
		list.List = append(list.List, wire.Str(id))
	}
	return buildRequest(host.LocalIdentity(), wire.TagCerts, list)
}

func replyCerts(host Host, rec wire.Record) (wire.Value, error) {
	out := wire.Map()
	for _, idV := range rec.Payload.List {
		id, err := idV.AsString()
		if err != nil {
			continue
		}
		if id == rec.Identity {
			// never hand back the caller's own record
			continue
		}
		p, ok := host.PeerRecord(id)
		if !ok {
			continue
		}
		out = out.Set(id, wire.List(
			wire.Str(p.RemoteNickname),
			wire.Str(p.Hostname),
			wire.Int(int64(p.Port)),
			wire.Bin(p.ClientPublicKey),
			wire.Bin(p.ServerPublicKey),
			boolValue(p.Dynamic),
		))
	}
	return out, nil
}

func boolValue(b bool) wire.Value {
	if b {
		return wire.Int(1)
	}
	return wire.Int(0)
}

// processReplyCerts implements spec.md §4.4: new peers are added with
// enabled=false; peers already known are never silently mutated, only
// logged about, per the Open Question resolved in spec.md §9 ("log
// divergence, do not mutate").
func processReplyCerts(host Host, peerID string, rec wire.Record) error {
	if rec.Payload.Kind != wire.KindMap || rec.Payload.Map == nil {
		return nil
	}
	for el := rec.Payload.Map.Front(); el != nil; el = el.Next() {
		id := el.Key.(string)
		fields := el.Value.(wire.Value)
		if fields.Kind != wire.KindList || len(fields.List) != 6 {
			logger.Levelf(log.Warning, "malformed certs entry for %s from %s", id, peerID)
			continue
		}
		if host.KnownPeer(id) {
			logger.Levelf(log.Debug, "peer %s already known, ignoring certs update from %s", id, peerID)
			continue
		}
		nickname, _ := fields.List[0].AsString()
		hostname, _ := fields.List[1].AsString()
		newPeer := peertable.Record{
			Identity:        id,
			Hostname:        hostname,
			Port:            uint16(fields.List[2].Int),
			ClientPublicKey: fields.List[3].Bytes,
			ServerPublicKey: fields.List[4].Bytes,
			Dynamic:         fields.List[5].Int != 0,
			RemoteNickname:  nickname,
			Enabled:         false,
		}
		host.AddDiscoveredPeer(newPeer)
	}
	return nil
}
