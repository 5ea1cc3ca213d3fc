package command

import (
	"github.com/taconet/taco/internal/shares"
	"github.com/taconet/taco/internal/wire"
)

// BuildShareListing requests a directory listing under shareDir ("/" for
// the top-level list of declared shares). resultsUUID is generated by the
// caller (the Session Supervisor's Browse, spec.md §6) so it can key the
// pending browse-cache entry the eventual reply fills in. Spec.md §4.4.
func BuildShareListing(host Host, shareDir, resultsUUID string) []byte {
	payload := wire.Map().
		Set("sharedir", wire.Str(shareDir)).
		Set("resultsuuid", wire.Str(resultsUUID))
	return buildRequest(host.LocalIdentity(), wire.TagShareListing, payload)
}

func replyShareListing(host Host, rec wire.Record) (wire.Value, error) {
	dirV, err := rec.Payload.Get("sharedir")
	if err != nil {
		return wire.Value{}, err
	}
	shareDir, err := dirV.AsString()
	if err != nil {
		return wire.Value{}, err
	}
	resultsUUID, _ := rec.Payload.GetOr("resultsuuid", wire.Str("")).AsString()

	listing, err := host.ResolveShareListing(shareDir)
	if err != nil {
		return wire.Map().
			Set("result", wire.Str("ERROR")).
			Set("shareuuid", wire.Str(resultsUUID)).
			Set("sharedir", wire.Str(shareDir)).
			Set("message", wire.Str(err.Error())), nil
	}

	entries := wire.List()
	for _, e := range listing.Entries {
		kind := "file"
		if e.IsDir {
			kind = "dir"
		}
		entries.List = append(entries.List, wire.Map().
			Set("name", wire.Str(e.Name)).
			Set("virtualpath", wire.Str(e.VirtualPath)).
			Set("kind", wire.Str(kind)))
	}
	return wire.Map().
		Set("result", wire.Str("OK")).
		Set("shareuuid", wire.Str(resultsUUID)).
		Set("sharedir", wire.Str(shareDir)).
		Set("entries", entries).
		Set("truncated", boolValue(listing.Truncated)), nil
}

// processReplyShareListing decodes the reply and hands it to the browse
// cache the Session Supervisor's Browse()/BrowseResult() pair (spec.md §6)
// maintains, correlated by resultsuuid/shareuuid.
func processReplyShareListing(host Host, peerID string, rec wire.Record) error {
	resultV, err := rec.Payload.Get("result")
	if err != nil {
		return err
	}
	result, err := resultV.AsString()
	if err != nil {
		return err
	}
	handle, _ := rec.Payload.GetOr("shareuuid", wire.Str("")).AsString()
	if handle == "" {
		return nil
	}

	if result != "OK" {
		message, _ := rec.Payload.GetOr("message", wire.Str("")).AsString()
		host.StoreShareListingError(handle, peerID, message)
		return nil
	}

	entriesV, err := rec.Payload.Get("entries")
	if err != nil {
		return err
	}
	truncated := rec.Payload.GetOr("truncated", wire.Int(0)).Int != 0

	listing := shares.Listing{Truncated: truncated}
	for _, entV := range entriesV.List {
		name, _ := entV.GetOr("name", wire.Str("")).AsString()
		virtualPath, _ := entV.GetOr("virtualpath", wire.Str("")).AsString()
		kind, _ := entV.GetOr("kind", wire.Str("file")).AsString()
		listing.Entries = append(listing.Entries, shares.Entry{
			Name:        name,
			VirtualPath: virtualPath,
			IsDir:       kind == "dir",
		})
	}
	host.StoreShareListingResult(handle, peerID, listing)
	return nil
}
