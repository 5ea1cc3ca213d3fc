package command

import (
	"github.com/taconet/taco/internal/validate"
	"github.com/taconet/taco/internal/wire"
)

// BuildChat appends text to the caller's own chat log and fans it out to
// every peer's medium-priority queue, per spec.md §4.4's chat semantics.
// It does not itself return a request to send to one peer: the fan-out is
// the whole point, so it enqueues directly and returns nothing.
func BuildChat(host Host, text string) {
	if !validate.ChatText(text) {
		return
	}
	_, ts := host.AppendChatLocal(text)
	payload := wire.Map().
		Set("ts", wire.Int(ts)).
		Set("text", wire.Str(text))
	req := buildRequest(host.LocalIdentity(), wire.TagChat, payload)
	host.EnqueueAllMedium(req)
}

func replyChat(host Host, rec wire.Record) (wire.Value, error) {
	tsV, err := rec.Payload.Get("ts")
	if err != nil {
		return wire.Value{}, err
	}
	textV, err := rec.Payload.Get("text")
	if err != nil {
		return wire.Value{}, err
	}
	text, err := textV.AsString()
	if err != nil {
		return wire.Value{}, err
	}
	host.AppendChatRemote(rec.Identity, tsV.Int, text)
	return wire.Nil(), nil
}
