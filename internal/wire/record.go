package wire

// RecordKind distinguishes a request frame from a reply frame, the "r"/"R"
// of spec.md §6's wire record.
type RecordKind byte

const (
	Request RecordKind = 'r'
	Reply   RecordKind = 'R'
)

// CommandTag is the single-character command selector paired with a
// RecordKind, e.g. rollcall's request tag 'a' / reply tag 'A'.
type CommandTag byte

const (
	TagRollcall      CommandTag = 'a'
	TagCerts         CommandTag = 'b'
	TagChat          CommandTag = 'c'
	TagShareListing  CommandTag = 'd'
	TagGetFileChunk  CommandTag = 'x'
	TagGiveFileChunk CommandTag = 'z'
	TagGarbage       CommandTag = 'G'
)

// Record is the decoded form of a wire frame: identity, kind+tag, payload.
type Record struct {
	Identity string
	Kind     RecordKind
	Tag      CommandTag
	Payload  Value
}

const (
	fieldIdentity = "I"
	fieldKind     = "K"
	fieldTag      = "T"
	fieldPayload  = "D"
)

// EncodeRecord serializes a Record to its wire form.
func EncodeRecord(r Record) []byte {
	v := Map().
		Set(fieldIdentity, Str(r.Identity)).
		Set(fieldKind, Int(int64(r.Kind))).
		Set(fieldTag, Int(int64(r.Tag))).
		Set(fieldPayload, r.Payload)
	return Encode(v)
}

// DecodeRecord parses a Record from its wire form, returning a
// *DecodeError for anything malformed, per spec.md §4.3/§7.
func DecodeRecord(b []byte) (Record, error) {
	v, err := Decode(b)
	if err != nil {
		return Record{}, err
	}
	identV, err := v.Get(fieldIdentity)
	if err != nil {
		return Record{}, err
	}
	identity, err := identV.AsString()
	if err != nil {
		return Record{}, err
	}
	kindV, err := v.Get(fieldKind)
	if err != nil {
		return Record{}, err
	}
	tagV, err := v.Get(fieldTag)
	if err != nil {
		return Record{}, err
	}
	payload, err := v.Get(fieldPayload)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Identity: identity,
		Kind:     RecordKind(kindV.Int),
		Tag:      CommandTag(tagV.Int),
		Payload:  payload,
	}, nil
}
