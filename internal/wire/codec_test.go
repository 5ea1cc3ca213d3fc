package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	v := Map().
		Set("command", Str("rollcall")).
		Set("nickname", Str("alice")).
		Set("port", Int(9700)).
		Set("tags", List(Str("a"), Str("b"), Int(-7))).
		Set("nothing", Nil())

	b := Encode(v)
	decoded, err := Decode(b)
	require.NoError(t, err)

	cmd, err := decoded.Get("command")
	require.NoError(t, err)
	s, err := cmd.AsString()
	require.NoError(t, err)
	assert.Equal(t, "rollcall", s)

	port, err := decoded.Get("port")
	require.NoError(t, err)
	assert.Equal(t, int64(9700), port.Int)

	tags, err := decoded.Get("tags")
	require.NoError(t, err)
	require.Len(t, tags.List, 3)
	assert.Equal(t, int64(-7), tags.List[2].Int)

	nothing, err := decoded.Get("nothing")
	require.NoError(t, err)
	assert.Equal(t, KindNil, nothing.Kind)
}

func TestDecodeTruncated(t *testing.T) {
	b := Encode(Int(42))
	_, err := Decode(b[:len(b)-1])
	require.Error(t, err)
	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestDecodeTrailingBytes(t *testing.T) {
	b := append(Encode(Int(1)), 0xff)
	_, err := Decode(b)
	require.Error(t, err)
}

func TestGetMissingField(t *testing.T) {
	m := Map().Set("a", Int(1))
	_, err := m.Get("b")
	require.Error(t, err)
}

func TestGetOrDefault(t *testing.T) {
	m := Map().Set("a", Int(1))
	v := m.GetOr("missing", Int(99))
	assert.Equal(t, int64(99), v.Int)
}

func TestGetOnNonMap(t *testing.T) {
	_, err := Int(1).Get("a")
	require.Error(t, err)
}
