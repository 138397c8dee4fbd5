package serde

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleValue() Value {
	return Map(map[string]Value{
		"name":    String("api-gw"),
		"count":   Int(-42),
		"weight":  Uint(7),
		"ratio":   Float(0.5),
		"enabled": Bool(true),
		"blob":    Bytes([]byte{0x00, 0x01, 0xff, 0x10}),
		"tags":    Sequence([]Value{String("a"), String("b")}),
		"missing": None(),
		"present": Some(String("x")),
		"empty":   Unit(),
	})
}

func TestRegistryKnowsAllFormats(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"bincode", "json", "toml", "toon", "plaintext"} {
		c, err := r.Lookup(name)
		require.NoError(t, err)
		require.Equal(t, name, c.Name())
	}

	_, err := r.Lookup("xml")
	require.Error(t, err)
	var unknown *ErrUnknownFormat
	require.ErrorAs(t, err, &unknown)
}

func TestRoundTripAllTypedFormats(t *testing.T) {
	v := sampleValue()

	for _, name := range []string{"bincode", "json", "toml", "toon"} {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry()
			codec, err := r.Lookup(name)
			require.NoError(t, err)

			encoded, err := codec.EncodeValue(v)
			require.NoError(t, err)

			decoded, err := codec.DecodeValue(encoded)
			require.NoError(t, err)

			require.True(t, v.Equal(decoded), "round trip through %s changed the value: got %#v", name, decoded)
		})
	}
}

func TestBincodeCanonicalEncodingIsMapOrderIndependent(t *testing.T) {
	a := Map(map[string]Value{"a": Int(1), "b": Int(2)})
	b := Map(map[string]Value{"b": Int(2), "a": Int(1)})

	ea, err := BincodeCodec{}.EncodeValue(a)
	require.NoError(t, err)
	eb, err := BincodeCodec{}.EncodeValue(b)
	require.NoError(t, err)

	require.Equal(t, ea, eb)
}

func TestBincodeDigestStability(t *testing.T) {
	v := sampleValue()
	codec := BincodeCodec{}

	encoded1, err := codec.EncodeValue(v)
	require.NoError(t, err)

	decoded, err := codec.DecodeValue(encoded1)
	require.NoError(t, err)

	encoded2, err := codec.EncodeValue(decoded)
	require.NoError(t, err)

	require.Equal(t, encoded1, encoded2)
}

func TestPlaintextOnlySupportsStrings(t *testing.T) {
	codec := PlaintextCodec{}

	encoded, err := codec.EncodeValue(String("hello world"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(encoded))

	decoded, err := codec.DecodeValue([]byte("raw file contents"))
	require.NoError(t, err)
	s, ok := decoded.AsString()
	require.True(t, ok)
	require.Equal(t, "raw file contents", s)

	_, err = codec.EncodeValue(Int(5))
	require.Error(t, err)
}

func TestDetectByExtension(t *testing.T) {
	cases := map[string]string{
		".json":    "json",
		".toml":    "toml",
		".toon":    "toon",
		".bincode": "bincode",
		".txt":     "plaintext",
		"":         "plaintext",
	}
	for ext, want := range cases {
		require.Equal(t, want, DetectByExtension(ext), "ext=%s", ext)
	}
}
