package serde

import "fmt"

// Codec encodes and decodes a Value to and from a specific wire format.
// Implementations are registered by name in a Registry and looked up at
// config-install / link-resolution time, never per-request.
type Codec interface {
	Name() string
	EncodeValue(Value) ([]byte, error)
	DecodeValue([]byte) (Value, error)
}

// ErrUnknownFormat is returned by Registry.Lookup for an unregistered name.
type ErrUnknownFormat struct {
	Format string
}

func (e *ErrUnknownFormat) Error() string {
	return fmt.Sprintf("serde: unknown format %q", e.Format)
}

// Registry maps a codec name to its implementation. The zero value is not
// usable; construct with NewRegistry.
type Registry struct {
	codecs map[string]Codec
}

// NewRegistry builds a registry pre-populated with the codecs the spec
// names: bincode, json, toml, toon, plaintext.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[string]Codec)}
	r.Register(BincodeCodec{})
	r.Register(JSONCodec{})
	r.Register(TOMLCodec{})
	r.Register(ToonCodec{})
	r.Register(PlaintextCodec{})
	return r
}

func (r *Registry) Register(c Codec) {
	r.codecs[c.Name()] = c
}

func (r *Registry) Lookup(name string) (Codec, error) {
	c, ok := r.codecs[name]
	if !ok {
		return nil, &ErrUnknownFormat{Format: name}
	}
	return c, nil
}

// DetectByExtension picks a codec by file extension
// (.json,.toml,.toon,.bincode), else falls back to plaintext.
func DetectByExtension(ext string) string {
	switch ext {
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	case ".toon":
		return "toon"
	case ".bincode":
		return "bincode"
	default:
		return "plaintext"
	}
}
