package flow

import (
	"github.com/mitchellh/mapstructure"

	"github.com/switchboard-io/switchboard/internal/serde"
)

// decodeConfig maps an instance's serde.Value config onto out using
// mapstructure with weakly typed input, so that, for example, a numeric
// string decodes into an int field.
func decodeConfig(v serde.Value, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(v.ToNative())
}
