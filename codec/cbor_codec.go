package codec

import (
	cbor "github.com/fxamacker/cbor/v2"
)

// CBORCodec uses deterministic core-profile encoding. Field names come from the
// `cbor` tag, or the `json` tag when no `cbor` tag is present.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var cborDefault = mustCBOR()

// NewCBORCodec builds a CBOR codec with canonical encoding options.
func NewCBORCodec() (*CBORCodec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return &CBORCodec{enc: em, dec: dm}, nil
}

func mustCBOR() *CBORCodec {
	c, err := NewCBORCodec()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *CBORCodec) Encode(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c *CBORCodec) Decode(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}

func (c *CBORCodec) Type() CodecType {
	return CodecTypeCBOR
}
