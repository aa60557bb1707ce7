package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgPackCodec writes structs as maps keyed by field name (the `msgpack` tag),
// which is what keeps envelopes forward compatible.
type MsgPackCodec struct{}

func (c *MsgPackCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *MsgPackCodec) Decode(data []byte, v any) error {
	return msgpack.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (c *MsgPackCodec) Type() CodecType {
	return CodecTypeMsgPack
}
