package codec

import (
	"bytes"
	"encoding/json"
)

// JSONCodec is the human-readable codec, handy when inspecting queues with
// redis-cli. Byte blobs travel as base64 strings, so payloads are larger than
// with msgpack. HTML escaping is off so method names and messages stay legible.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
