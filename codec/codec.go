// Package codec encodes individual values and envelope records for the wire.
//
// Every codec is self-describing and keeps struct field names, so a record that
// gains fields stays readable by older peers. MsgPack is the default and the
// format other implementations of the protocol speak; CBOR and JSON exist for
// deployments that prefer them. Both ends of a deployment must agree.
package codec

import (
	"fmt"
	"strings"
)

type CodecType byte

const (
	CodecTypeMsgPack CodecType = 0
	CodecTypeCBOR    CodecType = 1
	CodecTypeJSON    CodecType = 2
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeMsgPack:
		return "msgpack"
	case CodecTypeCBOR:
		return "cbor"
	case CodecTypeJSON:
		return "json"
	default:
		return fmt.Sprintf("codec(%d)", byte(t))
	}
}

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

// GetCodec returns the codec for codecType, falling back to MsgPack.
func GetCodec(codecType CodecType) Codec {
	switch codecType {
	case CodecTypeCBOR:
		return cborDefault
	case CodecTypeJSON:
		return &JSONCodec{}
	default:
		return &MsgPackCodec{}
	}
}

// ParseCodecType maps a configuration name to a CodecType. An empty name selects MsgPack.
func ParseCodecType(name string) (CodecType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "msgpack", "messagepack":
		return CodecTypeMsgPack, nil
	case "cbor":
		return CodecTypeCBOR, nil
	case "json":
		return CodecTypeJSON, nil
	default:
		return 0, fmt.Errorf("unknown codec %q", name)
	}
}
