package client

import (
	"broker-rpc/codec"
	"broker-rpc/message"
)

// Result is the successful output of a call, still encoded.
type Result struct {
	codec codec.Codec
	data  []byte
}

// Decode decodes the return value into v.
func (r *Result) Decode(v any) error {
	if err := r.codec.Decode(r.data, v); err != nil {
		return message.Encoding(err)
	}
	return nil
}

// Tuple decodes a multi-value return.
func (r *Result) Tuple() (message.Tuple, error) {
	var t message.Tuple
	if err := r.Decode(&t); err != nil {
		return nil, err
	}
	return t, nil
}

// Scan decodes a multi-value return into dst in order.
func (r *Result) Scan(dst ...any) error {
	t, err := r.Tuple()
	if err != nil {
		return err
	}
	return t.Scan(r.codec, dst...)
}

func (r *Result) Bytes() []byte {
	return r.data
}
