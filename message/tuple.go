package message

import (
	"fmt"

	"broker-rpc/codec"
)

// Tuple is an ordered list of independently encoded values. Each entry is
// decoded on its own, so a type mismatch on one argument leaves the others
// readable.
type Tuple [][]byte

// NewTuple encodes vals in order.
func NewTuple(c codec.Codec, vals ...any) (Tuple, error) {
	t := make(Tuple, 0, len(vals))
	for _, v := range vals {
		if err := t.Append(c, v); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t Tuple) Len() int {
	return len(t)
}

// Append encodes v and adds it to the end of the tuple.
func (t *Tuple) Append(c codec.Codec, v any) error {
	data, err := c.Encode(v)
	if err != nil {
		return Encoding(err)
	}
	*t = append(*t, data)
	return nil
}

// At decodes entry i into v.
func (t Tuple) At(c codec.Codec, i int, v any) error {
	if i < 0 || i >= len(t) {
		return ArgumentOutOfRange(i)
	}
	if err := c.Decode(t[i], v); err != nil {
		return Encoding(fmt.Errorf("argument %d: %w", i, err))
	}
	return nil
}

// Scan decodes the first len(dst) entries into dst, in order.
func (t Tuple) Scan(c codec.Codec, dst ...any) error {
	for i, v := range dst {
		if err := t.At(c, i, v); err != nil {
			return err
		}
	}
	return nil
}

func (t Tuple) String() string {
	return fmt.Sprintf("Tuple(len: %d)", len(t))
}
