// Package message defines the records exchanged between clients and servers.
//
// A Request travels from the caller to the object queue, a Response travels back
// on the reply queue named after the request id:
//
//	Request  {ID, Inputs: [blob...], Object: {Name, Version}, ReplyTo, Method}
//	Response {ID, Output: {Data: blob, Error: {Message} | nil}, Error: string | nil}
//
// Field names are part of the wire contract and are kept by every codec.
package message

import (
	"broker-rpc/codec"

	"github.com/google/uuid"
)

// ObjectID names a versioned object. Its string form is a registry key and a
// queue-name component; it is never parsed back.
type ObjectID struct {
	Name    string `msgpack:"Name" json:"Name"`
	Version string `msgpack:"Version" json:"Version"`
}

func NewObjectID(name, version string) ObjectID {
	return ObjectID{Name: name, Version: version}
}

func (o ObjectID) String() string {
	if o.Version == "" {
		return o.Name
	}
	return o.Name + "@" + o.Version
}

// Request carries a single call. ID doubles as the reply queue name.
type Request struct {
	ID      string   `msgpack:"ID" json:"ID"`
	Inputs  Tuple    `msgpack:"Inputs" json:"Inputs"`
	Object  ObjectID `msgpack:"Object" json:"Object"`
	ReplyTo string   `msgpack:"ReplyTo" json:"ReplyTo"`
	Method  string   `msgpack:"Method" json:"Method"`
}

// NewRequest creates a request with a fresh random correlation id.
func NewRequest(object ObjectID, method string) *Request {
	id := uuid.NewString()
	return &Request{
		ID:      id,
		Object:  object,
		Method:  method,
		Inputs:  Tuple{},
		ReplyTo: id,
	}
}

// Arg encodes v as the next input.
func (r *Request) Arg(c codec.Codec, v any) error {
	return r.Inputs.Append(c, v)
}

// CallError is a failure reported by a handler itself.
type CallError struct {
	Message string `msgpack:"Message" json:"Message"`
}

func (e *CallError) Error() string {
	return e.Message
}

// Output is the application-level result of a dispatched method.
// When Error is set, Data is empty.
type Output struct {
	Data  []byte     `msgpack:"Data" json:"Data"`
	Error *CallError `msgpack:"Error" json:"Error"`
}

// OutputOf turns a handler result into an Output. A non-nil err becomes a
// CallError carrying err.Error(); otherwise v is encoded into Data.
func OutputOf(c codec.Codec, v any, err error) (*Output, error) {
	if err != nil {
		return &Output{Data: []byte{}, Error: &CallError{Message: err.Error()}}, nil
	}
	data, err := c.Encode(v)
	if err != nil {
		return nil, Encoding(err)
	}
	return &Output{Data: data}, nil
}

// Decode decodes Data into v, or returns a Call error when the handler failed.
func (o *Output) Decode(c codec.Codec, v any) error {
	if o.Error != nil {
		return Call(o.Error)
	}
	if err := c.Decode(o.Data, v); err != nil {
		return Encoding(err)
	}
	return nil
}

// Response is produced once by the dispatching worker. Error is set for
// framework failures that never reached a handler.
type Response struct {
	ID     string  `msgpack:"ID" json:"ID"`
	Output Output  `msgpack:"Output" json:"Output"`
	Error  *string `msgpack:"Error" json:"Error"`
}

// NewResponse builds the response for request id from a dispatch result.
func NewResponse(id string, out *Output, err error) *Response {
	if err != nil {
		msg := err.Error()
		return &Response{ID: id, Output: Output{Data: []byte{}}, Error: &msg}
	}
	if out == nil {
		out = &Output{Data: []byte{}}
	}
	return &Response{ID: id, Output: *out}
}
