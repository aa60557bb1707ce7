// Package protocol is the contract every client and server shares over the broker.
//
// There are no sockets between peers. A call is two list pushes:
//
//	client ──RPUSH {module}.{object}──► broker ──BLPOP (10s)──► server worker
//	client ◄──BLPOP {request.id}─────── broker ◄──RPUSH + EXPIRE 300s── server worker
//
// The request queue is named after the module serving the object and the
// object's string form. The reply queue is the request's correlation id, and it
// always gets a TTL right after the push so abandoned replies do not pile up.
package protocol

import (
	"fmt"
	"time"

	"broker-rpc/codec"
	"broker-rpc/message"
)

const (
	// PullTimeout bounds each blocking pop of the server dispatch loop.
	PullTimeout = 10 * time.Second
	// ReplyTTL is set on a reply queue immediately after the response is pushed.
	ReplyTTL = 300 * time.Second
	// RetryBackoff is the pause after a broker failure before trying again.
	RetryBackoff = 2 * time.Second
)

// RequestQueue returns the list key a module's object is served from.
func RequestQueue(module string, object message.ObjectID) string {
	return module + "." + object.String()
}

// QueueFor is RequestQueue for an object already in string form.
func QueueFor(module, object string) string {
	return module + "." + object
}

// EncodeRequest serializes a request envelope.
func EncodeRequest(c codec.Codec, req *message.Request) ([]byte, error) {
	data, err := c.Encode(req)
	if err != nil {
		return nil, message.Encoding(err)
	}
	return data, nil
}

// DecodeRequest parses a request envelope and checks it can be answered.
func DecodeRequest(c codec.Codec, data []byte) (*message.Request, error) {
	req := new(message.Request)
	if err := c.Decode(data, req); err != nil {
		return nil, message.Encoding(err)
	}
	if req.ID == "" {
		return nil, message.Protocol("request without id")
	}
	if req.ReplyTo == "" {
		return nil, message.Protocol(fmt.Sprintf("request %s without reply queue", req.ID))
	}
	return req, nil
}

// EncodeResponse serializes a response envelope.
func EncodeResponse(c codec.Codec, resp *message.Response) ([]byte, error) {
	data, err := c.Encode(resp)
	if err != nil {
		return nil, message.Encoding(err)
	}
	return data, nil
}

// DecodeResponse parses a response envelope and checks it answers id.
func DecodeResponse(c codec.Codec, data []byte, id string) (*message.Response, error) {
	resp := new(message.Response)
	if err := c.Decode(data, resp); err != nil {
		return nil, message.Encoding(err)
	}
	if resp.ID != id {
		return nil, message.Protocol(fmt.Sprintf("response id %q does not match request %q", resp.ID, id))
	}
	return resp, nil
}
