// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package varlink

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"waxwing.dev/go-varlink/internal/service"
)

var ErrUnsupportedScheme = errors.New("unsupported scheme")

// Call represents a Varlink call.
type Call struct {

	// The address to make the call to. Unset for calls read off an existing
	// connection by a server.
	Address Address `json:"-"`

	// Fully qualified method name, in the format <interface>.<method>.
	Method string `json:"method"`

	// OneWay, if true, instructs the server to suppress its reply. The server
	// must adhere to the instruction, to allow clients to associate the next
	// reply to the next call issued without oneway.
	OneWay bool `json:"oneway,omitempty"`

	// More, if true, requests possible multiple replies to the same call.
	More bool `json:"more,omitempty"`

	// Upgrade requests the connection to be taken over by a custom
	// protocol/payload. The core only plumbs the flag through to the
	// handler; it does not itself define hijacking semantics.
	Upgrade bool `json:"upgrade,omitempty"`

	// Input parameters.
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

func decode(data []byte, v any) Error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var (
			ute  *json.UnmarshalTypeError
			verr Error
		)
		switch {
		case errors.As(err, &verr):
			return verr

		// This sucks, but we have to deal with string-parsing errors
		// from the json decoder until encoding/json/v2 is out, and
		// we're okay with bumping the minimum version of Go required
		// for this project.
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			p := strings.TrimPrefix(err.Error(), `json: unknown field "`)
			p = strings.TrimSuffix(p, `"`)
			return service.InvalidParameter(p)

		case errors.As(err, &ute):
			return service.InvalidParameter(ute.Field)
		}

		return NewError(`waxwing.dev.varlink.UnmarshalError`,
			"type", fmt.Sprintf("%T", v),
			"message", err.Error())
	}
	return nil
}

func (c *Call) Unmarshal(v any) Error {
	return decode([]byte(c.Parameters), v)
}

func MakeCall(method string, params any, opts ...CallOption) (call Call, err error) {
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return Call{}, err
		}
		call.Parameters = json.RawMessage(data)
	}

	call.Method = method

	for _, opt := range opts {
		opt.SetCallOption(&call)
	}
	return call, nil
}

type Reply struct {

	// Output parameters.
	Parameters json.RawMessage `json:"parameters"`

	// Continues, if true, instructs the client to expect multiple replies.
	Continues bool `json:"continues,omitempty"`

	// Error is the fully-qualified reverse-domain error name, and if set,
	// indicates that the method call has failed.
	Error string `json:"error,omitempty"`
}

func (r *Reply) Unmarshal(v any) Error {
	return decode([]byte(r.Parameters), v)
}

func MakeReply(params any, opts ...ReplyOption) (reply Reply, err error) {
	data, err := json.Marshal(params)
	if err != nil {
		return Reply{}, err
	}

	// Never omit parameters in replies, even if params is nil. Most
	// implementations of varlink expect that field to be present and will
	// fail if an empty document is sent back as reply.
	reply.Parameters = json.RawMessage(data)

	for _, opt := range opts {
		opt.SetReplyOption(&reply)
	}
	return reply, nil
}
