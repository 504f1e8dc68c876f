// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package varlink

// A CallOption is any option that applies to a method call.
type CallOption interface {
	SetCallOption(*Call) error
}

type funcCallOpt func(*Call) error

func (fn funcCallOpt) SetCallOption(opts *Call) error {
	return fn(opts)
}

// OneWay instructs the server to suppress its reply.
func OneWay() CallOption {
	return funcCallOpt(func(opts *Call) error {
		opts.OneWay = true
		return nil
	})
}

// More requests possible multiple replies to the same call.
func More() CallOption {
	return funcCallOpt(func(opts *Call) error {
		opts.More = true
		return nil
	})
}

// Upgrade requests the connection to be taken over by a custom protocol/payload.
func Upgrade() CallOption {
	return funcCallOpt(func(opts *Call) error {
		opts.Upgrade = true
		return nil
	})
}

// CallAddress sets the address for the call.
func CallAddress(addr string) CallOption {
	return funcCallOpt(func(opts *Call) error {
		a, err := ParseAddress(addr)
		if err == nil {
			opts.Address = a
		}
		return err
	})
}

// A ReplyOption is any option that applies to a method reply
type ReplyOption interface {
	SetReplyOption(*Reply) error
}

type funcReplyOpt func(*Reply) error

func (fn funcReplyOpt) SetReplyOption(opts *Reply) error {
	return fn(opts)
}

// Continues signifies that more replies are coming after this reply. Must
// only be set if the call set the `more` option.
func Continues() ReplyOption {
	return funcReplyOpt(func(opts *Reply) error {
		opts.Continues = true
		return nil
	})
}

// ErrorCode turns the reply into an error reply with the specified error code.
// The error code must be a fully qualified error name (e.g. com.example.Error).
func ErrorCode(code string) ReplyOption {
	return funcReplyOpt(func(opts *Reply) error {
		opts.Error = code
		return nil
	})
}
