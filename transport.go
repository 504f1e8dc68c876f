// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package varlink

import (
	"context"
	"fmt"
	"sync"
)

// DefaultTransport is the RoundTripper used by DefaultClient.
var DefaultTransport RoundTripper = &Transport{}

// RoundTripper issues a single call over a session, possibly obtaining that
// session from a pool, and returns the lazy reply sequence.
type RoundTripper interface {
	RoundTrip(ctx context.Context, session *Session, call *Call) (*ReplyStream, error)
}

// Transport is the default RoundTripper: it keeps a small pool of idle
// sessions per address so that repeated calls to the same service don't pay
// for a fresh Dial every time.
type Transport struct {
	// MaxIdleSessions is how many idle sessions are kept per address.
	//
	// The default is 1.
	MaxIdleSessions int

	mu   sync.Mutex
	idle map[Address]chan *Session
}

func (t *Transport) init() {
	t.mu.Lock()
	if t.idle == nil {
		t.idle = make(map[Address]chan *Session)
	}
	t.mu.Unlock()
}

func (t *Transport) RoundTrip(ctx context.Context, session *Session, call *Call) (*ReplyStream, error) {
	t.init()

	owned := session == nil
	if owned {
		if call.Address == (Address{}) {
			return nil, fmt.Errorf("call %q: no address set; use CallAddress", call.Method)
		}

		var err error
		session, err = t.takeSession(ctx, call.Address)
		if err != nil {
			return nil, err
		}
	}

	if err := session.WriteCall(ctx, call); err != nil {
		if owned {
			session.Close()
		}
		return nil, err
	}

	stream := NewReplyStream(ctx, call, session)
	if owned && !call.Upgrade {
		addr := call.Address
		stream.release = func() { t.giveSession(addr, session) }
	}
	return stream, nil
}

func (t *Transport) takeSession(ctx context.Context, addr Address) (*Session, error) {
	t.mu.Lock()
	ch := t.idle[addr]
	if ch == nil {
		max := t.MaxIdleSessions
		if max <= 0 {
			max = 1
		}
		ch = make(chan *Session, max)
		t.idle[addr] = ch
	}
	t.mu.Unlock()

	select {
	case session := <-ch:
		return session, nil
	default:
	}

	return Dial(ctx, addr.String())
}

func (t *Transport) giveSession(addr Address, session *Session) {
	t.mu.Lock()
	ch := t.idle[addr]
	t.mu.Unlock()

	if ch == nil {
		session.Close()
		return
	}

	select {
	case ch <- session:
	default:
		session.Close()
	}
}

// CloseIdleConnections closes any sessions sitting idle in the pool.
func (t *Transport) CloseIdleConnections() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ch := range t.idle {
		for {
			select {
			case session := <-ch:
				session.Close()
				continue
			default:
			}
			break
		}
	}
}

// ReplyStream drives the client side of a call's reply sequence: one reply
// for a normal call, zero for oneway, and a sequence terminated by a reply
// without Continues for a more call.
type ReplyStream struct {
	ctx  context.Context
	call *Call
	sess *Session
	cur  Reply
	err  error
	more bool

	release func()
	done    bool
}

// NewReplyStream creates a ReplyStream driving call's replies on session.
func NewReplyStream(ctx context.Context, call *Call, session *Session) *ReplyStream {
	return &ReplyStream{ctx: ctx, call: call, sess: session, more: !call.OneWay}
}

// Next advances the stream by one reply, and returns whether there are
// more replies to come after this.
func (r *ReplyStream) Next() bool {
	if !r.more {
		r.finish()
		return false
	}

	r.err = r.sess.ReadReply(r.ctx, &r.cur)
	if r.err != nil {
		r.more = false
		r.finish()
		return false
	}

	if r.cur.Error != "" {
		r.err = &varlinkError{Code: r.cur.Error, Parameters: r.cur.Parameters}
	}

	if !r.call.More {
		// A normal call observing continues: true was mis-used by the
		// server; per the usage-error policy the connection is no longer
		// trustworthy for reuse.
		if r.cur.Continues {
			r.err = fmt.Errorf("varlink: reply to non-more call %q carried continues: true", r.call.Method)
			r.sess.Close()
			r.release = nil
		}
		r.more = false
		r.finish()
		return true
	}

	r.more = r.cur.Continues
	if !r.more {
		r.finish()
	}
	return true
}

func (r *ReplyStream) finish() {
	if r.done {
		return
	}
	r.done = true
	if r.release != nil {
		r.release()
	}
}

// Error returns the current error in the stream. These can be session errors,
// or error replies. Error replies are converted and returned as Go errors.
func (r *ReplyStream) Error() error {
	return r.err
}

// Reply returns the current reply in the stream.
//
// The returned pointer is valid until Next() is called.
func (r *ReplyStream) Reply() *Reply {
	return &r.cur
}

// Unmarshal unmarshals the parameters of the current reply into the specified
// pointer value.
func (r *ReplyStream) Unmarshal(params any) Error {
	return r.cur.Unmarshal(params)
}
