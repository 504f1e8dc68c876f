// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package varlink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
)

// ErrConnectionBusy is returned by WriteCall when a session already has a
// call in flight. A varlink connection carries at most one outstanding call
// at a time; issuing a second one is a usage error, not something to queue
// or retry.
var ErrConnectionBusy = errors.New("varlink: connection busy")

// Session represents a client-side varlink connection.
//
// Unlike a connection accepted by the server's event loop, a Session
// performs ordinary blocking reads and writes: it is meant to be driven from
// the calling goroutine, one call at a time.
type Session struct {
	conn net.Conn
	wmu  sync.Mutex
	rw   bufio.ReadWriter

	mu   sync.Mutex
	busy bool
}

// NewSession creates a session from a net.Conn. The session takes ownership
// of that connection, and closing the session closes the underlying connection.
func NewSession(conn net.Conn) *Session {
	return &Session{
		conn: conn,
		rw: bufio.ReadWriter{
			Reader: bufio.NewReader(conn),
			Writer: bufio.NewWriter(conn),
		},
	}
}

// WriteCall writes a call to the connection, marking the session busy until
// a terminal reply is read back with ReadReply.
func (session *Session) WriteCall(ctx context.Context, call *Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	session.mu.Lock()
	if session.busy {
		session.mu.Unlock()
		return ErrConnectionBusy
	}
	session.busy = true
	session.mu.Unlock()

	payload, err := json.Marshal(call)
	if err != nil {
		session.clearBusy()
		return err
	}

	if err := session.writeMsg(payload); err != nil {
		session.clearBusy()
		return err
	}

	if call.OneWay {
		session.clearBusy()
	}
	return nil
}

func (session *Session) clearBusy() {
	session.mu.Lock()
	session.busy = false
	session.mu.Unlock()
}

// ReadReply reads one reply frame from the connection.
//
// If the reply does not carry continues: true, the session is marked free
// for another call. A reply carrying continues: true for a call that wasn't
// made with More is a protocol usage error: the caller is expected to close
// the connection (see Error Handling Design, usage errors).
func (session *Session) ReadReply(ctx context.Context, reply *Reply) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := session.readMsg()
	if err != nil {
		session.clearBusy()
		return err
	}

	*reply = Reply{}
	if err := json.Unmarshal(payload, reply); err != nil {
		session.clearBusy()
		return err
	}

	if !reply.Continues {
		session.clearBusy()
	}
	return nil
}

func (session *Session) writeMsg(msg []byte) error {
	session.wmu.Lock()
	defer session.wmu.Unlock()

	if _, err := session.rw.Write(msg); err != nil {
		return err
	}
	if err := session.rw.WriteByte('\x00'); err != nil {
		return err
	}
	return session.rw.Flush()
}

func (session *Session) readMsg() ([]byte, error) {
	msg, err := session.rw.ReadBytes('\x00')
	switch {
	case err == io.EOF:
		return nil, ErrPeerDisconnected
	case err != nil:
		return nil, err
	}
	return msg[:len(msg)-1], nil
}

// Close terminates the session and closes the underlying connection.
func (session *Session) Close() error {
	return session.conn.Close()
}

// Dial opens a session for the specified address.
func Dial(ctx context.Context, addr string) (*Session, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}

	conn, err := a.Connect(ctx)
	if err != nil {
		return nil, err
	}

	return NewSession(conn), nil
}
