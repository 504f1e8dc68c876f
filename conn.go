// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package varlink

import (
	"bytes"

	"golang.org/x/sys/unix"
)

// maxInputBuffer caps how much unconsumed input a Connection will hold
// before it stops asking to be woken up for readability. A client that
// never completes a frame within this budget is throttled, not dropped.
const maxInputBuffer = 8 * 1024 * 1024

// ioChunkSize is how much a Connection reads or writes in one dispatch
// step, so that one ready connection can't starve the others registered
// on the same EventLoop.
const ioChunkSize = 8192

// Connection wraps one accepted socket with the input/output byte buffers
// the EventLoop drives. Unlike Session, a Connection never performs a
// blocking read or write: every byte transferred happens inside dispatch,
// driven by epoll readiness.
type Connection struct {
	fd  int
	in  []byte
	out []byte
}

// NewConnection wraps an already-accepted, non-blocking socket fd.
func NewConnection(fd int) *Connection {
	return &Connection{fd: fd}
}

// desiredEvents reports the epoll readiness this connection should be
// registered for: readable iff there's room left in the input buffer,
// writable iff there's queued output.
func (c *Connection) desiredEvents() uint32 {
	var events uint32
	if len(c.in) < maxInputBuffer {
		events |= unix.EPOLLIN
	}
	if len(c.out) > 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

// dispatch drains one chunk of pending output (if writable) and appends one
// chunk of input (if readable). It returns a non-nil error — always
// ErrPeerDisconnected or the unwrapped syscall error — when the connection
// can no longer be used.
func (c *Connection) dispatch(events uint32) error {
	if events&unix.EPOLLOUT != 0 && len(c.out) > 0 {
		n := len(c.out)
		if n > ioChunkSize {
			n = ioChunkSize
		}
		written, err := unix.Write(c.fd, c.out[:n])
		if err != nil {
			switch {
			case err == unix.EAGAIN:
				// spurious wakeup
			case isPeerGone(err):
				return ErrPeerDisconnected
			default:
				return err
			}
		} else {
			c.out = c.out[written:]
		}
	}

	if events&unix.EPOLLIN != 0 {
		buf := make([]byte, ioChunkSize)
		n, err := unix.Read(c.fd, buf)
		switch {
		case err != nil && isPeerGone(err):
			return ErrPeerDisconnected
		case err != nil && err != unix.EAGAIN:
			return err
		case err == nil && n == 0:
			return ErrPeerDisconnected
		case n > 0:
			c.in = append(c.in, buf[:n]...)
		}
	}

	return nil
}

// nextFrame pops one complete (NUL-terminated) frame off the front of the
// input buffer, if one is available. Frames are consumed one at a time,
// never all at once, so that a frame that arrives while a reply iterator is
// still active is left untouched in the buffer rather than read ahead.
func (c *Connection) nextFrame() (frame []byte, ok bool) {
	i := bytes.IndexByte(c.in, 0)
	if i < 0 {
		return nil, false
	}
	frame, c.in = c.in[:i], c.in[i+1:]
	return frame, true
}

// write appends msg plus its NUL terminator to the output buffer.
func (c *Connection) write(msg []byte) {
	c.out = append(c.out, msg...)
	c.out = append(c.out, 0)
}

// Close releases the connection's file descriptor.
func (c *Connection) Close() error {
	return unix.Close(c.fd)
}
