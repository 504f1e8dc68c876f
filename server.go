// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package varlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/op/go-logging"
	"github.com/satori/go.uuid"
	"golang.org/x/sys/unix"
)

var log = logging.MustGetLogger("varlink")

// EventLoop is a single-threaded, cooperative, readiness-driven server: the
// architecture the Connection I/O & Event Loop design mandates in place of
// a goroutine per connection. There are no worker threads here; Serve must
// be called from the goroutine that should run the loop, and it does not
// return until ctx is canceled or epoll_wait fails. Closing the listener
// does not stop it: the loop polls its own duplicate of the listener's
// descriptor.
type EventLoop struct {
	// Handler serves dispatched method calls. Typically a *Dispatcher.
	Handler MethodHandler

	// MaxConnections caps how many sockets the loop will keep registered at
	// once; Accept stops being polled once the cap is reached. Zero means
	// no cap.
	MaxConnections int

	epfd     int
	listenFd int
	conns    map[int]*loopConn
}

// loopConn pairs a Connection with whatever reply iterator is presently
// driving its in-flight call, and the connection's correlation id for log
// lines.
type loopConn struct {
	id     uuid.UUID
	conn   *Connection
	w      *replyWriter
	ctx    context.Context
	cancel context.CancelFunc
}

// Serve runs the event loop over an already-bound, non-blocking listener.
// ln must be a *net.TCPListener or *net.UnixListener; Serve extracts its
// raw file descriptor and drives epoll directly rather than going through
// net.Listener.Accept, since Accept blocks and this loop never may.
func (lp *EventLoop) Serve(ctx context.Context, ln net.Listener) error {
	f, err := listenerFile(ln)
	if err != nil {
		return fmt.Errorf("event loop: %w", err)
	}
	defer f.Close()

	if err := unix.SetNonblock(int(f.Fd()), true); err != nil {
		return fmt.Errorf("event loop: %w", err)
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return fmt.Errorf("event loop: epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	lp.epfd = epfd
	lp.listenFd = int(f.Fd())
	lp.conns = make(map[int]*loopConn)

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, lp.listenFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(lp.listenFd),
	}); err != nil {
		return fmt.Errorf("event loop: epoll_ctl: %w", err)
	}

	events := make([]unix.EpollEvent, 64)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := unix.EpollWait(epfd, events, 250)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("event loop: epoll_wait: %w", err)
		}

		for _, ev := range events[:n] {
			fd := int(ev.Fd)
			if fd == lp.listenFd {
				lp.accept()
				continue
			}
			lp.handleReady(fd, ev.Events)
		}
	}
}

func (lp *EventLoop) accept() {
	if lp.MaxConnections > 0 && len(lp.conns) >= lp.MaxConnections {
		return
	}

	for {
		nfd, _, err := unix.Accept4(lp.listenFd, unix.SOCK_NONBLOCK)
		if err != nil {
			return
		}

		id := uuid.NewV4()
		log.Debugf("connection %s accepted (fd %d)", id, nfd)

		ctx, cancel := context.WithCancel(context.Background())
		lc := &loopConn{id: id, conn: NewConnection(nfd), ctx: ctx, cancel: cancel}
		lp.conns[nfd] = lc

		if err := unix.EpollCtl(lp.epfd, unix.EPOLL_CTL_ADD, nfd, &unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(nfd),
		}); err != nil {
			log.Errorf("connection %s: epoll_ctl add: %v", id, err)
			lc.conn.Close()
			delete(lp.conns, nfd)
		}

		if lp.MaxConnections > 0 && len(lp.conns) >= lp.MaxConnections {
			return
		}
	}
}

func (lp *EventLoop) handleReady(fd int, events uint32) {
	lc, ok := lp.conns[fd]
	if !ok {
		return
	}

	if err := lc.conn.dispatch(events); err != nil {
		lp.drop(fd, lc, err)
		return
	}

	// Frames that arrive while a reply iterator is active stay buffered;
	// only start a new call once the previous one has finished.
	for lc.w == nil {
		frame, ok := lc.conn.nextFrame()
		if !ok {
			break
		}
		lp.dispatchFrame(lc, frame)
	}

	if lc.w != nil {
		lp.advance(lc)
	}

	if err := unix.EpollCtl(lp.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: lc.conn.desiredEvents(),
		Fd:     int32(fd),
	}); err != nil {
		lp.drop(fd, lc, err)
	}
}

func streamDone(w *replyWriter) bool {
	return w.streaming() == nil
}

func (lp *EventLoop) dispatchFrame(lc *loopConn, frame []byte) {
	var call Call
	if err := unmarshalCall(frame, &call); err != nil {
		log.Warningf("connection %s: malformed frame: %v", lc.id, err)
		return
	}

	w := &replyWriter{conn: lc.conn, ctx: lc.ctx, call: &call}

	if lp.Handler == nil {
		w.WriteError(errServiceUnavailable(call.Method))
	} else {
		lp.Handler.ServeMethod(w, &call)
	}

	if !w.hasReplied() && w.streaming() == nil {
		log.Warningf("connection %s: handler for %q neither replied nor streamed", lc.id, call.Method)
	}

	if iter := w.streaming(); iter != nil {
		if call.OneWay {
			// Nothing is ever written back for a oneway call, so there is no
			// writable tick for advance to be driven by; drain the sequence
			// to completion right here instead of registering it and
			// stalling until the peer disconnects.
			drainOneWay(iter)
		} else {
			lc.w = w
		}
	}
}

func drainOneWay(iter ReplyIter) {
	for {
		if _, ok := iter.Next(); !ok {
			return
		}
	}
}

// advance drives the active reply iterator exactly one step, per the
// invariant that at most one reply iterator per connection is active, and
// that the event loop never blocks a streaming handler.
func (lp *EventLoop) advance(lc *loopConn) {
	iter := lc.w.streaming()
	if iter == nil {
		return
	}

	reply, ok := iter.Next()
	if !ok {
		lc.w = nil
		return
	}

	if !lc.w.call.OneWay {
		payload, err := marshalReply(&reply)
		if err == nil {
			lc.conn.write(payload)
		}
	}

	if !reply.Continues {
		lc.w = nil
	}
}

func (lp *EventLoop) drop(fd int, lc *loopConn, cause error) {
	log.Debugf("connection %s dropped: %v", lc.id, cause)

	if lc.w != nil {
		if iter := lc.w.streaming(); iter != nil {
			iter.Cancel()
		}
	}
	lc.cancel()

	unix.EpollCtl(lp.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	lc.conn.Close()
	delete(lp.conns, fd)
}

func errServiceUnavailable(method string) Error {
	return NewError("waxwing.dev.varlink.ServiceUnavailable", "method", method)
}

// ListenAndServe binds addr and runs an EventLoop over it until ctx is
// canceled. If the process was launched by connectExec's "exec" transport,
// the listening socket it was handed is adopted via InheritedListener
// instead, rather than binding addr a second time.
func ListenAndServe(ctx context.Context, addr string, handler MethodHandler) error {
	ln, ok, err := InheritedListener()
	if err != nil {
		return err
	}
	if !ok {
		ln, err = Listen(addr)
		if err != nil {
			return err
		}
	}
	defer ln.Close()

	loop := &EventLoop{Handler: handler}
	return loop.Serve(ctx, ln)
}

// listenerFile extracts the raw, dup'd file descriptor backing a listener
// created by Listen. Only unix and tcp listeners are supported, matching
// the schemes Address.Listen binds.
func listenerFile(ln net.Listener) (*os.File, error) {
	switch l := ln.(type) {
	case *net.UnixListener:
		return l.File()
	case *net.TCPListener:
		return l.File()
	default:
		return nil, fmt.Errorf("event loop: unsupported listener type %T", ln)
	}
}

func unmarshalCall(frame []byte, call *Call) error {
	return json.Unmarshal(frame, call)
}

func marshalReply(reply *Reply) ([]byte, error) {
	return json.Marshal(reply)
}
