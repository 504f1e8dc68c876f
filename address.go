// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package varlink

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Address is a parsed varlink address: a transport scheme plus whatever
// parameters that scheme needs to either dial or listen.
//
// Three schemes are recognized: "unix" (optionally an abstract socket, and
// optionally carrying a creation mode), "tcp", and "exec" (spawn a child
// process that inherits a bound listening socket on fd 3).
type Address struct {
	Scheme string

	// Path is the filesystem or abstract socket path for the "unix" scheme,
	// or the host:port for "tcp".
	Path string

	// Abstract is true if Path names an abstract socket (the wire address
	// began with "unix:@").
	Abstract bool

	// Mode, if non-empty, is the octal file mode a server applies to a
	// freshly bound unix socket. Clients strip it on parse; it has no effect
	// on Dial.
	Mode string

	// Program is the executable to spawn for the "exec" scheme.
	Program string
}

// ParseAddress parses a varlink address in one of the following forms:
//
//	unix:<path>
//	unix:<path>;mode=<octal>
//	unix:@<name>
//	exec:<program>
func ParseAddress(s string) (Address, error) {
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Address{}, fmt.Errorf("parsing address %q: not in the form <scheme>:<value>", s)
	}

	switch scheme {
	case "unix":
		path := rest
		if i := strings.LastIndex(path, ";mode="); i != -1 {
			mode := path[i+len(";mode="):]
			path = path[:i]
			return Address{Scheme: "unix", Path: strings.TrimPrefix(path, "@"), Abstract: strings.HasPrefix(path, "@"), Mode: mode}, nil
		}
		return Address{Scheme: "unix", Path: strings.TrimPrefix(path, "@"), Abstract: strings.HasPrefix(path, "@")}, nil
	case "tcp":
		return Address{Scheme: "tcp", Path: rest}, nil
	case "exec":
		return Address{Scheme: "exec", Program: rest}, nil
	default:
		return Address{}, fmt.Errorf("parsing address %q: %w: %q", s, ErrUnsupportedScheme, scheme)
	}
}

func (a Address) String() string {
	switch a.Scheme {
	case "unix":
		path := a.Path
		if a.Abstract {
			path = "@" + path
		}
		if a.Mode != "" {
			return fmt.Sprintf("unix:%s;mode=%s", path, a.Mode)
		}
		return "unix:" + path
	case "exec":
		return "exec:" + a.Program
	default:
		return fmt.Sprintf("%s:%s", a.Scheme, a.Path)
	}
}

// unixNetAddr returns the socket path, with an abstract-socket address
// encoded with its conventional leading NUL byte.
func (a Address) unixNetAddr() string {
	if a.Abstract {
		return "\x00" + a.Path
	}
	return a.Path
}

// Connect dials the address, returning a ready-to-use connection. For the
// "exec" scheme, Connect spawns the child process, handing it a listening
// socket on fd 3, and dials that same socket as a client once the child is
// running.
func (a Address) Connect(ctx context.Context) (net.Conn, error) {
	switch a.Scheme {
	case "unix", "tcp":
		var d net.Dialer
		network := a.Scheme
		addr := a.Path
		if a.Scheme == "unix" {
			addr = a.unixNetAddr()
		}
		return d.DialContext(ctx, network, addr)
	case "exec":
		return connectExec(ctx, a.Program)
	default:
		return nil, fmt.Errorf("dial %v: %w", a, ErrUnsupportedScheme)
	}
}

// connectExec binds an autobind abstract unix socket, spawns Program with
// that socket inherited on fd 3, and dials a connection to it as a normal
// client.
//
// This mirrors the fork/dup2(…, 3)/execlp dance the reference client
// performs, using os/exec's ExtraFiles (which places the given file at fd 3
// in the child) instead of a raw fork. The spawned program is the varlink
// *service*: it is the one that accepts on the inherited socket (by calling
// InheritedListener instead of binding addr itself), while this process, the
// caller of Connect, goes on to dial it exactly like any other client would.
func connectExec(ctx context.Context, program string) (net.Conn, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("exec %s: socket: %w", program, err)
	}

	// An empty sun_path requests an autobind abstract address from the
	// kernel.
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: ""}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("exec %s: bind: %w", program, err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("exec %s: listen: %w", program, err)
	}

	sa, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("exec %s: getsockname: %w", program, err)
	}
	sun, ok := sa.(*unix.SockaddrUnix)
	if !ok {
		unix.Close(fd)
		return nil, fmt.Errorf("exec %s: unexpected socket address type %T", program, sa)
	}

	listenFile := os.NewFile(uintptr(fd), "varlink-exec-listener")
	defer listenFile.Close()

	// Getsockname reports an abstract name with its leading NUL shown as '@';
	// Path holds the bare name.
	childAddr := Address{Scheme: "unix", Path: strings.TrimPrefix(sun.Name, "@"), Abstract: true, Mode: "0600"}

	cmd := exec.CommandContext(ctx, program, childAddr.String())
	cmd.ExtraFiles = []*os.File{listenFile}
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=3", listenFDEnv))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec %s: %w", program, err)
	}

	return childAddr.Connect(ctx)
}

// listenFDEnv is the environment variable connectExec sets on a spawned
// child to tell it which inherited descriptor is already a bound, listening
// socket, so it can adopt it with ListenFD instead of binding addr itself
// and colliding with the socket its parent is still holding open.
//
// This plays the same role as the LISTEN_PID/LISTEN_FDS pair systemd socket
// activation uses, simplified to a single var: connectExec only ever hands
// a child one descriptor for one invocation, so there is no sibling-process
// ambiguity for a PID check to rule out.
const listenFDEnv = "VARLINK_LISTEN_FD"

// ListenFD wraps an already-bound, listening socket inherited on fd into a
// net.Listener, without binding a new socket for it.
func ListenFD(fd int) (net.Listener, error) {
	f := os.NewFile(uintptr(fd), "varlink-inherited-listener")
	ln, err := net.FileListener(f)
	// net.FileListener dups fd internally; close our copy explicitly rather
	// than leaving it for f's finalizer, which would leak it until the next
	// GC cycle.
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("listen fd %d: %w", fd, err)
	}
	return ln, nil
}

// InheritedListener adopts the listening socket connectExec passes down via
// listenFDEnv, if the current process was launched that way. ok is false
// when it wasn't, in which case the caller should bind addr itself.
func InheritedListener() (ln net.Listener, ok bool, err error) {
	v, present := os.LookupEnv(listenFDEnv)
	if !present {
		return nil, false, nil
	}
	defer os.Unsetenv(listenFDEnv)

	fd, err := strconv.Atoi(v)
	if err != nil {
		return nil, false, fmt.Errorf("parsing %s=%q: %w", listenFDEnv, v, err)
	}
	ln, err = ListenFD(fd)
	if err != nil {
		return nil, false, err
	}
	return ln, true, nil
}

// Listen binds a listener for the address. For "unix" addresses with a
// Mode set, the socket's file mode is changed to match after creation.
func Listen(addr string) (net.Listener, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	return a.Listen()
}

func (a Address) Listen() (net.Listener, error) {
	switch a.Scheme {
	case "unix":
		ln, err := net.Listen("unix", a.unixNetAddr())
		if err != nil {
			return nil, err
		}
		if a.Mode != "" && !a.Abstract {
			mode, err := strconv.ParseUint(a.Mode, 8, 32)
			if err == nil {
				os.Chmod(a.Path, os.FileMode(mode))
			}
		}
		return ln, nil
	case "tcp":
		return net.Listen("tcp", a.Path)
	default:
		return nil, fmt.Errorf("listen %v: %w", a, ErrUnsupportedScheme)
	}
}
