// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package varlink

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestParseAddressUnix(t *testing.T) {
	a, err := ParseAddress("unix:/run/example.sock")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if a.Scheme != "unix" || a.Path != "/run/example.sock" || a.Abstract {
		t.Fatalf("got %+v", a)
	}
	if got := a.String(); got != "unix:/run/example.sock" {
		t.Fatalf("String() = %q", got)
	}
}

func TestParseAddressUnixAbstract(t *testing.T) {
	a, err := ParseAddress("unix:@org.example.ping")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if !a.Abstract || a.Path != "org.example.ping" {
		t.Fatalf("got %+v", a)
	}
	if got := a.String(); got != "unix:@org.example.ping" {
		t.Fatalf("String() = %q", got)
	}
	if got := a.unixNetAddr(); got != "\x00org.example.ping" {
		t.Fatalf("unixNetAddr() = %q", got)
	}
}

func TestParseAddressUnixMode(t *testing.T) {
	a, err := ParseAddress("unix:/run/example.sock;mode=0600")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if a.Mode != "0600" || a.Path != "/run/example.sock" {
		t.Fatalf("got %+v", a)
	}
	if got := a.String(); got != "unix:/run/example.sock;mode=0600" {
		t.Fatalf("String() = %q", got)
	}
}

func TestParseAddressExec(t *testing.T) {
	a, err := ParseAddress("exec:/usr/bin/example-service")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if a.Scheme != "exec" || a.Program != "/usr/bin/example-service" {
		t.Fatalf("got %+v", a)
	}
}

func TestParseAddressTCP(t *testing.T) {
	a, err := ParseAddress("tcp:127.0.0.1:9999")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if a.Scheme != "tcp" || a.Path != "127.0.0.1:9999" {
		t.Fatalf("got %+v", a)
	}
}

func TestParseAddressUnsupportedScheme(t *testing.T) {
	_, err := ParseAddress("ftp:example.com")
	if err == nil {
		t.Fatal("expected an error for an unsupported scheme")
	}
}

func TestParseAddressMalformed(t *testing.T) {
	_, err := ParseAddress("not-an-address")
	if err == nil {
		t.Fatal("expected an error for an address without a scheme separator")
	}
}

// bindAutobindUnix binds an autobind abstract unix socket and returns its
// listening fd and assigned name (without the leading NUL).
func bindAutobindUnix(t *testing.T) (fd int, name string) {
	t.Helper()
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	t.Cleanup(func() { unix.Close(fd) })

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: ""}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		t.Fatalf("listen: %v", err)
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		t.Fatalf("getsockname: %v", err)
	}
	sun, ok := sa.(*unix.SockaddrUnix)
	if !ok {
		t.Fatalf("getsockname returned %T", sa)
	}
	// Getsockname shows the abstract name's leading NUL as '@'.
	return fd, strings.TrimPrefix(sun.Name, "@")
}

func TestListenFDAdoptsBoundSocket(t *testing.T) {
	fd, name := bindAutobindUnix(t)

	ln, err := ListenFD(fd)
	if err != nil {
		t.Fatalf("ListenFD: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := net.Dial("unix", "\x00"+name)
		if err == nil {
			conn.Close()
		}
	}()

	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	conn.Close()
}

func TestInheritedListenerAbsent(t *testing.T) {
	os.Unsetenv(listenFDEnv)

	_, ok, err := InheritedListener()
	if err != nil {
		t.Fatalf("InheritedListener: %v", err)
	}
	if ok {
		t.Fatal("ok should be false when listenFDEnv isn't set")
	}
}

func TestInheritedListenerAdoptsFD(t *testing.T) {
	fd, name := bindAutobindUnix(t)
	t.Setenv(listenFDEnv, strconv.Itoa(fd))

	ln, ok, err := InheritedListener()
	if err != nil {
		t.Fatalf("InheritedListener: %v", err)
	}
	if !ok {
		t.Fatal("ok should be true when listenFDEnv is set")
	}
	defer ln.Close()

	if _, present := os.LookupEnv(listenFDEnv); present {
		t.Fatal("InheritedListener should unset listenFDEnv once consumed")
	}

	go func() {
		conn, err := net.Dial("unix", "\x00"+name)
		if err == nil {
			conn.Close()
		}
	}()

	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	conn.Close()
}

func TestConnectExecDialsRatherThanAccepts(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "child.sh")
	// The spawned program ignores its address argument and just stays
	// alive; all that matters here is that it holds the inherited listening
	// socket open long enough for connectExec's dial to land.
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 2\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := connectExec(ctx, script)
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("connectExec: %v", r.err)
		}
		r.conn.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("connectExec did not return promptly; it is likely still calling Accept on the " +
			"socket it handed to the child instead of dialing it as a client")
	}
}
