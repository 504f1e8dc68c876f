// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package varlink

import (
	"context"
	"encoding/json"
	"testing"

	"waxwing.dev/go-varlink/internal/service"
)

const testPingDescription = `interface org.example.ping

method Ping(echo: string) -> (echo: string)
`

func newTestReplyWriter(method string, params any) (*replyWriter, *Call) {
	var raw json.RawMessage
	if params != nil {
		raw, _ = json.Marshal(params)
	}
	call := &Call{Method: method, Parameters: raw}
	w := &replyWriter{conn: NewConnection(-1), ctx: context.Background(), call: call}
	return w, call
}

func lastReply(t *testing.T, w *replyWriter) Reply {
	t.Helper()
	if len(w.conn.out) == 0 {
		t.Fatal("handler never wrote a reply")
	}
	// out holds one or more NUL-terminated frames; the dispatch tests in this
	// file only ever produce exactly one, so split on the trailing NUL.
	payload := w.conn.out[:len(w.conn.out)-1]
	var reply Reply
	if err := json.Unmarshal(payload, &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	return reply
}

func newPingDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := NewDispatcher()
	if _, err := d.Registry.Register(testPingDescription); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return d
}

func TestDispatcherGetInfo(t *testing.T) {
	d := newPingDispatcher(t)
	d.Info.Vendor = "Example Corp"

	w, call := newTestReplyWriter(service.InterfaceName+".GetInfo", nil)
	d.ServeMethod(w, call)

	reply := lastReply(t, w)
	if reply.Error != "" {
		t.Fatalf("unexpected error reply: %s", reply.Error)
	}

	var info service.GetInfoOutput
	if err := json.Unmarshal(reply.Parameters, &info); err != nil {
		t.Fatalf("unmarshal info: %v", err)
	}
	if info.Vendor != "Example Corp" {
		t.Fatalf("Vendor = %q", info.Vendor)
	}

	found := false
	for _, name := range info.Interfaces {
		if name == "org.example.ping" {
			found = true
		}
	}
	if !found {
		t.Fatalf("org.example.ping missing from interfaces: %v", info.Interfaces)
	}
}

func TestDispatcherGetInterfaceDescription(t *testing.T) {
	d := newPingDispatcher(t)

	w, call := newTestReplyWriter(service.InterfaceName+".GetInterfaceDescription",
		service.GetInterfaceDescriptionInput{Interface: "org.example.ping"})
	d.ServeMethod(w, call)

	reply := lastReply(t, w)
	var out service.GetInterfaceDescriptionOutput
	if err := json.Unmarshal(reply.Parameters, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Description != testPingDescription {
		t.Fatalf("Description = %q, want %q", out.Description, testPingDescription)
	}
}

func TestDispatcherUnknownInterface(t *testing.T) {
	d := newPingDispatcher(t)

	w, call := newTestReplyWriter("org.example.bogus.Noop", nil)
	d.ServeMethod(w, call)

	reply := lastReply(t, w)
	if reply.Error != "org.varlink.service.InterfaceNotFound" {
		t.Fatalf("Error = %q", reply.Error)
	}
}

func TestDispatcherUnknownMethod(t *testing.T) {
	d := newPingDispatcher(t)

	w, call := newTestReplyWriter("org.example.ping.Pong", nil)
	d.ServeMethod(w, call)

	reply := lastReply(t, w)
	if reply.Error != "org.varlink.service.MethodNotFound" {
		t.Fatalf("Error = %q", reply.Error)
	}
}

func TestDispatcherInvalidParameter(t *testing.T) {
	d := newPingDispatcher(t)
	d.HandleFunc("org.example.ping.Ping", func(w ReplyWriter, call *Call) {
		w.WriteReply(struct{}{})
	})

	w, call := newTestReplyWriter("org.example.ping.Ping", map[string]any{"bogus": 1})
	d.ServeMethod(w, call)

	reply := lastReply(t, w)
	if reply.Error != "org.varlink.service.InvalidParameter" {
		t.Fatalf("Error = %q", reply.Error)
	}
}

func TestDispatcherMethodNotImplemented(t *testing.T) {
	d := newPingDispatcher(t)

	w, call := newTestReplyWriter("org.example.ping.Ping", map[string]any{"echo": "hi"})
	d.ServeMethod(w, call)

	reply := lastReply(t, w)
	if reply.Error != "org.varlink.service.MethodNotImplemented" {
		t.Fatalf("Error = %q", reply.Error)
	}
}

func TestDispatcherInvokesHandler(t *testing.T) {
	d := newPingDispatcher(t)
	d.HandleFunc("org.example.ping.Ping", func(w ReplyWriter, call *Call) {
		var params struct {
			Echo string `json:"echo"`
		}
		call.Unmarshal(&params)
		w.WriteReply(params)
	})

	w, call := newTestReplyWriter("org.example.ping.Ping", map[string]any{"echo": "hi"})
	d.ServeMethod(w, call)

	reply := lastReply(t, w)
	if reply.Error != "" {
		t.Fatalf("unexpected error: %s", reply.Error)
	}

	var out struct {
		Echo string `json:"echo"`
	}
	if err := json.Unmarshal(reply.Parameters, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Echo != "hi" {
		t.Fatalf("Echo = %q", out.Echo)
	}
}

func TestDispatcherGetInfoRejectsUnknownParameter(t *testing.T) {
	d := newPingDispatcher(t)

	w, call := newTestReplyWriter(service.InterfaceName+".GetInfo", map[string]any{"bogus": 1})
	d.ServeMethod(w, call)

	reply := lastReply(t, w)
	if reply.Error != "org.varlink.service.InvalidParameter" {
		t.Fatalf("Error = %q, want InvalidParameter", reply.Error)
	}
}

func TestDispatcherGetInterfaceDescriptionRejectsUnknownParameter(t *testing.T) {
	d := newPingDispatcher(t)

	w, call := newTestReplyWriter(service.InterfaceName+".GetInterfaceDescription",
		map[string]any{"interface": "org.example.ping", "bogus": 1})
	d.ServeMethod(w, call)

	reply := lastReply(t, w)
	if reply.Error != "org.varlink.service.InvalidParameter" {
		t.Fatalf("Error = %q, want InvalidParameter", reply.Error)
	}
}

const testNestedDescription = `interface org.example.nested

type Inner (known: string)

method Echo(outer: Inner) -> (outer: Inner)
`

func TestDispatcherFiltersUndeclaredNestedFields(t *testing.T) {
	d := NewDispatcher()
	if _, err := d.Registry.Register(testNestedDescription); err != nil {
		t.Fatalf("Register: %v", err)
	}

	var gotParams map[string]any
	d.HandleFunc("org.example.nested.Echo", func(w ReplyWriter, call *Call) {
		json.Unmarshal(call.Parameters, &gotParams)
		w.WriteReply(struct{}{})
	})

	w, call := newTestReplyWriter("org.example.nested.Echo", map[string]any{
		"outer": map[string]any{"known": "hi", "bogus": 1},
	})
	d.ServeMethod(w, call)

	reply := lastReply(t, w)
	if reply.Error != "" {
		t.Fatalf("unexpected error: %s", reply.Error)
	}

	outer, ok := gotParams["outer"].(map[string]any)
	if !ok {
		t.Fatalf("outer missing or wrong type: %#v", gotParams["outer"])
	}
	if _, present := outer["bogus"]; present {
		t.Fatal("the dispatcher should have dropped the undeclared nested field \"bogus\" before the handler saw it")
	}
	if outer["known"] != "hi" {
		t.Fatalf("known = %v, want hi", outer["known"])
	}
}

func TestSplitMethod(t *testing.T) {
	cases := []struct {
		method    string
		wantIface string
		wantName  string
		wantOK    bool
	}{
		{"org.example.ping.Ping", "org.example.ping", "Ping", true},
		{"Ping", "", "", false},
		{"org.example.ping.", "", "", false},
	}
	for _, tc := range cases {
		iface, name, ok := splitMethod(tc.method)
		if ok != tc.wantOK || (ok && (iface != tc.wantIface || name != tc.wantName)) {
			t.Errorf("splitMethod(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.method, iface, name, ok, tc.wantIface, tc.wantName, tc.wantOK)
		}
	}
}
