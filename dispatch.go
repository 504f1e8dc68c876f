// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package varlink

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"waxwing.dev/go-varlink/internal/service"
)

// MethodHandler serves one varlink method call.
type MethodHandler interface {
	ServeMethod(w ReplyWriter, call *Call)
}

// HandlerFunc adapts a plain function to a MethodHandler.
type HandlerFunc func(w ReplyWriter, call *Call)

func (fn HandlerFunc) ServeMethod(w ReplyWriter, call *Call) {
	fn(w, call)
}

// ReplyWriter is how a handler produces a call's reply (or replies).
//
// A handler either calls WriteReply or WriteError exactly once for a simple
// call, or calls Stream with a ReplyIter for a call that produces a
// sequence of replies. The event loop drives a streamed iterator one step
// per writable tick; a handler must never block waiting on it.
type ReplyWriter interface {
	Context() context.Context

	WriteError(err Error) error

	WriteReply(parameters any, opts ...ReplyOption) error

	// Stream registers iter as this call's reply sequence instead of a
	// single WriteReply/WriteError call. Only meaningful when the call
	// requested More; the dispatcher does not enforce that, since a handler
	// may reasonably decide to stream zero or one values too.
	Stream(iter ReplyIter)
}

// ReplyIter is the explicit, pull-based reply sequence a streaming handler
// returns to the event loop, replacing a language-level generator.
type ReplyIter interface {
	// Next produces the next reply. ok is false once the sequence is
	// exhausted, at which point the returned Reply is ignored and the
	// iterator is discarded.
	Next() (reply Reply, ok bool)

	// Cancel is called at most once, when the peer disconnects or the call
	// is otherwise abandoned before the sequence completed on its own. Next
	// is never called again afterwards.
	Cancel()
}

// FuncReplyIter adapts a plain function into a ReplyIter with a no-op
// Cancel, for handlers whose state is fully captured by a closure and don't
// hold anything worth releasing early.
type FuncReplyIter func() (Reply, bool)

func (f FuncReplyIter) Next() (Reply, bool) { return f() }
func (FuncReplyIter) Cancel()               {}

type replyWriter struct {
	conn *Connection
	ctx  context.Context
	call *Call

	mu      sync.Mutex
	replied bool
	iter    ReplyIter
}

func (w *replyWriter) Context() context.Context { return w.ctx }

func (w *replyWriter) WriteError(err Error) error {
	return w.WriteReply(err, ErrorCode(err.ErrorCode()))
}

func (w *replyWriter) WriteReply(parameters any, opts ...ReplyOption) error {
	reply, err := MakeReply(parameters, opts...)
	if err != nil {
		return err
	}
	return w.writeReply(&reply)
}

func (w *replyWriter) writeReply(reply *Reply) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.replied {
		panic("varlink: method call has already been replied to")
	}
	if !reply.Continues {
		w.replied = true
	}

	if w.call.OneWay {
		return nil
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	w.conn.write(payload)
	return nil
}

func (w *replyWriter) Stream(iter ReplyIter) {
	w.mu.Lock()
	w.iter = iter
	w.mu.Unlock()
}

func (w *replyWriter) hasReplied() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.replied
}

func (w *replyWriter) streaming() ReplyIter {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.iter
}

// Dispatcher maps incoming requests to registered handlers via a schema
// registry, serving org.varlink.service's introspection methods itself.
//
// Unlike a glob-based mux, a Dispatcher validates every call's parameters
// against the method's declared input struct before a handler ever sees it.
type Dispatcher struct {
	// Registry is the schema registry consulted for interface and method
	// lookup, and for GetInterfaceDescription. If nil, ServeMethod panics;
	// use NewDispatcher to get one pre-populated with org.varlink.service.
	Registry *Registry

	// Info overrides the vendor/product/version/url fields returned by
	// GetInfo. Fields left blank fall back to runtime/debug.ReadBuildInfo.
	Info service.GetInfoOutput

	handlers map[string]MethodHandler
}

// NewDispatcher creates a Dispatcher backed by a fresh Registry.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		Registry: NewRegistry(),
		handlers: make(map[string]MethodHandler),
	}
}

// Handle registers handler to serve the fully qualified method name (e.g.
// "org.example.ping.Ping").
func (d *Dispatcher) Handle(method string, handler MethodHandler) {
	if d.handlers == nil {
		d.handlers = make(map[string]MethodHandler)
	}
	d.handlers[method] = handler
}

// HandleFunc is Handle for a plain function.
func (d *Dispatcher) HandleFunc(method string, fn func(w ReplyWriter, call *Call)) {
	d.Handle(method, HandlerFunc(fn))
}

// splitMethod splits a fully qualified method name on its last '.', the way
// the reference dispatcher does (str.rpartition('.')).
func splitMethod(method string) (iface, name string, ok bool) {
	i := strings.LastIndexByte(method, '.')
	if i <= 0 || i == len(method)-1 {
		return method, "", false
	}
	return method[:i], method[i+1:], true
}

// ServeMethod implements the dispatch algorithm from the Service Dispatcher
// design: split the method name, resolve the interface and method against
// the registry, validate parameters, and invoke the registered handler.
func (d *Dispatcher) ServeMethod(w ReplyWriter, call *Call) {
	switch call.Method {
	case service.InterfaceName + ".GetInfo":
		if verr := d.validateServiceParams("GetInfo", call.Parameters); verr != nil {
			w.WriteError(verr)
			return
		}
		d.getInfo(w)
		return
	case service.InterfaceName + ".GetInterfaceDescription":
		if verr := d.validateServiceParams("GetInterfaceDescription", call.Parameters); verr != nil {
			w.WriteError(verr)
			return
		}
		d.getInterfaceDescription(w, call)
		return
	}

	ifaceName, methodName, ok := splitMethod(call.Method)
	if !ok {
		w.WriteError(service.InterfaceNotFound(ifaceName))
		return
	}

	intf, ok := d.Registry.Lookup(ifaceName)
	if !ok {
		w.WriteError(service.InterfaceNotFound(ifaceName))
		return
	}

	method, ok := intf.Method(methodName)
	if !ok {
		w.WriteError(service.MethodNotFound(call.Method))
		return
	}

	if verr := validateParams(call.Parameters, method.In); verr != nil {
		w.WriteError(verr)
		return
	}
	call.Parameters = filterParams(&intf, method.In, call.Parameters)

	handler := d.handlers[call.Method]
	if handler == nil {
		w.WriteError(service.MethodNotImplemented(call.Method))
		return
	}

	handler.ServeMethod(w, call)
}

// validateServiceParams runs the same declared-field check every other
// method's parameters go through against org.varlink.service's own GetInfo
// and GetInterfaceDescription, which are served directly by this type
// rather than through the handlers map.
func (d *Dispatcher) validateServiceParams(method string, raw json.RawMessage) Error {
	intf, ok := d.Registry.Lookup(service.InterfaceName)
	if !ok {
		return nil
	}
	m, ok := intf.Method(method)
	if !ok {
		return nil
	}
	return validateParams(raw, m.In)
}

func (d *Dispatcher) getInfo(w ReplyWriter) {
	info := d.Info
	info.Interfaces = d.Registry.Names()

	if binfo, ok := debug.ReadBuildInfo(); ok {
		if info.Vendor == "" {
			info.Vendor, _, _ = strings.Cut(binfo.Main.Path, "/")
		}
		if info.Product == "" {
			parts := strings.Split(binfo.Path, "/")
			info.Product = parts[len(parts)-1] + " @ " + binfo.Main.Path
		}
		if info.Version == "" {
			info.Version = fmt.Sprintf("%v (%v)", binfo.Main.Version, binfo.GoVersion)
		}
		if info.Url == "" {
			info.Url, _, _ = strings.Cut(binfo.Main.Path, "/")
			info.Url = "https://" + info.Url
		}
	}
	w.WriteReply(info)
}

func (d *Dispatcher) getInterfaceDescription(w ReplyWriter, call *Call) {
	var in service.GetInterfaceDescriptionInput
	if verr := call.Unmarshal(&in); verr != nil {
		w.WriteError(verr)
		return
	}

	intf, ok := d.Registry.Lookup(in.Interface)
	if !ok {
		w.WriteError(service.InterfaceNotFound(in.Interface))
		return
	}
	w.WriteReply(service.GetInterfaceDescriptionOutput{Description: intf.Source})
}
