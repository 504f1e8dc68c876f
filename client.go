// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package varlink

import (
	"context"
	"fmt"

	"waxwing.dev/go-varlink/internal/service"
)

var DefaultClient = &Client{}

type Client struct {
	// The RoundTripper to make calls with. If nil, DefaultTransport is used.
	Transport RoundTripper
}

// Call performs a method call with the specified parameters and options using
// the underlying Transport.
func (client *Client) Call(ctx context.Context, method string, params any, opts ...CallOption) (*ReplyStream, error) {
	call, err := MakeCall(method, params, opts...)
	if err != nil {
		return nil, err
	}

	transport := client.Transport
	if transport == nil {
		transport = DefaultTransport
	}

	return transport.RoundTrip(ctx, nil, &call)
}

// DoCall performs a method call with the default client and context.Background().
func DoCall(method string, params any, opts ...CallOption) (*ReplyStream, error) {
	return DoCallContext(context.Background(), method, params, opts...)
}

// DoCallContext performs a method call with the default client.
func DoCallContext(ctx context.Context, method string, params any, opts ...CallOption) (*ReplyStream, error) {
	return DefaultClient.Call(ctx, method, params, opts...)
}

// Bootstrap dials addr, calls org.varlink.service.GetInfo to discover the
// peer's advertised interfaces, then fetches and parses each interface's
// description into a Registry. It is the client-side counterpart of
// NewDispatcher: rather than compiling a schema in ahead of time, it learns
// one from whatever the service on the other end of addr introspects as.
func Bootstrap(ctx context.Context, addr string) (info service.GetInfoOutput, registry *Registry, err error) {
	client := &Client{Transport: &Transport{}}

	stream, err := client.Call(ctx, service.InterfaceName+".GetInfo", nil, CallAddress(addr))
	if err != nil {
		return service.GetInfoOutput{}, nil, err
	}
	if !stream.Next() {
		if err := stream.Error(); err != nil {
			return service.GetInfoOutput{}, nil, err
		}
		return service.GetInfoOutput{}, nil, fmt.Errorf("varlink: bootstrap: %s: no reply", addr)
	}
	if verr := stream.Unmarshal(&info); verr != nil {
		return service.GetInfoOutput{}, nil, verr
	}

	registry = NewRegistry()
	for _, name := range info.Interfaces {
		if name == service.InterfaceName {
			continue
		}

		descStream, err := client.Call(ctx, service.InterfaceName+".GetInterfaceDescription",
			service.GetInterfaceDescriptionInput{Interface: name}, CallAddress(addr))
		if err != nil {
			return service.GetInfoOutput{}, nil, err
		}
		if !descStream.Next() {
			if err := descStream.Error(); err != nil {
				return service.GetInfoOutput{}, nil, err
			}
			continue
		}

		var out service.GetInterfaceDescriptionOutput
		if verr := descStream.Unmarshal(&out); verr != nil {
			return service.GetInfoOutput{}, nil, verr
		}
		if _, err := registry.Register(out.Description); err != nil {
			return service.GetInfoOutput{}, nil, fmt.Errorf("varlink: bootstrap: %s: parsing %s: %w", addr, name, err)
		}
	}

	return info, registry, nil
}
