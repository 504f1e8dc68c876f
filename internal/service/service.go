// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

// Package service holds the well-known org.varlink.service interface: its
// IDL description, request/reply types, and standard errors. Every varlink
// service implements this interface, so it is wired in directly rather than
// generated from a .varlink file at build time.
package service

import "encoding/json"

// InterfaceName is the dotted name of the well-known interface.
const InterfaceName = "org.varlink.service"

// Description is the canonical IDL text for org.varlink.service, returned
// verbatim by GetInterfaceDescription when asked about itself.
const Description = `interface org.varlink.service

method GetInfo() -> (vendor: string, product: string, version: string, url: string, interfaces: string[])

method GetInterfaceDescription(interface: string) -> (description: string)

error InterfaceNotFound (interface: string)

error MethodNotFound (method: string)

error MethodNotImplemented (method: string)

error InvalidParameter (parameter: string)
`

type GetInfoInput struct{}

type GetInfoOutput struct {
	Vendor     string   `json:"vendor"`
	Product    string   `json:"product"`
	Version    string   `json:"version"`
	Url        string   `json:"url"`
	Interfaces []string `json:"interfaces"`
}

type GetInterfaceDescriptionInput struct {
	Interface string `json:"interface"`
}

type GetInterfaceDescriptionOutput struct {
	Description string `json:"description"`
}

type errorValue struct {
	code   string
	params any
}

func (e *errorValue) Error() string     { return e.code }
func (e *errorValue) ErrorCode() string { return e.code }

func (e *errorValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.params)
}

// Error is satisfied by *errorValue; it mirrors varlink.Error without
// importing the parent package, which would create an import cycle.
type Error interface {
	error
	ErrorCode() string
}

func InterfaceNotFound(iface string) Error {
	return &errorValue{
		code:   InterfaceName + ".InterfaceNotFound",
		params: struct {
			Interface string `json:"interface"`
		}{iface},
	}
}

func MethodNotFound(method string) Error {
	return &errorValue{
		code:   InterfaceName + ".MethodNotFound",
		params: struct {
			Method string `json:"method"`
		}{method},
	}
}

func MethodNotImplemented(method string) Error {
	return &errorValue{
		code:   InterfaceName + ".MethodNotImplemented",
		params: struct {
			Method string `json:"method"`
		}{method},
	}
}

func InvalidParameter(parameter string) Error {
	return &errorValue{
		code:   InterfaceName + ".InvalidParameter",
		params: struct {
			Parameter string `json:"parameter"`
		}{parameter},
	}
}
