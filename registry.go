// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package varlink

import (
	"sort"
	"sync"

	"waxwing.dev/go-varlink/internal/service"
	"waxwing.dev/go-varlink/syntax"
)

// Registry is a schema registry: a mapping from interface name to its parsed
// definition, read-only once a dispatch loop has started (see the
// Concurrency & Resource Model). org.varlink.service is pre-registered.
type Registry struct {
	mu         sync.RWMutex
	interfaces map[string]syntax.InterfaceDef
}

// NewRegistry creates a Registry with the well-known org.varlink.service
// interface already registered.
func NewRegistry() *Registry {
	r := &Registry{interfaces: make(map[string]syntax.InterfaceDef)}

	intf, err := syntax.Parse(service.Description)
	if err != nil {
		panic("programming error: org.varlink.service description doesn't parse: " + err.Error())
	}
	r.interfaces[intf.Name] = intf
	return r
}

// Register parses description and adds it to the registry, returning the
// parsed interface. It is safe to call from multiple goroutines, but must
// only be called before the registry is handed to a dispatcher that's
// already serving requests.
func (r *Registry) Register(description string) (syntax.InterfaceDef, error) {
	intf, err := syntax.Parse(description)
	if err != nil {
		return syntax.InterfaceDef{}, err
	}

	r.mu.Lock()
	r.interfaces[intf.Name] = intf
	r.mu.Unlock()
	return intf, nil
}

// Lookup returns the interface registered under name, if any.
func (r *Registry) Lookup(name string) (syntax.InterfaceDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	intf, ok := r.interfaces[name]
	return intf, ok
}

// Names returns the sorted list of registered interface names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.interfaces))
	for name := range r.interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
