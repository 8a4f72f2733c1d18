// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"slices"
	"sync"
)

// Registry is a table of running services keyed by name. At most one
// service per name runs through a given registry; across processes
// the kernel's name binding enforces the same rule.
//
// A process normally creates one Registry at startup and passes it to
// whatever starts services.
type Registry struct {
	mu       sync.Mutex
	services map[string]*Service
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*Service)}
}

// Start claims name and begins accepting connection requests on it.
// The listener runs on its own goroutine; Start does not block.
//
// Failures are *StartError values matching ErrAlreadyRunning,
// ErrRegistrationFailed, or ErrListenSetupFailed. A failed Start
// leaves any service already running under name untouched.
//
// The name stays claimed until Service.Close, even if the listener has
// stopped after a receive error.
func (r *Registry) Start(name string, options Options) (*Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[name]; exists {
		return nil, &StartError{Kind: ErrAlreadyRunning, Name: name}
	}

	conn, err := listenEndpoint(name)
	if err != nil {
		return nil, err
	}

	service := newService(name, r, conn, options)
	r.services[name] = service
	service.start()
	return service, nil
}

// Lookup returns the running service registered under name.
func (r *Registry) Lookup(name string) (*Service, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	service, ok := r.services[name]
	return service, ok
}

// Names returns the names of every registered service, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// release drops name if it still maps to service.
func (r *Registry) release(name string, service *Service) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.services[name] == service {
		delete(r.services, name)
	}
}
