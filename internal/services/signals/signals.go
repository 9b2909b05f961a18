// Package signals carries host runtime signals into the telemetry pipeline.
//
// A browser runtime surfaces visibility changes, unload, navigation, and
// global errors through DOM listeners; other hosts have their own sources
// (request middleware, process signals, UI frameworks). The Source interface
// abstracts all of them behind subscribe-style registration so the session
// manager never touches host globals and stays unit-testable.
package signals

import "sync"

// ErrorInfo describes an error reported by the host runtime.
type ErrorInfo struct {
	Message string
	Source  string
	Stack   string
}

// Source is a feed of host runtime signals. Every subscription returns an
// unsubscribe function; calling it more than once is harmless.
type Source interface {
	OnVisibilityChange(fn func(visible bool)) (unsubscribe func())
	OnBeforeUnload(fn func()) (unsubscribe func())
	OnRouteChange(fn func(path string)) (unsubscribe func())
	OnError(fn func(info ErrorInfo)) (unsubscribe func())
}

// Hub is the standard Source implementation. Hosts drive it through the
// Emit methods; subscribers are invoked synchronously in registration order
// on the emitting goroutine.
type Hub struct {
	mu         sync.Mutex
	nextID     int
	visibility []subscriptionphase
	unload     []subscriptionunload
	route      []subscriptionroute
	errs       []subscriptionerror
}

type subscriptionphase struct {
	id int
	fn func(visible bool)
}

type subscriptionunload struct {
	id int
	fn func()
}

type subscriptionroute struct {
	id int
	fn func(path string)
}

type subscriptionerror struct {
	id int
	fn func(info ErrorInfo)
}

var _ Source = (*Hub)(nil)

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) OnVisibilityChange(fn func(visible bool)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.visibility = append(h.visibility, subscriptionphase{id: id, fn: fn})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, sub := range h.visibility {
			if sub.id == id {
				h.visibility = append(h.visibility[:i], h.visibility[i+1:]...)
				return
			}
		}
	}
}

func (h *Hub) OnBeforeUnload(fn func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.unload = append(h.unload, subscriptionunload{id: id, fn: fn})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, sub := range h.unload {
			if sub.id == id {
				h.unload = append(h.unload[:i], h.unload[i+1:]...)
				return
			}
		}
	}
}

func (h *Hub) OnRouteChange(fn func(path string)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.route = append(h.route, subscriptionroute{id: id, fn: fn})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, sub := range h.route {
			if sub.id == id {
				h.route = append(h.route[:i], h.route[i+1:]...)
				return
			}
		}
	}
}

func (h *Hub) OnError(fn func(info ErrorInfo)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.errs = append(h.errs, subscriptionerror{id: id, fn: fn})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, sub := range h.errs {
			if sub.id == id {
				h.errs = append(h.errs[:i], h.errs[i+1:]...)
				return
			}
		}
	}
}

// EmitVisibilityChange reports the host becoming visible or hidden.
func (h *Hub) EmitVisibilityChange(visible bool) {
	h.mu.Lock()
	subs := make([]subscriptionphase, len(h.visibility))
	copy(subs, h.visibility)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.fn(visible)
	}
}

// EmitBeforeUnload reports that the host is about to shut down or navigate
// away.
func (h *Hub) EmitBeforeUnload() {
	h.mu.Lock()
	subs := make([]subscriptionunload, len(h.unload))
	copy(subs, h.unload)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.fn()
	}
}

// EmitRouteChange reports a navigation to the given path.
func (h *Hub) EmitRouteChange(path string) {
	h.mu.Lock()
	subs := make([]subscriptionroute, len(h.route))
	copy(subs, h.route)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.fn(path)
	}
}

// EmitError reports a host-level error.
func (h *Hub) EmitError(info ErrorInfo) {
	h.mu.Lock()
	subs := make([]subscriptionerror, len(h.errs))
	copy(subs, h.errs)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.fn(info)
	}
}
