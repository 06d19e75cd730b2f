// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transport moves requests to Sony devices and correlates the
// replies. HTTP and websocket transports share one contract: Execute returns
// a Future, options tune each call, and listeners receive pushed events.
package transport

import (
	"context"
	"net/url"
	"sync"

	"sonyhub/internal/scalarweb"
)

// Protocol identifies how a transport talks to the device
type Protocol string

const (
	ProtocolAuto      Protocol = scalarweb.ProtocolAuto
	ProtocolHTTP      Protocol = scalarweb.ProtocolHTTP
	ProtocolWebSocket Protocol = scalarweb.ProtocolWebSocket
)

// Transport sends payloads to one device endpoint
type Transport interface {
	// Execute sends payload. Per-call options take precedence over the
	// transport's persistent options.
	Execute(ctx context.Context, payload Payload, opts ...Option) *Future

	SetOption(opt Option)
	RemoveOption(opt Option)
	Options() []Option

	AddListener(l Listener)
	RemoveListener(l Listener) bool

	ProtocolType() Protocol
	BaseURL() *url.URL
	Close() error
}

// Listener receives pushed events and asynchronous errors. Listeners are
// compared by identity, so implementations should be pointer types.
type Listener interface {
	OnEvent(event *scalarweb.Event)
	OnError(err error)
}

// ListenerFuncs adapts plain functions to Listener. Use it by pointer.
type ListenerFuncs struct {
	Event func(event *scalarweb.Event)
	Error func(err error)
}

func (l *ListenerFuncs) OnEvent(event *scalarweb.Event) {
	if l.Event != nil {
		l.Event(event)
	}
}

func (l *ListenerFuncs) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}

// base holds what every transport shares: persistent options and listeners
type base struct {
	protocol Protocol
	baseURL  *url.URL

	mu        sync.RWMutex
	options   []Option
	listeners []Listener
}

func (b *base) ProtocolType() Protocol {
	return b.protocol
}

func (b *base) BaseURL() *url.URL {
	u := *b.baseURL
	return &u
}

// SetOption evicts any persistent option opt replaces, then appends opt
func (b *base) SetOption(opt Option) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.options[:0:0]
	for _, o := range b.options {
		if !opt.replaces(o) {
			kept = append(kept, o)
		}
	}
	b.options = append(kept, opt)
}

// RemoveOption removes the first persistent option equal to opt
func (b *base) RemoveOption(opt Option) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, o := range b.options {
		if o == opt {
			b.options = append(b.options[:i:i], b.options[i+1:]...)
			return
		}
	}
}

func (b *base) Options() []Option {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Option(nil), b.options...)
}

// AddListener appends l. Adding the same listener twice delivers events to it twice.
func (b *base) AddListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// RemoveListener removes the first occurrence of l
func (b *base) RemoveListener(l Listener) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.listeners {
		if existing == l {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (b *base) snapshotListeners() []Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.listeners
}

// fireEvent delivers event to every listener on the calling goroutine
func (b *base) fireEvent(event *scalarweb.Event) {
	for _, l := range b.snapshotListeners() {
		l.OnEvent(event)
	}
}

// fireError delivers err to every listener on the calling goroutine
func (b *base) fireError(err error) {
	for _, l := range b.snapshotListeners() {
		l.OnError(err)
	}
}

// optionsOf returns the per-call options of type T followed by the
// persistent ones
func optionsOf[T Option](b *base, perCall []Option) []T {
	var out []T
	for _, o := range perCall {
		if t, ok := o.(T); ok {
			out = append(out, t)
		}
	}
	for _, o := range b.Options() {
		if t, ok := o.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// firstOf returns the winning option of type T, per-call first
func firstOf[T Option](b *base, perCall []Option) (T, bool) {
	all := optionsOf[T](b, perCall)
	if len(all) == 0 {
		var zero T
		return zero, false
	}
	return all[0], true
}
