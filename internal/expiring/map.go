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

// Package expiring provides a concurrent map whose entries are evicted once
// they outlive a fixed timeout. Eviction notifies registered listeners so the
// owner can release whatever the value represents.
package expiring

import (
	"sync"
	"time"
)

const (
	minSweepInterval = 10 * time.Millisecond
	maxSweepInterval = time.Second
)

// ExpireFunc is called once for every entry that leaves the map through
// expiry or Close. It is never called for entries taken out with Remove.
type ExpireFunc[K comparable, V any] func(key K, value V)

type entry[V any] struct {
	value    V
	deadline time.Time
}

// Map is a key/value store with per-entry deadlines
type Map[K comparable, V any] struct {
	mu        sync.Mutex
	entries   map[K]*entry[V]
	listeners []ExpireFunc[K, V]
	timeout   time.Duration
	interval  time.Duration
	closed    bool

	stop     chan struct{}
	done     chan struct{}
	closeOne sync.Once
}

// Option customises a Map at construction time
type Option func(*options)

type options struct {
	interval time.Duration
}

// WithSweepInterval overrides how often expired entries are collected
func WithSweepInterval(interval time.Duration) Option {
	return func(o *options) {
		o.interval = interval
	}
}

// New creates a map whose entries expire timeout after their last Put.
// A background sweeper runs until Close is called.
func New[K comparable, V any](timeout time.Duration, opts ...Option) *Map[K, V] {
	o := &options{interval: defaultInterval(timeout)}
	for _, opt := range opts {
		opt(o)
	}
	if o.interval <= 0 {
		o.interval = defaultInterval(timeout)
	}

	m := &Map[K, V]{
		entries:  make(map[K]*entry[V]),
		timeout:  timeout,
		interval: o.interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go m.sweep()

	return m
}

func defaultInterval(timeout time.Duration) time.Duration {
	interval := timeout / 4
	if interval < minSweepInterval {
		return minSweepInterval
	}
	if interval > maxSweepInterval {
		return maxSweepInterval
	}
	return interval
}

// AddExpireListener registers fn to be called for expired entries
func (m *Map[K, V]) AddExpireListener(fn ExpireFunc[K, V]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Put stores value under key and restarts the key's deadline. An existing
// value for the key is replaced without notifying listeners. Once the map is
// closed the value is handed straight to the listeners instead of stored.
func (m *Map[K, V]) Put(key K, value V) {
	m.mu.Lock()
	if m.closed {
		listeners := m.listeners
		m.mu.Unlock()
		notify(listeners, key, value)
		return
	}
	m.entries[key] = &entry[V]{value: value, deadline: time.Now().Add(m.timeout)}
	m.mu.Unlock()
}

// Get returns the value stored for key. The deadline is left untouched.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Remove deletes key and returns the value it held, if any
func (m *Map[K, V]) Remove(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(m.entries, key)
	return e.value, true
}

// Len reports the number of live entries
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the sweeper and expires every remaining entry. Calling Close
// more than once is a no-op.
func (m *Map[K, V]) Close() {
	m.closeOne.Do(func() {
		close(m.stop)
		<-m.done

		m.mu.Lock()
		m.closed = true
		remaining := m.entries
		m.entries = make(map[K]*entry[V])
		listeners := m.listeners
		m.mu.Unlock()

		for k, e := range remaining {
			notify(listeners, k, e.value)
		}
	})
}

func (m *Map[K, V]) sweep() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.expire(now)
		}
	}
}

// expire claims overdue entries under the lock and notifies outside of it,
// so each entry reaches the listeners at most once
func (m *Map[K, V]) expire(now time.Time) {
	type expired struct {
		key   K
		value V
	}

	m.mu.Lock()
	var due []expired
	for k, e := range m.entries {
		if !now.Before(e.deadline) {
			due = append(due, expired{key: k, value: e.value})
			delete(m.entries, k)
		}
	}
	listeners := m.listeners
	m.mu.Unlock()

	for _, d := range due {
		notify(listeners, d.key, d.value)
	}
}

func notify[K comparable, V any](listeners []ExpireFunc[K, V], key K, value V) {
	for _, fn := range listeners {
		fn(key, value)
	}
}
