package sitemap

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// BuildFunc produces the value memoised for args.
type BuildFunc[T any] func(ctx context.Context, args []string) (T, error)

// Memoizer caches successful results per argument list. Concurrent misses for the same
// arguments share one build. Failures are returned to every waiter and never cached.
type Memoizer[T any] struct {
	build   BuildFunc[T]
	ttl     time.Duration
	clock   func() time.Time
	metrics *buildMetrics

	group singleflight.Group

	mu         sync.Mutex
	entries    map[string]memoEntry[T]
	generation map[string]uint64
}

type memoEntry[T any] struct {
	value    T
	storedAt time.Time
}

// MemoizerOption customises a Memoizer.
type MemoizerOption func(*memoizerOptions)

type memoizerOptions struct {
	ttl     time.Duration
	clock   func() time.Time
	metrics *buildMetrics
}

// WithTTL expires cached results after ttl. Zero keeps results until invalidated.
func WithTTL(ttl time.Duration) MemoizerOption {
	return func(o *memoizerOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func WithClock(clock func() time.Time) MemoizerOption {
	return func(o *memoizerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func withMetrics(m *buildMetrics) MemoizerOption {
	return func(o *memoizerOptions) {
		o.metrics = m
	}
}

// NewMemoizer wraps build.
func NewMemoizer[T any](build BuildFunc[T], opts ...MemoizerOption) *Memoizer[T] {
	options := memoizerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return &Memoizer[T]{
		build:      build,
		ttl:        options.ttl,
		clock:      options.clock,
		metrics:    options.metrics,
		entries:    make(map[string]memoEntry[T]),
		generation: make(map[string]uint64),
	}
}

// Get returns the cached value for args or builds it. The build runs detached from ctx so one
// caller giving up does not fail the others; ctx only bounds how long this caller waits.
func (m *Memoizer[T]) Get(ctx context.Context, args ...string) (T, error) {
	var zero T
	key := memoKey(args)

	if value, ok := m.lookup(key); ok {
		m.metrics.recordCacheHit(ctx)
		return value, nil
	}

	ch := m.group.DoChan(key, func() (result any, err error) {
		if value, ok := m.lookup(key); ok {
			return value, nil
		}
		gen := m.currentGeneration(key)

		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("sitemap: build panicked: %v", rec)
			}
		}()
		value, err := m.build(context.WithoutCancel(ctx), append([]string(nil), args...))
		if err != nil {
			return nil, err
		}
		m.store(key, gen, value)
		return value, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Invalidate drops the cached value for args. A build already in flight keeps running for its
// current waiters but its result is not cached, and later callers start a fresh build.
func (m *Memoizer[T]) Invalidate(args ...string) {
	key := memoKey(args)
	m.mu.Lock()
	delete(m.entries, key)
	m.generation[key]++
	m.mu.Unlock()
	m.group.Forget(key)
}

// Reset drops every cached value.
func (m *Memoizer[T]) Reset() {
	m.mu.Lock()
	keys := make([]string, 0, len(m.entries)+len(m.generation))
	for key := range m.entries {
		keys = append(keys, key)
	}
	for key := range m.generation {
		keys = append(keys, key)
	}
	m.entries = make(map[string]memoEntry[T])
	for _, key := range keys {
		m.generation[key]++
	}
	m.mu.Unlock()
	for _, key := range keys {
		m.group.Forget(key)
	}
}

func (m *Memoizer[T]) lookup(key string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if m.ttl > 0 && m.clock().Sub(entry.storedAt) >= m.ttl {
		delete(m.entries, key)
		var zero T
		return zero, false
	}
	return entry.value, true
}

// currentGeneration also registers key so Reset reaches builds that have never stored a value.
func (m *Memoizer[T]) currentGeneration(key string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.generation[key]
	if !ok {
		m.generation[key] = 0
	}
	return gen
}

func (m *Memoizer[T]) store(key string, gen uint64, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation[key] != gen {
		return
	}
	m.entries[key] = memoEntry[T]{value: value, storedAt: m.clock()}
}

// memoKey is the JSON encoding of the argument list, so no arguments key as "[]".
func memoKey(args []string) string {
	if args == nil {
		args = []string{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprint(args)
	}
	return string(raw)
}
