package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultPoolSize = 1000
	defaultTimeout  = 10 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// FailureHook observes handler errors and panics after they are logged.
type FailureHook func(ctx context.Context, e Event, err error)

type Option func(*Bus)

func WithPoolSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.pool = make(chan struct{}, n)
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

func WithFailureHook(h FailureHook) Option {
	return func(b *Bus) {
		b.onFailure = h
	}
}

// Bus is an in-memory event bus. Handlers run asynchronously on a bounded pool,
// so Publish only blocks when the pool is full.
type Bus struct {
	pool      chan struct{}
	timeout   time.Duration
	onFailure FailureHook
	wg        *sync.WaitGroup
	mu        sync.RWMutex
	handlers  map[string][]Handler
}

// NewBus create a new event bus. Caller should call Stop for graceful shutdown the bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		pool:     make(chan struct{}, defaultPoolSize),
		timeout:  defaultTimeout,
		wg:       new(sync.WaitGroup),
		handlers: make(map[string][]Handler),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe to an event
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], h)
}

// Publish an event to every handler subscribed to its name.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, h := range b.handlers[e.Name()] {
		b.dispatch(ctx, h, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	b.wg.Add(1)

	b.pool <- struct{}{}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("%v, stack: %s", r, debug.Stack())
				slog.ErrorContext(ctx, "event: handler panic", "event", e.Name(), "error", err)
				b.fail(ctx, e, err)
			}

			cancel()
			<-b.pool
			b.wg.Done()
		}()

		if err := h(ctx, e); err != nil {
			slog.ErrorContext(ctx, "event: handle event failed", "event", e.Name(), "error", err)
			b.fail(ctx, e, err)
		}
	}()
}

func (b *Bus) fail(ctx context.Context, e Event, err error) {
	if b.onFailure != nil {
		b.onFailure(ctx, e, err)
	}
}

// Stop waits for all handlers to finish
func (b *Bus) Stop() {
	b.wg.Wait()
}
