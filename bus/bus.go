// Package bus implements the in-process publish/subscribe event bus that
// announces every stage of a decision.
//
// Subscriptions use shell glob patterns ("decision.*", "decision.?ailed",
// "*") matched against concrete topics. Topics have no separator: "*"
// matches any run of characters, "/" included. Publish delivers an event to every
// matched handler concurrently and waits for all of them. A failing or
// panicking handler is logged and never affects its siblings or the
// publisher.
package bus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/decisionmesh/core"
	"github.com/hupe1980/decisionmesh/logging"
)

// ErrBadPattern is returned by Subscribe for malformed glob patterns.
var ErrBadPattern = errors.New("bus: malformed topic pattern")

// Handler receives events published on matching topics.
type Handler interface {
	HandleEvent(ctx context.Context, ev core.Event) error
}

type funcHandler struct {
	fn func(ctx context.Context, ev core.Event) error
}

func (h *funcHandler) HandleEvent(ctx context.Context, ev core.Event) error { return h.fn(ctx, ev) }

// Func wraps fn in a Handler. Each call yields a distinct handler identity, so
// keep the returned value to Unsubscribe later.
func Func(fn func(ctx context.Context, ev core.Event) error) Handler {
	return &funcHandler{fn: fn}
}

// Options configures a Bus.
type Options struct {
	// MaxConcurrency bounds concurrently running handlers per Publish.
	// Zero or negative means unlimited.
	MaxConcurrency int
	Logger         logging.Logger
}

type subscription struct {
	pattern string
	matcher glob.Glob
	handler Handler
}

// Bus is an asynchronous topic bus. The subscriber table is guarded by one
// lock per instance; independent buses share nothing.
type Bus struct {
	opts Options

	mu   sync.RWMutex
	subs []subscription
}

// New creates an empty bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Bus{opts: opts}
}

// Subscribe registers h for topics matching pattern. Subscribing the same
// (pattern, handler) pair twice is a no-op.
func (b *Bus) Subscribe(pattern string, h Handler) error {
	if h == nil {
		return errors.New("bus: nil handler")
	}
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrBadPattern, pattern, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		if s.pattern == pattern && sameHandler(s.handler, h) {
			return nil
		}
	}

	b.subs = append(b.subs, subscription{pattern: pattern, matcher: matcher, handler: h})
	b.opts.Logger.Debug("bus.subscribed", "pattern", pattern)

	return nil
}

// Unsubscribe removes the (pattern, handler) pair. Unknown pairs are ignored.
func (b *Bus) Unsubscribe(pattern string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.pattern == pattern && sameHandler(s.handler, h) {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			b.opts.Logger.Debug("bus.unsubscribed", "pattern", pattern)
			return
		}
	}
}

// Publish builds an event for topic and delivers it to every matching
// handler. It returns once all handlers have finished.
func (b *Bus) Publish(ctx context.Context, topic string, data any) {
	b.PublishEvent(ctx, core.NewEvent(topic, data))
}

// PublishEvent delivers a prebuilt event. Each matching subscription is
// invoked exactly once, concurrently with the others.
func (b *Bus) PublishEvent(ctx context.Context, ev core.Event) {
	handlers := b.match(ev.Topic)
	if len(handlers) == 0 {
		return
	}

	var g errgroup.Group
	if b.opts.MaxConcurrency > 0 {
		g.SetLimit(b.opts.MaxConcurrency)
	}

	for _, s := range handlers {
		g.Go(func() error {
			b.deliver(ctx, s, ev)
			return nil
		})
	}

	_ = g.Wait()
}

// Subscribers returns the number of subscriptions matching topic.
func (b *Bus) Subscribers(topic string) int {
	return len(b.match(topic))
}

func (b *Bus) match(topic string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []subscription
	for _, s := range b.subs {
		if s.matcher.Match(topic) {
			out = append(out, s)
		}
	}

	return out
}

func (b *Bus) deliver(ctx context.Context, s subscription, ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.opts.Logger.Error("bus.handler.panic", "topic", ev.Topic, "pattern", s.pattern, "panic", fmt.Sprint(r))
		}
	}()

	if err := s.handler.HandleEvent(ctx, ev); err != nil {
		b.opts.Logger.Error("bus.handler.failed", "topic", ev.Topic, "pattern", s.pattern, "error", err.Error())
	}
}

// sameHandler compares handler identities without panicking on
// non-comparable dynamic types.
func sameHandler(a, b Handler) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Func, reflect.Map, reflect.Slice:
		return va.Pointer() == vb.Pointer()
	default:
		return false
	}
}
