package events

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	ferrors "git.home.luguber.info/inful/mdkit/internal/foundation/errors"
)

// Bus is a small typed in-process event bus used for daemon control flow
// and observability. It is not durable; the build history lives in
// internal/eventstore.
//
// Publish blocks until every matching subscriber has accepted the event or
// the context is canceled, which gives natural backpressure inside the
// single daemon process.
type Bus struct {
	mu     sync.RWMutex
	subs   map[reflect.Type]map[uint64]*subscription
	nextID atomic.Uint64
	closed atomic.Bool
}

type subscription struct {
	deliver func(ctx context.Context, evt any) error
	close   func()
}

func NewBus() *Bus {
	return &Bus{subs: make(map[reflect.Type]map[uint64]*subscription)}
}

// Subscribe registers a buffered subscription for events of concrete type T.
// The returned cancel func removes the subscription and closes the channel.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	eventType := reflect.TypeFor[T]()
	ch := make(chan T, buffer)

	if b.closed.Load() {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID.Add(1)

	var closeOnce sync.Once
	closeCh := func() { closeOnce.Do(func() { close(ch) }) }

	sub := &subscription{
		deliver: func(ctx context.Context, evt any) error {
			v, ok := evt.(T)
			if !ok {
				return ferrors.InternalError("event type mismatch").
					WithContext("expected", eventType.String()).
					Build()
			}
			select {
			case ch <- v:
				return nil
			case <-ctx.Done():
				return ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "event delivery canceled").
					WithContext("event_type", eventType.String()).
					Build()
			}
		},
		close: closeCh,
	}

	var cancelOnce sync.Once
	cancel := func() {
		cancelOnce.Do(func() {
			b.mu.Lock()
			if typeSubs, ok := b.subs[eventType]; ok {
				delete(typeSubs, id)
				if len(typeSubs) == 0 {
					delete(b.subs, eventType)
				}
			}
			b.mu.Unlock()
			closeCh()
		})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		closeCh()
		return ch, func() {}
	}
	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[uint64]*subscription)
	}
	b.subs[eventType][id] = sub

	return ch, cancel
}

// Publish delivers evt to all subscribers of its concrete type.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	if evt == nil {
		return ferrors.ValidationError("event cannot be nil").Build()
	}
	if b.closed.Load() {
		return ferrors.RuntimeError("event bus is closed").Build()
	}

	b.mu.RLock()
	typeSubs := b.subs[reflect.TypeOf(evt)]
	targets := make([]*subscription, 0, len(typeSubs))
	for _, s := range typeSubs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if err := s.deliver(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts the bus down and closes all subscription channels.
func (b *Bus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.mu.Lock()
	var toClose []*subscription
	for _, typeSubs := range b.subs {
		for _, s := range typeSubs {
			toClose = append(toClose, s)
		}
	}
	b.subs = make(map[reflect.Type]map[uint64]*subscription)
	b.mu.Unlock()

	for _, s := range toClose {
		s.close()
	}
}
