package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrNoSubscribers = errors.New("eventbus: no subscribers")

// Handler consumes one event. Returned errors are collected by Publish.
type Handler[T any] func(ctx context.Context, ev T) error

type subscriber[T any] struct {
	id      uint64
	handler Handler[T]
}

// Bus delivers events of type T to every subscriber, synchronously and in
// subscription order.
type Bus[T any] struct {
	log *logrus.Entry

	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber[T]
}

func New[T any](log *logrus.Entry) *Bus[T] {
	return &Bus[T]{log: log}
}

// Subscribe registers h and returns a func that removes it.
func (b *Bus[T]) Subscribe(h Handler[T]) func() {
	if h == nil {
		panic("eventbus: nil handler")
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber[T]{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Bus[T]) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish calls every handler. A panicking handler is recovered and reported
// as an error; the remaining handlers still run.
func (b *Bus[T]) Publish(ctx context.Context, ev T) error {
	b.mu.RLock()
	subs := append([]subscriber[T](nil), b.subs...)
	b.mu.RUnlock()

	if len(subs) == 0 {
		return ErrNoSubscribers
	}

	var errs []error
	for _, s := range subs {
		if err := b.call(ctx, s, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus[T]) call(ctx context.Context, s subscriber[T], ev T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus: handler %d panicked: %v", s.id, r)
			if b.log != nil {
				b.log.WithField("handler", s.id).Errorf("eventbus: handler panicked with event %+v: %v", ev, r)
			}
		}
	}()
	return s.handler(ctx, ev)
}

func (b *Bus[T]) Clear() {
	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
}

func (b *Bus[T]) SubscribersCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
