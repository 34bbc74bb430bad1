// Package lock provides keyed mutual exclusion for short critical sections.
// Keys are independent: holding one never blocks another.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotHeld is returned by an Unlock whose lock expired or was taken over.
var ErrNotHeld = errors.New("lock no longer held")

// Unlock releases a lock obtained from a Locker.
type Unlock func() error

// Locker acquires a lock on key, blocking until it is free or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// KeyedMutex serializes callers per key within one process.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (Unlock, error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() error {
		once.Do(func() {
			<-s.ch
			k.release(key, s)
		})
		return nil
	}, nil
}

// release drops a reference and forgets the key when nobody waits on it.
func (k *KeyedMutex) release(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// size reports how many keys are currently held or awaited.
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

// Noop never blocks. It is used when the store's optimistic concurrency
// control is the only coordination.
type Noop struct{}

func (Noop) Lock(context.Context, string) (Unlock, error) {
	return func() error { return nil }, nil
}
